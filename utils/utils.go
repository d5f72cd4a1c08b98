package utils

import (
	"strings"
)

// MaskPhone hides all but the last three digits of a phone number so
// recipient numbers never land in logs in full.
func MaskPhone(phone string) string {
	if len(phone) <= 3 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-3) + phone[len(phone)-3:]
}

// MaskEmail hides the local part of an address except its first character.
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 1 {
		return "***" + email[max(at, 0):]
	}
	return email[:1] + strings.Repeat("*", at-1) + email[at:]
}
