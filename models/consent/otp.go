package consent

import (
	"time"
)

// OtpValidityWindow is how long a consent code stays usable after issue.
const OtpValidityWindow = 15 * time.Minute

// DefaultMaxAttempts is the number of wrong codes tolerated before lockout.
const DefaultMaxAttempts = 3

// DeliveryMethod selects the channels a consent code is sent over.
type DeliveryMethod string

const (
	MethodSMS   DeliveryMethod = "SMS"
	MethodEmail DeliveryMethod = "EMAIL"
	MethodBoth  DeliveryMethod = "BOTH"
)

// IsValid reports whether the delivery method is one of the known channels.
func (m DeliveryMethod) IsValid() bool {
	switch m {
	case MethodSMS, MethodEmail, MethodBoth:
		return true
	default:
		return false
	}
}

// WantsSMS reports whether the SMS channel is implied by the method.
func (m DeliveryMethod) WantsSMS() bool {
	return m == MethodSMS || m == MethodBoth
}

// WantsEmail reports whether the email channel is implied by the method.
func (m DeliveryMethod) WantsEmail() bool {
	return m == MethodEmail || m == MethodBoth
}

// ConsentOtp is one verification attempt-cycle for a secondary-access grant.
// The row is mutated in place by resends and failed attempts and is never
// deleted; expiry and blocking are status flags kept for audit.
type ConsentOtp struct {
	ID string `gorm:"type:varchar(36);primaryKey" json:"id"`

	AssignmentID string `gorm:"type:varchar(36);not null;index" json:"assignment_id"`

	// Reference fields copied from the assignment at creation time.
	PatientID         string  `gorm:"type:varchar(36);not null;index" json:"patient_id"`
	PrimaryDoctorID   string  `gorm:"type:varchar(36);not null" json:"primary_doctor_id"`
	SecondaryDoctorID *string `gorm:"type:varchar(36)" json:"secondary_doctor_id,omitempty"`
	SecondaryHspID    *string `gorm:"type:varchar(36)" json:"secondary_hsp_id,omitempty"`

	Code   string         `gorm:"column:otp_code;type:varchar(6);not null" json:"-"`
	Method DeliveryMethod `gorm:"type:varchar(10);not null" json:"method"`

	GeneratedAt time.Time `gorm:"not null" json:"generated_at"`
	ExpiresAt   time.Time `gorm:"not null;index" json:"expires_at"`

	AttemptsCount int `gorm:"default:0" json:"attempts_count"`
	MaxAttempts   int `gorm:"default:3" json:"max_attempts"`

	IsVerified bool       `gorm:"default:false" json:"is_verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	IsExpired  bool       `gorm:"default:false" json:"is_expired"`
	IsBlocked  bool       `gorm:"default:false" json:"is_blocked"`
	BlockedAt  *time.Time `json:"blocked_at,omitempty"`

	// Dispatch bookkeeping, independent per channel.
	SmsSent     bool       `gorm:"default:false" json:"sms_sent"`
	SmsSentAt   *time.Time `json:"sms_sent_at,omitempty"`
	EmailSent   bool       `gorm:"default:false" json:"email_sent"`
	EmailSentAt *time.Time `json:"email_sent_at,omitempty"`

	// Audit provenance, immutable after creation.
	RequestedByUserID string `gorm:"type:varchar(36);not null" json:"requested_by_user_id"`
	RequestIP         string `gorm:"type:varchar(45)" json:"request_ip,omitempty"`
	RequestUserAgent  string `gorm:"type:varchar(512)" json:"request_user_agent,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName keeps the table name explicit.
func (ConsentOtp) TableName() string {
	return "consent_otps"
}

// ExpiredAt reports whether the code is past its validity window at the given
// instant. The persisted IsExpired flag only records that expiry was observed.
func (o *ConsentOtp) ExpiredAt(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// AttemptsExhausted reports whether the wrong-code budget is spent.
func (o *ConsentOtp) AttemptsExhausted() bool {
	return o.AttemptsCount >= o.MaxAttempts
}

// AttemptsRemaining returns how many wrong codes are still tolerated.
func (o *ConsentOtp) AttemptsRemaining() int {
	remaining := o.MaxAttempts - o.AttemptsCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RegisterFailure counts one failed comparison and blocks the OTP when the
// budget is exhausted. Persistence is the caller's concern.
func (o *ConsentOtp) RegisterFailure(now time.Time) {
	o.AttemptsCount++
	if o.AttemptsCount >= o.MaxAttempts {
		o.IsBlocked = true
		o.BlockedAt = &now
	}
}

// ResetForResend installs a fresh code and clears the attempt and lock state.
// This is the only path that recovers a blocked or expired OTP. MaxAttempts
// is carried forward unchanged.
func (o *ConsentOtp) ResetForResend(code string, now time.Time) {
	o.Code = code
	o.AttemptsCount = 0
	o.IsExpired = false
	o.IsBlocked = false
	o.BlockedAt = nil
	o.GeneratedAt = now
	o.ExpiresAt = now.Add(OtpValidityWindow)
	o.SmsSent = false
	o.SmsSentAt = nil
	o.EmailSent = false
	o.EmailSentAt = nil
}

// MarkVerified flips the OTP into its terminal state.
func (o *ConsentOtp) MarkVerified(now time.Time) {
	o.IsVerified = true
	o.VerifiedAt = &now
}

// State summarises the OTP lifecycle position for status projections.
func (o *ConsentOtp) State(now time.Time) string {
	switch {
	case o.IsVerified:
		return "verified"
	case o.IsBlocked || o.AttemptsExhausted():
		return "blocked"
	case o.IsExpired || o.ExpiredAt(now):
		return "expired"
	default:
		return "pending"
	}
}
