package consentevent

import (
	consentModel "healthapp/models/consent"

	"gorm.io/gorm"
)

// Snapshot writes a full copy of an OTP row into the consent event table with
// the given event type. Callers pass the transaction the mutation runs in so
// the event commits or rolls back with it.
func Snapshot(tx *gorm.DB, o *consentModel.ConsentOtp, eventType string) error {
	ev := consentModel.ConsentOtpEvent{
		OtpID:             o.ID,
		AssignmentID:      o.AssignmentID,
		PatientID:         o.PatientID,
		Code:              o.Code,
		Method:            o.Method,
		GeneratedAt:       o.GeneratedAt,
		ExpiresAt:         o.ExpiresAt,
		AttemptsCount:     o.AttemptsCount,
		MaxAttempts:       o.MaxAttempts,
		IsVerified:        o.IsVerified,
		VerifiedAt:        o.VerifiedAt,
		IsExpired:         o.IsExpired,
		IsBlocked:         o.IsBlocked,
		BlockedAt:         o.BlockedAt,
		SmsSent:           o.SmsSent,
		EmailSent:         o.EmailSent,
		RequestedByUserID: o.RequestedByUserID,
		RequestIP:         o.RequestIP,
		EventType:         eventType,
	}

	return tx.Create(&ev).Error
}
