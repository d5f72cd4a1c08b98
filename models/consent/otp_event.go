package consent

import (
	"time"
)

// Event types recorded against a consent OTP.
const (
	EventRequested     = "requested"
	EventResent        = "resent"
	EventAttemptFailed = "attempt_failed"
	EventBlocked       = "blocked"
	EventExpired       = "expired"
	EventVerified      = "verified"
)

// ConsentOtpEvent is an audit snapshot of an OTP row, written inside the same
// transaction as the mutation it records.
type ConsentOtpEvent struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	OtpID        string `gorm:"type:varchar(36);not null;index" json:"otp_id"`
	AssignmentID string `gorm:"type:varchar(36);not null;index" json:"assignment_id"`
	PatientID    string `gorm:"type:varchar(36);not null;index" json:"patient_id"`

	Code   string         `gorm:"column:otp_code;type:varchar(6);not null" json:"-"`
	Method DeliveryMethod `gorm:"type:varchar(10);not null" json:"method"`

	GeneratedAt time.Time `gorm:"not null" json:"generated_at"`
	ExpiresAt   time.Time `gorm:"not null" json:"expires_at"`

	AttemptsCount int `gorm:"default:0" json:"attempts_count"`
	MaxAttempts   int `gorm:"default:3" json:"max_attempts"`

	IsVerified bool       `gorm:"default:false" json:"is_verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	IsExpired  bool       `gorm:"default:false" json:"is_expired"`
	IsBlocked  bool       `gorm:"default:false" json:"is_blocked"`
	BlockedAt  *time.Time `json:"blocked_at,omitempty"`

	SmsSent   bool `gorm:"default:false" json:"sms_sent"`
	EmailSent bool `gorm:"default:false" json:"email_sent"`

	RequestedByUserID string `gorm:"type:varchar(36);not null" json:"requested_by_user_id"`
	RequestIP         string `gorm:"type:varchar(45)" json:"request_ip,omitempty"`

	EventType string    `gorm:"type:varchar(50);not null;index" json:"event_type"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName keeps the table name explicit.
func (ConsentOtpEvent) TableName() string {
	return "consent_otp_events"
}
