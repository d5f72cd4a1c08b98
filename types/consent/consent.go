package consent

// RequestOtpRequest is the payload for requesting a new consent OTP.
type RequestOtpRequest struct {
	AssignmentID      string `json:"assignment_id" validate:"required"`
	PatientID         string `json:"patient_id" validate:"required"`
	SecondaryDoctorID string `json:"secondary_doctor_id,omitempty"`
	SecondaryHspID    string `json:"secondary_hsp_id,omitempty"`
	Method            string `json:"method" validate:"required,oneof=SMS EMAIL BOTH"`
}

// ResendOtpRequest is the payload for resending an existing consent OTP.
type ResendOtpRequest struct {
	OtpID     string `json:"otp_id" validate:"required"`
	PatientID string `json:"patient_id" validate:"required"`
}

// VerifyOtpRequest is the payload for submitting a consent code.
type VerifyOtpRequest struct {
	OtpID     string `json:"otp_id" validate:"required"`
	PatientID string `json:"patient_id" validate:"required"`
	OtpCode   string `json:"otp_code" validate:"required,len=6"`
}

// OtpIssuedResponse reports the outcome of a request or resend.
type OtpIssuedResponse struct {
	OtpID     string `json:"otp_id"`
	ExpiresAt string `json:"expires_at"`
	Method    string `json:"method"`
	SmsSent   bool   `json:"sms_sent"`
	EmailSent bool   `json:"email_sent"`
}

// OtpVerifiedResponse reports a successful verification.
type OtpVerifiedResponse struct {
	AssignmentID string `json:"assignment_id"`
	VerifiedAt   string `json:"verified_at"`
}

// OtpFailureResponse carries the detail needed to render a specific message.
type OtpFailureResponse struct {
	Message           string `json:"message"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
	IsBlocked         *bool  `json:"is_blocked,omitempty"`
}

// OtpStatusSummary is one row of the read-only status projection.
type OtpStatusSummary struct {
	OtpID             string `json:"otp_id"`
	AssignmentID      string `json:"assignment_id"`
	PatientID         string `json:"patient_id"`
	State             string `json:"state"`
	Method            string `json:"method"`
	AttemptsRemaining int    `json:"attempts_remaining"`
	ExpiresAt         string `json:"expires_at"`
	SmsSent           bool   `json:"sms_sent"`
	EmailSent         bool   `json:"email_sent"`
	RequestedToday    bool   `json:"requested_today"`
}
