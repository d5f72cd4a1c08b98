package consent

import (
	"errors"
	"time"

	assignmentModel "healthapp/models/assignment"
	consentModel "healthapp/models/consent"
	patientModel "healthapp/models/patient"
)

// Sentinel errors store implementations translate database failures into.
var (
	// ErrNotFound means no row exists for the given id.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateActive means another non-terminal OTP already exists for
	// the assignment.
	ErrDuplicateActive = errors.New("an active OTP already exists for this assignment")
	// ErrStaleAttempt means a conditional attempt-count update lost a race
	// and should be retried against fresh state.
	ErrStaleAttempt = errors.New("attempt counter changed concurrently")
	// ErrAlreadyVerified means a grant commit found the OTP already in its
	// terminal state.
	ErrAlreadyVerified = errors.New("OTP already verified")
)

// OtpStore persists ConsentOtp rows. Implementations must make
// RegisterFailedAttempt a conditional write so concurrent wrong-code
// submissions cannot lose an increment, and CommitGrant a single transaction
// over the OTP and its assignment.
type OtpStore interface {
	Create(o *consentModel.ConsentOtp) error
	GetByID(id string) (*consentModel.ConsentOtp, error)
	// Update persists the full row of an unverified OTP. A non-empty
	// eventType also writes an audit snapshot in the same transaction.
	// Returns ErrAlreadyVerified when verification won a race in the
	// meantime; a verified row is terminal and is never overwritten.
	Update(o *consentModel.ConsentOtp, eventType string) error
	// RecordDispatch persists only the per-channel dispatch flags, and only
	// while the row is unverified and still on the same issue cycle
	// (generated_at unchanged). Anything else makes it a no-op, so the
	// bookkeeping can never undo a verification or clobber a newer resend.
	RecordDispatch(o *consentModel.ConsentOtp) error
	// MarkExpired flags an unverified OTP of the given issue cycle as
	// expired and writes the audit snapshot. A no-op when verification or a
	// resend won in the meantime.
	MarkExpired(id string, generatedAt time.Time) error
	// RegisterFailedAttempt increments the attempt counter only if it still
	// equals expectedAttempts and the issue cycle (generated_at) is
	// unchanged, blocking the OTP when the budget is spent. Returns
	// ErrStaleAttempt when either precondition fails.
	RegisterFailedAttempt(id string, expectedAttempts int, generatedAt time.Time) (*consentModel.ConsentOtp, error)
	// CommitGrant marks the OTP verified and grants its assignment in one
	// atomic transaction. Returns ErrAlreadyVerified if a concurrent call
	// won the race.
	CommitGrant(id string, at time.Time) (*consentModel.ConsentOtp, error)
	ListByAssignment(assignmentID string) ([]consentModel.ConsentOtp, error)
	ListByPatient(patientID string) ([]consentModel.ConsentOtp, error)
}

// AssignmentStore reads and updates secondary-access assignments. The
// granted-state flip on verification success goes through OtpStore.CommitGrant
// instead, so it can share the OTP transaction.
type AssignmentStore interface {
	GetByID(id string) (*assignmentModel.SecondaryAssignment, error)
	Update(a *assignmentModel.SecondaryAssignment) error
}

// PatientStore resolves the contact details a consent code is sent to.
type PatientStore interface {
	GetByID(id string) (*patientModel.Patient, error)
}

// Dispatcher delivers consent codes. Calls are best-effort: failures are
// recorded as flags on the OTP row, never surfaced as operation failure.
type Dispatcher interface {
	SendSMS(phone, message string) error
	SendEmail(address, subject, body string) error
}

// Clock supplies the current time so expiry windows are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
