package consent

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/now"

	"healthapp/constants"
	"healthapp/logger"
	assignmentModel "healthapp/models/assignment"
	consentModel "healthapp/models/consent"
	patientModel "healthapp/models/patient"
)

// How many times a lost attempt-counter race is retried before giving up.
const failedAttemptRetryLimit = 3

// Workflow orchestrates the patient-consent OTP lifecycle: issue a code to
// the patient, track verification attempts, enforce lockout, and on success
// atomically flip the assignment's access grant.
type Workflow struct {
	Otps        OtpStore
	Assignments AssignmentStore
	Patients    PatientStore
	Dispatcher  Dispatcher
	Clock       Clock
	Codes       CodeSource
}

// NewWorkflow wires a workflow from its collaborators.
func NewWorkflow(otps OtpStore, assignments AssignmentStore, patients PatientStore, dispatcher Dispatcher) *Workflow {
	return &Workflow{
		Otps:        otps,
		Assignments: assignments,
		Patients:    patients,
		Dispatcher:  dispatcher,
		Clock:       SystemClock{},
		Codes:       NewCodeSource(),
	}
}

// RequestOtpInput carries everything needed to issue a fresh consent OTP.
type RequestOtpInput struct {
	AssignmentID      string
	PatientID         string
	SecondaryDoctorID string
	SecondaryHspID    string
	Method            consentModel.DeliveryMethod
	RequesterID       string
	RequesterRole     constants.Role
	RequestIP         string
	RequestUserAgent  string
}

// IssueResult reports a requested or resent OTP back to the caller.
type IssueResult struct {
	OtpID     string
	ExpiresAt time.Time
	Method    consentModel.DeliveryMethod
	SmsSent   bool
	EmailSent bool
}

// VerifyResult reports a successful verification.
type VerifyResult struct {
	AssignmentID string
	VerifiedAt   time.Time
}

// StatusSummary is one row of the read-only status projection.
type StatusSummary struct {
	OtpID             string
	AssignmentID      string
	PatientID         string
	State             string
	Method            consentModel.DeliveryMethod
	AttemptsRemaining int
	ExpiresAt         time.Time
	SmsSent           bool
	EmailSent         bool
	RequestedToday    bool
}

// RequestOtp issues a new consent OTP for a pending secondary assignment and
// dispatches it to the patient. Dispatch failures do not fail the request;
// they are recorded on the row and reported in the result.
func (w *Workflow) RequestOtp(in RequestOtpInput) (*IssueResult, error) {
	if !in.Method.IsValid() {
		return nil, validationError("invalid delivery method")
	}

	a, err := w.Assignments.GetByID(in.AssignmentID)
	if err != nil {
		if err == ErrNotFound {
			return nil, notFoundError("assignment not found")
		}
		return nil, internalError("failed to load assignment", err)
	}

	if a.PatientID != in.PatientID {
		return nil, validationError("invalid patient")
	}
	if err := authorizeRequester(a, in.RequesterID, in.RequesterRole); err != nil {
		return nil, err
	}
	if err := validateSecondaryRefs(a, in.SecondaryDoctorID, in.SecondaryHspID); err != nil {
		return nil, err
	}
	if a.IsGranted() {
		return nil, conflictError("consent already granted for this assignment")
	}

	code, err := w.Codes.SixDigitCode()
	if err != nil {
		return nil, internalError("failed to generate code", err)
	}

	nowTs := w.Clock.Now()
	o := &consentModel.ConsentOtp{
		ID:                uuid.NewString(),
		AssignmentID:      a.ID,
		PatientID:         a.PatientID,
		PrimaryDoctorID:   a.PrimaryDoctorID,
		SecondaryDoctorID: a.SecondaryDoctorID,
		SecondaryHspID:    a.SecondaryHspID,
		Code:              code,
		Method:            in.Method,
		GeneratedAt:       nowTs,
		ExpiresAt:         nowTs.Add(consentModel.OtpValidityWindow),
		AttemptsCount:     0,
		MaxAttempts:       consentModel.DefaultMaxAttempts,
		RequestedByUserID: in.RequesterID,
		RequestIP:         in.RequestIP,
		RequestUserAgent:  in.RequestUserAgent,
	}

	if err := w.Otps.Create(o); err != nil {
		if err == ErrDuplicateActive {
			return nil, conflictError("an active consent OTP already exists for this assignment")
		}
		return nil, internalError("failed to create OTP record", err)
	}

	// Surface the in-flight request on the assignment. Not load-bearing for
	// verification, so a failure here only gets logged.
	if a.ConsentStatus == assignmentModel.ConsentStatusPending {
		a.ConsentStatus = assignmentModel.ConsentStatusRequested
		if err := w.Assignments.Update(a); err != nil {
			logger.Error("Failed to mark assignment as requested", err)
		}
	}

	w.dispatch(o)

	return &IssueResult{
		OtpID:     o.ID,
		ExpiresAt: o.ExpiresAt,
		Method:    o.Method,
		SmsSent:   o.SmsSent,
		EmailSent: o.EmailSent,
	}, nil
}

// ResendOtp regenerates the code on an existing OTP and clears its attempt
// and lock state. This is the only way to recover a blocked or expired OTP.
func (w *Workflow) ResendOtp(otpID, patientID, requesterID string, requesterRole constants.Role) (*IssueResult, error) {
	o, err := w.Otps.GetByID(otpID)
	if err != nil {
		if err == ErrNotFound {
			return nil, notFoundError("OTP not found")
		}
		return nil, internalError("failed to load OTP", err)
	}

	if o.PatientID != patientID {
		return nil, validationError("invalid patient")
	}

	a, err := w.Assignments.GetByID(o.AssignmentID)
	if err != nil {
		if err == ErrNotFound {
			return nil, notFoundError("assignment not found")
		}
		return nil, internalError("failed to load assignment", err)
	}
	if err := authorizeRequester(a, requesterID, requesterRole); err != nil {
		return nil, err
	}

	if o.IsVerified {
		return nil, conflictError("OTP already verified")
	}

	code, err := w.Codes.SixDigitCode()
	if err != nil {
		return nil, internalError("failed to generate code", err)
	}

	o.ResetForResend(code, w.Clock.Now())
	if err := w.Otps.Update(o, consentModel.EventResent); err != nil {
		if err == ErrAlreadyVerified {
			return nil, conflictError("OTP already verified")
		}
		return nil, internalError("failed to update OTP record", err)
	}

	w.dispatch(o)

	return &IssueResult{
		OtpID:     o.ID,
		ExpiresAt: o.ExpiresAt,
		Method:    o.Method,
		SmsSent:   o.SmsSent,
		EmailSent: o.EmailSent,
	}, nil
}

// VerifyOtp checks a submitted code. Expiry is checked before the code so a
// correct-but-late submission still fails, and the expiry and lock paths do
// not consume an attempt. On a match the OTP flip and the assignment grant
// commit in a single transaction. A lost race on the attempt counter or the
// issue cycle reloads the row and re-evaluates the whole gate, so a
// comparison made against a code a resend just replaced neither debits the
// fresh cycle nor skips a now-matching code.
func (w *Workflow) VerifyOtp(otpID, patientID, submittedCode string) (*VerifyResult, error) {
	o, err := w.Otps.GetByID(otpID)
	if err != nil {
		if err == ErrNotFound {
			return nil, notFoundError("OTP not found")
		}
		return nil, internalError("failed to load OTP", err)
	}

	if o.PatientID != patientID {
		return nil, validationError("invalid patient")
	}

	for i := 0; i < failedAttemptRetryLimit; i++ {
		if o.IsVerified {
			return nil, conflictError("OTP already used")
		}

		nowTs := w.Clock.Now()

		if o.ExpiredAt(nowTs) {
			if !o.IsExpired {
				if err := w.Otps.MarkExpired(o.ID, o.GeneratedAt); err != nil {
					logger.Error("Failed to persist expiry flag", err)
				}
			}
			return nil, expiredError("OTP has expired, request a new one")
		}

		if o.IsBlocked || o.AttemptsExhausted() {
			return nil, lockedError("OTP is blocked due to too many attempts, request a new one")
		}

		if submittedCode == o.Code {
			updated, err := w.Otps.CommitGrant(o.ID, nowTs)
			if err != nil {
				if err == ErrAlreadyVerified {
					return nil, conflictError("OTP already used")
				}
				return nil, internalError("failed to record verification", err)
			}
			return &VerifyResult{
				AssignmentID: updated.AssignmentID,
				VerifiedAt:   *updated.VerifiedAt,
			}, nil
		}

		updated, err := w.Otps.RegisterFailedAttempt(o.ID, o.AttemptsCount, o.GeneratedAt)
		if err == nil {
			remaining := updated.AttemptsRemaining()
			if updated.IsBlocked {
				return nil, &Error{
					Kind:              KindInvalidCode,
					Message:           "invalid OTP, maximum attempts exceeded and OTP is now blocked",
					AttemptsRemaining: &remaining,
				}
			}
			return nil, invalidCodeError(fmt.Sprintf("invalid OTP, %d attempts remaining", remaining), remaining)
		}
		if err != ErrStaleAttempt {
			return nil, internalError("failed to record failed attempt", err)
		}

		// Lost a race with a resend or a concurrent attempt: reload and run
		// the full gate again against fresh state.
		o, err = w.Otps.GetByID(otpID)
		if err != nil {
			return nil, internalError("failed to reload OTP", err)
		}
	}
	return nil, internalError("failed to record failed attempt", ErrStaleAttempt)
}

// StatusByAssignment returns status summaries for every OTP issued against
// an assignment. Read-only.
func (w *Workflow) StatusByAssignment(assignmentID string) ([]StatusSummary, error) {
	otps, err := w.Otps.ListByAssignment(assignmentID)
	if err != nil {
		return nil, internalError("failed to list OTPs", err)
	}
	return w.summarize(otps), nil
}

// StatusByPatient returns status summaries for every OTP issued for a
// patient across assignments. Read-only.
func (w *Workflow) StatusByPatient(patientID string) ([]StatusSummary, error) {
	otps, err := w.Otps.ListByPatient(patientID)
	if err != nil {
		return nil, internalError("failed to list OTPs", err)
	}
	return w.summarize(otps), nil
}

func (w *Workflow) summarize(otps []consentModel.ConsentOtp) []StatusSummary {
	nowTs := w.Clock.Now()
	dayStart := now.New(nowTs).BeginningOfDay()

	summaries := make([]StatusSummary, 0, len(otps))
	for i := range otps {
		o := &otps[i]
		summaries = append(summaries, StatusSummary{
			OtpID:             o.ID,
			AssignmentID:      o.AssignmentID,
			PatientID:         o.PatientID,
			State:             o.State(nowTs),
			Method:            o.Method,
			AttemptsRemaining: o.AttemptsRemaining(),
			ExpiresAt:         o.ExpiresAt,
			SmsSent:           o.SmsSent,
			EmailSent:         o.EmailSent,
			RequestedToday:    !o.GeneratedAt.Before(dayStart),
		})
	}
	return summaries
}

// dispatch sends the code over every channel the OTP's method implies and
// records the per-channel outcome on the row. Failures are logged, never
// propagated: the OTP stays usable and the caller can offer a manual resend.
func (w *Workflow) dispatch(o *consentModel.ConsentOtp) {
	p, err := w.Patients.GetByID(o.PatientID)
	if err != nil {
		logger.Error("Failed to load patient contact details for OTP dispatch", err)
		return
	}

	nowTs := w.Clock.Now()
	changed := false

	if o.Method.WantsSMS() {
		msg := fmt.Sprintf("Your HealthApp consent code is %s. It expires in 15 minutes. Do not share it with anyone.", o.Code)
		if err := w.Dispatcher.SendSMS(p.Phone, msg); err != nil {
			logger.Error("Failed to send consent OTP via SMS", err)
		} else {
			o.SmsSent = true
			o.SmsSentAt = &nowTs
			changed = true
		}
	}

	if o.Method.WantsEmail() {
		if !p.HasEmail() {
			logger.Warning("Patient has no email address, skipping email channel for OTP " + o.ID)
		} else {
			body := consentEmailBody(p, o)
			if err := w.Dispatcher.SendEmail(*p.Email, "Your consent verification code", body); err != nil {
				logger.Error("Failed to send consent OTP via email", err)
			} else {
				o.EmailSent = true
				o.EmailSentAt = &nowTs
				changed = true
			}
		}
	}

	// The flag save is scoped to the dispatch columns of this issue cycle;
	// a verification or resend that landed mid-dispatch stays untouched.
	if changed {
		if err := w.Otps.RecordDispatch(o); err != nil {
			logger.Error("Failed to record OTP dispatch flags", err)
		}
	}
}

func consentEmailBody(p *patientModel.Patient, o *consentModel.ConsentOtp) string {
	return fmt.Sprintf(
		"Dear %s,\n\nYour doctor has requested to share your medical record with another care provider.\n\nYour consent verification code is: %s\n\nThis code will expire in 15 minutes. If you did not expect this request, ignore this email.\n",
		p.Name, o.Code)
}

// authorizeRequester re-validates what the API layer already checked: the
// caller must be the assignment's primary doctor or an admin.
func authorizeRequester(a *assignmentModel.SecondaryAssignment, requesterID string, role constants.Role) error {
	if !role.CanManageConsent() {
		return forbiddenError("caller is not allowed to manage consent")
	}
	if role.IsAdmin() {
		return nil
	}
	if requesterID != a.PrimaryDoctorID {
		return forbiddenError("caller is not the primary doctor for this assignment")
	}
	return nil
}

// validateSecondaryRefs rejects requests whose optional secondary references
// disagree with the assignment. The assignment stays the source of truth.
func validateSecondaryRefs(a *assignmentModel.SecondaryAssignment, secondaryDoctorID, secondaryHspID string) error {
	if secondaryDoctorID != "" {
		if a.SecondaryDoctorID == nil || *a.SecondaryDoctorID != secondaryDoctorID {
			return validationError("secondary doctor does not match assignment")
		}
	}
	if secondaryHspID != "" {
		if a.SecondaryHspID == nil || *a.SecondaryHspID != secondaryHspID {
			return validationError("secondary HSP does not match assignment")
		}
	}
	return nil
}
