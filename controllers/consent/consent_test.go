package consent

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthapp/constants"
	assignmentModel "healthapp/models/assignment"
	consentModel "healthapp/models/consent"
	patientModel "healthapp/models/patient"
	consentService "healthapp/services/consent"
)

// Minimal in-memory stores, just enough to drive the handlers.

type memOtpStore struct {
	otps map[string]consentModel.ConsentOtp
	asgn *memAssignmentStore
}

func (s *memOtpStore) Create(o *consentModel.ConsentOtp) error {
	for _, existing := range s.otps {
		if existing.AssignmentID == o.AssignmentID && !existing.IsVerified {
			return consentService.ErrDuplicateActive
		}
	}
	s.otps[o.ID] = *o
	return nil
}

func (s *memOtpStore) GetByID(id string) (*consentModel.ConsentOtp, error) {
	o, ok := s.otps[id]
	if !ok {
		return nil, consentService.ErrNotFound
	}
	return &o, nil
}

func (s *memOtpStore) Update(o *consentModel.ConsentOtp, eventType string) error {
	stored, ok := s.otps[o.ID]
	if !ok {
		return consentService.ErrNotFound
	}
	if stored.IsVerified {
		return consentService.ErrAlreadyVerified
	}
	s.otps[o.ID] = *o
	return nil
}

func (s *memOtpStore) RecordDispatch(o *consentModel.ConsentOtp) error {
	stored, ok := s.otps[o.ID]
	if !ok {
		return consentService.ErrNotFound
	}
	if stored.IsVerified || !stored.GeneratedAt.Equal(o.GeneratedAt) {
		return nil
	}
	stored.SmsSent = o.SmsSent
	stored.SmsSentAt = o.SmsSentAt
	stored.EmailSent = o.EmailSent
	stored.EmailSentAt = o.EmailSentAt
	s.otps[o.ID] = stored
	return nil
}

func (s *memOtpStore) MarkExpired(id string, generatedAt time.Time) error {
	o, ok := s.otps[id]
	if !ok {
		return consentService.ErrNotFound
	}
	if o.IsVerified || o.IsExpired || !o.GeneratedAt.Equal(generatedAt) {
		return nil
	}
	o.IsExpired = true
	s.otps[id] = o
	return nil
}

func (s *memOtpStore) RegisterFailedAttempt(id string, expectedAttempts int, generatedAt time.Time) (*consentModel.ConsentOtp, error) {
	o, ok := s.otps[id]
	if !ok {
		return nil, consentService.ErrNotFound
	}
	if o.AttemptsCount != expectedAttempts || !o.GeneratedAt.Equal(generatedAt) {
		return nil, consentService.ErrStaleAttempt
	}
	o.RegisterFailure(time.Now())
	s.otps[id] = o
	return &o, nil
}

func (s *memOtpStore) CommitGrant(id string, at time.Time) (*consentModel.ConsentOtp, error) {
	o, ok := s.otps[id]
	if !ok {
		return nil, consentService.ErrNotFound
	}
	if o.IsVerified {
		return nil, consentService.ErrAlreadyVerified
	}
	o.MarkVerified(at)
	s.otps[id] = o

	a := s.asgn.assignments[o.AssignmentID]
	a.Grant(at)
	s.asgn.assignments[o.AssignmentID] = a
	return &o, nil
}

func (s *memOtpStore) ListByAssignment(assignmentID string) ([]consentModel.ConsentOtp, error) {
	var out []consentModel.ConsentOtp
	for _, o := range s.otps {
		if o.AssignmentID == assignmentID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memOtpStore) ListByPatient(patientID string) ([]consentModel.ConsentOtp, error) {
	var out []consentModel.ConsentOtp
	for _, o := range s.otps {
		if o.PatientID == patientID {
			out = append(out, o)
		}
	}
	return out, nil
}

type memAssignmentStore struct {
	assignments map[string]assignmentModel.SecondaryAssignment
}

func (s *memAssignmentStore) GetByID(id string) (*assignmentModel.SecondaryAssignment, error) {
	a, ok := s.assignments[id]
	if !ok {
		return nil, consentService.ErrNotFound
	}
	return &a, nil
}

func (s *memAssignmentStore) Update(a *assignmentModel.SecondaryAssignment) error {
	s.assignments[a.ID] = *a
	return nil
}

type memPatientStore struct {
	patients map[string]patientModel.Patient
}

func (s *memPatientStore) GetByID(id string) (*patientModel.Patient, error) {
	p, ok := s.patients[id]
	if !ok {
		return nil, consentService.ErrNotFound
	}
	return &p, nil
}

type noopDispatcher struct{}

func (noopDispatcher) SendSMS(phone, message string) error { return nil }
func (noopDispatcher) SendEmail(address, subject, body string) error { return nil }

func newTestApp(t *testing.T) (*fiber.App, *memOtpStore) {
	t.Helper()

	asgn := &memAssignmentStore{assignments: map[string]assignmentModel.SecondaryAssignment{
		"a1": {
			ID:              "a1",
			PatientID:       "p1",
			PrimaryDoctorID: "doc1",
			ConsentStatus:   assignmentModel.ConsentStatusPending,
		},
	}}
	otps := &memOtpStore{otps: make(map[string]consentModel.ConsentOtp), asgn: asgn}
	workflow := consentService.NewWorkflow(otps, asgn, &memPatientStore{patients: map[string]patientModel.Patient{
		"p1": {ID: "p1", Name: "Jordan Bright", Phone: "+61400123456"},
	}}, noopDispatcher{})

	ctl := NewConsentController(nil, nil, workflow)

	app := fiber.New()
	// Stand-in for the auth middleware: inject the caller identity directly.
	authed := func(c *fiber.Ctx) error {
		c.Locals("userID", "doc1")
		c.Locals("role", constants.RoleDoctor)
		return c.Next()
	}
	app.Post("/api/consent/request-otp", authed, ctl.RequestOtp)
	app.Post("/api/consent/resend-otp", authed, ctl.ResendOtp)
	app.Post("/api/consent/verify-otp", authed, ctl.VerifyOtp)
	app.Get("/api/consent/status", authed, ctl.GetStatus)

	return app, otps
}

func postJSON(t *testing.T, app *fiber.App, path string, payload map[string]interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return resp, decoded
}

func requestOtp(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp, body := postJSON(t, app, "/api/consent/request-otp", map[string]interface{}{
		"assignment_id": "a1",
		"patient_id":    "p1",
		"method":        "SMS",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	return data["otp_id"].(string)
}

func TestRequestOtpEndpoint(t *testing.T) {
	app, otps := newTestApp(t)

	otpID := requestOtp(t, app)
	stored, err := otps.GetByID(otpID)
	require.NoError(t, err)
	assert.Equal(t, "a1", stored.AssignmentID)
	assert.True(t, stored.SmsSent)
}

func TestRequestOtpEndpointRejectsMissingFields(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := postJSON(t, app, "/api/consent/request-otp", map[string]interface{}{
		"assignment_id": "a1",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVerifyOtpEndpointSuccess(t *testing.T) {
	app, otps := newTestApp(t)
	otpID := requestOtp(t, app)
	stored, _ := otps.GetByID(otpID)

	resp, body := postJSON(t, app, "/api/consent/verify-otp", map[string]interface{}{
		"otp_id":     otpID,
		"patient_id": "p1",
		"otp_code":   stored.Code,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "a1", data["assignment_id"])
	assert.NotEmpty(t, data["verified_at"])
}

func TestVerifyOtpEndpointWrongCode(t *testing.T) {
	app, _ := newTestApp(t)
	otpID := requestOtp(t, app)

	resp, body := postJSON(t, app, "/api/consent/verify-otp", map[string]interface{}{
		"otp_id":     otpID,
		"patient_id": "p1",
		"otp_code":   "000000",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["remaining_attempts"])
	assert.Equal(t, false, data["is_blocked"])
}

func TestVerifyOtpEndpointLocked(t *testing.T) {
	app, _ := newTestApp(t)
	otpID := requestOtp(t, app)

	for i := 0; i < 3; i++ {
		postJSON(t, app, "/api/consent/verify-otp", map[string]interface{}{
			"otp_id":     otpID,
			"patient_id": "p1",
			"otp_code":   "000000",
		})
	}

	resp, _ := postJSON(t, app, "/api/consent/verify-otp", map[string]interface{}{
		"otp_id":     otpID,
		"patient_id": "p1",
		"otp_code":   "000000",
	})
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
}

func TestVerifyOtpEndpointUnknownOtp(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := postJSON(t, app, "/api/consent/verify-otp", map[string]interface{}{
		"otp_id":     "missing",
		"patient_id": "p1",
		"otp_code":   "000000",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResendOtpEndpoint(t *testing.T) {
	app, otps := newTestApp(t)
	otpID := requestOtp(t, app)
	before, _ := otps.GetByID(otpID)

	resp, body := postJSON(t, app, "/api/consent/resend-otp", map[string]interface{}{
		"otp_id":     otpID,
		"patient_id": "p1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, otpID, data["otp_id"])

	after, _ := otps.GetByID(otpID)
	assert.NotEqual(t, before.Code, after.Code)
}

func TestStatusEndpointRequiresFilter(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/consent/status", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusEndpointByAssignment(t *testing.T) {
	app, _ := newTestApp(t)
	otpID := requestOtp(t, app)

	req := httptest.NewRequest(http.MethodGet, "/api/consent/status?assignment_id=a1", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))

	items := body["data"].([]interface{})
	require.Len(t, items, 1)
	first := items[0].(map[string]interface{})
	assert.Equal(t, otpID, first["otp_id"])
	assert.Equal(t, "pending", first["state"])
}
