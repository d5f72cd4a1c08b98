package consent

import (
	"strings"
	"time"

	"healthapp/constants"
	"healthapp/logger"
	"healthapp/middleware"
	consentModel "healthapp/models/consent"
	consentService "healthapp/services/consent"
	"healthapp/types"
	consentTypes "healthapp/types/consent"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const timeLayout = "2006-01-02 15:04:05"

// Controller handles consent OTP HTTP requests.
type Controller struct {
	DB       *gorm.DB
	Logger   *logger.AsyncLogger
	Workflow *consentService.Workflow
}

// NewConsentController creates a new consent controller.
func NewConsentController(db *gorm.DB, asyncLogger *logger.AsyncLogger, workflow *consentService.Workflow) *Controller {
	return &Controller{
		DB:       db,
		Logger:   asyncLogger,
		Workflow: workflow,
	}
}

// RequestOtp issues a fresh consent OTP for a secondary assignment.
func (cc *Controller) RequestOtp(c *fiber.Ctx) error {
	var req consentTypes.RequestOtpRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", err)
		return badRequest(c, "Invalid request body")
	}
	if req.AssignmentID == "" || req.PatientID == "" || req.Method == "" {
		return badRequest(c, "assignment_id, patient_id and method are required")
	}

	requesterID, role, ok := callerIdentity(c)
	if !ok {
		return unauthorized(c)
	}

	result, err := cc.Workflow.RequestOtp(consentService.RequestOtpInput{
		AssignmentID:      req.AssignmentID,
		PatientID:         req.PatientID,
		SecondaryDoctorID: req.SecondaryDoctorID,
		SecondaryHspID:    req.SecondaryHspID,
		Method:            deliveryMethod(req.Method),
		RequesterID:       requesterID,
		RequesterRole:     role,
		RequestIP:         c.IP(),
		RequestUserAgent:  c.Get("User-Agent"),
	})
	if err != nil {
		return cc.respondError(c, err, "Failed to request consent OTP")
	}

	cc.audit(c, requesterID, fiber.StatusOK)
	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Consent OTP sent to patient",
		Data:    issuedResponse(result),
	})
}

// ResendOtp regenerates the code on an existing OTP, clearing any block.
func (cc *Controller) ResendOtp(c *fiber.Ctx) error {
	var req consentTypes.ResendOtpRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", err)
		return badRequest(c, "Invalid request body")
	}
	if req.OtpID == "" || req.PatientID == "" {
		return badRequest(c, "otp_id and patient_id are required")
	}

	requesterID, role, ok := callerIdentity(c)
	if !ok {
		return unauthorized(c)
	}

	result, err := cc.Workflow.ResendOtp(req.OtpID, req.PatientID, requesterID, role)
	if err != nil {
		return cc.respondError(c, err, "Failed to resend consent OTP")
	}

	cc.audit(c, requesterID, fiber.StatusOK)
	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Consent OTP resent to patient",
		Data:    issuedResponse(result),
	})
}

// VerifyOtp checks a submitted consent code and, on success, reports the
// granted assignment.
func (cc *Controller) VerifyOtp(c *fiber.Ctx) error {
	var req consentTypes.VerifyOtpRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", err)
		return badRequest(c, "Invalid request body")
	}
	if req.OtpID == "" || req.PatientID == "" || req.OtpCode == "" {
		return badRequest(c, "otp_id, patient_id and otp_code are required")
	}

	requesterID, _, ok := callerIdentity(c)
	if !ok {
		return unauthorized(c)
	}

	result, err := cc.Workflow.VerifyOtp(req.OtpID, req.PatientID, req.OtpCode)
	if err != nil {
		return cc.respondError(c, err, "Failed to verify consent OTP")
	}

	cc.audit(c, requesterID, fiber.StatusOK)
	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Consent verified, access granted",
		Data: consentTypes.OtpVerifiedResponse{
			AssignmentID: result.AssignmentID,
			VerifiedAt:   result.VerifiedAt.Format(timeLayout),
		},
	})
}

// GetStatus returns read-only OTP status summaries for an assignment or a
// patient.
func (cc *Controller) GetStatus(c *fiber.Ctx) error {
	assignmentID := c.Query("assignment_id")
	patientID := c.Query("patient_id")
	if assignmentID == "" && patientID == "" {
		return badRequest(c, "assignment_id or patient_id is required")
	}

	var (
		summaries []consentService.StatusSummary
		err       error
	)
	if assignmentID != "" {
		summaries, err = cc.Workflow.StatusByAssignment(assignmentID)
	} else {
		summaries, err = cc.Workflow.StatusByPatient(patientID)
	}
	if err != nil {
		return cc.respondError(c, err, "Failed to load consent OTP status")
	}

	data := make([]consentTypes.OtpStatusSummary, 0, len(summaries))
	for _, s := range summaries {
		data = append(data, consentTypes.OtpStatusSummary{
			OtpID:             s.OtpID,
			AssignmentID:      s.AssignmentID,
			PatientID:         s.PatientID,
			State:             s.State,
			Method:            string(s.Method),
			AttemptsRemaining: s.AttemptsRemaining,
			ExpiresAt:         s.ExpiresAt.Format(timeLayout),
			SmsSent:           s.SmsSent,
			EmailSent:         s.EmailSent,
			RequestedToday:    s.RequestedToday,
		})
	}

	return c.Status(fiber.StatusOK).JSON(types.ApiResponse{
		Status:  fiber.StatusOK,
		Message: "Consent OTP status",
		Data:    data,
	})
}

// respondError maps workflow error kinds onto HTTP statuses with enough
// structured detail for a specific user-facing message.
func (cc *Controller) respondError(c *fiber.Ctx, err error, logMessage string) error {
	we, ok := consentService.AsError(err)
	if !ok {
		logger.Error(logMessage, err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ApiResponse{
			Status:  fiber.StatusInternalServerError,
			Message: "Internal server error",
		})
	}

	status := statusForKind(we.Kind)
	if we.Kind == consentService.KindInternal {
		logger.Error(logMessage, err)
		return c.Status(status).JSON(types.ApiResponse{
			Status:  status,
			Message: "Internal server error",
		})
	}

	resp := types.ApiResponse{
		Status:  status,
		Message: we.Message,
	}
	if we.Kind == consentService.KindInvalidCode || we.Kind == consentService.KindLocked {
		blocked := we.Kind == consentService.KindLocked ||
			(we.AttemptsRemaining != nil && *we.AttemptsRemaining == 0)
		resp.Data = consentTypes.OtpFailureResponse{
			Message:           we.Message,
			RemainingAttempts: we.AttemptsRemaining,
			IsBlocked:         &blocked,
		}
	}
	return c.Status(status).JSON(resp)
}

func statusForKind(kind consentService.ErrorKind) int {
	switch kind {
	case consentService.KindNotFound:
		return fiber.StatusNotFound
	case consentService.KindForbidden:
		return fiber.StatusForbidden
	case consentService.KindValidation:
		return fiber.StatusBadRequest
	case consentService.KindConflict:
		return fiber.StatusConflict
	case consentService.KindExpired:
		return fiber.StatusBadRequest
	case consentService.KindLocked:
		return fiber.StatusLocked
	case consentService.KindInvalidCode:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func issuedResponse(result *consentService.IssueResult) consentTypes.OtpIssuedResponse {
	return consentTypes.OtpIssuedResponse{
		OtpID:     result.OtpID,
		ExpiresAt: result.ExpiresAt.Format(timeLayout),
		Method:    string(result.Method),
		SmsSent:   result.SmsSent,
		EmailSent: result.EmailSent,
	}
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(types.ApiResponse{
		Status:  fiber.StatusBadRequest,
		Message: message,
	})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(types.ApiResponse{
		Status:  fiber.StatusUnauthorized,
		Message: "Invalid user claims",
	})
}

func callerIdentity(c *fiber.Ctx) (string, constants.Role, bool) {
	return middleware.CallerIdentity(c)
}

func deliveryMethod(raw string) consentModel.DeliveryMethod {
	return consentModel.DeliveryMethod(strings.ToUpper(raw))
}

// audit feeds the async request logger; dropped silently when no logger is
// wired (tests).
func (cc *Controller) audit(c *fiber.Ctx, actorID string, status int) {
	if cc.Logger == nil {
		return
	}
	cc.Logger.Log(types.LogEntry{
		Method:     c.Method(),
		URL:        c.OriginalURL(),
		ActorID:    actorID,
		StatusCode: status,
		CreatedAt:  time.Now(),
	})
}
