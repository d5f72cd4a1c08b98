package routes

import (
	"os"
	"strconv"
	"time"

	"healthapp/constants"
	consentController "healthapp/controllers/consent"
	"healthapp/httpServices/notify"
	"healthapp/logger"
	"healthapp/middleware"
	consentService "healthapp/services/consent"
	"healthapp/storage/gormstore"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupRoutes(app *fiber.App, db *gorm.DB) {
	asyncLogger := logger.NewAsyncLogger(db)
	dispatcher := notify.NewDispatcherFromEnv()
	workflow := consentService.NewWorkflow(
		gormstore.NewOtpStore(db),
		gormstore.NewAssignmentStore(db),
		gormstore.NewPatientStore(db),
		dispatcher,
	)
	consentCtl := consentController.NewConsentController(db, asyncLogger, workflow)

	// Start the async logger processing goroutine
	go asyncLogger.ProcessLog()

	otpLimiter := middleware.NewRateLimiter(otpRateLimit(), time.Minute)

	// Health check route
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "healthapp-consent",
			"status":  "ok",
		})
	})

	/*=============================================================================
	| Consent OTP Routes
	===============================================================================*/
	api := app.Group("/api")
	consentGroup := api.Group("/consent")

	// Only a doctor or an admin may request or resend a consent OTP; the
	// workflow re-validates that the doctor is the assignment's primary.
	manageConsent := middleware.RequireRoles(
		constants.RoleDoctor,
		constants.RoleHospitalAdmin,
		constants.RoleSystemAdmin,
	)

	consentGroup.Post("/request-otp", manageConsent, otpLimiter.Middleware(), consentCtl.RequestOtp)
	consentGroup.Post("/resend-otp", manageConsent, otpLimiter.Middleware(), consentCtl.ResendOtp)
	consentGroup.Post("/verify-otp", middleware.RequireAuthentication(), otpLimiter.Middleware(), consentCtl.VerifyOtp)
	consentGroup.Get("/status", middleware.RequireAuthentication(), consentCtl.GetStatus)
}

// otpRateLimit reads OTP_RATE_LIMIT_PER_MINUTE, defaulting to 10.
func otpRateLimit() int {
	if raw := os.Getenv("OTP_RATE_LIMIT_PER_MINUTE"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return 10
}
