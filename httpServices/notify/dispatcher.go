package notify

import (
	"errors"
	"os"
	"strconv"

	"healthapp/logger"
	"healthapp/utils"
)

// Dispatcher sends consent codes over the configured channels. A channel with
// missing credentials is disabled rather than fatal so the workflow keeps
// functioning and records the failed dispatch on the OTP row.
type Dispatcher struct {
	sms   *SMSClient
	email *EmailSender
}

// NewDispatcherFromEnv builds a dispatcher from SMS_GATEWAY_* and SMTP_*
// environment variables.
func NewDispatcherFromEnv() *Dispatcher {
	d := &Dispatcher{}

	gatewayURL := os.Getenv("SMS_GATEWAY_URL")
	apiKey := os.Getenv("SMS_GATEWAY_API_KEY")
	sender := os.Getenv("SMS_GATEWAY_SENDER")
	if gatewayURL != "" && apiKey != "" {
		d.sms = NewSMSClient(gatewayURL, apiKey, sender)
	} else {
		logger.Warning("SMS gateway not configured, SMS channel disabled")
	}

	host := os.Getenv("SMTP_HOST")
	port, _ := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if host != "" && port != 0 {
		d.email = NewEmailSender(host, port, os.Getenv("SMTP_USERNAME"), os.Getenv("SMTP_PASSWORD"), os.Getenv("SMTP_FROM"))
	} else {
		logger.Warning("SMTP not configured, email channel disabled")
	}

	return d
}

func (d *Dispatcher) SendSMS(phone, message string) error {
	if d.sms == nil {
		return errors.New("SMS channel is not configured")
	}
	if err := d.sms.Send(phone, message); err != nil {
		return err
	}
	logger.Success("Consent SMS sent to " + utils.MaskPhone(phone))
	return nil
}

func (d *Dispatcher) SendEmail(address, subject, body string) error {
	if d.email == nil {
		return errors.New("email channel is not configured")
	}
	if err := d.email.Send(address, subject, body); err != nil {
		return err
	}
	logger.Success("Consent email sent to " + utils.MaskEmail(address))
	return nil
}
