package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// SMSClient talks to the SMS gateway over HTTP. The timeout bounds the call
// so a slow gateway can never hold up a consent operation.
type SMSClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	sender     string
}

func NewSMSClient(baseURL, apiKey, sender string) *SMSClient {
	return &SMSClient{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
		sender:  sender,
	}
}

type smsRequest struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Message string `json:"message"`
}

type smsResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Send delivers one SMS through the gateway.
func (c *SMSClient) Send(phone, message string) error {
	body, err := json.Marshal(smsRequest{
		To:      phone,
		From:    c.sender,
		Message: message,
	})
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequest("POST", c.baseURL+"/v1/sms/send", bytes.NewBuffer(body))
	if err != nil {
		return err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return errors.New("SMS gateway returned non-OK status: " + resp.Status)
	}

	var apiResp smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return err
	}
	if apiResp.Status != "" && apiResp.Status != "sent" && apiResp.Status != "queued" {
		return fmt.Errorf("SMS gateway rejected message: %s", apiResp.Message)
	}

	return nil
}
