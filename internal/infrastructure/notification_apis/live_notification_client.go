package notification_apis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// webhookPayload is the chat-webhook compatible message body.
type webhookPayload struct {
	Text string `json:"text"`
}

// LiveNotificationSender posts JSON payloads to a webhook endpoint.
type LiveNotificationSender struct {
	client *http.Client
}

func NewLiveNotificationSender() *LiveNotificationSender {
	return &LiveNotificationSender{
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *LiveNotificationSender) Send(ctx context.Context, message string, endpoint string) error {
	if endpoint == "" {
		return errors.New("no notification endpoint configured")
	}

	body, err := json.Marshal(webhookPayload{Text: message})

	if err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))

	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")

	response, err := s.client.Do(request)

	if err != nil {
		return err
	}

	defer response.Body.Close()

	if response.StatusCode >= 400 {
		return fmt.Errorf("the webhook endpoint returned status %d", response.StatusCode)
	}

	return nil
}
