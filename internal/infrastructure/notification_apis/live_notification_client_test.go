package notification_apis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendPostsWebhookPayload(t *testing.T) {
	var received webhookPayload
	var contentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := NewLiveNotificationSender().Send(context.Background(), "Deployment default/d1 has been patched", server.URL)

	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "Deployment default/d1 has been patched", received.Text)
}

func TestSendErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := NewLiveNotificationSender().Send(context.Background(), "message", server.URL)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestSendEmptyEndpoint(t *testing.T) {
	err := NewLiveNotificationSender().Send(context.Background(), "message", "")

	require.Error(t, err)
}

func TestSendUnreachableEndpoint(t *testing.T) {
	err := NewLiveNotificationSender().Send(context.Background(), "message", "http://127.0.0.1:1")

	require.Error(t, err)
}
