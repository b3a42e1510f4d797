package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderRedemption(t *testing.T) {
	msg, err := Render(TemplateRedemption, "ana@example.com", RedemptionData{
		FirstName: "Ana",
		Code:      "ALOHA3-ABCDEF",
		Amount:    "3.50",
		Points:    35,
		ExpiresAt: "01/04/2026",
	})
	require.NoError(t, err)

	assert.Equal(t, "ana@example.com", msg.To)
	assert.Equal(t, TemplateRedemption, msg.Template)
	assert.NotEmpty(t, msg.Subject)
	assert.Contains(t, msg.HTML, "ALOHA3-ABCDEF")
	assert.Contains(t, msg.HTML, "35 points")
}

func TestRenderEscapesInput(t *testing.T) {
	msg, err := Render(TemplateWelcome, "x@example.com", WelcomeData{FirstName: "<script>"})
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Render(Template("nope"), "x@example.com", nil)
	assert.Error(t, err)
}

func TestResendSend(t *testing.T) {
	var got resendEmail
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"id":"e1"}`))
	}))
	defer srv.Close()

	c := NewResendClient(srv.URL, "key", "Aloha <noreply@example.com>", "")
	err := c.Send(context.Background(), Message{To: "ana@example.com", Subject: "hi", HTML: "<p>hi</p>"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ana@example.com"}, got.To)
	assert.Equal(t, "Aloha <noreply@example.com>", got.From)
}

func TestResendSendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"bad from"}`))
	}))
	defer srv.Close()

	c := NewResendClient(srv.URL, "key", "bad", "")
	err := c.Send(context.Background(), Message{To: "ana@example.com"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 422, apiErr.Status)
	assert.Equal(t, "bad from", apiErr.Message)
}

func TestResendAddContact(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audiences/aud/contacts", r.URL.Path)
		calls++
		if calls > 1 {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"statusCode":409,"name":"validation_error","message":"Contact already exists"}`))
			return
		}
		w.Write([]byte(`{"id":"c1"}`))
	}))
	defer srv.Close()

	c := NewResendClient(srv.URL, "key", "from", "aud")
	added, err := c.AddContact(context.Background(), "ana@example.com")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = c.AddContact(context.Background(), "ana@example.com")
	require.NoError(t, err)
	assert.False(t, added)
}

func TestResendAddContactWithoutAudience(t *testing.T) {
	c := NewResendClient("http://unused", "key", "from", "")
	_, err := c.AddContact(context.Background(), "ana@example.com")
	assert.Error(t, err)
}

func TestSMTPSenderHonoursCancelledContext(t *testing.T) {
	s := NewSMTPSender("localhost", 1, "", "", "from@example.com")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, Message{To: "ana@example.com"}), context.Canceled)
}
