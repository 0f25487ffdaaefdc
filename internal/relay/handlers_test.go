package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHealthHandler verifies the liveness probe's shape.
func TestHealthHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	rr := httptest.NewRecorder()

	HealthHandler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "OK", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

// TestSendMessageHandlerValidation verifies the 400 responses for missing
// fields and malformed bodies, and that nothing is broadcast for them.
func TestSendMessageHandlerValidation(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
	}{
		{
			name:       "missing message",
			method:     http.MethodPost,
			body:       `{"orderId":"42","userId":"u1"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing order id",
			method:     http.MethodPost,
			body:       `{"userId":"u1","message":"hi"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed body",
			method:     http.MethodPost,
			body:       `{not json`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "wrong method",
			method:     http.MethodGet,
			body:       "",
			wantStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := newTestHub(&mockStore{})
			sink := &stubSink{}
			_, err := hub.Join("c1", sink, JoinRequest{OrderID: "42", UserID: "u1"})
			require.NoError(t, err)

			handler := SendMessageHandler(hub, zerolog.Nop())
			req := httptest.NewRequest(tt.method, "/api/send-message", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			handler(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Zero(t, sink.count(), "no broadcast on a rejected request")

			var body map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

// TestSendMessageHandlerSuccess verifies the 200 response shape and that
// the broadcast is observable by a connection joined to the room.
func TestSendMessageHandlerSuccess(t *testing.T) {
	hub := newTestHub(&mockStore{})
	sink := &stubSink{}
	_, err := hub.Join("c1", sink, JoinRequest{OrderID: "42", UserID: "u1"})
	require.NoError(t, err)

	handler := SendMessageHandler(hub, zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/api/send-message",
		strings.NewReader(`{"orderId":"42","userId":"backend","message":"order confirmed"}`))
	rr := httptest.NewRecorder()
	handler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Success bool    `json:"success"`
		Message string  `json:"message"`
		Data    Message `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.NotEmpty(t, body.Message)
	assert.Equal(t, "backend", body.Data.SenderID)
	assert.Equal(t, PlatformServer, body.Data.Platform)
	assert.Equal(t, "order confirmed", body.Data.Payload.Message)

	require.Equal(t, 1, sink.count())
	got := decodeMessage(t, sink.last())
	assert.Equal(t, body.Data.ID, got.ID)
}
