package vapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("test-api-key", WithBaseURL(srv.URL))
	return srv, c
}

func TestCreateCall(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantID     string
		wantErr    bool
		wantAPIErr bool
		wantStatus int
	}{
		{
			name: "happy path",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/call/phone", r.URL.Path)
				assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

				var req CreateCallRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "asst-1", req.AssistantID)
				assert.Equal(t, "+12145550142", req.Customer.Number)

				w.WriteHeader(http.StatusCreated)
				json.NewEncoder(w).Encode(Call{ID: "call-123", Status: StatusQueued})
			},
			wantID: "call-123",
		},
		{
			name: "auth error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"Unauthorized"}`))
			},
			wantErr:    true,
			wantAPIErr: true,
			wantStatus: 401,
		},
		{
			name: "provider error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"error":"telephony unavailable"}`))
			},
			wantErr:    true,
			wantAPIErr: true,
			wantStatus: 503,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c := newTestServer(t, tt.handler)
			resp, err := c.CreateCall(context.Background(), CreateCallRequest{
				AssistantID:   "asst-1",
				PhoneNumberID: "phone-1",
				Customer:      Customer{Number: "+12145550142"},
			})

			if tt.wantErr {
				require.Error(t, err)
				if tt.wantAPIErr {
					var apiErr *APIError
					require.ErrorAs(t, err, &apiErr)
					assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, resp.ID)
		})
	}
}

func TestGetCall(t *testing.T) {
	started := time.Date(2026, 1, 15, 2, 30, 0, 0, time.UTC)
	ended := started.Add(42 * time.Second)

	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/call/call-123", r.URL.Path)
		json.NewEncoder(w).Encode(Call{
			ID:          "call-123",
			Status:      StatusEnded,
			EndedReason: "customer-did-not-answer",
			StartedAt:   &started,
			EndedAt:     &ended,
			Cost:        0.07,
		})
	})

	call, err := c.GetCall(context.Background(), "call-123")
	require.NoError(t, err)
	assert.True(t, call.Done())
	assert.Equal(t, "customer-did-not-answer", call.EndedReason)
	assert.Equal(t, 42, call.DurationSecs())
}

func TestEnsureAssistant_ReusesExisting(t *testing.T) {
	var created atomic.Int32
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/assistant":
			json.NewEncoder(w).Encode([]Assistant{
				{ID: "asst-old", Name: "Stealth"},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/assistant":
			created.Add(1)
			json.NewEncoder(w).Encode(Assistant{ID: "asst-new", Name: "Stealth"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	id, err := c.EnsureAssistant(context.Background(), AuditAssistant())
	require.NoError(t, err)
	assert.Equal(t, "asst-old", id)
	assert.Zero(t, created.Load(), "should not create when one exists")
}

func TestEnsureAssistant_CreatesWhenMissing(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/assistant":
			json.NewEncoder(w).Encode([]Assistant{})
		case r.Method == http.MethodPost && r.URL.Path == "/assistant":
			var cfg AssistantConfig
			require.NoError(t, json.NewDecoder(r.Body).Decode(&cfg))
			assert.Equal(t, "Stealth", cfg.Name)
			json.NewEncoder(w).Encode(Assistant{ID: "asst-new", Name: cfg.Name})
		}
	})

	id, err := c.EnsureAssistant(context.Background(), AuditAssistant())
	require.NoError(t, err)
	assert.Equal(t, "asst-new", id)
}

func TestWaitForEnd_PollsUntilTerminal(t *testing.T) {
	var polls atomic.Int32
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := polls.Add(1)
		call := Call{ID: "call-1", Status: StatusInProgress}
		if n >= 3 {
			call.Status = StatusEnded
			call.EndedReason = "customer-ended-call"
		}
		json.NewEncoder(w).Encode(call)
	})

	call, err := WaitForEnd(context.Background(), c, "call-1", 5*time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, call.Status)
	assert.GreaterOrEqual(t, polls.Load(), int32(3))
}

func TestWaitForEnd_Deadline(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Call{ID: "call-1", Status: StatusRinging})
	})

	_, err := WaitForEnd(context.Background(), c, "call-1", 5*time.Millisecond, 30*time.Millisecond)
	require.ErrorIs(t, err, ErrProviderTimeout)
}

func TestWaitForEnd_ContextCancel(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Call{ID: "call-1", Status: StatusRinging})
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := WaitForEnd(ctx, c, "call-1", 5*time.Millisecond, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}

func TestAPIError_ProviderUnavailable(t *testing.T) {
	assert.ErrorIs(t, &APIError{StatusCode: 503}, ErrProviderUnavailable)
	assert.ErrorIs(t, &APIError{StatusCode: 429}, ErrProviderUnavailable)
	assert.NotErrorIs(t, &APIError{StatusCode: 401}, ErrProviderUnavailable)
}

func TestTranscriptText_FallsBackToMessages(t *testing.T) {
	call := &Call{
		Messages: []Message{
			{Role: "bot", Text: "..."},
			{Role: "user", Content: "You've reached Acme, leave a message after the beep."},
		},
	}
	text := call.TranscriptText()
	assert.Contains(t, text, "leave a message")
	assert.Contains(t, text, "user: ")
}
