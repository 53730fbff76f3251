// Package vapi is a client for the Vapi.ai voice agent API, covering the
// assistant and outbound phone call endpoints used for audit calls.
package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Default base URL for the Vapi API.
const defaultBaseURL = "https://api.vapi.ai"

// Call statuses reported by GET /call/{id}.
const (
	StatusQueued     = "queued"
	StatusRinging    = "ringing"
	StatusInProgress = "in-progress"
	StatusEnded      = "ended"
	StatusFailed     = "failed"
)

// Client defines the Vapi API operations.
type Client interface {
	EnsureAssistant(ctx context.Context, cfg AssistantConfig) (string, error)
	CreateCall(ctx context.Context, req CreateCallRequest) (*Call, error)
	GetCall(ctx context.Context, id string) (*Call, error)
}

// AssistantConfig is the body for POST /assistant.
type AssistantConfig struct {
	Name                  string         `json:"name"`
	Model                 AssistantModel `json:"model"`
	Voice                 AssistantVoice `json:"voice"`
	FirstMessage          string         `json:"firstMessage"`
	FirstMessageMode      string         `json:"firstMessageMode,omitempty"`
	EndCallFunction       bool           `json:"endCallFunctionEnabled"`
	DialKeypadFunction    bool           `json:"dialKeypadFunctionEnabled"`
	SilenceTimeoutSeconds int            `json:"silenceTimeoutSeconds,omitempty"`
	MaxDurationSeconds    int            `json:"maxDurationSeconds,omitempty"`
	Transcriber           *Transcriber   `json:"transcriber,omitempty"`
	RecordingEnabled      bool           `json:"recordingEnabled"`
}

// AssistantModel selects the LLM backing the assistant.
type AssistantModel struct {
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Messages    []Message `json:"messages,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"maxTokens,omitempty"`
}

// AssistantVoice selects the TTS voice.
type AssistantVoice struct {
	Provider string `json:"provider"`
	VoiceID  string `json:"voiceId"`
}

// Transcriber selects the STT engine.
type Transcriber struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"`
}

// Message is one turn in a conversation or system prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
	// Some call transcripts use "message" instead of "content".
	Text string `json:"message,omitempty"`
}

// Body returns whichever content field is populated.
func (m Message) Body() string {
	if m.Content != "" {
		return m.Content
	}
	return m.Text
}

// Assistant is the response from the assistant endpoints.
type Assistant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateCallRequest is the body for POST /call/phone.
type CreateCallRequest struct {
	AssistantID   string            `json:"assistantId"`
	PhoneNumberID string            `json:"phoneNumberId"`
	Customer      Customer          `json:"customer"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Customer identifies the callee.
type Customer struct {
	Number string `json:"number"`
}

// Call is the response from the call endpoints.
type Call struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	EndedReason  string     `json:"endedReason,omitempty"`
	Transcript   string     `json:"transcript,omitempty"`
	Messages     []Message  `json:"messages,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
	Cost         float64    `json:"cost,omitempty"`
	RecordingURL string     `json:"recordingUrl,omitempty"`
}

// Done reports whether the call reached a terminal status.
func (c *Call) Done() bool {
	return c.Status == StatusEnded || c.Status == StatusFailed
}

// DurationSecs returns the call length in whole seconds, 0 when unknown.
func (c *Call) DurationSecs() int {
	if c.StartedAt == nil || c.EndedAt == nil {
		return 0
	}
	d := c.EndedAt.Sub(*c.StartedAt)
	if d < 0 {
		return 0
	}
	return int(d.Seconds())
}

// TranscriptText returns the flat transcript, falling back to joining the
// per-turn messages when the provider omits the combined field.
func (c *Call) TranscriptText() string {
	if c.Transcript != "" {
		return c.Transcript
	}
	var b strings.Builder
	for _, m := range c.Messages {
		body := m.Body()
		if body == "" {
			continue
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(body)
		b.WriteString("\n")
	}
	return b.String()
}

// ErrProviderUnavailable matches APIErrors whose status indicates the voice
// provider itself is down or shedding load (429 or any 5xx). Use with
// errors.Is; these are the faults that count toward the overnight breaker.
var ErrProviderUnavailable = eris.New("vapi: provider unavailable")

// APIError is returned when Vapi responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vapi: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Is(target error) bool {
	return target == ErrProviderUnavailable &&
		(e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Vapi client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureAssistant returns the ID of an existing assistant with the same
// name, creating one when none exists. Reusing the assistant keeps call
// setup cheap and avoids accumulating duplicates on the account.
func (c *httpClient) EnsureAssistant(ctx context.Context, cfg AssistantConfig) (string, error) {
	var existing []Assistant
	if err := c.get(ctx, "/assistant", &existing); err != nil {
		return "", eris.Wrap(err, "vapi: list assistants")
	}
	for _, a := range existing {
		if a.Name == cfg.Name {
			return a.ID, nil
		}
	}

	var created Assistant
	if err := c.post(ctx, "/assistant", cfg, &created); err != nil {
		return "", eris.Wrap(err, "vapi: create assistant")
	}
	return created.ID, nil
}

func (c *httpClient) CreateCall(ctx context.Context, req CreateCallRequest) (*Call, error) {
	var resp Call
	if err := c.post(ctx, "/call/phone", req, &resp); err != nil {
		return nil, eris.Wrap(err, "vapi: create call")
	}
	return &resp, nil
}

func (c *httpClient) GetCall(ctx context.Context, id string) (*Call, error) {
	var resp Call
	if err := c.get(ctx, "/call/"+id, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("vapi: get call %s", id))
	}
	return &resp, nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, out)
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return eris.Wrap(err, "unmarshal response")
		}
	}
	return nil
}
