package caller

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/nightline/internal/model"
	"github.com/sells-group/nightline/pkg/vapi"
)

// DialResult is the raw record of one completed (or failed) audit call,
// before classification.
type DialResult struct {
	ProviderCallID string
	EndedReason    string
	Transcript     string
	DurationSecs   int
	Cost           float64
	Mock           bool
}

// Dialer places one audit call and waits for it to finish.
type Dialer interface {
	Dial(ctx context.Context, lead *model.Lead) (*DialResult, error)
}

// VapiDialer places calls through the Vapi voice agent API.
type VapiDialer struct {
	client        vapi.Client
	phoneNumberID string
	pollInterval  time.Duration
	deadline      time.Duration

	assistantID string
}

// NewVapiDialer creates a dialer bound to a Vapi outbound phone number.
// pollInterval and deadline bound the completion poller; zero values get
// the provider defaults (3s, 90s).
func NewVapiDialer(client vapi.Client, phoneNumberID string, pollInterval, deadline time.Duration) *VapiDialer {
	return &VapiDialer{
		client:        client,
		phoneNumberID: phoneNumberID,
		pollInterval:  pollInterval,
		deadline:      deadline,
	}
}

// WithAssistant pins the dialer to an existing assistant instead of
// creating or reusing one by name on first dial.
func (d *VapiDialer) WithAssistant(id string) *VapiDialer {
	d.assistantID = id
	return d
}

// Dial places a call to the lead's phone number and blocks until the call
// ends or the polling deadline elapses.
func (d *VapiDialer) Dial(ctx context.Context, lead *model.Lead) (*DialResult, error) {
	if lead.Phone == "" {
		return nil, eris.Errorf("caller: lead %s has no phone number", lead.Key)
	}

	if d.assistantID == "" {
		id, err := d.client.EnsureAssistant(ctx, vapi.AuditAssistant())
		if err != nil {
			return nil, err
		}
		d.assistantID = id
	}

	created, err := d.client.CreateCall(ctx, vapi.CreateCallRequest{
		AssistantID:   d.assistantID,
		PhoneNumberID: d.phoneNumberID,
		Customer:      vapi.Customer{Number: lead.Phone},
		Metadata: map[string]string{
			"lead_key":  lead.Key,
			"business":  lead.Name,
			"call_type": "audit",
		},
	})
	if err != nil {
		return nil, err
	}

	call, err := vapi.WaitForEnd(ctx, d.client, created.ID, d.pollInterval, d.deadline)
	if err != nil {
		return nil, err
	}

	return &DialResult{
		ProviderCallID: call.ID,
		EndedReason:    call.EndedReason,
		Transcript:     call.TranscriptText(),
		DurationSecs:   call.DurationSecs(),
		Cost:           call.Cost,
	}, nil
}

// MockDialer synthesizes call results locally without touching the
// provider. The outcome is a deterministic function of the phone number so
// batch runs are reproducible.
type MockDialer struct{}

func (MockDialer) Dial(_ context.Context, lead *model.Lead) (*DialResult, error) {
	kind := digitSum(lead.Phone) % 4

	res := &DialResult{
		ProviderCallID: "mock-" + lead.Key,
		DurationSecs:   20 + 5*kind,
		Mock:           true,
	}
	switch kind {
	case 0:
		res.EndedReason = "customer-did-not-answer"
	case 1:
		res.EndedReason = "customer-ended-call"
		res.Transcript = fmt.Sprintf("assistant: ...\nuser: You've reached %s, please leave a message after the beep.", lead.Name)
	case 2:
		res.EndedReason = "assistant-ended-call"
		res.Transcript = "user: Hello? Who is this?\nassistant: Sorry wrong number!"
	default:
		res.EndedReason = "customer-ended-call"
		res.Transcript = "user: Answering service, how may I help you? Can I get your name and callback number?"
	}
	return res, nil
}

func digitSum(phone string) int {
	var sum int
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			sum += int(r - '0')
		}
	}
	return sum
}
