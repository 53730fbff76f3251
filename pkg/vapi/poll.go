package vapi

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// ErrProviderTimeout is returned when a call does not reach a terminal
// status within the polling window.
var ErrProviderTimeout = eris.New("vapi: call did not complete within deadline")

// WaitForEnd polls GET /call/{id} until the call reaches a terminal status
// or the deadline elapses. Transient fetch errors during polling are
// tolerated; the next tick retries.
func WaitForEnd(ctx context.Context, c Client, callID string, interval, deadline time.Duration) (*Call, error) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if deadline <= 0 {
		deadline = 90 * time.Second
	}

	timeout := time.NewTimer(deadline)
	defer timeout.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	var lastErr error
	for {
		select {
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), "vapi: wait for call")
		case <-timeout.C:
			if lastErr != nil {
				return nil, eris.Wrap(lastErr, "vapi: polling failed")
			}
			return nil, ErrProviderTimeout
		case <-tick.C:
			call, err := c.GetCall(ctx, callID)
			if err != nil {
				lastErr = err
				continue
			}
			lastErr = nil
			if call.Done() {
				return call, nil
			}
		}
	}
}

// AuditAssistant returns the assistant configuration used for after-hours
// audit calls: a silent listener that navigates IVR menus, hangs up on
// voicemail, and excuses itself if a human answers. Tuned for the cheapest
// model, voice, and transcriber tiers since the agent barely speaks.
func AuditAssistant() AssistantConfig {
	return AssistantConfig{
		Name: "Stealth",
		Model: AssistantModel{
			Provider: "openai",
			Model:    "gpt-3.5-turbo",
			Messages: []Message{{
				Role: "system",
				Content: "Silent listener. Rules:\n" +
					"1. STAY SILENT until human speaks\n" +
					"2. IVR menu: press key for emergency/service/operator. If unsure press 0\n" +
					"3. Voicemail (\"leave message\"/\"beep\"): hang up with endCall\n" +
					"4. Human answers: say \"Sorry wrong number!\" then endCall\n" +
					"5. Never explain why calling",
			}},
			Temperature: 0.1,
			MaxTokens:   50,
		},
		Voice: AssistantVoice{
			Provider: "deepgram",
			VoiceID:  "asteria",
		},
		FirstMessage:          "",
		FirstMessageMode:      "assistant-waits-for-user",
		EndCallFunction:       true,
		DialKeypadFunction:    true,
		SilenceTimeoutSeconds: 15,
		MaxDurationSeconds:    60,
		Transcriber: &Transcriber{
			Provider: "deepgram",
			Model:    "nova-2",
			Language: "en",
		},
		RecordingEnabled: false,
	}
}
