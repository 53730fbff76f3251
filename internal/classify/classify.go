// Package classify turns raw call results (provider ended reason, transcript,
// duration) into a categorical outcome and a lead qualification decision.
package classify

import (
	"strings"

	"github.com/sells-group/nightline/internal/model"
)

// Priority controls which signal wins when the provider's ended reason and
// the transcript disagree.
type Priority string

const (
	// PriorityStatus trusts the telephony-level ended reason first and only
	// falls back to transcript analysis when the reason is inconclusive.
	PriorityStatus Priority = "status-first"
	// PriorityTranscript inspects the transcript first and uses the ended
	// reason as a tiebreaker.
	PriorityTranscript Priority = "transcript-first"
)

// Phrase lists matched case-insensitively against the transcript. Tuned
// against recordings of real after-hours calls.
var (
	voicemailPhrases = []string{
		"leave a message", "leave your message", "after the tone",
		"after the beep", "not available", "can't come to the phone",
		"voicemail", "mailbox", "record your message", "please leave",
		"at the tone", "currently unavailable",
	}
	servicePhrases = []string{
		"how may i help", "how can i help", "what is your emergency",
		"can i get your name", "may i have your", "what's the address",
		"answering service", "after hours service", "on-call",
		"let me dispatch", "i'll page", "callback number",
		"this call may be recorded", "may be monitored",
	}
	ivrPhrases = []string{
		"press 1", "press 2", "press one", "press two",
		"dial 0", "for sales", "for service", "for emergencies",
		"main menu", "please select", "extension",
	}
	humanPhrases = []string{
		"wrong number", "no problem", "have a good", "you too",
		"can i help you", "what do you need", "who is this",
		"hello", "hi there", "good evening",
	}
)

// Provider ended reasons that map directly to an outcome without looking at
// the transcript.
const (
	reasonNoAnswer     = "customer-did-not-answer"
	reasonBusy         = "customer-busy"
	reasonSilence      = "silence-timed-out"
	reasonNoSpeech     = "assistant-did-not-speak"
	shortCallSecs      = 10
	silentTranscriptCh = 50
)

// Result carries the classified outcome plus how it was reached.
type Result struct {
	Outcome    model.CallOutcome
	Confidence string // high, medium, low
	Reason     string // short human-readable explanation for audit rows
}

// Classifier maps completed calls to outcomes.
type Classifier struct {
	priority Priority
}

// New returns a Classifier. An unrecognized priority falls back to
// status-first.
func New(p Priority) *Classifier {
	if p != PriorityStatus && p != PriorityTranscript {
		p = PriorityStatus
	}
	return &Classifier{priority: p}
}

// Classify determines what answered the call.
func (c *Classifier) Classify(endedReason, transcript string, durationSecs int) Result {
	if c.priority == PriorityTranscript {
		if r, ok := fromTranscript(transcript); ok {
			return r
		}
		if r, ok := fromReason(endedReason, transcript); ok {
			return r
		}
	} else {
		if r, ok := fromReason(endedReason, transcript); ok {
			return r
		}
		if r, ok := fromTranscript(transcript); ok {
			return r
		}
	}

	if durationSecs > 0 && durationSecs < shortCallSecs {
		return Result{
			Outcome:    model.OutcomeNoAnswer,
			Confidence: "high",
			Reason:     "call ended before anything answered",
		}
	}

	return Result{
		Outcome:    model.OutcomeHumanAnswered,
		Confidence: "low",
		Reason:     "inconclusive, assuming answered for manual review",
	}
}

func fromReason(endedReason, transcript string) (Result, bool) {
	switch endedReason {
	case reasonNoAnswer:
		return Result{model.OutcomeNoAnswer, "high", "ring with no pickup"}, true
	case reasonBusy:
		return Result{model.OutcomeBusy, "high", "line busy"}, true
	case reasonSilence, reasonNoSpeech:
		// Silence timeouts with an essentially empty transcript mean the
		// line picked up but nothing spoke, i.e. a dead voicemail box.
		if len(strings.TrimSpace(transcript)) < silentTranscriptCh {
			return Result{model.OutcomeVoicemail, "high", "silent pickup, no speech"}, true
		}
	}
	return Result{}, false
}

func fromTranscript(transcript string) (Result, bool) {
	t := strings.ToLower(transcript)
	if t == "" {
		return Result{}, false
	}

	service := containsAny(t, servicePhrases)
	voicemail := containsAny(t, voicemailPhrases)
	ivr := containsAny(t, ivrPhrases)
	human := containsAny(t, humanPhrases)

	// Voicemail greetings win over service phrases; a recorded greeting
	// can mention the service it fronts for. Answering services greet
	// like humans, so check them before the human phrases.
	switch {
	case voicemail:
		return Result{model.OutcomeVoicemail, "high", "voicemail greeting"}, true
	case service:
		return Result{model.OutcomeAnsweringService, "high", "live answering service greeting"}, true
	case human && !ivr:
		return Result{model.OutcomeHumanAnswered, "high", "live human conversation"}, true
	case ivr && !human:
		return Result{model.OutcomeNoAnswer, "medium", "IVR menu with no human pickup"}, true
	}
	return Result{}, false
}

func containsAny(haystack string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(haystack, p) {
			return true
		}
	}
	return false
}

// Qualified reports whether the classified outcome makes a lead worth
// selling to: the business advertises round-the-clock availability but the
// audit call reached no live person. Provider errors never qualify or
// disqualify, the call simply did not happen.
func Qualified(outcome model.CallOutcome, claims247 bool) bool {
	if !claims247 {
		return false
	}
	switch outcome {
	case model.OutcomeVoicemail, model.OutcomeNoAnswer:
		return true
	}
	return false
}

// NextStatus maps a classified outcome to the lead's next lifecycle state.
// Provider errors keep the lead in called so a later run can retry it.
func NextStatus(outcome model.CallOutcome, claims247 bool) model.LeadStatus {
	if outcome == model.OutcomeProviderError {
		return model.LeadStatusCalled
	}
	if Qualified(outcome, claims247) {
		return model.LeadStatusQualified
	}
	return model.LeadStatusDisqualified
}
