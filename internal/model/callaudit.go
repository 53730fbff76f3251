package model

import "time"

// CallOutcome is the categorical result of one audit call.
type CallOutcome string

const (
	OutcomeHumanAnswered    CallOutcome = "human_answered"
	OutcomeVoicemail        CallOutcome = "voicemail"
	OutcomeNoAnswer         CallOutcome = "no_answer"
	OutcomeBusy             CallOutcome = "busy"
	OutcomeAnsweringService CallOutcome = "answering_service"
	OutcomeProviderError    CallOutcome = "provider_error"
)

// TimeOfDay buckets when an audit call was placed.
type TimeOfDay string

const (
	TimeOfDayMorning   TimeOfDay = "morning"
	TimeOfDayAfternoon TimeOfDay = "afternoon"
	TimeOfDayEvening   TimeOfDay = "evening"
	TimeOfDayLateNight TimeOfDay = "late_night"
)

// BucketTimeOfDay maps a clock time to its audit bucket.
func BucketTimeOfDay(t time.Time) TimeOfDay {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return TimeOfDayMorning
	case h >= 12 && h < 17:
		return TimeOfDayAfternoon
	case h >= 17 && h < 22:
		return TimeOfDayEvening
	default:
		return TimeOfDayLateNight
	}
}

// TranscriptLimit caps how much transcript text is persisted per audit.
const TranscriptLimit = 500

// CallAudit is an immutable record of one call attempt against a lead.
// Audits are append-only; a lead's status is always derivable from its
// audit history plus explicit manual overrides.
type CallAudit struct {
	ID             string      `json:"id"`
	LeadKey        string      `json:"lead_key"`
	AttemptedAt    time.Time   `json:"attempted_at"`
	TimeOfDay      TimeOfDay   `json:"time_of_day"`
	ProviderCallID string      `json:"provider_call_id,omitempty"`
	EndedReason    string      `json:"ended_reason,omitempty"` // raw provider status
	Outcome        CallOutcome `json:"outcome"`
	DurationSecs   int         `json:"duration_secs"`
	Cost           *float64    `json:"cost,omitempty"`
	Transcript     string      `json:"transcript,omitempty"` // capped at TranscriptLimit
	Mock           bool        `json:"mock"`
}
