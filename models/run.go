package models

import "time"

// ErrorBucket counts failures of one kind and keeps a few sample messages.
type ErrorBucket struct {
	Count   int      `json:"count"`
	Samples []string `json:"samples,omitempty"`
}

// ErrorSummary maps a failure kind (filtered, not_found, ...) to its bucket.
type ErrorSummary map[string]*ErrorBucket

// Record counts err under kind, keeping up to maxSamples messages.
func (s ErrorSummary) Record(kind, msg string, maxSamples int) {
	b, ok := s[kind]
	if !ok {
		b = &ErrorBucket{}
		s[kind] = b
	}
	b.Count++
	if len(b.Samples) < maxSamples {
		b.Samples = append(b.Samples, msg)
	}
}

// Total returns the number of recorded failures across all kinds.
func (s ErrorSummary) Total() int {
	n := 0
	for _, b := range s {
		n += b.Count
	}
	return n
}

// Run is the full record of one pipeline execution.
type Run struct {
	ID              string            `json:"id"`
	Profile         string            `json:"profile"`
	Scheme          string            `json:"scheme,omitempty"`
	Universe        string            `json:"universe"`
	AsOf            time.Time         `json:"as_of"`
	HorizonDays     int               `json:"horizon_days,omitempty"`
	TopN            int               `json:"top_n"`
	StartedAt       time.Time         `json:"started_at"`
	FinishedAt      time.Time         `json:"finished_at"`
	Screened        int               `json:"screened"`
	Results         []ScreeningResult `json:"results"`
	Rejected        []Rejection       `json:"rejected,omitempty"`
	Outcomes        []ForwardOutcome  `json:"outcomes,omitempty"`
	DiscardOutcomes []ForwardOutcome  `json:"discard_outcomes,omitempty"`
	Errors          ErrorSummary      `json:"errors,omitempty"`
	Stages          map[string]string `json:"stages,omitempty"` // symbol -> final pipeline stage
}
