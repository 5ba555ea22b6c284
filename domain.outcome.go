package main

import "time"

// FetchOutcome is the single result published at the end of a fetch job.
type FetchOutcome string

// Known fetch outcomes. The failure values match the messages historically
// used by the mobile client so they can be mapped to the same user texts.
const (
	OutcomeSuccess        FetchOutcome = "success"
	OutcomeInvalid        FetchOutcome = "invalid"
	OutcomeAlreadyPresent FetchOutcome = "present"
	OutcomeNotFound       FetchOutcome = "not found"
	OutcomeNetworkFailure FetchOutcome = "network"
	OutcomeServerFailure  FetchOutcome = "server"
	OutcomeOtherFailure   FetchOutcome = "other"
)

// AllFetchOutcomes lists every outcome. Used to pre-declare metrics labels.
var AllFetchOutcomes = []FetchOutcome{
	OutcomeSuccess,
	OutcomeInvalid,
	OutcomeAlreadyPresent,
	OutcomeNotFound,
	OutcomeNetworkFailure,
	OutcomeServerFailure,
	OutcomeOtherFailure,
}

// IsFailure reports whether the outcome should be shown as an error.
func (o FetchOutcome) IsFailure() bool {
	return o != OutcomeSuccess && o != OutcomeAlreadyPresent
}

// JobKind identifies the work a queued job requests.
type JobKind string

const (
	JobFetch  JobKind = "fetch"
	JobDelete JobKind = "delete"
)

// Job is a unit of work processed by the single background consumer.
type Job struct {
	ID          string    `json:"id"`
	Kind        JobKind   `json:"kind"`
	ISBN        string    `json:"isbn"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// EventKind identifies the class of a notification.
type EventKind string

const (
	EventFetch  EventKind = "fetch"
	EventDelete EventKind = "delete"
)

// Event is the notification published once a job completes. Outcome and
// Error are only set on fetch events.
type Event struct {
	Kind    EventKind    `json:"kind"`
	JobID   string       `json:"jobId"`
	ISBN    string       `json:"isbn"`
	Outcome FetchOutcome `json:"outcome,omitempty"`
	Error   string       `json:"error,omitempty"`
	At      time.Time    `json:"at"`
}
