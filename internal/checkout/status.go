// Package checkout implements the per-session checkout status machine and
// its countdown timers.
package checkout

import "errors"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusApproved   Status = "approved"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

var priorities = map[Status]int{
	StatusApproved:   100,
	StatusFailed:     50,
	StatusProcessing: 40,
	StatusExpired:    30,
	StatusPending:    10,
}

// Priority orders checkout statuses; approved outranks everything.
func (s Status) Priority() int {
	return priorities[s]
}

// ErrSessionLocked is returned when a session can no longer be reset.
var ErrSessionLocked = errors.New("checkout session is locked")

// NotificationKind classifies user-visible messages so they can be gated.
type NotificationKind string

const (
	NotifySuccess       NotificationKind = "success"
	NotifyFailure       NotificationKind = "failure"
	NotifyExpiryWarning NotificationKind = "expiry_warning"
	NotifyExpired       NotificationKind = "expired"
	NotifyInfo          NotificationKind = "info"
)

// Notification is a message the checkout surface may show.
type Notification struct {
	Ref     string           `json:"ref"`
	Kind    NotificationKind `json:"kind"`
	Message string           `json:"message"`
}

// Policy decides which re-attempts are allowed after a failure.
type Policy struct {
	AllowFailedToPending    bool
	AllowFailedToProcessing bool
}

// DefaultPolicy allows both kinds of retry.
func DefaultPolicy() Policy {
	return Policy{AllowFailedToPending: true, AllowFailedToProcessing: true}
}
