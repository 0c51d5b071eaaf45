package domain

import "strings"

// POStatus is the lifecycle state of a purchase order.
type POStatus string

const (
	POStatusDraft     POStatus = "draft"
	POStatusSent      POStatus = "sent"
	POStatusReceived  POStatus = "received"
	POStatusCancelled POStatus = "cancelled"
)

var poStatusLabels = map[POStatus]string{
	POStatusDraft:     "Draft",
	POStatusSent:      "Sent",
	POStatusReceived:  "Received",
	POStatusCancelled: "Cancelled",
}

// "approved" is accepted as an alias of sent: approval is what sends the order.
var poStatusAliases = map[string]POStatus{
	"draft":     POStatusDraft,
	"sent":      POStatusSent,
	"approved":  POStatusSent,
	"received":  POStatusReceived,
	"cancelled": POStatusCancelled,
	"canceled":  POStatusCancelled,
}

// Label returns a human-readable label for the status.
func (s POStatus) Label() string {
	if label, ok := poStatusLabels[s]; ok {
		return label
	}

	return "Unknown"
}

// Terminal reports whether no further transition is allowed from s.
func (s POStatus) Terminal() bool {
	return s == POStatusReceived || s == POStatusCancelled
}

// Open reports whether the order still represents stock on its way.
func (s POStatus) Open() bool {
	return s == POStatusDraft || s == POStatusSent
}

// ParsePOStatus returns the status for a given label (case-insensitive).
func ParsePOStatus(label string) (POStatus, bool) {
	status, ok := poStatusAliases[strings.ToLower(strings.TrimSpace(label))]

	return status, ok
}
