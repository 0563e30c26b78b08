package commerce

import (
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/freightdesk/internal/shared"
)

// History action labels.
const (
	ActionSent            = "Sent"
	ActionViewed          = "Viewed"
	ActionAccepted        = "Accepted"
	ActionRejected        = "Rejected"
	ActionChangeRequested = "Change requested"
	ActionPaid            = "Paid"
	ActionCancelled       = "Cancelled"
	ActionUpdated         = "Updated"
	ActionOverride        = "Override"
	ActionConverted       = "Converted to Invoice"
	ActionPaymentRecorded = "Payment recorded"
	ActionReminderSent    = "Reminder sent"
)

// HistoryEntry is one immutable record of a document's audit trail.
type HistoryEntry struct {
	ID         uuid.UUID    `json:"id"`
	DocumentID int64        `json:"document_id"`
	Seq        int64        `json:"seq"`
	At         time.Time    `json:"at"`
	Action     string       `json:"action"`
	FromStatus Status       `json:"from_status,omitempty"`
	ToStatus   Status       `json:"to_status,omitempty"`
	Actor      shared.Actor `json:"actor"`
	Details    string       `json:"details,omitempty"`
}

// IsTransition reports whether the entry records a status change.
func (h HistoryEntry) IsTransition() bool {
	return h.FromStatus != "" && h.ToStatus != "" && h.FromStatus != h.ToStatus
}

func newHistoryEntry(doc *Document, at time.Time, action string, actor shared.Actor, details string) HistoryEntry {
	id, err := uuid.NewRandom()
	if err != nil {
		id = uuid.New()
	}
	return HistoryEntry{
		ID:         id,
		DocumentID: doc.ID,
		At:         at,
		Action:     action,
		Actor:      actor,
		Details:    details,
	}
}
