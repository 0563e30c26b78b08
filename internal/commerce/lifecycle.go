package commerce

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/freightdesk/internal/shared"
)

// ErrAlreadyProcessed is returned when a decision targets a document that already
// reached a terminal status. It matches shared.ErrInvalidState with errors.Is.
var ErrAlreadyProcessed = shared.ErrAlreadyProcessed

type alreadyProcessedError struct {
	status Status
}

func (e alreadyProcessedError) Error() string {
	return fmt.Sprintf("%s: status %s is final", ErrAlreadyProcessed, e.status)
}

func (e alreadyProcessedError) Is(target error) bool {
	return target == ErrAlreadyProcessed || target == shared.ErrInvalidState
}

// guard vets a transition against the document content.
type guard func(doc *Document) error

// Machine is the transition table of one document kind.
type Machine struct {
	kind        Kind
	transitions map[Status]map[Status]guard
	terminal    map[Status]bool
}

var (
	quoteMachine = Machine{
		kind: KindQuote,
		transitions: map[Status]map[Status]guard{
			StatusDraft: {
				StatusSent:            nil,
				StatusAccepted:        nil,
				StatusRejected:        nil,
				StatusChangeRequested: nil,
			},
			StatusSent: {
				StatusViewed:          nil,
				StatusAccepted:        nil,
				StatusRejected:        nil,
				StatusChangeRequested: nil,
			},
			StatusViewed: {
				StatusAccepted:        nil,
				StatusRejected:        nil,
				StatusChangeRequested: nil,
			},
			StatusChangeRequested: {
				StatusSent:     nil,
				StatusAccepted: nil,
				StatusRejected: nil,
			},
		},
		terminal: map[Status]bool{StatusAccepted: true, StatusRejected: true},
	}

	invoiceMachine = Machine{
		kind: KindInvoice,
		transitions: map[Status]map[Status]guard{
			StatusDraft: {
				StatusSent:      nil,
				StatusPaid:      requireSettled,
				StatusCancelled: nil,
			},
			StatusSent: {
				StatusViewed:    nil,
				StatusPaid:      requireSettled,
				StatusCancelled: nil,
			},
			StatusViewed: {
				StatusPaid:      requireSettled,
				StatusCancelled: nil,
			},
		},
		terminal: map[Status]bool{StatusPaid: true, StatusCancelled: true},
	}
)

func machineFor(kind Kind) Machine {
	if kind == KindInvoice {
		return invoiceMachine
	}
	return quoteMachine
}

func requireSettled(doc *Document) error {
	if doc.AmountPaid.LessThan(doc.TotalTTC) {
		return fmt.Errorf("%w: amount paid %s is below total %s", shared.ErrInvalidState, doc.AmountPaid.StringFixed(2), doc.TotalTTC.StringFixed(2))
	}
	return nil
}

// Terminal reports whether status ends the lifecycle.
func (m Machine) Terminal(status Status) bool {
	return m.terminal[status]
}

// Known reports whether status belongs to this kind.
func (m Machine) Known(status Status) bool {
	if m.terminal[status] {
		return true
	}
	_, ok := m.transitions[status]
	return ok
}

// Allowed lists the statuses reachable from the current one.
func (m Machine) Allowed(from Status) []Status {
	targets := make([]Status, 0, len(m.transitions[from]))
	for _, to := range statusOrder {
		if _, ok := m.transitions[from][to]; ok {
			targets = append(targets, to)
		}
	}
	return targets
}

// Check validates moving doc to the target status.
func (m Machine) Check(doc *Document, to Status) error {
	if m.terminal[doc.Status] {
		return alreadyProcessedError{status: doc.Status}
	}
	if !m.Known(to) {
		return fmt.Errorf("%w: %s is not a %s status", shared.ErrInvalidState, to, m.kind)
	}
	targets, ok := m.transitions[doc.Status]
	if !ok {
		return fmt.Errorf("%w: unknown %s status %s", shared.ErrInvalidState, m.kind, doc.Status)
	}
	g, ok := targets[to]
	if !ok {
		return fmt.Errorf("%w: %s cannot move from %s to %s", shared.ErrInvalidState, m.kind, doc.Status, to)
	}
	if g != nil {
		return g(doc)
	}
	return nil
}

var statusOrder = []Status{
	StatusDraft,
	StatusSent,
	StatusViewed,
	StatusChangeRequested,
	StatusAccepted,
	StatusRejected,
	StatusPaid,
	StatusCancelled,
}

// stamp sets the date field tied to the status the document just entered.
// First-send and first-view dates are kept once set.
func stamp(doc *Document, to Status, now time.Time) {
	at := now
	switch to {
	case StatusSent:
		if doc.DateSent == nil {
			doc.DateSent = &at
		}
	case StatusViewed:
		if doc.DateViewed == nil {
			doc.DateViewed = &at
		}
	case StatusAccepted:
		doc.DateAccepted = &at
	case StatusRejected:
		doc.DateRejected = &at
	case StatusPaid:
		doc.DatePaid = &at
	case StatusCancelled:
		doc.DateCancelled = &at
	}
}

// actionFor returns the history label of a transition.
func actionFor(to Status) string {
	switch to {
	case StatusSent:
		return ActionSent
	case StatusViewed:
		return ActionViewed
	case StatusAccepted:
		return ActionAccepted
	case StatusRejected:
		return ActionRejected
	case StatusChangeRequested:
		return ActionChangeRequested
	case StatusPaid:
		return ActionPaid
	case StatusCancelled:
		return ActionCancelled
	}
	return string(to)
}
