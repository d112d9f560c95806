// Package ledger tracks accepted funding transactions and their dispute
// life-cycle.
package ledger

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Aidin1998/payments_engine/pkg/models"
)

var (
	// ErrDuplicateTransaction rejects a transaction id that was already recorded
	ErrDuplicateTransaction = errors.New("duplicate transaction id")
	// ErrInvalidDisputeReference rejects a dispute that matches no disputable entry
	ErrInvalidDisputeReference = errors.New("invalid dispute reference")
	// ErrInvalidResolveReference rejects a resolve that matches no disputed entry
	ErrInvalidResolveReference = errors.New("invalid resolve reference")
	// ErrInvalidChargebackReference rejects a chargeback that matches no disputed entry
	ErrInvalidChargebackReference = errors.New("invalid chargeback reference")
)

// DisputeState tracks where an entry sits in the dispute life-cycle
type DisputeState string

const (
	StateClean       DisputeState = "clean"
	StateDisputed    DisputeState = "disputed"
	StateResolved    DisputeState = "resolved"
	StateChargedBack DisputeState = "charged_back"
)

// ValidTransitions defines allowed dispute state transitions
var ValidTransitions = map[DisputeState][]DisputeState{
	StateClean:    {StateDisputed},
	StateDisputed: {StateResolved, StateChargedBack},
	// Terminal states - no transitions allowed
	StateResolved:    {},
	StateChargedBack: {},
}

// CanTransition checks if a dispute state transition is valid
func CanTransition(from, to DisputeState) bool {
	for _, allowed := range ValidTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Entry is one accepted deposit or withdrawal
type Entry struct {
	Tx     uint32
	Client uint16
	Kind   models.Kind
	Amount decimal.Decimal
	State  DisputeState
}

// Ledger indexes accepted transactions by id. Entries carry their
// owning client, so a single ledger serves both global id uniqueness
// and per-account reference checks.
type Ledger struct {
	entries map[uint32]*Entry
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[uint32]*Entry)}
}

// Contains reports whether a transaction id has been recorded
func (l *Ledger) Contains(tx uint32) bool {
	_, ok := l.entries[tx]
	return ok
}

// Len returns the number of recorded transactions
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Record stores a new clean entry. Transaction ids are never reused,
// regardless of kind or client.
func (l *Ledger) Record(e Entry) error {
	if _, ok := l.entries[e.Tx]; ok {
		return ErrDuplicateTransaction
	}

	e.State = StateClean
	l.entries[e.Tx] = &e
	return nil
}

// BeginDispute moves a clean entry to disputed and returns it. The
// entry must exist, belong to the claiming client and not already be
// in or past a dispute.
func (l *Ledger) BeginDispute(tx uint32, client uint16) (Entry, error) {
	return l.transition(tx, client, StateDisputed, ErrInvalidDisputeReference)
}

// Resolve moves a disputed entry to resolved, a terminal state
func (l *Ledger) Resolve(tx uint32, client uint16) (Entry, error) {
	return l.transition(tx, client, StateResolved, ErrInvalidResolveReference)
}

// Chargeback moves a disputed entry to charged back, a terminal state
func (l *Ledger) Chargeback(tx uint32, client uint16) (Entry, error) {
	return l.transition(tx, client, StateChargedBack, ErrInvalidChargebackReference)
}

func (l *Ledger) transition(tx uint32, client uint16, to DisputeState, refErr error) (Entry, error) {
	e, ok := l.entries[tx]
	if !ok {
		return Entry{}, refErr
	}
	if e.Client != client {
		return Entry{}, refErr
	}
	if !CanTransition(e.State, to) {
		return Entry{}, refErr
	}

	e.State = to
	return *e, nil
}
