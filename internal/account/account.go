// Package account implements the per-client balance state machine.
package account

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Aidin1998/payments_engine/pkg/models"
)

var (
	// ErrAccountLocked rejects deposits and withdrawals on a frozen account
	ErrAccountLocked = errors.New("account locked")
	// ErrInsufficientFunds rejects a withdrawal exceeding the available balance
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Account tracks the balances of a single client. Fields are mutated
// only through the operations below; the total is always available
// plus held and is never stored.
type Account struct {
	client    uint16
	available decimal.Decimal
	held      decimal.Decimal
	locked    bool
}

// New creates an empty unlocked account for a client
func New(client uint16) *Account {
	return &Account{client: client}
}

// ClientID returns the owning client id
func (a *Account) ClientID() uint16 { return a.client }

// Available returns the balance usable for withdrawals
func (a *Account) Available() decimal.Decimal { return a.available }

// Held returns the balance frozen by open disputes
func (a *Account) Held() decimal.Decimal { return a.held }

// Total returns available plus held
func (a *Account) Total() decimal.Decimal { return a.available.Add(a.held) }

// Locked reports whether a chargeback has frozen the account
func (a *Account) Locked() bool { return a.locked }

// Deposit credits the available balance
func (a *Account) Deposit(amount decimal.Decimal) error {
	if a.locked {
		return ErrAccountLocked
	}

	a.available = a.available.Add(amount)
	return nil
}

// Withdraw debits the available balance. The withdrawal is all or
// nothing; there are no partial withdrawals.
func (a *Account) Withdraw(amount decimal.Decimal) error {
	if a.locked {
		return ErrAccountLocked
	}
	if a.available.LessThan(amount) {
		return ErrInsufficientFunds
	}

	a.available = a.available.Sub(amount)
	return nil
}

// HoldForDispute freezes the disputed amount. A disputed deposit moves
// available funds into held; a disputed withdrawal holds the potential
// reversal without touching available, so the total grows. Disputes
// settle prior business and are permitted on locked accounts.
func (a *Account) HoldForDispute(kind models.Kind, amount decimal.Decimal) {
	if kind == models.KindDeposit {
		a.available = a.available.Sub(amount)
	}
	a.held = a.held.Add(amount)
}

// ReleaseDispute undoes HoldForDispute for a dispute settled in the
// account's favor
func (a *Account) ReleaseDispute(kind models.Kind, amount decimal.Decimal) {
	a.held = a.held.Sub(amount)
	if kind == models.KindDeposit {
		a.available = a.available.Add(amount)
	}
}

// ApplyChargeback settles a dispute against the recorded transaction
// and freezes the account. A charged-back deposit leaves with the held
// funds; a charged-back withdrawal returns the held funds to the
// client.
func (a *Account) ApplyChargeback(kind models.Kind, amount decimal.Decimal) {
	a.held = a.held.Sub(amount)
	if kind == models.KindWithdrawal {
		a.available = a.available.Add(amount)
	}
	a.locked = true
}

// Statement snapshots the account into a report row
func (a *Account) Statement() models.Statement {
	return models.Statement{
		Client:    a.client,
		Available: a.available,
		Held:      a.held,
		Total:     a.Total(),
		Locked:    a.locked,
	}
}
