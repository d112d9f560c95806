// Package engine applies transaction records to client accounts in
// strict stream order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/btree"
	"go.uber.org/zap"

	"github.com/Aidin1998/payments_engine/internal/account"
	"github.com/Aidin1998/payments_engine/internal/ledger"
	"github.com/Aidin1998/payments_engine/pkg/metrics"
	"github.com/Aidin1998/payments_engine/pkg/models"
)

// ErrInvalidAmount rejects a deposit or withdrawal whose amount is
// missing or negative
var ErrInvalidAmount = errors.New("invalid amount")

// RecordSource yields transaction records in input order. Next returns
// io.EOF once the stream is exhausted.
type RecordSource interface {
	Next() (models.Record, error)
}

// Summary aggregates the outcome of an engine run
type Summary struct {
	Processed int
	Ignored   int
	Accounts  int
}

// Engine owns the transaction ledger and all client accounts. It is
// single-threaded: each record's effect is fully applied before the
// next is read, and a rejected record changes nothing.
type Engine struct {
	logger   *zap.Logger
	ledger   *ledger.Ledger
	accounts *btree.Map[uint16, *account.Account]
	summary  Summary
}

// NewEngine creates an engine with empty state, tagged with a fresh
// run id in its log fields.
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{
		logger:   logger.With(zap.String("run_id", uuid.New().String())),
		ledger:   ledger.NewLedger(),
		accounts: btree.NewMap[uint16, *account.Account](32),
	}
}

// Run drains src, applying each record in order. Recoverable
// validation failures are logged, counted and skipped; Run fails only
// on a source read error or context cancellation.
func (e *Engine) Run(ctx context.Context, src RecordSource) (Summary, error) {
	e.logger.Info("engine run started")

	for {
		select {
		case <-ctx.Done():
			return e.Summary(), ctx.Err()
		default:
		}

		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			e.logger.Info("engine run finished",
				zap.Int("processed", e.summary.Processed),
				zap.Int("ignored", e.summary.Ignored),
				zap.Int("accounts", e.accounts.Len()),
			)
			return e.Summary(), nil
		}
		if err != nil {
			return e.Summary(), fmt.Errorf("read record: %w", err)
		}

		if err := e.Process(rec); err != nil {
			e.logger.Debug("record ignored",
				zap.String("type", string(rec.Kind)),
				zap.Uint16("client", rec.Client),
				zap.Uint32("tx", rec.Tx),
				zap.String("reason", reason(err)),
			)
		}
	}
}

// Process applies a single record. A returned error is one of the
// recoverable validation failures and means the record changed
// nothing; replaying the same invalid record is the same no-op.
func (e *Engine) Process(rec models.Record) error {
	start := time.Now()
	err := e.apply(rec)
	metrics.ApplyLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		e.summary.Ignored++
		metrics.RecordsIgnored.WithLabelValues(reason(err)).Inc()
		return err
	}

	e.summary.Processed++
	metrics.RecordsProcessed.WithLabelValues(string(rec.Kind)).Inc()
	return nil
}

func (e *Engine) apply(rec models.Record) error {
	switch rec.Kind {
	case models.KindDeposit, models.KindWithdrawal:
		return e.applyFunding(rec)
	case models.KindDispute:
		return e.applyDispute(rec)
	case models.KindResolve:
		return e.applyResolve(rec)
	case models.KindChargeback:
		return e.applyChargeback(rec)
	default:
		return fmt.Errorf("unknown record kind %q", rec.Kind)
	}
}

// applyFunding validates strictly before mutating: amount, duplicate
// id, then the account's own checks. A record rejected at any step has
// touched neither the account nor the ledger.
func (e *Engine) applyFunding(rec models.Record) error {
	if rec.Amount == nil || rec.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if e.ledger.Contains(rec.Tx) {
		return ledger.ErrDuplicateTransaction
	}

	acct := e.account(rec.Client)

	var err error
	if rec.Kind == models.KindDeposit {
		err = acct.Deposit(*rec.Amount)
	} else {
		err = acct.Withdraw(*rec.Amount)
	}
	if err != nil {
		return err
	}

	return e.ledger.Record(ledger.Entry{
		Tx:     rec.Tx,
		Client: rec.Client,
		Kind:   rec.Kind,
		Amount: *rec.Amount,
	})
}

func (e *Engine) applyDispute(rec models.Record) error {
	entry, err := e.ledger.BeginDispute(rec.Tx, rec.Client)
	if err != nil {
		return err
	}

	e.account(rec.Client).HoldForDispute(entry.Kind, entry.Amount)
	return nil
}

func (e *Engine) applyResolve(rec models.Record) error {
	entry, err := e.ledger.Resolve(rec.Tx, rec.Client)
	if err != nil {
		return err
	}

	e.account(rec.Client).ReleaseDispute(entry.Kind, entry.Amount)
	return nil
}

func (e *Engine) applyChargeback(rec models.Record) error {
	entry, err := e.ledger.Chargeback(rec.Tx, rec.Client)
	if err != nil {
		return err
	}

	acct := e.account(rec.Client)
	acct.ApplyChargeback(entry.Kind, entry.Amount)

	e.logger.Info("account frozen by chargeback",
		zap.Uint16("client", rec.Client),
		zap.Uint32("tx", rec.Tx),
		zap.String("amount", entry.Amount.String()),
	)
	return nil
}

// account returns the client's account, creating it on first reference
func (e *Engine) account(client uint16) *account.Account {
	if acct, ok := e.accounts.Get(client); ok {
		return acct
	}

	acct := account.New(client)
	e.accounts.Set(client, acct)
	metrics.AccountsTracked.Set(float64(e.accounts.Len()))
	return acct
}

// Account returns the tracked account for a client, if any
func (e *Engine) Account(client uint16) (*account.Account, bool) {
	return e.accounts.Get(client)
}

// Statements snapshots every account in ascending client order
func (e *Engine) Statements() []models.Statement {
	stmts := make([]models.Statement, 0, e.accounts.Len())
	e.accounts.Scan(func(_ uint16, acct *account.Account) bool {
		stmts = append(stmts, acct.Statement())
		return true
	})
	return stmts
}

// Summary returns the run counters so far
func (e *Engine) Summary() Summary {
	s := e.summary
	s.Accounts = e.accounts.Len()
	return s
}

// reason maps a rejection to its metrics label
func reason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		return "duplicate_transaction"
	case errors.Is(err, account.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, account.ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, ledger.ErrInvalidDisputeReference):
		return "invalid_dispute_reference"
	case errors.Is(err, ledger.ErrInvalidResolveReference):
		return "invalid_resolve_reference"
	case errors.Is(err, ledger.ErrInvalidChargebackReference):
		return "invalid_chargeback_reference"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	default:
		return "invalid_record"
	}
}
