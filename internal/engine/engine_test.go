package engine

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aidin1998/payments_engine/internal/account"
	"github.com/Aidin1998/payments_engine/internal/ledger"
	"github.com/Aidin1998/payments_engine/pkg/metrics"
	"github.com/Aidin1998/payments_engine/pkg/models"
)

func amt(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func deposit(client uint16, tx uint32, amount string) models.Record {
	return models.Record{Kind: models.KindDeposit, Client: client, Tx: tx, Amount: amt(amount)}
}

func withdrawal(client uint16, tx uint32, amount string) models.Record {
	return models.Record{Kind: models.KindWithdrawal, Client: client, Tx: tx, Amount: amt(amount)}
}

func dispute(client uint16, tx uint32) models.Record {
	return models.Record{Kind: models.KindDispute, Client: client, Tx: tx}
}

func resolve(client uint16, tx uint32) models.Record {
	return models.Record{Kind: models.KindResolve, Client: client, Tx: tx}
}

func chargeback(client uint16, tx uint32) models.Record {
	return models.Record{Kind: models.KindChargeback, Client: client, Tx: tx}
}

func newEngine() *Engine {
	return NewEngine(zap.NewNop())
}

// feed applies records that are all expected to succeed
func feed(t *testing.T, e *Engine, recs ...models.Record) {
	t.Helper()
	for _, rec := range recs {
		require.NoError(t, e.Process(rec))
	}
}

// balances asserts a client's full balance breakdown
func balances(t *testing.T, e *Engine, client uint16, available, held string, locked bool) {
	t.Helper()
	acct, ok := e.Account(client)
	require.True(t, ok, "client %d has no account", client)
	assert.True(t, acct.Available().Equal(decimal.RequireFromString(available)),
		"available: want %s, got %s", available, acct.Available())
	assert.True(t, acct.Held().Equal(decimal.RequireFromString(held)),
		"held: want %s, got %s", held, acct.Held())
	assert.Equal(t, locked, acct.Locked())
}

func TestFunding(t *testing.T) {
	t.Run("DepositsAccumulate", func(t *testing.T) {
		e := newEngine()

		feed(t, e,
			deposit(1, 1, "1.5"),
			deposit(1, 2, "2.0001"),
		)

		balances(t, e, 1, "3.5001", "0", false)
	})

	t.Run("WithdrawalSpendsAvailable", func(t *testing.T) {
		e := newEngine()

		feed(t, e,
			deposit(1, 1, "10"),
			withdrawal(1, 2, "4.25"),
		)

		balances(t, e, 1, "5.75", "0", false)
	})

	t.Run("InsufficientFundsDoesNotConsumeTxID", func(t *testing.T) {
		e := newEngine()
		feed(t, e, deposit(1, 1, "5"))

		err := e.Process(withdrawal(1, 2, "10"))
		require.ErrorIs(t, err, account.ErrInsufficientFunds)
		balances(t, e, 1, "5", "0", false)

		// The failed withdrawal never reached the ledger, so its id is free.
		require.NoError(t, e.Process(deposit(1, 2, "3")))
		balances(t, e, 1, "8", "0", false)
	})

	t.Run("DuplicateTxIgnored", func(t *testing.T) {
		e := newEngine()
		feed(t, e, deposit(1, 1, "5"))

		err := e.Process(deposit(1, 1, "7"))
		require.ErrorIs(t, err, ledger.ErrDuplicateTransaction)
		balances(t, e, 1, "5", "0", false)

		err = e.Process(withdrawal(1, 1, "1"))
		require.ErrorIs(t, err, ledger.ErrDuplicateTransaction)
		balances(t, e, 1, "5", "0", false)
	})

	t.Run("DuplicateTxAcrossClientsIgnored", func(t *testing.T) {
		e := newEngine()
		feed(t, e, deposit(1, 1, "5"))

		err := e.Process(deposit(2, 1, "9"))
		require.ErrorIs(t, err, ledger.ErrDuplicateTransaction)

		// Rejected before any mutation: client 2 was never materialized.
		_, ok := e.Account(2)
		assert.False(t, ok)
	})

	t.Run("MissingAmountIgnored", func(t *testing.T) {
		e := newEngine()

		err := e.Process(models.Record{Kind: models.KindDeposit, Client: 1, Tx: 1})
		require.ErrorIs(t, err, ErrInvalidAmount)

		_, ok := e.Account(1)
		assert.False(t, ok)
	})

	t.Run("NegativeAmountIgnored", func(t *testing.T) {
		e := newEngine()

		err := e.Process(deposit(1, 1, "-5"))
		require.ErrorIs(t, err, ErrInvalidAmount)

		err = e.Process(withdrawal(1, 1, "-5"))
		require.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("ZeroDepositAcceptedAndDisputable", func(t *testing.T) {
		e := newEngine()

		feed(t, e,
			deposit(1, 1, "0"),
			dispute(1, 1),
			resolve(1, 1),
		)

		balances(t, e, 1, "0", "0", false)
		assert.Equal(t, 3, e.Summary().Processed)
	})
}

func TestDisputeFlows(t *testing.T) {
	t.Run("DepositDisputeHoldsFunds", func(t *testing.T) {
		e := newEngine()

		feed(t, e,
			deposit(1, 1, "10"),
			deposit(1, 2, "5"),
			dispute(1, 1),
		)

		balances(t, e, 1, "5", "10", false)
	})

	t.Run("ResolveReleasesHold", func(t *testing.T) {
		e := newEngine()

		feed(t, e,
			deposit(1, 1, "10"),
			dispute(1, 1),
			resolve(1, 1),
		)

		balances(t, e, 1, "10", "0", false)
	})

	t.Run("ChargebackDebitsAndLocks", func(t *testing.T) {
		e := newEngine()

		feed(t, e,
			deposit(1, 1, "10"),
			deposit(1, 2, "5"),
			dispute(1, 1),
			chargeback(1, 1),
		)

		balances(t, e, 1, "5", "0", true)

		err := e.Process(deposit(1, 3, "1"))
		require.ErrorIs(t, err, account.ErrAccountLocked)
		err = e.Process(withdrawal(1, 4, "1"))
		require.ErrorIs(t, err, account.ErrAccountLocked)
		balances(t, e, 1, "5", "0", true)
	})

	t.Run("WithdrawalDisputeGrowsTotal", func(t *testing.T) {
		e := newEngine()

		feed(t, e,
			deposit(1, 1, "10"),
			withdrawal(1, 2, "4"),
			dispute(1, 2),
		)

		balances(t, e, 1, "6", "4", false)
	})

	t.Run("WithdrawalResolveLetsWithdrawalStand", func(t *testing.T) {
		e := newEngine()

		feed(t, e,
			deposit(1, 1, "10"),
			withdrawal(1, 2, "4"),
			dispute(1, 2),
			resolve(1, 2),
		)

		balances(t, e, 1, "6", "0", false)
	})

	t.Run("WithdrawalChargebackRefundsClient", func(t *testing.T) {
		e := newEngine()

		feed(t, e,
			deposit(1, 1, "10"),
			withdrawal(1, 2, "4"),
			dispute(1, 2),
			chargeback(1, 2),
		)

		balances(t, e, 1, "10", "0", true)
	})

	t.Run("DisputeUnknownTxIgnored", func(t *testing.T) {
		e := newEngine()
		feed(t, e, deposit(1, 1, "10"))

		err := e.Process(dispute(1, 42))
		require.ErrorIs(t, err, ledger.ErrInvalidDisputeReference)
		balances(t, e, 1, "10", "0", false)
	})

	t.Run("DisputeWrongClientIgnored", func(t *testing.T) {
		e := newEngine()
		feed(t, e, deposit(1, 1, "10"))

		err := e.Process(dispute(2, 1))
		require.ErrorIs(t, err, ledger.ErrInvalidDisputeReference)

		balances(t, e, 1, "10", "0", false)
		_, ok := e.Account(2)
		assert.False(t, ok)

		// The entry stays clean for its true owner.
		require.NoError(t, e.Process(dispute(1, 1)))
		balances(t, e, 1, "0", "10", false)
	})

	t.Run("SecondDisputeIgnored", func(t *testing.T) {
		e := newEngine()
		feed(t, e, deposit(1, 1, "10"), dispute(1, 1))

		err := e.Process(dispute(1, 1))
		require.ErrorIs(t, err, ledger.ErrInvalidDisputeReference)
		balances(t, e, 1, "0", "10", false)
	})

	t.Run("ResolveWithoutDisputeIgnored", func(t *testing.T) {
		e := newEngine()
		feed(t, e, deposit(1, 1, "10"))

		err := e.Process(resolve(1, 1))
		require.ErrorIs(t, err, ledger.ErrInvalidResolveReference)
		balances(t, e, 1, "10", "0", false)
	})

	t.Run("ChargebackWithoutDisputeIgnored", func(t *testing.T) {
		e := newEngine()
		feed(t, e, deposit(1, 1, "10"))

		err := e.Process(chargeback(1, 1))
		require.ErrorIs(t, err, ledger.ErrInvalidChargebackReference)
		balances(t, e, 1, "10", "0", false)
	})

	t.Run("SettledDisputeIsTerminal", func(t *testing.T) {
		e := newEngine()
		feed(t, e,
			deposit(1, 1, "10"),
			dispute(1, 1),
			resolve(1, 1),
		)

		err := e.Process(dispute(1, 1))
		require.ErrorIs(t, err, ledger.ErrInvalidDisputeReference)
		err = e.Process(chargeback(1, 1))
		require.ErrorIs(t, err, ledger.ErrInvalidChargebackReference)
		balances(t, e, 1, "10", "0", false)
	})

	t.Run("DisputeCycleContinuesAfterLock", func(t *testing.T) {
		e := newEngine()

		feed(t, e,
			deposit(1, 1, "10"),
			deposit(1, 2, "5"),
			dispute(1, 1),
			chargeback(1, 1),
			dispute(1, 2),
		)
		balances(t, e, 1, "0", "5", true)

		feed(t, e, resolve(1, 2))
		balances(t, e, 1, "5", "0", true)
	})

	t.Run("AmountOnDisputeRecordIgnored", func(t *testing.T) {
		e := newEngine()
		feed(t, e, deposit(1, 1, "10"))

		rec := dispute(1, 1)
		rec.Amount = amt("999")
		require.NoError(t, e.Process(rec))

		// The hold uses the recorded transaction's amount.
		balances(t, e, 1, "0", "10", false)
	})

	t.Run("RejectionIsIdempotent", func(t *testing.T) {
		e := newEngine()
		feed(t, e, deposit(1, 1, "5"))

		for i := 0; i < 3; i++ {
			err := e.Process(withdrawal(1, 2, "100"))
			require.ErrorIs(t, err, account.ErrInsufficientFunds)
			balances(t, e, 1, "5", "0", false)
		}

		assert.Equal(t, 3, e.Summary().Ignored)
	})
}

func TestStatements(t *testing.T) {
	t.Run("AscendingClientOrder", func(t *testing.T) {
		e := newEngine()

		feed(t, e,
			deposit(42, 1, "1"),
			deposit(7, 2, "2"),
			deposit(19, 3, "3"),
		)

		stmts := e.Statements()
		require.Len(t, stmts, 3)
		assert.Equal(t, uint16(7), stmts[0].Client)
		assert.Equal(t, uint16(19), stmts[1].Client)
		assert.Equal(t, uint16(42), stmts[2].Client)
	})

	t.Run("TotalIsAvailablePlusHeld", func(t *testing.T) {
		e := newEngine()

		feed(t, e,
			deposit(1, 1, "10"),
			deposit(1, 2, "2.5"),
			dispute(1, 1),
		)

		stmts := e.Statements()
		require.Len(t, stmts, 1)
		st := stmts[0]
		assert.True(t, st.Total.Equal(st.Available.Add(st.Held)))
		assert.True(t, st.Total.Equal(decimal.RequireFromString("12.5")))
	})

	t.Run("EmptyEngine", func(t *testing.T) {
		e := newEngine()
		assert.Empty(t, e.Statements())
	})
}

type sliceSource struct {
	recs []models.Record
}

func (s *sliceSource) Next() (models.Record, error) {
	if len(s.recs) == 0 {
		return models.Record{}, io.EOF
	}
	rec := s.recs[0]
	s.recs = s.recs[1:]
	return rec, nil
}

type failingSource struct {
	err error
}

func (s *failingSource) Next() (models.Record, error) {
	return models.Record{}, s.err
}

func TestRun(t *testing.T) {
	t.Run("DrainsSourceAndCounts", func(t *testing.T) {
		e := newEngine()
		src := &sliceSource{recs: []models.Record{
			deposit(1, 1, "10"),
			withdrawal(1, 2, "3"),
			withdrawal(1, 3, "100"), // insufficient funds, skipped
			dispute(2, 1),           // wrong client, skipped
			deposit(2, 4, "1"),
		}}

		summary, err := e.Run(context.Background(), src)

		require.NoError(t, err)
		assert.Equal(t, 3, summary.Processed)
		assert.Equal(t, 2, summary.Ignored)
		assert.Equal(t, 2, summary.Accounts)
		balances(t, e, 1, "7", "0", false)
		balances(t, e, 2, "1", "0", false)
	})

	t.Run("SourceErrorAborts", func(t *testing.T) {
		e := newEngine()
		src := &failingSource{err: errors.New("bad row")}

		_, err := e.Run(context.Background(), src)

		require.Error(t, err)
		assert.ErrorContains(t, err, "bad row")
	})

	t.Run("HonorsCancellation", func(t *testing.T) {
		e := newEngine()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := e.Run(ctx, &sliceSource{recs: []models.Record{deposit(1, 1, "1")}})

		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestMetricsCounters(t *testing.T) {
	e := newEngine()

	processedBefore := testutil.ToFloat64(metrics.RecordsProcessed.WithLabelValues("deposit"))
	ignoredBefore := testutil.ToFloat64(metrics.RecordsIgnored.WithLabelValues("insufficient_funds"))

	feed(t, e, deposit(1, 1, "5"))
	_ = e.Process(withdrawal(1, 2, "100"))

	assert.Equal(t, processedBefore+1, testutil.ToFloat64(metrics.RecordsProcessed.WithLabelValues("deposit")))
	assert.Equal(t, ignoredBefore+1, testutil.ToFloat64(metrics.RecordsIgnored.WithLabelValues("insufficient_funds")))
}
