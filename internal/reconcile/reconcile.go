package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tbc-meetup/walletd/internal/ledger"
	"github.com/tbc-meetup/walletd/internal/logging"
	"github.com/tbc-meetup/walletd/internal/metrics"
	"github.com/tbc-meetup/walletd/internal/txn"
	"github.com/tbc-meetup/walletd/internal/wallet"
)

const pageSize = 500

// Mismatch is one wallet whose stored balance disagrees with its ledger.
type Mismatch struct {
	WalletID uuid.UUID
	UserID   int64
	Stored   int64
	Expected int64
	Fixed    bool
	Note     string
}

// Diff is the correction the wallet needs.
func (m Mismatch) Diff() int64 {
	return m.Expected - m.Stored
}

// Report summarises one reconciliation pass.
type Report struct {
	Checked    int
	Mismatches []Mismatch
	StartedAt  time.Time
	FinishedAt time.Time
}

// OK reports whether every wallet agreed with its ledger.
func (r Report) OK() bool {
	return len(r.Mismatches) == 0
}

// String renders one line per mismatched wallet.
func (r Report) String() string {
	if r.OK() {
		return fmt.Sprintf("all %d wallets consistent", r.Checked)
	}
	var b strings.Builder
	for _, m := range r.Mismatches {
		fmt.Fprintf(&b, "walletId=%s stored=%d expected=%d diff=%d", m.WalletID, m.Stored, m.Expected, m.Diff())
		switch {
		case m.Fixed:
			b.WriteString(" (fixed)")
		case m.Note != "":
			fmt.Fprintf(&b, " (%s)", m.Note)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Reconciler compares wallet balances with their ledger sums.
type Reconciler struct {
	wallets wallet.Store
	ledger  ledger.Store
	tx      txn.Transactor
	logger  *slog.Logger
}

// NewReconciler constructs a reconciler.
func NewReconciler(wallets wallet.Store, led ledger.Store, tx txn.Transactor, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Reconciler{wallets: wallets, ledger: led, tx: tx, logger: logger}
}

// ReconcileAll reports mismatches without changing anything.
func (r *Reconciler) ReconcileAll(ctx context.Context) (Report, error) {
	report, err := r.scan(ctx, false)
	if err != nil {
		return Report{}, err
	}
	metrics.RecordReconcile("report", len(report.Mismatches))
	return report, nil
}

// ReconcileAllAndFix overwrites every mismatched balance with its ledger sum.
// Each wallet is fixed under its own lock and transaction.
func (r *Reconciler) ReconcileAllAndFix(ctx context.Context) (Report, error) {
	report, err := r.scan(ctx, true)
	if err != nil {
		return Report{}, err
	}
	metrics.RecordReconcile("fix", len(report.Mismatches))
	return report, nil
}

// scan pages through wallets by user id. The page read and the ledger sum
// are separate statements, so a candidate mismatch is read again under the
// wallet lock before it is reported or fixed.
func (r *Reconciler) scan(ctx context.Context, fix bool) (Report, error) {
	report := Report{StartedAt: time.Now().UTC()}
	var after int64
	for {
		page, err := r.wallets.List(ctx, after, pageSize)
		if err != nil {
			return Report{}, fmt.Errorf("list wallets: %w", err)
		}
		for _, w := range page {
			if err := ctx.Err(); err != nil {
				return Report{}, err
			}
			report.Checked++
			after = w.UserID

			expected, err := r.ledger.SumSigned(ctx, w.ID)
			if err != nil {
				return Report{}, err
			}
			if expected == w.Balance {
				continue
			}

			m, err := r.settle(ctx, w.UserID, fix)
			if err != nil {
				r.logger.Error("reconcile recheck failed", slog.String("wallet_id", w.ID.String()), slog.Any("error", err))
				m = Mismatch{WalletID: w.ID, UserID: w.UserID, Stored: w.Balance, Expected: expected, Note: err.Error()}
			} else if m.Stored == m.Expected {
				continue
			}
			r.logger.Warn("wallet balance mismatch",
				slog.String("wallet_id", m.WalletID.String()),
				slog.Int64("stored", m.Stored),
				slog.Int64("expected", m.Expected),
				slog.Bool("fixed", m.Fixed),
			)
			report.Mismatches = append(report.Mismatches, m)
		}
		if len(page) < pageSize {
			break
		}
	}
	report.FinishedAt = time.Now().UTC()
	return report, nil
}

// settle reads balance and ledger sum together under the wallet lock, so no
// posting can land between the two reads. With fix it also overwrites the
// balance with the ledger sum.
func (r *Reconciler) settle(ctx context.Context, userID int64, fix bool) (Mismatch, error) {
	var m Mismatch
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		w, err := r.wallets.FindForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		expected, err := r.ledger.SumSigned(ctx, w.ID)
		if err != nil {
			return err
		}
		m = Mismatch{WalletID: w.ID, UserID: w.UserID, Stored: w.Balance, Expected: expected}
		if expected == w.Balance || !fix {
			return nil
		}
		if expected < 0 {
			m.Note = "negative ledger sum, manual review"
			return nil
		}
		w.Balance = expected
		w.UpdatedAt = time.Now().UTC()
		if err := r.wallets.Save(ctx, w); err != nil {
			return err
		}
		m.Fixed = true
		return nil
	})
	return m, err
}
