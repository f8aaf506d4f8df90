package billing

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"dialer-platform/internal/rating"
	"dialer-platform/pkg/utils"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("billing: not found")
	ErrInsufficientFunds = errors.New("billing: insufficient funds")
	ErrInvalidArgument   = errors.New("billing: invalid argument")
)

// RateResolver is the slice of the rating resolver the ledger needs.
type RateResolver interface {
	ResolveDestination(ctx context.Context, number string) (rating.Destination, error)
	Rate(ctx context.Context, rateCardID, destinationID string) (rating.Rate, error)
}

// RecordReconciler mirrors billing outcomes onto the campaign's CallRecord
// for reporting. Best-effort: failures are logged and never reverse a billing
// decision.
type RecordReconciler interface {
	ReconcileCall(ctx context.Context, campaignID, number string, endedAt time.Time, success bool) error
}

// Service is the billing ledger.
//
// RateAndBill executes inside a single atomic unit: CallDetail insert,
// Transaction insert and balance update either fully commit or fully roll
// back. Partial application of the three is never observable.
type Service struct {
	db       *sql.DB
	resolver RateResolver
	records  RecordReconciler
	log      *slog.Logger
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(db *sql.DB, resolver RateResolver, records RecordReconciler, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{db: db, resolver: resolver, records: records, log: log, clock: time.Now}
}

// CallOutcome describes one finished call, as observed by the event reactor.
type CallOutcome struct {
	TenantID  string
	AccountID string

	CampaignID   string
	CallRecordID string

	// Number is the normalized destination number.
	Number string

	Answered        bool
	StartedAt       *time.Time
	AnsweredAt      *time.Time
	EndedAt         time.Time
	DurationSeconds int
}

// BillResult reports what the ledger did with one call.
type BillResult struct {
	Charged bool
	Reason  string

	CallDetailID    string
	BillableSeconds int

	CostMinor   int64
	ChargeMinor int64
	ProfitMinor int64

	NewBalanceMinor int64
}

func (o CallOutcome) validate() error {
	if o.TenantID == "" || o.AccountID == "" {
		return ErrInvalidArgument
	}
	if o.Number == "" {
		return ErrInvalidArgument
	}
	if o.DurationSeconds < 0 {
		return ErrInvalidArgument
	}
	return nil
}

// RateAndBill rates the call against the account's rate card and applies the
// charge. Rating failures (no rate card, unknown destination, no active rate)
// are not errors: the call is recorded unbilled with the reason retained.
// Insufficient balance aborts the charge but still finalizes the CallDetail.
func (s *Service) RateAndBill(ctx context.Context, outcome CallOutcome) (BillResult, error) {
	if err := outcome.validate(); err != nil {
		return BillResult{}, err
	}

	now := s.clock().UTC()
	detailID := uuid.NewString()

	var out BillResult

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		acct, err := lockAccount(ctx, tx, outcome.TenantID, outcome.AccountID)
		if err != nil {
			return err
		}

		detail := CallDetail{
			ID:              detailID,
			TenantID:        outcome.TenantID,
			AccountID:       outcome.AccountID,
			CampaignID:      outcome.CampaignID,
			CallRecordID:    outcome.CallRecordID,
			Number:          outcome.Number,
			RateCardID:      acct.RateCardID,
			StartedAt:       outcome.StartedAt,
			AnsweredAt:      outcome.AnsweredAt,
			EndedAt:         &outcome.EndedAt,
			DurationSeconds: outcome.DurationSeconds,
			Processed:       true,
			CreatedAt:       now,
		}

		// 1) No rate card: record, never bill.
		if acct.RateCardID == "" {
			detail.ProcessedReason = ReasonNoRateCard
			out = BillResult{Reason: ReasonNoRateCard, CallDetailID: detailID, NewBalanceMinor: acct.BalanceMinor}
			return insertCallDetail(ctx, tx, detail)
		}

		// 2) Destination lookup.
		dest, err := s.resolver.ResolveDestination(ctx, outcome.Number)
		if err != nil {
			if errors.Is(err, rating.ErrDestinationNotFound) {
				detail.ProcessedReason = ReasonNoDestination
				out = BillResult{Reason: ReasonNoDestination, CallDetailID: detailID, NewBalanceMinor: acct.BalanceMinor}
				return insertCallDetail(ctx, tx, detail)
			}
			return err
		}
		detail.DestinationID = dest.ID

		// 3) Rate lookup.
		rate, err := s.resolver.Rate(ctx, acct.RateCardID, dest.ID)
		if err != nil {
			if errors.Is(err, rating.ErrRateNotFound) {
				detail.ProcessedReason = ReasonNoRate
				out = BillResult{Reason: ReasonNoRate, CallDetailID: detailID, NewBalanceMinor: acct.BalanceMinor}
				return insertCallDetail(ctx, tx, detail)
			}
			return err
		}
		detail.RateID = rate.ID
		detail.CostPerMinuteMinor = rate.CostPerMinuteMinor
		detail.SellPerMinuteMinor = rate.SellPerMinuteMinor

		// 4) Amounts.
		billableSec, cost, charge, profit := computeCharges(rate, outcome.Answered, outcome.DurationSeconds)
		detail.BillableSeconds = billableSec
		detail.TotalCostMinor = cost
		detail.TotalChargeMinor = charge
		detail.ProfitMinor = profit

		if charge == 0 {
			if !outcome.Answered || outcome.DurationSeconds <= 0 {
				detail.ProcessedReason = ReasonNotAnswered
			}
			out = BillResult{
				Reason:          detail.ProcessedReason,
				CallDetailID:    detailID,
				BillableSeconds: billableSec,
				NewBalanceMinor: acct.BalanceMinor,
			}
			return insertCallDetail(ctx, tx, detail)
		}

		// 5) Balance check: never allow spend beyond balance + credit limit.
		if acct.AvailableMinor() < charge {
			detail.ProcessedReason = ReasonInsufficientBalance
			out = BillResult{
				Reason:          ReasonInsufficientBalance,
				CallDetailID:    detailID,
				BillableSeconds: billableSec,
				CostMinor:       cost,
				ChargeMinor:     charge,
				ProfitMinor:     profit,
				NewBalanceMinor: acct.BalanceMinor,
			}
			return insertCallDetail(ctx, tx, detail)
		}

		if err := insertCallDetail(ctx, tx, detail); err != nil {
			return err
		}

		txn := Transaction{
			ID:                 uuid.NewString(),
			TenantID:           outcome.TenantID,
			AccountID:          outcome.AccountID,
			Type:               TransactionTypeDebit,
			AmountMinor:        charge,
			BalanceBeforeMinor: acct.BalanceMinor,
			BalanceAfterMinor:  acct.BalanceMinor - charge,
			Description:        "call charge " + outcome.Number,
			CallDetailID:       detailID,
			CreatedAt:          now,
		}
		if err := insertTransaction(ctx, tx, txn); err != nil {
			return err
		}
		if err := updateAccountBalance(ctx, tx, outcome.TenantID, outcome.AccountID, txn.BalanceAfterMinor, now); err != nil {
			return err
		}

		out = BillResult{
			Charged:         true,
			CallDetailID:    detailID,
			BillableSeconds: billableSec,
			CostMinor:       cost,
			ChargeMinor:     charge,
			ProfitMinor:     profit,
			NewBalanceMinor: txn.BalanceAfterMinor,
		}
		return nil
	})
	if err != nil {
		return BillResult{}, err
	}

	// CallRecord reconciliation is best-effort and must never reverse the
	// committed billing decision.
	if s.records != nil && outcome.CampaignID != "" {
		success := outcome.Answered
		if rerr := s.records.ReconcileCall(ctx, outcome.CampaignID, outcome.Number, outcome.EndedAt, success); rerr != nil {
			s.log.Warn("call record reconcile failed", "campaign_id", outcome.CampaignID, "number", outcome.Number, "err", rerr)
		}
	}

	return out, nil
}

// CreditRequest is an operator top-up (or refund/adjustment).
type CreditRequest struct {
	AmountMinor int64
	Type        TransactionType
	Description string

	// Reference makes retried top-ups idempotent: an existing transaction
	// with the same reference is returned instead of applying a second
	// credit.
	Reference string
}

// Credit appends a credit-side ledger entry and moves the balance, atomically.
func (s *Service) Credit(ctx context.Context, tenantID, accountID string, req CreditRequest) (Transaction, Account, error) {
	if tenantID == "" || accountID == "" {
		return Transaction{}, Account{}, ErrInvalidArgument
	}
	if req.AmountMinor <= 0 {
		return Transaction{}, Account{}, ErrInvalidArgument
	}
	if req.Reference == "" {
		return Transaction{}, Account{}, ErrInvalidArgument
	}
	switch req.Type {
	case "":
		req.Type = TransactionTypeCredit
	case TransactionTypeCredit, TransactionTypeRefund, TransactionTypeAdjustment:
	default:
		return Transaction{}, Account{}, ErrInvalidArgument
	}

	now := s.clock().UTC()

	var outTxn Transaction
	var outAcct Account

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		acct, err := lockAccount(ctx, tx, tenantID, accountID)
		if err != nil {
			return err
		}

		if existing, ok, err := findTransactionByReference(ctx, tx, tenantID, accountID, req.Reference); err != nil {
			return err
		} else if ok {
			outTxn = existing
			outAcct = acct
			return nil
		}

		txn := Transaction{
			ID:                 uuid.NewString(),
			TenantID:           tenantID,
			AccountID:          accountID,
			Type:               req.Type,
			AmountMinor:        req.AmountMinor,
			BalanceBeforeMinor: acct.BalanceMinor,
			BalanceAfterMinor:  acct.BalanceMinor + req.AmountMinor,
			Description:        req.Description,
			Reference:          req.Reference,
			CreatedAt:          now,
		}
		if err := insertTransaction(ctx, tx, txn); err != nil {
			return err
		}
		if err := updateAccountBalance(ctx, tx, tenantID, accountID, txn.BalanceAfterMinor, now); err != nil {
			return err
		}

		acct.BalanceMinor = txn.BalanceAfterMinor
		acct.UpdatedAt = now
		outTxn = txn
		outAcct = acct
		return nil
	})

	return outTxn, outAcct, err
}

func (s *Service) GetAccount(ctx context.Context, tenantID, accountID string) (Account, error) {
	if tenantID == "" || accountID == "" {
		return Account{}, ErrInvalidArgument
	}
	return getAccount(ctx, s.db, tenantID, accountID)
}

// computeCharges derives billable time and amounts. Unanswered or
// zero-duration calls cost nothing.
func computeCharges(rate rating.Rate, answered bool, durationSec int) (billableSec int, cost, charge, profit int64) {
	if !answered || durationSec <= 0 {
		return 0, 0, 0, 0
	}
	billableSec = rating.BillableSeconds(durationSec, rate.MinimumSeconds, rate.IncrementSeconds)
	cost = amountForSeconds(rate.CostPerMinuteMinor, billableSec)
	charge = amountForSeconds(rate.SellPerMinuteMinor, billableSec)
	profit = charge - cost
	return billableSec, cost, charge, profit
}

// amountForSeconds converts a per-minute rate into a charge for the billable
// seconds, rounding half up to the nearest minor unit.
func amountForSeconds(perMinuteMinor int64, sec int) int64 {
	if perMinuteMinor <= 0 || sec <= 0 {
		return 0
	}
	return (perMinuteMinor*int64(sec) + 30) / 60
}
