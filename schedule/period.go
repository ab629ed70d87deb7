/*
period.go - Schedule periods, installments, and the generated model

PURPOSE:
  Defines what the engine emits. SchedulePeriod is a tagged union over the
  three row kinds a schedule can contain; Installment is the persisted
  counterpart of a repayment row, carrying paid/outstanding components once
  transactions are applied against it.

TAGGED UNION:
  The original modeled period kinds polymorphically, with disbursement
  periods implementing repayment-only methods as no-ops. Here a Kind
  discriminant plus exhaustive switches at consumption sites replaces the
  no-op bloat; adding a kind breaks every switch that must consider it.
*/
package schedule

import "github.com/warp/loan-engine/money"

// =============================================================================
// SCHEDULE PERIOD - tagged union: Disbursement | DownPayment | Repayment
// =============================================================================

// PeriodKind discriminates schedule rows.
type PeriodKind string

const (
	PeriodDisbursement PeriodKind = "disbursement"
	PeriodDownPayment  PeriodKind = "down_payment"
	PeriodRepayment    PeriodKind = "repayment"
)

// CompoundingDetail is one audit entry: an amount folded into the balance
// at an effective date within the period.
type CompoundingDetail struct {
	EffectiveDate Date
	Amount        money.Money
}

// SchedulePeriod is one emitted schedule row.
type SchedulePeriod struct {
	Kind PeriodKind

	// Repayment rows only.
	Number   int
	FromDate Date
	DueDate  Date

	Principal      money.Money
	Interest       money.Money
	FeeCharges     money.Money
	PenaltyCharges money.Money
	TotalDue       money.Money

	// Balance snapshot after this row.
	OutstandingBalance money.Money

	// RecalculatedInterest marks a row that exists only because a
	// transaction fell strictly between two contractual due dates.
	RecalculatedInterest bool

	// Complete is false when the row was truncated at a pre-closure horizon.
	Complete bool

	// EMIFixedForPeriod marks a row whose EMI came from a single-installment
	// variation.
	EMIFixedForPeriod bool

	CompoundingDetails []CompoundingDetail
}

func disbursementPeriod(at Date, amount, chargesDue money.Money) *SchedulePeriod {
	// Every money field carries the currency; a bare zero value would render
	// without decimal digits and break round-trip comparisons.
	zero := money.Zero(amount.Currency())
	return &SchedulePeriod{
		Kind:               PeriodDisbursement,
		FromDate:           at,
		DueDate:            at,
		Principal:          amount,
		Interest:           zero,
		FeeCharges:         chargesDue,
		PenaltyCharges:     zero,
		TotalDue:           amount.Add(chargesDue),
		OutstandingBalance: zero,
		Complete:           true,
	}
}

func downPaymentPeriod(number int, at Date, amount, outstanding money.Money) *SchedulePeriod {
	zero := money.Zero(amount.Currency())
	return &SchedulePeriod{
		Kind:               PeriodDownPayment,
		Number:             number,
		FromDate:           at,
		DueDate:            at,
		Principal:          amount,
		Interest:           zero,
		FeeCharges:         zero,
		PenaltyCharges:     zero,
		TotalDue:           amount,
		OutstandingBalance: outstanding,
		Complete:           true,
	}
}

// addInterest folds extra interest into an already-built row. Used when a
// trailing zero-principal period is merged into its predecessor and when
// grace residue lands on the final installment.
func (sp *SchedulePeriod) addInterest(amount money.Money) {
	sp.Interest = sp.Interest.Add(amount)
	sp.TotalDue = sp.TotalDue.Add(amount)
}

// =============================================================================
// INSTALLMENT - persisted counterpart of a repayment row
// =============================================================================

// Installment mirrors a repayment period for persistence and transaction
// application. The engine creates it when a period is finalized; repayment
// processors mutate the paid components afterwards. Installments are never
// deleted, only replaced wholesale during regeneration.
type Installment struct {
	Number   int
	FromDate Date
	DueDate  Date

	Principal money.Money
	Interest  money.Money
	Fees      money.Money
	Penalties money.Money

	PrincipalPaid money.Money
	InterestPaid  money.Money
	FeesPaid      money.Money
	PenaltiesPaid money.Money

	InterestWaived money.Money

	// RecalculatedInterest marks an installment injected by the
	// recalculation path rather than the contractual schedule.
	RecalculatedInterest bool

	// DownPayment marks the down-payment row of a tranche. It consumes an
	// installment number but not a repayment period.
	DownPayment bool
}

func installmentFromPeriod(sp *SchedulePeriod, currency money.Currency) *Installment {
	return &Installment{
		Number:               sp.Number,
		DownPayment:          sp.Kind == PeriodDownPayment,
		FromDate:             sp.FromDate,
		DueDate:              sp.DueDate,
		Principal:            sp.Principal,
		Interest:             sp.Interest,
		Fees:                 sp.FeeCharges,
		Penalties:            sp.PenaltyCharges,
		PrincipalPaid:        money.Zero(currency),
		InterestPaid:         money.Zero(currency),
		FeesPaid:             money.Zero(currency),
		PenaltiesPaid:        money.Zero(currency),
		InterestWaived:       money.Zero(currency),
		RecalculatedInterest: sp.RecalculatedInterest,
	}
}

func (i *Installment) PrincipalOutstanding() money.Money {
	return i.Principal.Sub(i.PrincipalPaid).ClampZero()
}

func (i *Installment) InterestOutstanding() money.Money {
	return i.Interest.Sub(i.InterestPaid).Sub(i.InterestWaived).ClampZero()
}

func (i *Installment) FeesOutstanding() money.Money {
	return i.Fees.Sub(i.FeesPaid).ClampZero()
}

func (i *Installment) PenaltiesOutstanding() money.Money {
	return i.Penalties.Sub(i.PenaltiesPaid).ClampZero()
}

func (i *Installment) TotalOutstanding() money.Money {
	return i.PrincipalOutstanding().
		Add(i.InterestOutstanding()).
		Add(i.FeesOutstanding()).
		Add(i.PenaltiesOutstanding())
}

func (i *Installment) IsFullyPaid() bool {
	return i.TotalOutstanding().IsZero()
}

// =============================================================================
// SCHEDULE MODEL - the generation output
// =============================================================================

// ScheduleModel is the ordered schedule plus aggregate totals.
type ScheduleModel struct {
	Currency money.Currency
	Periods  []*SchedulePeriod

	LoanTermInDays         int
	PrincipalToBeScheduled money.Money
	TotalPrincipal         money.Money
	TotalInterest          money.Money
	TotalFeeCharges        money.Money
	TotalPenaltyCharges    money.Money
	TotalRepaymentExpected money.Money
}

// RepaymentPeriods filters the model down to repayment rows.
func (m *ScheduleModel) RepaymentPeriods() []*SchedulePeriod {
	var out []*SchedulePeriod
	for _, p := range m.Periods {
		if p.Kind == PeriodRepayment {
			out = append(out, p)
		}
	}
	return out
}

// Installments materializes persisted installments from the model's
// repayment and down-payment rows.
func (m *ScheduleModel) Installments() []*Installment {
	var out []*Installment
	for _, p := range m.Periods {
		switch p.Kind {
		case PeriodRepayment, PeriodDownPayment:
			out = append(out, installmentFromPeriod(p, m.Currency))
		case PeriodDisbursement:
			// Disbursement rows have no repayment obligation.
		}
	}
	return out
}

// ScheduleUpdate is the regeneration output: retained history plus the
// regenerated tail, ready for the caller to persist.
type ScheduleUpdate struct {
	Model                *ScheduleModel
	RetainedInstallments []*Installment
	Installments         []*Installment // retained + regenerated, in order
}
