/*
allocation.go - Transactions and the repayment-allocation collaborator

PURPOSE:
  The engine replays loan transactions against installments to tell early
  payments apart from on-time ones. How a payment spreads across an
  installment's components is the repayment-allocation strategy's
  business, an external collaborator behind the PaymentAllocator
  interface. The engine only needs the unprocessed remainder back: that is
  the early-payment amount that reduces principal ahead of schedule.

DEFAULT STRATEGY:
  OrderedAllocator pays penalties, then fees, then interest, then
  principal, oldest due installment first, touching only installments due
  on or before the transaction date. Anything left is early payment.
*/
package schedule

import "github.com/warp/loan-engine/money"

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionKind discriminates replayed loan transactions.
type TransactionKind string

const (
	TransactionRepayment      TransactionKind = "repayment"
	TransactionInterestWaiver TransactionKind = "interest_waiver"
)

// Transaction is one applied payment or waiver, copied for replay.
type Transaction struct {
	Date   Date
	Amount money.Money
	Kind   TransactionKind
}

// RecalculationDetail queues a transaction awaiting application against the
// in-progress schedule. The engine pops details as it consumes them, so
// each applies exactly once per generation call.
type RecalculationDetail struct {
	Transaction Transaction
}

// =============================================================================
// PAYMENT ALLOCATOR - external collaborator contract
// =============================================================================

// PaymentAllocator spreads a transaction across installments, mutating
// their paid components, and returns the unprocessed remainder.
type PaymentAllocator interface {
	Allocate(tx Transaction, installments []*Installment) money.Money
}

// OrderedAllocator is the default strategy: penalties, fees, interest,
// principal, oldest installment first.
type OrderedAllocator struct{}

func (OrderedAllocator) Allocate(tx Transaction, installments []*Installment) money.Money {
	remaining := tx.Amount

	if tx.Kind == TransactionInterestWaiver {
		for _, inst := range installments {
			if remaining.IsZero() {
				break
			}
			waive := remaining.Min(inst.InterestOutstanding())
			inst.InterestWaived = inst.InterestWaived.Add(waive)
			remaining = remaining.Sub(waive)
		}
		return remaining
	}

	for _, inst := range installments {
		if remaining.IsZero() {
			break
		}
		if inst.DueDate.After(tx.Date) {
			continue
		}
		remaining = payComponent(remaining, inst.PenaltiesOutstanding(), &inst.PenaltiesPaid)
		remaining = payComponent(remaining, inst.FeesOutstanding(), &inst.FeesPaid)
		remaining = payComponent(remaining, inst.InterestOutstanding(), &inst.InterestPaid)
		remaining = payComponent(remaining, inst.PrincipalOutstanding(), &inst.PrincipalPaid)
	}
	return remaining
}

func payComponent(available, outstanding money.Money, paid *money.Money) money.Money {
	if available.IsZero() || outstanding.IsZero() {
		return available
	}
	portion := available.Min(outstanding)
	*paid = paid.Add(portion)
	return available.Sub(portion)
}
