package schedule

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// VARIATION QUEUE
// =============================================================================

func TestVariationQueue_PopConsumesExactlyOnce(t *testing.T) {
	// GIVEN: a queue with one variation applicable in February
	// WHEN: popping it
	// THEN: the queue is empty; the variation cannot apply twice

	q := newVariationQueue([]TermVariation{{
		Kind:           VariationInterestRate,
		ApplicableFrom: NewDate(2024, time.February, 1),
		DecimalValue:   decimal.NewFromInt(15),
	}})

	due := NewDate(2024, time.February, 1)
	if !q.hasVariationOn(due) {
		t.Fatal("expected the variation to be applicable")
	}
	v := q.pop()
	if v.Kind != VariationInterestRate {
		t.Errorf("popped kind = %s, want interest_rate", v.Kind)
	}
	if q.hasVariationOn(due) || !q.isEmpty() {
		t.Error("popped variation still pending")
	}
}

func TestVariationQueue_HeadGatesApplicability(t *testing.T) {
	q := newVariationQueue([]TermVariation{{
		Kind:           VariationGraceOnPrincipal,
		ApplicableFrom: NewDate(2024, time.June, 1),
	}})

	if q.hasVariationOn(NewDate(2024, time.March, 1)) {
		t.Error("June variation must not apply in March")
	}
	if !q.hasVariationOn(NewDate(2024, time.June, 1)) {
		t.Error("variation must apply on its own date")
	}
	if !q.hasVariationOn(NewDate(2024, time.July, 1)) {
		t.Error("variation must apply after its date")
	}
}

func TestVariationQueue_KindFilter(t *testing.T) {
	variations := []TermVariation{
		{Kind: VariationInterestRate, ApplicableFrom: NewDate(2024, time.February, 1)},
		{Kind: VariationInterestRateFromInstallment, ApplicableFrom: NewDate(2024, time.March, 1)},
		{Kind: VariationDueDate, ApplicableFrom: NewDate(2024, time.April, 1)},
	}

	q := newVariationQueue(variations, VariationInterestRateFromInstallment)
	if len(q.pending) != 1 {
		t.Fatalf("expected 1 filtered entry, got %d", len(q.pending))
	}
	if q.pending[0].Kind != VariationInterestRateFromInstallment {
		t.Errorf("filtered kind = %s", q.pending[0].Kind)
	}
}

func TestVariationQueue_DueDateVariationConsumedOutOfOrder(t *testing.T) {
	// GIVEN: a due-date variation sitting behind an unrelated entry
	// WHEN: resolving the exact due date
	// THEN: the match is consumed without disturbing the head

	q := newVariationQueue([]TermVariation{
		{Kind: VariationInterestRate, ApplicableFrom: NewDate(2024, time.June, 1)},
		{
			Kind:           VariationDueDate,
			ApplicableFrom: NewDate(2024, time.March, 1),
			DateValue:      NewDate(2024, time.March, 10),
		},
	})

	v, ok := q.dueDateVariationFor(NewDate(2024, time.March, 1))
	if !ok {
		t.Fatal("expected a due-date variation match")
	}
	if !v.DateValue.Equal(NewDate(2024, time.March, 10)) {
		t.Errorf("replacement date = %s, want 2024-03-10", v.DateValue)
	}
	if len(q.pending) != 1 || q.pending[0].Kind != VariationInterestRate {
		t.Error("unrelated head entry was disturbed")
	}

	if _, ok := q.dueDateVariationFor(NewDate(2024, time.March, 1)); ok {
		t.Error("due-date variation matched twice")
	}
}

func TestLastDueDateValue_PrefersLatestMatch(t *testing.T) {
	end := NewDate(2025, time.January, 1)
	variations := []TermVariation{
		{Kind: VariationDueDate, ApplicableFrom: end, DateValue: NewDate(2025, time.January, 10)},
		{Kind: VariationDueDate, ApplicableFrom: end, DateValue: NewDate(2025, time.January, 20)},
	}

	got, ok := lastDueDateValue(variations, end)
	if !ok {
		t.Fatal("expected a match")
	}
	if !got.Equal(NewDate(2025, time.January, 20)) {
		t.Errorf("projected end = %s, want the later replacement 2025-01-20", got)
	}

	if _, ok := lastDueDateValue(variations, NewDate(2024, time.June, 1)); ok {
		t.Error("matched a date no variation applies to")
	}
}
