package factory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loan-engine/factory"
	"github.com/warp/loan-engine/money"
	"github.com/warp/loan-engine/schedule"
)

// =============================================================================
// FULL PARSE
// =============================================================================

func TestParseTerms_CompleteDefinition(t *testing.T) {
	// GIVEN: a complete JSON product definition
	// WHEN: parsing
	// THEN: every section lands on the corresponding engine field

	jsonStr := `{
		"currency": {"code": "USD", "digits": 2},
		"principal": "10000",
		"annual_rate": "12",
		"interest_method": "declining_balance",
		"amortization": "equal_installment",
		"schedule_type": "cumulative",
		"repayment": {"frequency": "monthly", "every": 1, "count": 12},
		"expected_disbursement_date": "2024-01-01",
		"repayments_starting_from": "2024-02-15",
		"grace": {"principal": 1, "interest_payment": 2, "interest_calculation": 3},
		"max_outstanding": "15000",
		"down_payment_percent": "25",
		"recalculation": {
			"enabled": true,
			"compounding": "interest",
			"rest_frequency": "monthly",
			"compounding_frequency": "weekly",
			"early_payment_strategy": "reschedule_next"
		},
		"variations": [
			{"kind": "due_date", "applicable_from": "2024-03-01", "date_value": "2024-03-10"},
			{"kind": "emi_amount", "applicable_from": "2024-06-01", "decimal_value": "900",
			 "specific_to_installment": true}
		],
		"calendar": {"seed_date": "2024-01-01", "frequency": "weekly", "interval": 2},
		"charges": [
			{"name": "processing", "time": "disbursement", "calculation": "flat", "amount": "50"},
			{"name": "levy", "time": "specified_date", "calculation": "percent_of_interest",
			 "percent": "10", "due_date": "2024-06-01"}
		]
	}`

	terms, charges, err := factory.NewTermsFactory().ParseTerms(jsonStr)
	require.NoError(t, err)

	assert.Equal(t, "USD", terms.Currency.Code)
	assert.Equal(t, "10000.00", terms.Principal.String())
	assert.Equal(t, "12", terms.AnnualNominalRate.String())
	assert.Equal(t, schedule.InterestDecliningBalance, terms.InterestMethod)
	assert.Equal(t, schedule.AmortizationEqualInstallment, terms.Amortization)
	assert.Equal(t, schedule.ScheduleCumulative, terms.ScheduleType)
	assert.Equal(t, money.FrequencyMonthly, terms.RepaymentFrequency)
	assert.Equal(t, 12, terms.NumberOfRepayments)
	assert.True(t, terms.ExpectedDisbursementDate.Equal(schedule.NewDate(2024, time.January, 1)))
	assert.True(t, terms.RepaymentsStartingFrom.Equal(schedule.NewDate(2024, time.February, 15)))

	assert.Equal(t, 1, terms.PrincipalGrace)
	assert.Equal(t, 2, terms.InterestPaymentGrace)
	assert.Equal(t, 3, terms.InterestCalculationGrace)

	assert.Equal(t, "15000.00", terms.MaxOutstanding.String())
	assert.True(t, terms.DownPaymentEnabled)
	assert.Equal(t, "25", terms.DownPaymentPercent.String())

	assert.True(t, terms.InterestRecalculation)
	assert.Equal(t, schedule.CompoundInterest, terms.Compounding)
	assert.Equal(t, money.FrequencyMonthly, terms.RestFrequency)
	assert.Equal(t, money.FrequencyWeekly, terms.CompoundingFrequency)
	assert.Equal(t, schedule.EarlyPaymentRescheduleNext, terms.EarlyPayment)

	require.Len(t, terms.Variations, 2)
	assert.Equal(t, schedule.VariationDueDate, terms.Variations[0].Kind)
	assert.True(t, terms.Variations[0].DateValue.Equal(schedule.NewDate(2024, time.March, 10)))
	assert.Equal(t, schedule.VariationEMIAmount, terms.Variations[1].Kind)
	assert.True(t, terms.Variations[1].SpecificToInstallment)

	require.NotNil(t, terms.Calendar)
	assert.Equal(t, money.FrequencyWeekly, terms.Calendar.Frequency)
	assert.Equal(t, 2, terms.Calendar.Interval)

	require.Len(t, charges, 2)
	assert.Equal(t, schedule.ChargeAtDisbursement, charges[0].Time)
	assert.Equal(t, "50.00", charges[0].Amount.String())
	assert.Equal(t, schedule.ChargePercentOfInterest, charges[1].Calculation)
	assert.Equal(t, "10", charges[1].Percent.String())
}

func TestParseTerms_TranchesEnableMultiDisbursement(t *testing.T) {
	jsonStr := `{
		"currency": {"code": "USD", "digits": 2},
		"principal": "10000",
		"annual_rate": "12",
		"repayment": {"frequency": "monthly", "every": 1, "count": 12},
		"expected_disbursement_date": "2024-01-01",
		"tranches": [
			{"date": "2024-01-01", "amount": "6000"},
			{"date": "2024-03-15", "amount": "4000"}
		]
	}`

	terms, _, err := factory.NewTermsFactory().ParseTerms(jsonStr)
	require.NoError(t, err)

	assert.True(t, terms.MultiDisbursement)
	require.Len(t, terms.Disbursements, 2)
	assert.Equal(t, "6000.00", terms.Disbursements[0].Amount.String())
	assert.Equal(t, "10000.00", terms.PrincipalToBeScheduled().String())
}

// =============================================================================
// DEFAULTS
// =============================================================================

func TestParseTerms_Defaults(t *testing.T) {
	// The minimal definition falls back to a monthly declining-balance
	// annuity with no recalculation.
	jsonStr := `{
		"currency": {"code": "EUR", "digits": 2},
		"principal": "5000",
		"annual_rate": "10",
		"repayment": {"count": 6},
		"expected_disbursement_date": "2024-01-01"
	}`

	terms, charges, err := factory.NewTermsFactory().ParseTerms(jsonStr)
	require.NoError(t, err)

	assert.Equal(t, schedule.InterestDecliningBalance, terms.InterestMethod)
	assert.Equal(t, schedule.AmortizationEqualInstallment, terms.Amortization)
	assert.Equal(t, schedule.ScheduleCumulative, terms.ScheduleType)
	assert.Equal(t, money.FrequencyMonthly, terms.RepaymentFrequency)
	assert.Equal(t, 1, terms.RepaymentEvery)
	assert.False(t, terms.InterestRecalculation)
	assert.False(t, terms.MultiDisbursement)
	assert.Empty(t, charges)
	assert.True(t, terms.FixedEMI.IsZero())
	assert.True(t, terms.FixedPrincipal.IsZero())
}

func TestParseTerms_SemiannualRepayment(t *testing.T) {
	jsonStr := `{
		"currency": {"code": "USD", "digits": 2},
		"principal": "5000",
		"annual_rate": "10",
		"repayment": {"frequency": "semiannual", "count": 4},
		"expected_disbursement_date": "2024-01-01"
	}`

	terms, _, err := factory.NewTermsFactory().ParseTerms(jsonStr)
	require.NoError(t, err)

	assert.Equal(t, money.FrequencySemiannual, terms.RepaymentFrequency)
}

func TestParseTerms_RecalculationDisabledBlockIgnored(t *testing.T) {
	jsonStr := `{
		"currency": {"code": "USD", "digits": 2},
		"principal": "5000",
		"annual_rate": "10",
		"repayment": {"count": 6},
		"expected_disbursement_date": "2024-01-01",
		"recalculation": {"enabled": false, "compounding": "interest"}
	}`

	terms, _, err := factory.NewTermsFactory().ParseTerms(jsonStr)
	require.NoError(t, err)
	assert.False(t, terms.InterestRecalculation)
	assert.Empty(t, string(terms.Compounding))
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestParseTerms_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		jsonStr string
		wantErr string
	}{
		{
			name:    "missing currency",
			jsonStr: `{"principal": "1000", "annual_rate": "10", "repayment": {"count": 6}, "expected_disbursement_date": "2024-01-01"}`,
			wantErr: "currency code is required",
		},
		{
			name:    "missing principal",
			jsonStr: `{"currency": {"code": "USD", "digits": 2}, "annual_rate": "10", "repayment": {"count": 6}, "expected_disbursement_date": "2024-01-01"}`,
			wantErr: "principal is required",
		},
		{
			name:    "zero repayment count",
			jsonStr: `{"currency": {"code": "USD", "digits": 2}, "principal": "1000", "annual_rate": "10", "repayment": {"count": 0}, "expected_disbursement_date": "2024-01-01"}`,
			wantErr: "repayment.count must be positive",
		},
		{
			name:    "malformed date",
			jsonStr: `{"currency": {"code": "USD", "digits": 2}, "principal": "1000", "annual_rate": "10", "repayment": {"count": 6}, "expected_disbursement_date": "01/15/2024"}`,
			wantErr: "invalid expected_disbursement_date",
		},
		{
			name:    "malformed JSON",
			jsonStr: `{"currency":`,
			wantErr: "failed to parse terms JSON",
		},
		{
			name: "unknown variation kind",
			jsonStr: `{"currency": {"code": "USD", "digits": 2}, "principal": "1000", "annual_rate": "10",
				"repayment": {"count": 6}, "expected_disbursement_date": "2024-01-01",
				"variations": [{"kind": "skip_payment", "applicable_from": "2024-02-01"}]}`,
			wantErr: "unknown kind",
		},
		{
			name: "specified date charge without due date",
			jsonStr: `{"currency": {"code": "USD", "digits": 2}, "principal": "1000", "annual_rate": "10",
				"repayment": {"count": 6}, "expected_disbursement_date": "2024-01-01",
				"charges": [{"name": "fee", "time": "specified_date", "calculation": "flat", "amount": "10"}]}`,
			wantErr: "requires due_date",
		},
		{
			name: "unknown charge calculation",
			jsonStr: `{"currency": {"code": "USD", "digits": 2}, "principal": "1000", "annual_rate": "10",
				"repayment": {"count": 6}, "expected_disbursement_date": "2024-01-01",
				"charges": [{"name": "fee", "calculation": "percent_of_vibes", "amount": "10"}]}`,
			wantErr: "unknown calculation",
		},
	}

	f := factory.NewTermsFactory()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.ParseTerms(tc.jsonStr)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

// =============================================================================
// ROUND TRIP
// =============================================================================

func TestToJSON_RoundTripsCoreTerms(t *testing.T) {
	jsonStr := `{
		"currency": {"code": "USD", "digits": 2},
		"principal": "10000",
		"annual_rate": "12",
		"repayment": {"frequency": "monthly", "every": 1, "count": 12},
		"expected_disbursement_date": "2024-01-01",
		"grace": {"principal": 2},
		"recalculation": {"enabled": true, "rest_frequency": "monthly", "early_payment_strategy": "reduce_emi"}
	}`

	f := factory.NewTermsFactory()
	terms, _, err := f.ParseTerms(jsonStr)
	require.NoError(t, err)

	tj := f.ToJSON(terms)
	reparsed, _, err := f.FromJSON(tj)
	require.NoError(t, err)

	assert.Equal(t, terms.Principal.String(), reparsed.Principal.String())
	assert.Equal(t, terms.AnnualNominalRate.String(), reparsed.AnnualNominalRate.String())
	assert.Equal(t, terms.NumberOfRepayments, reparsed.NumberOfRepayments)
	assert.Equal(t, terms.PrincipalGrace, reparsed.PrincipalGrace)
	assert.Equal(t, terms.InterestRecalculation, reparsed.InterestRecalculation)
	assert.Equal(t, terms.EarlyPayment, reparsed.EarlyPayment)
	assert.True(t, terms.ExpectedDisbursementDate.Equal(reparsed.ExpectedDisbursementDate))
}

// =============================================================================
// FACTORY OUTPUT DRIVES THE ENGINE
// =============================================================================

func TestParseTerms_OutputGenerates(t *testing.T) {
	// The parsed terms must be directly consumable by the generator.
	jsonStr := `{
		"currency": {"code": "USD", "digits": 2},
		"principal": "10000",
		"annual_rate": "12",
		"repayment": {"frequency": "monthly", "every": 1, "count": 12},
		"expected_disbursement_date": "2024-01-01"
	}`

	terms, charges, err := factory.NewTermsFactory().ParseTerms(jsonStr)
	require.NoError(t, err)

	model, err := schedule.NewGenerator().Generate(terms, charges, schedule.NoHolidays())
	require.NoError(t, err)
	assert.Equal(t, "10000.00", model.TotalPrincipal.String())
	assert.Equal(t, "888.49", model.RepaymentPeriods()[0].TotalDue.String())
}
