/*
Package factory provides JSON to Go loan terms conversion.

PURPOSE:
  Converts JSON loan product definitions into schedule.LoanTerms and
  schedule.Charge objects. This enables product configuration without code
  changes - product managers can define loan products in JSON, and the
  factory creates the proper Go structs.

WHY JSON?
  - Non-developers can modify loan products
  - Easy integration with admin UI
  - Version control for product definitions
  - Database storage of product configs

JSON SCHEMA:
  {
    "currency": {"code": "USD", "digits": 2},
    "principal": "10000",
    "annual_rate": "12",
    "interest_method": "declining_balance",
    "amortization": "equal_installment",
    "repayment": {"frequency": "monthly", "every": 1, "count": 12},
    "expected_disbursement_date": "2024-01-01",
    "grace": {"principal": 0, "interest_payment": 0, "interest_calculation": 0},
    "recalculation": {
      "enabled": true,
      "compounding": "none",
      "rest_frequency": "monthly",
      "early_payment_strategy": "reduce_emi"
    },
    "charges": [
      {"name": "processing", "time": "disbursement", "calculation": "flat",
       "amount": "50"}
    ]
  }

KEY FEATURES:
  - Validates JSON structure and amounts
  - Sets sensible defaults (monthly, equal installment, declining balance)
  - Parses variations, tranches, and charges into engine types
  - Rejects configurations the engine could never schedule

USAGE:
  factory := NewTermsFactory()

  terms, charges, err := factory.ParseTerms(jsonString)
  if err != nil { ... }

  model, err := generator.Generate(terms, charges, holidays)

SEE ALSO:
  - schedule/terms.go: LoanTerms type definition
  - api/handlers.go: the HTTP consumer of this factory
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/loan-engine/money"
	"github.com/warp/loan-engine/schedule"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// TermsJSON is the JSON representation of a loan's terms.
type TermsJSON struct {
	Currency   CurrencyJSON `json:"currency"`
	Principal  string       `json:"principal"`
	AnnualRate string       `json:"annual_rate"`

	InterestMethod string `json:"interest_method,omitempty"` // flat, declining_balance
	Amortization   string `json:"amortization,omitempty"`    // equal_installment, equal_principal
	ScheduleType   string `json:"schedule_type,omitempty"`   // cumulative, progressive

	Repayment RepaymentJSON `json:"repayment"`

	ExpectedDisbursementDate string `json:"expected_disbursement_date"`
	RepaymentsStartingFrom   string `json:"repayments_starting_from,omitempty"`

	Grace *GraceJSON `json:"grace,omitempty"`

	FixedEMI       string `json:"fixed_emi,omitempty"`
	FixedPrincipal string `json:"fixed_principal,omitempty"`

	Tranches           []TrancheJSON `json:"tranches,omitempty"`
	MaxOutstanding     string        `json:"max_outstanding,omitempty"`
	DownPaymentPercent string        `json:"down_payment_percent,omitempty"`

	Recalculation *RecalculationJSON `json:"recalculation,omitempty"`
	Variations    []VariationJSON    `json:"variations,omitempty"`
	Calendar      *CalendarJSON      `json:"calendar,omitempty"`

	Charges []ChargeJSON `json:"charges,omitempty"`
}

// CurrencyJSON represents the loan currency.
type CurrencyJSON struct {
	Code          string `json:"code"`
	Digits        int32  `json:"digits"`
	InMultiplesOf int64  `json:"in_multiples_of,omitempty"`
}

// RepaymentJSON represents the repayment recurrence.
type RepaymentJSON struct {
	Frequency string `json:"frequency"` // daily, weekly, biweekly, monthly, quarterly, yearly
	Every     int    `json:"every"`
	Count     int    `json:"count"`
}

// GraceJSON represents the three grace settings.
type GraceJSON struct {
	Principal           int `json:"principal,omitempty"`
	InterestPayment     int `json:"interest_payment,omitempty"`
	InterestCalculation int `json:"interest_calculation,omitempty"`
}

// TrancheJSON represents one disbursement tranche.
type TrancheJSON struct {
	Date   string `json:"date"`
	Amount string `json:"amount"`
}

// RecalculationJSON represents interest recalculation configuration.
type RecalculationJSON struct {
	Enabled              bool   `json:"enabled"`
	Compounding          string `json:"compounding,omitempty"` // none, interest, fee, interest_and_fee
	RestFrequency        string `json:"rest_frequency,omitempty"`
	RestEvery            int    `json:"rest_every,omitempty"`
	CompoundingFrequency string `json:"compounding_frequency,omitempty"`
	CompoundingEvery     int    `json:"compounding_every,omitempty"`
	EarlyPaymentStrategy string `json:"early_payment_strategy,omitempty"` // reduce_emi, reduce_installments, reschedule_next
}

// VariationJSON represents one term variation.
type VariationJSON struct {
	Kind                  string `json:"kind"`
	ApplicableFrom        string `json:"applicable_from"`
	DecimalValue          string `json:"decimal_value,omitempty"`
	DateValue             string `json:"date_value,omitempty"`
	SpecificToInstallment bool   `json:"specific_to_installment,omitempty"`
}

// CalendarJSON attaches repayments to a recurring meeting.
type CalendarJSON struct {
	SeedDate  string `json:"seed_date"`
	Frequency string `json:"frequency"`
	Interval  int    `json:"interval"`
}

// ChargeJSON represents one fee or penalty.
type ChargeJSON struct {
	Name        string `json:"name"`
	Penalty     bool   `json:"penalty,omitempty"`
	Calculation string `json:"calculation"` // flat, percent_of_principal, ...
	Time        string `json:"time"`        // disbursement, specified_date, installment
	Amount      string `json:"amount,omitempty"`
	Percent     string `json:"percent,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
}

// =============================================================================
// TERMS FACTORY
// =============================================================================

// TermsFactory converts JSON loan definitions to engine inputs.
type TermsFactory struct{}

// NewTermsFactory creates a new terms factory.
func NewTermsFactory() *TermsFactory {
	return &TermsFactory{}
}

// ParseTerms parses a JSON string into LoanTerms and Charges.
func (f *TermsFactory) ParseTerms(jsonStr string) (schedule.LoanTerms, []schedule.Charge, error) {
	var tj TermsJSON
	if err := json.Unmarshal([]byte(jsonStr), &tj); err != nil {
		return schedule.LoanTerms{}, nil, fmt.Errorf("failed to parse terms JSON: %w", err)
	}
	return f.FromJSON(tj)
}

// FromJSON converts TermsJSON to LoanTerms and Charges.
func (f *TermsFactory) FromJSON(tj TermsJSON) (schedule.LoanTerms, []schedule.Charge, error) {
	if tj.Currency.Code == "" {
		return schedule.LoanTerms{}, nil, fmt.Errorf("currency code is required")
	}
	currency := money.Currency{
		Code:          tj.Currency.Code,
		Digits:        tj.Currency.Digits,
		InMultiplesOf: tj.Currency.InMultiplesOf,
	}

	principal, err := parseAmount(currency, tj.Principal, "principal")
	if err != nil {
		return schedule.LoanTerms{}, nil, err
	}
	rate, err := parseDecimal(tj.AnnualRate, "annual_rate")
	if err != nil {
		return schedule.LoanTerms{}, nil, err
	}
	disbursementDate, err := parseDate(tj.ExpectedDisbursementDate, "expected_disbursement_date")
	if err != nil {
		return schedule.LoanTerms{}, nil, err
	}
	if tj.Repayment.Count <= 0 {
		return schedule.LoanTerms{}, nil, fmt.Errorf("repayment.count must be positive")
	}

	terms := schedule.LoanTerms{
		Currency:                 currency,
		Principal:                principal,
		AnnualNominalRate:        rate,
		InterestMethod:           parseInterestMethod(tj.InterestMethod),
		Amortization:             parseAmortization(tj.Amortization),
		ScheduleType:             parseScheduleType(tj.ScheduleType),
		RepaymentFrequency:       parseRepaymentFrequency(tj.Repayment.Frequency),
		RepaymentEvery:           defaultInt(tj.Repayment.Every, 1),
		NumberOfRepayments:       tj.Repayment.Count,
		ExpectedDisbursementDate: disbursementDate,
		FixedEMI:                 money.Zero(currency),
		FixedPrincipal:           money.Zero(currency),
		MaxOutstanding:           money.Zero(currency),
	}

	if tj.RepaymentsStartingFrom != "" {
		terms.RepaymentsStartingFrom, err = parseDate(tj.RepaymentsStartingFrom, "repayments_starting_from")
		if err != nil {
			return schedule.LoanTerms{}, nil, err
		}
	}

	if tj.Grace != nil {
		terms.PrincipalGrace = tj.Grace.Principal
		terms.InterestPaymentGrace = tj.Grace.InterestPayment
		terms.InterestCalculationGrace = tj.Grace.InterestCalculation
	}

	if tj.FixedEMI != "" {
		terms.FixedEMI, err = parseAmount(currency, tj.FixedEMI, "fixed_emi")
		if err != nil {
			return schedule.LoanTerms{}, nil, err
		}
	}
	if tj.FixedPrincipal != "" {
		terms.FixedPrincipal, err = parseAmount(currency, tj.FixedPrincipal, "fixed_principal")
		if err != nil {
			return schedule.LoanTerms{}, nil, err
		}
	}

	if len(tj.Tranches) > 0 {
		terms.MultiDisbursement = true
		for i, tr := range tj.Tranches {
			date, err := parseDate(tr.Date, fmt.Sprintf("tranches[%d].date", i))
			if err != nil {
				return schedule.LoanTerms{}, nil, err
			}
			amount, err := parseAmount(currency, tr.Amount, fmt.Sprintf("tranches[%d].amount", i))
			if err != nil {
				return schedule.LoanTerms{}, nil, err
			}
			terms.Disbursements = append(terms.Disbursements, schedule.Disbursement{Date: date, Amount: amount})
		}
	}
	if tj.MaxOutstanding != "" {
		terms.MaxOutstanding, err = parseAmount(currency, tj.MaxOutstanding, "max_outstanding")
		if err != nil {
			return schedule.LoanTerms{}, nil, err
		}
	}
	if tj.DownPaymentPercent != "" {
		terms.DownPaymentEnabled = true
		terms.DownPaymentPercent, err = parseDecimal(tj.DownPaymentPercent, "down_payment_percent")
		if err != nil {
			return schedule.LoanTerms{}, nil, err
		}
	}

	if tj.Recalculation != nil && tj.Recalculation.Enabled {
		terms.InterestRecalculation = true
		terms.Compounding = parseCompounding(tj.Recalculation.Compounding)
		terms.RestFrequency = parseFrequency(tj.Recalculation.RestFrequency)
		terms.RestEvery = defaultInt(tj.Recalculation.RestEvery, 1)
		if tj.Recalculation.CompoundingFrequency != "" {
			terms.CompoundingFrequency = parseFrequency(tj.Recalculation.CompoundingFrequency)
			terms.CompoundingEvery = defaultInt(tj.Recalculation.CompoundingEvery, 1)
		}
		terms.EarlyPayment = parseEarlyPaymentStrategy(tj.Recalculation.EarlyPaymentStrategy)
	}

	for i, vj := range tj.Variations {
		v, err := parseVariation(vj, i)
		if err != nil {
			return schedule.LoanTerms{}, nil, err
		}
		terms.Variations = append(terms.Variations, v)
	}

	if tj.Calendar != nil {
		seed, err := parseDate(tj.Calendar.SeedDate, "calendar.seed_date")
		if err != nil {
			return schedule.LoanTerms{}, nil, err
		}
		terms.Calendar = &schedule.MeetingCalendar{
			SeedDate:  seed,
			Frequency: parseFrequency(tj.Calendar.Frequency),
			Interval:  defaultInt(tj.Calendar.Interval, 1),
		}
	}

	var charges []schedule.Charge
	for i, cj := range tj.Charges {
		c, err := parseCharge(currency, cj, i)
		if err != nil {
			return schedule.LoanTerms{}, nil, err
		}
		charges = append(charges, c)
	}

	return terms, charges, nil
}

// ToJSON converts LoanTerms back to TermsJSON. Charges are not round-tripped;
// the API keeps them on the request side only.
func (f *TermsFactory) ToJSON(terms schedule.LoanTerms) TermsJSON {
	tj := TermsJSON{
		Currency: CurrencyJSON{
			Code:          terms.Currency.Code,
			Digits:        terms.Currency.Digits,
			InMultiplesOf: terms.Currency.InMultiplesOf,
		},
		Principal:      terms.Principal.Amount().String(),
		AnnualRate:     terms.AnnualNominalRate.String(),
		InterestMethod: string(terms.InterestMethod),
		Amortization:   string(terms.Amortization),
		ScheduleType:   string(terms.ScheduleType),
		Repayment: RepaymentJSON{
			Frequency: string(terms.RepaymentFrequency),
			Every:     terms.RepaymentEvery,
			Count:     terms.NumberOfRepayments,
		},
		ExpectedDisbursementDate: terms.ExpectedDisbursementDate.String(),
	}
	if !terms.RepaymentsStartingFrom.IsZero() {
		tj.RepaymentsStartingFrom = terms.RepaymentsStartingFrom.String()
	}
	if terms.PrincipalGrace > 0 || terms.InterestPaymentGrace > 0 || terms.InterestCalculationGrace > 0 {
		tj.Grace = &GraceJSON{
			Principal:           terms.PrincipalGrace,
			InterestPayment:     terms.InterestPaymentGrace,
			InterestCalculation: terms.InterestCalculationGrace,
		}
	}
	if terms.InterestRecalculation {
		tj.Recalculation = &RecalculationJSON{
			Enabled:              true,
			Compounding:          string(terms.Compounding),
			RestFrequency:        string(terms.RestFrequency),
			RestEvery:            terms.RestEvery,
			CompoundingFrequency: string(terms.CompoundingFrequency),
			CompoundingEvery:     terms.CompoundingEvery,
			EarlyPaymentStrategy: string(terms.EarlyPayment),
		}
	}
	return tj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseInterestMethod(s string) schedule.InterestMethod {
	switch s {
	case "flat":
		return schedule.InterestFlat
	default:
		return schedule.InterestDecliningBalance
	}
}

func parseAmortization(s string) schedule.AmortizationMethod {
	switch s {
	case "equal_principal":
		return schedule.AmortizationEqualPrincipal
	default:
		return schedule.AmortizationEqualInstallment
	}
}

func parseScheduleType(s string) schedule.ScheduleType {
	switch s {
	case "progressive":
		return schedule.ScheduleProgressive
	default:
		return schedule.ScheduleCumulative
	}
}

// parseRepaymentFrequency defaults an omitted repayment frequency to
// monthly. The rest/compounding paths keep "" to mean unset.
func parseRepaymentFrequency(s string) money.PeriodFrequency {
	if s == "" {
		return money.FrequencyMonthly
	}
	return parseFrequency(s)
}

func parseFrequency(s string) money.PeriodFrequency {
	switch s {
	case "daily":
		return money.FrequencyDaily
	case "weekly":
		return money.FrequencyWeekly
	case "biweekly":
		return money.FrequencyBiweekly
	case "quarterly":
		return money.FrequencyQuarterly
	case "semiannual":
		return money.FrequencySemiannual
	case "yearly":
		return money.FrequencyYearly
	case "":
		return ""
	default:
		return money.FrequencyMonthly
	}
}

func parseCompounding(s string) schedule.CompoundingMethod {
	switch s {
	case "interest":
		return schedule.CompoundInterest
	case "fee":
		return schedule.CompoundFee
	case "interest_and_fee":
		return schedule.CompoundInterestAndFee
	default:
		return schedule.CompoundNone
	}
}

func parseEarlyPaymentStrategy(s string) schedule.EarlyPaymentStrategy {
	switch s {
	case "reduce_installments":
		return schedule.EarlyPaymentReduceInstallments
	case "reschedule_next":
		return schedule.EarlyPaymentRescheduleNext
	default:
		return schedule.EarlyPaymentReduceEMI
	}
}

func parseVariation(vj VariationJSON, i int) (schedule.TermVariation, error) {
	kind, ok := variationKinds[vj.Kind]
	if !ok {
		return schedule.TermVariation{}, fmt.Errorf("variations[%d]: unknown kind %q", i, vj.Kind)
	}
	from, err := parseDate(vj.ApplicableFrom, fmt.Sprintf("variations[%d].applicable_from", i))
	if err != nil {
		return schedule.TermVariation{}, err
	}

	v := schedule.TermVariation{
		Kind:                  kind,
		ApplicableFrom:        from,
		SpecificToInstallment: vj.SpecificToInstallment,
	}
	if vj.DecimalValue != "" {
		v.DecimalValue, err = parseDecimal(vj.DecimalValue, fmt.Sprintf("variations[%d].decimal_value", i))
		if err != nil {
			return schedule.TermVariation{}, err
		}
	}
	if vj.DateValue != "" {
		v.DateValue, err = parseDate(vj.DateValue, fmt.Sprintf("variations[%d].date_value", i))
		if err != nil {
			return schedule.TermVariation{}, err
		}
	}
	return v, nil
}

var variationKinds = map[string]schedule.VariationKind{
	"insert_installment":             schedule.VariationInsertInstallment,
	"delete_installment":             schedule.VariationDeleteInstallment,
	"emi_amount":                     schedule.VariationEMIAmount,
	"principal_amount":               schedule.VariationPrincipalAmount,
	"extend_repayment_period":        schedule.VariationExtendRepaymentPeriod,
	"grace_on_principal":             schedule.VariationGraceOnPrincipal,
	"grace_on_interest":              schedule.VariationGraceOnInterest,
	"interest_rate":                  schedule.VariationInterestRate,
	"interest_rate_from_installment": schedule.VariationInterestRateFromInstallment,
	"due_date":                       schedule.VariationDueDate,
}

func parseCharge(currency money.Currency, cj ChargeJSON, i int) (schedule.Charge, error) {
	c := schedule.Charge{
		Name:    cj.Name,
		Penalty: cj.Penalty,
		Amount:  money.Zero(currency),
	}

	switch cj.Calculation {
	case "flat", "":
		c.Calculation = schedule.ChargeFlat
	case "percent_of_principal":
		c.Calculation = schedule.ChargePercentOfPrincipal
	case "percent_of_interest":
		c.Calculation = schedule.ChargePercentOfInterest
	case "percent_of_principal_and_interest":
		c.Calculation = schedule.ChargePercentOfPrincipalInterest
	default:
		return schedule.Charge{}, fmt.Errorf("charges[%d]: unknown calculation %q", i, cj.Calculation)
	}

	switch cj.Time {
	case "disbursement":
		c.Time = schedule.ChargeAtDisbursement
	case "specified_date":
		c.Time = schedule.ChargeOnSpecifiedDate
	case "installment", "":
		c.Time = schedule.ChargePerInstallment
	default:
		return schedule.Charge{}, fmt.Errorf("charges[%d]: unknown time %q", i, cj.Time)
	}

	var err error
	if c.Calculation == schedule.ChargeFlat {
		c.Amount, err = parseAmount(currency, cj.Amount, fmt.Sprintf("charges[%d].amount", i))
		if err != nil {
			return schedule.Charge{}, err
		}
	} else {
		c.Percent, err = parseDecimal(cj.Percent, fmt.Sprintf("charges[%d].percent", i))
		if err != nil {
			return schedule.Charge{}, err
		}
	}

	if cj.DueDate != "" {
		c.DueDate, err = parseDate(cj.DueDate, fmt.Sprintf("charges[%d].due_date", i))
		if err != nil {
			return schedule.Charge{}, err
		}
	} else if c.Time == schedule.ChargeOnSpecifiedDate {
		return schedule.Charge{}, fmt.Errorf("charges[%d]: specified_date charge requires due_date", i)
	}

	return c, nil
}

func parseAmount(currency money.Currency, s, field string) (money.Money, error) {
	d, err := parseDecimal(s, field)
	if err != nil {
		return money.Zero(currency), err
	}
	return money.New(currency, d), nil
}

func parseDecimal(s, field string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("%s is required", field)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d, nil
}

func parseDate(s, field string) (schedule.Date, error) {
	if s == "" {
		return schedule.Date{}, fmt.Errorf("%s is required", field)
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return schedule.Date{}, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return schedule.DateFromTime(t), nil
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
