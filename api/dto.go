/*
dto.go - HTTP request/response shapes

PURPOSE:
  Defines the JSON types crossing the API boundary and their conversions
  to and from engine types. Money renders as decimal strings at the
  currency's digit count; dates render as YYYY-MM-DD. Engine types never
  leak raw onto the wire.
*/
package api

import (
	"fmt"
	"time"

	"github.com/warp/loan-engine/factory"
	"github.com/warp/loan-engine/schedule"
)

// =============================================================================
// REQUESTS
// =============================================================================

// PreviewRequest generates a schedule without persisting anything.
type PreviewRequest struct {
	Terms    factory.TermsJSON    `json:"terms"`
	Charges  []factory.ChargeJSON `json:"charges,omitempty"`
	Calendar *CalendarDetailJSON  `json:"calendar,omitempty"`
}

// CreateLoanRequest creates a loan and its initial schedule.
type CreateLoanRequest struct {
	Name     string               `json:"name"`
	Terms    factory.TermsJSON    `json:"terms"`
	Charges  []factory.ChargeJSON `json:"charges,omitempty"`
	Calendar *CalendarDetailJSON  `json:"calendar,omitempty"`
}

// TransactionRequest records a payment or waiver against a loan.
type TransactionRequest struct {
	Date   string `json:"date"`
	Amount string `json:"amount"`
	Kind   string `json:"kind,omitempty"` // repayment (default), interest_waiver
}

// RescheduleRequest regenerates the schedule tail.
type RescheduleRequest struct {
	From     string              `json:"from"`
	Till     string              `json:"till,omitempty"`
	Calendar *CalendarDetailJSON `json:"calendar,omitempty"`
}

// CalendarDetailJSON is the wire form of the holiday/working-day bundle.
type CalendarDetailJSON struct {
	Holidays    []HolidayJSON    `json:"holidays,omitempty"`
	WorkingDays *WorkingDaysJSON `json:"working_days,omitempty"`
}

// HolidayJSON is one holiday range.
type HolidayJSON struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Policy        string `json:"policy,omitempty"` // designated_day, next_repayment
	RescheduledTo string `json:"rescheduled_to,omitempty"`
	Name          string `json:"name,omitempty"`
}

// WorkingDaysJSON is the weekly working mask.
type WorkingDaysJSON struct {
	// Days lists working weekdays by name; empty means every day works.
	Days       []string `json:"days,omitempty"`
	Policy     string   `json:"policy,omitempty"` // same_day, next_working_day, next_repayment_day, previous_working_day
	ExtendTerm bool     `json:"extend_term_for_daily,omitempty"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// LoanResponse is the persisted loan envelope.
type LoanResponse struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Terms     factory.TermsJSON `json:"terms"`
	CreatedAt string            `json:"created_at"`
}

// PeriodResponse is one schedule row.
type PeriodResponse struct {
	Kind         string `json:"kind"`
	Number       int    `json:"number,omitempty"`
	FromDate     string `json:"from_date"`
	DueDate      string `json:"due_date"`
	Principal    string `json:"principal"`
	Interest     string `json:"interest"`
	Fees         string `json:"fees"`
	Penalties    string `json:"penalties"`
	TotalDue     string `json:"total_due"`
	Outstanding  string `json:"outstanding_balance"`
	Recalculated bool   `json:"recalculated,omitempty"`
	Complete     bool   `json:"complete"`
}

// ScheduleResponse is the full generated schedule.
type ScheduleResponse struct {
	Currency               string           `json:"currency"`
	LoanTermInDays         int              `json:"loan_term_in_days"`
	PrincipalToBeScheduled string           `json:"principal_to_be_scheduled"`
	TotalPrincipal         string           `json:"total_principal"`
	TotalInterest          string           `json:"total_interest"`
	TotalFees              string           `json:"total_fees"`
	TotalPenalties         string           `json:"total_penalties"`
	TotalRepayment         string           `json:"total_repayment_expected"`
	Periods                []PeriodResponse `json:"periods"`
}

// InstallmentResponse is one persisted repayment obligation.
type InstallmentResponse struct {
	Number         int    `json:"number"`
	FromDate       string `json:"from_date"`
	DueDate        string `json:"due_date"`
	Principal      string `json:"principal"`
	Interest       string `json:"interest"`
	Fees           string `json:"fees"`
	Penalties      string `json:"penalties"`
	PrincipalPaid  string `json:"principal_paid"`
	InterestPaid   string `json:"interest_paid"`
	FeesPaid       string `json:"fees_paid"`
	PenaltiesPaid  string `json:"penalties_paid"`
	InterestWaived string `json:"interest_waived"`
	Outstanding    string `json:"total_outstanding"`
	FullyPaid      bool   `json:"fully_paid"`
	Recalculated   bool   `json:"recalculated,omitempty"`
}

// PrepaymentResponse is the payoff quote for a date.
type PrepaymentResponse struct {
	OnDate    string `json:"on_date"`
	Principal string `json:"principal"`
	Interest  string `json:"interest"`
	Fees      string `json:"fees"`
	Penalties string `json:"penalties"`
	Total     string `json:"total"`
	Cached    bool   `json:"cached,omitempty"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toScheduleResponse(model *schedule.ScheduleModel) ScheduleResponse {
	resp := ScheduleResponse{
		Currency:               model.Currency.Code,
		LoanTermInDays:         model.LoanTermInDays,
		PrincipalToBeScheduled: model.PrincipalToBeScheduled.String(),
		TotalPrincipal:         model.TotalPrincipal.String(),
		TotalInterest:          model.TotalInterest.String(),
		TotalFees:              model.TotalFeeCharges.String(),
		TotalPenalties:         model.TotalPenaltyCharges.String(),
		TotalRepayment:         model.TotalRepaymentExpected.String(),
	}
	for _, p := range model.Periods {
		resp.Periods = append(resp.Periods, PeriodResponse{
			Kind:         string(p.Kind),
			Number:       p.Number,
			FromDate:     p.FromDate.String(),
			DueDate:      p.DueDate.String(),
			Principal:    p.Principal.String(),
			Interest:     p.Interest.String(),
			Fees:         p.FeeCharges.String(),
			Penalties:    p.PenaltyCharges.String(),
			TotalDue:     p.TotalDue.String(),
			Outstanding:  p.OutstandingBalance.String(),
			Recalculated: p.RecalculatedInterest,
			Complete:     p.Complete,
		})
	}
	return resp
}

func toInstallmentResponse(inst *schedule.Installment) InstallmentResponse {
	return InstallmentResponse{
		Number:         inst.Number,
		FromDate:       inst.FromDate.String(),
		DueDate:        inst.DueDate.String(),
		Principal:      inst.Principal.String(),
		Interest:       inst.Interest.String(),
		Fees:           inst.Fees.String(),
		Penalties:      inst.Penalties.String(),
		PrincipalPaid:  inst.PrincipalPaid.String(),
		InterestPaid:   inst.InterestPaid.String(),
		FeesPaid:       inst.FeesPaid.String(),
		PenaltiesPaid:  inst.PenaltiesPaid.String(),
		InterestWaived: inst.InterestWaived.String(),
		Outstanding:    inst.TotalOutstanding().String(),
		FullyPaid:      inst.IsFullyPaid(),
		Recalculated:   inst.RecalculatedInterest,
	}
}

func toPrepaymentResponse(payoff *schedule.Installment, onDate schedule.Date) PrepaymentResponse {
	total := payoff.Principal.Add(payoff.Interest).Add(payoff.Fees).Add(payoff.Penalties)
	return PrepaymentResponse{
		OnDate:    onDate.String(),
		Principal: payoff.Principal.String(),
		Interest:  payoff.Interest.String(),
		Fees:      payoff.Fees.String(),
		Penalties: payoff.Penalties.String(),
		Total:     total.String(),
	}
}

// parseCalendarDetail converts the wire calendar bundle into the engine's
// HolidayDetail. A nil bundle means no adjustment at all.
func parseCalendarDetail(cj *CalendarDetailJSON) (schedule.HolidayDetail, error) {
	if cj == nil {
		return schedule.NoHolidays(), nil
	}

	detail := schedule.NoHolidays()
	for i, hj := range cj.Holidays {
		from, err := parseWireDate(hj.From, fmt.Sprintf("calendar.holidays[%d].from", i))
		if err != nil {
			return detail, err
		}
		to, err := parseWireDate(hj.To, fmt.Sprintf("calendar.holidays[%d].to", i))
		if err != nil {
			return detail, err
		}
		h := schedule.Holiday{From: from, To: to, Name: hj.Name}
		switch hj.Policy {
		case "next_repayment":
			h.Policy = schedule.HolidayRescheduleToNextRepayment
		default:
			h.Policy = schedule.HolidayRescheduleToDesignatedDay
			h.RescheduledTo, err = parseWireDate(hj.RescheduledTo, fmt.Sprintf("calendar.holidays[%d].rescheduled_to", i))
			if err != nil {
				return detail, err
			}
		}
		detail.Holidays = append(detail.Holidays, h)
	}
	detail.HolidaysEnabled = len(detail.Holidays) > 0

	if cj.WorkingDays != nil {
		wd, err := parseWorkingDays(*cj.WorkingDays)
		if err != nil {
			return detail, err
		}
		detail.WorkingDays = wd
	}
	return detail, nil
}

func parseWorkingDays(wj WorkingDaysJSON) (schedule.WorkingDays, error) {
	wd := schedule.EveryDay()
	if len(wj.Days) > 0 {
		wd.Working = [7]bool{}
		for _, name := range wj.Days {
			day, ok := weekdayNames[name]
			if !ok {
				return wd, fmt.Errorf("unknown weekday %q", name)
			}
			wd.Working[day] = true
		}
	}
	switch wj.Policy {
	case "next_working_day":
		wd.Policy = schedule.WorkingDayMoveToNextWorkingDay
	case "next_repayment_day":
		wd.Policy = schedule.WorkingDayMoveToNextRepayment
	case "previous_working_day":
		wd.Policy = schedule.WorkingDayMoveToPreviousDay
	default:
		wd.Policy = schedule.WorkingDaySameDay
	}
	wd.ExtendTermForDailyRepayments = wj.ExtendTerm
	return wd, nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseWireDate(s, field string) (schedule.Date, error) {
	if s == "" {
		return schedule.Date{}, fmt.Errorf("%s is required", field)
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return schedule.Date{}, fmt.Errorf("invalid %s %q: expected YYYY-MM-DD", field, s)
	}
	return schedule.DateFromTime(t), nil
}
