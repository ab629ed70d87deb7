/*
handlers.go - HTTP handler implementations

PURPOSE:
  Translates HTTP requests into engine calls and engine results into JSON.
  The handlers own no schedule logic: they parse, delegate to the factory
  and the generator, persist through the store, and render.

ERROR MAPPING:
  400  malformed request body or dates
  404  unknown loan
  422  terms the engine refused (schedule.IsConfigurationError)
  500  everything else

WRITE FLOW:
  Every write that can change the payoff amount (transaction, reschedule)
  regenerates the schedule tail, persists the replacement wholesale, and
  drops the loan's cached prepayment quotes.

SEE ALSO:
  - server.go: route wiring
  - dto.go: wire types and conversions
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/loan-engine/factory"
	"github.com/warp/loan-engine/money"
	"github.com/warp/loan-engine/schedule"
	"github.com/warp/loan-engine/store/sqlite"
)

// Repository is the persistence surface the handlers need. *sqlite.Store
// satisfies it.
type Repository interface {
	CreateLoan(ctx context.Context, name string, terms factory.TermsJSON, charges []factory.ChargeJSON) (*sqlite.Loan, error)
	GetLoan(ctx context.Context, id string) (*sqlite.Loan, error)
	ListLoans(ctx context.Context) ([]*sqlite.Loan, error)
	SaveSchedule(ctx context.Context, loanID string, model *schedule.ScheduleModel, installments []*schedule.Installment) (string, error)
	GetSchedule(ctx context.Context, loanID string) (*sqlite.StoredSchedule, error)
	GetInstallments(ctx context.Context, loanID string) ([]*schedule.Installment, error)
	AppendTransaction(ctx context.Context, loanID string, tx schedule.Transaction) error
	ListTransactions(ctx context.Context, loanID string) ([]schedule.Transaction, error)
}

// Handler holds the dependencies shared by all endpoints.
type Handler struct {
	store   Repository
	factory *factory.TermsFactory
	gen     *schedule.Generator
	quotes  *QuoteCache
	log     *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(store Repository, quotes *QuoteCache, log *zap.Logger) *Handler {
	return &Handler{
		store:   store,
		factory: factory.NewTermsFactory(),
		gen:     schedule.NewGenerator(),
		quotes:  quotes,
		log:     log,
	}
}

// =============================================================================
// PREVIEW
// =============================================================================

// PreviewSchedule generates a schedule from posted terms without persisting.
func (h *Handler) PreviewSchedule(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	model, err := h.generateFromJSON(req.Terms, req.Charges, req.Calendar)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toScheduleResponse(model))
}

// =============================================================================
// LOANS
// =============================================================================

// CreateLoan validates the terms by generating the schedule, then persists
// loan, schedule, and installments together.
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	model, err := h.generateFromJSON(req.Terms, req.Charges, req.Calendar)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	loan, err := h.store.CreateLoan(r.Context(), req.Name, req.Terms, req.Charges)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if _, err := h.store.SaveSchedule(r.Context(), loan.ID, model, model.Installments()); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.log.Info("loan created",
		zap.String("loan_id", loan.ID),
		zap.String("principal", model.PrincipalToBeScheduled.String()),
		zap.Int("periods", len(model.Periods)))

	h.writeJSON(w, http.StatusCreated, LoanResponse{
		ID:        loan.ID,
		Name:      loan.Name,
		Terms:     loan.Terms,
		CreatedAt: loan.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// ListLoans returns all loans.
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.store.ListLoans(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp := make([]LoanResponse, 0, len(loans))
	for _, loan := range loans {
		resp = append(resp, LoanResponse{
			ID:        loan.ID,
			Name:      loan.Name,
			Terms:     loan.Terms,
			CreatedAt: loan.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetLoan returns one loan.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := h.store.GetLoan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, LoanResponse{
		ID:        loan.ID,
		Name:      loan.Name,
		Terms:     loan.Terms,
		CreatedAt: loan.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// GetSchedule returns the loan's persisted schedule.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	stored, err := h.store.GetSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toScheduleResponse(stored.Model))
}

// GetInstallments returns the loan's installments with paid components.
func (h *Handler) GetInstallments(w http.ResponseWriter, r *http.Request) {
	installments, err := h.store.GetInstallments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	resp := make([]InstallmentResponse, 0, len(installments))
	for _, inst := range installments {
		resp = append(resp, toInstallmentResponse(inst))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// TRANSACTIONS AND RESCHEDULING
// =============================================================================

// SubmitTransaction appends a payment and regenerates the schedule tail
// from the transaction date.
func (h *Handler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	loanID := chi.URLParam(r, "id")

	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	txDate, err := parseWireDate(req.Date, "date")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	loan, err := h.store.GetLoan(r.Context(), loanID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	terms, charges, err := h.loanInputs(loan)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	amount, err := parseDecimalAmount(terms, req.Amount)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	kind := schedule.TransactionRepayment
	if req.Kind == "interest_waiver" {
		kind = schedule.TransactionInterestWaiver
	}
	tx := schedule.Transaction{Date: txDate, Amount: amount, Kind: kind}

	if err := h.store.AppendTransaction(r.Context(), loanID, tx); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	update, err := h.regenerate(r.Context(), loanID, terms, charges, txDate, nil)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.quotes.Invalidate(r.Context(), loanID)
	h.log.Info("transaction applied",
		zap.String("loan_id", loanID),
		zap.String("date", txDate.String()),
		zap.String("amount", amount.String()))

	h.writeJSON(w, http.StatusOK, toScheduleResponse(update.Model))
}

// RescheduleLoan regenerates the schedule tail from a caller-chosen date.
func (h *Handler) RescheduleLoan(w http.ResponseWriter, r *http.Request) {
	loanID := chi.URLParam(r, "id")

	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	from, err := parseWireDate(req.From, "from")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	var till *schedule.Date
	if req.Till != "" {
		d, err := parseWireDate(req.Till, "till")
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		till = &d
	}

	loan, err := h.store.GetLoan(r.Context(), loanID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	terms, charges, err := h.loanInputs(loan)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	update, err := h.regenerate(r.Context(), loanID, terms, charges, from, till)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.quotes.Invalidate(r.Context(), loanID)
	h.log.Info("loan rescheduled",
		zap.String("loan_id", loanID),
		zap.String("from", from.String()),
		zap.Int("retained", len(update.RetainedInstallments)))

	h.writeJSON(w, http.StatusOK, toScheduleResponse(update.Model))
}

// GetPrepayment quotes the full payoff amount for a date.
func (h *Handler) GetPrepayment(w http.ResponseWriter, r *http.Request) {
	loanID := chi.URLParam(r, "id")

	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		dateStr = schedule.Today().String()
	}
	onDate, err := parseWireDate(dateStr, "date")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	if cached, ok := h.quotes.Get(r.Context(), loanID, dateStr); ok {
		h.writeJSON(w, http.StatusOK, cached)
		return
	}

	loan, err := h.store.GetLoan(r.Context(), loanID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	terms, charges, err := h.loanInputs(loan)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	installments, err := h.store.GetInstallments(r.Context(), loanID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	transactions, err := h.store.ListTransactions(r.Context(), loanID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	payoff, err := h.gen.CalculatePrepaymentAmount(terms, installments, transactions, charges, schedule.NoHolidays(), onDate)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	resp := toPrepaymentResponse(payoff, onDate)
	h.quotes.Set(r.Context(), loanID, dateStr, resp)
	h.writeJSON(w, http.StatusOK, resp)
}

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// SHARED PLUMBING
// =============================================================================

// generateFromJSON runs the full factory -> generator pipeline.
func (h *Handler) generateFromJSON(tj factory.TermsJSON, cj []factory.ChargeJSON, cal *CalendarDetailJSON) (*schedule.ScheduleModel, error) {
	terms, charges, err := h.factory.FromJSON(withCharges(tj, cj))
	if err != nil {
		return nil, &requestError{err}
	}
	holidays, err := parseCalendarDetail(cal)
	if err != nil {
		return nil, &requestError{err}
	}
	return h.gen.Generate(terms, charges, holidays)
}

// loanInputs rebuilds the engine inputs from a persisted loan.
func (h *Handler) loanInputs(loan *sqlite.Loan) (schedule.LoanTerms, []schedule.Charge, error) {
	return h.factory.FromJSON(withCharges(loan.Terms, loan.Charges))
}

// regenerate runs the tail regeneration and persists the replacement.
func (h *Handler) regenerate(ctx context.Context, loanID string, terms schedule.LoanTerms, charges []schedule.Charge, from schedule.Date, till *schedule.Date) (*schedule.ScheduleUpdate, error) {
	installments, err := h.store.GetInstallments(ctx, loanID)
	if err != nil {
		return nil, err
	}
	transactions, err := h.store.ListTransactions(ctx, loanID)
	if err != nil {
		return nil, err
	}

	update, err := h.gen.RescheduleTail(terms, installments, transactions, charges, schedule.NoHolidays(), from, till)
	if err != nil {
		return nil, err
	}
	if _, err := h.store.SaveSchedule(ctx, loanID, update.Model, update.Installments); err != nil {
		return nil, err
	}
	return update, nil
}

// withCharges folds standalone charge JSON into the terms document the
// factory consumes.
func withCharges(tj factory.TermsJSON, cj []factory.ChargeJSON) factory.TermsJSON {
	if len(cj) > 0 {
		tj.Charges = append(append([]factory.ChargeJSON(nil), tj.Charges...), cj...)
	}
	return tj
}

// parseDecimalAmount parses a wire amount into the loan's currency.
func parseDecimalAmount(terms schedule.LoanTerms, s string) (money.Money, error) {
	if s == "" {
		return money.Zero(terms.Currency), fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return money.Zero(terms.Currency), fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !d.IsPositive() {
		return money.Zero(terms.Currency), fmt.Errorf("amount must be positive")
	}
	return money.New(terms.Currency, d), nil
}

// requestError marks factory/parse failures so writeEngineError can map
// them to 400 instead of 500.
type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("response encoding failed", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
	}
	h.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// writeEngineError maps engine failures onto status codes.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		h.writeError(w, http.StatusBadRequest, err)
	case schedule.IsConfigurationError(err):
		h.writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, sqlite.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err)
	default:
		h.writeError(w, http.StatusInternalServerError, err)
	}
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, sqlite.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, err)
		return
	}
	h.writeError(w, http.StatusInternalServerError, err)
}
