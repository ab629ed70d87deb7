/*
Package sqlite provides a SQLite-backed implementation of loan persistence.

PURPOSE:
  Persists loans, their generated schedules, installments, and applied
  transactions using SQLite. In production, the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  loans:         Loan terms (JSON) keyed by id
  schedules:     One row per generated schedule with aggregate totals
  periods:       Schedule rows, replaced wholesale on regeneration
  installments:  Persisted repayment obligations with paid components
  transactions:  Append-only payment history, replayed by regeneration

DECIMAL COLUMNS:
  Money amounts are stored as TEXT in decimal string form. REAL columns
  lose cents; TEXT round-trips shopspring decimals exactly.

REPLACEMENT SEMANTICS:
  Schedules and installments are never updated in place. Regeneration
  deletes and reinserts the loan's rows inside one database transaction,
  mirroring the engine's replace-wholesale contract. The transactions
  table is append-only.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/loans.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - api/handlers.go: the HTTP consumer
  - schedule/period.go: the types persisted here
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/loan-engine/factory"
	"github.com/warp/loan-engine/money"
	"github.com/warp/loan-engine/schedule"
)

// ErrNotFound is returned when a loan or schedule does not exist.
var ErrNotFound = errors.New("not found")

const dateLayout = "2006-01-02"

// Loan is the persisted loan record. Terms are stored as their JSON form
// and rebuilt through the factory on read.
type Loan struct {
	ID        string
	Name      string
	Terms     factory.TermsJSON
	Charges   []factory.ChargeJSON
	CreatedAt time.Time
}

// StoredSchedule is a generated schedule read back from the database.
type StoredSchedule struct {
	ID          string
	LoanID      string
	Model       *schedule.ScheduleModel
	GeneratedAt time.Time
}

// Store implements loan persistence using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		terms_json TEXT NOT NULL,
		charges_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL REFERENCES loans(id),
		currency_code TEXT NOT NULL,
		currency_digits INTEGER NOT NULL,
		currency_multiples INTEGER NOT NULL DEFAULT 0,
		loan_term_days INTEGER NOT NULL,
		principal_scheduled TEXT NOT NULL,
		total_principal TEXT NOT NULL,
		total_interest TEXT NOT NULL,
		total_fees TEXT NOT NULL,
		total_penalties TEXT NOT NULL,
		total_repayment TEXT NOT NULL,
		generated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_schedules_loan
		ON schedules(loan_id);

	CREATE TABLE IF NOT EXISTS periods (
		id TEXT PRIMARY KEY,
		schedule_id TEXT NOT NULL REFERENCES schedules(id),
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		number INTEGER NOT NULL,
		from_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		principal TEXT NOT NULL,
		interest TEXT NOT NULL,
		fees TEXT NOT NULL,
		penalties TEXT NOT NULL,
		total_due TEXT NOT NULL,
		outstanding TEXT NOT NULL,
		recalculated BOOLEAN NOT NULL DEFAULT FALSE,
		complete BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE INDEX IF NOT EXISTS idx_periods_schedule
		ON periods(schedule_id, seq);

	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL REFERENCES loans(id),
		number INTEGER NOT NULL,
		from_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		principal TEXT NOT NULL,
		interest TEXT NOT NULL,
		fees TEXT NOT NULL,
		penalties TEXT NOT NULL,
		principal_paid TEXT NOT NULL,
		interest_paid TEXT NOT NULL,
		fees_paid TEXT NOT NULL,
		penalties_paid TEXT NOT NULL,
		interest_waived TEXT NOT NULL,
		recalculated BOOLEAN NOT NULL DEFAULT FALSE,
		down_payment BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_installments_loan
		ON installments(loan_id, due_date);

	-- Append-only payment history (hot path for regeneration replay)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL REFERENCES loans(id),
		tx_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		kind TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_loan_date
		ON transactions(loan_id, tx_date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOANS
// =============================================================================

// CreateLoan persists a new loan and returns its generated id.
func (s *Store) CreateLoan(ctx context.Context, name string, terms factory.TermsJSON, charges []factory.ChargeJSON) (*Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	termsJSON, err := json.Marshal(terms)
	if err != nil {
		return nil, fmt.Errorf("failed to encode terms: %w", err)
	}
	chargesJSON, err := json.Marshal(charges)
	if err != nil {
		return nil, fmt.Errorf("failed to encode charges: %w", err)
	}

	loan := &Loan{
		ID:        uuid.NewString(),
		Name:      name,
		Terms:     terms,
		Charges:   charges,
		CreatedAt: time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO loans (id, name, terms_json, charges_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		loan.ID, loan.Name, string(termsJSON), string(chargesJSON),
		loan.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert loan: %w", err)
	}
	return loan, nil
}

// GetLoan loads a loan by id.
func (s *Store) GetLoan(ctx context.Context, id string) (*Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, terms_json, charges_json, created_at FROM loans WHERE id = ?`, id)

	var loan Loan
	var termsJSON, chargesJSON, createdAt string
	if err := row.Scan(&loan.ID, &loan.Name, &termsJSON, &chargesJSON, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load loan: %w", err)
	}
	if err := json.Unmarshal([]byte(termsJSON), &loan.Terms); err != nil {
		return nil, fmt.Errorf("failed to decode terms: %w", err)
	}
	if chargesJSON != "" {
		if err := json.Unmarshal([]byte(chargesJSON), &loan.Charges); err != nil {
			return nil, fmt.Errorf("failed to decode charges: %w", err)
		}
	}
	loan.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &loan, nil
}

// ListLoans returns all loans, newest first.
func (s *Store) ListLoans(ctx context.Context) ([]*Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, terms_json, charges_json, created_at FROM loans ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var loans []*Loan
	for rows.Next() {
		var loan Loan
		var termsJSON, chargesJSON, createdAt string
		if err := rows.Scan(&loan.ID, &loan.Name, &termsJSON, &chargesJSON, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(termsJSON), &loan.Terms); err != nil {
			return nil, fmt.Errorf("failed to decode terms: %w", err)
		}
		if chargesJSON != "" {
			if err := json.Unmarshal([]byte(chargesJSON), &loan.Charges); err != nil {
				return nil, fmt.Errorf("failed to decode charges: %w", err)
			}
		}
		loan.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		loans = append(loans, &loan)
	}
	return loans, rows.Err()
}

// =============================================================================
// SCHEDULES AND INSTALLMENTS
// =============================================================================

// SaveSchedule replaces the loan's schedule and installments wholesale
// inside one transaction, matching the engine's regeneration contract.
func (s *Store) SaveSchedule(ctx context.Context, loanID string, model *schedule.ScheduleModel, installments []*schedule.Installment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM periods WHERE schedule_id IN (SELECT id FROM schedules WHERE loan_id = ?)`, loanID); err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schedules WHERE loan_id = ?`, loanID); err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM installments WHERE loan_id = ?`, loanID); err != nil {
		return "", err
	}

	scheduleID := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO schedules
		(id, loan_id, currency_code, currency_digits, currency_multiples, loan_term_days,
		 principal_scheduled, total_principal, total_interest, total_fees, total_penalties,
		 total_repayment, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scheduleID, loanID,
		model.Currency.Code, model.Currency.Digits, model.Currency.InMultiplesOf,
		model.LoanTermInDays,
		model.PrincipalToBeScheduled.Amount().String(),
		model.TotalPrincipal.Amount().String(),
		model.TotalInterest.Amount().String(),
		model.TotalFeeCharges.Amount().String(),
		model.TotalPenaltyCharges.Amount().String(),
		model.TotalRepaymentExpected.Amount().String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert schedule: %w", err)
	}

	for seq, p := range model.Periods {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO periods
			(id, schedule_id, seq, kind, number, from_date, due_date, principal, interest,
			 fees, penalties, total_due, outstanding, recalculated, complete)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), scheduleID, seq, string(p.Kind), p.Number,
			p.FromDate.String(), p.DueDate.String(),
			p.Principal.Amount().String(), p.Interest.Amount().String(),
			p.FeeCharges.Amount().String(), p.PenaltyCharges.Amount().String(),
			p.TotalDue.Amount().String(), p.OutstandingBalance.Amount().String(),
			p.RecalculatedInterest, p.Complete,
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert period: %w", err)
		}
	}

	for _, inst := range installments {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO installments
			(id, loan_id, number, from_date, due_date, principal, interest, fees, penalties,
			 principal_paid, interest_paid, fees_paid, penalties_paid, interest_waived,
			 recalculated, down_payment)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), loanID, inst.Number,
			inst.FromDate.String(), inst.DueDate.String(),
			inst.Principal.Amount().String(), inst.Interest.Amount().String(),
			inst.Fees.Amount().String(), inst.Penalties.Amount().String(),
			inst.PrincipalPaid.Amount().String(), inst.InterestPaid.Amount().String(),
			inst.FeesPaid.Amount().String(), inst.PenaltiesPaid.Amount().String(),
			inst.InterestWaived.Amount().String(), inst.RecalculatedInterest, inst.DownPayment,
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert installment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit schedule: %w", err)
	}
	return scheduleID, nil
}

// GetSchedule loads the loan's schedule with its periods.
func (s *Store) GetSchedule(ctx context.Context, loanID string) (*StoredSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, currency_code, currency_digits, currency_multiples, loan_term_days,
		       principal_scheduled, total_principal, total_interest, total_fees,
		       total_penalties, total_repayment, generated_at
		FROM schedules WHERE loan_id = ?`, loanID)

	var st StoredSchedule
	st.LoanID = loanID
	var currency money.Currency
	var principalScheduled, totalPrincipal, totalInterest, totalFees, totalPenalties, totalRepayment string
	var loanTermDays int
	var generatedAt string
	err := row.Scan(&st.ID, &currency.Code, &currency.Digits, &currency.InMultiplesOf, &loanTermDays,
		&principalScheduled, &totalPrincipal, &totalInterest, &totalFees,
		&totalPenalties, &totalRepayment, &generatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}

	model := &schedule.ScheduleModel{
		Currency:               currency,
		LoanTermInDays:         loanTermDays,
		PrincipalToBeScheduled: scanMoney(currency, principalScheduled),
		TotalPrincipal:         scanMoney(currency, totalPrincipal),
		TotalInterest:          scanMoney(currency, totalInterest),
		TotalFeeCharges:        scanMoney(currency, totalFees),
		TotalPenaltyCharges:    scanMoney(currency, totalPenalties),
		TotalRepaymentExpected: scanMoney(currency, totalRepayment),
	}
	st.GeneratedAt, _ = time.Parse(time.RFC3339, generatedAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, number, from_date, due_date, principal, interest, fees, penalties,
		       total_due, outstanding, recalculated, complete
		FROM periods WHERE schedule_id = ? ORDER BY seq`, st.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load periods: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p schedule.SchedulePeriod
		var kind, fromDate, dueDate string
		var principal, interest, fees, penalties, totalDue, outstanding string
		if err := rows.Scan(&kind, &p.Number, &fromDate, &dueDate, &principal, &interest,
			&fees, &penalties, &totalDue, &outstanding, &p.RecalculatedInterest, &p.Complete); err != nil {
			return nil, err
		}
		p.Kind = schedule.PeriodKind(kind)
		p.FromDate = scanDate(fromDate)
		p.DueDate = scanDate(dueDate)
		p.Principal = scanMoney(currency, principal)
		p.Interest = scanMoney(currency, interest)
		p.FeeCharges = scanMoney(currency, fees)
		p.PenaltyCharges = scanMoney(currency, penalties)
		p.TotalDue = scanMoney(currency, totalDue)
		p.OutstandingBalance = scanMoney(currency, outstanding)
		model.Periods = append(model.Periods, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	st.Model = model
	return &st, nil
}

// GetInstallments loads the loan's installments in due-date order.
func (s *Store) GetInstallments(ctx context.Context, loanID string) ([]*schedule.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	currency, err := s.loadCurrency(ctx, loanID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT number, from_date, due_date, principal, interest, fees, penalties,
		       principal_paid, interest_paid, fees_paid, penalties_paid, interest_waived,
		       recalculated, down_payment
		FROM installments WHERE loan_id = ? ORDER BY due_date, number`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load installments: %w", err)
	}
	defer rows.Close()

	var installments []*schedule.Installment
	for rows.Next() {
		var inst schedule.Installment
		var fromDate, dueDate string
		var principal, interest, fees, penalties string
		var principalPaid, interestPaid, feesPaid, penaltiesPaid, interestWaived string
		if err := rows.Scan(&inst.Number, &fromDate, &dueDate, &principal, &interest, &fees,
			&penalties, &principalPaid, &interestPaid, &feesPaid, &penaltiesPaid,
			&interestWaived, &inst.RecalculatedInterest, &inst.DownPayment); err != nil {
			return nil, err
		}
		inst.FromDate = scanDate(fromDate)
		inst.DueDate = scanDate(dueDate)
		inst.Principal = scanMoney(currency, principal)
		inst.Interest = scanMoney(currency, interest)
		inst.Fees = scanMoney(currency, fees)
		inst.Penalties = scanMoney(currency, penalties)
		inst.PrincipalPaid = scanMoney(currency, principalPaid)
		inst.InterestPaid = scanMoney(currency, interestPaid)
		inst.FeesPaid = scanMoney(currency, feesPaid)
		inst.PenaltiesPaid = scanMoney(currency, penaltiesPaid)
		inst.InterestWaived = scanMoney(currency, interestWaived)
		installments = append(installments, &inst)
	}
	return installments, rows.Err()
}

// =============================================================================
// TRANSACTIONS (append-only)
// =============================================================================

// AppendTransaction records one payment or waiver. The table is append-only;
// corrections happen through regeneration, never through UPDATE.
func (s *Store) AppendTransaction(ctx context.Context, loanID string, tx schedule.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, loan_id, tx_date, amount, kind, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), loanID,
		tx.Date.String(), tx.Amount.Amount().String(), string(tx.Kind),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// ListTransactions returns the loan's payment history in date order.
func (s *Store) ListTransactions(ctx context.Context, loanID string) ([]schedule.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	currency, err := s.loadCurrency(ctx, loanID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT tx_date, amount, kind FROM transactions WHERE loan_id = ? ORDER BY tx_date, created_at`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []schedule.Transaction
	for rows.Next() {
		var txDate, amount, kind string
		if err := rows.Scan(&txDate, &amount, &kind); err != nil {
			return nil, err
		}
		txs = append(txs, schedule.Transaction{
			Date:   scanDate(txDate),
			Amount: scanMoney(currency, amount),
			Kind:   schedule.TransactionKind(kind),
		})
	}
	return txs, rows.Err()
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

// loadCurrency reads the loan's currency from its stored terms.
func (s *Store) loadCurrency(ctx context.Context, loanID string) (money.Currency, error) {
	row := s.db.QueryRowContext(ctx, `SELECT terms_json FROM loans WHERE id = ?`, loanID)
	var termsJSON string
	if err := row.Scan(&termsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return money.Currency{}, ErrNotFound
		}
		return money.Currency{}, fmt.Errorf("failed to load loan terms: %w", err)
	}
	var terms factory.TermsJSON
	if err := json.Unmarshal([]byte(termsJSON), &terms); err != nil {
		return money.Currency{}, fmt.Errorf("failed to decode loan terms: %w", err)
	}
	return money.Currency{
		Code:          terms.Currency.Code,
		Digits:        terms.Currency.Digits,
		InMultiplesOf: terms.Currency.InMultiplesOf,
	}, nil
}

func scanMoney(currency money.Currency, s string) money.Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		d = decimal.Zero
	}
	return money.New(currency, d)
}

func scanDate(s string) schedule.Date {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return schedule.Date{}
	}
	return schedule.DateFromTime(t)
}
