package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"pennywise/internal/core"

	_ "modernc.org/sqlite"
)

// Repository is the durable source of truth for categories, transactions,
// savings goals and key/value settings, backed by a local SQLite database.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (or creates) the database at dbPath and runs migrations.
// Failure here is fatal for the application: nothing works without a store.
func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const txSelect = `SELECT t.id, t.type, t.category_id, c.name, t.amount_cents, t.date,
       t.tags, t.receipt_uri, t.is_recurring, t.frequency, t.next_run_date, t.exclude_from_limits
  FROM transactions t
  LEFT JOIN categories c ON t.category_id = c.id`

// --- Categories ---

func (r *Repository) CreateCategory(ctx context.Context, c core.Category) (int64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (name, monthly_budget_cents, exclude_from_limits) VALUES (?, ?, ?)`,
		c.Name, c.MonthlyBudget.Cents, boolToInt(c.ExcludeFromLimits))
	if err != nil {
		return 0, fmt.Errorf("create category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("category insert id: %w", err)
	}

	slog.InfoContext(ctx, "Category saved",
		"id", id,
		"name", c.Name,
		"budget_cents", c.MonthlyBudget.Cents)

	return id, nil
}

// ListCategories returns all categories sorted by name.
func (r *Repository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, monthly_budget_cents, exclude_from_limits FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		var excl int64
		if err := rows.Scan(&c.ID, &c.Name, &c.MonthlyBudget.Cents, &excl); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.ExcludeFromLimits = excl != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// CategoryByName looks a category up by name, case-insensitively.
// Returns sql.ErrNoRows when no such category exists.
func (r *Repository) CategoryByName(ctx context.Context, name string) (core.Category, error) {
	var c core.Category
	var excl int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, monthly_budget_cents, exclude_from_limits
		   FROM categories WHERE LOWER(TRIM(name)) = LOWER(TRIM(?))`, name).
		Scan(&c.ID, &c.Name, &c.MonthlyBudget.Cents, &excl)
	if err != nil {
		return core.Category{}, err
	}
	c.ExcludeFromLimits = excl != 0
	return c, nil
}

func (r *Repository) UpdateCategoryBudget(ctx context.Context, id int64, budget core.Money) error {
	if budget.Cents < 0 {
		return core.ErrInvalidAmount
	}
	if _, err := r.db.ExecContext(ctx,
		`UPDATE categories SET monthly_budget_cents = ? WHERE id = ?`, budget.Cents, id); err != nil {
		return fmt.Errorf("update category budget: %w", err)
	}
	return nil
}

func (r *Repository) SetCategoryExcludeFromLimits(ctx context.Context, id int64, exclude bool) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE categories SET exclude_from_limits = ? WHERE id = ?`, boolToInt(exclude), id); err != nil {
		return fmt.Errorf("set category exclude flag: %w", err)
	}
	return nil
}

// DeleteCategory removes a category. Its transactions are kept and have their
// category reference nulled, never cascade-deleted.
func (r *Repository) DeleteCategory(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete category: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE transactions SET category_id = NULL WHERE category_id = ?`, id); err != nil {
		return fmt.Errorf("detach category transactions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return tx.Commit()
}

// RemoveDuplicateCategories keeps the lowest id per category name and deletes
// the rest. Runs once per initialization; safe to call repeatedly.
func (r *Repository) RemoveDuplicateCategories(ctx context.Context) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM categories
		 WHERE id NOT IN (
			SELECT MIN(id) FROM categories GROUP BY LOWER(TRIM(name))
		 )`)
	if err != nil {
		return fmt.Errorf("remove duplicate categories: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		slog.InfoContext(ctx, "Removed duplicate categories", "count", n)
	}
	return nil
}

func (r *Repository) CountCategories(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return n, nil
}

// --- Transactions ---

func (r *Repository) CreateTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions
		  (type, category_id, amount_cents, date, tags, receipt_uri,
		   is_recurring, frequency, next_run_date, exclude_from_limits)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(t.Type), t.CategoryID, t.Amount.Cents, t.Date.ISO(),
		nullString(t.Tags), nullString(t.ReceiptURI),
		boolToInt(t.IsRecurring), nullString(string(t.Frequency)), nullString(t.NextRunDate.ISO()),
		boolToInt(t.ExcludeFromLimits))
	if err != nil {
		return 0, fmt.Errorf("create transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("transaction insert id: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", id,
		"type", t.Type,
		"amount_cents", t.Amount.Cents,
		"date", t.Date.ISO())

	return id, nil
}

func (r *Repository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		   SET type = ?, category_id = ?, amount_cents = ?, date = ?, tags = ?, receipt_uri = ?,
		       is_recurring = ?, frequency = ?, next_run_date = ?, exclude_from_limits = ?
		 WHERE id = ?`,
		string(t.Type), t.CategoryID, t.Amount.Cents, t.Date.ISO(),
		nullString(t.Tags), nullString(t.ReceiptURI),
		boolToInt(t.IsRecurring), nullString(string(t.Frequency)), nullString(t.NextRunDate.ISO()),
		boolToInt(t.ExcludeFromLimits), t.ID); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

func (r *Repository) DeleteTransaction(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

// ListTransactions returns every transaction, newest first, with the category
// name joined in so callers never need a second lookup.
func (r *Repository) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	return r.queryTransactions(ctx, txSelect+` ORDER BY t.date DESC, t.id DESC`)
}

// TransactionsByMonth returns transactions within a calendar month.
func (r *Repository) TransactionsByMonth(ctx context.Context, year, month int) ([]core.Transaction, error) {
	prefix := fmt.Sprintf("%04d-%02d", year, month)
	return r.queryTransactions(ctx,
		txSelect+` WHERE t.date LIKE ? ORDER BY t.date DESC, t.id DESC`, prefix+"%")
}

func (r *Repository) TransactionsByDateRange(ctx context.Context, start, end core.Date) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		txSelect+` WHERE t.date >= ? AND t.date <= ? ORDER BY t.date DESC, t.id DESC`,
		start.ISO(), end.ISO())
}

func (r *Repository) TransactionsByCategory(ctx context.Context, categoryID int64) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		txSelect+` WHERE t.category_id = ? ORDER BY t.date DESC, t.id DESC`, categoryID)
}

// TransactionsByTag matches the tag as a substring of the comma-separated
// tags column.
func (r *Repository) TransactionsByTag(ctx context.Context, tag string) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		txSelect+` WHERE t.tags LIKE ? ORDER BY t.date DESC, t.id DESC`, "%"+tag+"%")
}

// DueRecurringTemplates returns recurring templates whose next run date is on
// or before asOf.
func (r *Repository) DueRecurringTemplates(ctx context.Context, asOf core.Date) ([]core.Transaction, error) {
	return r.queryTransactions(ctx,
		txSelect+` WHERE t.is_recurring = 1 AND t.next_run_date IS NOT NULL AND t.next_run_date <= ?
		 ORDER BY t.date DESC, t.id DESC`, asOf.ISO())
}

// AdvanceRecurringTemplate moves a template's next run date forward.
func (r *Repository) AdvanceRecurringTemplate(ctx context.Context, id int64, next core.Date) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET next_run_date = ? WHERE id = ?`, next.ISO(), id); err != nil {
		return fmt.Errorf("advance recurring template: %w", err)
	}
	return nil
}

func (r *Repository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(rows *sql.Rows) (core.Transaction, error) {
	var (
		t           core.Transaction
		txType      string
		categoryID  sql.NullInt64
		catName     sql.NullString
		date        string
		tags        sql.NullString
		receiptURI  sql.NullString
		isRecurring int64
		frequency   sql.NullString
		nextRunDate sql.NullString
		excl        int64
	)
	if err := rows.Scan(&t.ID, &txType, &categoryID, &catName, &t.Amount.Cents, &date,
		&tags, &receiptURI, &isRecurring, &frequency, &nextRunDate, &excl); err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	t.Type = core.TxType(txType)
	if categoryID.Valid {
		id := categoryID.Int64
		t.CategoryID = &id
	}
	t.CategoryName = catName.String
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d has malformed date %q", t.ID, date)
	}
	t.Date = d
	t.Tags = tags.String
	t.ReceiptURI = receiptURI.String
	t.IsRecurring = isRecurring != 0
	t.Frequency = core.Frequency(frequency.String)
	if nextRunDate.Valid && nextRunDate.String != "" {
		if nd, err := core.ParseDate(nextRunDate.String); err == nil {
			t.NextRunDate = nd
		}
	}
	t.ExcludeFromLimits = excl != 0
	return t, nil
}

// --- Aggregates ---

// SpendingBetween sums expense transactions in [start, end], skipping any
// whose own or whose category's exclude-from-limits flag is set.
func (r *Repository) SpendingBetween(ctx context.Context, start, end core.Date) (core.Money, error) {
	var total sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT SUM(t.amount_cents)
		  FROM transactions t
		  LEFT JOIN categories c ON t.category_id = c.id
		 WHERE t.type = 'expense'
		   AND t.date >= ? AND t.date <= ?
		   AND (c.exclude_from_limits IS NULL OR c.exclude_from_limits = 0)
		   AND (t.exclude_from_limits IS NULL OR t.exclude_from_limits = 0)`,
		start.ISO(), end.ISO()).Scan(&total)
	if err != nil {
		return core.Money{}, fmt.Errorf("spending between: %w", err)
	}
	return core.Money{Cents: total.Int64}, nil
}

// MonthlyTotals returns per-month income/expense sums for the most recent
// monthsBack months that have any transactions, oldest first.
func (r *Repository) MonthlyTotals(ctx context.Context, monthsBack int) ([]core.MonthlyTrend, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m', date) AS month,
		       SUM(CASE WHEN type = 'expense' THEN amount_cents ELSE 0 END) AS expenses,
		       SUM(CASE WHEN type = 'income' THEN amount_cents ELSE 0 END) AS income
		  FROM transactions
		 GROUP BY month
		 ORDER BY month DESC
		 LIMIT ?`, monthsBack)
	if err != nil {
		return nil, fmt.Errorf("monthly totals: %w", err)
	}
	defer rows.Close()

	var out []core.MonthlyTrend
	for rows.Next() {
		var tr core.MonthlyTrend
		if err := rows.Scan(&tr.Month, &tr.Expenses.Cents, &tr.Income.Cents); err != nil {
			return nil, fmt.Errorf("scan monthly trend: %w", err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Oldest first for charting.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// TopCategoriesBySpending returns the top-n categories by all-time expense sum.
func (r *Repository) TopCategoriesBySpending(ctx context.Context, limit int) ([]core.CategoryExpense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.name, SUM(t.amount_cents) AS total
		  FROM transactions t
		  JOIN categories c ON t.category_id = c.id
		 WHERE t.type = 'expense'
		 GROUP BY c.id, c.name
		 ORDER BY total DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("top categories: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryExpense
	for rows.Next() {
		var ce core.CategoryExpense
		var id int64
		if err := rows.Scan(&id, &ce.CategoryName, &ce.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan top category: %w", err)
		}
		ce.CategoryID = &id
		out = append(out, ce)
	}
	return out, rows.Err()
}

// --- Savings goals ---

func (r *Repository) CreateSavingsGoal(ctx context.Context, g core.SavingsGoal) (int64, error) {
	if err := g.Validate(); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO savings_goals (name, target_amount_cents, current_amount_cents, deadline)
		VALUES (?, ?, ?, ?)`,
		g.Name, g.TargetAmount.Cents, g.CurrentAmount.Cents, nullString(g.Deadline.ISO()))
	if err != nil {
		return 0, fmt.Errorf("create savings goal: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("savings goal insert id: %w", err)
	}
	return id, nil
}

// ListSavingsGoals returns all goals, newest first.
func (r *Repository) ListSavingsGoals(ctx context.Context) ([]core.SavingsGoal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, target_amount_cents, current_amount_cents, deadline
		  FROM savings_goals ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list savings goals: %w", err)
	}
	defer rows.Close()

	var out []core.SavingsGoal
	for rows.Next() {
		var g core.SavingsGoal
		var deadline sql.NullString
		if err := rows.Scan(&g.ID, &g.Name, &g.TargetAmount.Cents, &g.CurrentAmount.Cents, &deadline); err != nil {
			return nil, fmt.Errorf("scan savings goal: %w", err)
		}
		if deadline.Valid && deadline.String != "" {
			if d, err := core.ParseDate(deadline.String); err == nil {
				g.Deadline = d
			}
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// AddGoalProgress increases a goal's current amount by delta.
func (r *Repository) AddGoalProgress(ctx context.Context, id int64, delta core.Money) error {
	if err := delta.Validate(); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx,
		`UPDATE savings_goals SET current_amount_cents = current_amount_cents + ? WHERE id = ?`,
		delta.Cents, id); err != nil {
		return fmt.Errorf("add goal progress: %w", err)
	}
	return nil
}

// UpdateSavingsGoal replaces a goal's editable fields, including the current
// amount, which is directly settable on edit.
func (r *Repository) UpdateSavingsGoal(ctx context.Context, g core.SavingsGoal) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `
		UPDATE savings_goals
		   SET name = ?, target_amount_cents = ?, current_amount_cents = ?, deadline = ?
		 WHERE id = ?`,
		g.Name, g.TargetAmount.Cents, g.CurrentAmount.Cents, nullString(g.Deadline.ISO()), g.ID); err != nil {
		return fmt.Errorf("update savings goal: %w", err)
	}
	return nil
}

func (r *Repository) DeleteSavingsGoal(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM savings_goals WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete savings goal: %w", err)
	}
	return nil
}

// --- Settings ---

// GetSetting returns the stored value for key, or "" when unset.
func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM app_settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

func (r *Repository) SetSetting(ctx context.Context, key, value string) error {
	if _, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO app_settings (key, value) VALUES (?, ?)`, key, value); err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

func (r *Repository) AllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM app_settings`)
	if err != nil {
		return nil, fmt.Errorf("all settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// ClearAllData wipes transactions, categories, goals and every setting except
// the database owner marker, which must survive resets for user tracking.
func (r *Repository) ClearAllData(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear all data: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM transactions`,
		`DELETE FROM categories`,
		`DELETE FROM savings_goals`,
		`DELETE FROM app_settings WHERE key != '` + core.KeyDBOwnerUID + `'`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear all data: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear all data: %w", err)
	}

	slog.InfoContext(ctx, "All local data cleared, owner marker preserved")
	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
