package storage

import (
	"context"
	"path/filepath"
	"testing"

	"pennywise/internal/core"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "budget.db"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustCategory(t *testing.T, repo *Repository, name string, budgetCents int64, exclude bool) int64 {
	t.Helper()
	id, err := repo.CreateCategory(context.Background(), core.Category{
		Name:              name,
		MonthlyBudget:     core.Money{Cents: budgetCents},
		ExcludeFromLimits: exclude,
	})
	if err != nil {
		t.Fatalf("create category %s: %v", name, err)
	}
	return id
}

func mustTransaction(t *testing.T, repo *Repository, tx core.Transaction) int64 {
	t.Helper()
	id, err := repo.CreateTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return id
}

func TestCategoryRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mustCategory(t, repo, "Groceries", 40000, false)
	mustCategory(t, repo, "Rent", 100000, true)

	cats, err := repo.ListCategories(ctx)
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(cats))
	}
	// Sorted by name.
	if cats[0].Name != "Groceries" || cats[1].Name != "Rent" {
		t.Errorf("unexpected order: %s, %s", cats[0].Name, cats[1].Name)
	}
	if !cats[1].ExcludeFromLimits {
		t.Error("Rent should carry the exclude flag")
	}

	got, err := repo.CategoryByName(ctx, "  rent ")
	if err != nil {
		t.Fatalf("case-insensitive lookup: %v", err)
	}
	if got.Name != "Rent" {
		t.Errorf("lookup returned %s", got.Name)
	}
}

func TestRemoveDuplicateCategoriesKeepsLowestID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := mustCategory(t, repo, "Food", 0, false)
	mustCategory(t, repo, "Food", 1000, false)
	mustCategory(t, repo, "food", 2000, false)

	if err := repo.RemoveDuplicateCategories(ctx); err != nil {
		t.Fatalf("dedupe: %v", err)
	}

	cats, err := repo.ListCategories(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cats) != 1 {
		t.Fatalf("expected 1 category after dedupe, got %d", len(cats))
	}
	if cats[0].ID != first {
		t.Errorf("survivor id = %d, want %d", cats[0].ID, first)
	}
}

func TestDeleteCategoryNullsTransactionRefs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	catID := mustCategory(t, repo, "Dining", 0, false)
	txID := mustTransaction(t, repo, core.Transaction{
		Type:       core.Expense,
		CategoryID: &catID,
		Amount:     core.Money{Cents: 2500},
		Date:       core.NewDate(2024, 5, 10),
	})

	if err := repo.DeleteCategory(ctx, catID); err != nil {
		t.Fatalf("delete category: %v", err)
	}

	txs, err := repo.ListTransactions(ctx)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 1 || txs[0].ID != txID {
		t.Fatalf("transaction should survive category deletion")
	}
	if txs[0].CategoryID != nil {
		t.Errorf("category reference should be nulled, got %v", *txs[0].CategoryID)
	}
	if txs[0].CategoryName != "" {
		t.Errorf("joined category name should be empty, got %q", txs[0].CategoryName)
	}
}

func TestTransactionQueries(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	catID := mustCategory(t, repo, "Transport", 0, false)
	mustTransaction(t, repo, core.Transaction{
		Type: core.Income, Amount: core.Money{Cents: 300000}, Date: core.NewDate(2024, 5, 1),
	})
	mustTransaction(t, repo, core.Transaction{
		Type: core.Expense, CategoryID: &catID, Amount: core.Money{Cents: 1200},
		Date: core.NewDate(2024, 5, 3), Tags: "commute,metro",
	})
	mustTransaction(t, repo, core.Transaction{
		Type: core.Expense, CategoryID: &catID, Amount: core.Money{Cents: 4500},
		Date: core.NewDate(2024, 4, 28),
	})

	byMonth, err := repo.TransactionsByMonth(ctx, 2024, 5)
	if err != nil {
		t.Fatalf("by month: %v", err)
	}
	if len(byMonth) != 2 {
		t.Errorf("May should have 2 transactions, got %d", len(byMonth))
	}
	if byMonth[0].Date.ISO() != "2024-05-03" {
		t.Errorf("newest first, got %s", byMonth[0].Date.ISO())
	}
	if byMonth[0].CategoryName != "Transport" {
		t.Errorf("category name should be joined, got %q", byMonth[0].CategoryName)
	}

	byRange, err := repo.TransactionsByDateRange(ctx, core.NewDate(2024, 4, 1), core.NewDate(2024, 4, 30))
	if err != nil {
		t.Fatalf("by range: %v", err)
	}
	if len(byRange) != 1 || byRange[0].Amount.Cents != 4500 {
		t.Errorf("range query mismatch: %+v", byRange)
	}

	byCat, err := repo.TransactionsByCategory(ctx, catID)
	if err != nil {
		t.Fatalf("by category: %v", err)
	}
	if len(byCat) != 2 {
		t.Errorf("category query should return 2, got %d", len(byCat))
	}

	byTag, err := repo.TransactionsByTag(ctx, "metro")
	if err != nil {
		t.Fatalf("by tag: %v", err)
	}
	if len(byTag) != 1 || byTag[0].Tags != "commute,metro" {
		t.Errorf("tag query mismatch: %+v", byTag)
	}
}

func TestSpendingBetweenHonorsExcludeFlags(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	normal := mustCategory(t, repo, "Groceries", 0, false)
	excluded := mustCategory(t, repo, "Rent", 0, true)
	day := core.NewDate(2024, 6, 15)

	mustTransaction(t, repo, core.Transaction{
		Type: core.Expense, CategoryID: &normal, Amount: core.Money{Cents: 3000}, Date: day,
	})
	// Excluded via its category.
	mustTransaction(t, repo, core.Transaction{
		Type: core.Expense, CategoryID: &excluded, Amount: core.Money{Cents: 100000}, Date: day,
	})
	// Excluded via its own flag.
	mustTransaction(t, repo, core.Transaction{
		Type: core.Expense, CategoryID: &normal, Amount: core.Money{Cents: 5000}, Date: day,
		ExcludeFromLimits: true,
	})
	// Uncategorized expense counts.
	mustTransaction(t, repo, core.Transaction{
		Type: core.Expense, Amount: core.Money{Cents: 700}, Date: day,
	})
	// Income never counts.
	mustTransaction(t, repo, core.Transaction{
		Type: core.Income, Amount: core.Money{Cents: 99999}, Date: day,
	})

	got, err := repo.SpendingBetween(ctx, day, day)
	if err != nil {
		t.Fatalf("spending between: %v", err)
	}
	if got.Cents != 3700 {
		t.Errorf("spending = %d, want 3700", got.Cents)
	}
}

func TestMonthlyTotalsOldestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mustTransaction(t, repo, core.Transaction{
		Type: core.Expense, Amount: core.Money{Cents: 100}, Date: core.NewDate(2024, 1, 10),
	})
	mustTransaction(t, repo, core.Transaction{
		Type: core.Income, Amount: core.Money{Cents: 200}, Date: core.NewDate(2024, 2, 10),
	})
	mustTransaction(t, repo, core.Transaction{
		Type: core.Expense, Amount: core.Money{Cents: 300}, Date: core.NewDate(2024, 3, 10),
	})

	trends, err := repo.MonthlyTotals(ctx, 2)
	if err != nil {
		t.Fatalf("monthly totals: %v", err)
	}
	if len(trends) != 2 {
		t.Fatalf("expected 2 months, got %d", len(trends))
	}
	if trends[0].Month != "2024-02" || trends[1].Month != "2024-03" {
		t.Errorf("order = %s, %s; want oldest first within window", trends[0].Month, trends[1].Month)
	}
	if trends[0].Income.Cents != 200 || trends[1].Expenses.Cents != 300 {
		t.Errorf("sums mismatch: %+v", trends)
	}
}

func TestDueRecurringTemplates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	due := mustTransaction(t, repo, core.Transaction{
		Type: core.Expense, Amount: core.Money{Cents: 999}, Date: core.NewDate(2024, 1, 1),
		IsRecurring: true, Frequency: core.Monthly, NextRunDate: core.NewDate(2024, 1, 1),
	})
	mustTransaction(t, repo, core.Transaction{
		Type: core.Expense, Amount: core.Money{Cents: 999}, Date: core.NewDate(2024, 1, 1),
		IsRecurring: true, Frequency: core.Monthly, NextRunDate: core.NewDate(2024, 3, 1),
	})
	mustTransaction(t, repo, core.Transaction{
		Type: core.Expense, Amount: core.Money{Cents: 999}, Date: core.NewDate(2024, 1, 1),
	})

	templates, err := repo.DueRecurringTemplates(ctx, core.NewDate(2024, 1, 15))
	if err != nil {
		t.Fatalf("due templates: %v", err)
	}
	if len(templates) != 1 || templates[0].ID != due {
		t.Fatalf("expected only the due template, got %+v", templates)
	}

	if err := repo.AdvanceRecurringTemplate(ctx, due, core.NewDate(2024, 2, 1)); err != nil {
		t.Fatalf("advance: %v", err)
	}
	templates, err = repo.DueRecurringTemplates(ctx, core.NewDate(2024, 1, 15))
	if err != nil {
		t.Fatalf("due templates after advance: %v", err)
	}
	if len(templates) != 0 {
		t.Errorf("advanced template should no longer be due")
	}
}

func TestSavingsGoals(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.CreateSavingsGoal(ctx, core.SavingsGoal{
		Name:         "Vacation",
		TargetAmount: core.Money{Cents: 100000},
		Deadline:     core.NewDate(2024, 12, 31),
	})
	if err != nil {
		t.Fatalf("create goal: %v", err)
	}

	if err := repo.AddGoalProgress(ctx, id, core.Money{Cents: 25000}); err != nil {
		t.Fatalf("add progress: %v", err)
	}
	if err := repo.AddGoalProgress(ctx, id, core.Money{Cents: 75000}); err != nil {
		t.Fatalf("add progress: %v", err)
	}

	goals, err := repo.ListSavingsGoals(ctx)
	if err != nil {
		t.Fatalf("list goals: %v", err)
	}
	if len(goals) != 1 {
		t.Fatalf("expected 1 goal, got %d", len(goals))
	}
	g := goals[0]
	if g.CurrentAmount.Cents != 100000 {
		t.Errorf("contributions should accumulate, got %d", g.CurrentAmount.Cents)
	}
	if !g.Complete() {
		t.Error("goal at target should be complete")
	}
	if g.Deadline.ISO() != "2024-12-31" {
		t.Errorf("deadline = %s", g.Deadline.ISO())
	}

	g.Name = "Vacation 2025"
	g.CurrentAmount = core.Money{Cents: 500}
	if err := repo.UpdateSavingsGoal(ctx, g); err != nil {
		t.Fatalf("update goal: %v", err)
	}
	goals, _ = repo.ListSavingsGoals(ctx)
	if goals[0].Name != "Vacation 2025" || goals[0].CurrentAmount.Cents != 500 {
		t.Errorf("edit should set fields directly: %+v", goals[0])
	}

	if err := repo.DeleteSavingsGoal(ctx, id); err != nil {
		t.Fatalf("delete goal: %v", err)
	}
	goals, _ = repo.ListSavingsGoals(ctx)
	if len(goals) != 0 {
		t.Error("goal should be deleted")
	}
}

func TestSettingsAndClearAllData(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if v, err := repo.GetSetting(ctx, core.KeyCurrency); err != nil || v != "" {
		t.Fatalf("unset setting should be empty, got %q, %v", v, err)
	}

	settings := map[string]string{
		core.KeyDBOwnerUID: "uid-42",
		core.KeyCurrency:   "€",
		core.KeyDailyLimit: "50.00",
		core.KeyIsPremium:  "true",
	}
	for k, v := range settings {
		if err := repo.SetSetting(ctx, k, v); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	// Overwrite must replace, not duplicate.
	if err := repo.SetSetting(ctx, core.KeyCurrency, "$"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if v, _ := repo.GetSetting(ctx, core.KeyCurrency); v != "$" {
		t.Errorf("overwrite failed, got %q", v)
	}

	mustCategory(t, repo, "Food", 0, false)
	mustTransaction(t, repo, core.Transaction{
		Type: core.Expense, Amount: core.Money{Cents: 100}, Date: core.NewDate(2024, 1, 1),
	})
	if _, err := repo.CreateSavingsGoal(ctx, core.SavingsGoal{Name: "G", TargetAmount: core.Money{Cents: 1}}); err != nil {
		t.Fatalf("goal: %v", err)
	}

	if err := repo.ClearAllData(ctx); err != nil {
		t.Fatalf("clear all data: %v", err)
	}

	if cats, _ := repo.ListCategories(ctx); len(cats) != 0 {
		t.Error("categories should be cleared")
	}
	if txs, _ := repo.ListTransactions(ctx); len(txs) != 0 {
		t.Error("transactions should be cleared")
	}
	if goals, _ := repo.ListSavingsGoals(ctx); len(goals) != 0 {
		t.Error("goals should be cleared")
	}

	remaining, err := repo.AllSettings(ctx)
	if err != nil {
		t.Fatalf("all settings: %v", err)
	}
	if len(remaining) != 1 || remaining[core.KeyDBOwnerUID] != "uid-42" {
		t.Errorf("only db_owner_uid should survive a reset, got %v", remaining)
	}
}

func TestCreateTransactionRejectsInvalid(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.CreateTransaction(ctx, core.Transaction{
		Type: core.Expense, Amount: core.Money{Cents: 0}, Date: core.NewDate(2024, 1, 1),
	})
	if err == nil {
		t.Error("zero amount should be rejected")
	}

	txs, _ := repo.ListTransactions(ctx)
	if len(txs) != 0 {
		t.Error("rejected insert must not leave a row")
	}
}

func TestTopCategoriesBySpending(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	food := mustCategory(t, repo, "Food", 0, false)
	rent := mustCategory(t, repo, "Rent", 0, false)
	fun := mustCategory(t, repo, "Fun", 0, false)
	day := core.NewDate(2024, 6, 1)

	mustTransaction(t, repo, core.Transaction{
		Type: core.Expense, CategoryID: &rent, Amount: core.Money{Cents: 100000}, Date: day,
	})
	mustTransaction(t, repo, core.Transaction{
		Type: core.Expense, CategoryID: &food, Amount: core.Money{Cents: 20000}, Date: day,
	})
	mustTransaction(t, repo, core.Transaction{
		Type: core.Expense, CategoryID: &food, Amount: core.Money{Cents: 15000}, Date: day,
	})
	mustTransaction(t, repo, core.Transaction{
		Type: core.Expense, CategoryID: &fun, Amount: core.Money{Cents: 500}, Date: day,
	})
	// Income must not contribute.
	mustTransaction(t, repo, core.Transaction{
		Type: core.Income, CategoryID: &fun, Amount: core.Money{Cents: 900000}, Date: day,
	})

	top, err := repo.TopCategoriesBySpending(ctx, 2)
	if err != nil {
		t.Fatalf("top categories: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("want 2 entries, got %d", len(top))
	}
	if top[0].CategoryName != "Rent" || top[0].Amount.Cents != 100000 {
		t.Errorf("top[0] = %+v", top[0])
	}
	if top[1].CategoryName != "Food" || top[1].Amount.Cents != 35000 {
		t.Errorf("top[1] = %+v", top[1])
	}
}
