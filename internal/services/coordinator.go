package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pennywise/internal/billing"
	"pennywise/internal/cloud"
	"pennywise/internal/core"
	"pennywise/internal/storage"
)

// Snapshot is the immutable application state handed to callers. Every
// mutation produces a fresh snapshot with a strictly higher version.
type Snapshot struct {
	Version      int64
	Categories   []core.Category
	Transactions []core.Transaction
	SavingsGoals []core.SavingsGoal
	Settings     core.Settings

	Dashboard core.DashboardData
	Trends    []core.MonthlyTrend

	DailySpent  core.Money
	WeeklySpent core.Money
	DailyState  core.LimitState
	WeeklyState core.LimitState
}

// Coordinator owns the application state and runs every mutation through a
// persist, reload, recompute cycle. Reads serve the last computed snapshot.
type Coordinator struct {
	storage      *storage.Repository
	cloudStore   cloud.Store
	entitlements billing.EntitlementProvider
	autosync     *AutoSync
	notifier     Notifier
	expander     *RecurringExpander

	mu   sync.RWMutex
	snap Snapshot

	now func() time.Time
}

// NewCoordinator wires the coordinator. cloudStore, entitlements and
// autosync may be nil; the corresponding verbs become no-ops or return
// errors as documented.
func NewCoordinator(
	storage *storage.Repository,
	cloudStore cloud.Store,
	entitlements billing.EntitlementProvider,
	autosync *AutoSync,
	notifier Notifier,
) *Coordinator {
	if notifier == nil {
		notifier = SlogNotifier{}
	}
	return &Coordinator{
		storage:      storage,
		cloudStore:   cloudStore,
		entitlements: entitlements,
		autosync:     autosync,
		notifier:     notifier,
		expander:     NewRecurringExpander(storage),
		now:          time.Now,
	}
}

// Initialize runs the startup sequence: dedupe categories, expand due
// recurring templates, reconcile the premium entitlement, then load state.
// Sub-steps log and continue on failure; only a broken store is fatal.
func (c *Coordinator) Initialize(ctx context.Context) error {
	if c.storage == nil {
		return fmt.Errorf("coordinator has no storage")
	}

	if err := c.storage.RemoveDuplicateCategories(ctx); err != nil {
		slog.WarnContext(ctx, "Category dedupe failed", "error", err)
	}

	if n, err := c.expander.ProcessDue(ctx, c.now()); err != nil {
		slog.WarnContext(ctx, "Recurring expansion failed", "error", err)
	} else if n > 0 {
		slog.InfoContext(ctx, "Expanded recurring templates", "count", n)
	}

	if err := c.reconcileEntitlement(ctx); err != nil {
		slog.WarnContext(ctx, "Entitlement reconcile failed", "error", err)
	}

	if err := c.reload(ctx); err != nil {
		return fmt.Errorf("initial load: %w", err)
	}

	snap := c.Snapshot()
	slog.InfoContext(ctx, "Coordinator initialized",
		"categories", len(snap.Categories),
		"transactions", len(snap.Transactions),
		"savings_goals", len(snap.SavingsGoals),
		"premium", snap.Settings.IsPremium)
	return nil
}

// Snapshot returns the current state. The returned value shares backing
// slices with the coordinator; treat it as read-only.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// mutate persists a change, reloads state and fires auto-sync. Every
// mutating verb funnels through here so the version counter and sync
// trigger stay consistent.
func (c *Coordinator) mutate(ctx context.Context, op string, persist func() error) error {
	if err := persist(); err != nil {
		return err
	}
	if err := c.reload(ctx); err != nil {
		return fmt.Errorf("%s: reload: %w", op, err)
	}
	c.fireAutoSync(ctx)
	return nil
}

func (c *Coordinator) fireAutoSync(ctx context.Context) {
	if c.autosync == nil {
		return
	}
	go c.autosync.Trigger(context.WithoutCancel(ctx))
}

// reload rebuilds the snapshot from storage and bumps the version.
func (c *Coordinator) reload(ctx context.Context) error {
	categories, err := c.storage.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	transactions, err := c.storage.ListTransactions(ctx)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}
	goals, err := c.storage.ListSavingsGoals(ctx)
	if err != nil {
		return fmt.Errorf("list savings goals: %w", err)
	}
	raw, err := c.storage.AllSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	settings := core.ParseSettings(raw)

	now := c.now()
	today := core.Today(now)

	monthTxs, err := c.storage.TransactionsByMonth(ctx, now.Year(), int(now.Month()))
	if err != nil {
		return fmt.Errorf("month transactions: %w", err)
	}
	trends, err := c.storage.MonthlyTotals(ctx, 6)
	if err != nil {
		return fmt.Errorf("monthly totals: %w", err)
	}
	dailySpent, err := c.storage.SpendingBetween(ctx, today, today)
	if err != nil {
		return fmt.Errorf("daily spending: %w", err)
	}
	weekStart := core.Date{Time: today.AddDate(0, 0, -6)}
	weeklySpent, err := c.storage.SpendingBetween(ctx, weekStart, today)
	if err != nil {
		return fmt.Errorf("weekly spending: %w", err)
	}

	snap := Snapshot{
		Categories:   categories,
		Transactions: transactions,
		SavingsGoals: goals,
		Settings:     settings,
		Dashboard:    computeDashboard(categories, monthTxs),
		Trends:       trends,
		DailySpent:   dailySpent,
		WeeklySpent:  weeklySpent,
		DailyState:   core.EvaluateLimit(dailySpent, settings.DailyLimit),
		WeeklyState:  core.EvaluateLimit(weeklySpent, settings.WeeklyLimit),
	}

	c.mu.Lock()
	snap.Version = c.snap.Version + 1
	c.snap = snap
	c.mu.Unlock()
	return nil
}

// computeDashboard derives the month overview. Remaining budget is
// budget-vs-actual across all categories, not an account balance.
func computeDashboard(categories []core.Category, monthTxs []core.Transaction) core.DashboardData {
	var d core.DashboardData

	for _, cat := range categories {
		d.TotalBudget.Cents += cat.MonthlyBudget.Cents
	}

	byCategory := make(map[string]*core.CategoryExpense)
	var order []string
	for _, tx := range monthTxs {
		if tx.Type == core.Income {
			d.TotalIncome.Cents += tx.Amount.Cents
			continue
		}
		d.TotalExpenses.Cents += tx.Amount.Cents

		name := tx.CategoryName
		if name == "" {
			name = core.UncategorizedLabel
		}
		entry, ok := byCategory[name]
		if !ok {
			entry = &core.CategoryExpense{CategoryID: tx.CategoryID, CategoryName: name}
			byCategory[name] = entry
			order = append(order, name)
		}
		entry.Amount.Cents += tx.Amount.Cents
	}

	for _, name := range order {
		d.ExpensesByCategory = append(d.ExpensesByCategory, *byCategory[name])
	}
	d.RemainingBudget.Cents = d.TotalBudget.Cents - d.TotalExpenses.Cents
	return d
}

// --- queries ---

// TransactionsForMonth lists one calendar month, newest first.
func (c *Coordinator) TransactionsForMonth(ctx context.Context, year, month int) ([]core.Transaction, error) {
	return c.storage.TransactionsByMonth(ctx, year, month)
}

func (c *Coordinator) TransactionsInRange(ctx context.Context, start, end core.Date) ([]core.Transaction, error) {
	return c.storage.TransactionsByDateRange(ctx, start, end)
}

func (c *Coordinator) TransactionsForCategory(ctx context.Context, categoryID int64) ([]core.Transaction, error) {
	return c.storage.TransactionsByCategory(ctx, categoryID)
}

// SearchTransactionsByTag matches the tag as a substring of the
// comma-separated tags field.
func (c *Coordinator) SearchTransactionsByTag(ctx context.Context, tag string) ([]core.Transaction, error) {
	return c.storage.TransactionsByTag(ctx, tag)
}

// TopSpendingCategories returns the heaviest expense categories by all-time
// sum.
func (c *Coordinator) TopSpendingCategories(ctx context.Context, n int) ([]core.CategoryExpense, error) {
	return c.storage.TopCategoriesBySpending(ctx, n)
}

// --- transactions ---

func (c *Coordinator) AddTransaction(ctx context.Context, tx core.Transaction) (int64, error) {
	var id int64
	err := c.mutate(ctx, "add transaction", func() error {
		var err error
		id, err = c.storage.CreateTransaction(ctx, tx)
		return err
	})
	if err != nil {
		return 0, err
	}
	c.checkSpendingAlerts(ctx, tx)
	return id, nil
}

func (c *Coordinator) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	err := c.mutate(ctx, "update transaction", func() error {
		return c.storage.UpdateTransaction(ctx, tx)
	})
	if err != nil {
		return err
	}
	c.checkSpendingAlerts(ctx, tx)
	return nil
}

func (c *Coordinator) DeleteTransaction(ctx context.Context, id int64) error {
	return c.mutate(ctx, "delete transaction", func() error {
		return c.storage.DeleteTransaction(ctx, id)
	})
}

// checkSpendingAlerts evaluates limit thresholds after an expense mutation
// and emits advisory notifications. Excluded expenses and income never
// alert.
func (c *Coordinator) checkSpendingAlerts(ctx context.Context, tx core.Transaction) {
	if tx.Type != core.Expense || tx.ExcludeFromLimits {
		return
	}

	snap := c.Snapshot()

	if state := snap.DailyState; state != core.LimitOK {
		c.notifier.SpendingLimit(ctx, "daily", state, snap.DailySpent, snap.Settings.DailyLimit)
	}
	if state := snap.WeeklyState; state != core.LimitOK {
		c.notifier.SpendingLimit(ctx, "weekly", state, snap.WeeklySpent, snap.Settings.WeeklyLimit)
	}

	if tx.CategoryID == nil {
		return
	}
	var cat core.Category
	found := false
	for _, candidate := range snap.Categories {
		if candidate.ID == *tx.CategoryID {
			cat = candidate
			found = true
			break
		}
	}
	if !found || cat.MonthlyBudget.Cents <= 0 || cat.ExcludeFromLimits {
		return
	}

	var spent core.Money
	for _, e := range snap.Dashboard.ExpensesByCategory {
		if e.CategoryName == cat.Name {
			spent = e.Amount
			break
		}
	}
	if state := core.EvaluateLimit(spent, cat.MonthlyBudget); state != core.LimitOK {
		c.notifier.CategoryBudget(ctx, cat.Name, state, spent, cat.MonthlyBudget)
	}
}

// --- categories ---

// AddCategory creates a category. Free-tier users are capped at
// billing.FreeCategoryLimit categories; the failed insert leaves no row.
func (c *Coordinator) AddCategory(ctx context.Context, cat core.Category) (int64, error) {
	var id int64
	err := c.mutate(ctx, "add category", func() error {
		settings := c.Snapshot().Settings
		if !settings.IsPremium {
			count, err := c.storage.CountCategories(ctx)
			if err != nil {
				return fmt.Errorf("count categories: %w", err)
			}
			if count >= billing.FreeCategoryLimit {
				return core.ErrCategoryLimit
			}
		}
		var err error
		id, err = c.storage.CreateCategory(ctx, cat)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (c *Coordinator) UpdateCategoryBudget(ctx context.Context, id int64, budget core.Money) error {
	return c.mutate(ctx, "update category budget", func() error {
		return c.storage.UpdateCategoryBudget(ctx, id, budget)
	})
}

// ToggleCategoryExcludeFromLimits flips the category's exclusion flag and
// returns the new value.
func (c *Coordinator) ToggleCategoryExcludeFromLimits(ctx context.Context, id int64) (bool, error) {
	var next bool
	err := c.mutate(ctx, "toggle category exclusion", func() error {
		for _, cat := range c.Snapshot().Categories {
			if cat.ID == id {
				next = !cat.ExcludeFromLimits
				return c.storage.SetCategoryExcludeFromLimits(ctx, id, next)
			}
		}
		return fmt.Errorf("category %d not found", id)
	})
	return next, err
}

func (c *Coordinator) DeleteCategory(ctx context.Context, id int64) error {
	return c.mutate(ctx, "delete category", func() error {
		return c.storage.DeleteCategory(ctx, id)
	})
}

// --- savings goals ---

func (c *Coordinator) AddSavingsGoal(ctx context.Context, g core.SavingsGoal) (int64, error) {
	var id int64
	err := c.mutate(ctx, "add savings goal", func() error {
		var err error
		id, err = c.storage.CreateSavingsGoal(ctx, g)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ContributeToGoal adds amount to the goal's current progress.
func (c *Coordinator) ContributeToGoal(ctx context.Context, id int64, amount core.Money) error {
	return c.mutate(ctx, "contribute to goal", func() error {
		if err := amount.Validate(); err != nil {
			return err
		}
		return c.storage.AddGoalProgress(ctx, id, amount)
	})
}

func (c *Coordinator) UpdateSavingsGoal(ctx context.Context, g core.SavingsGoal) error {
	return c.mutate(ctx, "update savings goal", func() error {
		return c.storage.UpdateSavingsGoal(ctx, g)
	})
}

func (c *Coordinator) DeleteSavingsGoal(ctx context.Context, id int64) error {
	return c.mutate(ctx, "delete savings goal", func() error {
		return c.storage.DeleteSavingsGoal(ctx, id)
	})
}

// --- settings ---

func (c *Coordinator) SetCurrency(ctx context.Context, symbol string) error {
	return c.mutate(ctx, "set currency", func() error {
		if symbol == "" {
			symbol = core.DefaultCurrency
		}
		return c.storage.SetSetting(ctx, core.KeyCurrency, symbol)
	})
}

func (c *Coordinator) SetDailyLimit(ctx context.Context, limit core.Money) error {
	return c.mutate(ctx, "set daily limit", func() error {
		if limit.Cents < 0 {
			return core.ErrInvalidAmount
		}
		return c.storage.SetSetting(ctx, core.KeyDailyLimit, limit.String())
	})
}

func (c *Coordinator) SetWeeklyLimit(ctx context.Context, limit core.Money) error {
	return c.mutate(ctx, "set weekly limit", func() error {
		if limit.Cents < 0 {
			return core.ErrInvalidAmount
		}
		return c.storage.SetSetting(ctx, core.KeyWeeklyLimit, limit.String())
	})
}

// SetPremiumStatus records the premium flag. Enabling stamps the purchase
// date; disabling clears it.
func (c *Coordinator) SetPremiumStatus(ctx context.Context, premium bool) error {
	return c.mutate(ctx, "set premium status", func() error {
		if premium {
			if err := c.storage.SetSetting(ctx, core.KeyIsPremium, "true"); err != nil {
				return err
			}
			return c.storage.SetSetting(ctx, core.KeyPremiumPurchaseDate, c.now().Format(time.RFC3339))
		}
		if err := c.storage.SetSetting(ctx, core.KeyIsPremium, "false"); err != nil {
			return err
		}
		return c.storage.SetSetting(ctx, core.KeyPremiumPurchaseDate, "")
	})
}

func (c *Coordinator) ToggleAutoSync(ctx context.Context, enabled bool) error {
	return c.mutate(ctx, "toggle auto-sync", func() error {
		if enabled {
			return c.storage.SetSetting(ctx, core.KeyAutoSyncEnabled, "true")
		}
		return c.storage.SetSetting(ctx, core.KeyAutoSyncEnabled, "false")
	})
}

// --- lifecycle ---

// ResetApp wipes all local data except the recorded database owner.
func (c *Coordinator) ResetApp(ctx context.Context) error {
	if err := c.storage.ClearAllData(ctx); err != nil {
		return fmt.Errorf("clear all data: %w", err)
	}
	return c.reload(ctx)
}

// CheckOnboarding reports whether onboarding was completed by the currently
// recorded owner. A completion recorded for a different user does not count.
func (c *Coordinator) CheckOnboarding(ctx context.Context) (bool, error) {
	completed, err := c.storage.GetSetting(ctx, core.KeyOnboardingCompleted)
	if err != nil {
		return false, err
	}
	if completed != "1" {
		return false, nil
	}
	owner, err := c.storage.GetSetting(ctx, core.KeyDBOwnerUID)
	if err != nil {
		return false, err
	}
	onboardedUID, err := c.storage.GetSetting(ctx, core.KeyOnboardingUserID)
	if err != nil {
		return false, err
	}
	return owner != "" && onboardedUID == owner, nil
}

// CompleteOnboarding marks onboarding done for the current owner.
func (c *Coordinator) CompleteOnboarding(ctx context.Context) error {
	owner, err := c.storage.GetSetting(ctx, core.KeyDBOwnerUID)
	if err != nil {
		return err
	}
	if owner == "" {
		return core.ErrNotSignedIn
	}
	return c.mutate(ctx, "complete onboarding", func() error {
		if err := c.storage.SetSetting(ctx, core.KeyOnboardingCompleted, "1"); err != nil {
			return err
		}
		return c.storage.SetSetting(ctx, core.KeyOnboardingUserID, owner)
	})
}

// HandleSignIn binds the local database to the signed-in user. When the
// database belongs to a different user, or to no user at all, the local
// data is wiped before the new owner is recorded. Same-owner sign-ins keep
// everything.
func (c *Coordinator) HandleSignIn(ctx context.Context, identity core.Identity) error {
	if identity.UID == "" {
		return core.ErrNotSignedIn
	}

	owner, err := c.storage.GetSetting(ctx, core.KeyDBOwnerUID)
	if err != nil {
		return fmt.Errorf("read owner: %w", err)
	}

	if owner != identity.UID {
		slog.InfoContext(ctx, "Database owner mismatch, wiping local data",
			"previous_owner", owner,
			"user_id", identity.UID)
		if err := c.storage.ClearAllData(ctx); err != nil {
			return fmt.Errorf("wipe on owner change: %w", err)
		}
		if err := c.storage.SetSetting(ctx, core.KeyDBOwnerUID, identity.UID); err != nil {
			return fmt.Errorf("record owner: %w", err)
		}
	}

	if err := c.reconcileEntitlement(ctx); err != nil {
		slog.WarnContext(ctx, "Entitlement reconcile failed", "error", err)
	}

	return c.reload(ctx)
}

// reconcileEntitlement makes the billing provider the source of truth for
// the premium flag. An active entitlement sets it, an expired one clears it.
func (c *Coordinator) reconcileEntitlement(ctx context.Context) error {
	if c.entitlements == nil {
		return nil
	}
	owner, err := c.storage.GetSetting(ctx, core.KeyDBOwnerUID)
	if err != nil {
		return err
	}
	if owner == "" {
		return nil
	}

	active, err := c.entitlements.IsPremiumActive(ctx, owner)
	if err != nil {
		return fmt.Errorf("query entitlement: %w", err)
	}

	local, err := c.storage.GetSetting(ctx, core.KeyIsPremium)
	if err != nil {
		return err
	}
	localPremium := local == "true"

	switch {
	case active && !localPremium:
		slog.InfoContext(ctx, "Premium entitlement activated", "user_id", owner)
		if err := c.storage.SetSetting(ctx, core.KeyIsPremium, "true"); err != nil {
			return err
		}
		return c.storage.SetSetting(ctx, core.KeyPremiumPurchaseDate, c.now().Format(time.RFC3339))
	case !active && localPremium:
		slog.InfoContext(ctx, "Premium entitlement expired, clearing local flag", "user_id", owner)
		return c.storage.SetSetting(ctx, core.KeyIsPremium, "false")
	}
	return nil
}

// --- cloud ---

func (c *Coordinator) signedInUser(ctx context.Context) (string, error) {
	owner, err := c.storage.GetSetting(ctx, core.KeyDBOwnerUID)
	if err != nil {
		return "", err
	}
	if owner == "" {
		return "", core.ErrNotSignedIn
	}
	return owner, nil
}

// SyncToCloud pushes the full local dataset, replacing the user's cloud
// backup. Unlike auto-sync, errors surface to the caller.
func (c *Coordinator) SyncToCloud(ctx context.Context) error {
	userID, err := c.signedInUser(ctx)
	if err != nil {
		return err
	}
	snap, err := BuildSnapshot(ctx, c.storage)
	if err != nil {
		return err
	}
	if err := c.cloudStore.Push(ctx, userID, snap); err != nil {
		return fmt.Errorf("push to cloud: %w", err)
	}
	slog.InfoContext(ctx, "Synced to cloud",
		"user_id", userID,
		"categories", len(snap.Categories),
		"transactions", len(snap.Transactions))
	return nil
}

// RestoreFromCloud pulls the user's backup and inserts its rows as new
// local rows alongside whatever is already present. Settings are restored
// except the recorded owner.
func (c *Coordinator) RestoreFromCloud(ctx context.Context) error {
	userID, err := c.signedInUser(ctx)
	if err != nil {
		return err
	}

	remote, err := c.cloudStore.Pull(ctx, userID)
	if err != nil {
		return fmt.Errorf("pull from cloud: %w", err)
	}

	// Remote category ids are remapped to the freshly inserted rows so
	// restored transactions keep their category links.
	idMap := make(map[int64]int64, len(remote.Categories))
	for _, cat := range remote.Categories {
		remoteID := cat.ID
		cat.ID = 0
		newID, err := c.storage.CreateCategory(ctx, cat)
		if err != nil {
			return fmt.Errorf("restore category %q: %w", cat.Name, err)
		}
		idMap[remoteID] = newID
	}

	for _, tx := range remote.Transactions {
		tx.ID = 0
		if tx.CategoryID != nil {
			if newID, ok := idMap[*tx.CategoryID]; ok {
				tx.CategoryID = &newID
			} else {
				tx.CategoryID = nil
			}
		}
		if _, err := c.storage.CreateTransaction(ctx, tx); err != nil {
			return fmt.Errorf("restore transaction: %w", err)
		}
	}

	for _, g := range remote.SavingsGoals {
		g.ID = 0
		if _, err := c.storage.CreateSavingsGoal(ctx, g); err != nil {
			return fmt.Errorf("restore savings goal %q: %w", g.Name, err)
		}
	}

	for key, value := range remote.Settings.Values() {
		if key == core.KeyDBOwnerUID {
			continue
		}
		if err := c.storage.SetSetting(ctx, key, value); err != nil {
			return fmt.Errorf("restore setting %s: %w", key, err)
		}
	}

	slog.InfoContext(ctx, "Restored from cloud",
		"user_id", userID,
		"categories", len(remote.Categories),
		"transactions", len(remote.Transactions),
		"savings_goals", len(remote.SavingsGoals))

	return c.reload(ctx)
}

// LastSyncTime reports when the signed-in user's backup was last written.
func (c *Coordinator) LastSyncTime(ctx context.Context) (time.Time, error) {
	userID, err := c.signedInUser(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return c.cloudStore.LastSyncTime(ctx, userID)
}

// HasCloudBackup reports whether the signed-in user has any backup.
func (c *Coordinator) HasCloudBackup(ctx context.Context) (bool, error) {
	userID, err := c.signedInUser(ctx)
	if err != nil {
		return false, err
	}
	return c.cloudStore.HasBackup(ctx, userID)
}

// DeleteCloudData removes the signed-in user's entire cloud backup.
func (c *Coordinator) DeleteCloudData(ctx context.Context) error {
	userID, err := c.signedInUser(ctx)
	if err != nil {
		return err
	}
	if err := c.cloudStore.DeleteAll(ctx, userID); err != nil {
		return fmt.Errorf("delete cloud data: %w", err)
	}
	slog.InfoContext(ctx, "Deleted cloud data", "user_id", userID)
	return nil
}
