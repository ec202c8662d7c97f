package services

import (
	"context"
	"log/slog"

	"pennywise/internal/core"
)

// Notifier receives advisory alerts produced by expense mutations. Alerts
// are best-effort and never block or fail the mutation that raised them.
type Notifier interface {
	// SpendingLimit fires when daily or weekly spending crosses the warning
	// or over threshold. period is "daily" or "weekly".
	SpendingLimit(ctx context.Context, period string, state core.LimitState, spent, limit core.Money)

	// CategoryBudget fires when a category's monthly spending crosses the
	// warning or over threshold of its budget.
	CategoryBudget(ctx context.Context, category string, state core.LimitState, spent, budget core.Money)
}

// SlogNotifier logs alerts through the default structured logger.
type SlogNotifier struct{}

func (SlogNotifier) SpendingLimit(ctx context.Context, period string, state core.LimitState, spent, limit core.Money) {
	slog.WarnContext(ctx, "Spending limit alert",
		"period", period,
		"state", string(state),
		"spent_cents", spent.Cents,
		"limit_cents", limit.Cents,
		"percent", core.LimitPercent(spent, limit))
}

func (SlogNotifier) CategoryBudget(ctx context.Context, category string, state core.LimitState, spent, budget core.Money) {
	slog.WarnContext(ctx, "Category budget alert",
		"category", category,
		"state", string(state),
		"spent_cents", spent.Cents,
		"budget_cents", budget.Cents,
		"percent", core.LimitPercent(spent, budget))
}
