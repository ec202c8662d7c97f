package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pennywise/internal/core"
	"pennywise/internal/storage"
)

// RecurringExpander materializes concrete transactions from recurring
// templates that have come due.
type RecurringExpander struct {
	storage *storage.Repository
}

// NewRecurringExpander creates a new recurring transaction expander
func NewRecurringExpander(storage *storage.Repository) *RecurringExpander {
	return &RecurringExpander{storage: storage}
}

// ProcessDue expands every recurring template whose next run date falls on or
// before now's calendar day. Each due template spawns one concrete
// transaction dated today and is advanced by exactly one period; missed
// periods are not back-filled, the next scan catches them up one at a time.
func (p *RecurringExpander) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	if p.storage == nil {
		return 0, fmt.Errorf("expander not properly initialized")
	}

	today := core.Today(now)

	templates, err := p.storage.DueRecurringTemplates(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("failed to get due recurring templates: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring transactions",
		"due", len(templates),
		"processing_date", today.ISO())

	processedCount := 0

	for _, tmpl := range templates {
		// The spawned row is a concrete transaction, never a template.
		instance := core.Transaction{
			Type:              tmpl.Type,
			CategoryID:        tmpl.CategoryID,
			Amount:            tmpl.Amount,
			Date:              today,
			Tags:              tmpl.Tags,
			Frequency:         tmpl.Frequency,
			ExcludeFromLimits: tmpl.ExcludeFromLimits,
		}

		if _, err := p.storage.CreateTransaction(ctx, instance); err != nil {
			slog.ErrorContext(ctx, "Failed to create transaction from recurring template",
				"template_id", tmpl.ID,
				"error", err)
			continue
		}

		next := tmpl.NextRunDate.Next(tmpl.Frequency)
		if err := p.storage.AdvanceRecurringTemplate(ctx, tmpl.ID, next); err != nil {
			slog.ErrorContext(ctx, "Failed to advance recurring template",
				"template_id", tmpl.ID,
				"error", err)
			continue
		}

		processedCount++
		slog.InfoContext(ctx, "Created transaction from recurring template",
			"template_id", tmpl.ID,
			"amount_cents", tmpl.Amount.Cents,
			"frequency", string(tmpl.Frequency),
			"next_run_date", next.ISO())
	}

	slog.InfoContext(ctx, "Recurring transaction processing complete",
		"processed", processedCount,
		"total_due", len(templates))

	return processedCount, nil
}
