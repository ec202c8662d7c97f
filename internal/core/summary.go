package core

// UncategorizedLabel is the display bucket for expenses with no category.
const UncategorizedLabel = "Other"

// CategoryExpense represents expense totals aggregated by category.
// Transactions with a null category bucket under UncategorizedLabel.
type CategoryExpense struct {
	CategoryID   *int64
	CategoryName string
	Amount       Money
}

// DashboardData is the derived month overview rendered by the home screen.
// RemainingBudget is budget-vs-actual, not a balance.
type DashboardData struct {
	TotalIncome        Money
	TotalExpenses      Money
	TotalBudget        Money
	RemainingBudget    Money
	ExpensesByCategory []CategoryExpense
}

// MonthlyTrend is one point of the rolling income/expense series, keyed YYYY-MM.
type MonthlyTrend struct {
	Month    string
	Income   Money
	Expenses Money
}

// LimitState classifies spending against a configured limit.
type LimitState string

const (
	LimitOK      LimitState = "ok"
	LimitWarning LimitState = "warning"
	LimitOver    LimitState = "over"
)

// EvaluateLimit compares spending against a limit. A limit of zero means no
// limit is configured and always reports ok.
func EvaluateLimit(spent, limit Money) LimitState {
	if limit.Cents <= 0 {
		return LimitOK
	}
	switch {
	case spent.Cents >= limit.Cents:
		return LimitOver
	case spent.Cents*10 >= limit.Cents*8: // >= 80%
		return LimitWarning
	default:
		return LimitOK
	}
}

// LimitPercent returns spending as an integer percentage of the limit,
// rounded to the nearest whole number. Zero limits yield 0.
func LimitPercent(spent, limit Money) int {
	if limit.Cents <= 0 {
		return 0
	}
	return int((spent.Cents*100 + limit.Cents/2) / limit.Cents)
}

// ClampPercent bounds a percentage to [0,100] for progress bar widths; the
// underlying ratio may exceed 100.
func ClampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
