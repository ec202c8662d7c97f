package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TxType = "income"
	Expense TxType = "expense"
)

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

type (
	TxType string

	Frequency string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Category struct {
		ID                int64
		Name              string
		MonthlyBudget     Money
		ExcludeFromLimits bool
	}

	Transaction struct {
		ID                int64
		Type              TxType
		CategoryID        *int64
		CategoryName      string // joined from categories, empty when uncategorized
		Amount            Money
		Date              Date
		Tags              string
		ReceiptURI        string
		IsRecurring       bool
		Frequency         Frequency
		NextRunDate       Date
		ExcludeFromLimits bool
	}

	SavingsGoal struct {
		ID            int64
		Name          string
		TargetAmount  Money
		CurrentAmount Money
		Deadline      Date
	}

	// Identity is the slice of the auth provider's user object the core needs.
	Identity struct {
		UID           string
		Email         string
		EmailVerified bool
		DisplayName   string
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidFreq     = errors.New("invalid frequency")
	ErrEmptyName       = errors.New("empty name")
	ErrCategoryLimit   = errors.New("category limit reached: upgrade to premium for unlimited categories")
	ErrNotSignedIn     = errors.New("no user signed in")
	ErrMissingSchedule = errors.New("recurring transaction requires frequency and next run date")
)

// DateLayout is the storage and wire format for calendar dates.
const DateLayout = "2006-01-02"

// NewDate creates a Date at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today truncates now to a calendar date at midnight UTC.
func Today(now time.Time) Date {
	return NewDate(now.Year(), int(now.Month()), now.Day())
}

// ParseDate parses an ISO YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// ISO renders the date as YYYY-MM-DD. Zero dates render empty.
func (d Date) ISO() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// YearMonth renders the date's month as YYYY-MM.
func (d Date) YearMonth() string {
	return d.Format("2006-01")
}

// OnOrBefore reports whether d falls on or before other, comparing calendar days.
func (d Date) OnOrBefore(other Date) bool {
	return !d.Time.After(other.Time)
}

// Next advances the date by one recurrence period. Monthly advancement uses
// AddDate, which normalizes overflow (Jan 31 + 1 month lands in early March),
// matching the underlying date library's day-of-month semantics.
func (d Date) Next(f Frequency) Date {
	switch f {
	case Daily:
		return Date{Time: d.AddDate(0, 0, 1)}
	case Weekly:
		return Date{Time: d.AddDate(0, 0, 7)}
	case Monthly:
		return Date{Time: d.AddDate(0, 1, 0)}
	default:
		return d
	}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (t TxType) Validate() error {
	switch t {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidType
	}
}

func (f Frequency) Validate() error {
	switch f {
	case Daily, Weekly, Monthly:
		return nil
	default:
		return ErrInvalidFreq
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if c.MonthlyBudget.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (tx Transaction) Validate() error {
	if err := tx.Type.Validate(); err != nil {
		return err
	}
	if err := tx.Amount.Validate(); err != nil {
		return err
	}
	if err := tx.Date.Validate(); err != nil {
		return err
	}
	if tx.IsRecurring {
		if err := tx.Frequency.Validate(); err != nil {
			return ErrMissingSchedule
		}
		if tx.NextRunDate.IsZero() {
			return ErrMissingSchedule
		}
	}
	return nil
}

func (g SavingsGoal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if err := g.TargetAmount.Validate(); err != nil {
		return err
	}
	if g.CurrentAmount.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Complete reports whether the goal's current amount has reached its target.
func (g SavingsGoal) Complete() bool {
	return g.CurrentAmount.Cents >= g.TargetAmount.Cents
}
