package core

import (
	"strconv"
	"time"
)

// Persisted settings keys. The names are fixed for migration compatibility
// with databases written by earlier releases.
const (
	KeyDBOwnerUID          = "db_owner_uid"
	KeyCurrency            = "currency"
	KeyDailyLimit          = "dailyLimit"
	KeyWeeklyLimit         = "weeklyLimit"
	KeyIsPremium           = "isPremium"
	KeyAutoSyncEnabled     = "autoSyncEnabled"
	KeyOnboardingCompleted = "onboarding_completed"
	KeyOnboardingUserID    = "onboarding_user_id"
	KeyPremiumPurchaseDate = "premium_purchase_date"
)

// DefaultCurrency is used when no currency setting has been persisted.
const DefaultCurrency = "$"

// Settings is the typed view over the flat key/value settings store.
// Parsing happens once at the load boundary instead of ad hoc per reader.
type Settings struct {
	DBOwnerUID          string
	Currency            string
	DailyLimit          Money
	WeeklyLimit         Money
	IsPremium           bool
	AutoSyncEnabled     bool
	OnboardingCompleted bool
	OnboardingUserID    string
	PremiumPurchaseDate time.Time
}

// DefaultSettings returns the state of a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Currency:        DefaultCurrency,
		AutoSyncEnabled: true,
	}
}

// ParseSettings builds a typed Settings from raw persisted key/value pairs.
// Missing or malformed values fall back to defaults rather than erroring,
// since the store may hold rows written by older releases.
func ParseSettings(raw map[string]string) Settings {
	s := DefaultSettings()
	s.DBOwnerUID = raw[KeyDBOwnerUID]
	if c := raw[KeyCurrency]; c != "" {
		s.Currency = c
	}
	if v, err := ParseBudgetToCents(raw[KeyDailyLimit]); err == nil {
		s.DailyLimit = Money{Cents: v}
	}
	if v, err := ParseBudgetToCents(raw[KeyWeeklyLimit]); err == nil {
		s.WeeklyLimit = Money{Cents: v}
	}
	s.IsPremium = raw[KeyIsPremium] == "true"
	// Auto-sync defaults to enabled unless explicitly disabled.
	s.AutoSyncEnabled = raw[KeyAutoSyncEnabled] != "false"
	s.OnboardingCompleted = raw[KeyOnboardingCompleted] == "1"
	s.OnboardingUserID = raw[KeyOnboardingUserID]
	if ts := raw[KeyPremiumPurchaseDate]; ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			s.PremiumPurchaseDate = t
		}
	}
	return s
}

// Values serializes the settings back to the persisted key/value form.
// Zero-valued optional keys are omitted so the store mirrors what a fresh
// install would have written.
func (s Settings) Values() map[string]string {
	// Limits are persisted as decimal strings, the same shape the UI writes.
	out := map[string]string{
		KeyCurrency:        s.Currency,
		KeyDailyLimit:      s.DailyLimit.String(),
		KeyWeeklyLimit:     s.WeeklyLimit.String(),
		KeyIsPremium:       strconv.FormatBool(s.IsPremium),
		KeyAutoSyncEnabled: strconv.FormatBool(s.AutoSyncEnabled),
	}
	if s.DBOwnerUID != "" {
		out[KeyDBOwnerUID] = s.DBOwnerUID
	}
	if s.OnboardingCompleted {
		out[KeyOnboardingCompleted] = "1"
	}
	if s.OnboardingUserID != "" {
		out[KeyOnboardingUserID] = s.OnboardingUserID
	}
	if !s.PremiumPurchaseDate.IsZero() {
		out[KeyPremiumPurchaseDate] = s.PremiumPurchaseDate.Format(time.RFC3339)
	}
	return out
}
