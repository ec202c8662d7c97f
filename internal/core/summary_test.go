package core

import "testing"

func TestEvaluateLimit(t *testing.T) {
	cases := []struct {
		name  string
		spent int64
		limit int64
		want  LimitState
	}{
		{"no limit configured", 99999, 0, LimitOK},
		{"under", 100, 1000, LimitOK},
		{"just under warning", 799, 1000, LimitOK},
		{"warning at 80%", 800, 1000, LimitWarning},
		{"warning band", 999, 1000, LimitWarning},
		{"over at 100%", 1000, 1000, LimitOver},
		{"well over", 2500, 1000, LimitOver},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := EvaluateLimit(Money{Cents: tc.spent}, Money{Cents: tc.limit})
			if got != tc.want {
				t.Errorf("EvaluateLimit(%d, %d) = %s, want %s", tc.spent, tc.limit, got, tc.want)
			}
		})
	}
}

func TestLimitPercent(t *testing.T) {
	cases := []struct {
		spent int64
		limit int64
		want  int
	}{
		{0, 0, 0},
		{500, 1000, 50},
		{999, 1000, 100}, // rounds to nearest
		{1250, 1000, 125},
		{333, 1000, 33},
		{335, 1000, 34},
	}
	for _, tc := range cases {
		got := LimitPercent(Money{Cents: tc.spent}, Money{Cents: tc.limit})
		if got != tc.want {
			t.Errorf("LimitPercent(%d, %d) = %d, want %d", tc.spent, tc.limit, got, tc.want)
		}
	}
}

func TestClampPercent(t *testing.T) {
	if got := ClampPercent(125); got != 100 {
		t.Errorf("over-limit ratio should clamp to 100, got %d", got)
	}
	if got := ClampPercent(-5); got != 0 {
		t.Errorf("negative should clamp to 0, got %d", got)
	}
	if got := ClampPercent(42); got != 42 {
		t.Errorf("in-range should pass through, got %d", got)
	}
}
