package model

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
)

func TestAddSource_KeepsSortedSet(t *testing.T) {
	j := CanonicalJob{MergedSources: []string{"lever"}}

	if !j.AddSource("greenhouse") {
		t.Error("AddSource(greenhouse) = false, want true")
	}
	if !j.AddSource("remoteok") {
		t.Error("AddSource(remoteok) = false, want true")
	}
	if j.AddSource("lever") {
		t.Error("AddSource(lever) = true for existing source, want false")
	}

	want := []string{"greenhouse", "lever", "remoteok"}
	if !slices.Equal(j.MergedSources, want) {
		t.Errorf("MergedSources = %v, want %v", j.MergedSources, want)
	}
}

func TestQualifies(t *testing.T) {
	score := func(n int) *int { return &n }
	tests := []struct {
		name  string
		score *int
		want  bool
	}{
		{"unscored", nil, false},
		{"below threshold", score(6), false},
		{"at threshold", score(7), true},
		{"top score", score(10), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := CanonicalJob{FitScore: tt.score}
			if got := j.Qualifies(); got != tt.want {
				t.Errorf("Qualifies() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSourceError_UnwrapsKindAndCause(t *testing.T) {
	err := NewSourceUnavailable("remoteok", &HTTPError{StatusCode: 503})
	wrapped := fmt.Errorf("fetch: %w", err)

	if !errors.Is(wrapped, ErrSourceUnavailable) {
		t.Error("expected errors.Is(ErrSourceUnavailable)")
	}
	if errors.Is(wrapped, ErrSourceFormatChanged) {
		t.Error("did not expect errors.Is(ErrSourceFormatChanged)")
	}
	var httpErr *HTTPError
	if !errors.As(wrapped, &httpErr) || httpErr.StatusCode != 503 {
		t.Errorf("expected HTTPError 503 via errors.As, got %v", httpErr)
	}

	timeout := NewSourceUnavailable("lever", context.DeadlineExceeded)
	if !errors.Is(timeout, context.DeadlineExceeded) {
		t.Error("expected cause to be reachable via errors.Is")
	}
}
