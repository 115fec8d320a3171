package errkind

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(Transient, base, "calling provider")
	if !errors.Is(err, base) {
		t.Fatalf("expected Wrap to preserve unwrap chain")
	}
	if KindOf(err) != Transient {
		t.Fatalf("KindOf = %v, want Transient", KindOf(err))
	}
}

func TestIs(t *testing.T) {
	err := New(CircuitOpen, "breaker open")
	if !Is(err, CircuitOpen) {
		t.Fatalf("Is(CircuitOpen) = false, want true")
	}
	if Is(err, Permanent) {
		t.Fatalf("Is(Permanent) = true, want false")
	}
}

func TestClassifyMessageRetryable(t *testing.T) {
	cases := []string{"rate limit exceeded", "request timeout", "503 Service Unavailable", "connection reset by peer"}
	for _, c := range cases {
		if got := ClassifyMessage(c); got != Transient {
			t.Errorf("ClassifyMessage(%q) = %v, want Transient", c, got)
		}
	}
}

func TestClassifyMessagePermanent(t *testing.T) {
	cases := []string{"401 Unauthorized", "invalid API key", "404 not found"}
	for _, c := range cases {
		if got := ClassifyMessage(c); got != Permanent {
			t.Errorf("ClassifyMessage(%q) = %v, want Permanent", c, got)
		}
	}
}

func TestClassifyPrefersTaggedKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(Permanent, "bad request"))
	if Classify(err) != Permanent {
		t.Fatalf("Classify() = %v, want Permanent", Classify(err))
	}
}

func TestClassifyUnknown(t *testing.T) {
	if got := Classify(errors.New("something weird")); got != "" {
		t.Errorf("Classify() = %v, want empty", got)
	}
}
