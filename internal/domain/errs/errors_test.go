package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("fetch current: %w", &Error{Kind: KindBlocked, Op: "request", Status: 429})

	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected wrapped error to match ErrBlocked")
	}
	if errors.Is(err, ErrTransient) {
		t.Fatalf("blocked error must not match ErrTransient")
	}
	if KindOf(err) != KindBlocked {
		t.Fatalf("KindOf = %v, want blocked", KindOf(err))
	}
}

func TestExhaustedUnwrapsLastCause(t *testing.T) {
	last := &Error{Kind: KindTransient, Op: "request"}
	err := E(KindExhausted, "request", last)

	if !errors.Is(err, ErrExhausted) || !errors.Is(err, ErrTransient) {
		t.Fatalf("expected both exhausted and transient in chain: %v", err)
	}
}

func TestErrorString(t *testing.T) {
	err := &Error{Kind: KindBlocked, Op: "nse.request", Status: 403}
	if got, want := err.Error(), "nse.request: blocked (status 403)"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatalf("plain errors have unknown kind")
	}
}
