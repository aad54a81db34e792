package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("approve: %w", Conflict("already processed"))
	if got := KindOf(err); got != KindConflict {
		t.Fatalf("expected conflict, got %s", got)
	}
	if !Is(err, KindConflict) {
		t.Fatalf("expected Is to match conflict")
	}
}

func TestKindOfPlainErrorIsInternal(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Fatalf("expected internal, got %s", got)
	}
	if Is(nil, KindInternal) {
		t.Fatalf("nil error should not match any kind")
	}
}

func TestFieldCarriesMessage(t *testing.T) {
	err := Field("choice_id", "choice log not found")
	if err.Fields["choice_id"] != "choice log not found" {
		t.Fatalf("unexpected fields: %#v", err.Fields)
	}
	if err.Error() != "choice log not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestInternalUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := Internal("stage files", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause in chain")
	}
}
