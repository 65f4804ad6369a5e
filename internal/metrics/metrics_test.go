package metrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dukerupert/larder/internal/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("get: %w", model.ErrNotFound), "not_found"},
		{model.ErrInvalidState, "rejected"},
		{fmt.Errorf("remove: %w", model.ErrInsufficientQuantity), "conflict"},
		{model.ErrInUse, "conflict"},
		{errors.New("disk full"), "error"},
	}
	for _, tt := range tests {
		if got := Outcome(tt.err); got != tt.want {
			t.Errorf("Outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestObserveLedgerOp(t *testing.T) {
	before := testutil.ToFloat64(ledgerOperations.WithLabelValues("consume", "ok"))
	ObserveLedgerOp("consume", nil)
	after := testutil.ToFloat64(ledgerOperations.WithLabelValues("consume", "ok"))
	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1", after-before)
	}
}
