package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestBillableMinutes(t *testing.T) {
	cases := map[int]int{
		-5:  0,
		0:   0,
		1:   1,
		59:  1,
		60:  1,
		61:  2,
		125: 3,
		180: 3,
	}
	for sec, want := range cases {
		if got := BillableMinutes(sec); got != want {
			t.Fatalf("BillableMinutes(%d): expected %d, got %d", sec, want, got)
		}
	}
}

func TestBillableMinutes_LongCalls(t *testing.T) {
	if got := BillableMinutes(3600); got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}
	if got := BillableMinutes(3601); got != 61 {
		t.Fatalf("expected 61, got %d", got)
	}
}

func TestCallCost(t *testing.T) {
	got := CallCost(decimal.RequireFromString("0.05"), BillableMinutes(125))
	if !got.Equal(decimal.RequireFromString("0.15")) {
		t.Fatalf("expected 0.15, got %s", got)
	}
	if !CallCost(decimal.RequireFromString("0.05"), 0).IsZero() {
		t.Fatalf("expected zero cost for zero minutes")
	}
}

func TestMaxAffordableMinutes(t *testing.T) {
	e := MaxAffordableMinutes(decimal.RequireFromString("1.00"), decimal.RequireFromString("0.05"))
	if e.Minutes != 20 || e.Unlimited {
		t.Fatalf("expected 20 minutes, got %+v", e)
	}
	if e.MaxCallSeconds() != 1200 {
		t.Fatalf("expected 1200s, got %d", e.MaxCallSeconds())
	}

	e = MaxAffordableMinutes(decimal.RequireFromString("0.99"), decimal.RequireFromString("0.50"))
	if e.Minutes != 1 {
		t.Fatalf("expected floor to 1, got %d", e.Minutes)
	}

	e = MaxAffordableMinutes(decimal.Zero, decimal.RequireFromString("0.50"))
	if e.Minutes != 0 {
		t.Fatalf("expected 0 for empty balance, got %d", e.Minutes)
	}

	e = MaxAffordableMinutes(decimal.Zero, decimal.Zero)
	if !e.Unlimited || e.MaxCallSeconds() != 0 {
		t.Fatalf("expected unlimited for free rate, got %+v", e)
	}
}
