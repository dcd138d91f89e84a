package domain

import (
	"testing"
)

func TestStatusForRange(t *testing.T) {
	for balance := int64(-100000); balance <= 100000; balance += 137 {
		got := StatusFor(balance)
		switch {
		case balance < 0 && got != StatusPrepaid:
			t.Fatalf("balance %d: expected Prepaid, got %s", balance, got)
		case balance > 0 && got != StatusOverdue:
			t.Fatalf("balance %d: expected Overdue, got %s", balance, got)
		}
	}
	if StatusFor(0) != StatusCleared {
		t.Fatalf("zero balance must be Cleared")
	}
}
