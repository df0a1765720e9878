package usage

import (
	"math"
	"testing"

	"github.com/Allen-B1/monitor-v3/internal/activity"
)

func TestBatch_AddTally(t *testing.T) {
	tally := activity.NewTally()
	tally.Active[active("Code", "monitor")] = 2
	tally.Open[open("Code")] = 3

	batch := NewBatch(1)
	batch.AddTally(tally, 5)

	if got := batch.Active[active("Code", "monitor")]; got != 10 {
		t.Errorf("Expected 10 active seconds, got %d", got)
	}
	if got := batch.Open[open("Code")]; got != 15 {
		t.Errorf("Expected 15 open seconds, got %d", got)
	}

	batch.AddTally(tally, 1)
	if got := batch.Active[active("Code", "monitor")]; got != 12 {
		t.Errorf("Expected 12 active seconds, got %d", got)
	}
}

func TestBatch_AddTallySaturates(t *testing.T) {
	tally := activity.NewTally()
	tally.Open[open("Code")] = math.MaxUint32 / 2

	batch := NewBatch(1)
	batch.AddTally(tally, 4)

	if got := batch.Open[open("Code")]; got != math.MaxUint32 {
		t.Errorf("Expected saturated counter, got %d", got)
	}
}
