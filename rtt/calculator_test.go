package rtt_test

import (
	"testing"
	"time"

	"github.com/zackxzhang/tcup/rtt"
)

func TestCalculatorDefaults(t *testing.T) {
	c := rtt.NewCalculator()
	if got, want := c.TOI(), time.Second; got != want {
		t.Fatalf("initial TOI = %v, want %v", got, want)
	}
}

func TestCalculatorUpdateUsesFreshEstRTTForDeviation(t *testing.T) {
	c := rtt.NewCalculator()
	c.Update(80 * time.Millisecond)
	// estRTT = .875*1s + .125*80ms = 885ms
	// devRTT = .75*0 + .25*|80ms-885ms| = .25*805ms = 201.25ms
	wantEst := 885 * time.Millisecond
	wantDev := 201250 * time.Microsecond
	wantTOI := wantEst + 4*wantDev
	if got := c.TOI(); got != wantTOI {
		t.Fatalf("TOI = %v, want %v", got, wantTOI)
	}
}

func TestCalculatorTOINeverExceedsThreshold(t *testing.T) {
	c := rtt.NewCalculator()
	for i := 0; i < 50; i++ {
		c.Update(30 * time.Second)
		if toi := c.TOI(); toi > 10*time.Second {
			t.Fatalf("TOI = %v exceeds threshold", toi)
		}
		if toi := c.TOI(); toi <= 0 {
			t.Fatalf("TOI = %v is not positive", toi)
		}
	}
}

func TestBackoffGrowsUntilSaturated(t *testing.T) {
	c := rtt.NewCalculator()
	prev := c.TOI()
	for i := 0; i < 200; i++ {
		c.Backoff(1.1)
		toi := c.TOI()
		if toi < prev {
			t.Fatalf("TOI shrank from %v to %v under backoff", prev, toi)
		}
		if toi != 10*time.Second && toi <= prev {
			t.Fatalf("TOI failed to strictly grow below threshold: %v -> %v", prev, toi)
		}
		prev = toi
	}
	if prev != 10*time.Second {
		t.Fatalf("expected TOI to saturate at threshold, got %v", prev)
	}
	// further backoff is a no-op once saturated
	c.Backoff(1.1)
	if c.TOI() != 10*time.Second {
		t.Fatalf("expected saturated TOI to stay at threshold, got %v", c.TOI())
	}
}
