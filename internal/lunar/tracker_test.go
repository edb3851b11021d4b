package lunar

import (
	"testing"
	"time"
)

func TestPhaseKnownDates(t *testing.T) {
	tr := NewTracker()
	tests := []struct {
		date time.Time
		want string
	}{
		// reference instant itself
		{time.Date(2000, 1, 6, 18, 14, 0, 0, time.UTC), PhaseNewMoon},
		// half a synodic month later
		{time.Date(2000, 1, 21, 4, 0, 0, 0, time.UTC), PhaseFullMoon},
		// documented full moon well after the reference epoch
		{time.Date(2024, 1, 25, 18, 0, 0, 0, time.UTC), PhaseFullMoon},
		// documented new moon
		{time.Date(2024, 2, 9, 23, 0, 0, 0, time.UTC), PhaseNewMoon},
	}
	for _, tc := range tests {
		if got := tr.Phase(tc.date).Name; got != tc.want {
			t.Errorf("Phase(%s) = %s, want %s", tc.date.Format("2006-01-02"), got, tc.want)
		}
	}
}

func TestPhaseBeforeReferenceEpoch(t *testing.T) {
	tr := NewTracker()
	p := tr.Phase(time.Date(1999, 12, 22, 12, 0, 0, 0, time.UTC))
	if p.Fraction < 0 || p.Fraction >= 1 {
		t.Fatalf("fraction = %v, want [0,1)", p.Fraction)
	}
}

func TestIlluminationExtremes(t *testing.T) {
	tr := NewTracker()

	newMoon := tr.Phase(time.Date(2000, 1, 6, 18, 14, 0, 0, time.UTC))
	if newMoon.Illumination > 0.01 {
		t.Errorf("new moon illumination = %v, want ~0", newMoon.Illumination)
	}

	fullMoon := tr.Phase(time.Date(2000, 1, 21, 4, 0, 0, 0, time.UTC))
	if fullMoon.Illumination < 0.95 {
		t.Errorf("full moon illumination = %v, want ~1", fullMoon.Illumination)
	}
}

func TestLabelMatchesPhaseName(t *testing.T) {
	tr := NewTracker()
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if tr.Label(at) != tr.Phase(at).Name {
		t.Fatal("Label must return the phase name")
	}
}
