package lunar

import (
	"math"
	"time"
)

// Synodic month length in days and a reference new moon (2000-01-06
// 18:14 UTC). Good to within a phase bucket for decades either side.
const (
	synodicDays = 29.53058867
)

var referenceNewMoon = time.Date(2000, 1, 6, 18, 14, 0, 0, time.UTC)

// Phase names double as context labels in the learning store, so they
// must stay stable across releases.
const (
	PhaseNewMoon        = "new_moon"
	PhaseWaxingCrescent = "waxing_crescent"
	PhaseFirstQuarter   = "first_quarter"
	PhaseWaxingGibbous  = "waxing_gibbous"
	PhaseFullMoon       = "full_moon"
	PhaseWaningGibbous  = "waning_gibbous"
	PhaseLastQuarter    = "last_quarter"
	PhaseWaningCrescent = "waning_crescent"
)

var phaseNames = []string{
	PhaseNewMoon,
	PhaseWaxingCrescent,
	PhaseFirstQuarter,
	PhaseWaxingGibbous,
	PhaseFullMoon,
	PhaseWaningGibbous,
	PhaseLastQuarter,
	PhaseWaningCrescent,
}

// Phase is the moon state at one instant.
type Phase struct {
	Name         string  `json:"name"`
	Fraction     float64 `json:"fraction"`     // 0 = new, 0.5 = full
	Illumination float64 `json:"illumination"` // 0..1 visible disc
}

// Tracker labels instants with the lunar phase. Stateless and safe for
// concurrent use.
type Tracker struct{}

func NewTracker() *Tracker { return &Tracker{} }

// Label implements the context labeler used by the learning store.
func (tr *Tracker) Label(at time.Time) string {
	return tr.Phase(at).Name
}

// Phase computes the cycle fraction since the reference new moon and
// buckets it into one of eight named phases.
func (tr *Tracker) Phase(at time.Time) Phase {
	days := at.Sub(referenceNewMoon).Hours() / 24
	fraction := math.Mod(days/synodicDays, 1)
	if fraction < 0 {
		fraction++
	}

	// each bucket is 1/8 of the cycle, centered on its exact instant
	idx := int(math.Floor(fraction*8+0.5)) % 8

	return Phase{
		Name:         phaseNames[idx],
		Fraction:     fraction,
		Illumination: (1 - math.Cos(2*math.Pi*fraction)) / 2,
	}
}
