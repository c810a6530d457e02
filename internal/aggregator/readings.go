package aggregator

import (
	"sort"
	"strings"
	"time"

	"compliance-analytics/internal/model"
)

const (
	outOfRangeMinimum = 2 * time.Hour
	checkLookback     = 2 * time.Hour
)

type Limits struct {
	High *float64
	Low  *float64
}

func (l Limits) Defined() bool {
	return l.High != nil
}

func limit(v float64) *float64 { return &v }

var defaultTemperatureLimits = map[string]Limits{
	"fridge":  {High: limit(5)},
	"chiller": {High: limit(5)},
	"freezer": {High: limit(-15)},
}

// LimitsForUnitType matches the most specific known category contained in
// the unit type name.
func LimitsForUnitType(unitType string) Limits {
	category := strings.ToLower(unitType)
	best := ""
	for key := range defaultTemperatureLimits {
		if strings.Contains(category, key) && len(key) > len(best) {
			best = key
		}
	}
	if best == "" {
		return Limits{}
	}
	return defaultTemperatureLimits[best]
}

// CheckStart is where a check's reading window opens. Checks after the first
// look back two hours before their nominal start.
func CheckStart(nominal time.Time, checkID int) time.Time {
	if checkID > 0 {
		return nominal.Add(-checkLookback)
	}
	return nominal
}

type CheckReading struct {
	model.SensorReading
	OutOfRange bool `json:"out_of_range"`
}

// SelectCheckReading picks the reading reported for one sensor in a check
// window. A run above the high limit lasting at least two hours wins when its
// last reading is at or after the nominal start; otherwise the latest in-range
// reading at or after the nominal start, then the latest such out-of-range
// reading, then the reading last considered.
func SelectCheckReading(readings []model.SensorReading, nominalStart time.Time, limits Limits) (CheckReading, bool) {
	if len(readings) == 0 {
		return CheckReading{}, false
	}

	sorted := make([]model.SensorReading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedWhen.Before(sorted[j].CreatedWhen) })

	if !limits.Defined() {
		return CheckReading{SensorReading: sorted[len(sorted)-1]}, true
	}

	eligible := func(r *model.SensorReading) bool {
		return r != nil && !r.CreatedWhen.Before(nominalStart)
	}

	var (
		picked        CheckReading
		runStart      *time.Time
		intervalFound bool
		lastInterval  *model.SensorReading
		lastInRange   *model.SensorReading
		lastOutRange  *model.SensorReading
	)
	for i := range sorted {
		reading := &sorted[i]
		if reading.Value > *limits.High {
			lastOutRange = reading
			if runStart == nil {
				start := reading.CreatedWhen
				runStart = &start
			}
			if reading.CreatedWhen.Sub(*runStart) >= outOfRangeMinimum {
				intervalFound = true
				lastInterval = reading
			}
		} else {
			runStart = nil
			lastInRange = reading
		}

		var fallback *model.SensorReading
		switch {
		case eligible(lastInRange):
			fallback = lastInRange
		case eligible(lastOutRange):
			fallback = lastOutRange
		}

		switch {
		case intervalFound && lastInterval != nil && eligible(lastInterval):
			picked = CheckReading{SensorReading: *lastInterval, OutOfRange: true}
		case fallback != nil:
			picked = CheckReading{SensorReading: *fallback}
		case !intervalFound:
			picked = CheckReading{SensorReading: *reading}
		}
	}
	return picked, true
}
