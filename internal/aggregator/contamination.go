package aggregator

import (
	"math"

	"compliance-analytics/internal/model"
	"compliance-analytics/internal/window"
)

type ContaminationSummary struct {
	LocationID          int64 `json:"-"`
	TotalScans          int   `json:"total_scans"`
	CleanScans          int   `json:"clean_scans"`
	ContaminatedScans   int   `json:"contaminated_scans"`
	ContaminationEvents int   `json:"contamination_events"`
	ResolvedEvents      int   `json:"resolved_events"`
	UnresolvedEvents    int   `json:"unresolved_events"`
}

// ScansInWindow keeps the scans of one location created inside w.
func ScansInWindow(scans []model.ScanRow, locationID int64, w window.Window) []model.ScanRow {
	var out []model.ScanRow
	for _, scan := range scans {
		if scan.LocationID == locationID && w.Contains(scan.CreatedWhen) {
			out = append(out, scan)
		}
	}
	return out
}

// ResolveContamination groups contaminated scans by identical event_list into
// contamination events. An event is resolved when its last id refers to a
// clean scan in the same set; ids outside the set count as unresolved.
func ResolveContamination(locationID int64, scans []model.ScanRow) ContaminationSummary {
	summary := ContaminationSummary{LocationID: locationID, TotalScans: len(scans)}

	results := make(map[int64]int, len(scans))
	for _, scan := range scans {
		results[scan.ID] = scan.Result
		switch {
		case scan.IsClean():
			summary.CleanScans++
		case scan.IsContaminated():
			summary.ContaminatedScans++
		}
	}

	seen := make(map[string]struct{})
	for _, scan := range scans {
		if !scan.IsContaminated() {
			continue
		}
		key := scan.EventKey()
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		summary.ContaminationEvents++

		last, _ := scan.LastEvent()
		if result, ok := results[last]; ok && result == model.ResultClean {
			summary.ResolvedEvents++
		} else {
			summary.UnresolvedEvents++
		}
	}
	return summary
}

// EffectiveGoal treats a missing or zero goal as unset.
func EffectiveGoal(goal *int, fallback int) int {
	if goal == nil || *goal == 0 {
		return fallback
	}
	return *goal
}

func CompletedPercent(totalScans, goal int) float64 {
	if goal <= 0 {
		return 0
	}
	return float64(totalScans) / float64(goal) * 100
}

func ContaminatedPercent(contaminated, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(contaminated) / float64(total) * 100
}

// ResolvedPercent is 100 when there were no contamination events.
func ResolvedPercent(resolved, events int) float64 {
	if events == 0 {
		return 100
	}
	return float64(resolved) / float64(events) * 100
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
