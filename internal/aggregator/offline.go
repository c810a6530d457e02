package aggregator

import (
	"time"

	"compliance-analytics/internal/model"
)

// StationOfflineWithinHour flags a station that never pinged, or whose last
// ping came less than an hour after close (including any time before it).
func StationOfflineWithinHour(lastPing *time.Time, close time.Time) bool {
	if lastPing == nil {
		return true
	}
	return lastPing.Sub(close) < time.Hour
}

type DevicePingSummary struct {
	TotalStations      int
	StationsWithStatus int
	PingedAfterClose   int
}

// SummarizePings counts, over stationIDs, those with a status and those whose
// last ping is strictly after close.
func SummarizePings(stationIDs []int64, statuses map[int64]model.DeviceStatus, close time.Time) DevicePingSummary {
	summary := DevicePingSummary{TotalStations: len(stationIDs)}
	for _, id := range stationIDs {
		status, ok := statuses[id]
		if !ok || status.StatusWhen == nil {
			continue
		}
		summary.StationsWithStatus++
		if status.StatusWhen.After(close) {
			summary.PingedAfterClose++
		}
	}
	return summary
}

// LocationDevicesOffline is the strict aggregate check: offline unless every
// station with a status pinged after close.
func LocationDevicesOffline(s DevicePingSummary) bool {
	if s.TotalStations == 0 || s.StationsWithStatus == 0 {
		return true
	}
	return s.PingedAfterClose < s.StationsWithStatus
}
