package aggregator

import (
	"sort"
	"time"

	"compliance-analytics/internal/window"
)

// ScanTime is one scan as it appears in a metrics bucket.
type ScanTime struct {
	LocalScanTime time.Time `json:"local_scan_time"`
	UTCScanTime   time.Time `json:"utc_scan_time"`
	EpochSeconds  float64   `json:"epoch_seconds"`
	PullDate      string    `json:"pull_date"`
}

type BucketMetrics struct {
	FirstScan              *ScanTime `json:"first_scan"`
	LastScan               *ScanTime `json:"last_scan"`
	AvgSecondsBetweenScans float64   `json:"avg_seconds_between_scans"`
	TotalWashes            int       `json:"total_washes"`
	TotalContaminated      int       `json:"total_contaminated"`
	TotalWithRewash        int       `json:"total_with_rewash"`
}

type Metrics struct {
	AllScans              BucketMetrics `json:"all_scans"`
	OperationalHoursScans BucketMetrics `json:"operational_hours_scans"`
}

// DummyBucket is the placeholder for a bucket without scans: no first/last
// scan, zero counts and a gap spanning the whole window.
func DummyBucket(w window.Window) BucketMetrics {
	return BucketMetrics{AvgSecondsBetweenScans: w.Duration().Seconds()}
}

func DummyMetrics(w window.Window) Metrics {
	return Metrics{AllScans: DummyBucket(w), OperationalHoursScans: DummyBucket(w)}
}

// WeightedGap anchors times to [start, end] and returns sum(g^2)/sum(g) over
// the consecutive gaps in seconds.
func WeightedGap(start, end time.Time, times []time.Time) float64 {
	sorted := make([]time.Time, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	if len(sorted) == 0 || sorted[0].After(start) {
		sorted = append([]time.Time{start}, sorted...)
	}
	if sorted[len(sorted)-1].Before(end) {
		sorted = append(sorted, end)
	}

	if len(sorted) == 1 {
		return end.Sub(start).Seconds()
	}

	var sumSquares, sum float64
	for i := 1; i < len(sorted); i++ {
		gap := sorted[i].Sub(sorted[i-1]).Seconds()
		sumSquares += gap * gap
		sum += gap
	}
	if sum == 0 {
		return 0
	}
	return sumSquares / sum
}

// Calculate summarizes a bucket against its governing window. Empty buckets
// get the dummy placeholder.
func Calculate(b Bucket, w window.Window) BucketMetrics {
	if len(b.ScanTimes) == 0 {
		return DummyBucket(w)
	}

	scans := make([]ScanTime, len(b.ScanTimes))
	copy(scans, b.ScanTimes)
	sort.SliceStable(scans, func(i, j int) bool { return scans[i].UTCScanTime.Before(scans[j].UTCScanTime) })

	times := make([]time.Time, len(scans))
	for i, s := range scans {
		times[i] = s.UTCScanTime
	}

	first, last := scans[0], scans[len(scans)-1]
	return BucketMetrics{
		FirstScan:              &first,
		LastScan:               &last,
		AvgSecondsBetweenScans: WeightedGap(w.UTCStart, w.UTCEnd, times),
		TotalWashes:            len(scans),
		TotalContaminated:      len(b.ContamTimes),
		TotalWithRewash:        len(b.RewashTimes),
	}
}
