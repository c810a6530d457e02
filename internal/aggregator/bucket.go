package aggregator

import (
	"time"

	"compliance-analytics/internal/model"
	"compliance-analytics/internal/window"
)

// Bucket collects the scans of one entity in one bucket (all or operational).
type Bucket struct {
	ScanTimes   []ScanTime
	CleanTimes  []ScanTime
	ContamTimes []ScanTime
	RewashTimes []ScanTime
}

func (b *Bucket) add(t ScanTime, scan model.ScanRow) {
	b.ScanTimes = append(b.ScanTimes, t)
	if scan.IsClean() {
		b.CleanTimes = append(b.CleanTimes, t)
		return
	}
	if !scan.IsContaminated() {
		return
	}
	b.ContamTimes = append(b.ContamTimes, t)
	if scan.HasRewash {
		b.RewashTimes = append(b.RewashTimes, t)
	}
}

type Buckets struct {
	All         Bucket
	Operational Bucket
}

func (b *Buckets) add(t ScanTime, scan model.ScanRow, operational bool) {
	b.All.add(t, scan)
	if operational {
		b.Operational.add(t, scan)
	}
}

// AcceptedScan is a scan counted for a target date.
type AcceptedScan struct {
	model.ScanRow
	DuringOperationalHours bool
}

// Accumulation is the result of bucketing one date's scans.
type Accumulation struct {
	Accepted    []AcceptedScan
	Locations   map[int64]*Buckets
	Departments map[int64]*Buckets
	Stations    map[int64]*Buckets
}

func newAccumulation() *Accumulation {
	return &Accumulation{
		Locations:   make(map[int64]*Buckets),
		Departments: make(map[int64]*Buckets),
		Stations:    make(map[int64]*Buckets),
	}
}

func bucketsFor(m map[int64]*Buckets, id int64) *Buckets {
	b, ok := m[id]
	if !ok {
		b = &Buckets{}
		m[id] = b
	}
	return b
}

// LocalTime returns the scan time in its location's timezone.
func LocalTime(scan model.ScanRow) time.Time {
	if !scan.LocalScanTime.IsZero() {
		return scan.LocalScanTime
	}
	return scan.CreatedWhen.In(window.LoadLocation(scan.Timezone))
}

// AcceptForDate reports whether a scan counts toward targetDate: it happened
// on that local calendar date, or inside the governing window.
func AcceptForDate(scan model.ScanRow, targetDate time.Time, w window.Window) bool {
	ly, lm, ld := LocalTime(scan).Date()
	ty, tm, td := targetDate.Date()
	if ly == ty && lm == tm && ld == td {
		return true
	}
	return DuringOperationalHours(scan, w)
}

func DuringOperationalHours(scan model.ScanRow, w window.Window) bool {
	return w.Contains(scan.CreatedWhen)
}

// QuickRewash is the one-hop rewash flag: a contaminated scan whose last
// event_list id refers to a clean scan.
func QuickRewash(scan model.ScanRow, results map[int64]int) bool {
	if !scan.IsContaminated() {
		return false
	}
	last, ok := scan.LastEvent()
	if !ok {
		return false
	}
	result, found := results[last]
	return found && result == model.ResultClean
}

// MarkRewash returns copies of scans with HasRewash set from QuickRewash.
func MarkRewash(scans []model.ScanRow, results map[int64]int) []model.ScanRow {
	out := make([]model.ScanRow, len(scans))
	for i, scan := range scans {
		scan.HasRewash = QuickRewash(scan, results)
		out[i] = scan
	}
	return out
}

// BucketScans assigns the scans accepted for targetDate to their station,
// department and location buckets.
func BucketScans(scans []model.ScanRow, targetDate time.Time, windows *window.Windows) *Accumulation {
	acc := newAccumulation()
	pullDate := model.DateKey(targetDate)

	for _, scan := range scans {
		w := windows.Governing(scan.LocationID, scan.DepartmentID)
		if !AcceptForDate(scan, targetDate, w) {
			continue
		}
		operational := DuringOperationalHours(scan, w)
		acc.Accepted = append(acc.Accepted, AcceptedScan{ScanRow: scan, DuringOperationalHours: operational})

		local := LocalTime(scan)
		t := ScanTime{
			LocalScanTime: local,
			UTCScanTime:   scan.CreatedWhen.UTC(),
			EpochSeconds:  float64(scan.CreatedWhen.UnixMicro()) / 1e6,
			PullDate:      pullDate,
		}
		bucketsFor(acc.Stations, scan.StationID).add(t, scan, operational)
		if scan.DepartmentID != nil {
			bucketsFor(acc.Departments, *scan.DepartmentID).add(t, scan, operational)
		}
		bucketsFor(acc.Locations, scan.LocationID).add(t, scan, operational)
	}
	return acc
}

// ApplyMetrics replaces the placeholder metrics of every entity that has
// accepted scans. Entities seen only in scans are added to the hierarchy.
func ApplyMetrics(h *Hierarchy, acc *Accumulation, windows *window.Windows) {
	for _, scan := range acc.Accepted {
		h.ensureScan(scan.ScanRow, windows)
	}

	for _, loc := range h.Locations {
		locWindow, _ := windows.Location(loc.RealLocationID)
		if b, ok := acc.Locations[loc.RealLocationID]; ok {
			loc.Metrics = bucketMetrics(b, locWindow)
		}
		for _, dept := range loc.Departments {
			w := windows.Governing(loc.RealLocationID, &dept.RealDepartmentID)
			if b, ok := acc.Departments[dept.RealDepartmentID]; ok {
				dept.Metrics = bucketMetrics(b, w)
			}
			for _, station := range dept.Stations {
				if b, ok := acc.Stations[station.RealStationID]; ok {
					station.Metrics = bucketMetrics(b, w)
				}
			}
		}
		for _, station := range loc.Stations {
			if b, ok := acc.Stations[station.RealStationID]; ok {
				station.Metrics = bucketMetrics(b, locWindow)
			}
		}
	}
}

func bucketMetrics(b *Buckets, w window.Window) Metrics {
	return Metrics{
		AllScans:              Calculate(b.All, w),
		OperationalHoursScans: Calculate(b.Operational, w),
	}
}
