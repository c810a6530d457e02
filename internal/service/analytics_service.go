package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"compliance-analytics/internal/aggregator"
	"compliance-analytics/internal/model"
	"compliance-analytics/internal/observability"
	"compliance-analytics/internal/repository"
	"compliance-analytics/internal/window"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrInvalidRequest   = errors.New("invalid request")
)

const (
	opLocationMetrics = "location_metrics"
	opScanDetails     = "scan_details"
	opDeviceStatus    = "device_status"
	opVendorMetrics   = "vendor_metrics"
	opSensorCheck     = "sensor_check"
	opSensorMetrics   = "sensor_metrics"
)

type ScopeReader interface {
	ApprovedScope(ctx context.Context, userID uuid.UUID, permissions ...model.Permission) (model.Scope, error)
}

// AnalyticsStore is the read side of the database.
type AnalyticsStore interface {
	Locations(ctx context.Context, ids []int64) ([]model.Location, error)
	DepartmentSchedules(ctx context.Context, locationIDs []int64) ([]model.DepartmentSchedule, error)
	ActiveStations(ctx context.Context, filter repository.StationFilter) ([]model.StationRow, error)
	Scans(ctx context.Context, filter repository.ScanFilter) ([]model.ScanRow, error)
	ScanResults(ctx context.Context, ids []int64) (map[int64]int, error)
	DeviceStatuses(ctx context.Context, stationIDs []int64) ([]model.DeviceStatus, error)
	VendorLocations(ctx context.Context, locationIDs []int64, vendorIDs []string) ([]model.VendorLocation, error)
	SensorReadings(ctx context.Context, filter repository.SensorFilter) ([]model.SensorReading, error)
	SensorStatuses(ctx context.Context, locationID int64) ([]model.SensorStatus, error)
	SensorAlerts(ctx context.Context, locationID int64) ([]model.SensorAlert, error)
}

type AnalyticsService struct {
	scopes          ScopeReader
	store           AnalyticsStore
	defaultScanGoal int
	log             zerolog.Logger
	now             func() time.Time
}

func NewAnalyticsService(scopes ScopeReader, store AnalyticsStore, defaultScanGoal int, log zerolog.Logger) *AnalyticsService {
	return &AnalyticsService{
		scopes:          scopes,
		store:           store,
		defaultScanGoal: defaultScanGoal,
		log:             log,
		now:             time.Now,
	}
}

// LocationMetrics builds the location -> department -> station metrics tree
// for every selected date.
func (s *AnalyticsService) LocationMetrics(ctx context.Context, principal model.Principal, sel model.DateSelection, filter model.EntityFilter, internal bool) (resp *model.DatedResponse[*aggregator.Hierarchy], err error) {
	started := time.Now()
	defer func() { observability.ObserveAggregation(opLocationMetrics, err, time.Since(started)) }()

	if internal && !principal.IsService() {
		return nil, ErrPermissionDenied
	}

	scope, err := s.scopes.ApprovedScope(ctx, principal.UserID, model.PermissionViewDevices, model.PermissionViewHandwashes)
	if err != nil {
		return nil, err
	}
	resp = model.NewDatedResponse[*aggregator.Hierarchy](sel)
	if len(scope.StationIDs) == 0 {
		for _, date := range sel.Dates() {
			resp.Put(date, aggregator.NewHierarchy())
		}
		return resp, nil
	}
	if _, ok := scope.Narrow(filter); !ok {
		return nil, ErrPermissionDenied
	}

	rows, err := s.store.ActiveStations(ctx, repository.StationFilter{StationIDs: scope.StationIDs, EntityFilter: filter})
	if err != nil {
		return nil, err
	}
	stationIDs, locationIDs := stationLineage(rows)

	scans, err := s.loadScans(ctx, repository.ScanFilter{StationIDs: stationIDs}, sel)
	if err != nil {
		return nil, err
	}
	statuses, err := s.statusMap(ctx, stationIDs)
	if err != nil {
		return nil, err
	}
	locations, departments, err := s.schedules(ctx, locationIDs)
	if err != nil {
		return nil, err
	}

	for _, date := range sel.Dates() {
		windows := s.windowsFor(date, locations, departments)
		hierarchy := aggregator.BuildSkeleton(rows, statuses, windows)
		acc := aggregator.BucketScans(scans, date, windows)
		aggregator.ApplyMetrics(hierarchy, acc, windows)
		if !internal {
			hierarchy.Redact()
		}
		resp.Put(date, hierarchy)

		s.log.Debug().
			Str("date", model.DateKey(date)).
			Int("locations", len(hierarchy.Locations)).
			Int("accepted_scans", len(acc.Accepted)).
			Msg("location metrics computed")
	}
	return resp, nil
}

// ScanDetails lists the scans counted for each selected date.
func (s *AnalyticsService) ScanDetails(ctx context.Context, principal model.Principal, sel model.DateSelection, internal bool) (resp *model.DatedResponse[[]ScanDetail], err error) {
	started := time.Now()
	defer func() { observability.ObserveAggregation(opScanDetails, err, time.Since(started)) }()

	if internal && !principal.IsService() {
		return nil, ErrPermissionDenied
	}

	scope, err := s.scopes.ApprovedScope(ctx, principal.UserID, model.PermissionViewHandwashes)
	if err != nil {
		return nil, err
	}
	resp = model.NewDatedResponse[[]ScanDetail](sel)
	if len(scope.StationIDs) == 0 {
		for _, date := range sel.Dates() {
			resp.Put(date, []ScanDetail{})
		}
		return resp, nil
	}

	scans, err := s.loadScans(ctx, repository.ScanFilter{StationIDs: scope.StationIDs}, sel)
	if err != nil {
		return nil, err
	}
	locationIDs := scanLocations(scans)
	locations, departments, err := s.schedules(ctx, locationIDs)
	if err != nil {
		return nil, err
	}

	for _, date := range sel.Dates() {
		windows := s.windowsFor(date, locations, departments)
		acc := aggregator.BucketScans(scans, date, windows)
		pullDate := model.DateKey(date)
		details := make([]ScanDetail, 0, len(acc.Accepted))
		for _, accepted := range acc.Accepted {
			details = append(details, newScanDetail(accepted, pullDate, internal))
		}
		resp.Put(date, details)
	}
	return resp, nil
}

// DeviceStatuses returns the most recent ping of every authorized station.
func (s *AnalyticsService) DeviceStatuses(ctx context.Context, principal model.Principal, internal bool) (views []DeviceStatusView, err error) {
	started := time.Now()
	defer func() { observability.ObserveAggregation(opDeviceStatus, err, time.Since(started)) }()

	if internal && !principal.IsService() {
		return nil, ErrPermissionDenied
	}

	scope, err := s.scopes.ApprovedScope(ctx, principal.UserID, model.PermissionViewDevices)
	if err != nil {
		return nil, err
	}
	if len(scope.StationIDs) == 0 {
		return []DeviceStatusView{}, nil
	}

	statuses, err := s.store.DeviceStatuses(ctx, scope.StationIDs)
	if err != nil {
		return nil, err
	}
	views = make([]DeviceStatusView, 0, len(statuses))
	for _, status := range statuses {
		views = append(views, newDeviceStatusView(status, internal))
	}
	return views, nil
}

// VendorMetrics reports per-location completion, contamination, rewash and
// offline figures for vendor integrations. A nil selection means yesterday.
func (s *AnalyticsService) VendorMetrics(ctx context.Context, principal model.Principal, sel *model.DateSelection, vendorIDs []string) (result []VendorLocationMetrics, err error) {
	started := time.Now()
	defer func() { observability.ObserveAggregation(opVendorMetrics, err, time.Since(started)) }()

	if sel == nil {
		yesterday := model.SingleDate(s.now().UTC().AddDate(0, 0, -1))
		sel = &yesterday
	}

	scope, err := s.scopes.ApprovedScope(ctx, principal.UserID, model.PermissionViewHandwashes, model.PermissionViewDevices)
	if err != nil {
		return nil, err
	}
	if len(scope.LocationIDs) == 0 {
		return nil, fmt.Errorf("%w: no accessible locations", ErrPermissionDenied)
	}

	mappings, err := s.store.VendorLocations(ctx, scope.LocationIDs, vendorIDs)
	if err != nil {
		return nil, err
	}
	if len(mappings) == 0 {
		return nil, fmt.Errorf("%w: no matching locations found", ErrNotFound)
	}

	locationIDs := make([]int64, 0, len(mappings))
	for _, m := range mappings {
		locationIDs = append(locationIDs, m.LocationID)
	}
	rows, err := s.store.ActiveStations(ctx, repository.StationFilter{LocationIDs: locationIDs})
	if err != nil {
		return nil, err
	}
	stationIDs, _ := stationLineage(rows)
	stationsByLocation := make(map[int64][]int64)
	for _, row := range rows {
		stationsByLocation[row.LocationID] = append(stationsByLocation[row.LocationID], row.StationID)
	}
	statuses, err := s.statusMap(ctx, stationIDs)
	if err != nil {
		return nil, err
	}
	scans, err := s.store.Scans(ctx, scanRange(repository.ScanFilter{LocationIDs: locationIDs}, *sel))
	if err != nil {
		return nil, err
	}

	result = make([]VendorLocationMetrics, 0, len(mappings))
	for _, m := range mappings {
		entry := VendorLocationMetrics{LocationUUID: m.VendorLocationID, Dates: []map[string]VendorDayMetrics{}}
		goal := aggregator.EffectiveGoal(m.ScanGoal, s.defaultScanGoal)
		schedule := ""
		if m.DetailedScanGoal != nil {
			schedule = *m.DetailedScanGoal
		}
		for _, date := range sel.Dates() {
			w := window.ResolveRaw(date, m.Timezone, schedule)
			if w.Fallback {
				observability.AddScheduleFallbacks(1)
			}
			summary := aggregator.ResolveContamination(m.LocationID, aggregator.ScansInWindow(scans, m.LocationID, w))
			pings := aggregator.SummarizePings(stationsByLocation[m.LocationID], statuses, w.UTCEnd)

			entry.Dates = append(entry.Dates, map[string]VendorDayMetrics{
				date.Format(vendorDateLayout): {
					LocalOperationalStartTime:      w.LocalStart.Format(isoLayout),
					LocalOperationalEndTime:        w.LocalEnd.Format(isoLayout),
					OperationalCompletedPercent:    aggregator.Round2(aggregator.CompletedPercent(summary.TotalScans, goal)),
					OperationalContaminatedPercent: aggregator.Round2(aggregator.ContaminatedPercent(summary.ContaminatedScans, summary.TotalScans)),
					OperationalRewashPercent:       aggregator.Round2(aggregator.ResolvedPercent(summary.ResolvedEvents, summary.ContaminationEvents)),
					OfflineDevice:                  aggregator.LocationDevicesOffline(pings),
				},
			})
		}
		result = append(result, entry)
	}
	return result, nil
}

type SensorCheckRequest struct {
	LocationID    int64
	DepartmentIDs []int64
	// Start and End are wall-clock times in the location's timezone.
	Start   time.Time
	End     time.Time
	CheckID int
}

// SensorCheck picks the reading each active sensor reports for one check window.
func (s *AnalyticsService) SensorCheck(ctx context.Context, principal model.Principal, req SensorCheckRequest) (readings []aggregator.CheckReading, err error) {
	started := time.Now()
	defer func() { observability.ObserveAggregation(opSensorCheck, err, time.Since(started)) }()

	if req.End.Before(req.Start) {
		return nil, fmt.Errorf("%w: end must not be before start", ErrInvalidRequest)
	}

	scope, err := s.scopes.ApprovedScope(ctx, principal.UserID, model.PermissionGenerateReports)
	if err != nil {
		return nil, err
	}
	if !scope.AllowsLocation(req.LocationID) {
		return nil, ErrPermissionDenied
	}
	for _, id := range req.DepartmentIDs {
		if !scope.AllowsDepartment(id) {
			return nil, ErrPermissionDenied
		}
	}

	locations, err := s.store.Locations(ctx, []int64{req.LocationID})
	if err != nil {
		return nil, err
	}
	if len(locations) == 0 {
		return nil, ErrNotFound
	}
	tz := window.LoadLocation(locations[0].Timezone)
	nominal := wallClock(req.Start, tz)
	end := wallClock(req.End, tz)

	all, err := s.store.SensorReadings(ctx, repository.SensorFilter{
		LocationID:    req.LocationID,
		DepartmentIDs: req.DepartmentIDs,
		From:          aggregator.CheckStart(nominal, req.CheckID),
		To:            end,
	})
	if err != nil {
		return nil, err
	}

	var order []int64
	bySensor := make(map[int64][]model.SensorReading)
	for _, r := range all {
		if _, ok := bySensor[r.SensorID]; !ok {
			order = append(order, r.SensorID)
		}
		bySensor[r.SensorID] = append(bySensor[r.SensorID], r)
	}

	readings = make([]aggregator.CheckReading, 0, len(order))
	for _, id := range order {
		sensorReadings := bySensor[id]
		limits := aggregator.LimitsForUnitType(sensorReadings[0].UnitType)
		if picked, ok := aggregator.SelectCheckReading(sensorReadings, nominal, limits); ok {
			readings = append(readings, picked)
		}
	}
	return readings, nil
}

// SensorMetrics reports every active sensor of a location with its latest
// reading and the state of its alert actions.
func (s *AnalyticsService) SensorMetrics(ctx context.Context, principal model.Principal, locationID int64) (metrics aggregator.SensorMetrics, err error) {
	started := time.Now()
	defer func() { observability.ObserveAggregation(opSensorMetrics, err, time.Since(started)) }()

	scope, err := s.scopes.ApprovedScope(ctx, principal.UserID, model.PermissionViewSensors)
	if err != nil {
		return nil, err
	}
	if !scope.AllowsLocation(locationID) {
		return nil, ErrPermissionDenied
	}

	statuses, err := s.store.SensorStatuses(ctx, locationID)
	if err != nil {
		return nil, err
	}
	alerts, err := s.store.SensorAlerts(ctx, locationID)
	if err != nil {
		return nil, err
	}
	return aggregator.GroupSensorMetrics(statuses, alerts, s.now()), nil
}

// loadScans fetches every scan that can fall in a selected date's window and
// flags one-hop rewashes.
func (s *AnalyticsService) loadScans(ctx context.Context, filter repository.ScanFilter, sel model.DateSelection) ([]model.ScanRow, error) {
	scans, err := s.store.Scans(ctx, scanRange(filter, sel))
	if err != nil {
		return nil, err
	}

	var referenced []int64
	for _, scan := range scans {
		if last, ok := scan.LastEvent(); ok && scan.IsContaminated() {
			referenced = append(referenced, last)
		}
	}
	results, err := s.store.ScanResults(ctx, referenced)
	if err != nil {
		return nil, err
	}
	return aggregator.MarkRewash(scans, results), nil
}

func (s *AnalyticsService) statusMap(ctx context.Context, stationIDs []int64) (map[int64]model.DeviceStatus, error) {
	statuses, err := s.store.DeviceStatuses(ctx, stationIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]model.DeviceStatus, len(statuses))
	for _, status := range statuses {
		out[status.StationID] = status
	}
	return out, nil
}

func (s *AnalyticsService) schedules(ctx context.Context, locationIDs []int64) ([]model.Location, []model.DepartmentSchedule, error) {
	if len(locationIDs) == 0 {
		return nil, nil, nil
	}
	locations, err := s.store.Locations(ctx, locationIDs)
	if err != nil {
		return nil, nil, err
	}
	departments, err := s.store.DepartmentSchedules(ctx, locationIDs)
	if err != nil {
		return nil, nil, err
	}
	return locations, departments, nil
}

func (s *AnalyticsService) windowsFor(date time.Time, locations []model.Location, departments []model.DepartmentSchedule) *window.Windows {
	windows := window.Build(date, locations, departments)
	if n := windows.Fallbacks(); n > 0 {
		observability.AddScheduleFallbacks(n)
		s.log.Warn().Str("date", model.DateKey(date)).Int("windows", n).Msg("schedule unusable, using whole-day window")
	}
	return windows
}

// scanRange widens the selection to cover every timezone offset and a reset
// window that runs into the following day.
func scanRange(filter repository.ScanFilter, sel model.DateSelection) repository.ScanFilter {
	filter.From = sel.Start.AddDate(0, 0, -1)
	filter.To = sel.End.AddDate(0, 0, 3)
	return filter
}

func stationLineage(rows []model.StationRow) (stationIDs, locationIDs []int64) {
	seen := make(map[int64]struct{})
	for _, row := range rows {
		stationIDs = append(stationIDs, row.StationID)
		if _, ok := seen[row.LocationID]; !ok {
			seen[row.LocationID] = struct{}{}
			locationIDs = append(locationIDs, row.LocationID)
		}
	}
	return stationIDs, locationIDs
}

func scanLocations(scans []model.ScanRow) []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	for _, scan := range scans {
		if _, ok := seen[scan.LocationID]; !ok {
			seen[scan.LocationID] = struct{}{}
			out = append(out, scan.LocationID)
		}
	}
	return out
}

func wallClock(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}
