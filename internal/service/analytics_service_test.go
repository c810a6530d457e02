package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-analytics/internal/model"
	"compliance-analytics/internal/repository"
)

type fakeScopes struct {
	scope model.Scope
	asked []model.Permission
}

func (f *fakeScopes) ApprovedScope(_ context.Context, _ uuid.UUID, permissions ...model.Permission) (model.Scope, error) {
	f.asked = permissions
	return f.scope, nil
}

type fakeStore struct {
	locations   []model.Location
	departments []model.DepartmentSchedule
	stations    []model.StationRow
	scans       []model.ScanRow
	results     map[int64]int
	statuses    []model.DeviceStatus
	vendors     []model.VendorLocation
	readings    []model.SensorReading
	sensors     []model.SensorStatus
	alerts      []model.SensorAlert

	stationFilter  repository.StationFilter
	scanFilter     repository.ScanFilter
	sensorFilter   repository.SensorFilter
	resultIDs      []int64
	sensorLocation int64
}

func (f *fakeStore) Locations(_ context.Context, _ []int64) ([]model.Location, error) {
	return f.locations, nil
}

func (f *fakeStore) DepartmentSchedules(_ context.Context, _ []int64) ([]model.DepartmentSchedule, error) {
	return f.departments, nil
}

func (f *fakeStore) ActiveStations(_ context.Context, filter repository.StationFilter) ([]model.StationRow, error) {
	f.stationFilter = filter
	return f.stations, nil
}

func (f *fakeStore) Scans(_ context.Context, filter repository.ScanFilter) ([]model.ScanRow, error) {
	f.scanFilter = filter
	return f.scans, nil
}

func (f *fakeStore) ScanResults(_ context.Context, ids []int64) (map[int64]int, error) {
	f.resultIDs = ids
	return f.results, nil
}

func (f *fakeStore) DeviceStatuses(_ context.Context, _ []int64) ([]model.DeviceStatus, error) {
	return f.statuses, nil
}

func (f *fakeStore) VendorLocations(_ context.Context, _ []int64, _ []string) ([]model.VendorLocation, error) {
	return f.vendors, nil
}

func (f *fakeStore) SensorReadings(_ context.Context, filter repository.SensorFilter) ([]model.SensorReading, error) {
	f.sensorFilter = filter
	return f.readings, nil
}

func (f *fakeStore) SensorStatuses(_ context.Context, locationID int64) ([]model.SensorStatus, error) {
	f.sensorLocation = locationID
	return f.sensors, nil
}

func (f *fakeStore) SensorAlerts(_ context.Context, _ int64) ([]model.SensorAlert, error) {
	return f.alerts, nil
}

var (
	jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	user = model.Principal{UserID: uuid.New(), Role: "manager"}
	svc  = model.Principal{UserID: uuid.New(), Role: model.RoleService}
)

func kitchenScan(id int64, result int, at time.Time, events ...int64) model.ScanRow {
	return model.ScanRow{
		ID:           id,
		StationID:    100,
		StationName:  "Sink A",
		LocationID:   1,
		LocationName: "Kitchen",
		Timezone:     "UTC",
		Result:       result,
		CreatedWhen:  at,
		EventList:    events,
	}
}

func kitchenStore() *fakeStore {
	ping := jan1.Add(27 * time.Hour)
	return &fakeStore{
		locations: []model.Location{{ID: 1, Name: "Kitchen", Timezone: "UTC"}},
		stations: []model.StationRow{{
			LocationID: 1, LocationName: "Kitchen", Timezone: "UTC", StationID: 100, StationName: "Sink A",
		}},
		scans: []model.ScanRow{
			kitchenScan(1, 0, jan1.Add(9*time.Hour)),
			kitchenScan(2, 1, jan1.Add(10*time.Hour), 2, 3),
			kitchenScan(3, 0, jan1.Add(10*time.Hour+5*time.Minute)),
			kitchenScan(4, 1, jan1.Add(11*time.Hour), 4, 99),
		},
		results:  map[int64]int{3: 0, 99: 1},
		statuses: []model.DeviceStatus{{StationID: 100, LocationID: 1, StatusWhen: &ping}},
	}
}

func kitchenScope() model.Scope {
	return model.Scope{LocationIDs: []int64{1}, StationIDs: []int64{100}}
}

func newTestService(scope model.Scope, store *fakeStore) *AnalyticsService {
	return NewAnalyticsService(&fakeScopes{scope: scope}, store, 8, zerolog.Nop())
}

func TestLocationMetrics_EmptyScopeReturnsEmptyTreePerDate(t *testing.T) {
	s := newTestService(model.Scope{}, &fakeStore{})
	sel := model.DateSelection{Start: jan1, End: jan1.AddDate(0, 0, 1)}

	resp, err := s.LocationMetrics(context.Background(), user, sel, model.EntityFilter{}, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, resp.Dates)
	for _, h := range resp.ByDate {
		assert.Empty(t, h.Locations)
	}
}

func TestLocationMetrics_ComputesRedactedTree(t *testing.T) {
	store := kitchenStore()
	scopes := &fakeScopes{scope: kitchenScope()}
	s := NewAnalyticsService(scopes, store, 8, zerolog.Nop())

	resp, err := s.LocationMetrics(context.Background(), user, model.SingleDate(jan1), model.EntityFilter{}, false)
	require.NoError(t, err)

	assert.ElementsMatch(t, []model.Permission{model.PermissionViewDevices, model.PermissionViewHandwashes}, scopes.asked)
	assert.Equal(t, []int64{100}, store.stationFilter.StationIDs)
	assert.True(t, store.scanFilter.From.Equal(jan1.AddDate(0, 0, -1)))
	assert.True(t, store.scanFilter.To.Equal(jan1.AddDate(0, 0, 3)))
	assert.Equal(t, []int64{3, 99}, store.resultIDs)

	h := resp.ByDate["2024-01-01"]
	require.Len(t, h.Locations, 1)
	loc := h.Locations[0]
	assert.Zero(t, loc.RealLocationID)
	assert.Equal(t, model.PublicID(model.KindLocation, 1), loc.LocationID)
	assert.False(t, loc.OfflineOneHour)
	assert.Equal(t, 4, loc.Metrics.AllScans.TotalWashes)
	assert.Equal(t, 2, loc.Metrics.AllScans.TotalContaminated)
	assert.Equal(t, 1, loc.Metrics.AllScans.TotalWithRewash)

	require.Len(t, loc.Stations, 1)
	assert.Zero(t, loc.Stations[0].RealStationID)
	assert.Equal(t, 4, loc.Stations[0].Metrics.OperationalHoursScans.TotalWashes)
}

func TestLocationMetrics_InternalKeepsRealIDs(t *testing.T) {
	s := newTestService(kitchenScope(), kitchenStore())

	resp, err := s.LocationMetrics(context.Background(), svc, model.SingleDate(jan1), model.EntityFilter{}, true)
	require.NoError(t, err)

	loc := resp.ByDate["2024-01-01"].Locations[0]
	assert.Equal(t, int64(1), loc.RealLocationID)
	assert.Equal(t, int64(100), loc.Stations[0].RealStationID)
}

func TestLocationMetrics_PermissionDenied(t *testing.T) {
	s := newTestService(kitchenScope(), kitchenStore())

	_, err := s.LocationMetrics(context.Background(), user, model.SingleDate(jan1), model.EntityFilter{}, true)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	other := int64(9)
	_, err = s.LocationMetrics(context.Background(), user, model.SingleDate(jan1), model.EntityFilter{LocationID: &other}, false)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestScanDetails_ListsAcceptedScans(t *testing.T) {
	s := newTestService(kitchenScope(), kitchenStore())

	resp, err := s.ScanDetails(context.Background(), user, model.SingleDate(jan1), false)
	require.NoError(t, err)

	details := resp.ByDate["2024-01-01"]
	require.Len(t, details, 4)
	first := details[0]
	assert.Nil(t, first.RealScanID)
	assert.Equal(t, model.PublicID(model.KindStation, 100), first.StationID)
	assert.Equal(t, "2024-01-01", first.PullDate)
	assert.True(t, first.IsClean)
	assert.True(t, first.DuringOperationalHours)
	assert.True(t, details[1].HasRewash)
	assert.False(t, details[3].HasRewash)
}

func TestScanDetails_InternalAndEmptyScope(t *testing.T) {
	s := newTestService(kitchenScope(), kitchenStore())
	resp, err := s.ScanDetails(context.Background(), svc, model.SingleDate(jan1), true)
	require.NoError(t, err)
	require.NotNil(t, resp.ByDate["2024-01-01"][0].RealScanID)
	assert.Equal(t, int64(1), *resp.ByDate["2024-01-01"][0].RealScanID)

	empty := newTestService(model.Scope{}, &fakeStore{})
	resp, err = empty.ScanDetails(context.Background(), user, model.SingleDate(jan1), false)
	require.NoError(t, err)
	assert.Empty(t, resp.ByDate["2024-01-01"])
}

func TestDeviceStatuses(t *testing.T) {
	s := newTestService(kitchenScope(), kitchenStore())

	views, err := s.DeviceStatuses(context.Background(), user, false)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Nil(t, views[0].RealStationID)
	assert.Equal(t, model.PublicID(model.KindStation, 100), views[0].StationID)
	require.NotNil(t, views[0].UTCMostRecentPing)

	empty := newTestService(model.Scope{}, &fakeStore{})
	views, err = empty.DeviceStatuses(context.Background(), user, false)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestVendorMetrics_DefaultsToYesterday(t *testing.T) {
	store := kitchenStore()
	vendorID := "vendor-kitchen"
	store.vendors = []model.VendorLocation{{LocationID: 1, Timezone: "UTC", VendorLocationID: &vendorID}}
	s := newTestService(kitchenScope(), store)
	s.now = func() time.Time { return jan1.Add(32 * time.Hour) }

	result, err := s.VendorMetrics(context.Background(), user, nil, nil)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, &vendorID, result[0].LocationUUID)
	require.Len(t, result[0].Dates, 1)

	day, ok := result[0].Dates[0]["20240101"]
	require.True(t, ok)
	assert.Equal(t, "2024-01-01T00:00:00+00:00", day.LocalOperationalStartTime)
	assert.Equal(t, "2024-01-01T23:59:59.999999+00:00", day.LocalOperationalEndTime)
	assert.Equal(t, 50.0, day.OperationalCompletedPercent)
	assert.Equal(t, 50.0, day.OperationalContaminatedPercent)
	assert.Equal(t, 50.0, day.OperationalRewashPercent)
	assert.False(t, day.OfflineDevice)
	assert.Equal(t, []int64{1}, store.stationFilter.LocationIDs)
}

func TestVendorMetrics_Errors(t *testing.T) {
	_, err := newTestService(model.Scope{}, &fakeStore{}).VendorMetrics(context.Background(), user, nil, nil)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = newTestService(kitchenScope(), &fakeStore{}).VendorMetrics(context.Background(), user, nil, []string{"missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSensorCheck_SelectsReadingPerSensor(t *testing.T) {
	store := &fakeStore{
		locations: []model.Location{{ID: 1, Timezone: "America/New_York"}},
		readings: []model.SensorReading{
			{SensorID: 5, UnitType: "walk-in fridge", Value: 3, CreatedWhen: time.Date(2024, 1, 1, 13, 30, 0, 0, time.UTC)},
			{SensorID: 6, UnitType: "freezer", Value: -20, CreatedWhen: time.Date(2024, 1, 1, 13, 40, 0, 0, time.UTC)},
		},
	}
	s := newTestService(model.Scope{LocationIDs: []int64{1}, DepartmentIDs: []int64{7}}, store)

	readings, err := s.SensorCheck(context.Background(), user, SensorCheckRequest{
		LocationID:    1,
		DepartmentIDs: []int64{7},
		Start:         time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
		End:           time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		CheckID:       1,
	})
	require.NoError(t, err)

	assert.True(t, store.sensorFilter.From.Equal(time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)))
	assert.True(t, store.sensorFilter.To.Equal(time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)))
	require.Len(t, readings, 2)
	assert.Equal(t, int64(5), readings[0].SensorID)
	assert.False(t, readings[0].OutOfRange)
	assert.Equal(t, -20.0, readings[1].Value)
}

func TestSensorCheck_Rejections(t *testing.T) {
	s := newTestService(model.Scope{LocationIDs: []int64{1}}, &fakeStore{})
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	_, err := s.SensorCheck(context.Background(), user, SensorCheckRequest{LocationID: 2, Start: start, End: start})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = s.SensorCheck(context.Background(), user, SensorCheckRequest{LocationID: 1, DepartmentIDs: []int64{7}, Start: start, End: start})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = s.SensorCheck(context.Background(), user, SensorCheckRequest{LocationID: 1, Start: start, End: start.Add(-time.Hour)})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = s.SensorCheck(context.Background(), user, SensorCheckRequest{LocationID: 1, Start: start, End: start})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSensorMetrics_GroupsByReadingDateWithAlertState(t *testing.T) {
	now := jan1.Add(12 * time.Hour)
	started := now.Add(-3 * time.Hour)
	reading, hour := 9.0, 3600.0
	store := &fakeStore{
		sensors: []model.SensorStatus{
			{SensorID: 5, SensorName: "Walk-in", LocationID: 1, LocationName: "Kitchen", Timezone: "UTC", LastReading: &reading, LastReadingWhen: &now},
			{SensorID: 6, SensorName: "Spare", LocationID: 1, LocationName: "Kitchen", Timezone: "UTC"},
		},
		alerts: []model.SensorAlert{
			{SensorID: 5, AlertID: 40, IsOutOfRange: true, AlertStartWhen: &started, DurationSeconds: &hour, AlertTime: now},
		},
	}
	scopes := &fakeScopes{scope: model.Scope{LocationIDs: []int64{1}}}
	s := NewAnalyticsService(scopes, store, 8, zerolog.Nop())
	s.now = func() time.Time { return now }

	metrics, err := s.SensorMetrics(context.Background(), user, 1)
	require.NoError(t, err)

	assert.Equal(t, []model.Permission{model.PermissionViewSensors}, scopes.asked)
	assert.Equal(t, int64(1), store.sensorLocation)

	kitchen := model.PublicID(model.KindLocation, 1).String()
	current := metrics["2024-01-01"][kitchen]
	require.Len(t, current, 1)
	require.Len(t, current[0].Alerts, 1)
	assert.True(t, current[0].Alerts[0].IsAlerting)
	assert.Len(t, metrics["unknown"][kitchen], 1)
}

func TestSensorMetrics_LocationOutsideScope(t *testing.T) {
	store := &fakeStore{}
	s := newTestService(model.Scope{LocationIDs: []int64{1}}, store)

	_, err := s.SensorMetrics(context.Background(), user, 2)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Zero(t, store.sensorLocation)
}
