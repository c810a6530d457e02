package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"compliance-analytics/internal/cache"
	"compliance-analytics/internal/model"
	"compliance-analytics/internal/window"
)

// StationFilter selects active stations. Empty id lists do not restrict.
type StationFilter struct {
	StationIDs  []int64
	LocationIDs []int64
	model.EntityFilter
}

// ScanFilter selects scans created in [From, To) on the given stations or locations.
type ScanFilter struct {
	StationIDs  []int64
	LocationIDs []int64
	From        time.Time
	To          time.Time
}

type SensorFilter struct {
	LocationID    int64
	DepartmentIDs []int64
	From          time.Time
	To            time.Time
}

// handsPresentResults are the scan results of a completed hand reading.
var handsPresentResults = []int{model.ResultClean, model.ResultContaminated}

type AnalyticsRepository struct {
	db       *gorm.DB
	cache    cache.Store
	cacheTTL time.Duration
	log      zerolog.Logger
}

func NewAnalyticsRepository(db *gorm.DB, store cache.Store, cacheTTL time.Duration, log zerolog.Logger) *AnalyticsRepository {
	return &AnalyticsRepository{db: db, cache: store, cacheTTL: cacheTTL, log: log}
}

// Locations returns the scheduling attributes of the given locations. Rows are
// served from the cache when present.
func (r *AnalyticsRepository) Locations(ctx context.Context, ids []int64) ([]model.Location, error) {
	result := make([]model.Location, 0, len(ids))
	var missing []int64
	for _, id := range ids {
		var loc model.Location
		if r.cacheGet(ctx, locationKey(id), &loc) {
			result = append(result, loc)
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return result, nil
	}

	var rows []model.Location
	err := r.db.WithContext(ctx).
		Table("locations l").
		Select("l.id, l.name, COALESCE(l.timezone, 'UTC') AS timezone, l.scan_goal, l.detailed_scan_goal::text AS detailed_scan_goal").
		Where("l.id IN ?", missing).
		Order("l.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load locations: %w", err)
	}
	for _, loc := range rows {
		r.cacheSet(ctx, locationKey(loc.ID), loc)
	}
	return append(result, rows...), nil
}

// DepartmentSchedules returns the departments of the given locations that
// carry their own schedule.
func (r *AnalyticsRepository) DepartmentSchedules(ctx context.Context, locationIDs []int64) ([]model.DepartmentSchedule, error) {
	result := make([]model.DepartmentSchedule, 0)
	var missing []int64
	for _, id := range locationIDs {
		var cached []model.DepartmentSchedule
		if r.cacheGet(ctx, departmentsKey(id), &cached) {
			result = append(result, cached...)
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return result, nil
	}

	var rows []model.DepartmentSchedule
	err := r.db.WithContext(ctx).
		Table("departments d").
		Select("d.id, d.location_id, d.detailed_scan_goal::text AS detailed_scan_goal").
		Where("d.location_id IN ? AND d.detailed_scan_goal IS NOT NULL", missing).
		Order("d.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load department schedules: %w", err)
	}

	byLocation := make(map[int64][]model.DepartmentSchedule, len(missing))
	for _, row := range rows {
		byLocation[row.LocationID] = append(byLocation[row.LocationID], row)
	}
	for _, id := range missing {
		r.cacheSet(ctx, departmentsKey(id), byLocation[id])
	}
	return append(result, rows...), nil
}

func (r *AnalyticsRepository) ActiveStations(ctx context.Context, filter StationFilter) ([]model.StationRow, error) {
	var rows []model.StationRow
	query := r.db.WithContext(ctx).
		Table("stations s").
		Select(`l.id AS location_id,
			l.name AS location_name,
			COALESCE(l.timezone, 'UTC') AS timezone,
			d.id AS department_id,
			d.name AS department_name,
			s.id AS station_id,
			s.name AS station_name`).
		Joins("JOIN locations l ON l.id = s.location_id").
		Joins("LEFT JOIN departments d ON d.id = s.department_id").
		Where("s.active = ?", true).
		Order("l.id, d.id NULLS FIRST, s.id")

	if len(filter.StationIDs) > 0 {
		query = query.Where("s.id IN ?", filter.StationIDs)
	}
	if len(filter.LocationIDs) > 0 {
		query = query.Where("s.location_id IN ?", filter.LocationIDs)
	}
	query = applyEntityFilter(query, filter.EntityFilter)

	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load stations: %w", err)
	}
	return rows, nil
}

func (r *AnalyticsRepository) Scans(ctx context.Context, filter ScanFilter) ([]model.ScanRow, error) {
	if len(filter.StationIDs) == 0 && len(filter.LocationIDs) == 0 {
		return nil, nil
	}

	type row struct {
		model.ScanRow
		EventListRaw *string
	}
	var rows []row

	query := r.db.WithContext(ctx).
		Table("scans sc").
		Select(`sc.id,
			sc.station_id,
			s.name AS station_name,
			l.id AS location_id,
			l.name AS location_name,
			d.id AS department_id,
			d.name AS department_name,
			e.id AS employee_id,
			NULLIF(TRIM(CONCAT(e.first_name, ' ', e.last_name)), '') AS employee_name,
			COALESCE(l.timezone, 'UTC') AS timezone,
			sc.result,
			sc.created_when,
			array_to_string(sc.event_list, ',') AS event_list_raw`).
		Joins("JOIN stations s ON s.id = sc.station_id").
		Joins("JOIN locations l ON l.id = s.location_id").
		Joins("LEFT JOIN departments d ON d.id = s.department_id").
		Joins("LEFT JOIN employees e ON e.id = sc.employee_id").
		Where("sc.created_when >= ? AND sc.created_when < ?", filter.From.UTC(), filter.To.UTC()).
		Where("s.active = ?", true).
		Where("sc.result IN ?", handsPresentResults).
		Order("sc.created_when DESC, sc.id DESC")

	if len(filter.StationIDs) > 0 {
		query = query.Where("sc.station_id IN ?", filter.StationIDs)
	}
	if len(filter.LocationIDs) > 0 {
		query = query.Where("s.location_id IN ?", filter.LocationIDs)
	}

	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load scans: %w", err)
	}

	result := make([]model.ScanRow, 0, len(rows))
	for _, row := range rows {
		scan := row.ScanRow
		if row.EventListRaw != nil {
			scan.EventList = model.ParseEventList(*row.EventListRaw)
		}
		scan.CreatedWhen = scan.CreatedWhen.UTC()
		scan.LocalScanTime = scan.CreatedWhen.In(window.LoadLocation(scan.Timezone))
		result = append(result, scan)
	}
	return result, nil
}

// ScanResults maps scan ids to their result, for one-hop rewash lookups.
func (r *AnalyticsRepository) ScanResults(ctx context.Context, ids []int64) (map[int64]int, error) {
	results := make(map[int64]int, len(ids))
	if len(ids) == 0 {
		return results, nil
	}
	var rows []struct {
		ID     int64
		Result int
	}
	if err := r.db.WithContext(ctx).
		Table("scans").
		Select("id, result").
		Where("id IN ?", ids).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load scan results: %w", err)
	}
	for _, row := range rows {
		results[row.ID] = row.Result
	}
	return results, nil
}

func (r *AnalyticsRepository) DeviceStatuses(ctx context.Context, stationIDs []int64) ([]model.DeviceStatus, error) {
	if len(stationIDs) == 0 || !r.tablesAvailable(ctx, "device_status_most_recent", "device_status") {
		return nil, nil
	}

	var rows []model.DeviceStatus
	err := r.db.WithContext(ctx).
		Table("stations s").
		Select(`s.id AS station_id,
			s.name AS station_name,
			l.id AS location_id,
			l.name AS location_name,
			d.id AS department_id,
			d.name AS department_name,
			COALESCE(l.timezone, 'UTC') AS timezone,
			ds.status_when`).
		Joins("JOIN locations l ON l.id = s.location_id").
		Joins("LEFT JOIN departments d ON d.id = s.department_id").
		Joins("LEFT JOIN device_status_most_recent dsm ON dsm.station_id = s.id").
		Joins("LEFT JOIN device_status ds ON ds.id = dsm.device_status_id").
		Where("s.id IN ? AND s.active = ?", stationIDs, true).
		Order("l.id, s.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load device statuses: %w", err)
	}

	for i := range rows {
		if rows[i].StatusWhen == nil {
			continue
		}
		utc := rows[i].StatusWhen.UTC()
		local := utc.In(window.LoadLocation(rows[i].Timezone))
		rows[i].StatusWhen = &utc
		rows[i].LocalStatus = &local
	}
	return rows, nil
}

// VendorLocations returns the given locations with their active vendor
// mapping. When vendorIDs is non-empty only mapped locations with one of those
// vendor ids are returned.
func (r *AnalyticsRepository) VendorLocations(ctx context.Context, locationIDs []int64, vendorIDs []string) ([]model.VendorLocation, error) {
	if len(locationIDs) == 0 || !r.tablesAvailable(ctx, "vendor_location_mappings") {
		return nil, nil
	}

	var rows []model.VendorLocation
	query := r.db.WithContext(ctx).
		Table("locations l").
		Select(`l.id AS location_id,
			COALESCE(l.timezone, 'UTC') AS timezone,
			l.scan_goal,
			l.detailed_scan_goal::text AS detailed_scan_goal,
			vm.dfs_vendor_location_id AS vendor_location_id`).
		Joins("LEFT JOIN vendor_location_mappings vm ON vm.location_id = l.id AND vm.active = ?", true).
		Where("l.id IN ?", locationIDs).
		Order("l.id")

	if len(vendorIDs) > 0 {
		query = query.Where("vm.dfs_vendor_location_id IN ?", vendorIDs)
	}

	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load vendor locations: %w", err)
	}
	return rows, nil
}

// SensorReadings returns the report-type readings of active sensors in a
// location, ordered by sensor then time.
func (r *AnalyticsRepository) SensorReadings(ctx context.Context, filter SensorFilter) ([]model.SensorReading, error) {
	if !r.tablesAvailable(ctx, "deployed_sensors", "sensor_data") {
		return nil, nil
	}

	type row struct {
		model.SensorReading
		Timezone string
	}
	var rows []row

	query := r.db.WithContext(ctx).
		Table("deployed_sensors ds").
		Select(`ds.id AS sensor_id,
			ds.name AS sensor_name,
			COALESCE(ut.unit_type, '') AS unit_type,
			sd.data_type,
			sd.sensor_value AS value,
			COALESCE(sd.sensor_unit, '') AS unit,
			sd.created_when,
			COALESCE(l.timezone, 'UTC') AS timezone`).
		Joins("JOIN locations l ON l.id = ds.location_id").
		Joins(`JOIN sensor_data sd ON sd.sensor_id = ds.id
			AND sd.data_type = ds.report_data_type
			AND sd.created_when >= ? AND sd.created_when <= ?`, filter.From.UTC(), filter.To.UTC()).
		Joins("LEFT JOIN sensor_unit_types ut ON ut.id = ds.unit_type_id").
		Where("ds.active = ? AND ds.location_id = ?", true, filter.LocationID).
		Order("ds.id, sd.created_when ASC")

	if len(filter.DepartmentIDs) > 0 {
		query = query.Where("ds.department_id IN ?", filter.DepartmentIDs)
	}

	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load sensor readings: %w", err)
	}

	result := make([]model.SensorReading, 0, len(rows))
	for _, row := range rows {
		reading := row.SensorReading
		reading.CreatedWhen = reading.CreatedWhen.UTC()
		reading.LocalTime = reading.CreatedWhen.In(window.LoadLocation(row.Timezone))
		result = append(result, reading)
	}
	return result, nil
}

// temperatureSensorModel is the only sensor model whose report readings are
// surfaced as the latest reading.
const temperatureSensorModel = 2

// SensorStatuses returns the active sensors of a location with their latest
// report-type reading, most recently reporting first.
func (r *AnalyticsRepository) SensorStatuses(ctx context.Context, locationID int64) ([]model.SensorStatus, error) {
	if !r.tablesAvailable(ctx, "deployed_sensors", "sensor_data") {
		return nil, nil
	}

	var rows []model.SensorStatus
	err := r.db.WithContext(ctx).
		Table("deployed_sensors ds").
		Select(`ds.id AS sensor_id,
			ds.name AS sensor_name,
			ds.public_addr AS sensor_eui,
			ds.tag AS sensor_tag,
			COALESCE(ut.unit_type, '') AS unit_type,
			l.id AS location_id,
			l.name AS location_name,
			COALESCE(l.timezone, 'UTC') AS timezone,
			ds.report_data_type AS primary_data_type,
			latest.sensor_value AS last_reading,
			latest.sensor_unit AS last_reading_unit,
			latest.created_when AS last_reading_when`).
		Joins("JOIN locations l ON l.id = ds.location_id").
		Joins("LEFT JOIN sensor_unit_types ut ON ut.id = ds.unit_type_id").
		Joins(`LEFT JOIN LATERAL (
			SELECT sd.sensor_value, sd.sensor_unit, sd.created_when
			FROM sensor_data sd
			WHERE sd.sensor_id = ds.id AND sd.data_type = ds.report_data_type AND ds.sensor_model_id = ?
			ORDER BY sd.created_when DESC
			LIMIT 1
		) latest ON TRUE`, temperatureSensorModel).
		Where("ds.active = ? AND ds.location_id = ?", true, locationID).
		Order("latest.created_when DESC NULLS LAST, ds.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load sensor statuses: %w", err)
	}

	for i := range rows {
		if rows[i].LastReadingWhen != nil {
			utc := rows[i].LastReadingWhen.UTC()
			rows[i].LastReadingWhen = &utc
		}
	}
	return rows, nil
}

// SensorAlerts returns, for every active action of an active sensor in the
// location, its most recent triggered action.
func (r *AnalyticsRepository) SensorAlerts(ctx context.Context, locationID int64) ([]model.SensorAlert, error) {
	if !r.tablesAvailable(ctx, "deployed_sensors", "sensor_actions", "triggered_actions") {
		return nil, nil
	}

	var rows []model.SensorAlert
	err := r.db.WithContext(ctx).
		Table("triggered_actions ta").
		Select(`DISTINCT ON (ta.sensor_id, ta.sensor_action_id)
			ta.sensor_id,
			ta.sensor_action_id AS alert_id,
			sa.criticality,
			ta.data_type AS alerting_data_type,
			ta.value,
			ta.unit,
			sa.high_limit,
			sa.low_limit,
			COALESCE(ta.is_out_of_range, false) AS is_out_of_range,
			ta.consumed_when AS last_sent_when,
			ta.alert_start_when,
			EXTRACT(EPOCH FROM sa.duration) AS duration_seconds,
			ta.created_when AS alert_time`).
		Joins("JOIN sensor_actions sa ON sa.id = ta.sensor_action_id AND sa.active = ?", true).
		Joins("JOIN deployed_sensors ds ON ds.id = ta.sensor_id AND ds.active = ?", true).
		Where("ds.location_id = ?", locationID).
		Order("ta.sensor_id, ta.sensor_action_id, ta.created_when DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load sensor alerts: %w", err)
	}

	for i := range rows {
		rows[i].AlertTime = rows[i].AlertTime.UTC()
	}
	return rows, nil
}

func applyEntityFilter(query *gorm.DB, filter model.EntityFilter) *gorm.DB {
	if filter.LocationID != nil {
		query = query.Where("s.location_id = ?", *filter.LocationID)
	}
	if filter.DepartmentID != nil {
		query = query.Where("s.department_id = ?", *filter.DepartmentID)
	}
	return query
}

func (r *AnalyticsRepository) relationExists(ctx context.Context, name string) bool {
	var exists bool
	err := r.db.WithContext(ctx).
		Raw(`SELECT EXISTS (
			SELECT 1
			FROM pg_catalog.pg_class c
			JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
			WHERE c.relname = ? AND c.relkind IN ('r','m','v') AND n.nspname = 'public'
		)`, name).
		Scan(&exists).Error
	if err != nil {
		return false
	}
	return exists
}

func (r *AnalyticsRepository) tablesAvailable(ctx context.Context, names ...string) bool {
	for _, name := range names {
		if !r.relationExists(ctx, name) {
			return false
		}
	}
	return true
}

func locationKey(id int64) string {
	return "schedule:location:" + strconv.FormatInt(id, 10)
}

func departmentsKey(locationID int64) string {
	return "schedule:departments:" + strconv.FormatInt(locationID, 10)
}
