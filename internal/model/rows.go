package model

import (
	"strconv"
	"strings"
	"time"
)

// Location carries the scheduling attributes of a location row.
type Location struct {
	ID               int64
	Name             string
	Timezone         string
	ScanGoal         *int
	DetailedScanGoal *string
}

// DepartmentSchedule is present only for departments with their own schedule.
type DepartmentSchedule struct {
	ID               int64
	LocationID       int64
	DetailedScanGoal *string
}

// StationRow is one active station joined with its location and optional department.
type StationRow struct {
	LocationID     int64
	LocationName   string
	Timezone       string
	DepartmentID   *int64
	DepartmentName *string
	StationID      int64
	StationName    string
}

type ScanRow struct {
	ID             int64
	StationID      int64
	StationName    string
	LocationID     int64
	LocationName   string
	DepartmentID   *int64
	DepartmentName *string
	EmployeeID     *int64
	EmployeeName   *string
	Timezone       string
	Result         int
	CreatedWhen    time.Time
	LocalScanTime  time.Time `gorm:"-"`
	EventList      []int64   `gorm:"-"`
	HasRewash      bool
}

// Scan results recorded with hands present under the reader. Other codes
// are sensor faults and never reach the aggregator.
const (
	ResultClean        = 0
	ResultContaminated = 1
)

func (s ScanRow) IsClean() bool {
	return s.Result == ResultClean
}

func (s ScanRow) IsContaminated() bool {
	return s.Result == ResultContaminated
}

// LastEvent returns the final id of the resolution chain, if any.
func (s ScanRow) LastEvent() (int64, bool) {
	if len(s.EventList) == 0 {
		return 0, false
	}
	return s.EventList[len(s.EventList)-1], true
}

// EventKey is the dedup key for a contamination event; empty when the scan has no chain.
func (s ScanRow) EventKey() string {
	if len(s.EventList) == 0 {
		return ""
	}
	parts := make([]string, len(s.EventList))
	for i, id := range s.EventList {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// ParseEventList decodes the comma separated form postgres returns for
// array_to_string(event_list, ','). Unparseable members are skipped.
func ParseEventList(raw string) []int64 {
	raw = strings.Trim(strings.TrimSpace(raw), "{}")
	if raw == "" {
		return nil
	}
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

// DeviceStatus is the most recent liveness ping of a station.
type DeviceStatus struct {
	StationID      int64
	StationName    string
	LocationID     int64
	LocationName   string
	DepartmentID   *int64
	DepartmentName *string
	Timezone       string
	StatusWhen     *time.Time
	LocalStatus    *time.Time `gorm:"-"`
}

// VendorLocation maps a location to the identifier an external vendor knows it by.
type VendorLocation struct {
	LocationID       int64
	Timezone         string
	ScanGoal         *int
	DetailedScanGoal *string
	VendorLocationID *string
}

type SensorReading struct {
	SensorID    int64     `json:"sensor_id"`
	SensorName  string    `json:"sensor_name"`
	UnitType    string    `json:"unit_type"`
	DataType    string    `json:"data_type"`
	Value       float64   `json:"sensor_reading"`
	Unit        string    `json:"sensor_unit"`
	CreatedWhen time.Time `json:"created_when"`
	LocalTime   time.Time `json:"local_created_when" gorm:"-"`
}

// SensorStatus is an active sensor with its latest report-type reading, if any.
type SensorStatus struct {
	SensorID        int64
	SensorName      string
	SensorEUI       *string
	SensorTag       *string
	UnitType        string
	LocationID      int64
	LocationName    string
	Timezone        string
	PrimaryDataType *string
	LastReading     *float64
	LastReadingUnit *string
	LastReadingWhen *time.Time
}

// SensorAlert is the most recent triggered action of one sensor action.
type SensorAlert struct {
	SensorID         int64
	AlertID          int64
	Criticality      *string
	AlertingDataType *string
	Value            *float64
	Unit             *string
	HighLimit        *float64
	LowLimit         *float64
	IsOutOfRange     bool
	LastSentWhen     *time.Time
	AlertStartWhen   *time.Time
	DurationSeconds  *float64
	AlertTime        time.Time
}
