package service

import (
	"time"

	"github.com/google/uuid"

	"compliance-analytics/internal/aggregator"
	"compliance-analytics/internal/model"
)

const (
	vendorDateLayout = "20060102"
	isoLayout        = "2006-01-02T15:04:05.999999-07:00"
)

// ScanDetail is one accepted scan. Real ids are only filled for internal callers.
type ScanDetail struct {
	RealScanID             *int64     `json:"real_scan_id,omitempty"`
	RealLocationID         *int64     `json:"real_location_id,omitempty"`
	RealDepartmentID       *int64     `json:"real_department_id,omitempty"`
	RealStationID          *int64     `json:"real_station_id,omitempty"`
	RealEmployeeID         *int64     `json:"real_employee_id,omitempty"`
	LocationID             uuid.UUID  `json:"location_id"`
	LocationName           string     `json:"location_name"`
	DepartmentID           *uuid.UUID `json:"department_id"`
	DepartmentName         *string    `json:"department_name"`
	StationID              uuid.UUID  `json:"station_id"`
	StationName            string     `json:"station_name"`
	EmployeeID             *uuid.UUID `json:"employee_id"`
	EmployeeName           *string    `json:"employee_name"`
	Timezone               string     `json:"timezone"`
	LocalScanTime          time.Time  `json:"local_scan_time"`
	UTCScanTime            time.Time  `json:"utc_scan_time"`
	PullDate               string     `json:"pull_date"`
	IsClean                bool       `json:"is_clean"`
	HasRewash              bool       `json:"has_rewash"`
	DuringOperationalHours bool       `json:"during_operational_hours"`
}

func newScanDetail(accepted aggregator.AcceptedScan, pullDate string, internal bool) ScanDetail {
	scan := accepted.ScanRow
	detail := ScanDetail{
		LocationID:             model.PublicID(model.KindLocation, scan.LocationID),
		LocationName:           scan.LocationName,
		DepartmentID:           model.PublicIDPtr(model.KindDepartment, scan.DepartmentID),
		DepartmentName:         scan.DepartmentName,
		StationID:              model.PublicID(model.KindStation, scan.StationID),
		StationName:            scan.StationName,
		EmployeeID:             model.PublicIDPtr(model.KindEmployee, scan.EmployeeID),
		EmployeeName:           scan.EmployeeName,
		Timezone:               scan.Timezone,
		LocalScanTime:          aggregator.LocalTime(scan),
		UTCScanTime:            scan.CreatedWhen.UTC(),
		PullDate:               pullDate,
		IsClean:                scan.IsClean(),
		HasRewash:              scan.HasRewash,
		DuringOperationalHours: accepted.DuringOperationalHours,
	}
	if internal {
		detail.RealScanID = int64Ptr(scan.ID)
		detail.RealLocationID = int64Ptr(scan.LocationID)
		detail.RealDepartmentID = scan.DepartmentID
		detail.RealStationID = int64Ptr(scan.StationID)
		detail.RealEmployeeID = scan.EmployeeID
	}
	return detail
}

type DeviceStatusView struct {
	RealStationID       *int64     `json:"real_station_id,omitempty"`
	RealLocationID      *int64     `json:"real_location_id,omitempty"`
	RealDepartmentID    *int64     `json:"real_department_id,omitempty"`
	StationID           uuid.UUID  `json:"station_id"`
	StationName         string     `json:"station_name"`
	LocationID          uuid.UUID  `json:"location_id"`
	LocationName        string     `json:"location_name"`
	DepartmentID        *uuid.UUID `json:"department_id"`
	DepartmentName      *string    `json:"department_name"`
	Timezone            string     `json:"timezone"`
	UTCMostRecentPing   *time.Time `json:"utc_most_recent_ping"`
	LocalMostRecentPing *time.Time `json:"local_most_recent_ping"`
}

func newDeviceStatusView(status model.DeviceStatus, internal bool) DeviceStatusView {
	view := DeviceStatusView{
		StationID:           model.PublicID(model.KindStation, status.StationID),
		StationName:         status.StationName,
		LocationID:          model.PublicID(model.KindLocation, status.LocationID),
		LocationName:        status.LocationName,
		DepartmentID:        model.PublicIDPtr(model.KindDepartment, status.DepartmentID),
		DepartmentName:      status.DepartmentName,
		Timezone:            status.Timezone,
		UTCMostRecentPing:   status.StatusWhen,
		LocalMostRecentPing: status.LocalStatus,
	}
	if internal {
		view.RealStationID = int64Ptr(status.StationID)
		view.RealLocationID = int64Ptr(status.LocationID)
		view.RealDepartmentID = status.DepartmentID
	}
	return view
}

type VendorLocationMetrics struct {
	LocationUUID *string                       `json:"locationUuid"`
	Dates        []map[string]VendorDayMetrics `json:"dates"`
}

type VendorDayMetrics struct {
	LocalOperationalStartTime      string  `json:"localOperationalStartTime"`
	LocalOperationalEndTime        string  `json:"localOperationalEndTime"`
	OperationalCompletedPercent    float64 `json:"operationalCompletedPercent"`
	OperationalContaminatedPercent float64 `json:"operationalContaminatedPercent"`
	OperationalRewashPercent       float64 `json:"operationalRewashPercent"`
	OfflineDevice                  bool    `json:"offlineDevice"`
}

func int64Ptr(v int64) *int64 { return &v }
