package aggregator

import (
	"time"

	"github.com/google/uuid"

	"compliance-analytics/internal/model"
	"compliance-analytics/internal/window"
)

// Hierarchy is the per-date location -> department -> station result tree.
type Hierarchy struct {
	Locations []*LocationNode `json:"locations"`

	locations map[int64]*LocationNode
}

type LocationNode struct {
	RealLocationID int64             `json:"real_location_id,omitempty"`
	LocationID     uuid.UUID         `json:"location_id"`
	LocationName   string            `json:"location_name"`
	Timezone       string            `json:"timezone"`
	OfflineOneHour bool              `json:"offline_one_hour"`
	Metrics        Metrics           `json:"metrics"`
	Departments    []*DepartmentNode `json:"departments"`
	Stations       []*StationNode    `json:"stations"`

	departments map[int64]*DepartmentNode
	stations    map[int64]*StationNode
}

type DepartmentNode struct {
	RealDepartmentID int64          `json:"real_department_id,omitempty"`
	DepartmentID     uuid.UUID      `json:"department_id"`
	DepartmentName   string         `json:"department_name"`
	OfflineOneHour   bool           `json:"offline_one_hour"`
	Metrics          Metrics        `json:"metrics"`
	Stations         []*StationNode `json:"stations"`

	stations map[int64]*StationNode
}

type StationNode struct {
	RealStationID  int64     `json:"real_station_id,omitempty"`
	StationID      uuid.UUID `json:"station_id"`
	StationName    string    `json:"station_name"`
	OfflineOneHour bool      `json:"offline_one_hour"`
	Metrics        Metrics   `json:"metrics"`
}

func NewHierarchy() *Hierarchy {
	return &Hierarchy{Locations: []*LocationNode{}, locations: make(map[int64]*LocationNode)}
}

// Location returns the node for id, creating it on first use.
func (h *Hierarchy) Location(id int64, name, timezone string) (*LocationNode, bool) {
	if node, ok := h.locations[id]; ok {
		return node, false
	}
	node := &LocationNode{
		RealLocationID: id,
		LocationID:     model.PublicID(model.KindLocation, id),
		LocationName:   name,
		Timezone:       timezone,
		Departments:    []*DepartmentNode{},
		Stations:       []*StationNode{},
		departments:    make(map[int64]*DepartmentNode),
		stations:       make(map[int64]*StationNode),
	}
	h.locations[id] = node
	h.Locations = append(h.Locations, node)
	return node, true
}

func (l *LocationNode) Department(id int64, name string) (*DepartmentNode, bool) {
	if node, ok := l.departments[id]; ok {
		return node, false
	}
	node := &DepartmentNode{
		RealDepartmentID: id,
		DepartmentID:     model.PublicID(model.KindDepartment, id),
		DepartmentName:   name,
		Stations:         []*StationNode{},
		stations:         make(map[int64]*StationNode),
	}
	l.departments[id] = node
	l.Departments = append(l.Departments, node)
	return node, true
}

// Station returns a station attached directly to the location.
func (l *LocationNode) Station(id int64, name string) (*StationNode, bool) {
	return stationIn(l.stations, &l.Stations, id, name)
}

func (d *DepartmentNode) Station(id int64, name string) (*StationNode, bool) {
	return stationIn(d.stations, &d.Stations, id, name)
}

func stationIn(index map[int64]*StationNode, list *[]*StationNode, id int64, name string) (*StationNode, bool) {
	if node, ok := index[id]; ok {
		return node, false
	}
	node := &StationNode{
		RealStationID: id,
		StationID:     model.PublicID(model.KindStation, id),
		StationName:   name,
	}
	index[id] = node
	*list = append(*list, node)
	return node, true
}

// Lookup addresses a station by its lineage. departmentID is nil for stations
// attached directly to their location.
func (h *Hierarchy) Lookup(locationID int64, departmentID *int64, stationID int64) (*StationNode, bool) {
	loc, ok := h.locations[locationID]
	if !ok {
		return nil, false
	}
	if departmentID == nil {
		node, ok := loc.stations[stationID]
		return node, ok
	}
	dept, ok := loc.departments[*departmentID]
	if !ok {
		return nil, false
	}
	node, ok := dept.stations[stationID]
	return node, ok
}

// BuildSkeleton creates a node for every row's location, department and
// station with placeholder metrics and the one-hour offline flag. A nil
// statuses map marks every station offline.
func BuildSkeleton(rows []model.StationRow, statuses map[int64]model.DeviceStatus, windows *window.Windows) *Hierarchy {
	h := NewHierarchy()
	if statuses == nil {
		statuses = map[int64]model.DeviceStatus{}
	}
	for _, row := range rows {
		h.insert(row.LocationID, row.LocationName, row.Timezone, row.DepartmentID, row.DepartmentName,
			row.StationID, row.StationName, windows, statuses)
	}
	return h
}

func (h *Hierarchy) ensureScan(scan model.ScanRow, windows *window.Windows) {
	if _, ok := h.Lookup(scan.LocationID, scan.DepartmentID, scan.StationID); ok {
		return
	}
	h.insert(scan.LocationID, scan.LocationName, scan.Timezone, scan.DepartmentID, scan.DepartmentName,
		scan.StationID, scan.StationName, windows, nil)
}

func (h *Hierarchy) insert(
	locationID int64, locationName, timezone string,
	departmentID *int64, departmentName *string,
	stationID int64, stationName string,
	windows *window.Windows, statuses map[int64]model.DeviceStatus,
) {
	locWindow, _ := windows.Location(locationID)
	loc, created := h.Location(locationID, locationName, timezone)
	if created {
		loc.Metrics = DummyMetrics(locWindow)
	}

	governing := windows.Governing(locationID, departmentID)
	var station *StationNode
	var dept *DepartmentNode
	if departmentID != nil {
		name := ""
		if departmentName != nil {
			name = *departmentName
		}
		dept, created = loc.Department(*departmentID, name)
		if created {
			dept.Metrics = DummyMetrics(governing)
		}
		station, created = dept.Station(stationID, stationName)
	} else {
		station, created = loc.Station(stationID, stationName)
	}
	if !created {
		return
	}

	station.Metrics = DummyMetrics(governing)
	if statuses == nil {
		return
	}
	station.OfflineOneHour = StationOfflineWithinHour(lastPing(statuses, stationID), governing.UTCEnd)
	if station.OfflineOneHour {
		if dept != nil {
			dept.OfflineOneHour = true
		}
		loc.OfflineOneHour = true
	}
}

func lastPing(statuses map[int64]model.DeviceStatus, stationID int64) *time.Time {
	status, ok := statuses[stationID]
	if !ok {
		return nil
	}
	return status.StatusWhen
}

// Redact drops internal database ids, leaving only public aliases.
func (h *Hierarchy) Redact() {
	for _, loc := range h.Locations {
		loc.RealLocationID = 0
		for _, dept := range loc.Departments {
			dept.RealDepartmentID = 0
			for _, station := range dept.Stations {
				station.RealStationID = 0
			}
		}
		for _, station := range loc.Stations {
			station.RealStationID = 0
		}
	}
}
