package model

type Permission string

const (
	PermissionViewHandwashes  Permission = "view_handwashes"
	PermissionViewDevices     Permission = "view_devices"
	PermissionGenerateReports Permission = "generate_reports"
	PermissionViewSensors     Permission = "view_sensors_and_actions"
)

// Scope is the set of entity ids a principal is approved for, as returned by
// the permission subsystem.
type Scope struct {
	LocationIDs   []int64
	DepartmentIDs []int64
	StationIDs    []int64
}

func (s Scope) AllowsLocation(id int64) bool {
	return containsID(s.LocationIDs, id)
}

func (s Scope) AllowsDepartment(id int64) bool {
	return containsID(s.DepartmentIDs, id)
}

// Narrow restricts the scope to the optional location/department filter. The
// second return is false when the filter names an entity outside the scope.
func (s Scope) Narrow(filter EntityFilter) (Scope, bool) {
	if filter.LocationID != nil {
		if !s.AllowsLocation(*filter.LocationID) {
			return Scope{}, false
		}
		s.LocationIDs = []int64{*filter.LocationID}
	}
	if filter.DepartmentID != nil {
		if !s.AllowsDepartment(*filter.DepartmentID) {
			return Scope{}, false
		}
		s.DepartmentIDs = []int64{*filter.DepartmentID}
	}
	return s, true
}

type EntityFilter struct {
	LocationID   *int64
	DepartmentID *int64
}

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
