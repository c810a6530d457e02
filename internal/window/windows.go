package window

import (
	"time"

	"compliance-analytics/internal/model"
)

// Windows holds the open/close windows of one date for locations and for the
// departments that carry their own schedule.
type Windows struct {
	locations   map[int64]Window
	departments map[int64]Window
}

func NewWindows() *Windows {
	return &Windows{
		locations:   make(map[int64]Window),
		departments: make(map[int64]Window),
	}
}

// Build resolves the open/close windows of every location and scheduled
// department for date. Departments resolve in their location's timezone.
func Build(date time.Time, locations []model.Location, departments []model.DepartmentSchedule) *Windows {
	out := NewWindows()
	timezones := make(map[int64]string, len(locations))
	for _, loc := range locations {
		timezones[loc.ID] = loc.Timezone
		out.SetLocation(loc.ID, OpenCloseRaw(date, loc.Timezone, deref(loc.DetailedScanGoal)))
	}
	for _, dept := range departments {
		if dept.DetailedScanGoal == nil {
			continue
		}
		out.SetDepartment(dept.ID, OpenCloseRaw(date, timezones[dept.LocationID], *dept.DetailedScanGoal))
	}
	return out
}

func (w *Windows) SetLocation(id int64, win Window) {
	w.locations[id] = win
}

func (w *Windows) SetDepartment(id int64, win Window) {
	w.departments[id] = win
}

func (w *Windows) Location(id int64) (Window, bool) {
	win, ok := w.locations[id]
	return win, ok
}

func (w *Windows) Department(id int64) (Window, bool) {
	win, ok := w.departments[id]
	return win, ok
}

// Governing is the window that bounds a station or department: its
// department's when that department has a schedule, its location's otherwise.
func (w *Windows) Governing(locationID int64, departmentID *int64) Window {
	if departmentID != nil {
		if win, ok := w.departments[*departmentID]; ok {
			return win
		}
	}
	return w.locations[locationID]
}

// Fallbacks counts windows that fell back to the whole-day default because of
// an unusable schedule.
func (w *Windows) Fallbacks() int {
	n := 0
	for _, win := range w.locations {
		if win.Fallback {
			n++
		}
	}
	for _, win := range w.departments {
		if win.Fallback {
			n++
		}
	}
	return n
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
