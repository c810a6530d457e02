package aggregator

import (
	"time"

	"compliance-analytics/internal/model"
	"compliance-analytics/internal/window"
)

func int64p(v int64) *int64 { return &v }

func strp(v string) *string { return &v }

func timep(v time.Time) *time.Time { return &v }

func scan(id int64, result int, at time.Time, events ...int64) model.ScanRow {
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

func windowsFor(date time.Time, locationSchedule string, departments ...model.DepartmentSchedule) *window.Windows {
	var goal *string
	if locationSchedule != "" {
		goal = &locationSchedule
	}
	return window.Build(date, []model.Location{{ID: 1, Timezone: "UTC", DetailedScanGoal: goal}}, departments)
}
