package aggregator

import (
	"time"

	"compliance-analytics/internal/model"
)

const unknownReadingDate = "unknown"

type SensorAlertState struct {
	AlertID        int64      `json:"alert_id"`
	Criticality    *string    `json:"alert_criticality"`
	AlertingSensor *string    `json:"alerting_sensor"`
	Value          *float64   `json:"alert_temp"`
	Unit           *string    `json:"alert_temp_unit"`
	HighLimit      *float64   `json:"high_limit"`
	LowLimit       *float64   `json:"low_limit"`
	IsOutOfRange   bool       `json:"is_out_of_range"`
	LastSentWhen   *time.Time `json:"last_alert_sent_time_utc"`
	IsAlerting     bool       `json:"is_alerting"`
}

type SensorMetric struct {
	LocationName    string             `json:"location_name"`
	Timezone        string             `json:"location_timezone"`
	SensorID        int64              `json:"sensor_id"`
	SensorEUI       *string            `json:"sensor_eui"`
	SensorName      string             `json:"sensor_name"`
	SensorTag       *string            `json:"sensor_tag"`
	UnitType        string             `json:"sensor_unit_type"`
	PrimarySensor   *string            `json:"primary_sensor"`
	LastReading     *float64           `json:"last_temperature_reading"`
	LastReadingWhen *time.Time         `json:"last_temperature_reading_time"`
	Alerts          []SensorAlertState `json:"alerts"`
}

// SensorMetrics is keyed by the UTC date of each sensor's last reading, then
// by location alias.
type SensorMetrics map[string]map[string][]SensorMetric

// IsAlerting reports whether an out-of-range excursion has lasted longer than
// the action's duration. An action without a start or a duration never alerts.
func IsAlerting(alert model.SensorAlert, now time.Time) bool {
	if !alert.IsOutOfRange || alert.AlertStartWhen == nil || alert.DurationSeconds == nil {
		return false
	}
	duration := time.Duration(*alert.DurationSeconds * float64(time.Second))
	return alert.AlertStartWhen.Before(now.Add(-duration))
}

// GroupSensorMetrics attaches each sensor's alerts and groups the sensors,
// keeping the order of statuses within a group.
func GroupSensorMetrics(statuses []model.SensorStatus, alerts []model.SensorAlert, now time.Time) SensorMetrics {
	bySensor := make(map[int64][]SensorAlertState)
	for _, alert := range alerts {
		bySensor[alert.SensorID] = append(bySensor[alert.SensorID], SensorAlertState{
			AlertID:        alert.AlertID,
			Criticality:    alert.Criticality,
			AlertingSensor: alert.AlertingDataType,
			Value:          alert.Value,
			Unit:           alert.Unit,
			HighLimit:      alert.HighLimit,
			LowLimit:       alert.LowLimit,
			IsOutOfRange:   alert.IsOutOfRange,
			LastSentWhen:   alert.LastSentWhen,
			IsAlerting:     IsAlerting(alert, now),
		})
	}

	grouped := make(SensorMetrics)
	for _, status := range statuses {
		dateKey := unknownReadingDate
		if status.LastReadingWhen != nil {
			dateKey = status.LastReadingWhen.UTC().Format(time.DateOnly)
		}
		locations, ok := grouped[dateKey]
		if !ok {
			locations = make(map[string][]SensorMetric)
			grouped[dateKey] = locations
		}

		sensorAlerts := bySensor[status.SensorID]
		if sensorAlerts == nil {
			sensorAlerts = []SensorAlertState{}
		}
		locationKey := model.PublicID(model.KindLocation, status.LocationID).String()
		locations[locationKey] = append(locations[locationKey], SensorMetric{
			LocationName:    status.LocationName,
			Timezone:        status.Timezone,
			SensorID:        status.SensorID,
			SensorEUI:       status.SensorEUI,
			SensorName:      status.SensorName,
			SensorTag:       status.SensorTag,
			UnitType:        status.UnitType,
			PrimarySensor:   status.PrimaryDataType,
			LastReading:     status.LastReading,
			LastReadingWhen: status.LastReadingWhen,
			Alerts:          sensorAlerts,
		})
	}
	return grouped
}
