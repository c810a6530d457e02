package db

import (
	"fmt"

	"gorm.io/gorm"
)

// The service only reads; these statements add the indexes its window
// queries rely on and are skipped when the owning table is absent.
var migrationStatements = []string{
	`DO $$
	BEGIN
		IF EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'scans') THEN
			CREATE INDEX IF NOT EXISTS idx_scans_station_created ON scans (station_id, created_when);
			CREATE INDEX IF NOT EXISTS idx_scans_created ON scans (created_when);
		END IF;
	END
	$$;`,
	`DO $$
	BEGIN
		IF EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'stations') THEN
			CREATE INDEX IF NOT EXISTS idx_stations_location_active ON stations (location_id, active);
			CREATE INDEX IF NOT EXISTS idx_stations_department ON stations (department_id);
		END IF;
	END
	$$;`,
	`DO $$
	BEGIN
		IF EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'device_status_most_recent') THEN
			CREATE INDEX IF NOT EXISTS idx_device_status_most_recent_station ON device_status_most_recent (station_id);
		END IF;
	END
	$$;`,
	`DO $$
	BEGIN
		IF EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'sensor_data') THEN
			CREATE INDEX IF NOT EXISTS idx_sensor_data_sensor_created ON sensor_data (sensor_id, data_type, created_when);
		END IF;
	END
	$$;`,
	`DO $$
	BEGIN
		IF EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'user_permissions') THEN
			CREATE INDEX IF NOT EXISTS idx_user_permissions_user ON user_permissions (user_id, permission);
		END IF;
	END
	$$;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
