package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"compliance-analytics/internal/model"
)

// ScopeRepository answers which entities a user holds every requested
// permission on. A grant without department_id covers the whole location.
type ScopeRepository struct {
	db *gorm.DB
}

func NewScopeRepository(db *gorm.DB) *ScopeRepository {
	return &ScopeRepository{db: db}
}

func (r *ScopeRepository) ApprovedScope(ctx context.Context, userID uuid.UUID, permissions ...model.Permission) (model.Scope, error) {
	if len(permissions) == 0 {
		return model.Scope{}, nil
	}
	names := make([]string, 0, len(permissions))
	for _, p := range permissions {
		names = append(names, string(p))
	}

	var grants []struct {
		LocationID   int64
		DepartmentID *int64
	}
	err := r.db.WithContext(ctx).
		Table("user_permissions up").
		Select("up.location_id, up.department_id").
		Where("up.user_id = ? AND up.permission IN ?", userID, names).
		Group("up.location_id, up.department_id").
		Having("COUNT(DISTINCT up.permission) = ?", len(names)).
		Scan(&grants).Error
	if err != nil {
		return model.Scope{}, fmt.Errorf("load permissions: %w", err)
	}
	if len(grants) == 0 {
		return model.Scope{}, nil
	}

	var wholeLocations, departments []int64
	locations := make([]int64, 0, len(grants))
	seen := make(map[int64]struct{})
	for _, g := range grants {
		if _, ok := seen[g.LocationID]; !ok {
			seen[g.LocationID] = struct{}{}
			locations = append(locations, g.LocationID)
		}
		if g.DepartmentID == nil {
			wholeLocations = append(wholeLocations, g.LocationID)
		} else {
			departments = append(departments, *g.DepartmentID)
		}
	}

	if len(wholeLocations) > 0 {
		var inherited []int64
		if err := r.db.WithContext(ctx).
			Table("departments").
			Where("location_id IN ?", wholeLocations).
			Pluck("id", &inherited).Error; err != nil {
			return model.Scope{}, fmt.Errorf("load departments: %w", err)
		}
		departments = append(departments, inherited...)
	}

	stationQuery := r.db.WithContext(ctx).Table("stations s").Where("s.active = ?", true)
	switch {
	case len(wholeLocations) > 0 && len(departments) > 0:
		stationQuery = stationQuery.Where("s.location_id IN ? OR s.department_id IN ?", wholeLocations, departments)
	case len(wholeLocations) > 0:
		stationQuery = stationQuery.Where("s.location_id IN ?", wholeLocations)
	default:
		stationQuery = stationQuery.Where("s.department_id IN ?", departments)
	}
	var stations []int64
	if err := stationQuery.Order("s.id").Pluck("s.id", &stations).Error; err != nil {
		return model.Scope{}, fmt.Errorf("load stations: %w", err)
	}

	return model.Scope{LocationIDs: locations, DepartmentIDs: departments, StationIDs: stations}, nil
}
