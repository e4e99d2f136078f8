// Package store persists target→preset assignments. Targets without an
// explicit row resolve to the catalog's default preset.
package store

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TargetPresetAssignment is one explicit target→preset row.
type TargetPresetAssignment struct {
	gorm.Model
	TargetName string `json:"target_name" gorm:"uniqueIndex"`
	PresetID   string `json:"preset_id" gorm:"index"`
}

// DefaultResolver supplies the fallback preset id for unassigned targets.
// Satisfied by *catalog.Catalog.
type DefaultResolver interface {
	DefaultPresetID() string
}

// AssignmentStore reads and writes target→preset assignments.
type AssignmentStore struct {
	DB       *gorm.DB
	Defaults DefaultResolver
}

func NewAssignmentStore(db *gorm.DB, defaults DefaultResolver) *AssignmentStore {
	return &AssignmentStore{DB: db, Defaults: defaults}
}

// Get returns the preset id assigned to a target, falling back to the
// default preset when no explicit assignment exists.
func (s *AssignmentStore) Get(targetName string) (string, error) {
	var row TargetPresetAssignment
	err := s.DB.Where("target_name = ?", targetName).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.Defaults.DefaultPresetID(), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read assignment for %q: %w", targetName, err)
	}
	return row.PresetID, nil
}

// Set assigns a preset to a target with an immediate durable write. Assigning
// the default preset removes the explicit row so the target follows future
// default changes.
func (s *AssignmentStore) Set(targetName, presetID string) error {
	if presetID == s.Defaults.DefaultPresetID() {
		result := s.DB.Unscoped().Where("target_name = ?", targetName).Delete(&TargetPresetAssignment{})
		if result.Error != nil {
			return fmt.Errorf("failed to remove assignment for %q: %w", targetName, result.Error)
		}
		if result.RowsAffected > 0 {
			log.Printf("Removed explicit preset assignment for %q (using default)", targetName)
		}
		return nil
	}

	row := TargetPresetAssignment{TargetName: targetName, PresetID: presetID}
	err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "target_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"preset_id", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to set preset for %q: %w", targetName, err)
	}
	log.Printf("Set preset for %q to %q", targetName, presetID)
	return nil
}

// All returns every explicit assignment as a target→preset map.
func (s *AssignmentStore) All() (map[string]string, error) {
	var rows []TargetPresetAssignment
	if err := s.DB.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.TargetName] = row.PresetID
	}
	return out, nil
}

// Remove deletes the explicit assignment for a target, reverting it to the
// default preset. Returns true when a row was removed.
func (s *AssignmentStore) Remove(targetName string) (bool, error) {
	result := s.DB.Unscoped().Where("target_name = ?", targetName).Delete(&TargetPresetAssignment{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to remove assignment for %q: %w", targetName, result.Error)
	}
	return result.RowsAffected > 0, nil
}
