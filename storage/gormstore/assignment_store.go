package gormstore

import (
	"errors"
	"fmt"

	assignmentModel "healthapp/models/assignment"
	"healthapp/services/consent"

	"gorm.io/gorm"
)

// AssignmentStore is the GORM implementation of consent.AssignmentStore.
type AssignmentStore struct {
	db *gorm.DB
}

func NewAssignmentStore(db *gorm.DB) *AssignmentStore {
	return &AssignmentStore{db: db}
}

func (s *AssignmentStore) GetByID(id string) (*assignmentModel.SecondaryAssignment, error) {
	var a assignmentModel.SecondaryAssignment
	if err := s.db.First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, consent.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find assignment: %w", err)
	}
	return &a, nil
}

func (s *AssignmentStore) Update(a *assignmentModel.SecondaryAssignment) error {
	if err := s.db.Save(a).Error; err != nil {
		return fmt.Errorf("failed to update assignment: %w", err)
	}
	return nil
}
