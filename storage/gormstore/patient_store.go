package gormstore

import (
	"errors"
	"fmt"

	patientModel "healthapp/models/patient"
	"healthapp/services/consent"

	"gorm.io/gorm"
)

// PatientStore is the GORM implementation of consent.PatientStore.
type PatientStore struct {
	db *gorm.DB
}

func NewPatientStore(db *gorm.DB) *PatientStore {
	return &PatientStore{db: db}
}

func (s *PatientStore) GetByID(id string) (*patientModel.Patient, error) {
	var p patientModel.Patient
	if err := s.db.First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, consent.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find patient: %w", err)
	}
	return &p, nil
}
