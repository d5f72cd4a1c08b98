package assignment

import (
	"time"

	patientModel "healthapp/models/patient"
)

// SecondaryAssignment represents a pending or granted secondary-access grant:
// a primary doctor asking that a secondary doctor or HSP be given access to a
// patient's record. Exactly one of SecondaryDoctorID / SecondaryHspID is set.
type SecondaryAssignment struct {
	ID string `gorm:"type:varchar(36);primaryKey" json:"id"`

	// Foreign key for patient relationship
	PatientID string               `gorm:"type:varchar(36);not null;index" json:"patient_id"`
	Patient   patientModel.Patient `gorm:"foreignKey:PatientID" json:"patient"`

	PrimaryDoctorID   string  `gorm:"type:varchar(36);not null;index" json:"primary_doctor_id"`
	SecondaryDoctorID *string `gorm:"type:varchar(36);index" json:"secondary_doctor_id,omitempty"`
	SecondaryHspID    *string `gorm:"type:varchar(36);index" json:"secondary_hsp_id,omitempty"`

	ConsentStatus   ConsentStatus `gorm:"type:varchar(20);not null;default:'PENDING'" json:"consent_status"`
	AccessGranted   bool          `gorm:"default:false" json:"access_granted"`
	AccessGrantedAt *time.Time    `json:"access_granted_at,omitempty"`

	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`
}

// SecondaryTargetID returns whichever of the doctor/HSP references is set.
func (a *SecondaryAssignment) SecondaryTargetID() (string, bool) {
	if a.SecondaryDoctorID != nil && *a.SecondaryDoctorID != "" {
		return *a.SecondaryDoctorID, true
	}
	if a.SecondaryHspID != nil && *a.SecondaryHspID != "" {
		return *a.SecondaryHspID, true
	}
	return "", false
}

// IsGranted reports whether consent has already been granted.
func (a *SecondaryAssignment) IsGranted() bool {
	return a.ConsentStatus == ConsentStatusGranted && a.AccessGranted
}

// Grant flips the assignment into the granted state. Both fields change
// together with the timestamp; callers persist inside a transaction.
func (a *SecondaryAssignment) Grant(at time.Time) {
	a.ConsentStatus = ConsentStatusGranted
	a.AccessGranted = true
	a.AccessGrantedAt = &at
}
