package patient

import (
	"time"
)

// Patient holds the contact details this service needs to reach a patient
// with a consent code. The full clinical record lives elsewhere.
type Patient struct {
	ID            string  `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name          string  `gorm:"type:varchar(255);not null" json:"name"`
	Phone         string  `gorm:"type:varchar(20);not null;index" json:"phone"`
	PhoneVerified bool    `gorm:"type:bool;default:false" json:"phone_verified"`
	Email         *string `gorm:"type:varchar(255);index" json:"email,omitempty"`
	EmailVerified bool    `gorm:"type:bool;default:false" json:"email_verified"`

	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`
}

// HasEmail reports whether an email channel is available for this patient.
func (p *Patient) HasEmail() bool {
	return p.Email != nil && *p.Email != ""
}
