package constants

// Role is the closed set of caller roles recognised by the platform.
type Role string

const (
	RoleSystemAdmin   Role = "SYSTEM_ADMIN"
	RoleHospitalAdmin Role = "HOSPITAL_ADMIN"
	RoleDoctor        Role = "DOCTOR"
	RoleHSP           Role = "HSP"
	RolePatient       Role = "PATIENT"
)

// String returns the role as a plain string.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the role belongs to the closed enum.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystemAdmin, RoleHospitalAdmin, RoleDoctor, RoleHSP, RolePatient:
		return true
	default:
		return false
	}
}

// IsAdmin reports whether the role carries platform-admin authority.
func (r Role) IsAdmin() bool {
	return r == RoleSystemAdmin || r == RoleHospitalAdmin
}

// CanManageConsent reports whether the role may request or resend a consent
// OTP on a patient's behalf. Doctors must additionally be the assignment's
// primary doctor; admins may act on any assignment.
func (r Role) CanManageConsent() bool {
	return r == RoleDoctor || r.IsAdmin()
}

// ParseRole maps a raw claim value onto the closed enum.
func ParseRole(raw string) (Role, bool) {
	role := Role(raw)
	return role, role.IsValid()
}

// GetAllRoles returns all valid roles.
func GetAllRoles() []Role {
	return []Role{
		RoleSystemAdmin,
		RoleHospitalAdmin,
		RoleDoctor,
		RoleHSP,
		RolePatient,
	}
}
