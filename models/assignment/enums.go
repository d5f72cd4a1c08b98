package assignment

// ConsentStatus tracks where an assignment sits in the consent lifecycle.
type ConsentStatus string

const (
	ConsentStatusPending   ConsentStatus = "PENDING"
	ConsentStatusRequested ConsentStatus = "REQUESTED"
	ConsentStatusGranted   ConsentStatus = "GRANTED"
	ConsentStatusDenied    ConsentStatus = "DENIED"
)

// Helper methods for ConsentStatus
func (cs ConsentStatus) String() string {
	return string(cs)
}

func (cs ConsentStatus) IsValid() bool {
	switch cs {
	case ConsentStatusPending, ConsentStatusRequested, ConsentStatusGranted, ConsentStatusDenied:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no further consent transitions are expected.
func (cs ConsentStatus) IsTerminal() bool {
	return cs == ConsentStatusGranted || cs == ConsentStatusDenied
}

// CanRequestOtp returns true if an OTP may still be requested for this status.
func (cs ConsentStatus) CanRequestOtp() bool {
	return cs == ConsentStatusPending || cs == ConsentStatusRequested
}

// GetAllConsentStatuses returns all valid consent statuses.
func GetAllConsentStatuses() []ConsentStatus {
	return []ConsentStatus{
		ConsentStatusPending,
		ConsentStatusRequested,
		ConsentStatusGranted,
		ConsentStatusDenied,
	}
}
