package gormstore

import (
	"errors"
	"fmt"
	"time"

	consentModel "healthapp/models/consent"
	"healthapp/services/consent"
	"healthapp/services/consentevent"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OtpStore is the GORM implementation of consent.OtpStore.
type OtpStore struct {
	db *gorm.DB
}

func NewOtpStore(db *gorm.DB) *OtpStore {
	return &OtpStore{db: db}
}

// Create inserts a fresh OTP row and its "requested" audit snapshot. The
// partial unique index on (assignment_id) WHERE NOT is_verified turns a
// concurrent duplicate into ErrDuplicateActive for the loser.
func (s *OtpStore) Create(o *consentModel.ConsentOtp) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(o).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return consent.ErrDuplicateActive
			}
			return fmt.Errorf("failed to create OTP record: %w", err)
		}
		return consentevent.Snapshot(tx, o, consentModel.EventRequested)
	})
}

func (s *OtpStore) GetByID(id string) (*consentModel.ConsentOtp, error) {
	var o consentModel.ConsentOtp
	if err := s.db.First(&o, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, consent.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find OTP record: %w", err)
	}
	return &o, nil
}

// Update persists the full row of an unverified OTP; a non-empty eventType
// snapshots it into the audit table in the same transaction. A verified row
// is terminal, so the conditional write refuses to touch it and the caller
// gets ErrAlreadyVerified instead.
func (s *OtpStore) Update(o *consentModel.ConsentOtp, eventType string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&consentModel.ConsentOtp{}).
			Where("id = ? AND is_verified = false", o.ID).
			Select("*").Omit("id", "created_at").
			Updates(o)
		if res.Error != nil {
			return fmt.Errorf("failed to update OTP record: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return consent.ErrAlreadyVerified
		}
		if eventType != "" {
			return consentevent.Snapshot(tx, o, eventType)
		}
		return nil
	})
}

// RecordDispatch persists only the dispatch columns, and only while the row
// is unverified and still on the same issue cycle. Dispatch bookkeeping is
// best-effort; when verification or a resend won the race the flags belong
// to a dead cycle and are dropped.
func (s *OtpStore) RecordDispatch(o *consentModel.ConsentOtp) error {
	res := s.db.Model(&consentModel.ConsentOtp{}).
		Where("id = ? AND is_verified = false AND generated_at = ?", o.ID, o.GeneratedAt).
		Updates(map[string]interface{}{
			"sms_sent":      o.SmsSent,
			"sms_sent_at":   o.SmsSentAt,
			"email_sent":    o.EmailSent,
			"email_sent_at": o.EmailSentAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to record dispatch flags: %w", res.Error)
	}
	return nil
}

// MarkExpired flags an unverified OTP of the given issue cycle as expired
// and snapshots it. A cycle that was verified or resent in the meantime is
// left alone; ExpiresAt stays authoritative either way.
func (s *OtpStore) MarkExpired(id string, generatedAt time.Time) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&consentModel.ConsentOtp{}).
			Where("id = ? AND is_verified = false AND is_expired = false AND generated_at = ?", id, generatedAt).
			Update("is_expired", true)
		if res.Error != nil {
			return fmt.Errorf("failed to mark OTP expired: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var o consentModel.ConsentOtp
		if err := tx.First(&o, "id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to reload OTP record: %w", err)
		}
		return consentevent.Snapshot(tx, &o, consentModel.EventExpired)
	})
}

// RegisterFailedAttempt bumps the attempt counter with a conditional UPDATE
// so two simultaneous wrong codes cannot both observe the same count and
// lose an increment. Matching generated_at pins the debit to the issue cycle
// the comparison was made against, so a comparison that raced a resend never
// charges the fresh cycle's budget. Crossing the threshold sets the block in
// the same statement. RowsAffected == 0 means a precondition failed and the
// caller must re-read before retrying.
func (s *OtpStore) RegisterFailedAttempt(id string, expectedAttempts int, generatedAt time.Time) (*consentModel.ConsentOtp, error) {
	newCount := expectedAttempts + 1
	var updated consentModel.ConsentOtp

	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&consentModel.ConsentOtp{}).
			Where("id = ? AND attempts_count = ? AND is_verified = false AND generated_at = ?",
				id, expectedAttempts, generatedAt).
			Updates(map[string]interface{}{
				"attempts_count": newCount,
				"is_blocked":     gorm.Expr("CASE WHEN ? >= max_attempts THEN true ELSE is_blocked END", newCount),
				"blocked_at":     gorm.Expr("CASE WHEN ? >= max_attempts THEN NOW() ELSE blocked_at END", newCount),
				"updated_at":     time.Now(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update attempt count: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return consent.ErrStaleAttempt
		}

		if err := tx.First(&updated, "id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to reload OTP record: %w", err)
		}

		eventType := consentModel.EventAttemptFailed
		if updated.IsBlocked {
			eventType = consentModel.EventBlocked
		}
		return consentevent.Snapshot(tx, &updated, eventType)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// CommitGrant flips the OTP to verified and grants its assignment in one
// transaction. Row locks keep a double-submitted correct code from granting
// twice; the loser sees ErrAlreadyVerified. Either both rows commit or
// neither does.
func (s *OtpStore) CommitGrant(id string, at time.Time) (*consentModel.ConsentOtp, error) {
	var o consentModel.ConsentOtp

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&o, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return consent.ErrNotFound
			}
			return fmt.Errorf("failed to lock OTP record: %w", err)
		}
		if o.IsVerified {
			return consent.ErrAlreadyVerified
		}

		o.MarkVerified(at)
		if err := tx.Save(&o).Error; err != nil {
			return fmt.Errorf("failed to mark OTP verified: %w", err)
		}

		res := tx.Model(&assignmentTable{}).
			Where("id = ?", o.AssignmentID).
			Updates(map[string]interface{}{
				"consent_status":    "GRANTED",
				"access_granted":    true,
				"access_granted_at": at,
				"updated_at":        at,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to grant assignment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("assignment %s missing during grant commit", o.AssignmentID)
		}

		return consentevent.Snapshot(tx, &o, consentModel.EventVerified)
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *OtpStore) ListByAssignment(assignmentID string) ([]consentModel.ConsentOtp, error) {
	var otps []consentModel.ConsentOtp
	err := s.db.Where("assignment_id = ?", assignmentID).
		Order("created_at DESC").
		Find(&otps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list OTP records: %w", err)
	}
	return otps, nil
}

func (s *OtpStore) ListByPatient(patientID string) ([]consentModel.ConsentOtp, error) {
	var otps []consentModel.ConsentOtp
	err := s.db.Where("patient_id = ?", patientID).
		Order("created_at DESC").
		Find(&otps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list OTP records: %w", err)
	}
	return otps, nil
}

// assignmentTable targets the assignments table for the grant update without
// dragging the full model (and its patient association) into the write path.
type assignmentTable struct{}

func (assignmentTable) TableName() string {
	return "secondary_assignments"
}
