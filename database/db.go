package database

import (
	"fmt"
	"os"

	"healthapp/logger"
	assignmentModel "healthapp/models/assignment"
	consentModel "healthapp/models/consent"
	logModel "healthapp/models/log"
	patientModel "healthapp/models/patient"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// InitDB initializes the database connection with auto migration and indexing
func InitDB() (*gorm.DB, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		logger.Error("Error loading .env file", err)
	}

	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	database := os.Getenv("DB_DATABASE")
	user := os.Getenv("DB_USERNAME")
	password := os.Getenv("DB_PASSWORD")
	sslmode := os.Getenv("DB_SSLMODE")

	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, database, sslmode)

	var err error
	// TranslateError turns unique-index violations into gorm.ErrDuplicatedKey,
	// which the OTP store relies on for duplicate-active detection.
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		logger.Error("Failed to connect to the database", err)
		return nil, err
	}
	logger.Success("Successfully connected to the database")

	if err := autoMigrate(); err != nil {
		logger.Error("Failed to run migrations", err)
		return nil, err
	}
	logger.Success("All migrations completed successfully")

	if err := createForeignKeyConstraints(); err != nil {
		logger.Error("Failed to create foreign key constraints", err)
		return nil, err
	}
	logger.Success("All foreign key constraints created successfully")

	if err := createIndexes(); err != nil {
		logger.Error("Failed to create indexes", err)
		return nil, err
	}
	logger.Success("All indexes created successfully")

	return DB, nil
}

// autoMigrate runs auto migration for all models in dependency stages
func autoMigrate() error {
	// Stage 1: Core foundation models
	stage1Models := []interface{}{
		&patientModel.Patient{},
	}

	for _, model := range stage1Models {
		if err := DB.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	// Stage 2: Models with dependencies on Stage 1
	stage2Models := []interface{}{
		&assignmentModel.SecondaryAssignment{},
		&consentModel.ConsentOtp{},
		&consentModel.ConsentOtpEvent{},
	}

	for _, model := range stage2Models {
		if err := DB.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	// Remaining models
	remainingModels := []interface{}{
		&logModel.Log{},
	}

	for _, model := range remainingModels {
		if err := DB.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	return nil
}

// createIndexes creates additional indexes for better performance, plus the
// partial unique index that enforces one non-terminal OTP per assignment.
func createIndexes() error {
	if err := DB.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_consent_otps_active_assignment
		ON consent_otps(assignment_id) WHERE is_verified = false`).Error; err != nil {
		return fmt.Errorf("failed to create active-OTP unique index: %w", err)
	}

	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_consent_otps_patient_created ON consent_otps(patient_id, created_at)").Error; err != nil {
		return fmt.Errorf("failed to create OTP patient index: %w", err)
	}
	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_consent_otp_events_otp_created ON consent_otp_events(otp_id, created_at)").Error; err != nil {
		return fmt.Errorf("failed to create OTP event index: %w", err)
	}

	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_assignments_primary_doctor ON secondary_assignments(primary_doctor_id)").Error; err != nil {
		return fmt.Errorf("failed to create assignment doctor index: %w", err)
	}
	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_assignments_consent_status ON secondary_assignments(consent_status)").Error; err != nil {
		return fmt.Errorf("failed to create assignment status index: %w", err)
	}

	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_logs_status_code ON logs(status_code)").Error; err != nil {
		return fmt.Errorf("failed to create log status_code index: %w", err)
	}
	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_logs_created_at ON logs(created_at)").Error; err != nil {
		return fmt.Errorf("failed to create log created_at index: %w", err)
	}

	return nil
}

// createForeignKeyConstraints creates foreign key constraints after auto migration
func createForeignKeyConstraints() error {
	constraints := []struct {
		name string
		sql  string
	}{
		{
			name: "fk_assignments_patient",
			sql: `ALTER TABLE secondary_assignments ADD CONSTRAINT fk_assignments_patient
				  FOREIGN KEY (patient_id) REFERENCES patients(id)
				  ON UPDATE CASCADE ON DELETE RESTRICT`,
		},
		{
			name: "fk_consent_otps_assignment",
			sql: `ALTER TABLE consent_otps ADD CONSTRAINT fk_consent_otps_assignment
				  FOREIGN KEY (assignment_id) REFERENCES secondary_assignments(id)
				  ON UPDATE CASCADE ON DELETE RESTRICT`,
		},
		{
			name: "fk_consent_otp_events_otp",
			sql: `ALTER TABLE consent_otp_events ADD CONSTRAINT fk_consent_otp_events_otp
				  FOREIGN KEY (otp_id) REFERENCES consent_otps(id)
				  ON UPDATE CASCADE ON DELETE RESTRICT`,
		},
	}

	for _, constraint := range constraints {
		var exists bool
		checkSQL := `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE constraint_name = $1
			)
		`

		err := DB.Raw(checkSQL, constraint.name).Scan(&exists).Error
		if err != nil {
			logger.Warning(fmt.Sprintf("Failed to check constraint existence: %s - Error: %v", constraint.name, err))
			continue
		}

		if !exists {
			if err := DB.Exec(constraint.sql).Error; err != nil {
				logger.Warning(fmt.Sprintf("Failed to create constraint: %s - Error: %v", constraint.name, err))
			} else {
				logger.Success(fmt.Sprintf("Successfully created constraint: %s", constraint.name))
			}
		}
	}

	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
