package main

import (
	"log"
	"os"
	"strings"

	"github.com/Banyel3/iayos-sub003/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var db *gorm.DB

func initDB() {
	var err error
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN is not set. This project requires a Postgres DSN in DB_DSN.")
	}
	db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect postgres database:", err)
	}
	// Control schema migrations with env DB_AUTO_MIGRATE (default true). Any permission errors will be logged and ignored.
	shouldMigrate := true
	if v := os.Getenv("DB_AUTO_MIGRATE"); v != "" {
		lv := strings.ToLower(v)
		if lv == "false" || lv == "0" || lv == "no" {
			shouldMigrate = false
		}
	}
	// Ensure the roles master table exists first and seed it so users FK can be applied safely.
	if shouldMigrate {
		if err := db.AutoMigrate(&models.Role{}); err != nil {
			log.Printf("migration warning (roles): %v", err)
		}
	}
	seedRoles()

	if shouldMigrate {
		// Migrate models individually so a failure on one doesn't block others
		for name, model := range map[string]any{
			"users":             &models.User{},
			"profiles":          &models.Profile{},
			"agencies":          &models.Agency{},
			"refresh_tokens":    &models.RefreshToken{},
			"kyc_submissions":   &models.KycSubmission{},
			"kyc_documents":     &models.KycDocument{},
			"document_analyses": &models.DocumentAnalysis{},
			"extracted_fields":  &models.ExtractedFields{},
			"decision_records":  &models.DecisionRecord{},
			"notifications":     &models.Notification{},
			"audit_entries":     &models.AuditEntry{},
		} {
			if err := db.AutoMigrate(model); err != nil {
				log.Printf("migration warning (%s): %v", name, err)
			}
		}
		if err := ensureOneActiveSubmissionIndex(); err != nil {
			log.Printf("warning: ensuring active-submission index failed: %v", err)
		}
	}
	seedDB()
}

// ensureOneActiveSubmissionIndex enforces at most one non-terminal submission
// per owner. Partial indexes are outside AutoMigrate's vocabulary, so raw SQL.
func ensureOneActiveSubmissionIndex() error {
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_kyc_one_active
		ON kyc_submissions(owner_kind, owner_id)
		WHERE status IN ('PENDING','UNDER_REVIEW') AND deleted_at IS NULL`).Error
}

func seedRoles() {
	roles := []models.Role{{Name: "administrator", Description: "full access"}, {Name: "user", Description: "regular user"}}
	for _, r := range roles {
		var cnt int64
		db.Model(&models.Role{}).Where("name = ?", r.Name).Count(&cnt)
		if cnt == 0 {
			db.Create(&r)
		}
	}
}

func seedDB() {
	seedRoles()

	// Check if admin user exists
	var count int64
	db.Model(&models.User{}).Where("username = ?", "admin").Count(&count)
	if count == 0 {
		var role models.Role
		if err := db.Where("name = ?", "administrator").First(&role).Error; err != nil {
			log.Printf("failed to find administrator role: %v", err)
		}
		rid := role.ID
		admin := models.User{
			Username: "admin",
			RoleID:   &rid,
		}
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
		admin.HashedPassword = hashedPassword
		db.Create(&admin)
		log.Println("Seeded admin user: username=admin, password=admin123")
	}
	// Ensure admin has a one-to-one profile
	var admin models.User
	if err := db.Where("username = ?", "admin").First(&admin).Error; err != nil {
		log.Printf("failed to find admin user after seeding: %v", err)
		return
	}
	var pcount int64
	db.Model(&models.Profile{}).Where("user_id = ?", admin.ID).Count(&pcount)
	if pcount == 0 {
		profile := models.Profile{UserID: admin.ID, Name: "Administrator", Email: "admin@example.com"}
		if err := db.Create(&profile).Error; err != nil {
			log.Printf("failed to create profile for admin: %v", err)
		} else {
			log.Println("Seeded admin profile for user id:", admin.ID)
		}
	}
}
