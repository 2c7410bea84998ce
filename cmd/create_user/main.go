// create_user bootstraps an account without going through the API: useful for
// seeding reviewers and for test environments. Pass -admin for the reviewer
// role and -verified to skip the KYC flow entirely (legacy imports).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/Banyel3/iayos-sub003/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	admin := flag.Bool("admin", false, "grant the administrator role (KYC reviewer)")
	verified := flag.Bool("verified", false, "mark the account verified without a submission")
	flag.Parse()
	if flag.NArg() < 2 {
		fmt.Println("usage: create_user [-admin] [-verified] <username> <password>")
		os.Exit(2)
	}
	username := flag.Arg(0)
	password := flag.Arg(1)

	dsn := os.Getenv("DB_DSN")
	if strings.TrimSpace(dsn) == "" {
		log.Fatal("DB_DSN not set in environment")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}

	roleName, roleDesc := "user", "regular user"
	if *admin {
		roleName, roleDesc = "administrator", "KYC reviewer"
	}
	var role models.Role
	if err := db.Where("name = ?", roleName).
		FirstOrCreate(&role, models.Role{Name: roleName, Description: roleDesc}).Error; err != nil {
		log.Fatalf("ensure role: %v", err)
	}

	var existing models.User
	if err := db.Where("username = ?", username).First(&existing).Error; err == nil {
		fmt.Printf("user %s already exists (id=%d verified=%v)\n", username, existing.ID, existing.Verified)
		os.Exit(0)
	}

	hpw, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("bcrypt failed: %v", err)
	}
	rid := role.ID
	user := models.User{Username: username, HashedPassword: hpw, RoleID: &rid, Verified: *verified}
	if err := db.Create(&user).Error; err != nil {
		log.Fatalf("failed to create user: %v", err)
	}
	if err := db.Create(&models.Profile{UserID: user.ID, Name: username}).Error; err != nil {
		log.Printf("warning: failed to create profile: %v", err)
	}
	fmt.Printf("created user %s id=%d role=%s verified=%v\n", username, user.ID, roleName, user.Verified)
}
