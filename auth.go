package main

import (
	"fmt"
	"strings"

	"github.com/Banyel3/iayos-sub003/models"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 6

// Register creates an account with the default "user" role. New accounts
// start unverified; only a KYC decision or a reviewer flips that flag.
func Register(username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username required")
	}
	if len(password) < minPasswordLen {
		return fmt.Errorf("password too short (min %d)", minPasswordLen)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	role, err := ensureRole("user", "regular user")
	if err != nil {
		return err
	}
	rid := role.ID
	user := models.User{Username: username, HashedPassword: hashed, RoleID: &rid}
	if err := db.Create(&user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("user already exists")
		}
		return err
	}
	return nil
}

// Login checks the credentials. The error is the same for an unknown user
// and a wrong password.
func Login(username, password string) (models.User, error) {
	username = strings.TrimSpace(username)
	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		return models.User{}, fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(password)); err != nil {
		return models.User{}, fmt.Errorf("invalid credentials")
	}
	return user, nil
}

func ensureRole(name, description string) (models.Role, error) {
	var role models.Role
	err := db.Where("name = ?", name).
		FirstOrCreate(&role, models.Role{Name: name, Description: description}).Error
	if err != nil {
		return models.Role{}, fmt.Errorf("ensure role %s: %w", name, err)
	}
	return role, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "already exists")
}
