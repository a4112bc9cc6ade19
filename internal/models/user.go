package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	gorm.Model
	Username     string            `gorm:"uniqueIndex;size:64;not null"`
	Email        string            `gorm:"uniqueIndex;size:120;not null"`
	Password     string            `gorm:"size:256;not null" json:"-"`
	FullName     string            `gorm:"size:120"`
	Phone        string            `gorm:"size:20"`
	Role         string            `gorm:"default:'user'"`
	IPAddress    string            `gorm:"size:45"`
	TokenVersion int               `gorm:"default:1"`
	LoanApps     []LoanApplication `gorm:"foreignKey:UserID" json:"-"`
	LastLoginAt  *time.Time
}

// DisplayName is the name used to greet the user in notifications.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

type RegisterInput struct {
	Username        string `json:"username" form:"username"`
	Email           string `json:"email" form:"email"`
	Password        string `json:"password" form:"password"`
	ConfirmPassword string `json:"confirm_password" form:"confirm_password"`
}

type LoginInput struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}
