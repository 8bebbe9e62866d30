package models

import (
	"time"
)

const (
	RoleCustomer = "Customer"
	RoleAdmin    = "Admin"
)

// DefaultBalance is credited to every account at registration.
const DefaultBalance = 100000.00

type User struct {
	UID          uint    `gorm:"primaryKey;autoIncrement"  json:"uid"`
	Username     string  `gorm:"unique;not null"           json:"username"`
	Email        string  `gorm:"unique;not null"           json:"email"`
	PasswordHash string  `gorm:"not null"                  json:"-"`
	Phone        string  `gorm:"not null"                  json:"phone"`
	Role         string  `gorm:"not null;default:Customer" json:"role"`
	Balance      float64 `gorm:"not null"                  json:"balance"`
}

// Session is the server-side record of one issued token. ExpiresAt always
// equals the exp claim inside Token; both are set from one computation at
// login.
type Session struct {
	SID       string    `gorm:"primaryKey;size:36" json:"sid"`
	Token     string    `gorm:"unique;not null"    json:"token"`
	UserUID   uint      `gorm:"index;not null"     json:"user_uid"`
	ExpiresAt time.Time `gorm:"index;not null"     json:"expires_at"`
}
