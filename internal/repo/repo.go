package repo

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrDuplicateUser   = errors.New("username or email already exists")
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
)

type GormRepo struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *GormRepo {
	return &GormRepo{DB: db}
}
