package domain

import (
	"time"
)

type Role string

const (
	RoleProfessor Role = "professor"
	RoleAdmin     Role = "admin"
)

type Professor struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	FullName   string    `json:"fullName"`
	Email      string    `json:"email"`
	Department string    `json:"department"`
	Role       Role      `json:"role"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	Version    int32     `json:"-"`
}
