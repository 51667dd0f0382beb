package domain

import "time"

// Built-in role names.
const (
	RoleAdmin   = "Admin"
	RoleTeacher = "Teacher"
	RoleStaff   = "Staff"
)

type Role struct {
	ID        string
	Name      string
	CreatedAt time.Time
}
