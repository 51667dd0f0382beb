package domain

// BootstrapData seeds an empty installation: the built-in roles and a first
// administrator holding RoleAdmin.
type BootstrapData struct {
	AdminEmail    string
	AdminPassword string
	Roles         []string
}
