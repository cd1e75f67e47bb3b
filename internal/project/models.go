package project

import (
	"slices"
	"time"
)

// Project statuses.
const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

// Role names seeded by the initial migration.
const (
	RoleOwner  = "owner"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// Permissions granted through roles.
const (
	PermProjectView   = "project.view"
	PermProjectEdit   = "project.edit"
	PermProjectDelete = "project.delete"
	PermMembersManage = "members.manage"
	PermTasksView     = "tasks.view"
	PermTasksEdit     = "tasks.edit"
	PermNotesView     = "notes.view"
	PermNotesEdit     = "notes.edit"
)

// Project is a workspace owned by one user and shared with members.
type Project struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Role is a named set of permissions.
type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// HasPermissionTo reports whether the role grants permission.
func (r *Role) HasPermissionTo(permission string) bool {
	return r != nil && slices.Contains(r.Permissions, permission)
}

// Member is a user's membership in a project.
type Member struct {
	ProjectID string    `json:"project_id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateProjectInput holds the fields required to create a project.
type CreateProjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateProjectInput holds optional fields for a partial project update.
type UpdateProjectInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
}

// ListParams controls cursor-based pagination for listing projects.
type ListParams struct {
	Cursor string
	Limit  int
	Status string
}
