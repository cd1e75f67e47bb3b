package note

import "time"

// DefaultColor is used when a note is created without a color.
const DefaultColor = "yellow"

// Colors lists the accepted note colors.
var Colors = []string{"yellow", "blue", "green", "pink", "orange", "purple"}

// Note is a sticky note, either personal or pinned to a project.
type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ProjectID string    `json:"project_id,omitempty"`
	Content   string    `json:"content"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateNoteInput struct {
	ProjectID string `json:"project_id"`
	Content   string `json:"content"`
	Color     string `json:"color"`
}

type UpdateNoteInput struct {
	Content *string `json:"content,omitempty"`
	Color   *string `json:"color,omitempty"`
}

// ListParams paginates notes. ProjectID selects a project's notes instead of
// the caller's own.
type ListParams struct {
	ProjectID string
	Cursor    string
	Limit     int
}
