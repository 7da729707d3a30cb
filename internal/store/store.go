// Package store provides the branch/message storage interface and SQLite implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rcliao/branch-memory/internal/model"
)

var (
	// ErrNotFound is returned when a branch, message or grant does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when a branch key is already taken in a chat.
	ErrExists = errors.New("already exists")
	// ErrCycle is returned when a parent assignment would make a branch its own ancestor.
	ErrCycle = errors.New("branch parent cycle")
)

// CreateBranchParams holds parameters for creating a branch.
type CreateBranchParams struct {
	ChatID      int64
	Key         string
	Name        string
	Description string
	ParentID    string // empty for a root branch
	Access      model.Access
	Inheritance model.Inheritance
	CreatedBy   int64
}

// UpdateBranchParams holds partial update fields for a branch. Nil fields are left unchanged.
type UpdateBranchParams struct {
	Key         *string
	Name        *string
	Description *string
	Access      *model.Access
	Inheritance *model.Inheritance
	ParentID    *string // pointer to "" detaches the branch to a root
}

// GrantParams holds parameters for granting or revoking branch permissions.
type GrantParams struct {
	BranchID  string
	UserID    int64
	Level     model.Level
	GrantedBy int64
	Remove    bool
}

// PutMessageParams holds parameters for storing a message.
type PutMessageParams struct {
	ChatID    int64
	BranchID  string
	UserID    int64
	Content   string
	Language  string
	CreatedAt time.Time // zero means now
}

// HistoryParams holds parameters for listing branch messages.
type HistoryParams struct {
	ChatID   int64
	BranchID string
	Limit    int
}

// Store defines the write-side storage interface used by command handlers.
type Store interface {
	// CreateBranch creates a branch and grants its creator owner access.
	CreateBranch(ctx context.Context, p CreateBranchParams) (*model.Branch, error)

	// UpdateBranch applies a partial update. Parent changes are cycle-checked.
	UpdateBranch(ctx context.Context, id string, p UpdateBranchParams) (*model.Branch, error)

	// SetStatus moves a branch to a soft lifecycle state.
	SetStatus(ctx context.Context, id string, status model.Status) error

	// Grant creates, replaces or removes a direct permission.
	Grant(ctx context.Context, p GrantParams) (*model.Grant, error)

	// PutMessage stores a message.
	PutMessage(ctx context.Context, p PutMessageParams) (*model.Message, error)

	// History returns the latest messages of a branch in chronological order.
	History(ctx context.Context, p HistoryParams) ([]model.Message, error)

	// Close closes the store.
	Close() error
}

var _ Store = (*SQLiteStore)(nil)
