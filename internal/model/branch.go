// Package model defines the core branch, message and tag types.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Access is the visibility class of a branch.
type Access string

const (
	AccessPublic    Access = "public"
	AccessProtected Access = "protected"
	AccessPrivate   Access = "private"
)

// ValidAccess are the allowed branch access types.
var ValidAccess = map[Access]bool{
	AccessPublic:    true,
	AccessProtected: true,
	AccessPrivate:   true,
}

// Inheritance controls whether ancestor grants apply to a branch.
// The empty value means no policy is attached.
type Inheritance string

const (
	InheritNone Inheritance = "NONE"
	InheritRead Inheritance = "READ"
	InheritFull Inheritance = "FULL"
)

// ValidInheritance are the allowed inheritance policies.
var ValidInheritance = map[Inheritance]bool{
	InheritNone: true,
	InheritRead: true,
	InheritFull: true,
}

// Status is the soft lifecycle state of a branch.
type Status string

const (
	StatusOpen     Status = "open"
	StatusClosed   Status = "closed"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
)

// ValidStatuses are the allowed branch states.
var ValidStatuses = map[Status]bool{
	StatusOpen:     true,
	StatusClosed:   true,
	StatusArchived: true,
	StatusDeleted:  true,
}

// Level is a branch permission level. Higher values include lower ones.
type Level int

const (
	LevelNone Level = iota
	LevelReader
	LevelWriter
	LevelAdmin
	LevelOwner
)

var levelNames = map[Level]string{
	LevelNone:   "none",
	LevelReader: "reader",
	LevelWriter: "writer",
	LevelAdmin:  "admin",
	LevelOwner:  "owner",
}

func (l Level) String() string {
	if n, ok := levelNames[l]; ok {
		return n
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name.
func (l *Level) UnmarshalText(b []byte) error {
	if string(b) == "none" {
		*l = LevelNone
		return nil
	}
	v, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// ParseLevel parses a level name (reader, writer, admin, owner).
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reader", "read":
		return LevelReader, nil
	case "writer", "write":
		return LevelWriter, nil
	case "admin":
		return LevelAdmin, nil
	case "owner":
		return LevelOwner, nil
	}
	return LevelNone, fmt.Errorf("invalid permission level %q (valid: reader, writer, admin, owner)", s)
}

// Branch is a named partition of a chat's message history.
type Branch struct {
	ID          string      `json:"id" yaml:"id"`
	ChatID      int64       `json:"chat_id" yaml:"chat_id"`
	Key         string      `json:"key" yaml:"key"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	ParentID    string      `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	SortOrder   int         `json:"sort_order" yaml:"sort_order"`
	Access      Access      `json:"access" yaml:"access"`
	Inheritance Inheritance `json:"inheritance,omitempty" yaml:"inheritance,omitempty"`
	Status      Status      `json:"status" yaml:"status"`
	CreatedBy   int64       `json:"created_by" yaml:"created_by"`
	CreatedAt   time.Time   `json:"created_at" yaml:"created_at"`
}

// Grant is an explicit permission of a user on a branch.
type Grant struct {
	BranchID  string    `json:"branch_id" yaml:"branch_id"`
	UserID    int64     `json:"user_id" yaml:"user_id"`
	Level     Level     `json:"level" yaml:"level"`
	GrantedBy int64     `json:"granted_by" yaml:"granted_by"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}
