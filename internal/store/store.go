// Package store persists per-user documents keyed by user id and record type.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// RecordType discriminates the documents kept under one user id.
type RecordType string

const (
	RecordUserData    RecordType = "user-data"
	RecordResume      RecordType = "resume-data"
	RecordChatHistory RecordType = "chat-history"
)

// ErrNotFound is returned by Get when no record exists. A missing record is a
// normal state for new users.
var ErrNotFound = errors.New("record not found")

type Record struct {
	UserID    string
	Type      RecordType
	Data      json.RawMessage
	UpdatedAt time.Time
}

// Store is a document store. Put replaces the whole record; concurrent Puts
// for the same key are last-writer-wins.
type Store interface {
	Get(ctx context.Context, userID string, typ RecordType) (*Record, error)
	Put(ctx context.Context, rec *Record) error
	List(ctx context.Context, userID string) ([]*Record, error)
	Close() error
}
