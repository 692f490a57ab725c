package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/resumax/internal/chat"
)

// ChatHistory is the chat-history document.
type ChatHistory struct {
	Turns     []chat.Turn `json:"chatHistory"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// UserData is the user-data document written by the profile form. Its maps
// are kept as sent by the client.
type UserData struct {
	FormData            map[string]any `json:"formData"`
	Recommendations     map[string]any `json:"recommendations"`
	CompletedActivities map[string]any `json:"completedActivities"`
	LastUpdated         time.Time      `json:"lastUpdated"`
}

// ResumeData is the resume-data document written after a resume upload.
type ResumeData struct {
	ResumeText      string         `json:"resumeText"`
	Recommendations map[string]any `json:"recommendations"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// Repository gives typed access to the documents of a Store.
type Repository struct {
	store     Store
	retention int
	now       func() time.Time
}

// NewRepository wraps s. Saved transcripts keep at most retention turns;
// non-positive retention uses chat.DefaultRetention.
func NewRepository(s Store, retention int) *Repository {
	if retention <= 0 {
		retention = chat.DefaultRetention
	}
	return &Repository{store: s, retention: retention, now: func() time.Time { return time.Now().UTC() }}
}

func (r *Repository) Retention() int { return r.retention }

// Transcript returns the stored turns, or nil for a user without history.
func (r *Repository) Transcript(ctx context.Context, userID string) ([]chat.Turn, error) {
	var doc ChatHistory
	if err := r.load(ctx, userID, RecordChatHistory, &doc); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return doc.Turns, nil
}

// SaveTranscript replaces the stored transcript with the last Retention turns.
func (r *Repository) SaveTranscript(ctx context.Context, userID string, turns []chat.Turn) error {
	now := r.now()
	doc := ChatHistory{Turns: chat.Tail(turns, r.retention), UpdatedAt: now}
	return r.save(ctx, userID, RecordChatHistory, doc, now)
}

// UserData returns ErrNotFound when the user never saved a profile.
func (r *Repository) UserData(ctx context.Context, userID string) (*UserData, error) {
	var doc UserData
	if err := r.load(ctx, userID, RecordUserData, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *Repository) SaveUserData(ctx context.Context, userID string, doc *UserData) error {
	now := r.now()
	doc.LastUpdated = now
	return r.save(ctx, userID, RecordUserData, doc, now)
}

// Resume returns ErrNotFound when no resume was uploaded.
func (r *Repository) Resume(ctx context.Context, userID string) (*ResumeData, error) {
	var doc ResumeData
	if err := r.load(ctx, userID, RecordResume, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *Repository) SaveResume(ctx context.Context, userID string, doc *ResumeData) error {
	now := r.now()
	doc.UpdatedAt = now
	return r.save(ctx, userID, RecordResume, doc, now)
}

func (r *Repository) load(ctx context.Context, userID string, typ RecordType, target any) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("user id is required")
	}

	rec, err := r.store.Get(ctx, userID, typ)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("get %s: %w", typ, err)
	}

	if err := json.Unmarshal(rec.Data, target); err != nil {
		return fmt.Errorf("decode %s: %w", typ, err)
	}
	return nil
}

func (r *Repository) save(ctx context.Context, userID string, typ RecordType, doc any, now time.Time) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("user id is required")
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}

	if err := r.store.Put(ctx, &Record{UserID: userID, Type: typ, Data: data, UpdatedAt: now}); err != nil {
		return fmt.Errorf("put %s: %w", typ, err)
	}
	return nil
}
