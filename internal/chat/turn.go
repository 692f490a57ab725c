// Package chat holds the conversation transcript kept for every user.
package chat

import (
	"strings"
	"time"
)

// DefaultRetention is how many turns a stored transcript keeps.
const DefaultRetention = 10

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ParseRole maps the role vocabulary used by clients and older records onto
// the two roles a transcript knows about. Anything that is not the user is
// treated as the model.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user", "human":
		return RoleUser
	default:
		return RoleModel
	}
}

// Turn is a single immutable transcript entry.
type Turn struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Merge returns a new transcript holding history followed by turns, cut down
// to the most recent keep entries. history is never modified. A non-positive
// keep disables the cap.
func Merge(history []Turn, keep int, turns ...Turn) []Turn {
	merged := make([]Turn, 0, len(history)+len(turns))
	merged = append(merged, history...)
	merged = append(merged, turns...)
	return Tail(merged, keep)
}

// Tail returns the last n turns in their original order.
func Tail(history []Turn, n int) []Turn {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
