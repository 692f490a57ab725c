package chat

import (
	"fmt"
	"testing"
	"time"
)

func makeTurns(n int) []Turn {
	turns := make([]Turn, 0, n)
	for i := 0; i < n; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleModel
		}
		turns = append(turns, Turn{ID: fmt.Sprint(i), Role: role, Content: fmt.Sprintf("turn %d", i)})
	}
	return turns
}

func TestMergeKeepsMostRecentInOrder(t *testing.T) {
	t.Parallel()

	for _, keep := range []int{1, 2, 5, 10} {
		for length := 0; length <= 14; length++ {
			history := makeTurns(length)
			user := Turn{ID: "u", Role: RoleUser, Content: "question"}
			model := Turn{ID: "m", Role: RoleModel, Content: "answer"}

			merged := Merge(history, keep, user, model)

			want := min(length+2, keep)
			if len(merged) != want {
				t.Fatalf("keep=%d len=%d: expected %d turns, got %d", keep, length, want, len(merged))
			}

			full := append(append([]Turn{}, history...), user, model)
			offset := len(full) - want
			for i, turn := range merged {
				if turn.ID != full[offset+i].ID {
					t.Fatalf("keep=%d len=%d: position %d holds %q, want %q", keep, length, i, turn.ID, full[offset+i].ID)
				}
			}
		}
	}
}

func TestMergeDoesNotMutateHistory(t *testing.T) {
	history := make([]Turn, 2, 8)
	copy(history, makeTurns(2))

	_ = Merge(history, 10, Turn{ID: "u"}, Turn{ID: "m"})
	other := Merge(history, 10, Turn{ID: "x"})

	if len(history) != 2 {
		t.Fatalf("history length changed to %d", len(history))
	}
	if other[2].ID != "x" {
		t.Fatalf("expected independent merge result, got %q", other[2].ID)
	}
}

func TestMergeWithoutCap(t *testing.T) {
	merged := Merge(makeTurns(12), 0, Turn{ID: "u"})
	if len(merged) != 13 {
		t.Fatalf("expected uncapped merge, got %d", len(merged))
	}
}

func TestTail(t *testing.T) {
	history := makeTurns(7)

	got := Tail(history, 5)
	if len(got) != 5 || got[0].ID != "2" || got[4].ID != "6" {
		t.Fatalf("unexpected tail: %+v", got)
	}

	if got := Tail(history, 0); len(got) != 7 {
		t.Fatalf("expected full history for n=0, got %d", len(got))
	}
	if got := Tail(nil, 5); len(got) != 0 {
		t.Fatalf("expected empty tail, got %d", len(got))
	}
}

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"user":      RoleUser,
		" USER ":    RoleUser,
		"model":     RoleModel,
		"ai":        RoleModel,
		"assistant": RoleModel,
		"":          RoleModel,
	}
	for in, want := range cases {
		if got := ParseRole(in); got != want {
			t.Fatalf("ParseRole(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTurnTimestampSurvivesMerge(t *testing.T) {
	ts := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	merged := Merge(nil, 10, Turn{Role: RoleUser, Content: "hi", Timestamp: ts})
	if !merged[0].Timestamp.Equal(ts) {
		t.Fatalf("timestamp lost: %v", merged[0].Timestamp)
	}
}
