package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/resumax/internal/ai"
	"github.com/spigell/resumax/internal/chat"
	"github.com/spigell/resumax/internal/store"
)

type fakeGenerator struct {
	mu       sync.Mutex
	requests []ai.Request
	respond  func(call int, req ai.Request) (ai.Outcome, error)
}

func (f *fakeGenerator) Generate(_ context.Context, req ai.Request) (ai.Outcome, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	call := len(f.requests)
	f.mu.Unlock()

	if f.respond == nil {
		return ai.Outcome{Kind: ai.KindText, Text: fmt.Sprintf("reply %d", call)}, nil
	}
	return f.respond(call, req)
}

func (f *fakeGenerator) Model() string { return "fake-model" }

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type flakyStore struct {
	*store.Memory
	getErr error
	// getErrType limits getErr to one record type when set.
	getErrType store.RecordType
	putErr     error
	puts       int
}

func (s *flakyStore) Get(ctx context.Context, userID string, typ store.RecordType) (*store.Record, error) {
	if s.getErr != nil && (s.getErrType == "" || s.getErrType == typ) {
		return nil, s.getErr
	}
	return s.Memory.Get(ctx, userID, typ)
}

func (s *flakyStore) Put(ctx context.Context, rec *store.Record) error {
	s.puts++
	if s.putErr != nil {
		return s.putErr
	}
	return s.Memory.Put(ctx, rec)
}

func newTestService(st store.Store, gen ai.Generator, log *zap.Logger) (*Service, *store.Repository) {
	repo := store.NewRepository(st, 10)
	clock := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	ids := 0

	svc := New(repo, gen, nil, log,
		WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
		WithIDs(func() string {
			ids++
			return fmt.Sprintf("turn-%d", ids)
		}),
	)
	return svc, repo
}

func TestReplyValidatesBeforeAnyCall(t *testing.T) {
	st := &flakyStore{Memory: store.NewMemory()}
	gen := &fakeGenerator{}
	svc, _ := newTestService(st, gen, nil)

	cases := []Request{
		{UserID: "u1", Message: "   "},
		{UserID: "", Message: "Hi"},
	}
	for _, req := range cases {
		_, err := svc.Reply(context.Background(), req)
		if !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %+v, got %v", req, err)
		}
	}

	if gen.calls() != 0 || st.puts != 0 {
		t.Fatalf("expected no downstream calls, got generate=%d put=%d", gen.calls(), st.puts)
	}
}

func TestReplyPersistsMergedTranscript(t *testing.T) {
	gen := &fakeGenerator{}
	svc, repo := newTestService(store.NewMemory(), gen, nil)
	ctx := context.Background()

	reply, err := svc.Reply(ctx, Request{UserID: "u1", Message: "Hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Text != "reply 1" || reply.Kind != ai.KindText || !reply.Persisted {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	stored, err := repo.Transcript(ctx, "u1")
	if err != nil {
		t.Fatalf("load transcript: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored turns, got %d", len(stored))
	}
	if stored[0].Role != chat.RoleUser || stored[0].Content != "Hi" || stored[0].ID != "turn-1" {
		t.Fatalf("unexpected user turn: %+v", stored[0])
	}
	if stored[1].Role != chat.RoleModel || stored[1].Content != "reply 1" {
		t.Fatalf("unexpected model turn: %+v", stored[1])
	}
	if !reply.Timestamp.Equal(stored[1].Timestamp) {
		t.Fatalf("reply timestamp %v does not match model turn %v", reply.Timestamp, stored[1].Timestamp)
	}
}

func TestReplyKeepsRetentionWindow(t *testing.T) {
	gen := &fakeGenerator{}
	svc, repo := newTestService(store.NewMemory(), gen, nil)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if _, err := svc.Reply(ctx, Request{UserID: "u1", Message: fmt.Sprintf("q%d", i)}); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}

	stored, _ := repo.Transcript(ctx, "u1")
	if len(stored) != 10 {
		t.Fatalf("expected transcript capped at 10, got %d", len(stored))
	}
	if stored[0].Content != "q2" || stored[9].Content != "reply 7" {
		t.Fatalf("expected most recent turns in order, got first=%q last=%q", stored[0].Content, stored[9].Content)
	}

	last := gen.requests[len(gen.requests)-1]
	if len(last.History) != 10 {
		t.Fatalf("expected the model to see the stored transcript, got %d turns", len(last.History))
	}
}

func TestReplayAppendsTwoTurnsAndQueriesAgain(t *testing.T) {
	gen := &fakeGenerator{}
	svc, repo := newTestService(store.NewMemory(), gen, nil)
	ctx := context.Background()

	seed := make([]chat.Turn, 0, 9)
	for i := 0; i < 9; i++ {
		seed = append(seed, chat.Turn{ID: fmt.Sprint(i), Role: chat.RoleUser, Content: fmt.Sprint(i)})
	}
	if err := repo.SaveTranscript(ctx, "u1", seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	req := Request{UserID: "u1", Message: "same question"}
	for i := 0; i < 2; i++ {
		if _, err := svc.Reply(ctx, req); err != nil {
			t.Fatalf("replay %d: %v", i, err)
		}
	}

	if gen.calls() != 2 {
		t.Fatalf("expected every replay to reach the model, got %d calls", gen.calls())
	}

	stored, _ := repo.Transcript(ctx, "u1")
	if len(stored) != 10 {
		t.Fatalf("expected 10 turns, got %d", len(stored))
	}
	if stored[0].Content != "3" {
		t.Fatalf("expected oldest kept turn to be 3, got %q", stored[0].Content)
	}
	if stored[6].Content != "same question" || stored[8].Content != "same question" {
		t.Fatalf("unexpected tail: %+v", stored[6:])
	}
}

func TestReplySafetyBlockIsStored(t *testing.T) {
	const apology = "The response was blocked by safety filters."
	gen := &fakeGenerator{respond: func(int, ai.Request) (ai.Outcome, error) {
		return ai.Outcome{Kind: ai.KindSafetyBlocked, Text: apology, Reason: "SAFETY"}, nil
	}}
	svc, repo := newTestService(store.NewMemory(), gen, nil)
	ctx := context.Background()

	reply, err := svc.Reply(ctx, Request{UserID: "u1", Message: "something unsafe"})
	if err != nil {
		t.Fatalf("safety block must not be an error: %v", err)
	}
	if reply.Text != apology || reply.Kind != ai.KindSafetyBlocked {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	stored, _ := repo.Transcript(ctx, "u1")
	if len(stored) != 2 || stored[1].Content != apology {
		t.Fatalf("expected transcript to grow by 2 with the apology, got %+v", stored)
	}
}

func TestReplyGenerationFailureSkipsPersist(t *testing.T) {
	st := &flakyStore{Memory: store.NewMemory()}
	gen := &fakeGenerator{respond: func(int, ai.Request) (ai.Outcome, error) {
		return ai.Outcome{}, errors.New("attempts exhausted")
	}}
	svc, _ := newTestService(st, gen, nil)

	_, err := svc.Reply(context.Background(), Request{UserID: "u1", Message: "Hi"})

	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if genErr.Model != "fake-model" || !strings.Contains(err.Error(), "attempts exhausted") {
		t.Fatalf("unexpected error details: %v", err)
	}
	if st.puts != 0 {
		t.Fatalf("expected no transcript write, got %d", st.puts)
	}
}

func TestReplySurvivesStorageFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	st := &flakyStore{
		Memory:     store.NewMemory(),
		getErr:     errors.New("read timeout"),
		getErrType: store.RecordUserData,
		putErr:     errors.New("write throttled"),
	}
	gen := &fakeGenerator{}
	svc, _ := newTestService(st, gen, zap.New(core))

	reply, err := svc.Reply(context.Background(), Request{UserID: "u1", Message: "Hi", RequestID: "req-1"})
	if err != nil {
		t.Fatalf("storage failures must not fail the turn: %v", err)
	}
	if reply.Text != "reply 1" || reply.Persisted {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if len(reply.History) != 2 {
		t.Fatalf("expected the merged history in the reply, got %d turns", len(reply.History))
	}

	saveLogs := logs.FilterMessage("failed to save chat history, continuing without persistence").All()
	if len(saveLogs) != 1 {
		t.Fatalf("expected one save warning, got %d", len(saveLogs))
	}
	if got := saveLogs[0].ContextMap()["request_id"]; got != "req-1" {
		t.Fatalf("expected request id on log entry, got %v", got)
	}
	if logs.FilterMessage("failed to load user data").Len() != 1 {
		t.Fatalf("expected user data load warning to be logged")
	}
}

func TestReplyKeepsHistoryWhenItCannotBeRead(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	st := &flakyStore{Memory: store.NewMemory()}
	gen := &fakeGenerator{}
	svc, repo := newTestService(st, gen, zap.New(core))
	ctx := context.Background()

	seed := make([]chat.Turn, 0, 8)
	for i := 0; i < 8; i++ {
		seed = append(seed, chat.Turn{ID: fmt.Sprint(i), Role: chat.RoleUser, Content: fmt.Sprint(i)})
	}
	if err := repo.SaveTranscript(ctx, "u1", seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	putsBefore := st.puts

	st.getErr = errors.New("read timeout")
	st.getErrType = store.RecordChatHistory

	reply, err := svc.Reply(ctx, Request{UserID: "u1", Message: "Hi"})
	if err != nil {
		t.Fatalf("a failed read must not fail the turn: %v", err)
	}
	if reply.Text != "reply 1" || reply.Persisted {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if st.puts != putsBefore {
		t.Fatalf("expected no transcript write after a failed read, got %d", st.puts-putsBefore)
	}
	if logs.FilterMessage("failed to load chat history, answering without it").Len() != 1 {
		t.Fatalf("expected load warning to be logged")
	}
	if logs.FilterMessage("skipping chat history save, stored history could not be read").Len() != 1 {
		t.Fatalf("expected skipped save to be logged")
	}

	st.getErr = nil
	stored, err := repo.Transcript(ctx, "u1")
	if err != nil {
		t.Fatalf("load transcript: %v", err)
	}
	if len(stored) != 8 || stored[7].Content != "7" {
		t.Fatalf("expected the 8 stored turns to survive, got %d", len(stored))
	}
}

func TestReplyUsesStoredContext(t *testing.T) {
	gen := &fakeGenerator{}
	svc, repo := newTestService(store.NewMemory(), gen, nil)
	ctx := context.Background()

	if err := repo.SaveUserData(ctx, "u1", &store.UserData{
		FormData:        map[string]any{"school": "Riverside College", "major": "Economics"},
		Recommendations: map[string]any{"strengths": []any{"from-user-data"}},
	}); err != nil {
		t.Fatalf("save user data: %v", err)
	}
	if err := repo.SaveResume(ctx, "u1", &store.ResumeData{
		ResumeText:      "Five years of data analysis",
		Recommendations: map[string]any{"strengths": []any{"from-resume"}},
	}); err != nil {
		t.Fatalf("save resume: %v", err)
	}

	if _, err := svc.Reply(ctx, Request{UserID: "u1", Message: "What next?"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	instruction := gen.requests[0].SystemInstruction
	for _, want := range []string{"Riverside College", "Five years of data analysis", "from-resume"} {
		if !strings.Contains(instruction, want) {
			t.Fatalf("expected instruction to contain %q:\n%s", want, instruction)
		}
	}
	if strings.Contains(instruction, "from-user-data") {
		t.Fatalf("resume recommendations should win over user-data ones:\n%s", instruction)
	}

	if _, err := svc.Reply(ctx, Request{
		UserID:          "u1",
		Message:         "And now?",
		Recommendations: map[string]any{"strengths": "from-request"},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(gen.requests[1].SystemInstruction, "from-request") {
		t.Fatalf("request recommendations should win:\n%s", gen.requests[1].SystemInstruction)
	}
}

func TestReplyNewUserScenario(t *testing.T) {
	gen := &fakeGenerator{}
	svc, _ := newTestService(store.NewMemory(), gen, nil)

	_, err := svc.Reply(context.Background(), Request{
		UserID:  "u1",
		Message: "Hi",
		Profile: map[string]any{"school": "X"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	instruction := gen.requests[0].SystemInstruction
	if !strings.Contains(instruction, "X") || !strings.Contains(instruction, "No recommendations available yet.") {
		t.Fatalf("unexpected instruction:\n%s", instruction)
	}
	if len(gen.requests[0].History) != 0 {
		t.Fatalf("expected empty history for a new user")
	}
}

func TestReplySeedsFromPreviousChats(t *testing.T) {
	gen := &fakeGenerator{}
	svc, repo := newTestService(store.NewMemory(), gen, nil)
	ctx := context.Background()

	previous := []chat.Turn{
		{Role: chat.RoleUser, Content: "earlier question"},
		{Role: chat.RoleModel, Content: "earlier answer"},
	}
	if _, err := svc.Reply(ctx, Request{UserID: "u1", Message: "Hi", PreviousChats: previous}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(gen.requests[0].History) != 2 {
		t.Fatalf("expected client history to be sent, got %d", len(gen.requests[0].History))
	}
	stored, _ := repo.Transcript(ctx, "u1")
	if len(stored) != 4 || stored[0].Content != "earlier question" {
		t.Fatalf("unexpected stored transcript: %+v", stored)
	}

	// once a transcript exists, stored history wins over the client copy
	if _, err := svc.Reply(ctx, Request{UserID: "u1", Message: "again", PreviousChats: previous}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gen.requests[1].History) != 4 {
		t.Fatalf("expected stored history, got %d turns", len(gen.requests[1].History))
	}
}

// Two overlapping turns for one user both read the same transcript and the
// later write replaces the earlier one, so one exchange is lost.
func TestConcurrentRepliesForOneUserLoseAnUpdate(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(2)
	release := make(chan struct{})

	gen := &fakeGenerator{respond: func(call int, _ ai.Request) (ai.Outcome, error) {
		arrived.Done()
		<-release
		return ai.Outcome{Kind: ai.KindText, Text: fmt.Sprintf("reply %d", call)}, nil
	}}

	repo := store.NewRepository(store.NewMemory(), 10)
	svc := New(repo, gen, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Reply(ctx, Request{UserID: "u1", Message: fmt.Sprintf("q%d", i)})
			errs <- err
		}(i)
	}

	arrived.Wait()
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	stored, _ := repo.Transcript(ctx, "u1")
	if len(stored) != 2 {
		t.Fatalf("expected last writer to win with 2 turns, got %d", len(stored))
	}
}
