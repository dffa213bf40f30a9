package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"replay-analyzer/internal/parser"
	"replay-analyzer/internal/showdown"
)

const goodLog = `|player|p1|Alice|1|
|player|p2|Bob|1|
|poke|p1|Garchomp, M|
|poke|p2|Corviknight, M|
|start
|switch|p1a: Garchomp|Garchomp, M|100/100
|switch|p2a: Corviknight|Corviknight, M|100/100
|turn|1
|move|p1a: Garchomp|Earthquake|p2a: Corviknight
|-damage|p2a: Corviknight|66/100
|win|Alice`

const lobbyOnlyLog = `|player|p1|Alice|1|
|player|p2|Bob|1|`

type fakeSource struct {
	mu      sync.Mutex
	pages   map[int][]showdown.ReplayRef
	replays map[string]*showdown.Replay
	fetches []string
}

func (f *fakeSource) SearchReplays(ctx context.Context, format string, page int) ([]showdown.ReplayRef, error) {
	return f.pages[page], nil
}

func (f *fakeSource) FetchReplay(ctx context.Context, id string) (*showdown.Replay, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, id)
	f.mu.Unlock()
	r, ok := f.replays[id]
	if !ok {
		return nil, fmt.Errorf("replay not found: %s", id)
	}
	return r, nil
}

type fakeStore struct {
	mu     sync.Mutex
	saved  map[string]bool
	failOn string
}

func (f *fakeStore) SaveBattle(ctx context.Context, res *parser.Result) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if res.Meta.BattleID == f.failOn {
		return false, errors.New("store unavailable")
	}
	if f.saved == nil {
		f.saved = make(map[string]bool)
	}
	if f.saved[res.Meta.BattleID] {
		return false, nil
	}
	f.saved[res.Meta.BattleID] = true
	return true, nil
}

func replayFor(id, log string) *showdown.Replay {
	return &showdown.Replay{
		ID:         id,
		FormatID:   "gen9ou",
		Players:    []string{"Alice", "Bob"},
		Log:        log,
		UploadTime: 1700000000,
		Rating:     1400,
	}
}

func newTestSource(ids ...string) *fakeSource {
	src := &fakeSource{
		pages:   map[int][]showdown.ReplayRef{1: nil},
		replays: make(map[string]*showdown.Replay),
	}
	for _, id := range ids {
		src.pages[1] = append(src.pages[1], showdown.ReplayRef{ID: id, Format: "gen9ou", Rating: 1400})
		src.replays[id] = replayFor(id, goodLog)
	}
	return src
}

func TestRunStoresBattles(t *testing.T) {
	src := newTestSource("gen9ou-1", "gen9ou-2", "gen9ou-3")
	store := &fakeStore{}

	runner := NewRunner(src, store, Config{Format: "gen9ou", Pages: 1, WorkerCount: 2})
	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Fetched != 3 {
		t.Errorf("expected 3 fetched, got %d", summary.Fetched)
	}
	if summary.Stored != 3 {
		t.Errorf("expected 3 stored, got %d", summary.Stored)
	}
	if len(store.saved) != 3 {
		t.Errorf("expected 3 battles in store, got %d", len(store.saved))
	}
}

func TestRunDeduplicatesIDs(t *testing.T) {
	src := newTestSource("gen9ou-1")
	src.pages[1] = append(src.pages[1], showdown.ReplayRef{ID: "gen9ou-1", Format: "gen9ou", Rating: 1400})
	store := &fakeStore{}

	runner := NewRunner(src, store, Config{Format: "gen9ou", Pages: 1, WorkerCount: 1})
	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(src.fetches) != 1 {
		t.Errorf("expected 1 fetch, got %d", len(src.fetches))
	}
	if summary.Duplicates != 1 {
		t.Errorf("expected 1 duplicate, got %d", summary.Duplicates)
	}
}

func TestRunContinuesPastEmptyLog(t *testing.T) {
	src := newTestSource("gen9ou-1", "gen9ou-2")
	src.replays["gen9ou-1"] = replayFor("gen9ou-1", lobbyOnlyLog)
	store := &fakeStore{}

	runner := NewRunner(src, store, Config{Format: "gen9ou", Pages: 1, WorkerCount: 1})
	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.EmptyLogs != 1 {
		t.Errorf("expected 1 empty log, got %d", summary.EmptyLogs)
	}
	if summary.Stored != 1 {
		t.Errorf("expected 1 stored, got %d", summary.Stored)
	}
	if summary.ParseFailures != 0 {
		t.Errorf("empty log should not count as parse failure, got %d", summary.ParseFailures)
	}
}

func TestRunIsolatesStoreFailures(t *testing.T) {
	src := newTestSource("gen9ou-1", "gen9ou-2")
	store := &fakeStore{failOn: "gen9ou-1"}

	runner := NewRunner(src, store, Config{Format: "gen9ou", Pages: 1, WorkerCount: 1})
	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Stored != 1 {
		t.Errorf("expected the healthy battle stored, got %d", summary.Stored)
	}
}

func TestRunSkipsLowRating(t *testing.T) {
	src := newTestSource("gen9ou-1")
	src.pages[1] = append(src.pages[1], showdown.ReplayRef{ID: "gen9ou-low", Format: "gen9ou", Rating: 1000})
	src.replays["gen9ou-low"] = replayFor("gen9ou-low", goodLog)
	store := &fakeStore{}

	runner := NewRunner(src, store, Config{Format: "gen9ou", Pages: 1, WorkerCount: 1, MinRating: 1200})
	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.SkippedRating != 1 {
		t.Errorf("expected 1 skipped, got %d", summary.SkippedRating)
	}
	if _, ok := store.saved["gen9ou-low"]; ok {
		t.Error("low rated battle should not be stored")
	}
}

func TestEnqueueFeedsRun(t *testing.T) {
	src := newTestSource("gen9ou-1")
	src.replays["gen9ou-live"] = replayFor("gen9ou-live", goodLog)
	store := &fakeStore{}

	runner := NewRunner(src, store, Config{Format: "gen9ou", Pages: 1, WorkerCount: 1})
	runner.Enqueue("gen9ou-live")

	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Stored != 2 {
		t.Errorf("expected enqueued battle stored too, got %d", summary.Stored)
	}
}

type fakeNotifier struct {
	mu        sync.Mutex
	failures  []string
	summaries int
}

func (f *fakeNotifier) NotifyParseFailure(ctx context.Context, battleID string, parseErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, battleID)
	return nil
}

func (f *fakeNotifier) NotifyBatchSummary(ctx context.Context, s Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries++
	return nil
}

func TestNotifierReceivesSummaryAndFailures(t *testing.T) {
	src := newTestSource("gen9ou-1")
	src.replays["gen9ou-bad"] = replayFor("gen9ou-bad", "|start\n|turn|1\n|-damage|p1a: Ghost|50/100")
	src.pages[1] = append(src.pages[1], showdown.ReplayRef{ID: "gen9ou-bad", Format: "gen9ou", Rating: 1400})
	store := &fakeStore{}
	notifier := &fakeNotifier{}

	runner := NewRunner(src, store, Config{Format: "gen9ou", Pages: 1, WorkerCount: 1, Strict: true}).
		WithNotifier(notifier)

	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if notifier.summaries != 1 {
		t.Errorf("expected 1 summary notification, got %d", notifier.summaries)
	}
	if summary.ParseFailures != 1 {
		t.Errorf("expected 1 parse failure, got %d", summary.ParseFailures)
	}
	if len(notifier.failures) != 1 || notifier.failures[0] != "gen9ou-bad" {
		t.Errorf("expected failure notification for gen9ou-bad, got %v", notifier.failures)
	}
}
