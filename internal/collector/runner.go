package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"replay-analyzer/internal/cache"
	"replay-analyzer/internal/parser"
	"replay-analyzer/internal/showdown"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	DefaultWorkerCount  = 4
	ReplayChannelBuffer = 100
)

// ReplaySource is the slice of the replay API the runner needs.
type ReplaySource interface {
	SearchReplays(ctx context.Context, format string, page int) ([]showdown.ReplayRef, error)
	FetchReplay(ctx context.Context, id string) (*showdown.Replay, error)
}

// BattleStore persists parsed battles. SaveBattle reports false when the
// battle was already stored.
type BattleStore interface {
	SaveBattle(ctx context.Context, res *parser.Result) (bool, error)
}

// ReplayCache keeps raw replay payloads so battles can be re-parsed
// offline. Nil disables caching.
type ReplayCache interface {
	Put(ctx context.Context, r *cache.CachedReplay) error
	Get(ctx context.Context, id string) (*cache.CachedReplay, bool, error)
}

// Notifier receives collection milestones. Nil disables notifications.
type Notifier interface {
	NotifyParseFailure(ctx context.Context, battleID string, parseErr error) error
	NotifyBatchSummary(ctx context.Context, s Summary) error
}

// Config holds configuration for the runner
type Config struct {
	Format      string
	Pages       int
	WorkerCount int
	MinRating   int
	Strict      bool
}

// Summary is what one collection run produced.
type Summary struct {
	Format        string
	Pages         int
	Fetched       int64
	Parsed        int64
	Stored        int64
	Duplicates    int64
	EmptyLogs     int64
	ParseFailures int64
	SkippedRating int64
	Elapsed       time.Duration
}

// Runner pulls replay IDs from search pages (and any IDs fed through
// Enqueue), fetches each replay once and pushes the parsed battle into the
// store. One bad replay never stops the run.
type Runner struct {
	source   ReplaySource
	store    BattleStore
	cache    ReplayCache
	notifier Notifier

	format      string
	pages       int
	workerCount int
	minRating   int
	strict      bool

	// Deduplication across the whole run
	seen   *bloom.BloomFilter
	seenMu sync.Mutex

	replayJobs chan string
	extraIDs   chan string

	// Stats (atomic for thread safety)
	fetched       int64
	parsed        int64
	stored        int64
	duplicates    int64
	emptyLogs     int64
	parseFailures int64
	skippedRating int64
	startTime     time.Time

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewRunner creates a runner with a worker pool
func NewRunner(source ReplaySource, store BattleStore, cfg Config) *Runner {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.Pages <= 0 {
		cfg.Pages = 1
	}

	return &Runner{
		source:      source,
		store:       store,
		format:      cfg.Format,
		pages:       cfg.Pages,
		workerCount: cfg.WorkerCount,
		minRating:   cfg.MinRating,
		strict:      cfg.Strict,
		seen:        bloom.NewWithEstimates(500000, 0.001),
		replayJobs:  make(chan string, ReplayChannelBuffer),
		extraIDs:    make(chan string, ReplayChannelBuffer),
	}
}

// WithCache attaches a raw replay cache
func (r *Runner) WithCache(c ReplayCache) *Runner {
	r.cache = c
	return r
}

// WithNotifier attaches a notifier for failures and run summaries
func (r *Runner) WithNotifier(n Notifier) *Runner {
	r.notifier = n
	return r
}

// Enqueue feeds an externally discovered battle ID into the run. Safe to
// call from other goroutines while Run is active.
func (r *Runner) Enqueue(id string) {
	select {
	case r.extraIDs <- id:
	default:
		log.Printf("[Runner] Dropping %s, queue full", id)
	}
}

// Run performs one collection pass and returns its summary. It may be
// called again for further passes; the dedupe filter carries over, the
// counters start fresh.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.replayJobs = make(chan string, ReplayChannelBuffer)
	atomic.StoreInt64(&r.fetched, 0)
	atomic.StoreInt64(&r.parsed, 0)
	atomic.StoreInt64(&r.stored, 0)
	atomic.StoreInt64(&r.duplicates, 0)
	atomic.StoreInt64(&r.emptyLogs, 0)
	atomic.StoreInt64(&r.parseFailures, 0)
	atomic.StoreInt64(&r.skippedRating, 0)
	r.startTime = time.Now()

	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}

	err := r.producerLoop(ctx)

	close(r.replayJobs)
	r.wg.Wait()

	summary := r.summary()
	r.printSummary(summary)

	if r.notifier != nil {
		if nerr := r.notifier.NotifyBatchSummary(ctx, summary); nerr != nil {
			log.Printf("[Runner] Failed to send summary: %v", nerr)
		}
	}
	return summary, err
}

// producerLoop walks search pages and drains the extra ID channel, then
// dispatches every unseen ID to the workers.
func (r *Runner) producerLoop(ctx context.Context) error {
	for page := 1; page <= r.pages; page++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		refs, err := r.source.SearchReplays(ctx, r.format, page)
		if err != nil {
			return fmt.Errorf("search page %d failed: %w", page, err)
		}
		if len(refs) == 0 {
			log.Printf("[Producer] Page %d empty, stopping search", page)
			break
		}

		elapsed := time.Since(r.startTime)
		fmt.Printf("\n[Page %d/%d] [%s] %d replays found\n",
			page, r.pages, formatDuration(elapsed), len(refs))

		for _, ref := range refs {
			if ref.Rating > 0 && ref.Rating < r.minRating {
				atomic.AddInt64(&r.skippedRating, 1)
				continue
			}
			if !r.dispatch(ctx, ref.ID) {
				return ctx.Err()
			}
		}

		// Pick up anything the room listener found in the meantime
		if err := r.drainExtras(ctx); err != nil {
			return err
		}
	}
	return r.drainExtras(ctx)
}

func (r *Runner) drainExtras(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id := <-r.extraIDs:
			if !r.dispatch(ctx, id) {
				return ctx.Err()
			}
		default:
			return nil
		}
	}
}

// dispatch hands an unseen ID to the workers. Returns false when the
// context is cancelled.
func (r *Runner) dispatch(ctx context.Context, id string) bool {
	if r.hasSeen(id) {
		atomic.AddInt64(&r.duplicates, 1)
		return true
	}
	r.markSeen(id)

	select {
	case r.replayJobs <- id:
		return true
	case <-ctx.Done():
		return false
	}
}

// worker fetches and processes replays until the job channel closes
func (r *Runner) worker(ctx context.Context, id int) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case battleID, ok := <-r.replayJobs:
			if !ok {
				return
			}
			if err := r.processReplay(ctx, battleID); err != nil {
				log.Printf("  [Worker %d] %s: %v", id, battleID, err)
			}
		}
	}
}

// processReplay runs the full fetch, parse, store path for one battle.
// Failures are counted, reported, and contained to this battle.
func (r *Runner) processReplay(ctx context.Context, battleID string) error {
	input, err := r.fetchInput(ctx, battleID)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	atomic.AddInt64(&r.fetched, 1)

	res, err := parser.ParseWithOptions(input, parser.Options{Strict: r.strict})
	if err != nil {
		var empty *parser.EmptyLogError
		if errors.As(err, &empty) {
			atomic.AddInt64(&r.emptyLogs, 1)
			return nil
		}
		atomic.AddInt64(&r.parseFailures, 1)
		if r.notifier != nil {
			if nerr := r.notifier.NotifyParseFailure(ctx, battleID, err); nerr != nil {
				log.Printf("  [Worker] Failed to report %s: %v", battleID, nerr)
			}
		}
		return fmt.Errorf("parse failed: %w", err)
	}
	atomic.AddInt64(&r.parsed, 1)

	inserted, err := r.store.SaveBattle(ctx, res)
	if err != nil {
		return fmt.Errorf("store failed: %w", err)
	}
	if inserted {
		atomic.AddInt64(&r.stored, 1)
	} else {
		atomic.AddInt64(&r.duplicates, 1)
	}
	return nil
}

// fetchInput prefers the local cache and falls through to the API,
// caching what it fetched.
func (r *Runner) fetchInput(ctx context.Context, battleID string) (parser.Input, error) {
	if r.cache != nil {
		cached, ok, err := r.cache.Get(ctx, battleID)
		if err != nil {
			log.Printf("  [Cache] Read failed for %s: %v", battleID, err)
		} else if ok {
			return parser.Input{
				BattleID:   cached.ID,
				Format:     cached.Format,
				Log:        cached.Log,
				Rating:     cached.Rating,
				UploadedAt: time.Unix(cached.UploadTime, 0).UTC(),
			}, nil
		}
	}

	replay, err := r.source.FetchReplay(ctx, battleID)
	if err != nil {
		return parser.Input{}, err
	}

	if r.cache != nil {
		err := r.cache.Put(ctx, &cache.CachedReplay{
			ID:         replay.ID,
			Format:     replay.FormatID,
			Rating:     replay.Rating,
			UploadTime: replay.UploadTime,
			Log:        replay.Log,
		})
		if err != nil {
			log.Printf("  [Cache] Write failed for %s: %v", battleID, err)
		}
	}
	return replay.ParserInput(), nil
}

// Bloom filter helpers with mutex protection
func (r *Runner) hasSeen(id string) bool {
	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	return r.seen.TestString(id)
}

func (r *Runner) markSeen(id string) {
	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	r.seen.AddString(id)
}

// Reset clears dedupe state and counters between collection passes.
func (r *Runner) Reset() {
	r.seenMu.Lock()
	r.seen = bloom.NewWithEstimates(500000, 0.001)
	r.seenMu.Unlock()

	atomic.StoreInt64(&r.fetched, 0)
	atomic.StoreInt64(&r.parsed, 0)
	atomic.StoreInt64(&r.stored, 0)
	atomic.StoreInt64(&r.duplicates, 0)
	atomic.StoreInt64(&r.emptyLogs, 0)
	atomic.StoreInt64(&r.parseFailures, 0)
	atomic.StoreInt64(&r.skippedRating, 0)
	r.startTime = time.Time{}
}

// Stop gracefully stops the runner
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Runner) summary() Summary {
	return Summary{
		Format:        r.format,
		Pages:         r.pages,
		Fetched:       atomic.LoadInt64(&r.fetched),
		Parsed:        atomic.LoadInt64(&r.parsed),
		Stored:        atomic.LoadInt64(&r.stored),
		Duplicates:    atomic.LoadInt64(&r.duplicates),
		EmptyLogs:     atomic.LoadInt64(&r.emptyLogs),
		ParseFailures: atomic.LoadInt64(&r.parseFailures),
		SkippedRating: atomic.LoadInt64(&r.skippedRating),
		Elapsed:       time.Since(r.startTime),
	}
}

func (r *Runner) printSummary(s Summary) {
	fmt.Printf("\n=== Collection Complete ===\n")
	fmt.Printf("Format: %s\n", s.Format)
	fmt.Printf("Total time: %s\n", formatDuration(s.Elapsed))
	fmt.Printf("Replays fetched: %d\n", s.Fetched)
	fmt.Printf("Battles parsed: %d\n", s.Parsed)
	fmt.Printf("Battles stored: %d\n", s.Stored)
	fmt.Printf("Duplicates: %d\n", s.Duplicates)
	fmt.Printf("Empty logs: %d\n", s.EmptyLogs)
	fmt.Printf("Parse failures: %d\n", s.ParseFailures)
	if s.SkippedRating > 0 {
		fmt.Printf("Skipped (below rating floor): %d\n", s.SkippedRating)
	}
	if s.Parsed > 0 {
		perBattle := s.Elapsed / time.Duration(s.Parsed)
		fmt.Printf("Avg time per battle: %s\n", formatDuration(perBattle))
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%02ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh%02dm%02ds", hours, mins, secs)
}
