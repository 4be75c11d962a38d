// Package ingest turns bank alert mails into persisted transactions and
// keeps account balances current. Messages are processed one at a time
// through a fixed sequence of steps; a failing message never aborts the
// rest of its batch.
package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/finance-reconciler/internal/acquire"
	"github.com/dvloznov/finance-reconciler/internal/categorize"
	"github.com/dvloznov/finance-reconciler/internal/mailbox"
	"github.com/dvloznov/finance-reconciler/internal/processor"
	"github.com/dvloznov/finance-reconciler/internal/store"
	"github.com/dvloznov/finance-reconciler/internal/synctracker"
)

// DefaultHistoryYears is the lookback of a full bank sync, counted in
// calendar years before the current one.
const DefaultHistoryYears = 3

// ErrNoSender reports a message without a usable From address.
var ErrNoSender = errors.New("message has no sender")

// Outcome is the terminal state of one message for one account.
type Outcome string

const (
	SkippedNoProcessor  Outcome = "SKIPPED_NO_PROCESSOR"
	SkippedBeforeWindow Outcome = "SKIPPED_BEFORE_WINDOW"
	RejectedNoMatch     Outcome = "REJECTED_NO_MATCH"
	PersistedNew        Outcome = "PERSISTED_NEW"
	NoOpDuplicate       Outcome = "NO_OP_DUPLICATE"
	Failed              Outcome = "FAILED"
)

// Result is the outcome of one message, or one statement entry, for one
// account. AccountID is zero when no account was involved.
type Result struct {
	Handle        mailbox.Handle
	Entry         int
	Sender        string
	AccountID     int64
	Outcome       Outcome
	TransactionID string
	Err           error
}

// Report aggregates the results of a batch.
type Report struct {
	Results []Result
}

// Add appends results.
func (r *Report) Add(results ...Result) {
	r.Results = append(r.Results, results...)
}

// Merge appends another report's results.
func (r *Report) Merge(other Report) {
	r.Results = append(r.Results, other.Results...)
}

// Count returns the number of results with the outcome.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Counts returns the number of results per outcome.
func (r Report) Counts() map[Outcome]int {
	out := make(map[Outcome]int)
	for _, res := range r.Results {
		out[res.Outcome]++
	}
	return out
}

// Failures returns the failed results.
func (r Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Outcome == Failed {
			out = append(out, res)
		}
	}
	return out
}

// Summary renders the per-outcome counts in a fixed order, omitting zeros.
func (r Report) Summary() string {
	counts := r.Counts()
	var parts []string
	for _, o := range []Outcome{PersistedNew, NoOpDuplicate, RejectedNoMatch, SkippedNoProcessor, SkippedBeforeWindow, Failed} {
		if n := counts[o]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", o, n))
		}
	}
	if len(parts) == 0 {
		return "no results"
	}
	return strings.Join(parts, " ")
}

// Deps are the collaborators of a Pipeline. Categorizer and Acquirer may be
// nil.
type Deps struct {
	Source      mailbox.Source
	Registry    *processor.Registry
	Stores      *store.Stores
	Tracker     *synctracker.Tracker
	Categorizer categorize.Categorizer
	Acquirer    acquire.Acquirer
}

// Config tunes a Pipeline.
type Config struct {
	// HistoryYears is the lookback of a full bank sync.
	HistoryYears int
	// AcquireTimeout bounds statement acquisition. Zero means unbounded.
	AcquireTimeout time.Duration
}

// Pipeline is the ingestion pipeline.
type Pipeline struct {
	source      mailbox.Source
	registry    *processor.Registry
	stores      *store.Stores
	tracker     *synctracker.Tracker
	categorizer categorize.Categorizer
	acquirer    acquire.Acquirer
	cfg         Config
	now         func() time.Time
	locks       *accountLocks
}

// New creates a pipeline.
func New(deps Deps, cfg Config) *Pipeline {
	if cfg.HistoryYears <= 0 {
		cfg.HistoryYears = DefaultHistoryYears
	}
	return &Pipeline{
		source:      deps.Source,
		registry:    deps.Registry,
		stores:      deps.Stores,
		tracker:     deps.Tracker,
		categorizer: deps.Categorizer,
		acquirer:    deps.Acquirer,
		cfg:         cfg,
		now:         time.Now,
		locks:       newAccountLocks(),
	}
}

// WithClock replaces the time source.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}
