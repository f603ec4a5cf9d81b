package discovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/coolbeans/lagen/pkg/metrics"
	"github.com/coolbeans/lagen/pkg/resolver"
	"github.com/coolbeans/lagen/pkg/sfs"
)

// Phase is the state of the forward scan.
type Phase string

const (
	// PhaseScanning is the normal state: the last identifier existed.
	PhaseScanning Phase = "scanning"
	// PhasePeeking means the last identifier was missing and the scan is
	// trying exactly one more before deciding the year has ended.
	PhasePeeking Phase = "peeking"
	// PhaseDone means two identifiers in a row were missing.
	PhaseDone Phase = "done"
)

// DefaultRevisitConcurrency bounds parallel retries of the revisit queue.
const DefaultRevisitConcurrency = 4

// Resolver resolves one identifier. *resolver.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, identifier sfs.Identifier) resolver.Outcome
}

// Scanner runs discovery passes. It holds no scan state of its own, so one
// Scanner can serve several independent State values.
type Scanner struct {
	resolver           Resolver
	logger             *slog.Logger
	metrics            *metrics.Metrics
	now                func() time.Time
	revisitConcurrency int
	maxSteps           int
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(scanner *Scanner) {
		if logger != nil {
			scanner.logger = logger
		}
	}
}

// WithClock sets the clock that decides which calendar year is current.
func WithClock(now func() time.Time) Option {
	return func(scanner *Scanner) {
		if now != nil {
			scanner.now = now
		}
	}
}

// WithMetrics reports scan outcomes and queue size to collectors.
func WithMetrics(collectors *metrics.Metrics) Option {
	return func(scanner *Scanner) {
		scanner.metrics = collectors
	}
}

// WithRevisitConcurrency sets how many queued identifiers are retried at once.
func WithRevisitConcurrency(concurrency int) Option {
	return func(scanner *Scanner) {
		if concurrency > 0 {
			scanner.revisitConcurrency = concurrency
		}
	}
}

// WithMaxSteps stops the forward scan after this many identifiers. Zero means
// no limit.
func WithMaxSteps(maxSteps int) Option {
	return func(scanner *Scanner) {
		scanner.maxSteps = maxSteps
	}
}

// NewScanner creates a Scanner resolving identifiers through identifierResolver.
func NewScanner(identifierResolver Resolver, options ...Option) *Scanner {
	scanner := &Scanner{
		resolver:           identifierResolver,
		logger:             slog.New(slog.DiscardHandler),
		now:                time.Now,
		revisitConcurrency: DefaultRevisitConcurrency,
	}
	for _, option := range options {
		option(scanner)
	}
	return scanner
}

// Run performs one discovery pass starting from state and returns the state
// for the next run. The revisit queue is retried first, then the scan moves
// forward from state.NextIdentifier until two consecutive identifiers are
// missing. Failures of individual identifiers never abort the pass; only a
// cancelled context does, in which case the input state is returned as is.
func (scanner *Scanner) Run(ctx context.Context, state State) (State, *Report, error) {
	runID := uuid.NewString()
	startedAt := scanner.now()
	report := NewReport(runID, startedAt)
	logger := scanner.logger.With("run_id", runID)

	next := State{LastRunID: runID}

	revisitOutcomes, err := scanner.retryRevisits(ctx, state.Revisit)
	if err != nil {
		return state, report, err
	}
	for _, outcome := range revisitOutcomes {
		scanner.record(logger, report, PassRevisit, outcome)
		switch outcome.Status {
		case resolver.StatusStale, resolver.StatusError:
			next.Enqueue(outcome.Identifier)
		}
	}

	cursor, phase, err := scanner.scanForward(ctx, logger, report, state.NextIdentifier, &next)
	if err != nil {
		return state, report, err
	}

	next.NextIdentifier = cursor
	next.UpdatedAt = scanner.now()
	report.Finish(phase, next, next.UpdatedAt)
	scanner.metrics.SetRevisitQueue(len(next.Revisit))

	logger.Info("scan finished",
		"next", next.NextIdentifier.String(),
		"resolved", report.TotalResolved,
		"stale", report.TotalStale,
		"revisit", len(next.Revisit))
	return next, report, nil
}

// retryRevisits resolves every queued identifier on a bounded pool. Outcomes
// are returned in queue order.
func (scanner *Scanner) retryRevisits(ctx context.Context, queue []sfs.Identifier) ([]resolver.Outcome, error) {
	outcomes := make([]resolver.Outcome, len(queue))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(scanner.revisitConcurrency)
	for index, identifier := range queue {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			outcomes[index] = scanner.resolver.Resolve(groupCtx, identifier)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// scanForward runs the scanning/peeking state machine and returns the cursor
// for the next run together with the phase the scan ended in.
func (scanner *Scanner) scanForward(ctx context.Context, logger *slog.Logger, report *Report, start sfs.Identifier, next *State) (sfs.Identifier, Phase, error) {
	currentYear := scanner.now().Year()
	cursor := start
	if cursor.IsZero() {
		cursor = sfs.New(currentYear, 1)
	}

	var (
		phase      = PhaseScanning
		lastGood   *sfs.Identifier
		rolledOver bool
		steps      int
	)

	for phase != PhaseDone {
		if err := ctx.Err(); err != nil {
			return sfs.Identifier{}, phase, err
		}
		if scanner.maxSteps > 0 && steps >= scanner.maxSteps {
			logger.Info("scan step limit reached", "sfs", cursor.String())
			break
		}
		steps++

		outcome := scanner.resolver.Resolve(ctx, cursor)
		scanner.record(logger, report, PassForward, outcome)

		switch outcome.Status {
		case resolver.StatusResolved, resolver.StatusStale:
			if outcome.Status == resolver.StatusStale {
				next.Enqueue(cursor)
			}
			if lastGood == nil || lastGood.Before(cursor) {
				found := cursor
				lastGood = &found
			}
			phase = PhaseScanning

		case resolver.StatusNotFound:
			switch {
			case phase == PhaseScanning:
				phase = PhasePeeking
				logger.Debug("peeking past missing identifier", "sfs", cursor.String())
			case cursor.Year == currentYear && !rolledOver:
				logger.Info("end of current year reached, restarting year", "year", currentYear)
				rolledOver = true
				phase = PhaseScanning
				cursor = sfs.New(currentYear, 0)
			default:
				phase = PhaseDone
			}

		default:
			// Transport failures count as existing for peeking, so they
			// never end a year on their own.
			phase = PhaseScanning
		}

		if phase != PhaseDone {
			cursor = cursor.Next()
		}
	}

	return scanner.nextCursor(start, cursor, lastGood, phase, currentYear), phase, nil
}

// nextCursor decides where the following run starts: after the last found
// identifier, or at the start of the next year once a past year is exhausted.
func (scanner *Scanner) nextCursor(start, cursor sfs.Identifier, lastGood *sfs.Identifier, phase Phase, currentYear int) sfs.Identifier {
	if phase == PhaseDone && cursor.Year < currentYear {
		return sfs.New(cursor.Year+1, 1)
	}
	if lastGood != nil {
		return lastGood.Next()
	}
	if start.IsZero() {
		return sfs.New(currentYear, 1)
	}
	return start
}

func (scanner *Scanner) record(logger *slog.Logger, report *Report, pass Pass, outcome resolver.Outcome) {
	report.Record(pass, outcome)
	scanner.metrics.ObserveScan(string(outcome.Status))

	attributes := []any{"sfs", outcome.Identifier.String(), "pass", string(pass), "status", string(outcome.Status)}
	switch outcome.Status {
	case resolver.StatusResolved:
		logger.Info("resolved", attributes...)
	case resolver.StatusNotFound:
		logger.Debug("not found", attributes...)
	case resolver.StatusError:
		logger.Error("resolution failed", append(attributes, "error", outcome.Err)...)
	default:
		logger.Warn("not resolved", append(attributes, "reason", outcome.Err)...)
	}
}
