package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/turbot/tailwriter/internal/clock"
	"github.com/turbot/tailwriter/internal/encoding"
	"github.com/turbot/tailwriter/internal/errorsink"
	"github.com/turbot/tailwriter/internal/metrics"
	"github.com/turbot/tailwriter/internal/partition"
	"github.com/turbot/tailwriter/internal/record"
	"github.com/turbot/tailwriter/internal/writer"
)

// LatePolicy decides what happens to a record whose partition has aged past the late cutoff
type LatePolicy string

const (
	SendToError           LatePolicy = "SEND_TO_ERROR"
	SendToLateRecordsFile LatePolicy = "SEND_TO_LATE_RECORDS_FILE"
)

func ParseLatePolicy(s string) (LatePolicy, error) {
	switch p := LatePolicy(strings.ToUpper(s)); p {
	case SendToError, SendToLateRecordsFile:
		return p, nil
	case "":
		return SendToError, nil
	default:
		return "", fmt.Errorf("invalid late records action '%s', expected %s or %s", s, SendToError, SendToLateRecordsFile)
	}
}

// Router routes each record of a batch to the writer for its partition
type Router struct {
	resolver     *partition.Resolver
	lateResolver *partition.Resolver
	cache        *writer.Cache
	sink         errorsink.Sink
	policy       LatePolicy
	lateCutoff   time.Duration
	clock        clock.Clock
	metrics      metrics.Collector
}

type RouterOption func(*Router) error

// WithLateCutoff sets how far a partition's time bucket may lag the stage time before records routed to
// it are late. Zero disables late detection.
func WithLateCutoff(d time.Duration) RouterOption {
	return func(r *Router) error {
		if d < 0 {
			return errors.New("late record threshold cannot be negative")
		}
		r.lateCutoff = d
		return nil
	}
}

// WithLatePolicy sets the late record policy. SendToLateRecordsFile requires a resolver for the late
// records directory.
func WithLatePolicy(policy LatePolicy, lateResolver *partition.Resolver) RouterOption {
	return func(r *Router) error {
		if policy == SendToLateRecordsFile && lateResolver == nil {
			return fmt.Errorf("%s requires a late records directory template", policy)
		}
		r.policy = policy
		r.lateResolver = lateResolver
		return nil
	}
}

func WithClock(clk clock.Clock) RouterOption {
	return func(r *Router) error {
		r.clock = clk
		return nil
	}
}

func WithMetrics(m metrics.Collector) RouterOption {
	return func(r *Router) error {
		r.metrics = m
		return nil
	}
}

func NewRouter(resolver *partition.Resolver, cache *writer.Cache, sink errorsink.Sink, opts ...RouterOption) (*Router, error) {
	if resolver == nil || cache == nil || sink == nil {
		return nil, errors.New("router requires a resolver, a writer cache and an error sink")
	}
	r := &Router{
		resolver: resolver,
		cache:    cache,
		sink:     sink,
		policy:   SendToError,
		clock:    clock.Real{},
		metrics:  metrics.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Route writes a batch, in input order. Records which cannot be written are diverted to the error sink
// and routing continues; after the batch the cache is swept.
//
// A non-nil error is fatal for the stage: a handle could not be finalized, the cache is closed, or a
// diverted record could not be delivered to the error sink. The returned report covers the records
// processed before the failure.
func (r *Router) Route(ctx context.Context, batch []*record.Record) (*RouteReport, error) {
	report := &RouteReport{}
	// a failure in the background sweeper is reported on the next batch
	if err := r.cache.Err(); err != nil {
		return report, err
	}

	start := time.Now()
	defer func() {
		r.metrics.RecordRouted(metrics.OutcomeWritten, report.Written)
		r.metrics.RecordRouted(metrics.OutcomeLate, report.Late)
		r.metrics.RecordRouted(metrics.OutcomeErrored, report.Errored)
		r.metrics.SetOpenHandles(r.cache.Len())
		r.metrics.ObserveBatch(time.Since(start).Seconds())
	}()

	// every record of the batch is resolved and classified against the same stage time
	stageTime := r.clock.Now()

	for i, rec := range batch {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := r.routeRecord(ctx, report, i, rec, stageTime); err != nil {
			return report, err
		}
	}

	if err := r.cache.Sweep(ctx, r.clock.Now()); err != nil {
		return report, err
	}

	slog.Debug("router.Route batch complete", "records", len(batch), "written", report.Written, "late", report.Late, "errored", report.Errored)
	return report, nil
}

func (r *Router) routeRecord(ctx context.Context, report *RouteReport, i int, rec *record.Record, stageTime time.Time) error {
	key, err := r.resolver.Resolve(rec, stageTime)
	if err != nil {
		report.Errored++
		return r.divert(ctx, report, i, rec, errorsink.ReasonTemplate, "", err, stageTime)
	}

	if partition.Classify(key, stageTime, r.lateCutoff) == partition.Late {
		if r.policy == SendToError {
			report.Late++
			lateErr := fmt.Errorf("partition %s ended before the late cutoff %s", key.Bucket, partition.LateCutoff(stageTime, r.lateCutoff).Format(time.RFC3339))
			return r.divert(ctx, report, i, rec, errorsink.ReasonLate, key.Dir, lateErr, stageTime)
		}
		lateKey, err := r.lateResolver.Resolve(rec, stageTime)
		if err != nil {
			report.Errored++
			return r.divert(ctx, report, i, rec, errorsink.ReasonTemplate, "", err, stageTime)
		}
		written, err := r.write(ctx, report, i, rec, lateKey, stageTime)
		if written {
			report.Late++
		}
		return err
	}

	written, err := r.write(ctx, report, i, rec, key, stageTime)
	if written {
		report.Written++
	}
	return err
}

// write appends the record to the writer for key. If the record could not be written it is diverted and
// counted as errored; written is false.
func (r *Router) write(ctx context.Context, report *RouteReport, i int, rec *record.Record, key partition.Key, stageTime time.Time) (written bool, err error) {
	err = r.cache.Append(ctx, key, rec)
	if err == nil {
		return true, nil
	}

	var writeErr *writer.WriteError
	switch {
	case encoding.IsRecordError(err):
		report.Errored++
		return false, r.divert(ctx, report, i, rec, errorsink.ReasonEncode, key.Dir, err, stageTime)
	case errors.As(err, &writeErr):
		report.Errored++
		return false, r.divert(ctx, report, i, rec, errorsink.ReasonWrite, key.Dir, err, stageTime)
	default:
		// rotation failures and a closed cache halt the stage
		return false, err
	}
}

func (r *Router) divert(ctx context.Context, report *RouteReport, i int, rec *record.Record, reason errorsink.Reason, dir string, cause error, stageTime time.Time) error {
	report.Diverted = append(report.Diverted, Diversion{
		Index:     i,
		Record:    rec,
		Reason:    reason,
		Partition: dir,
		Err:       cause,
	})
	slog.Debug("router diverting record", "index", i, "reason", reason, "partition", dir, "error", cause)

	entry := errorsink.Entry{
		Record:    rec,
		Reason:    reason,
		Err:       cause,
		Partition: dir,
		Time:      stageTime,
	}
	if err := r.sink.Emit(ctx, entry); err != nil {
		return fmt.Errorf("failed to send record %d to the error sink: %w", i, err)
	}
	return nil
}
