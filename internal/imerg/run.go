package imerg

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Phase names the steps of one run, in execution order. Reconciliation of
// superseded EARLY entries happens inside the commit-late phase, once per
// committed LATE item.
type Phase string

const (
	PhaseSyncLate    Phase = "sync-late"
	PhaseCommitLate  Phase = "commit-late"
	PhaseSyncEarly   Phase = "sync-early"
	PhaseCommitEarly Phase = "commit-early"
	PhaseRetain      Phase = "retain"
	PhaseMaintain    Phase = "maintain"
)

// PhaseReport carries the per-phase observability counts.
type PhaseReport struct {
	Phase      Phase         `json:"phase"`
	Discovered int           `json:"discovered,omitempty"`
	Downloaded int           `json:"downloaded,omitempty"`
	Committed  int           `json:"committed,omitempty"`
	Skipped    int           `json:"skipped,omitempty"`
	Failed     int           `json:"failed,omitempty"`
	Removed    int           `json:"removed,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
	Error      string        `json:"error,omitempty"`
}

// RunReport is the outcome of one orchestrator run. FailedPhase and Error
// are empty for a successful run.
type RunReport struct {
	RunID       string        `json:"runId"`
	Started     time.Time     `json:"started"`
	Elapsed     time.Duration `json:"elapsed"`
	Phases      []PhaseReport `json:"phases"`
	FailedPhase Phase         `json:"failedPhase,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Maintainer is an opaque post-run maintenance hook. Maintenance failures
// are logged and never fail the run.
type Maintainer interface {
	Name() string
	Maintain(ctx context.Context) error
}

// Orchestrator sequences one unattended run: sync late, commit late (with
// reconciliation), sync early bounded below by the fresh late watermark,
// commit early, retention sweep, maintenance hooks. A hard collaborator
// failure aborts the run; committed work stays committed, and the next
// scheduled invocation is the retry mechanism.
type Orchestrator struct {
	catalog       Catalog
	lateSync      *SyncEngine
	earlySync     *SyncEngine
	ingestor      Ingestor
	reconciler    *Reconciler
	retention     *RetentionEngine
	retentionDays int
	maintainers   []Maintainer
	logger        Logger
	now           func() time.Time
}

type OrchestratorOptions struct {
	Catalog       Catalog
	LateSync      *SyncEngine
	EarlySync     *SyncEngine
	Ingestor      Ingestor
	Reconciler    *Reconciler
	Retention     *RetentionEngine
	RetentionDays int
	Maintainers   []Maintainer
	Logger        Logger
	Now           func() time.Time
}

func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if opts.LateSync == nil || opts.EarlySync == nil {
		return nil, fmt.Errorf("late and early sync engines are required")
	}
	if opts.Ingestor == nil {
		return nil, fmt.Errorf("ingestor is required")
	}
	if opts.Reconciler == nil {
		return nil, fmt.Errorf("reconciler is required")
	}
	if opts.Retention == nil {
		return nil, fmt.Errorf("retention engine is required")
	}
	retentionDays := opts.RetentionDays
	if retentionDays <= 0 {
		retentionDays = 90
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		catalog:       opts.Catalog,
		lateSync:      opts.LateSync,
		earlySync:     opts.EarlySync,
		ingestor:      opts.Ingestor,
		reconciler:    opts.Reconciler,
		retention:     opts.Retention,
		retentionDays: retentionDays,
		maintainers:   opts.Maintainers,
		logger:        logger,
		now:           now,
	}, nil
}

// Run executes the full state machine once. The returned report is populated
// for the phases that ran even when Run also returns a PhaseError.
func (o *Orchestrator) Run(ctx context.Context) (RunReport, error) {
	report := RunReport{RunID: uuid.NewString(), Started: o.now()}
	now := report.Started.Truncate(time.Minute)
	o.logger.Printf("======================= SESSION START %s =======================", report.RunID)

	// SyncLate
	phaseStart := o.now()
	lateWM, err := ResolveWatermark(ctx, o.catalog, TierLate, now)
	if err != nil {
		return o.fail(report, PhaseSyncLate, phaseStart, err)
	}
	o.logger.Printf("processing LATE files between %s and %s", lateWM.Format(time.RFC3339), now.Format(time.RFC3339))
	lateRes, err := o.lateSync.Sync(ctx, TierLate, lateWM, now, time.Time{})
	if err != nil {
		return o.fail(report, PhaseSyncLate, phaseStart, err)
	}
	report.Phases = append(report.Phases, syncPhaseReport(PhaseSyncLate, lateRes, o.now().Sub(phaseStart)))

	// CommitLate: reconcile the EARLY counterpart before each item commits.
	phaseStart = o.now()
	commitLate := PhaseReport{Phase: PhaseCommitLate}
	for _, item := range byTimestamp(lateRes.Downloaded) {
		if err := ctx.Err(); err != nil {
			return o.fail(report, PhaseCommitLate, phaseStart, err)
		}
		if err := o.reconciler.ReconcileLate(ctx, item.Name); err != nil {
			return o.fail(report, PhaseCommitLate, phaseStart, err)
		}
		if err := o.commit(ctx, item); err != nil {
			o.logger.Printf("raster %s not loaded: %v", item.Name, err)
			commitLate.Failed++
			continue
		}
		commitLate.Committed++
	}
	commitLate.Elapsed = o.now().Sub(phaseStart)
	report.Phases = append(report.Phases, commitLate)
	o.logger.Printf("%d LATE files processed for the archive", commitLate.Committed)

	// SyncEarly: the LATE watermark has just advanced, resolve it again and
	// bound the EARLY pass below by it.
	phaseStart = o.now()
	newLateWM, err := ResolveWatermark(ctx, o.catalog, TierLate, now)
	if err != nil {
		return o.fail(report, PhaseSyncEarly, phaseStart, err)
	}
	earlyWM, err := ResolveWatermark(ctx, o.catalog, TierEarly, now)
	if err != nil {
		return o.fail(report, PhaseSyncEarly, phaseStart, err)
	}
	o.logger.Printf("processing EARLY files between %s and %s", newLateWM.Format(time.RFC3339), now.Format(time.RFC3339))
	earlyRes, err := o.earlySync.Sync(ctx, TierEarly, newLateWM, now, earlyWM)
	if err != nil {
		return o.fail(report, PhaseSyncEarly, phaseStart, err)
	}
	report.Phases = append(report.Phases, syncPhaseReport(PhaseSyncEarly, earlyRes, o.now().Sub(phaseStart)))

	// CommitEarly
	phaseStart = o.now()
	commitEarly := PhaseReport{Phase: PhaseCommitEarly}
	for _, item := range byTimestamp(earlyRes.Downloaded) {
		if err := ctx.Err(); err != nil {
			return o.fail(report, PhaseCommitEarly, phaseStart, err)
		}
		if err := o.commit(ctx, item); err != nil {
			o.logger.Printf("raster %s not loaded: %v", item.Name, err)
			commitEarly.Failed++
			continue
		}
		commitEarly.Committed++
	}
	commitEarly.Elapsed = o.now().Sub(phaseStart)
	report.Phases = append(report.Phases, commitEarly)
	o.logger.Printf("%d EARLY files processed for the archive", commitEarly.Committed)

	// Retain
	phaseStart = o.now()
	countBefore := o.countAll(ctx)
	evicted, err := o.retention.Evict(ctx, o.retentionDays, now)
	retain := PhaseReport{
		Phase:   PhaseRetain,
		Removed: evicted.FilesRemoved,
		Elapsed: o.now().Sub(phaseStart),
	}
	if err != nil {
		retain.Error = err.Error()
		report.Phases = append(report.Phases, retain)
		return o.failRecorded(report, PhaseRetain, err)
	}
	report.Phases = append(report.Phases, retain)
	countAfter := o.countAll(ctx)
	if countBefore >= 0 && countAfter >= 0 {
		o.logger.Printf("removed %d entries from the catalog", countBefore-countAfter)
	}

	// Maintain: opaque external hooks, warn-and-continue.
	phaseStart = o.now()
	maintain := PhaseReport{Phase: PhaseMaintain}
	for _, m := range o.maintainers {
		if err := ctx.Err(); err != nil {
			return o.fail(report, PhaseMaintain, phaseStart, err)
		}
		if err := m.Maintain(ctx); err != nil {
			o.logger.Printf("maintenance hook %s failed: %v", m.Name(), err)
			maintain.Failed++
			continue
		}
		maintain.Committed++
	}
	maintain.Elapsed = o.now().Sub(phaseStart)
	report.Phases = append(report.Phases, maintain)

	report.Elapsed = o.now().Sub(report.Started)
	o.logger.Printf("run %s finished in %s", report.RunID, report.Elapsed)
	o.logger.Printf("======================= SESSION END %s =========================", report.RunID)
	return report, nil
}

// commit ingests one staged item and releases its staging copy only when
// ingestion succeeds.
func (o *Orchestrator) commit(ctx context.Context, item StagedItem) error {
	if err := o.ingestor.Ingest(ctx, item); err != nil {
		return err
	}
	if err := os.Remove(item.Path); err != nil && !os.IsNotExist(err) {
		o.logger.Printf("could not remove staged copy %s: %v", item.Path, err)
	}
	return nil
}

func (o *Orchestrator) countAll(ctx context.Context) int {
	count, err := o.catalog.CountAll(ctx)
	if err != nil {
		o.logger.Printf("catalog count unavailable: %v", err)
		return -1
	}
	return count
}

func (o *Orchestrator) fail(report RunReport, phase Phase, phaseStart time.Time, cause error) (RunReport, error) {
	report.Phases = append(report.Phases, PhaseReport{
		Phase:   phase,
		Elapsed: o.now().Sub(phaseStart),
		Error:   cause.Error(),
	})
	return o.failRecorded(report, phase, cause)
}

func (o *Orchestrator) failRecorded(report RunReport, phase Phase, cause error) (RunReport, error) {
	err := &PhaseError{Phase: phase, Cause: cause}
	report.FailedPhase = phase
	report.Error = err.Error()
	report.Elapsed = o.now().Sub(report.Started)
	o.logger.Printf("run %s failed: %v", report.RunID, err)
	return report, err
}

func syncPhaseReport(phase Phase, res SyncResult, elapsed time.Duration) PhaseReport {
	return PhaseReport{
		Phase:      phase,
		Discovered: res.Discovered,
		Downloaded: len(res.Downloaded),
		Skipped:    res.Skipped,
		Failed:     len(res.Failures),
		Elapsed:    elapsed,
	}
}

// byTimestamp orders staged items so that catalog writes for a window happen
// oldest first and deterministically.
func byTimestamp(items []StagedItem) []StagedItem {
	sorted := append([]StagedItem(nil), items...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}
