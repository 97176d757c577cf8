// Package processor drains the event queue and drives check runs through
// their lifecycle: create on the platform, record in the registry, dispatch
// the validation workflow. The processor is a dispatcher, not a supervisor;
// once a workflow is triggered, completing the check run is the workflow's
// job.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/folio-org/eureka-ci-app/internal/github"
	"github.com/folio-org/eureka-ci-app/internal/queue"
	"github.com/folio-org/eureka-ci-app/internal/repoconfig"
	"github.com/folio-org/eureka-ci-app/internal/state"
)

// Config tunes the worker pool and supplies dispatch defaults.
type Config struct {
	Workers       int
	PollInterval  time.Duration
	MaxDeliveries int

	// DispatchRepo/DispatchRef are where workflows run when the mapping
	// entry does not override them.
	DispatchRepo string
	DispatchRef  string
}

// Processor consumes queued deliveries and orchestrates check runs.
type Processor struct {
	cfg      Config
	source   EventSource
	registry CheckRunRegistry
	resolver WorkflowResolver
	platform Platform
	logger   *slog.Logger
}

func New(cfg Config, source EventSource, registry CheckRunRegistry, resolver WorkflowResolver, platform Platform, logger *slog.Logger) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Processor{
		cfg:      cfg,
		source:   source,
		registry: registry,
		resolver: resolver,
		platform: platform,
		logger:   logger,
	}
}

// Run starts the worker pool and blocks until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("processor starting", "workers", p.cfg.Workers, "poll_interval", p.cfg.PollInterval)

	var wg sync.WaitGroup
	for i := range p.cfg.Workers {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.workerLoop(ctx, worker)
		}(i)
	}
	wg.Wait()

	p.logger.Info("processor stopped")
	return ctx.Err()
}

// workerLoop drains the queue, then sleeps for the poll interval.
func (p *Processor) workerLoop(ctx context.Context, worker int) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		for {
			processed, err := p.ProcessNext(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error("processing failed", "worker", worker, "error", err)
				break
			}
			if !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessNext handles at most one message. Returns false when the queue is
// empty.
func (p *Processor) ProcessNext(ctx context.Context) (bool, error) {
	msg, err := p.source.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, nil
	}

	logger := p.logger.With("delivery_id", msg.DeliveryID, "message_id", msg.ID)

	if p.cfg.MaxDeliveries > 0 && msg.DeliveryCount > p.cfg.MaxDeliveries {
		logger.Error("delivery limit exceeded, dead-lettering", "deliveries", msg.DeliveryCount)
		p.abandonCheckRuns(ctx, logger, msg, errors.New("delivery limit exceeded"))
		if err := p.source.MoveToDeadLetter(ctx, msg.ID, "delivery limit exceeded"); err != nil {
			return true, fmt.Errorf("dead-letter message %s: %w", msg.ID, err)
		}
		return true, nil
	}

	err = p.process(ctx, logger, msg)
	switch {
	case err == nil:
		if err := p.source.Ack(ctx, msg.ID); err != nil {
			return true, fmt.Errorf("ack message %s: %w", msg.ID, err)
		}
	case isTransient(err):
		// Leave the message leased; it redelivers when the lease expires.
		logger.Warn("transient processing failure, leaving for redelivery",
			"deliveries", msg.DeliveryCount,
			"error", err,
		)
	default:
		logger.Error("permanent processing failure, dead-lettering", "error", err)
		p.abandonCheckRuns(ctx, logger, msg, err)
		if dlErr := p.source.MoveToDeadLetter(ctx, msg.ID, err.Error()); dlErr != nil {
			return true, fmt.Errorf("dead-letter message %s: %w", msg.ID, dlErr)
		}
	}
	return true, nil
}

// process runs the pipeline for one delivery. Returned errors are classified
// transient or permanent; nil means the delivery is done and can be acked.
func (p *Processor) process(ctx context.Context, logger *slog.Logger, msg *queue.Message) error {
	ev, err := ParseCheckSuiteEvent(msg.Payload)
	if err != nil {
		return permanent(err)
	}

	entry, err := p.resolver.Resolve(ctx, ev.Repo)
	if errors.Is(err, repoconfig.ErrNotFound) {
		logger.Info("repository not onboarded, skipping", "repo", ev.Repo)
		return nil
	}
	if err != nil {
		return classifyResolveError(err)
	}

	if len(ev.PullRequests) == 0 {
		logger.Info("check suite has no pull requests, skipping",
			"repo", ev.Repo,
			"check_suite_id", ev.CheckSuiteID,
		)
		return nil
	}

	var transientErrs, permanentErrs []error
	for _, pr := range ev.PullRequests {
		err := p.processPullRequest(ctx, logger, msg.DeliveryID, ev, entry, pr)
		switch {
		case err == nil:
		case isTransient(err):
			transientErrs = append(transientErrs, err)
		default:
			permanentErrs = append(permanentErrs, err)
		}
	}

	// Any retryable failure keeps the delivery alive; already-handled pull
	// requests are skipped on redelivery via the registry.
	if len(transientErrs) > 0 {
		return transient(errors.Join(transientErrs...))
	}
	if len(permanentErrs) > 0 {
		return permanent(errors.Join(permanentErrs...))
	}
	return nil
}

// processPullRequest creates (or finds) the check run for one pull request
// and dispatches the validation workflow.
func (p *Processor) processPullRequest(ctx context.Context, logger *slog.Logger, deliveryID string, ev *CheckSuiteEvent, entry repoconfig.Entry, pr PullRequestRef) error {
	logger = logger.With("repo", ev.Repo, "pr_number", pr.Number)

	var checkRunID int64
	rec, err := p.registry.Lookup(ctx, deliveryID, pr.Number)
	switch {
	case errors.Is(err, state.ErrNotFound):
		detailsURL := fmt.Sprintf("https://github.com/%s/pull/%d/checks", ev.Repo, pr.Number)
		checkRunID, err = p.platform.CreateCheckRun(ctx, ev.InstallationID, ev.Repo, entry.CheckRunName, ev.HeadSHA, detailsURL)
		if err != nil {
			return classifyPlatformError(fmt.Errorf("create check run: %w", err))
		}
		if err := p.registry.RecordCreated(ctx, state.CheckRunRecord{
			DeliveryID: deliveryID,
			PRNumber:   pr.Number,
			Repo:       ev.Repo,
			HeadSHA:    ev.HeadSHA,
			CheckRunID: checkRunID,
			State:      state.StateQueued,
		}); err != nil {
			return transient(fmt.Errorf("record check run: %w", err))
		}
		logger.Info("check run created", "check_run_id", checkRunID)
	case err != nil:
		return transient(fmt.Errorf("lookup check run: %w", err))
	default:
		if rec.State != state.StateQueued {
			logger.Info("check run already dispatched, skipping",
				"check_run_id", rec.CheckRunID,
				"state", rec.State,
			)
			return nil
		}
		checkRunID = rec.CheckRunID
		logger.Info("reusing check run from earlier delivery", "check_run_id", checkRunID)
	}

	if err := p.dispatch(ctx, deliveryID, ev, entry, pr, checkRunID); err != nil {
		classified := classifyPlatformError(fmt.Errorf("dispatch workflow: %w", err))
		if isPermanent(classified) {
			p.markErrored(ctx, logger, deliveryID, ev, pr, checkRunID, err)
		}
		return classified
	}

	// The workflow owns the check run from here; a failed status flip only
	// delays the UI, so log and move on rather than re-dispatch.
	if err := p.platform.UpdateCheckRun(ctx, ev.InstallationID, ev.Repo, checkRunID, github.CheckRunUpdate{
		Status: "in_progress",
	}); err != nil {
		logger.Warn("failed to mark check run in_progress", "check_run_id", checkRunID, "error", err)
	}

	if err := p.registry.UpdateState(ctx, deliveryID, pr.Number, state.StateInProgress); err != nil {
		return transient(fmt.Errorf("update check run state: %w", err))
	}
	logger.Info("validation workflow dispatched",
		"check_run_id", checkRunID,
		"workflow", entry.WorkflowRef,
	)
	return nil
}

// dispatch triggers the validation workflow with the inputs it needs to
// report back to the check run. Workflow dispatch inputs are strings on the
// wire, numbers included.
func (p *Processor) dispatch(ctx context.Context, deliveryID string, ev *CheckSuiteEvent, entry repoconfig.Entry, pr PullRequestRef, checkRunID int64) error {
	dispatchRepo := entry.DispatchRepo
	if dispatchRepo == "" {
		dispatchRepo = p.cfg.DispatchRepo
	}
	dispatchRef := entry.DispatchRef
	if dispatchRef == "" {
		dispatchRef = p.cfg.DispatchRef
	}

	inputs := map[string]interface{}{
		"delivery_id":    deliveryID,
		"target_repo":    ev.Repo,
		"pr_number":      strconv.Itoa(pr.Number),
		"check_suite_id": strconv.FormatInt(ev.CheckSuiteID, 10),
		"check_run_id":   strconv.FormatInt(checkRunID, 10),
		"head_sha":       ev.HeadSHA,
		"head_branch":    ev.HeadBranch,
	}
	return p.platform.DispatchWorkflow(ctx, ev.InstallationID, dispatchRepo, entry.WorkflowRef, dispatchRef, inputs)
}

// abandonCheckRuns closes check runs created by earlier deliveries of a
// message that is about to be dead-lettered. Without this, a check run whose
// workflow was never dispatched would show as pending forever. Records past
// the queued state already have a workflow (or a failure verdict) and are
// left alone.
func (p *Processor) abandonCheckRuns(ctx context.Context, logger *slog.Logger, msg *queue.Message, cause error) {
	ev, err := ParseCheckSuiteEvent(msg.Payload)
	if err != nil {
		return
	}
	for _, pr := range ev.PullRequests {
		rec, err := p.registry.Lookup(ctx, msg.DeliveryID, pr.Number)
		if err != nil {
			continue
		}
		if rec.State != state.StateQueued {
			continue
		}
		p.markErrored(ctx, logger, msg.DeliveryID, ev, pr, rec.CheckRunID, cause)
	}
}

// markErrored closes the check run as failed so the pull request does not
// show a spinner forever. Best-effort; the registry state is what matters
// for redelivery.
func (p *Processor) markErrored(ctx context.Context, logger *slog.Logger, deliveryID string, ev *CheckSuiteEvent, pr PullRequestRef, checkRunID int64, cause error) {
	err := p.platform.UpdateCheckRun(ctx, ev.InstallationID, ev.Repo, checkRunID, github.CheckRunUpdate{
		Status:     "completed",
		Conclusion: "failure",
		Output: &github.CheckRunOutput{
			Title:   "Processing Error",
			Summary: "Failed to trigger validation workflow",
			Text:    truncate(cause.Error(), 1024),
		},
	})
	if err != nil {
		logger.Error("failed to mark check run errored", "check_run_id", checkRunID, "error", err)
	}
	if err := p.registry.UpdateState(ctx, deliveryID, pr.Number, state.StateErrored); err != nil {
		logger.Error("failed to record errored state", "check_run_id", checkRunID, "error", err)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.ToValidUTF8(s[:max], "")
}
