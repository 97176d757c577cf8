package processor

import (
	"context"

	"github.com/folio-org/eureka-ci-app/internal/github"
	"github.com/folio-org/eureka-ci-app/internal/queue"
	"github.com/folio-org/eureka-ci-app/internal/repoconfig"
	"github.com/folio-org/eureka-ci-app/internal/state"
)

//go:generate mockgen -destination=mocks/mock_platform.go -package=mocks github.com/folio-org/eureka-ci-app/internal/processor Platform

// Platform is the subset of the platform client the processor drives.
type Platform interface {
	CreateCheckRun(ctx context.Context, installationID int64, repoFullName, name, headSHA, detailsURL string) (int64, error)
	UpdateCheckRun(ctx context.Context, installationID int64, repoFullName string, checkRunID int64, upd github.CheckRunUpdate) error
	DispatchWorkflow(ctx context.Context, installationID int64, repoFullName, workflowFile, ref string, inputs map[string]interface{}) error
}

// EventSource is the queue side the processor consumes from.
type EventSource interface {
	Dequeue(ctx context.Context) (*queue.Message, error)
	Ack(ctx context.Context, id string) error
	MoveToDeadLetter(ctx context.Context, id, reason string) error
}

// WorkflowResolver maps a repository to its workflow configuration.
type WorkflowResolver interface {
	Resolve(ctx context.Context, repoFullName string) (repoconfig.Entry, error)
}

// CheckRunRegistry records created check runs so redeliveries find them.
type CheckRunRegistry interface {
	Lookup(ctx context.Context, deliveryID string, prNumber int) (*state.CheckRunRecord, error)
	RecordCreated(ctx context.Context, rec state.CheckRunRecord) error
	UpdateState(ctx context.Context, deliveryID string, prNumber int, st state.CheckState) error
}
