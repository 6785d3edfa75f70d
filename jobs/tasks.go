// Package jobs wires the background side effects of the quote lifecycle
// through Asynq: emails and the ERP sync run out of band so an accepted
// quote never waits on SMTP or the ERP.
package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the single queue used by this service.
	QueueDefault = "default"

	// TaskAcceptanceEmail sends the confirmation email pair after acceptance.
	TaskAcceptanceEmail = "devis:acceptance_email"
	// TaskDevisEmail sends the quote to the client when staff hits "send".
	TaskDevisEmail = "devis:send_email"
	// TaskERPSync pushes an accepted quote into the ERP.
	TaskERPSync = "devis:erp_sync"
)

// DevisTaskPayload carries the quote id; handlers reload the aggregate so a
// task never acts on stale data.
type DevisTaskPayload struct {
	DevisID string `json:"devis_id"`
}

// NewAcceptanceEmailTask constructs the acceptance email task.
func NewAcceptanceEmailTask(devisID string) (*asynq.Task, error) {
	data, err := json.Marshal(DevisTaskPayload{DevisID: devisID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAcceptanceEmail, data), nil
}

// NewDevisEmailTask constructs the quote email task.
func NewDevisEmailTask(devisID string) (*asynq.Task, error) {
	data, err := json.Marshal(DevisTaskPayload{DevisID: devisID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDevisEmail, data), nil
}

// NewERPSyncTask constructs the ERP sync task.
func NewERPSyncTask(devisID string) (*asynq.Task, error) {
	data, err := json.Marshal(DevisTaskPayload{DevisID: devisID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskERPSync, data), nil
}

// Enqueuer submits quote tasks to the queue. It satisfies the enqueuer
// contract of the quote service.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer constructs an Asynq-backed enqueuer.
func NewEnqueuer(redisOpts asynq.RedisClientOpt) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(redisOpts)}
}

// EnqueueAcceptanceEmail queues the post-acceptance email pair.
func (e *Enqueuer) EnqueueAcceptanceEmail(ctx context.Context, devisID string) error {
	task, err := NewAcceptanceEmailTask(devisID)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(5))
	return err
}

// EnqueueDevisEmail queues the quote email to the client.
func (e *Enqueuer) EnqueueDevisEmail(ctx context.Context, devisID string) error {
	task, err := NewDevisEmailTask(devisID)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(5))
	return err
}

// EnqueueERPSync queues the ERP push with a longer retry horizon; the ERP is
// the flakiest dependency in the chain.
func (e *Enqueuer) EnqueueERPSync(ctx context.Context, devisID string) error {
	task, err := NewERPSyncTask(devisID)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueDefault), asynq.MaxRetry(10), asynq.Timeout(time.Minute))
	return err
}

// Close releases the underlying client.
func (e *Enqueuer) Close() error {
	return e.client.Close()
}
