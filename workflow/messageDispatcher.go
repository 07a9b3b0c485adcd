package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/bpo_backend/config"
	"bitbucket.org/mmdatafocus/bpo_backend/models"
	"bitbucket.org/mmdatafocus/bpo_backend/utils"
	"github.com/sirupsen/logrus"
)

// Store is what the dispatcher needs from persistence. models.DispatchStore
// is the production implementation; tests substitute fakes.
type Store interface {
	FetchDueMessages(ctx context.Context, limit int) ([]*models.PendingMessage, error)
	MarkMessageSent(ctx context.Context, id string, sentAt time.Time) error
	MarkMessageFailed(ctx context.Context, id string, reason string) error
	RecordOutboundMessage(ctx context.Context, msg *models.ConversationMessage) error
}

// Sender delivers one message through the external WhatsApp provider.
type Sender interface {
	Send(ctx context.Context, phone string, text string) error
}

type DispatchResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type DispatchSummary struct {
	Processed int              `json:"processed"`
	Success   int              `json:"success"`
	Failed    int              `json:"failed"`
	Results   []DispatchResult `json:"results"`
}

// MessageDispatcher turns due rows into outbound sends. Failures are isolated
// per row: one bad message never blocks the batch. It does not retry failed
// rows itself; re-scheduling is the scheduler's job.
type MessageDispatcher struct {
	Store    Store
	Sender   Sender
	Logger   *logrus.Logger
	WorkerID string

	BatchLimit   int
	PollInterval time.Duration
	LockTTL      time.Duration
}

func NewMessageDispatcher(store Store, sender Sender, logger *logrus.Logger) *MessageDispatcher {
	return &MessageDispatcher{
		Store:        store,
		Sender:       sender,
		Logger:       logger,
		WorkerID:     "dispatch-" + time.Now().Format("20060102-150405.000"),
		BatchLimit:   50,
		PollInterval: 30 * time.Second,
		LockTTL:      60 * time.Second,
	}
}

// Run is the interval worker loop. Used when dispatch runs in-process instead
// of (or as a safety-net alongside) external cron/Pub/Sub triggers.
func (d *MessageDispatcher) Run(ctx context.Context) {
	if d == nil || d.Store == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// RunOnce runs a single batch, optionally guarded by a best-effort Redis lock
// so overlapping triggers don't double-send the same rows. Reliability must
// not depend on Redis: with the lock disabled or Redis down, the batch runs
// unguarded (the baseline dispatch semantics).
func (d *MessageDispatcher) RunOnce(ctx context.Context) {
	if config.DispatchLockEnabled() {
		if redisLock := config.GetRedisLock(); redisLock != nil {
			lock, err := redisLock.Obtain(ctx, "dispatch:batch", d.LockTTL, nil)
			if err != nil {
				// Another worker holds the batch; skip this tick.
				return
			}
			defer func() {
				_ = lock.Release(ctx)
			}()
		}
	}

	summary, err := d.ProcessDue(ctx, d.BatchLimit)
	if err != nil {
		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":     "MessageDispatcher",
				"worker_id": d.WorkerID,
			}).Error("dispatch batch failed: " + err.Error())
		}
		return
	}
	if d.Logger != nil && summary.Processed > 0 {
		d.Logger.WithFields(logrus.Fields{
			"field":     "MessageDispatcher",
			"worker_id": d.WorkerID,
			"processed": summary.Processed,
			"success":   summary.Success,
			"failed":    summary.Failed,
		}).Info("dispatch batch complete")
	}
}

// ProcessDue fetches up to batchLimit due rows and attempts each one
// independently, in view order. The batch itself only fails when the initial
// fetch fails; every row-level failure is recorded on that row and counted in
// the summary.
func (d *MessageDispatcher) ProcessDue(ctx context.Context, batchLimit int) (*DispatchSummary, error) {
	if batchLimit <= 0 {
		batchLimit = d.BatchLimit
	}

	rows, err := d.Store.FetchDueMessages(ctx, batchLimit)
	if err != nil {
		return nil, utils.NewExternalFailure("fetch due messages", err)
	}

	summary := &DispatchSummary{Results: make([]DispatchResult, 0, len(rows))}
	if len(rows) == 0 {
		return summary, nil
	}

	for _, row := range rows {
		rowCtx := utils.SetCompanyIdInContext(ctx, row.CompanyId)
		text := d.renderText(row)

		summary.Processed++

		if sendErr := d.send(rowCtx, row.Phone, text); sendErr != nil {
			d.recordFailure(rowCtx, row, sendErr)
			summary.Failed++
			summary.Results = append(summary.Results, DispatchResult{
				ID:     row.ID,
				Status: string(models.ScheduledMessageStatusFailed),
				Error:  sendErr.Error(),
			})
			continue
		}

		now := time.Now().UTC()
		if err := d.Store.MarkMessageSent(rowCtx, row.ID, now); err != nil {
			// The provider accepted the message but we couldn't record it;
			// surface it as this row's failure and move on.
			d.recordFailure(rowCtx, row, err)
			summary.Failed++
			summary.Results = append(summary.Results, DispatchResult{
				ID:     row.ID,
				Status: string(models.ScheduledMessageStatusFailed),
				Error:  err.Error(),
			})
			continue
		}

		correlationId, _ := utils.GetCorrelationIdFromContext(rowCtx)
		if err := d.Store.RecordOutboundMessage(rowCtx, &models.ConversationMessage{
			CompanyId:     row.CompanyId,
			Phone:         row.Phone,
			Direction:     models.ConversationDirectionOutbound,
			Message:       text,
			Data:          row.Data,
			CorrelationId: correlationId,
		}); err != nil && d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":      "MessageDispatcher",
				"company_id": row.CompanyId,
				"message_id": row.ID,
			}).Error("failed to append conversation history: " + err.Error())
		}

		summary.Success++
		summary.Results = append(summary.Results, DispatchResult{
			ID:     row.ID,
			Status: string(models.ScheduledMessageStatusSent),
		})
	}

	return summary, nil
}

// send isolates the external call: a panicking sender is converted into this
// row's failure instead of aborting the batch.
func (d *MessageDispatcher) send(ctx context.Context, phone string, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("send panic: %v", r)
		}
	}()
	if d.Sender == nil {
		return errors.New("sender is not configured")
	}
	return d.Sender.Send(ctx, phone, text)
}

// renderText picks the template function for the row's type tag when a
// structured payload is present; otherwise the stored text goes out as-is.
// Unknown tags and unparsable payloads also fall back to the stored text.
func (d *MessageDispatcher) renderText(row *models.PendingMessage) string {
	if row.MessageType != "" && len(row.Data) > 0 {
		var payload models.TemplatePayload
		if err := json.Unmarshal(row.Data, &payload); err == nil {
			if text, ok := models.RenderTemplate(models.TemplateTag(row.MessageType), payload); ok {
				return text
			}
		}
	}
	return row.Message
}

func (d *MessageDispatcher) recordFailure(ctx context.Context, row *models.PendingMessage, cause error) {
	if err := d.Store.MarkMessageFailed(ctx, row.ID, cause.Error()); err != nil && d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":      "MessageDispatcher",
			"company_id": row.CompanyId,
			"message_id": row.ID,
		}).Error("failed to record dispatch failure: " + err.Error())
	}
	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":      "MessageDispatcher",
			"company_id": row.CompanyId,
			"message_id": row.ID,
			"phone":      row.Phone,
		}).Error("dispatch failed: " + cause.Error())
	}
}
