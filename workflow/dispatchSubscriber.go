package workflow

import (
	"context"
	"encoding/json"
	"os"

	"bitbucket.org/mmdatafocus/bpo_backend/config"
	"bitbucket.org/mmdatafocus/bpo_backend/utils"
	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
)

// RunDispatchSubscriber consumes dispatch triggers from Pub/Sub
// (Cloud Scheduler publishes one per interval) and runs a batch per trigger.
// Returns without error when the Pub/Sub env is ready; the receive loop runs
// in the background until ctx is canceled.
func RunDispatchSubscriber(ctx context.Context, d *MessageDispatcher) error {
	logger := config.GetLogger()
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(client, os.Getenv("PUBSUB_DISPATCH_TOPIC"))
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(client, os.Getenv("PUBSUB_DISPATCH_SUBSCRIPTION"), topic)
	if err != nil {
		return err
	}
	// Batches touch the same due view; one at a time per instance.
	sub.ReceiveSettings.MaxOutstandingMessages = 1

	callback := func(ctx context.Context, msg *pubsub.Message) {
		trigger := config.DispatchTrigger{}
		if err := json.Unmarshal(msg.Data, &trigger); err != nil {
			config.LogError(logger, "dispatchSubscriber.go", "RunDispatchSubscriber", "Unmarshaling dispatch trigger", msg.Data, err)
			// Malformed trigger: ack/drop to avoid infinite redelivery.
			msg.Ack()
			return
		}

		if trigger.CorrelationId != "" {
			ctx = utils.SetCorrelationIdInContext(ctx, trigger.CorrelationId)
		}
		// A company-scoped trigger narrows the due fetch to that tenant.
		if trigger.CompanyId != "" {
			ctx = utils.SetCompanyIdInContext(ctx, trigger.CompanyId)
		}

		batchLimit := trigger.BatchLimit
		if batchLimit <= 0 {
			batchLimit = d.BatchLimit
		}
		summary, err := d.ProcessDue(ctx, batchLimit)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"field":      "DispatchSubscriber",
				"message_id": msg.ID,
			}).Error("triggered dispatch failed: " + err.Error())
			msg.Nack()
			return
		}
		logger.WithFields(logrus.Fields{
			"field":      "DispatchSubscriber",
			"message_id": msg.ID,
			"processed":  summary.Processed,
			"success":    summary.Success,
			"failed":     summary.Failed,
		}).Info("triggered dispatch complete")
		msg.Ack()
	}

	go func() {
		if err := sub.Receive(ctx, callback); err != nil {
			config.LogError(logger, "dispatchSubscriber.go", "RunDispatchSubscriber", "Failed to receive messages", nil, err)
		}
	}()

	return nil
}
