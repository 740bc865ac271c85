package messaging

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/insights/config"
)

// AzureServiceBus consumes order events from one Service Bus queue. Ordering
// is guaranteed only within a partition; duplicates and reordering across
// partitions are expected and handled by the engine's idempotency gate.
type AzureServiceBus struct {
	client    *azservicebus.Client
	queueName string
	batchSize int
}

// NewAzureServiceBus creates a new Azure Service Bus consumer
func NewAzureServiceBus(cfg config.AzureConfig, batchSize int) (*AzureServiceBus, error) {
	if cfg.QueueConnStr == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	if batchSize <= 0 {
		batchSize = 10
	}

	return &AzureServiceBus{
		client:    client,
		queueName: cfg.QueueName,
		batchSize: batchSize,
	}, nil
}

// ProcessMessages receives messages until ctx is cancelled, handing each one
// to the processor and acknowledging it per the processor's outcome. One bad
// message never stops the loop; receive errors back off and retry.
func (b *AzureServiceBus) ProcessMessages(ctx context.Context, processor *Processor) error {
	receiver, err := b.client.NewReceiverForQueue(b.queueName, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create Service Bus receiver")
	}
	defer func() {
		if err := receiver.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("Error closing Service Bus receiver")
		}
	}()

	for {
		messages, err := receiver.ReceiveMessages(ctx, b.batchSize, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("Error receiving messages, backing off")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(2 * time.Second):
			}
			continue
		}

		for _, message := range messages {
			outcome := processor.Process(ctx, message)
			b.settle(ctx, receiver, message, outcome)
		}
	}
}

// settle acknowledges one message according to its outcome. Settlement
// failures are logged and absorbed; the lock will expire and the idempotency
// gate makes the resulting redelivery harmless.
func (b *AzureServiceBus) settle(ctx context.Context, receiver *azservicebus.Receiver, message *azservicebus.ReceivedMessage, outcome Outcome) {
	switch outcome.Disposition() {
	case DispositionDeadLetter:
		if err := receiver.DeadLetterMessage(ctx, message, nil); err != nil {
			log.Error().Err(err).Str("message_id", message.MessageID).Msg("Failed to dead-letter message")
		}
	default:
		if err := receiver.CompleteMessage(ctx, message, nil); err != nil {
			log.Error().Err(err).Str("message_id", message.MessageID).Msg("Failed to complete message")
		}
	}
}

// Close closes the Service Bus client
func (b *AzureServiceBus) Close() error {
	if b.client != nil {
		return b.client.Close(context.Background())
	}
	return nil
}
