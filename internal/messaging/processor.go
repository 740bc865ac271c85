package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/insights/internal/metrics"
	"example.com/backstage/services/insights/internal/models"
	"example.com/backstage/services/insights/internal/services"
)

// Outcome classifies what happened to one message. The ack decision is a
// pure function of this value (see Disposition), never of a caught error.
type Outcome int

const (
	// OutcomeApplied: the event was ledgered and aggregated.
	OutcomeApplied Outcome = iota
	// OutcomeDuplicate: the event was already ledgered; nothing changed.
	OutcomeDuplicate
	// OutcomeFailed: the engine failed after a valid envelope. The message is
	// still consumed; this is an at-most-one-attempt pipeline, not
	// retry-until-success.
	OutcomeFailed
	// OutcomeRejected: the envelope could not be decoded, so the event never
	// reached the engine.
	OutcomeRejected
)

// Disposition is the transport-level acknowledgment for an Outcome.
type Disposition int

const (
	DispositionComplete Disposition = iota
	DispositionDeadLetter
)

// Disposition maps an outcome to its ack decision. Everything that reached
// the engine is completed, including failures; only undecodable envelopes are
// dead-lettered so they can be inspected instead of redelivered forever.
func (o Outcome) Disposition() Disposition {
	if o == OutcomeRejected {
		return DispositionDeadLetter
	}
	return DispositionComplete
}

// correlationProperty is the message application property carrying the
// correlation token. It takes precedence over the in-envelope value.
const correlationProperty = "correlationId"

// Envelope is the wire shape of one transport message.
type Envelope struct {
	EventType        string          `json:"eventType"`
	OrderID          int64           `json:"orderId"`
	UserID           *int64          `json:"userId"`
	CorrelationToken string          `json:"correlationToken"`
	Data             json.RawMessage `json:"data"`
}

// EventProcessor is the slice of the insights service the adapter needs.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, event *models.InboundEvent, correlationID string) (services.ProcessResult, error)
}

// Processor is the ingress adapter: it turns one raw Service Bus message into
// one engine invocation and one Outcome. It never panics a consumer loop over
// a bad message.
type Processor struct {
	service EventProcessor
	ops     *metrics.Metrics
}

// NewProcessor creates a new ingress processor
func NewProcessor(service EventProcessor, ops *metrics.Metrics) *Processor {
	return &Processor{
		service: service,
		ops:     ops,
	}
}

// Process handles one received message end to end and reports its outcome.
func (p *Processor) Process(ctx context.Context, message *azservicebus.ReceivedMessage) Outcome {
	start := time.Now()
	defer func() {
		p.ops.RecordDuration("event_processing", time.Since(start))
	}()

	envelope, err := DecodeEnvelope(message.Body)
	if err != nil {
		log.Error().Err(err).Str("message_id", message.MessageID).Msg("Rejecting undecodable message")
		p.ops.IncrementCounter(metrics.CounterEventsRejected)
		return OutcomeRejected
	}

	correlationID := ResolveCorrelation(message.ApplicationProperties, envelope.CorrelationToken)

	event := &models.InboundEvent{
		EventType: envelope.EventType,
		OrderID:   envelope.OrderID,
		UserID:    envelope.UserID,
		Payload:   envelope.Data,
	}

	result, err := p.service.ProcessEvent(ctx, event, correlationID)
	if err != nil {
		log.Error().
			Err(err).
			Str("message_id", message.MessageID).
			Str("event_type", envelope.EventType).
			Int64("order_id", envelope.OrderID).
			Str("correlation_id", correlationID).
			Msg("Failed to process event, message will be consumed anyway")
		return OutcomeFailed
	}

	if !result.Applied {
		return OutcomeDuplicate
	}
	return OutcomeApplied
}

// DecodeEnvelope parses a raw message body. An envelope without an event type
// or order id cannot be ledgered and is rejected before reaching the engine.
func DecodeEnvelope(body []byte) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal message envelope")
	}

	if envelope.EventType == "" {
		return nil, errors.New("message envelope has no event type")
	}
	if envelope.OrderID == 0 {
		return nil, errors.New("message envelope has no order id")
	}

	return &envelope, nil
}

// ResolveCorrelation picks the correlation id for one message: the message
// application property wins over the in-envelope token; when neither is
// present one is synthesized so every ledger row is traceable.
func ResolveCorrelation(properties map[string]interface{}, envelopeToken string) string {
	if v, ok := properties[correlationProperty].(string); ok && v != "" {
		return v
	}
	if envelopeToken != "" {
		return envelopeToken
	}
	return uuid.New().String()
}
