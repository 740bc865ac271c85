package messaging

import (
	"context"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/insights/internal/metrics"
	"example.com/backstage/services/insights/internal/models"
	"example.com/backstage/services/insights/internal/services"
)

// stubEngine records the last invocation and returns a canned result.
type stubEngine struct {
	applied       bool
	err           error
	calls         int
	lastEvent     *models.InboundEvent
	lastCorrelate string
}

func (s *stubEngine) ProcessEvent(ctx context.Context, event *models.InboundEvent, correlationID string) (services.ProcessResult, error) {
	s.calls++
	s.lastEvent = event
	s.lastCorrelate = correlationID
	if s.err != nil {
		return services.ProcessResult{}, s.err
	}
	return services.ProcessResult{Applied: s.applied, EventID: uuid.New()}, nil
}

func message(body string, properties map[string]interface{}) *azservicebus.ReceivedMessage {
	return &azservicebus.ReceivedMessage{
		MessageID:             "msg-1",
		Body:                  []byte(body),
		ApplicationProperties: properties,
	}
}

func TestProcessApplied(t *testing.T) {
	engine := &stubEngine{applied: true}
	processor := NewProcessor(engine, metrics.NewMetrics())

	outcome := processor.Process(context.Background(),
		message(`{"eventType": "order.created", "orderId": 1}`, nil))

	assert.Equal(t, OutcomeApplied, outcome)
	require.NotNil(t, engine.lastEvent)
	assert.Equal(t, "order.created", engine.lastEvent.EventType)
	assert.Equal(t, int64(1), engine.lastEvent.OrderID)
}

func TestProcessDuplicate(t *testing.T) {
	engine := &stubEngine{applied: false}
	processor := NewProcessor(engine, metrics.NewMetrics())

	outcome := processor.Process(context.Background(),
		message(`{"eventType": "order.created", "orderId": 1}`, nil))

	assert.Equal(t, OutcomeDuplicate, outcome)
}

func TestProcessEngineFailure(t *testing.T) {
	engine := &stubEngine{err: errors.New("database down")}
	processor := NewProcessor(engine, metrics.NewMetrics())

	outcome := processor.Process(context.Background(),
		message(`{"eventType": "order.created", "orderId": 1}`, nil))

	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, DispositionComplete, outcome.Disposition(),
		"engine failures are consumed, not redelivered")
}

func TestProcessRejectsUndecodableBody(t *testing.T) {
	engine := &stubEngine{applied: true}
	processor := NewProcessor(engine, metrics.NewMetrics())

	outcome := processor.Process(context.Background(), message(`not json`, nil))

	assert.Equal(t, OutcomeRejected, outcome)
	assert.Equal(t, 0, engine.calls, "undecodable messages never reach the engine")
}

func TestDecodeEnvelope(t *testing.T) {
	envelope, err := DecodeEnvelope([]byte(`{
		"eventType": "order.confirmed",
		"orderId": 42,
		"userId": 7,
		"correlationToken": "tok-1",
		"data": {"totalAmount": 10}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "order.confirmed", envelope.EventType)
	assert.Equal(t, int64(42), envelope.OrderID)
	require.NotNil(t, envelope.UserID)
	assert.Equal(t, int64(7), *envelope.UserID)
	assert.Equal(t, "tok-1", envelope.CorrelationToken)
	assert.JSONEq(t, `{"totalAmount": 10}`, string(envelope.Data))
}

func TestDecodeEnvelopeMissingFields(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"orderId": 42}`))
	require.Error(t, err)

	_, err = DecodeEnvelope([]byte(`{"eventType": "order.created"}`))
	require.Error(t, err)

	_, err = DecodeEnvelope([]byte(`{{`))
	require.Error(t, err)
}

func TestResolveCorrelationPrecedence(t *testing.T) {
	properties := map[string]interface{}{"correlationId": "from-property"}

	assert.Equal(t, "from-property", ResolveCorrelation(properties, "from-envelope"),
		"message property wins over the envelope token")

	assert.Equal(t, "from-envelope", ResolveCorrelation(nil, "from-envelope"))
	assert.Equal(t, "from-envelope", ResolveCorrelation(map[string]interface{}{"correlationId": ""}, "from-envelope"))

	synthesized := ResolveCorrelation(nil, "")
	_, err := uuid.Parse(synthesized)
	require.NoError(t, err, "a missing correlation id is synthesized, never empty")
}

func TestDispositionMapping(t *testing.T) {
	assert.Equal(t, DispositionComplete, OutcomeApplied.Disposition())
	assert.Equal(t, DispositionComplete, OutcomeDuplicate.Disposition())
	assert.Equal(t, DispositionComplete, OutcomeFailed.Disposition())
	assert.Equal(t, DispositionDeadLetter, OutcomeRejected.Disposition())
}
