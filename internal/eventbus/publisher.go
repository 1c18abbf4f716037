package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/sony/gobreaker"
)

// Publisher is the narrow contract the instance runtime and lobby depend
// on; nothing in their code imports watermill directly.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// watermillPublisher adapts one or more message.Publisher backends behind
// the Publisher contract. Every configured backend receives every event;
// a failure on the optional AMQP backend is logged and swallowed, never
// propagated to the instance goroutine that triggered it.
type watermillPublisher struct {
	logger   *slog.Logger
	local    message.Publisher
	amqp     message.Publisher // nil when no AMQP URL is configured
	amqpTrip *gobreaker.CircuitBreaker
}

// NewInProcess builds a Publisher whose only backend is an in-process
// gochannel bus, additionally drained by a slog sink so lifecycle events
// are always observable even with zero external infrastructure
// configured (SPEC_FULL.md §4.J).
func NewInProcess(logger *slog.Logger) (Publisher, *message.Router, error) {
	wlogger := watermill.NewSlogLogger(logger)
	pubSub := gochannelPubSub(wlogger)

	router, err := message.NewRouter(message.RouterConfig{}, wlogger)
	if err != nil {
		return nil, nil, fmt.Errorf("eventbus: build router: %w", err)
	}
	for _, kind := range []Kind{KindInstanceCreated, KindClientJoined, KindClientLeft, KindInstanceTerminated} {
		topic := (Event{Kind: kind}).topic()
		router.AddNoPublisherHandler("log-"+string(kind), topic, pubSub, loggingHandler(logger))
	}

	return &watermillPublisher{logger: logger, local: pubSub}, router, nil
}

// WithAMQP wires an additional AMQP topic-exchange publisher behind a
// circuit breaker, so a flaky broker degrades the optional fan-out
// without ever blocking or failing the caller. This is a secondary sink
// only — see package doc.
func WithAMQP(base Publisher, amqpURL string, logger *slog.Logger) (Publisher, error) {
	wp, ok := base.(*watermillPublisher)
	if !ok {
		return base, fmt.Errorf("eventbus: WithAMQP requires a publisher built by NewInProcess")
	}

	pub, err := amqp.NewPublisher(amqp.NewDurablePubSubConfig(amqpURL, amqp.GenerateQueueNameTopicName), watermill.NewSlogLogger(logger))
	if err != nil {
		return base, fmt.Errorf("eventbus: build amqp publisher: %w", err)
	}

	wp.amqp = pub
	wp.amqpTrip = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "eventbus-amqp",
	})
	return wp, nil
}

func (p *watermillPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.local.Publish(ev.topic(), msg); err != nil {
		return fmt.Errorf("eventbus: publish local: %w", err)
	}

	if p.amqp == nil {
		return nil
	}

	_, err = p.amqpTrip.Execute(func() (any, error) {
		return nil, p.amqp.Publish(ev.topic(), msg)
	})
	if err != nil {
		p.logger.Warn("eventbus: amqp fan-out degraded", "error", err, "kind", ev.Kind)
	}
	return nil
}

func loggingHandler(logger *slog.Logger) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		var ev Event
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return fmt.Errorf("eventbus: unmarshal event: %w", err)
		}
		logger.Info("instance lifecycle event",
			"kind", ev.Kind,
			"instance_id", ev.InstanceID,
			"client_id", ev.ClientID,
		)
		return nil
	}
}

func gochannelPubSub(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
}
