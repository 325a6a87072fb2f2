package cmd

import (
	"fmt"
	"log/slog"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/channels/gochannel"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/channels/kafka"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/eventbus"
	"github.com/ThreeDotsLabs/watermill"
)

// ServiceName is the Kafka consumer group suffix and the tracer service name.
const ServiceName = "composer-api"

// NewEventBus creates the event bus for provider. kafkaBrokers is a comma
// separated list used by the kafka provider.
func NewEventBus(provider, kafkaBrokers string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "gochannel":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create gochannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, kafka.ParseBrokers(kafkaBrokers), ServiceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
