package kafka_test

import (
	"testing"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/channels/kafka"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
)

func TestParseBrokers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a:9092", "b:9092"}, kafka.ParseBrokers(" a:9092, ,b:9092,"))
	assert.Empty(t, kafka.ParseBrokers(""))
}

func TestCreateChannel_RequiresBrokers(t *testing.T) {
	t.Parallel()

	_, _, err := kafka.CreateChannel(watermill.NopLogger{}, nil, "composer")
	assert.Error(t, err)
}
