package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/radieske/stream-wager-platform/pkg/contracts/events"
)

// Broadcaster replica eventos terminais para o canal Redis Pub/Sub que
// alimenta o hub WebSocket (opcional)
type Broadcaster interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// KafkaPublisher publica eventos de ciclo de vida de apostas nos tópicos
// bet_placed e bet_settled
type KafkaPublisher struct {
	Placed    *kafka.Writer
	Settled   *kafka.Writer
	Broadcast Broadcaster
	Channel   string
}

func NewKafkaPublisher(placed, settled *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{Placed: placed, Settled: settled}
}

func (p *KafkaPublisher) PublishBetPlaced(ctx context.Context, e events.BetPlaced) error {
	e.TsUnixMs = time.Now().UnixMilli()
	b, _ := json.Marshal(e)
	return p.Placed.WriteMessages(ctx, kafka.Message{Key: []byte(e.BetID), Value: b})
}

func (p *KafkaPublisher) PublishBetSettled(ctx context.Context, e events.BetSettled) error {
	b, _ := json.Marshal(e)
	if p.Broadcast != nil && p.Channel != "" {
		// broadcast é melhor esforço; kafka é o canal durável
		_ = p.Broadcast.Publish(ctx, p.Channel, b)
	}
	return p.Settled.WriteMessages(ctx, kafka.Message{Key: []byte(e.BetID), Value: b})
}
