package ingress

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/stream-wager-platform/pkg/contracts/events"
)

// Handler recebe cada evento de analytics decodificado. É o engine em
// produção; o consumer não conhece a semântica de settlement.
type Handler interface {
	HandleAnalyticsEvent(ctx context.Context, ev *events.AnalyticsEvent) error
}

// Consumer consome o tópico analytics_events e repassa cada medição ao
// handler. Mensagens indecodificáveis vão para a DLQ (quando configurada) —
// payload malformado nunca vira win/loss.
type Consumer struct {
	Log     *zap.Logger
	Reader  *kafka.Reader
	DLQ     *kafka.Writer // opcional
	Handler Handler

	OnConsumed func()       // métricas (counter++)
	OnError    func(string) // métricas por fase
}

// Run inicia o loop principal de consumo. Retorna quando o contexto encerra.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.Log.Warn("kafka read failed", zap.Error(err))
			if c.OnError != nil {
				c.OnError("read")
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if c.OnConsumed != nil {
			c.OnConsumed()
		}

		var ev events.AnalyticsEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil || ev.StreamID == "" {
			c.Log.Warn("invalid analytics message", zap.Error(err))
			if c.OnError != nil {
				c.OnError("decode")
			}
			if c.DLQ != nil {
				_ = c.DLQ.WriteMessages(ctx, kafka.Message{Key: m.Key, Value: m.Value, Time: time.Now()})
			}
			continue
		}

		if err := c.Handler.HandleAnalyticsEvent(ctx, &ev); err != nil {
			c.Log.Warn("handle analytics event failed",
				zap.String("streamId", ev.StreamID), zap.Error(err))
			if c.OnError != nil {
				c.OnError("handle")
			}
		}
	}
}
