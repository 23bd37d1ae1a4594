package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/stream-wager-platform/internal/wager-service/pubsub"
	"github.com/radieske/stream-wager-platform/pkg/contracts/events"
)

// StartRedisSubscriber inicia uma goroutine que escuta o canal Redis Pub/Sub
// de atualizações de apostas e repassa ao Hub
//
// Funcionamento:
// - Recebe mensagens JSON (contrato events.BetSettled) do canal Redis
// - Converte para BetUpdate
// - Chama hub.Broadcast para enviar aos clientes inscritos no stream
func StartRedisSubscriber(ctx context.Context, r *redis.Client, hub *Hub) {
	sub := r.Subscribe(ctx, pubsub.ChannelBetBroadcast)
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close() // encerra a inscrição ao finalizar o contexto
				return
			case msg := <-ch:
				if msg == nil {
					continue
				}
				var ev events.BetSettled
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Printf("ws subscriber unmarshal error: %v", err)
					continue
				}
				hub.Broadcast(BetUpdate{
					StreamID:    ev.StreamID,
					BetID:       ev.BetID,
					UserID:      ev.UserID,
					BetType:     ev.BetType,
					Status:      ev.Status,
					PayoutCents: ev.PayoutCents,
				})
			}
		}
	}()
}
