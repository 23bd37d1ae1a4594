package pubsub

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// ChannelBetBroadcast é o canal Redis Pub/Sub de atualizações de apostas
const ChannelBetBroadcast = "bet_updates_broadcast"

type RedisBroadcaster struct {
	r *redis.Client
}

func NewRedisBroadcaster(r *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{r: r}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.r.Publish(ctx, channel, payload).Err()
}
