package gormgw

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/communekit/core/internal/gateway"
	redisc "github.com/communekit/core/internal/pkg/redis"
	"go.uber.org/zap"
)

type redisSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *redisSubscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// Subscribe listens on the recipient's notification channel and forwards
// decoded push events until the handle is closed.
func (g *Gateway) Subscribe(recipientID string, onInsert func(gateway.PushEvent), onError func(error)) (gateway.Subscription, error) {
	if g.rc == nil {
		return nil, errors.New("push channel unavailable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	pubsub := g.rc.Subscribe(ctx, redisc.NotifyChannel(recipientID))

	sub := &redisSubscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev gateway.PushEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					g.log.Warn("bad push payload", zap.Error(err))
					if onError != nil {
						onError(err)
					}
					continue
				}
				if ev.NotificationID == "" {
					continue
				}
				onInsert(ev)
			}
		}
	}()

	return sub, nil
}
