package collab

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const bridgeChannel = "notify:collab"

// Bridge fans room events out across server instances through Redis pub/sub.
// Room membership is process-local, so when participants of one note land on
// different instances each instance re-emits foreign-origin events to its own
// local room. Single-instance deployments run without a bridge.
type Bridge struct {
	client *redis.Client
	origin string
	log    *logrus.Entry
}

type bridgeEnvelope struct {
	Origin  string          `json:"origin"`
	Room    string          `json:"room"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func NewBridge(client *redis.Client) *Bridge {
	origin := uuid.NewString()
	return &Bridge{
		client: client,
		origin: origin,
		log:    logrus.WithField("bridge_origin", origin),
	}
}

// Publish mirrors a room emit onto the shared channel. Publish failures are
// logged and swallowed: local delivery already happened and must not be
// rolled back.
func (b *Bridge) Publish(room, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.log.WithError(err).Error("failed to marshal bridge payload")
		return
	}
	env := bridgeEnvelope{
		Origin:  b.origin,
		Room:    room,
		Event:   event,
		Payload: raw,
	}
	data, err := json.Marshal(env)
	if err != nil {
		b.log.WithError(err).Error("failed to marshal bridge envelope")
		return
	}
	if err := b.client.Publish(context.Background(), bridgeChannel, data).Err(); err != nil {
		b.log.WithError(err).Warn("failed to publish to bridge")
	}
}

// Subscribe starts the relay loop delivering foreign-origin events into the
// local emitter. It returns once subscribed; the loop runs until ctx is
// cancelled.
func (b *Bridge) Subscribe(ctx context.Context, local Emitter) {
	pubsub := b.client.Subscribe(ctx, bridgeChannel)

	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				b.deliver(local, msg.Payload)
			}
		}
	}()
}

func (b *Bridge) deliver(local Emitter, raw string) {
	var env bridgeEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		b.log.WithError(err).Warn("dropping malformed bridge envelope")
		return
	}
	if env.Origin == b.origin {
		return
	}

	var payload any
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		b.log.WithError(err).Warn("dropping undecodable bridge payload")
		return
	}
	local.ToRoom(env.Room, env.Event, payload)
}
