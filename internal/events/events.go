package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Event types published on flag mutations.
const (
	TypeFlagCreated      = "flag.created"
	TypeFlagUpdated      = "flag.updated"
	TypeFlagToggled      = "flag.toggled"
	TypeFlagDeleted      = "flag.deleted"
	TypeRolloutScheduled = "rollout.scheduled"
	TypeRolloutAdvanced  = "rollout.advanced"
	TypeRolloutCompleted = "rollout.completed"
)

// Event describes a flag change. Delivery guarantees belong to the
// transport; the service only emits.
type Event struct {
	Type              string    `json:"type"`
	FlagID            uint64    `json:"flag_id"`
	FlagName          string    `json:"flag_name"`
	Enabled           *bool     `json:"enabled,omitempty"`
	RolloutPercentage *int      `json:"rollout_percentage,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// Publisher delivers flag change events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// LogPublisher writes events to the service log. It is the fallback when no
// broker is configured.
type LogPublisher struct{}

// NewLogPublisher constructs a LogPublisher.
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

// Publish logs the event.
func (p *LogPublisher) Publish(_ context.Context, event Event) {
	log.WithFields(log.Fields{
		"type": event.Type,
		"flag": event.FlagName,
		"id":   event.FlagID,
	}).Info("flag event")
}

// RedisPublisher broadcasts events on a Redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher constructs a RedisPublisher.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = "flagservice:events"
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Publish marshals the event and fires it at the channel. Failures are logged
// and dropped; event delivery is best-effort by contract.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) {
	if p == nil || p.client == nil {
		return
	}
	payload, errMarshal := json.Marshal(event)
	if errMarshal != nil {
		log.WithError(errMarshal).Warn("events: marshal failed")
		return
	}
	if errPublish := p.client.Publish(ctx, p.channel, payload).Err(); errPublish != nil {
		log.WithError(errPublish).Warn("events: publish failed")
	}
}
