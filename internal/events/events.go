// Package events records lobby and matchmaking events. Every event is logged
// through logrus; when Redis is configured each record is additionally pushed
// onto a list for the historian service to persist asynchronously. Event
// logging is observability only — request handling never depends on it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultQueueName is the Redis list lobby event records are pushed onto.
const DefaultQueueName = "lobby_events"

// Record is the wire format consumed by the historian.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	DeviceID  string         `json:"device_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Publisher fans event records out to logrus and, optionally, Redis.
type Publisher struct {
	log   *logrus.Logger
	rdb   *redis.Client
	queue string
}

// NewPublisher wraps a logger and an optional Redis client (nil disables the
// queue side).
func NewPublisher(log *logrus.Logger, rdb *redis.Client) *Publisher {
	queue := os.Getenv("EVENT_QUEUE_NAME")
	if queue == "" {
		queue = DefaultQueueName
	}
	return &Publisher{log: log, rdb: rdb, queue: queue}
}

// ConnectRedis initializes a Redis client from REDIS_ADDR / REDIS_DB and
// verifies connectivity.
func ConnectRedis(ctx context.Context) (*redis.Client, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Publish records an event. Failures to enqueue are logged and swallowed;
// event logging must never fail a request.
func (p *Publisher) Publish(ctx context.Context, eventType, deviceID string, data map[string]any) {
	p.log.WithFields(logrus.Fields{
		"event":     eventType,
		"device_id": deviceID,
		"data":      data,
	}).Info("lobby event")

	if p.rdb == nil {
		return
	}
	record := Record{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		DeviceID:  deviceID,
		Data:      data,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		p.log.Warnf("events: failed to marshal record %s: %v", eventType, err)
		return
	}
	if err := p.rdb.RPush(ctx, p.queue, payload).Err(); err != nil {
		p.log.Warnf("events: failed to enqueue record %s: %v", eventType, err)
	}
}
