// Package redisstream publishes audit events to a capped Redis stream for
// consumers that tail the trail in near real time.
package redisstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	audit "casetrail/pkg/platform/audit"
)

// Sink appends each event as one stream entry. The stream is trimmed with
// approximate MAXLEN so XADD stays O(1).
type Sink struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// New creates a sink writing to stream. maxLen <= 0 disables trimming.
func New(client redis.Cmdable, stream string, maxLen int64) *Sink {
	return &Sink{client: client, stream: stream, maxLen: maxLen}
}

// Send adds event to the stream.
func (s *Sink) Send(ctx context.Context, event audit.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":                 event.ID.String(),
			"activityType":       string(event.ActivityType),
			"businessObjectType": string(event.BusinessObjectType),
			"businessObjectId":   event.BusinessObjectID,
			"payload":            payload,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// Entry is one decoded stream entry.
type Entry struct {
	StreamID string
	Event    audit.AuditEvent
}

// ReadRange returns up to count entries after the stream id start ("-" for
// the beginning).
func (s *Sink) ReadRange(ctx context.Context, start string, count int64) ([]Entry, error) {
	msgs, err := s.client.XRangeN(ctx, s.stream, start, "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("xrange %s: %w", s.stream, err)
	}
	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["payload"].(string)
		if !ok {
			return nil, fmt.Errorf("stream entry %s has no payload", msg.ID)
		}
		var event audit.AuditEvent
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			return nil, fmt.Errorf("decode stream entry %s: %w", msg.ID, err)
		}
		entries = append(entries, Entry{StreamID: msg.ID, Event: event})
	}
	return entries, nil
}

// Len reports the current stream length.
func (s *Sink) Len(ctx context.Context) (int64, error) {
	n, err := s.client.XLen(ctx, s.stream).Result()
	if err != nil {
		return 0, fmt.Errorf("xlen %s: %w", s.stream, err)
	}
	return n, nil
}

// Health pings Redis within a short deadline.
func (s *Sink) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.client.Ping(ctx).Err()
}
