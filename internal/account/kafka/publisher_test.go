// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/account"
	"github.com/holomush/accounts/pkg/errutil"
)

type fakeWriter struct {
	msgs     []kafka.Message
	deadline time.Time
	writeErr error
	closeErr error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.deadline, _ = ctx.Deadline()
	if w.writeErr != nil {
		return w.writeErr
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func sampleEvent() account.Event {
	return account.Event{
		ID:         ulid.Make(),
		Type:       account.EventWithdrawn,
		AccountID:  ulid.Make().String(),
		Username:   "playerone1",
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewPublisher_RequiresBrokers(t *testing.T) {
	_, err := NewPublisher(nil, "")
	errutil.AssertErrorCode(t, err, "EVENTS_CONFIG_INVALID")
}

func TestNewPublisher_DefaultTopic(t *testing.T) {
	p, err := NewPublisher([]string{"localhost:9092"}, "")
	require.NoError(t, err)
	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, DefaultTopic, w.Topic)
	require.NoError(t, p.Close())
}

func TestPublish_WritesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w)
	event := sampleEvent()

	require.NoError(t, p.Publish(context.Background(), event))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, event.AccountID, string(msg.Key))
	assert.Equal(t, event.OccurredAt, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, string(account.EventWithdrawn), string(msg.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "account.withdrawn", decoded["type"])
	assert.Equal(t, "playerone1", decoded["username"])
	assert.NotContains(t, decoded, "password_hash")

	assert.False(t, w.deadline.IsZero(), "publish is bounded by a timeout")
}

func TestPublish_WriteFailure(t *testing.T) {
	w := &fakeWriter{writeErr: errors.New("leader not available")}
	event := sampleEvent()

	err := newPublisher(w).Publish(context.Background(), event)
	errutil.AssertErrorCode(t, err, "EVENTS_PUBLISH_FAILED")
	errutil.AssertErrorContext(t, err, "account_id", event.AccountID)
}

func TestClose(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, newPublisher(w).Close())
	assert.True(t, w.closed)

	w = &fakeWriter{closeErr: errors.New("flush failed")}
	errutil.AssertErrorCode(t, newPublisher(w).Close(), "EVENTS_CLOSE_FAILED")
}
