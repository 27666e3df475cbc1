// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType names a lifecycle event.
type EventType string

// Lifecycle events.
const (
	EventRegistered EventType = "account.registered"
	EventLoggedIn   EventType = "account.logged_in"
	EventLoggedOut  EventType = "account.logged_out"
	EventWithdrawn  EventType = "account.withdrawn"
)

// Event describes a completed lifecycle operation.
type Event struct {
	ID         ulid.ULID `json:"id"`
	Type       EventType `json:"type"`
	AccountID  string    `json:"account_id"`
	Username   string    `json:"username"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher delivers lifecycle events to interested parties.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

// MetricsRecorder receives operation outcomes.
type MetricsRecorder interface {
	RecordOperation(operation string, outcome Kind)
	RecordSwept(kind string, count int64)
}

type nopMetrics struct{}

func (nopMetrics) RecordOperation(string, Kind) {}
func (nopMetrics) RecordSwept(string, int64)    {}
