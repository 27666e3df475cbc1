// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account_test

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/accounts/internal/account"
)

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserStore) FindByUsername(ctx context.Context, username string) (*account.Account, error) {
	args := m.Called(ctx, username)
	acct, _ := args.Get(0).(*account.Account)
	return acct, args.Error(1)
}

func (m *mockUserStore) FindByID(ctx context.Context, id ulid.ULID) (*account.Account, error) {
	args := m.Called(ctx, id)
	acct, _ := args.Get(0).(*account.Account)
	return acct, args.Error(1)
}

func (m *mockUserStore) Save(ctx context.Context, acct *account.Account) error {
	return m.Called(ctx, acct).Error(0)
}

type mockRefreshTokenStore struct{ mock.Mock }

func (m *mockRefreshTokenStore) Issue(ctx context.Context, token *account.RefreshToken) error {
	return m.Called(ctx, token).Error(0)
}

func (m *mockRefreshTokenStore) FindByAccount(ctx context.Context, accountID ulid.ULID) (*account.RefreshToken, error) {
	args := m.Called(ctx, accountID)
	rt, _ := args.Get(0).(*account.RefreshToken)
	return rt, args.Error(1)
}

func (m *mockRefreshTokenStore) FindByTokenHash(ctx context.Context, tokenHash string) (*account.RefreshToken, error) {
	args := m.Called(ctx, tokenHash)
	rt, _ := args.Get(0).(*account.RefreshToken)
	return rt, args.Error(1)
}

func (m *mockRefreshTokenStore) DeleteByAccount(ctx context.Context, accountID ulid.ULID) error {
	return m.Called(ctx, accountID).Error(0)
}

func (m *mockRefreshTokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type mockRevokedStore struct{ mock.Mock }

func (m *mockRevokedStore) Revoke(ctx context.Context, entry *account.RevokedAccessToken) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *mockRevokedStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Bool(0), args.Error(1)
}

func (m *mockRevokedStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type mockHasher struct{ mock.Mock }

func (m *mockHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *mockHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

func (m *mockHasher) NeedsUpgrade(hash string) bool {
	return m.Called(hash).Bool(0)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []account.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event account.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Types() []account.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]account.EventType, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

// recordingMetrics counts operations by "op/outcome" and swept records by kind.
type recordingMetrics struct {
	mu    sync.Mutex
	ops   map[string]int
	swept map[string]int64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{ops: map[string]int{}, swept: map[string]int64{}}
}

func (m *recordingMetrics) RecordOperation(operation string, outcome account.Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	label := string(outcome)
	if outcome == account.KindNone {
		label = "ok"
	}
	m.ops[operation+"/"+label]++
}

func (m *recordingMetrics) RecordSwept(kind string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swept[kind] += count
}

func (m *recordingMetrics) Op(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ops[key]
}

func (m *recordingMetrics) Swept(kind string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.swept[kind]
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
