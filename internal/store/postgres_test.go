// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/holomush/accounts/pkg/errutil"
)

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "::not a url::", DefaultConnectOptions)
	errutil.AssertErrorCode(t, err, "DB_CONFIG_INVALID")
}

func TestConnect_GivesUpAfterAttempts(t *testing.T) {
	opts := ConnectOptions{Attempts: 2, Backoff: time.Millisecond, Timeout: 200 * time.Millisecond}

	start := time.Now()
	_, err := Connect(context.Background(), "postgres://accounts@127.0.0.1:1/accounts?connect_timeout=1", opts)
	errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
	errutil.AssertErrorContext(t, err, "attempts", 2)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestConnect_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Connect(ctx, "postgres://accounts@127.0.0.1:1/accounts", ConnectOptions{Attempts: 10, Backoff: time.Second})
	errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
}
