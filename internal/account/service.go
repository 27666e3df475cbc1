// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/accounts/pkg/errutil"
)

var tracer = otel.Tracer("holomush/accounts")

// DefaultRefreshTokenTTL is the refresh token lifetime used when none is configured.
const DefaultRefreshTokenTTL = 14 * 24 * time.Hour

// Operation names used for metrics and spans.
const (
	OpRegister     = "register"
	OpLogin        = "login"
	OpLogout       = "logout"
	OpWithdraw     = "withdraw"
	OpRefresh      = "refresh"
	OpAuthenticate = "authenticate"
)

// dummyPasswordHash is verified against when the account doesn't exist so that
// response time does not reveal whether a username is registered.
// It never matches any password.
//
//nolint:gosec // G101: intentionally fake hash, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Service owns the account state machine and coordinates the stores.
type Service struct {
	users   UserStore
	refresh RefreshTokenStore
	revoked RevokedAccessTokenStore
	hasher  PasswordHasher
	tokens  AccessTokenIssuer

	events         EventPublisher
	metrics        MetricsRecorder
	logger         *slog.Logger
	now            func() time.Time
	refreshTTL     time.Duration
	concealUnknown bool
}

// ServiceOption configures a Service during construction.
type ServiceOption func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRefreshTokenTTL sets the refresh token lifetime.
func WithRefreshTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithEventPublisher enables lifecycle event publishing.
func WithEventPublisher(p EventPublisher) ServiceOption {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithConcealUnknownUsers controls whether Login reports an unknown username
// as ErrInvalidCredentials (true, the default) or ErrNotFound (false).
func WithConcealUnknownUsers(conceal bool) ServiceOption {
	return func(s *Service) {
		s.concealUnknown = conceal
	}
}

// NewService creates a Service. All collaborators are required.
func NewService(
	users UserStore,
	refresh RefreshTokenStore,
	revoked RevokedAccessTokenStore,
	hasher PasswordHasher,
	tokens AccessTokenIssuer,
	opts ...ServiceOption,
) (*Service, error) {
	switch {
	case users == nil:
		return nil, oops.Code("ACCOUNT_SERVICE_INVALID").Errorf("user store is required")
	case refresh == nil:
		return nil, oops.Code("ACCOUNT_SERVICE_INVALID").Errorf("refresh token store is required")
	case revoked == nil:
		return nil, oops.Code("ACCOUNT_SERVICE_INVALID").Errorf("revoked access token store is required")
	case hasher == nil:
		return nil, oops.Code("ACCOUNT_SERVICE_INVALID").Errorf("password hasher is required")
	case tokens == nil:
		return nil, oops.Code("ACCOUNT_SERVICE_INVALID").Errorf("access token issuer is required")
	}

	s := &Service{
		users:          users,
		refresh:        refresh,
		revoked:        revoked,
		hasher:         hasher,
		tokens:         tokens,
		events:         nopPublisher{},
		metrics:        nopMetrics{},
		logger:         slog.Default(),
		now:            time.Now,
		refreshTTL:     DefaultRefreshTokenTTL,
		concealUnknown: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates a NORMAL account. All fields are validated before any
// store access. The password is stored only as a hash.
func (s *Service) Register(ctx context.Context, in RegisterInput) (acct *Account, err error) {
	ctx, span := s.start(ctx, OpRegister, in.Username)
	defer func() { s.finish(ctx, span, OpRegister, in.Username, err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByUsername(ctx, in.Username)
	if err != nil {
		return nil, s.storageFailure(OpRegister, "check username", err)
	}
	if exists {
		return nil, alreadyExists(in.Username)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("ACCOUNT_HASH_FAILED").With("username", in.Username).Wrap(err)
	}

	now := s.now()
	acct = &Account{
		ID:              ulid.Make(),
		Username:        in.Username,
		PasswordHash:    hash,
		Name:            in.Name,
		Email:           in.Email,
		Bio:             in.Bio,
		Status:          StatusNormal,
		StatusChangedAt: now,
		CreatedAt:       now,
		ModifiedAt:      now,
	}

	if err := s.users.Save(ctx, acct); err != nil {
		// A concurrent registration won the unique constraint.
		if errors.Is(err, ErrAlreadyExists) {
			return nil, alreadyExists(in.Username)
		}
		return nil, s.storageFailure(OpRegister, "save account", err)
	}

	s.publish(ctx, EventRegistered, acct, now)
	return acct, nil
}

// Login verifies credentials and opens a new session, replacing any existing
// one. Withdrawn accounts can never log in.
func (s *Service) Login(ctx context.Context, username, password string) (sess *Session, err error) {
	ctx, span := s.start(ctx, OpLogin, username)
	defer func() { s.finish(ctx, span, OpLogin, username, err) }()

	acct, lookupErr := s.users.FindByUsername(ctx, username)
	targetHash := dummyPasswordHash
	switch {
	case lookupErr == nil:
		targetHash = acct.PasswordHash
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, s.storageFailure(OpLogin, "find account", lookupErr)
	}

	// Always verify so unknown usernames cost the same as known ones.
	valid, verifyErr := s.hasher.Verify(password, targetHash)

	if acct == nil {
		if s.concealUnknown {
			return nil, invalidCredentials()
		}
		return nil, notFound(username)
	}
	if verifyErr != nil {
		return nil, oops.Code("ACCOUNT_VERIFY_FAILED").With("username", username).Wrap(verifyErr)
	}
	if acct.IsWithdrawn() {
		return nil, withdrawn(username)
	}
	if !valid {
		return nil, invalidCredentials()
	}

	s.upgradeHash(ctx, acct, password)

	sess, err = s.openSession(ctx, OpLogin, acct)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, EventLoggedIn, acct, s.now())
	return sess, nil
}

// Logout ends the account's session: the presented access token identifier is
// revoked for the rest of its lifetime and the refresh token is deleted.
// Logging out twice is not an error.
func (s *Service) Logout(ctx context.Context, username, accessTokenID string) (err error) {
	ctx, span := s.start(ctx, OpLogout, username)
	defer func() { s.finish(ctx, span, OpLogout, username, err) }()

	if accessTokenID == "" {
		return invalidFormat("access_token_id", "must not be empty")
	}

	acct, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFound(username)
		}
		return s.storageFailure(OpLogout, "find account", err)
	}

	current, err := s.currentSession(ctx, OpLogout, acct)
	if err != nil {
		return err
	}

	// An identifier we did not mint for the current session may still be a
	// live token; revoke it for the longest lifetime a token can have.
	expiresAt := s.now().Add(s.tokens.TTL())
	if current != nil && current.AccessTokenID == accessTokenID {
		expiresAt = current.AccessExpiresAt
	}
	if err := s.revokeAccessToken(ctx, OpLogout, accessTokenID, username, expiresAt); err != nil {
		return err
	}
	if current != nil && current.AccessTokenID != accessTokenID {
		if err := s.revokeAccessToken(ctx, OpLogout, current.AccessTokenID, username, current.AccessExpiresAt); err != nil {
			return err
		}
	}

	if err := s.refresh.DeleteByAccount(ctx, acct.ID); err != nil {
		return s.storageFailure(OpLogout, "delete refresh token", err)
	}

	s.publish(ctx, EventLoggedOut, acct, s.now())
	return nil
}

// Withdraw permanently deactivates the account after verifying its password.
//
// Writes are ordered so that a failure part-way leaves the account safer than
// before: session material is revoked and deleted first and the status is
// flipped last.
func (s *Service) Withdraw(ctx context.Context, username, password string) (err error) {
	ctx, span := s.start(ctx, OpWithdraw, username)
	defer func() { s.finish(ctx, span, OpWithdraw, username, err) }()

	acct, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return notFound(username)
		}
		return s.storageFailure(OpWithdraw, "find account", err)
	}
	if acct.IsWithdrawn() {
		return withdrawn(username)
	}

	valid, err := s.hasher.Verify(password, acct.PasswordHash)
	if err != nil {
		return oops.Code("ACCOUNT_VERIFY_FAILED").With("username", username).Wrap(err)
	}
	if !valid {
		return invalidCredentials()
	}

	if err := s.endSession(ctx, OpWithdraw, acct); err != nil {
		return err
	}

	now := s.now()
	if err := acct.Withdraw(now); err != nil {
		return err
	}
	if err := s.users.Save(ctx, acct); err != nil {
		return s.storageFailure(OpWithdraw, "save account", err)
	}
	// A login that read the account before the status change may have
	// opened a session since the first sweep.
	if err := s.endSession(ctx, OpWithdraw, acct); err != nil {
		return err
	}

	s.publish(ctx, EventWithdrawn, acct, now)
	return nil
}

// Refresh exchanges a refresh token for a new session. The presented token
// stops resolving and the access token issued with it is revoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (sess *Session, err error) {
	ctx, span := s.start(ctx, OpRefresh, "")
	defer func() { s.finish(ctx, span, OpRefresh, "", err) }()

	if refreshToken == "" {
		return nil, invalidToken("refresh token is empty")
	}

	current, err := s.refresh.FindByTokenHash(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidToken("refresh token not recognized")
		}
		return nil, s.storageFailure(OpRefresh, "find refresh token", err)
	}
	if current.IsExpired(s.now()) {
		return nil, invalidToken("refresh token expired")
	}

	acct, err := s.users.FindByID(ctx, current.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidToken("refresh token owner not found")
		}
		return nil, s.storageFailure(OpRefresh, "find account", err)
	}
	if acct.IsWithdrawn() {
		return nil, withdrawn(acct.Username)
	}

	return s.openSession(ctx, OpRefresh, acct)
}

// Authenticate verifies an access token and rejects revoked ones.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (claims *AccessClaims, err error) {
	ctx, span := s.start(ctx, OpAuthenticate, "")
	defer func() { s.finish(ctx, span, OpAuthenticate, "", err) }()

	claims, err = s.tokens.Parse(accessToken, s.now())
	if err != nil {
		return nil, invalidToken("access token rejected")
	}

	revoked, err := s.revoked.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return nil, s.storageFailure(OpAuthenticate, "check revocation", err)
	}
	if revoked {
		return nil, invalidToken("access token revoked")
	}
	return claims, nil
}

// openSession revokes the account's current session and issues a new access
// token and refresh token.
func (s *Service) openSession(ctx context.Context, op string, acct *Account) (*Session, error) {
	if err := s.revokeCurrentSession(ctx, op, acct); err != nil {
		return nil, err
	}

	now := s.now()
	access, err := s.tokens.Issue(acct, now)
	if err != nil {
		return nil, oops.Code("ACCOUNT_TOKEN_ISSUE_FAILED").With("username", acct.Username).Wrap(err)
	}

	token, hash, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	rt := &RefreshToken{
		ID:              ulid.Make(),
		AccountID:       acct.ID,
		TokenHash:       hash,
		AccessTokenID:   access.ID,
		AccessExpiresAt: access.ExpiresAt,
		ExpiresAt:       now.Add(s.refreshTTL),
		CreatedAt:       now,
	}
	if err := s.refresh.Issue(ctx, rt); err != nil {
		return nil, s.storageFailure(op, "issue refresh token", err)
	}

	// acct may be a snapshot taken before a concurrent withdraw; the
	// session only stands if the account is still active now that it is
	// visible to the withdraw sweep.
	latest, err := s.users.FindByID(ctx, acct.ID)
	if err != nil {
		return nil, s.storageFailure(op, "recheck account", err)
	}
	if latest.IsWithdrawn() {
		if err := s.revokeAccessToken(ctx, op, access.ID, acct.Username, access.ExpiresAt); err != nil {
			return nil, err
		}
		if err := s.refresh.DeleteByAccount(ctx, acct.ID); err != nil {
			return nil, s.storageFailure(op, "delete refresh token", err)
		}
		return nil, withdrawn(acct.Username)
	}

	return &Session{
		Account:          acct,
		AccessToken:      access,
		RefreshToken:     token,
		RefreshExpiresAt: rt.ExpiresAt,
	}, nil
}

func (s *Service) currentSession(ctx context.Context, op string, acct *Account) (*RefreshToken, error) {
	current, err := s.refresh.FindByAccount(ctx, acct.ID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.storageFailure(op, "find refresh token", err)
	}
	return current, nil
}

// revokeCurrentSession revokes the access token issued with the account's
// current refresh token, if any.
// endSession revokes the account's current access token and deletes its
// refresh token.
func (s *Service) endSession(ctx context.Context, op string, acct *Account) error {
	if err := s.revokeCurrentSession(ctx, op, acct); err != nil {
		return err
	}
	if err := s.refresh.DeleteByAccount(ctx, acct.ID); err != nil {
		return s.storageFailure(op, "delete refresh token", err)
	}
	return nil
}

func (s *Service) revokeCurrentSession(ctx context.Context, op string, acct *Account) error {
	current, err := s.currentSession(ctx, op, acct)
	if err != nil || current == nil {
		return err
	}
	return s.revokeAccessToken(ctx, op, current.AccessTokenID, acct.Username, current.AccessExpiresAt)
}

func (s *Service) revokeAccessToken(ctx context.Context, op, tokenID, username string, expiresAt time.Time) error {
	now := s.now()
	if tokenID == "" || !expiresAt.After(now) {
		return nil
	}
	entry := &RevokedAccessToken{
		TokenID:   tokenID,
		Username:  username,
		ExpiresAt: expiresAt,
		RevokedAt: now,
	}
	if err := s.revoked.Revoke(ctx, entry); err != nil {
		return s.storageFailure(op, "revoke access token", err)
	}
	return nil
}

// upgradeHash re-hashes the password with current parameters. Failures are
// logged and otherwise ignored; login succeeds regardless.
func (s *Service) upgradeHash(ctx context.Context, acct *Account, password string) {
	if !s.hasher.NeedsUpgrade(acct.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		errutil.LogError(s.logger, "password hash upgrade failed", err)
		return
	}
	previous := acct.PasswordHash
	acct.PasswordHash = hash
	acct.ModifiedAt = s.now()
	if err := s.users.Save(ctx, acct); err != nil {
		acct.PasswordHash = previous
		errutil.LogError(s.logger, "password hash upgrade failed", err)
		return
	}
	s.logger.InfoContext(ctx, "password hash upgraded", "account_id", acct.ID.String())
}

// storageFailure logs the store error and returns a StorageUnavailable error.
// The cause is kept out of the returned error so store internals never reach
// the caller.
func (s *Service) storageFailure(op, step string, cause error) error {
	errutil.LogError(s.logger, "account store failure", oops.
		With("operation", op).
		With("step", step).
		Wrap(cause))
	return oops.Code(CodeStorageUnavailable).
		With("operation", op).
		With("step", step).
		Wrapf(ErrStorageUnavailable, "%s", step)
}

func (s *Service) publish(ctx context.Context, typ EventType, acct *Account, at time.Time) {
	event := Event{
		ID:         ulid.Make(),
		Type:       typ,
		AccountID:  acct.ID.String(),
		Username:   acct.Username,
		OccurredAt: at,
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "account event not published",
			"event_type", string(typ),
			"account_id", event.AccountID,
			"error", err)
	}
}

func (s *Service) start(ctx context.Context, op, username string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("account.operation", op)}
	if username != "" {
		attrs = append(attrs, attribute.String("account.username", username))
	}
	return tracer.Start(ctx, "account."+op, trace.WithAttributes(attrs...))
}

func (s *Service) finish(ctx context.Context, span trace.Span, op, username string, err error) {
	kind := KindOf(err)
	s.metrics.RecordOperation(op, kind)

	switch kind {
	case KindNone:
		s.logger.InfoContext(ctx, "account operation succeeded", "operation", op, "username", username)
	case KindStorageUnavailable, KindInternal:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.ErrorContext(ctx, "account operation failed",
			"operation", op, "username", username, "kind", string(kind), "error", err)
	default:
		span.SetAttributes(attribute.String("account.failure", string(kind)))
		s.logger.InfoContext(ctx, "account operation rejected",
			"operation", op, "username", username, "kind", string(kind))
	}
	span.End()
}
