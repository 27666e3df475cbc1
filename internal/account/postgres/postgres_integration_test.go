// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package postgres_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/accounts/internal/account"
	"github.com/holomush/accounts/internal/account/postgres"
	"github.com/holomush/accounts/internal/store"
)

var (
	pool      *pgxpool.Pool
	container *tcpostgres.PostgresContainer
)

var _ = BeforeSuite(func() {
	ctx := context.Background()

	var err error
	container, err = tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("accounts_test"),
		tcpostgres.WithUsername("accounts"),
		tcpostgres.WithPassword("accounts"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	Expect(err).NotTo(HaveOccurred())

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())

	migrator, err := store.NewMigrator(connStr)
	Expect(err).NotTo(HaveOccurred())
	Expect(migrator.Up()).To(Succeed())
	Expect(migrator.Close()).To(Succeed())

	pool, err = store.Connect(ctx, connStr, store.DefaultConnectOptions)
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if pool != nil {
		pool.Close()
	}
	if container != nil {
		_ = container.Terminate(context.Background())
	}
})

var _ = BeforeEach(func() {
	_, err := pool.Exec(context.Background(),
		`TRUNCATE revoked_access_tokens, refresh_tokens, accounts`)
	Expect(err).NotTo(HaveOccurred())
})

func newAccount(username string) *account.Account {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &account.Account{
		ID:              ulid.Make(),
		Username:        username,
		PasswordHash:    "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		Name:            "Player One",
		Status:          account.StatusNormal,
		StatusChangedAt: now,
		CreatedAt:       now,
		ModifiedAt:      now,
	}
}

var _ = Describe("UserStore", func() {
	var users *postgres.UserStore

	BeforeEach(func() {
		users = postgres.NewUserStore(pool)
	})

	It("round-trips an account", func() {
		ctx := context.Background()
		acct := newAccount("playerone1")
		acct.Email = "one@example.com"
		Expect(users.Save(ctx, acct)).To(Succeed())

		found, err := users.FindByUsername(ctx, "playerone1")
		Expect(err).NotTo(HaveOccurred())
		Expect(found.ID).To(Equal(acct.ID))
		Expect(found.Email).To(Equal("one@example.com"))
		Expect(found.CreatedAt.Equal(acct.CreatedAt)).To(BeTrue())

		exists, err := users.ExistsByUsername(ctx, "playerone1")
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeTrue())
	})

	It("rejects a second account with the same username", func() {
		ctx := context.Background()
		Expect(users.Save(ctx, newAccount("playerone1"))).To(Succeed())

		err := users.Save(ctx, newAccount("playerone1"))
		Expect(err).To(MatchError(account.ErrAlreadyExists))
	})

	It("never returns a withdrawn account to NORMAL", func() {
		ctx := context.Background()
		acct := newAccount("playerone1")
		Expect(users.Save(ctx, acct)).To(Succeed())

		withdrawnAt := acct.CreatedAt.Add(time.Minute)
		Expect(acct.Withdraw(withdrawnAt)).To(Succeed())
		Expect(users.Save(ctx, acct)).To(Succeed())

		acct.Status = account.StatusNormal
		acct.StatusChangedAt = withdrawnAt.Add(time.Minute)
		Expect(users.Save(ctx, acct)).To(Succeed())

		found, err := users.FindByID(ctx, acct.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(found.Status).To(Equal(account.StatusWithdrawn))
		Expect(found.StatusChangedAt.Equal(withdrawnAt)).To(BeTrue())
	})

	It("reports unknown usernames as not found", func() {
		_, err := users.FindByUsername(context.Background(), "nobody12345")
		Expect(err).To(MatchError(account.ErrNotFound))
	})
})

var _ = Describe("RefreshTokenStore", func() {
	var (
		users   *postgres.UserStore
		refresh *postgres.RefreshTokenStore
		acct    *account.Account
	)

	BeforeEach(func() {
		users = postgres.NewUserStore(pool)
		refresh = postgres.NewRefreshTokenStore(pool)
		acct = newAccount("playerone1")
		Expect(users.Save(context.Background(), acct)).To(Succeed())
	})

	issue := func(raw string, expiresAt time.Time) *account.RefreshToken {
		token := &account.RefreshToken{
			ID:              ulid.Make(),
			AccountID:       acct.ID,
			TokenHash:       account.HashRefreshToken(raw),
			AccessTokenID:   ulid.Make().String(),
			AccessExpiresAt: expiresAt,
			ExpiresAt:       expiresAt,
			CreatedAt:       time.Now().UTC(),
		}
		Expect(refresh.Issue(context.Background(), token)).To(Succeed())
		return token
	}

	It("keeps one token per account", func() {
		ctx := context.Background()
		first := issue("first", time.Now().Add(time.Hour))
		second := issue("second", time.Now().Add(time.Hour))

		current, err := refresh.FindByAccount(ctx, acct.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(current.ID).To(Equal(second.ID))

		_, err = refresh.FindByTokenHash(ctx, first.TokenHash)
		Expect(err).To(MatchError(account.ErrNotFound))
	})

	It("deletes expired tokens", func() {
		issue("stale", time.Now().Add(-time.Minute))

		n, err := refresh.DeleteExpired(context.Background(), time.Now())
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeEquivalentTo(1))
	})

	It("treats deleting a missing token as success", func() {
		Expect(refresh.DeleteByAccount(context.Background(), acct.ID)).To(Succeed())
		Expect(refresh.DeleteByAccount(context.Background(), acct.ID)).To(Succeed())
	})
})

var _ = Describe("RevokedAccessTokenStore", func() {
	var revoked *postgres.RevokedAccessTokenStore

	BeforeEach(func() {
		revoked = postgres.NewRevokedAccessTokenStore(pool)
	})

	It("keeps the later expiry when revoked twice", func() {
		ctx := context.Background()
		now := time.Now()
		Expect(revoked.Revoke(ctx, &account.RevokedAccessToken{
			TokenID: "tok-1", Username: "playerone1", ExpiresAt: now.Add(time.Hour), RevokedAt: now,
		})).To(Succeed())
		Expect(revoked.Revoke(ctx, &account.RevokedAccessToken{
			TokenID: "tok-1", Username: "playerone1", ExpiresAt: now.Add(-time.Minute), RevokedAt: now,
		})).To(Succeed())

		isRevoked, err := revoked.IsRevoked(ctx, "tok-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(isRevoked).To(BeTrue())
	})

	It("ignores and purges expired entries", func() {
		ctx := context.Background()
		now := time.Now()
		Expect(revoked.Revoke(ctx, &account.RevokedAccessToken{
			TokenID: "tok-old", Username: "playerone1", ExpiresAt: now.Add(-time.Minute), RevokedAt: now,
		})).To(Succeed())

		isRevoked, err := revoked.IsRevoked(ctx, "tok-old")
		Expect(err).NotTo(HaveOccurred())
		Expect(isRevoked).To(BeFalse())

		n, err := revoked.PurgeExpired(ctx, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeEquivalentTo(1))
	})
})
