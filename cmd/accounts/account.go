// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/holomush/accounts/internal/account"
)

// sessionOutput is printed by login and refresh.
type sessionOutput struct {
	Profile          account.Profile `json:"profile"`
	AccessToken      string          `json:"access_token"`
	AccessTokenID    string          `json:"access_token_id"`
	AccessExpiresAt  time.Time       `json:"access_expires_at"`
	RefreshExpiresAt time.Time       `json:"refresh_expires_at"`
}

// NewAccountCmd creates the account command group, which runs single
// lifecycle operations against the configured stores.
func NewAccountCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Run account lifecycle operations",
	}

	cmd.AddCommand(newRegisterCmd(deps))
	cmd.AddCommand(newLoginCmd(deps))
	cmd.AddCommand(newLogoutCmd(deps))
	cmd.AddCommand(newWithdrawCmd(deps))
	cmd.AddCommand(newRefreshCmd(deps))
	cmd.AddCommand(newAuthenticateCmd(deps))

	return cmd
}

func newRegisterCmd(deps *Deps) *cobra.Command {
	var in account.RegisterInput
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new account",
		Long: `Register a new account. The password is read from the terminal, or
from stdin when it is not a terminal, unless --password is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, deps, func(rt *runtime) error {
				password, err := passwordFlagOrPrompt(cmd)
				if err != nil {
					return err
				}
				in.Password = password
				acct, err := rt.service.Register(cmd.Context(), in)
				if err != nil {
					return err //nolint:wrapcheck // account errors carry their own codes
				}
				return printJSON(cmd, acct.Profile())
			})
		},
	}
	cmd.Flags().StringVar(&in.Username, "username", "", "account username")
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "contact email")
	cmd.Flags().StringVar(&in.Bio, "bio", "", "short biography")
	addPasswordFlag(cmd)
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newLoginCmd(deps *Deps) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print a new session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, deps, func(rt *runtime) error {
				password, err := passwordFlagOrPrompt(cmd)
				if err != nil {
					return err
				}
				sess, err := rt.service.Login(cmd.Context(), username, password)
				if err != nil {
					return err //nolint:wrapcheck // account errors carry their own codes
				}
				return printSession(cmd, sess)
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account username")
	addPasswordFlag(cmd)
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newLogoutCmd(deps *Deps) *cobra.Command {
	var username, accessToken, tokenID string
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		Long: `End the account's current session. Identify the access token either
by the token itself (--access-token) or by its id (--token-id).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, deps, func(rt *runtime) error {
				id := tokenID
				if accessToken != "" {
					claims, err := rt.tokens.Parse(accessToken, deps.Clock())
					if err != nil {
						return oops.Code(account.CodeInvalidToken).Wrapf(account.ErrInvalidToken, "access token rejected")
					}
					if claims.Username != username {
						return oops.Code(account.CodeInvalidToken).
							With("username", username).
							Wrapf(account.ErrInvalidToken, "access token belongs to another account")
					}
					id = claims.TokenID
				}
				if err := rt.service.Logout(cmd.Context(), username, id); err != nil {
					return err //nolint:wrapcheck // account errors carry their own codes
				}
				cmd.Println("Logged out")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().StringVar(&accessToken, "access-token", "", "access token to revoke")
	cmd.Flags().StringVar(&tokenID, "token-id", "", "id of the access token to revoke")
	_ = cmd.MarkFlagRequired("username")
	cmd.MarkFlagsMutuallyExclusive("access-token", "token-id")
	cmd.MarkFlagsOneRequired("access-token", "token-id")
	return cmd
}

func newWithdrawCmd(deps *Deps) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Permanently withdraw an account",
		Long: `Withdraw an account after re-confirming its password. Withdrawal ends
the current session and cannot be undone; the username stays reserved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, deps, func(rt *runtime) error {
				password, err := passwordFlagOrPrompt(cmd)
				if err != nil {
					return err
				}
				if err := rt.service.Withdraw(cmd.Context(), username, password); err != nil {
					return err //nolint:wrapcheck // account errors carry their own codes
				}
				cmd.Println("Account withdrawn")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account username")
	addPasswordFlag(cmd)
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newRefreshCmd(deps *Deps) *cobra.Command {
	var refreshToken string
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Exchange a refresh token for a new session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, deps, func(rt *runtime) error {
				sess, err := rt.service.Refresh(cmd.Context(), refreshToken)
				if err != nil {
					return err //nolint:wrapcheck // account errors carry their own codes
				}
				return printSession(cmd, sess)
			})
		},
	}
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "refresh token from login")
	_ = cmd.MarkFlagRequired("refresh-token")
	return cmd
}

func newAuthenticateCmd(deps *Deps) *cobra.Command {
	var accessToken string
	cmd := &cobra.Command{
		Use:   "authenticate",
		Short: "Check an access token and print its claims",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, deps, func(rt *runtime) error {
				claims, err := rt.service.Authenticate(cmd.Context(), accessToken)
				if err != nil {
					return err //nolint:wrapcheck // account errors carry their own codes
				}
				return printJSON(cmd, claims)
			})
		},
	}
	cmd.Flags().StringVar(&accessToken, "access-token", "", "access token to check")
	_ = cmd.MarkFlagRequired("access-token")
	return cmd
}

func withRuntime(cmd *cobra.Command, deps *Deps, fn func(*runtime) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err //nolint:wrapcheck // config errors carry their own codes
	}
	logger := setupLogging(cfg)

	rt, err := buildRuntime(cmd.Context(), cfg, deps, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			logger.Warn("error closing stores", "error", closeErr)
		}
	}()
	return fn(rt)
}

func addPasswordFlag(cmd *cobra.Command) {
	cmd.Flags().String("password", "", "account password (prompted when omitted)")
}

// passwordFlagOrPrompt returns --password when set. Otherwise it reads a
// line without echo from a terminal stdin, or a plain line from any other
// stdin.
func passwordFlagOrPrompt(cmd *cobra.Command) (string, error) {
	if f := cmd.Flags().Lookup("password"); f != nil && f.Changed {
		return f.Value.String(), nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // fd fits in int
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(int(f.Fd())) //nolint:gosec // fd fits in int
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func printSession(cmd *cobra.Command, sess *account.Session) error {
	out := sessionOutput{
		Profile:          sess.Profile(),
		RefreshExpiresAt: sess.RefreshExpiresAt,
	}
	if sess.AccessToken != nil {
		out.AccessToken = sess.AccessToken.Token
		out.AccessTokenID = sess.AccessToken.ID
		out.AccessExpiresAt = sess.AccessToken.ExpiresAt
	}
	return printJSON(cmd, out)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return oops.Code("OUTPUT_FAILED").Wrap(err)
	}
	return nil
}
