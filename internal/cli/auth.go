package cli

import (
	"errors"
	"fmt"
	"time"

	"storefront/internal/identity"
	"storefront/internal/reconcile"

	"github.com/spf13/cobra"
)

// NewLoginCommand stores a credential handed over by the identity provider.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with an access token and move the anonymous cart/wishlist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return &ExitError{Code: ExitCommandError, Message: "--token is required"}
			}
			e, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			if err := e.sf.Login(cmd.Context(), token); err != nil {
				return err
			}

			coord := e.sf.Coordinator()
			if err := printMerge(e, coord, ""); err != nil {
				return err
			}
			if coord.State() == reconcile.MergeFailed {
				return &ExitError{Code: ExitFailure, Message: "logged in, merge incomplete (run sync to retry)"}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "access token (JWT)")

	return cmd
}

func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the credential (a new anonymous session starts on next use)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			if err := e.sf.Logout(cmd.Context()); err != nil {
				return err
			}
			if e.out.Format == "json" {
				return e.out.JSON(map[string]bool{"logged_out": true})
			}
			fmt.Fprintln(e.out.Writer, "logged out")
			return nil
		},
	}
}

// NewSyncCommand re-checks the auth state and retries a pending merge.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Retry moving a retained anonymous cart/wishlist into the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			res, err := e.sf.Sync(cmd.Context())
			if err != nil && !isMergeError(err) {
				return err
			}
			if perr := printMerge(e, e.sf.Coordinator(), res.SessionID); perr != nil {
				return perr
			}
			if err != nil {
				return &ExitError{Code: ExitFailure, Message: "merge incomplete", Err: err}
			}
			return nil
		},
	}
}

type sessionOutput struct {
	SessionID     string `json:"session_id,omitempty"`
	Authenticated bool   `json:"authenticated"`
	Expired       bool   `json:"expired,omitempty"`
}

// NewSessionCommand shows what is kept in the state file.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Show the anonymous session id and login state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var out sessionOutput
			if out.SessionID, _, err = e.sessions.Peek(ctx); err != nil {
				return &ExitError{Code: ExitCommandError, Message: "read state", Err: err}
			}
			cred, ok, err := e.holder.Credential(ctx)
			if err != nil {
				return &ExitError{Code: ExitCommandError, Message: "read state", Err: err}
			}
			if ok {
				out.Expired = identity.Expired(cred, time.Now())
				out.Authenticated = !out.Expired
			}

			if e.out.Format == "json" {
				return e.out.JSON(out)
			}
			sid := out.SessionID
			if sid == "" {
				sid = "(none)"
			}
			fmt.Fprintf(e.out.Writer, "session: %s\nauthenticated: %t\n", sid, out.Authenticated)
			if out.Expired {
				fmt.Fprintln(e.out.Writer, "credential expired")
			}
			return nil
		},
	}
}

func printMerge(e *env, coord *reconcile.Coordinator, sid string) error {
	var notice *reconcile.Notice
	if n, ok := coord.LastNotice(); ok {
		notice = &n
	}
	return e.out.Merge(coord.State(), sid, notice)
}

func isMergeError(err error) bool {
	var me *reconcile.MergeError
	return errors.As(err, &me)
}
