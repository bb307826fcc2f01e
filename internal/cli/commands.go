package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"time"

	"chatbot/internal/conversation"
	"chatbot/internal/session"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			in, out := cmd.InOrStdin(), cmd.OutOrStdout()
			reader := bufio.NewReader(in)
			if email == "" {
				var err error
				if email, err = readLine(reader, out, "Email: "); err != nil {
					return err
				}
			}
			password, err := readPassword(in, reader, out)
			if err != nil {
				return err
			}

			s := session.New(a.client)
			outcome := s.Login(ctx, email, password)
			fmt.Fprintln(out, outcome.Message)
			if !outcome.OK {
				return errors.New("login failed")
			}
			return a.saveSession(ctx, s)
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email (prompted when empty)")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := a.loadSession(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.Logout(ctx).Message)
			return a.store.Delete(ctx, a.name)
		},
	}
}

func newThreadsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "List the threads of the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.loggedInSession(cmd)
			if err != nil {
				return err
			}
			threads, outcome := s.Threads(cmd.Context())
			out := cmd.OutOrStdout()
			if !outcome.OK {
				fmt.Fprintln(out, outcome.Message)
				return errors.New("listing threads failed")
			}
			current, _ := s.ThreadID()
			for _, t := range threads {
				marker := " "
				if t.ID == current {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s  %s  %s\n", marker, t.ID, t.CreatedAt.Local().Format(time.DateTime), t.Title)
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "use <thread-id>",
		Short: "Continue an existing thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid thread id: %w", err)
			}
			s, err := a.loggedInSession(cmd)
			if err != nil {
				return err
			}
			s.UseThread(id)
			return a.saveSession(cmd.Context(), s)
		},
	})
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print the exchanges of the current thread",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.loggedInSession(cmd)
			if err != nil {
				return err
			}
			if outcome := s.LoadHistory(cmd.Context()); !outcome.OK {
				fmt.Fprintln(cmd.OutOrStdout(), outcome.Message)
				return errors.New("loading history failed")
			}
			r := a.renderer(cmd, false)
			for _, p := range s.History() {
				r.Record(&p)
			}
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export the current thread as CSV",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loggedInSession(cmd)
			if err != nil {
				return err
			}
			if outcome := s.LoadHistory(cmd.Context()); !outcome.OK {
				fmt.Fprintln(cmd.OutOrStdout(), outcome.Message)
				return errors.New("loading history failed")
			}
			name := conversation.ExportFileName("chat", time.Now())
			if len(args) == 1 {
				name = args[0]
			}
			if err := exportCSV(s, name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Conversa exportada para %s\n", name)
			return nil
		},
	}
}

func exportCSV(s *session.Session, name string) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := s.ExportCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("write export: %w", err)
	}
	return f.Close()
}
