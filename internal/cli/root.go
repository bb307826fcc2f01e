// Package cli is the terminal front end of the chatbot: login, thread
// management, history and an interactive chat loop.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chatbot/internal/chatclient"
	"chatbot/internal/config"
	"chatbot/internal/session"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"goa.design/clue/log"
)

var (
	version = "dev"
	commit  = "unknown"
)

const logFileName = "chatbot.log"

// errNotLoggedIn is returned by commands that need an access token.
var errNotLoggedIn = errors.New("not logged in")

// app holds what every command needs once the configuration is loaded.
type app struct {
	cfg      *config.ClientConfig
	client   *chatclient.Client
	store    session.Store
	name     string
	markdown bool
	typing   time.Duration
	logFile  *os.File
	rdb      *redis.Client
}

// NewRootCmd builds the chatbot command tree.
func NewRootCmd() *cobra.Command {
	root, _ := newRootCmd()
	return root
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}
	var (
		apiURL string
		debug  bool
	)

	root := &cobra.Command{
		Use:   "chatbot",
		Short: "Terminal client for the chatbot API",
		Long: `chatbot talks to the chatbot API: log in, pick a thread and ask
questions. Answers are streamed with the assistant's reasoning steps.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := config.LoadClientConfig(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("api-url") {
				cfg.BaseURL = apiURL
			}
			if cmd.Flags().Changed("debug") {
				cfg.Debug = debug
			}
			a.cfg = cfg

			ctx, err = a.logContext(ctx, cmd)
			if err != nil {
				return err
			}
			cmd.SetContext(ctx)

			a.client = chatclient.New(cfg.BaseURL,
				chatclient.WithConnectTimeout(cfg.ConnectTimeout),
				chatclient.WithReadTimeout(cfg.ReadTimeout),
				chatclient.WithRequestTimeout(cfg.RequestTimeout),
				chatclient.WithDeleteTimeout(cfg.DeleteTimeout),
				chatclient.WithMaxLineSize(cfg.MaxLineSize),
				chatclient.WithDebug(cfg.Debug),
			)
			return a.openSessionStore(ctx)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	// Disable completion command
	root.CompletionOptions.DisableDefaultCmd = true

	// Global flags
	root.PersistentFlags().StringVar(&apiURL, "api-url", "", "chatbot API base URL (default $CHATBOT_API_URL or http://localhost:8080)")
	root.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "log HTTP traffic to stderr")
	root.PersistentFlags().StringVarP(&a.name, "session", "s", "default", "name of the stored session")
	root.PersistentFlags().BoolVar(&a.markdown, "markdown", false, "escape currency signs for markdown output")
	root.PersistentFlags().DurationVar(&a.typing, "typing-delay", 20*time.Millisecond, "pause between words of an answer")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newThreadsCmd(a),
		newHistoryCmd(a),
		newChatCmd(a),
		newExportCmd(a),
	)
	return root, a
}

// Execute runs the command tree and exits non-zero on failure.
func Execute(ctx context.Context) {
	root, a := newRootCmd()
	err := root.ExecuteContext(ctx)
	// PersistentPostRunE is skipped when a command fails.
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// close releases the log file and the redis client. It is safe to call more
// than once.
func (a *app) close() error {
	var errs []error
	if a.logFile != nil {
		errs = append(errs, a.logFile.Close())
		a.logFile = nil
	}
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
		a.rdb = nil
	}
	return errors.Join(errs...)
}

// logContext sends logs to stderr in debug mode and to a file in the session
// directory otherwise, so they do not interleave with the chat.
func (a *app) logContext(ctx context.Context, cmd *cobra.Command) (context.Context, error) {
	if a.cfg.Debug {
		format := log.FormatJSON
		if log.IsTerminal() {
			format = log.FormatTerminal
		}
		ctx = log.Context(ctx, log.WithFormat(format), log.WithOutput(cmd.ErrOrStderr()), log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
		return ctx, nil
	}
	if err := os.MkdirAll(a.cfg.SessionDir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(a.cfg.SessionDir, logFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	a.logFile = f
	return log.Context(ctx, log.WithFormat(log.FormatJSON), log.WithOutput(f)), nil
}

func (a *app) renderer(cmd *cobra.Command, typing bool) *Renderer {
	delay := time.Duration(0)
	if typing {
		delay = a.typing
	}
	return NewRenderer(cmd.OutOrStdout(), WithTypingDelay(delay), WithMarkdown(a.markdown))
}

// loadSession restores the named session, or starts a fresh one.
func (a *app) loadSession(ctx context.Context) (*session.Session, error) {
	s := session.New(a.client)
	snap, err := a.store.Load(ctx, a.name)
	if errors.Is(err, session.ErrNoSnapshot) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %q: %w", a.name, err)
	}
	if err := s.Restore(snap); err != nil {
		return nil, err
	}
	return s, nil
}

func (a *app) saveSession(ctx context.Context, s *session.Session) error {
	if err := a.store.Save(ctx, a.name, s.Snapshot()); err != nil {
		return fmt.Errorf("save session %q: %w", a.name, err)
	}
	return nil
}

// loggedInSession loads the session and fails unless it holds a token.
func (a *app) loggedInSession(cmd *cobra.Command) (*session.Session, error) {
	s, err := a.loadSession(cmd.Context())
	if err != nil {
		return nil, err
	}
	if !s.LoggedIn() {
		return nil, errNotLoggedIn
	}
	return s, nil
}
