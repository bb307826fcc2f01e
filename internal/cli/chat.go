package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"chatbot/internal/models"
	"chatbot/internal/session"

	"github.com/spf13/cobra"
	"goa.design/clue/log"
)

const chatHelp = `Comandos:
  /code                       mostra ou esconde o SQL da última resposta
  /chart                      mostra ou esconde o gráfico da última resposta
  /steps                      mostra ou esconde as etapas da última resposta
  /feedback up|down [texto]   avalia a última resposta
  /export <arquivo>           exporta a conversa em CSV
  /reset                      apaga a conversa e a memória do assistente
  /quit                       sai`

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.loggedInSession(cmd)
			if err != nil {
				return err
			}
			r := &repl{
				app:     a,
				session: s,
				render:  a.renderer(cmd, true),
				out:     cmd.OutOrStdout(),
			}
			return r.run(cmd.Context(), cmd.InOrStdin())
		},
	}
}

var widgets = map[string]session.WidgetKind{
	"/code":  session.WidgetCode,
	"/chart": session.WidgetChart,
	"/steps": session.WidgetSteps,
}

// repl is one interactive chat over a session.
type repl struct {
	app     *app
	session *session.Session
	render  *Renderer
	out     io.Writer
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	if outcome := r.session.LoadHistory(ctx); !outcome.OK {
		fmt.Fprintln(r.out, outcome.Message)
	}
	fmt.Fprintln(r.out, models.MsgGreeting)
	fmt.Fprintln(r.out, "(/help para ver os comandos)")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Fprintln(r.out, models.MsgPromptPlaceholder)
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
			continue
		}

		record, outcome := r.session.Ask(ctx, line, r.render)
		if record == nil && !outcome.OK {
			fmt.Fprintln(r.out, outcome.Message)
		}
		// Charts are only attached to the stored copy of a pair.
		if record != nil {
			if refreshed := r.session.RefreshRecord(ctx, record.ID); !refreshed.OK {
				log.Warn(ctx, log.KV{K: "msg", V: "refreshing history failed"}, log.KV{K: "pair", V: record.ID})
			}
		}
		if err := r.app.saveSession(ctx, r.session); err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "saving session failed"})
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// command runs a slash command and reports whether the loop should end.
func (r *repl) command(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		fmt.Fprintln(r.out, chatHelp)

	case "/code", "/chart", "/steps":
		last, ok := r.session.Last()
		if !ok {
			fmt.Fprintln(r.out, models.MsgPromptPlaceholder)
			return false, nil
		}
		kind := widgets[name]
		if !r.session.Toggle(kind, last.ID) {
			break
		}
		switch kind {
		case session.WidgetCode:
			r.render.Code(&last)
		case session.WidgetChart:
			r.render.Chart(&last)
		case session.WidgetSteps:
			r.render.Trace(&last)
		}

	case "/feedback":
		last, ok := r.session.Last()
		if !ok {
			fmt.Fprintln(r.out, models.MsgPromptPlaceholder)
			return false, nil
		}
		vote, comment, _ := strings.Cut(arg, " ")
		var rating models.Rating
		switch vote {
		case "up", "+":
			rating = models.RatingUp
		case "down", "-":
			rating = models.RatingDown
		default:
			fmt.Fprintln(r.out, "Uso: /feedback up|down [comentário]")
			return false, nil
		}
		outcome := r.session.Rate(ctx, last.ID, rating, strings.TrimSpace(comment))
		if outcome.Message != "" {
			fmt.Fprintln(r.out, outcome.Message)
		}

	case "/export":
		if arg == "" {
			fmt.Fprintln(r.out, "Uso: /export <arquivo>")
			return false, nil
		}
		if err := exportCSV(r.session, arg); err != nil {
			fmt.Fprintf(r.out, "Erro: %v\n", err)
			return false, nil
		}
		fmt.Fprintf(r.out, "Conversa exportada para %s\n", arg)

	case "/reset":
		outcome := r.session.Reset(ctx)
		if outcome.Message != "" {
			fmt.Fprintln(r.out, outcome.Message)
		}
		if outcome.OK {
			fmt.Fprintln(r.out, models.MsgGreeting)
		}

	default:
		fmt.Fprintln(r.out, chatHelp)
		return false, nil
	}

	if err := r.app.saveSession(ctx, r.session); err != nil {
		return false, err
	}
	return false, nil
}
