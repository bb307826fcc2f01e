package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"chatbot/internal/conversation"
	"chatbot/internal/models"
	"chatbot/internal/session"
)

const chartWidth = 30

// Renderer prints an exchange to a terminal. It implements session.Observer.
type Renderer struct {
	w           io.Writer
	typingDelay time.Duration
	markdown    bool
}

var _ session.Observer = (*Renderer)(nil)

// RenderOption configures a Renderer.
type RenderOption func(*Renderer)

// WithTypingDelay sets the pause between words of an answer.
func WithTypingDelay(d time.Duration) RenderOption { return func(r *Renderer) { r.typingDelay = d } }

// WithMarkdown escapes currency dollar signs so the output can be fed to a
// markdown renderer that understands $...$ math.
func WithMarkdown(on bool) RenderOption { return func(r *Renderer) { r.markdown = on } }

func NewRenderer(w io.Writer, opts ...RenderOption) *Renderer {
	r := &Renderer{w: w}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) Waiting(string) {
	fmt.Fprintln(r.w, "⏳ Pensando...")
}

func (r *Renderer) Steps(steps []conversation.Step, _ conversation.Status) {
	for _, step := range steps {
		switch step.Kind {
		case conversation.StepNarrative:
			fmt.Fprintf(r.w, "💭 %s\n", step.Content)
		case conversation.StepToolCall:
			fmt.Fprintf(r.w, "🔧 %s\n%s\n", step.Label, indent(step.Content))
		case conversation.StepToolResult:
			fmt.Fprintf(r.w, "📄 %s\n%s\n", step.Label, indent(step.Content))
			if step.Truncated {
				fmt.Fprintln(r.w, "   (resultado truncado)")
			}
		case conversation.StepToolError:
			fmt.Fprintf(r.w, "⚠️  %s falhou\n", step.Label)
		}
	}
}

// Finished types out the answer, or prints the error of a failed exchange.
func (r *Renderer) Finished(p *models.MessagePair) {
	r.answer(p, r.typingDelay)
	fmt.Fprintf(r.w, "   id: %s  (/code, /chart, /steps, /feedback up|down)\n", p.ID)
}

// Record prints a stored exchange without the typing effect.
func (r *Renderer) Record(p *models.MessagePair) {
	fmt.Fprintf(r.w, "🧑 %s\n", p.UserMessage)
	r.answer(p, 0)
	fmt.Fprintf(r.w, "   id: %s\n", p.ID)
}

func (r *Renderer) answer(p *models.MessagePair, delay time.Duration) {
	if !p.Succeeded() {
		fmt.Fprintf(r.w, "❌ %s\n", p.Text())
		return
	}
	shown := *p
	if r.markdown {
		escaped := conversation.EscapeCurrency(p.Answer())
		shown.AssistantMessage = &escaped
	}
	fmt.Fprint(r.w, "🤖 ")
	for word := range conversation.StreamWords(&shown) {
		fmt.Fprint(r.w, word)
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	fmt.Fprintln(r.w)
}

// Trace replays the stored events of p as reasoning steps.
func (r *Renderer) Trace(p *models.MessagePair) {
	if len(p.Events) == 0 {
		fmt.Fprintln(r.w, "Nenhuma etapa registrada.")
		return
	}
	acc := conversation.NewAccumulator(p.UserMessage)
	for _, ev := range p.Events {
		steps, err := acc.Apply(ev)
		if err != nil {
			return
		}
		r.Steps(steps, acc.Status())
	}
}

// Code prints the generated SQL of p.
func (r *Renderer) Code(p *models.MessagePair) {
	sql, ok := conversation.FormattedSQL(p)
	if !ok {
		fmt.Fprintln(r.w, models.MsgNoSQL)
		return
	}
	fmt.Fprintln(r.w, sql)
}

// Chart draws the chart of p as horizontal bars.
func (r *Renderer) Chart(p *models.MessagePair) {
	if notice := conversation.ChartNotice(p); notice != "" {
		fmt.Fprintln(r.w, notice)
		return
	}
	meta := p.ChartMetadata
	label, hasLabel := conversation.ValidLabel(p)

	type bar struct {
		x, label string
		y        float64
	}
	bars := make([]bar, 0, len(p.ChartData.Data))
	var maxY float64
	width := 0
	for _, row := range p.ChartData.Data {
		xv, _ := row.Get(meta.XAxis)
		yv, _ := row.Get(meta.YAxis)
		b := bar{x: xv.Display()}
		if n, ok := yv.AsNumber(); ok {
			b.y, _ = n.Float64()
		}
		if hasLabel {
			lv, _ := row.Get(label)
			b.label = lv.Display()
		}
		maxY = max(maxY, b.y)
		width = max(width, len([]rune(b.x)))
		bars = append(bars, b)
	}

	fmt.Fprintf(r.w, "📊 %s (%s)\n", meta.Title, meta.ChartType)
	fmt.Fprintf(r.w, "   %s × %s\n", meta.XAxisTitle, meta.YAxisTitle)
	for _, b := range bars {
		n := 0
		if maxY > 0 && b.y > 0 {
			n = int(b.y / maxY * chartWidth)
		}
		line := fmt.Sprintf("   %-*s %s %g", width, b.x, strings.Repeat("█", n), b.y)
		if b.label != "" {
			line += " [" + b.label + "]"
		}
		fmt.Fprintln(r.w, line)
	}
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "   " + l
	}
	return strings.Join(lines, "\n")
}
