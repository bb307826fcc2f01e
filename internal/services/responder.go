package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chatbot/internal/models"

	"github.com/google/uuid"
)

// Emitter forwards one event of a run. A non-nil error means the run should
// stop.
type Emitter func(models.StreamEvent) error

// ResponderRequest is the input of one run.
type ResponderRequest struct {
	ThreadID uuid.UUID
	Message  string
	// Memory holds the earlier completed runs of the thread, oldest first.
	Memory []models.Checkpoint
}

// Artifacts are the by-products of a run that are stored with its message
// pair but never streamed.
type Artifacts struct {
	ChartData     *models.ChartData
	ChartMetadata *models.ChartMetadata
	ModelURI      *string
}

// Responder produces the assistant side of a run. It emits tool_call,
// tool_output, final_answer and error events; the caller owns the complete
// event.
type Responder interface {
	Respond(ctx context.Context, req ResponderRequest, emit Emitter) (*Artifacts, error)
}

const (
	scriptedToolName = "execute_sql"
	// failurePrefix makes the scripted responder report an error instead of
	// answering.
	failurePrefix = "/erro"
)

// ScriptedResponder answers every question with the same sales query. It
// stands in for a model during development and tests.
type ScriptedResponder struct {
	// Delay is slept between events.
	Delay    time.Duration
	ModelURI string
}

var _ Responder = (*ScriptedResponder)(nil)

type salesRow struct {
	category string
	total    float64
}

var scriptedSales = []salesRow{
	{"Eletrônicos", 1200.50},
	{"Livros", 310},
	{"Mercado", 95.25},
}

func (r *ScriptedResponder) Respond(ctx context.Context, req ResponderRequest, emit Emitter) (*Artifacts, error) {
	message := strings.TrimSpace(req.Message)
	if rest, ok := strings.CutPrefix(message, failurePrefix); ok {
		reason := strings.TrimSpace(rest)
		if reason == "" {
			reason = models.MsgResponderFailed
		}
		return nil, emit(models.NewErrorEvent(reason))
	}

	narrative := "Vou consultar a base de vendas."
	if n := len(req.Memory); n > 0 {
		narrative = fmt.Sprintf("Continuando a partir de %q, vou consultar a base de vendas.", req.Memory[n-1].UserMessage)
	}
	query := fmt.Sprintf(
		"SELECT categoria, SUM(valor) AS total FROM vendas WHERE descricao ILIKE '%%%s%%' GROUP BY categoria ORDER BY total DESC;",
		strings.ReplaceAll(message, "'", "''"),
	)
	call := models.ToolCall{
		ID:   "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		Name: scriptedToolName,
		Args: models.Object(models.Field{Key: "sql_query", Value: models.String(query)}),
	}
	if err := emit(models.NewToolCallEvent(narrative, call)); err != nil {
		return nil, err
	}
	if err := r.pause(ctx); err != nil {
		return nil, err
	}

	rows := make([]models.Value, 0, len(scriptedSales))
	var total float64
	for _, row := range scriptedSales {
		rows = append(rows, models.Object(
			models.Field{Key: "categoria", Value: models.String(row.category)},
			models.Field{Key: "total", Value: models.Number(json.Number(fmt.Sprintf("%.2f", row.total)))},
		))
		total += row.total
	}
	output, err := json.Marshal(models.Array(rows...))
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool output: %w", err)
	}
	metadata := models.Object(models.Field{Key: "is_truncated", Value: models.Bool(false)})
	if err := emit(models.NewToolOutputEvent(models.ToolOutput{
		Status:     models.ToolSuccess,
		ToolCallID: call.ID,
		ToolName:   scriptedToolName,
		Output:     string(output),
		Metadata:   &metadata,
	})); err != nil {
		return nil, err
	}
	if err := r.pause(ctx); err != nil {
		return nil, err
	}

	answer := fmt.Sprintf(
		"Encontrei %d categorias. A maior foi %s, com R$ %.2f, e o total geral foi de R$ %.2f. (pergunta %d desta conversa)",
		len(scriptedSales), scriptedSales[0].category, scriptedSales[0].total, total, len(req.Memory)+1,
	)
	if err := emit(models.NewFinalAnswerEvent(answer)); err != nil {
		return nil, err
	}

	artifacts := &Artifacts{
		ChartData: &models.ChartData{Data: rows},
		ChartMetadata: &models.ChartMetadata{
			ChartType:  models.ChartBar,
			Title:      "Vendas por categoria",
			XAxis:      "categoria",
			XAxisTitle: "Categoria",
			YAxis:      "total",
			YAxisTitle: "Total (R$)",
		},
	}
	if r.ModelURI != "" {
		uri := r.ModelURI
		artifacts.ModelURI = &uri
	}
	return artifacts, nil
}

func (r *ScriptedResponder) pause(ctx context.Context) error {
	if r.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(r.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
