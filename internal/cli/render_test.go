package cli

import (
	"bytes"
	"strings"
	"testing"

	"chatbot/internal/conversation"
	"chatbot/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func answered(text string) *models.MessagePair {
	return &models.MessagePair{ID: uuid.New(), UserMessage: "pergunta", AssistantMessage: &text}
}

func TestRendererSteps(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	r.Waiting("pergunta")
	r.Steps([]conversation.Step{
		{Kind: conversation.StepNarrative, Content: "Vou consultar as vendas."},
		{Kind: conversation.StepToolCall, Label: "execute_sql", Content: "SELECT 1\nFROM vendas"},
		{Kind: conversation.StepToolResult, Label: "execute_sql", Content: "[]", Truncated: true},
		{Kind: conversation.StepToolError, Label: "plot"},
	}, conversation.StatusPending)

	out := buf.String()
	assert.Contains(t, out, "⏳ Pensando...")
	assert.Contains(t, out, "💭 Vou consultar as vendas.")
	assert.Contains(t, out, "🔧 execute_sql\n   SELECT 1\n   FROM vendas\n")
	assert.Contains(t, out, "📄 execute_sql\n   []\n")
	assert.Contains(t, out, "(resultado truncado)")
	assert.Contains(t, out, "plot falhou")
}

func TestRendererFinished(t *testing.T) {
	t.Run("answer", func(t *testing.T) {
		var buf bytes.Buffer
		p := answered("O total foi R$ 10,00.")
		NewRenderer(&buf).Finished(p)
		assert.Contains(t, buf.String(), "🤖 O total foi R$ 10,00. \n")
		assert.Contains(t, buf.String(), p.ID.String())
	})

	t.Run("markdown escapes currency", func(t *testing.T) {
		var buf bytes.Buffer
		NewRenderer(&buf, WithMarkdown(true)).Finished(answered("O total foi R$ 10,00."))
		assert.Contains(t, buf.String(), `R\$ 10,00.`)
	})

	t.Run("failure", func(t *testing.T) {
		var buf bytes.Buffer
		msg := models.MsgStreamFailure
		NewRenderer(&buf).Finished(&models.MessagePair{ID: uuid.New(), ErrorMessage: &msg})
		assert.Contains(t, buf.String(), "❌ "+models.MsgStreamFailure)
		assert.NotContains(t, buf.String(), "🤖")
	})
}

func TestRendererRecord(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf).Record(answered("resposta"))
	assert.True(t, strings.HasPrefix(buf.String(), "🧑 pergunta\n🤖 resposta \n"))
}

func TestRendererCode(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	p := answered("ok")
	r.Code(p)
	assert.Equal(t, models.MsgNoSQL+"\n", buf.String())

	buf.Reset()
	p.GeneratedQueries = []string{"SELECT 1"}
	r.Code(p)
	assert.Equal(t, "```sql\nSELECT 1\n```\n", buf.String())
}

func TestRendererChart(t *testing.T) {
	row := func(cat string, total int64, region string) models.Value {
		return models.Object(
			models.Field{Key: "categoria", Value: models.String(cat)},
			models.Field{Key: "total", Value: models.Int(total)},
			models.Field{Key: "regiao", Value: models.String(region)},
		)
	}
	label := "regiao"
	p := answered("ok")
	p.ChartData = &models.ChartData{Data: []models.Value{row("Livros", 10, "Sul"), row("Mercado", 5, "Norte")}}
	p.ChartMetadata = &models.ChartMetadata{
		ChartType:  models.ChartBar,
		Title:      "Vendas",
		XAxis:      "categoria",
		XAxisTitle: "Categoria",
		YAxis:      "total",
		YAxisTitle: "Total",
		Label:      &label,
	}

	var buf bytes.Buffer
	r := NewRenderer(&buf)
	r.Chart(p)
	out := buf.String()
	assert.Contains(t, out, "📊 Vendas (bar)")
	assert.Contains(t, out, "Categoria × Total")
	assert.Contains(t, out, "Livros  "+strings.Repeat("█", chartWidth)+" 10 [Sul]")
	assert.Contains(t, out, "Mercado "+strings.Repeat("█", chartWidth/2)+" 5 [Norte]")

	buf.Reset()
	p.ChartMetadata.ChartType = "radar"
	r.Chart(p)
	assert.Equal(t, models.MsgChartCreationFailed+"\n", buf.String())

	buf.Reset()
	r.Chart(answered("ok"))
	assert.Equal(t, models.MsgNoChart+"\n", buf.String())
}

func TestRendererTrace(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	p := answered("ok")
	r.Trace(p)
	assert.Equal(t, "Nenhuma etapa registrada.\n", buf.String())

	buf.Reset()
	args := models.Object(models.Field{Key: "sql_query", Value: models.String("SELECT 1")})
	p.Events = []models.StreamEvent{
		models.NewToolCallEvent("Consultando.", models.ToolCall{ID: "c1", Name: "execute_sql", Args: args}),
		models.NewToolOutputEvent(models.ToolOutput{Status: models.ToolSuccess, ToolCallID: "c1", ToolName: "execute_sql", Output: "[]"}),
		models.NewFinalAnswerEvent("ok"),
		models.NewCompleteEvent(p.ID),
	}
	r.Trace(p)
	out := buf.String()
	assert.Contains(t, out, "💭 Consultando.")
	assert.Contains(t, out, "🔧 execute_sql")
	assert.Contains(t, out, "📄 execute_sql")
	assert.NotContains(t, out, "🤖")
}
