package conversation

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"chatbot/internal/models"
)

var csvHeader = []string{"modelo", "pergunta", "resposta", "consulta"}

// WriteCSV writes one row per message pair: model, question, answer and the
// generated queries separated by blank lines. Missing values are empty cells.
func WriteCSV(w io.Writer, pairs []models.MessagePair) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range pairs {
		p := &pairs[i]
		model := ""
		if p.ModelURI != nil {
			model = *p.ModelURI
		}
		row := []string{model, p.UserMessage, p.Answer(), strings.Join(p.GeneratedQueries, "\n\n")}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportFileName names a chat export taken at now.
func ExportFileName(page string, now time.Time) string {
	return fmt.Sprintf("%s_%s.csv", strings.ReplaceAll(page, " ", "_"), now.Format("2006-01-02_15:04:05"))
}
