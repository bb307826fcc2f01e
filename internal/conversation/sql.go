package conversation

import (
	"strings"

	"chatbot/internal/models"
)

const (
	sqlFenceOpen  = "```sql"
	sqlFenceClose = "```"
)

// FormatSQLQueries renders queries as markdown sql code blocks separated by
// newlines. ok is false when queries is nil, meaning none were generated.
func FormatSQLQueries(queries []string) (formatted string, ok bool) {
	if queries == nil {
		return "", false
	}
	blocks := make([]string, len(queries))
	for i, q := range queries {
		blocks[i] = sqlFenceOpen + "\n" + q + "\n" + sqlFenceClose
	}
	return strings.Join(blocks, "\n"), true
}

// FormattedSQL is FormatSQLQueries applied to a record's generated queries.
func FormattedSQL(p *models.MessagePair) (string, bool) {
	if p == nil {
		return "", false
	}
	return FormatSQLQueries(p.GeneratedQueries)
}

// ParseSQLQueries strips the fence markers written by FormatSQLQueries and
// returns the plain queries in order. Text outside fences is ignored.
func ParseSQLQueries(formatted string) []string {
	queries := []string{}
	var (
		inBlock bool
		body    []string
	)
	for _, line := range strings.Split(formatted, "\n") {
		switch {
		case !inBlock && line == sqlFenceOpen:
			inBlock, body = true, body[:0]
		case inBlock && line == sqlFenceClose:
			queries = append(queries, strings.Join(body, "\n"))
			inBlock = false
		case inBlock:
			body = append(body, line)
		}
	}
	return queries
}
