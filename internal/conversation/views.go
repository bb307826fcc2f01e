package conversation

import (
	"iter"
	"strings"

	"chatbot/internal/models"
)

// StreamWords re-emits the assistant answer word by word, each word followed
// by a single space, for a typing effect. The sequence is recomputed from the
// stored text on every range, so it can be replayed. Failed exchanges yield
// nothing.
func StreamWords(p *models.MessagePair) iter.Seq[string] {
	return func(yield func(string) bool) {
		if p == nil || p.AssistantMessage == nil {
			return
		}
		for _, word := range strings.Split(*p.AssistantMessage, " ") {
			if word == "" {
				continue
			}
			if !yield(word + " ") {
				return
			}
		}
	}
}

// StreamCharacters re-emits the assistant answer one rune at a time.
func StreamCharacters(p *models.MessagePair) iter.Seq[string] {
	return func(yield func(string) bool) {
		if p == nil || p.AssistantMessage == nil {
			return
		}
		for _, r := range *p.AssistantMessage {
			if !yield(string(r)) {
				return
			}
		}
	}
}
