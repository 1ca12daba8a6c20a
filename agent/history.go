package agent

import (
	"encoding/json"

	"github.com/ferretworks/ferret/llm"
)

// TrimHistory bounds a message list by count and serialized size. The
// most recent maxMessages entries are kept, then the oldest entries are
// dropped while the serialized size exceeds maxChars, never going below
// two entries. Idempotent.
func TrimHistory(history []llm.Message, maxMessages, maxChars int) []llm.Message {
	if len(history) > maxMessages {
		history = history[len(history)-maxMessages:]
	}
	for historySize(history) > maxChars && len(history) > 2 {
		history = history[1:]
	}
	return history
}

func historySize(history []llm.Message) int {
	total := 0
	for _, m := range history {
		data, err := json.Marshal(m)
		if err != nil {
			continue
		}
		total += len(data)
	}
	return total
}
