package memory

import (
	"strings"

	"github.com/subpilot/subpilot/store"
)

// summarize renders memories as a bounded line-per-memory digest, newest
// first, grouped by type. Truncation always lands on a line boundary so a
// half sentence never reaches a prompt.
func summarize(memories []*store.SubscriberMemory, maxLen int) string {
	if maxLen <= 0 || len(memories) == 0 {
		return ""
	}

	order := []store.MemoryType{
		store.MemoryTypePreference,
		store.MemoryTypeFact,
		store.MemoryTypeInteraction,
		store.MemoryTypePattern,
	}
	labels := map[store.MemoryType]string{
		store.MemoryTypePreference:  "Preferences",
		store.MemoryTypeFact:        "Facts",
		store.MemoryTypeInteraction: "Interactions",
		store.MemoryTypePattern:     "Observations",
	}

	grouped := make(map[store.MemoryType][]*store.SubscriberMemory)
	for _, m := range memories {
		grouped[m.MemoryType] = append(grouped[m.MemoryType], m)
	}

	var b strings.Builder
	for _, t := range order {
		rows := grouped[t]
		if len(rows) == 0 {
			continue
		}
		header := labels[t] + ":\n"
		if b.Len()+len(header) > maxLen {
			break
		}
		b.WriteString(header)
		for _, m := range rows {
			line := "- "
			if m.Key != "" {
				line += m.Key + ": "
			}
			line += m.Content + "\n"
			if b.Len()+len(line) > maxLen {
				return strings.TrimRight(b.String(), "\n")
			}
			b.WriteString(line)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
