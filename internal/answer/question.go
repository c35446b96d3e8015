package answer

import "strings"

var questionWords = map[string]bool{
	"what": true, "which": true, "how": true, "why": true, "when": true,
	"where": true, "who": true, "whom": true, "whose": true,
	"is": true, "are": true, "was": true, "were": true,
	"do": true, "does": true, "did": true, "can": true, "could": true,
	"should": true, "would": true, "will": true, "has": true, "have": true,
}

var imperatives = map[string]bool{
	"summarize": true, "summarise": true, "compare": true,
	"explain": true, "describe": true, "tell": true, "list": true,
}

// IsQuestion reports whether a query asks for a narrative answer rather
// than a plain result list.
func IsQuestion(query string) bool {
	q := strings.TrimSpace(query)
	if q == "" {
		return false
	}
	if strings.HasSuffix(q, "?") {
		return true
	}
	first := strings.ToLower(strings.Trim(strings.Fields(q)[0], ",.:;!"))
	return questionWords[first] || imperatives[first]
}
