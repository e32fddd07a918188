// ABOUTME: Request-kind classifier for specialist routing
// ABOUTME: Phrase matching decides whether a post is a code or creative request

package orchestrator

import "strings"

// Request kinds a classifier can detect. An empty kind means no specialist
// routing applies.
const (
	KindCode     = "code"
	KindCreative = "creative"
)

// Classifier decides whether a message is a code or creative request.
// A match routes help-board fallbacks to the specialist persona and sends
// the reply down the specialized artifact path instead of the persona
// conversation.
type Classifier interface {
	Classify(content string) string
}

// PhraseClassifier matches a fixed phrase list against lowercased content.
// Code phrases win over creative ones when both appear.
type PhraseClassifier struct{}

var codePhrases = []string{
	"write code",
	"write a function",
	"write a script",
	"debug",
	"stack trace",
	"fix this error",
	"error message",
	"refactor",
	"code review",
	"unit test",
}

var creativePhrases = []string{
	"write a poem",
	"write a story",
	"write a haiku",
	"haiku",
	"brainstorm",
	"name ideas",
	"slogan",
	"lyrics",
	"short story",
}

func (PhraseClassifier) Classify(content string) string {
	lower := strings.ToLower(content)
	for _, phrase := range codePhrases {
		if strings.Contains(lower, phrase) {
			return KindCode
		}
	}
	for _, phrase := range creativePhrases {
		if strings.Contains(lower, phrase) {
			return KindCreative
		}
	}
	return ""
}
