// ABOUTME: Tests for the phrase classifier

package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhraseClassifier(t *testing.T) {
	c := PhraseClassifier{}

	tests := []struct {
		content string
		want    string
	}{
		{"Can someone help me DEBUG this?", KindCode},
		{"here's the stack trace I keep hitting", KindCode},
		{"please do a code review of my branch", KindCode},
		{"write a poem about compilers", KindCreative},
		{"I need name ideas for my project", KindCreative},
		{"how do I set up my profile?", ""},
		{"", ""},
		// Code phrases win when both kinds appear
		{"write a poem, then refactor it", KindCode},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Classify(tt.content), "content: %q", tt.content)
	}
}
