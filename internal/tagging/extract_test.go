package tagging

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	e := NewExtractor(0, 0)

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "hashtags first then keywords then words",
			text: "Deploying the PaymentService with #kubernetes today",
			want: []string{"kubernetes", "deploying", "paymentservice", "today"},
		},
		{
			name: "snake case keyword",
			text: "we should refactor user_service now",
			want: []string{"user_service", "should", "refactor", "now"},
		},
		{
			name: "truncated to max tags",
			text: "alpha beta gamma delta epsilon zeta",
			want: []string{"alpha", "beta", "gamma", "delta", "epsilon"},
		},
		{
			name: "short hashtag dropped",
			text: "#go is fun",
			want: []string{"fun"},
		},
		{
			name: "russian stopwords",
			text: "Это обсуждение архитектуры для сервиса",
			want: []string{"обсуждение", "архитектуры", "сервиса"},
		},
		{
			name: "punctuation stripped and case folded",
			text: "Hello, world! hello",
			want: []string{"hello", "world"},
		},
		{
			name: "hashtag not repeated as word",
			text: "#golang golang Golang",
			want: []string{"golang"},
		},
		{
			name: "blank",
			text: "   ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.text)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Extract(%q) mismatch (-want +got):\n%s", tt.text, diff)
			}
		})
	}
}

func TestExtractIsStable(t *testing.T) {
	e := NewExtractor(3, 5)
	text := "Migrating #postgres schemas with the SchemaRegistry and flyway_runner"
	require.Equal(t, e.Extract(text), e.Extract(text))
}

func TestExtractOptions(t *testing.T) {
	e := NewExtractor(6, 2)
	require.Equal(t, []string{"database", "migration"}, e.Extract("big database migration tonight"))
}
