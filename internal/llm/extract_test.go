package llm

import (
	"encoding/json"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "bare object",
			content: `{"compliant": true, "score": 90}`,
			want:    `{"compliant": true, "score": 90}`,
		},
		{
			name:    "json fence",
			content: "Вот результат анализа:\n```json\n{\"score\": 75}\n```\nНадеюсь, помог.",
			want:    `{"score": 75}`,
		},
		{
			name:    "plain fence",
			content: "```\n{\"score\": 60}\n```",
			want:    `{"score": 60}`,
		},
		{
			name:    "prose around object",
			content: `I think the answer is {"issues": ["missing section"]} based on the document.`,
			want:    `{"issues": ["missing section"]}`,
		},
		{
			name:    "braces inside strings",
			content: `{"note": "use {placeholder} syntax", "ok": true} trailing`,
			want:    `{"note": "use {placeholder} syntax", "ok": true}`,
		},
		{
			name:    "no json",
			content: "sorry, I cannot analyze this document",
			want:    "",
		},
		{
			name:    "empty",
			content: "   ",
			want:    "",
		},
		{
			name:    "unbalanced",
			content: `{"broken": `,
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSON(tt.content)
			if got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
			if got != "" && !json.Valid([]byte(got)) {
				t.Errorf("ExtractJSON() returned invalid JSON: %q", got)
			}
		})
	}
}
