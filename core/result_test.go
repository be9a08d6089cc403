package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResult(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Result
		wantErr bool
	}{
		{
			name: "story payload",
			in:   `{"title": "A Star Wars Adventure", "story": "Once upon a time...", "imageUrl": "https://example.com/image.png"}`,
			want: Result{Title: "A Star Wars Adventure", Body: "Once upon a time...", AuxiliaryAssetURL: "https://example.com/image.png"},
		},
		{
			name: "body synonym without asset",
			in:   `{"Title": "T", "Body": "B"}`,
			want: Result{Title: "T", Body: "B"},
		},
		{
			name: "code fence",
			in:   "```json\n{\"title\": \"T\", \"story\": \"S\"}\n```",
			want: Result{Title: "T", Body: "S"},
		},
		{
			name: "surrounded by prose",
			in:   "Here is your story: {\"title\": \"T\", \"story\": \"S\"} Enjoy!",
			want: Result{Title: "T", Body: "S"},
		},
		{name: "plain text", in: "Yoda is a Jedi Master.", wantErr: true},
		{name: "missing body", in: `{"title": "T"}`, wantErr: true},
		{name: "invalid json", in: `{"title": "T", story}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResult(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedTerminalPayload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResult_Markdown(t *testing.T) {
	r := Result{Title: "Duel", Body: "Sabers hum."}

	assert.Equal(t, "# Duel\n\nSabers hum.\n", r.Markdown(""))
	assert.Equal(t, "# Duel\n\nSabers hum.\n\n![Image](duel.png)\n", r.Markdown("duel.png"))
}
