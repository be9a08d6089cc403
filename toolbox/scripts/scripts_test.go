package scripts

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/memory"
	"github.com/hupe1980/agentrelay/tool"
)

const newHope = `LUKE: But I was going into Tosche Station to pick up some power converters!

OBI-WAN: These aren't the droids you're looking for.
VADER: I find your lack of faith disturbing.
`

const empire = `YODA: Do. Or do not. There is no try.
VADER: No, I am your father.
`

func ingested(t *testing.T) *memory.InMemoryStore {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a-new-hope.txt"), []byte(newHope), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "the-empire-strikes-back.txt"), []byte(empire), 0o600))

	store := memory.NewInMemoryStore()
	n, err := Ingest(context.Background(), store, dir, func(o *IngestOptions) { o.BatchSize = 2 })
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, store.Len())
	return store
}

func TestSearch_FiltersByMovie(t *testing.T) {
	st := New(ingested(t))

	chunks, err := st.Search(context.Background(), "Vader faith", "")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "VADER: I find your lack of faith disturbing.", chunks[0].ChunkText)
	assert.Equal(t, "a-new-hope", chunks[0].MovieName)
	assert.Equal(t, "a-new-hope-4", chunks[0].ID)

	chunks, err = st.Search(context.Background(), "Vader", "the-empire-strikes-back")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "VADER: No, I am your father.", chunks[0].ChunkText)
}

func TestSearch_Validation(t *testing.T) {
	st := New(memory.NewInMemoryStore())

	_, err := st.Search(context.Background(), "  ", "")
	assert.ErrorContains(t, err, "Query cannot be empty.")

	_, err = st.Search(context.Background(), "Yoda", "the-force-awakens")
	assert.ErrorContains(t, err, "Invalid movie name 'the-force-awakens'")
}

func TestTool_CallThroughCatalog(t *testing.T) {
	c := tool.NewCatalog()
	require.NoError(t, c.Add(New(ingested(t), func(o *Options) { o.TopK = 1 })))

	out, err := c.Invoke(context.Background(), Name, `{"query":"try","movieName":"the-empire-strikes-back"}`)
	require.NoError(t, err)
	require.False(t, out.Failed())

	var body struct {
		Matches []Chunk `json:"matches"`
	}
	require.NoError(t, json.Unmarshal([]byte(out.Content), &body))
	require.Len(t, body.Matches, 1)
	assert.True(t, strings.HasPrefix(body.Matches[0].ChunkText, "YODA:"))

	out, err = c.Invoke(context.Background(), Name, `{"query":"try","movieName":"A-New-Hope"}`)
	require.NoError(t, err)
	assert.True(t, out.Failed())
	assert.Contains(t, out.Content, "must be one of")
}

func TestIngestScript_UnknownMovie(t *testing.T) {
	_, err := IngestScript(context.Background(), memory.NewInMemoryStore(), "holiday-special", strings.NewReader("x"), 10)
	assert.Error(t, err)
}
