package artifact

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
)

var (
	_ Store = (*InMemoryStore)(nil)
	_ Store = (*FileStore)(nil)
)

func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("save get isolation", func(t *testing.T) {
		data := []byte("hello")
		require.NoError(t, s.Save(ctx, "a1.txt", data))
		data[0] = 'H'

		out, err := s.Get(ctx, "a1.txt")
		require.NoError(t, err)
		assert.Equal(t, "hello", string(out))

		out[0] = 'x'
		out2, err := s.Get(ctx, "a1.txt")
		require.NoError(t, err)
		assert.Equal(t, "hello", string(out2))
	})

	t.Run("list and delete", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, "b/b1.txt", []byte("1")))
		names, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a1.txt", "b/b1.txt"}, names)

		require.NoError(t, s.Delete(ctx, "b/b1.txt"))
		assert.ErrorIs(t, s.Delete(ctx, "b/b1.txt"), ErrNotFound)
		_, err = s.Get(ctx, "b/b1.txt")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid names", func(t *testing.T) {
		assert.ErrorIs(t, s.Save(ctx, "", nil), ErrInvalidName)
		assert.ErrorIs(t, s.Save(ctx, "../escape", nil), ErrInvalidName)
		assert.ErrorIs(t, s.Save(ctx, "/abs", nil), ErrInvalidName)
	})
}

func TestInMemoryStore(t *testing.T) {
	testStore(t, NewInMemoryStore())
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	testStore(t, s)

	p, err := s.Path("a1.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a1.txt"), p)
}

func TestPublisher_Publish(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/yoda.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("PNGDATA"))
	}))
	defer srv.Close()

	store := NewInMemoryStore()
	pub := NewPublisher(store, func(o *PublisherOptions) { o.HTTPClient = srv.Client() })

	out, err := pub.Publish(context.Background(), core.Result{
		Title:             "Ben and the Little Master",
		Body:              "Once upon a time...",
		AuxiliaryAssetURL: srv.URL + "/images/yoda.png",
	})
	require.NoError(t, err)

	assert.Equal(t, "Ben and the Little Master.md", out.Document)
	assert.True(t, strings.HasSuffix(out.Asset, ".png"))

	asset, err := store.Get(context.Background(), out.Asset)
	require.NoError(t, err)
	assert.Equal(t, "PNGDATA", string(asset))

	doc, err := store.Get(context.Background(), out.Document)
	require.NoError(t, err)
	assert.Equal(t, "# Ben and the Little Master\n\nOnce upon a time...\n\n![Image]("+out.Asset+")\n", string(doc))
}

func TestPublisher_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := NewInMemoryStore()
	pub := NewPublisher(store, func(o *PublisherOptions) { o.HTTPClient = srv.Client() })

	_, err := pub.Publish(context.Background(), core.Result{Title: "T", Body: "B", AuxiliaryAssetURL: srv.URL + "/x.png"})
	assert.ErrorContains(t, err, "unexpected status")

	_, err = pub.Publish(context.Background(), core.Result{Title: "T", Body: "B", AuxiliaryAssetURL: "ftp://nope"})
	assert.ErrorContains(t, err, "invalid asset url")

	names, _ := store.List(context.Background())
	assert.Empty(t, names)
}

func TestPublisher_WithoutAsset(t *testing.T) {
	store := NewInMemoryStore()
	out, err := NewPublisher(store).Publish(context.Background(), core.Result{Title: "Plain", Body: "Text"})
	require.NoError(t, err)
	assert.Empty(t, out.Asset)

	doc, err := store.Get(context.Background(), "Plain.md")
	require.NoError(t, err)
	assert.Equal(t, "# Plain\n\nText\n", string(doc))
}

func TestDocumentName(t *testing.T) {
	assert.Equal(t, "Luke-Vader.md", DocumentName("Luke/Vader"))
	assert.Equal(t, "story.md", DocumentName("  "))
	assert.Equal(t, "A New Hope.md", DocumentName("A New Hope"))
}
