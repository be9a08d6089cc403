package tool

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
)

func echoTool(name string) *FunctionTool {
	return NewFunctionTool(name, "Echo "+name, map[string]any{
		"type":       "object",
		"properties": map[string]any{"text": map[string]any{"type": "string"}},
		"required":   []string{"text"},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	})
}

type failingProvider struct{ err error }

func (f failingProvider) Name() string { return "broken" }

func (f failingProvider) ListTools(context.Context) ([]Tool, error) { return nil, f.err }

// rawTool validates nothing itself so the catalog must.
type rawTool struct{ calls int }

func (r *rawTool) Name() string        { return "raw" }
func (r *rawTool) Description() string { return "raw" }
func (r *rawTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"n": map[string]any{"type": "number"}},
		"required":   []any{"n"},
	}
}
func (r *rawTool) Call(ctx context.Context, args map[string]any) (string, error) {
	r.calls++
	return "ok", nil
}

type panicTool struct{}

func (panicTool) Name() string               { return "explode" }
func (panicTool) Description() string        { return "" }
func (panicTool) Parameters() map[string]any { return nil }
func (panicTool) Call(context.Context, map[string]any) (string, error) {
	panic("kaboom")
}

func TestCatalog_RegisterAndResolve(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register(context.Background(), NewStaticProvider("box", echoTool("a"), echoTool("b"))))
	require.NoError(t, c.Add(echoTool("c")))

	assert.Equal(t, []string{"a", "b", "c"}, c.Names())
	assert.Equal(t, 3, c.Len())

	tools, err := c.Resolve("c", "a")
	require.NoError(t, err)
	assert.Equal(t, "c", tools[0].Name())
	assert.Equal(t, "a", tools[1].Name())

	owner, ok := c.ProviderOf("a")
	assert.True(t, ok)
	assert.Equal(t, "box", owner)
	owner, _ = c.ProviderOf("c")
	assert.Equal(t, "local", owner)
}

func TestCatalog_ResolveUnknown(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Add(echoTool("a")))

	_, err := c.Resolve("a", "ghost")

	assert.ErrorIs(t, err, core.ErrUnknownTool)
	assert.ErrorContains(t, err, "ghost")
}

func TestCatalog_DuplicateIsAllOrNothing(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Add(echoTool("a")))

	err := c.Register(context.Background(), NewStaticProvider("other", echoTool("b"), echoTool("a")))

	assert.ErrorIs(t, err, core.ErrDuplicateToolName)
	_, ok := c.Lookup("b")
	assert.False(t, ok, "no tool of a rejected provider is registered")

	err = c.Add(echoTool("x"), echoTool("x"))
	assert.ErrorIs(t, err, core.ErrDuplicateToolName)
}

func TestCatalog_RejectsReservedPrefix(t *testing.T) {
	c := NewCatalog()
	err := c.Add(echoTool("transfer_to_Writer"))
	assert.ErrorContains(t, err, "reserved")
}

func TestCatalog_RegisterAll(t *testing.T) {
	c := NewCatalog()
	err := c.RegisterAll(context.Background(),
		NewStaticProvider("one", echoTool("a")),
		NewStaticProvider("two", echoTool("b"), echoTool("c")),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, c.Names())

	c2 := NewCatalog()
	err = c2.RegisterAll(context.Background(),
		NewStaticProvider("one", echoTool("a")),
		NewStaticProvider("two", echoTool("a")),
	)
	assert.ErrorIs(t, err, core.ErrDuplicateToolName)
	assert.Zero(t, c2.Len())

	boom := errors.New("mcp server down")
	err = c2.RegisterAll(context.Background(), NewStaticProvider("one", echoTool("a")), failingProvider{err: boom})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c2.Len())
}

func TestCatalog_Seal(t *testing.T) {
	c := NewCatalog()
	c.Seal()
	assert.True(t, c.Sealed())
	assert.ErrorIs(t, c.Add(echoTool("a")), ErrCatalogSealed)
}

func TestCatalog_Invoke(t *testing.T) {
	c := NewCatalog()
	raw := &rawTool{}
	require.NoError(t, c.Add(echoTool("echo"), raw, panicTool{}))

	t.Run("success", func(t *testing.T) {
		out, err := c.Invoke(context.Background(), "echo", `{"text":"hi"}`)
		require.NoError(t, err)
		assert.False(t, out.Failed())
		assert.Equal(t, "hi", out.Content)
	})

	t.Run("malformed arguments", func(t *testing.T) {
		out, err := c.Invoke(context.Background(), "echo", `{"text":`)
		require.NoError(t, err)
		assert.True(t, out.Failed())
		assert.Contains(t, out.Content, `"error"`)
	})

	t.Run("schema validated for foreign tools", func(t *testing.T) {
		out, err := c.Invoke(context.Background(), "raw", `{}`)
		require.NoError(t, err)
		assert.True(t, out.Failed())
		assert.Zero(t, raw.calls)
		var te *ToolError
		require.ErrorAs(t, out.Err, &te)
		assert.Equal(t, CodeValidation, te.Code)
	})

	t.Run("panic recovered", func(t *testing.T) {
		out, err := c.Invoke(context.Background(), "explode", "")
		require.NoError(t, err)
		assert.ErrorIs(t, out.Err, core.ErrToolInvocation)
		assert.Contains(t, out.Content, "kaboom")
	})

	t.Run("unknown tool", func(t *testing.T) {
		_, err := c.Invoke(context.Background(), "ghost", "{}")
		assert.ErrorIs(t, err, core.ErrUnknownTool)
	})
}

func TestCatalog_ConcurrentReads(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Add(echoTool("echo")))
	c.Seal()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := c.Invoke(context.Background(), "echo", `{"text":"x"}`)
			assert.NoError(t, err)
			assert.Equal(t, "x", out.Content)
			_, _ = c.Resolve("echo")
		}()
	}
	wg.Wait()
}
