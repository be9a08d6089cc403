package purchases

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/tool"
)

func newSeeded(t *testing.T) *Tool {
	t.Helper()
	ctx := context.Background()
	pt, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pt.Close() })
	require.NoError(t, pt.Seed(ctx))
	return pt
}

func TestSeed_Idempotent(t *testing.T) {
	pt := newSeeded(t)
	require.NoError(t, pt.Seed(context.Background()))

	var n int
	require.NoError(t, pt.db.QueryRow(`SELECT COUNT(*) FROM orders`).Scan(&n))
	assert.Equal(t, 10, n)
	require.NoError(t, pt.db.QueryRow(`SELECT COUNT(*) FROM figurines`).Scan(&n))
	assert.Equal(t, len(figurines), n)
}

func TestLookup(t *testing.T) {
	pt := newSeeded(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		query    Query
		orderIDs []string
		figures  int
	}{
		{name: "by customer", query: Query{CustomerName: "Ben Smith"}, orderIDs: []string{"63"}, figures: 2},
		{name: "by customer case insensitive", query: Query{CustomerName: "ben smith"}, orderIDs: []string{"63"}, figures: 2},
		{name: "by order", query: Query{OrderNumber: 66}, orderIDs: []string{"66"}, figures: 1},
		{name: "by character", query: Query{CharacterName: "Yoda"}, orderIDs: []string{"63", "64"}, figures: 1},
		{name: "character and customer", query: Query{CharacterName: "Obi-Wan Kenobi", CustomerName: "Obi Wan"}, orderIDs: []string{"69"}, figures: 1},
		{name: "no match", query: Query{CustomerName: "Jar Jar"}, orderIDs: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders, err := pt.Lookup(ctx, tt.query)
			require.NoError(t, err)

			ids := []string{}
			for _, o := range orders {
				ids = append(ids, o.OrderID)
				assert.Len(t, o.Figures, tt.figures)
			}
			assert.Equal(t, tt.orderIDs, ids)
		})
	}
}

func TestLookup_TotalCost(t *testing.T) {
	pt := newSeeded(t)

	orders, err := pt.Lookup(context.Background(), Query{OrderNumber: 64})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "C005", orders[0].CustomerID)
	assert.Equal(t, "Yoda Masterson", orders[0].CustomerName)
	assert.InDelta(t, 19.99, orders[0].TotalCost, 0.001)
	assert.Equal(t, "Yoda", orders[0].Figures[0].Name)
}

func TestTool_CallThroughCatalog(t *testing.T) {
	c := tool.NewCatalog()
	require.NoError(t, c.Add(newSeeded(t)))
	ctx := context.Background()

	out, err := c.Invoke(ctx, Name, `{"orderNumber": 66}`)
	require.NoError(t, err)
	require.False(t, out.Failed())

	var orders []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.Content), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, "66", orders[0]["orderId"])
	assert.Equal(t, "Anakin Skywalker", orders[0]["customerName"])
	figs := orders[0]["figures"].([]any)
	assert.Equal(t, "Clone Trooper", figs[0].(map[string]any)["figurineName"])

	out, err = c.Invoke(ctx, Name, `{}`)
	require.NoError(t, err)
	assert.ErrorIs(t, out.Err, core.ErrToolInvocation)
	assert.Contains(t, out.Content, "At least one parameter is required")

	out, err = c.Invoke(ctx, Name, `{"characterName": "Jar Jar Binks"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"No figurines found for character 'Jar Jar Binks'."}`, out.Content)

	out, err = c.Invoke(ctx, Name, `{"orderNumber": "sixty"}`)
	require.NoError(t, err)
	assert.True(t, out.Failed())
}
