// Package purchases implements the StarWarsPurchaseTool over a sqlite
// database of figurine orders.
package purchases

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/tool"
)

// Name is the tool name exposed to agents.
const Name = "StarWarsPurchaseTool"

const description = "A tool for getting information on Star Wars figurine purchases. " +
	"This tool can take either an order number, character name, and customer name as parameters, and returns a list of purchases. " +
	"Only one of the parameters is required, but more can be used to narrow down the results."

// Order is one purchase with its matching figurines.
type Order struct {
	OrderID      string     `json:"orderId"`
	CustomerID   string     `json:"customerId"`
	CustomerName string     `json:"customerName"`
	TotalCost    float64    `json:"totalCost"`
	Figures      []Figurine `json:"figures"`
}

// Query filters purchases. At least one field must be set.
type Query struct {
	OrderNumber   int
	CharacterName string
	CustomerName  string
}

func (q Query) empty() bool {
	return q.OrderNumber <= 0 && q.CharacterName == "" && q.CustomerName == ""
}

// Options configures the tool.
type Options struct {
	// Logger provides structured logging.
	Logger logging.Logger
}

// Tool looks up figurine purchases.
type Tool struct {
	db     *sql.DB
	owned  bool
	logger logging.Logger
}

// New wraps an open database. The caller keeps ownership of db.
func New(db *sql.DB, optFns ...func(o *Options)) *Tool {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Tool{db: db, logger: logging.OrNoOp(opts.Logger)}
}

// Open opens (or creates) the sqlite database at path and ensures the schema.
func Open(ctx context.Context, path string, optFns ...func(o *Options)) (*Tool, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("purchases: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	t := New(db, optFns...)
	t.owned = true
	if err := t.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return t, nil
}

// Close closes the database when the tool opened it.
func (t *Tool) Close() error {
	if !t.owned {
		return nil
	}
	return t.db.Close()
}

// Name implements tool.Tool.
func (t *Tool) Name() string { return Name }

// Description implements tool.Tool.
func (t *Tool) Description() string { return description }

// Parameters implements tool.Tool.
func (t *Tool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"orderNumber": map[string]any{
				"type":        "integer",
				"description": "The order number",
			},
			"characterName": map[string]any{
				"type":        "string",
				"description": "The name of the figurine or character ordered",
			},
			"customerName": map[string]any{
				"type":        "string",
				"description": "The name of the customer who ordered the figurines",
			},
		},
	}
}

// Call implements tool.Tool. It returns the matching orders as a JSON array.
func (t *Tool) Call(ctx context.Context, args map[string]any) (string, error) {
	q := Query{
		OrderNumber:   tool.IntArg(args, "orderNumber", -1),
		CharacterName: strings.TrimSpace(tool.StringArg(args, "characterName")),
		CustomerName:  strings.TrimSpace(tool.StringArg(args, "customerName")),
	}
	if q.empty() {
		return "", tool.NewToolError(Name,
			"At least one parameter is required: orderNumber, characterName, or customerName.", tool.CodeValidation)
	}

	orders, err := t.Lookup(ctx, q)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(orders)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Lookup returns the orders matching q. Only orders with at least one
// matching figurine are returned. A character filter that matches no
// figurine is an error.
func (t *Tool) Lookup(ctx context.Context, q Query) ([]Order, error) {
	if q.empty() {
		return nil, fmt.Errorf("purchases: empty query")
	}

	figs, err := t.figurines(ctx, q.CharacterName)
	if err != nil {
		return nil, err
	}
	if len(figs) == 0 && q.CharacterName != "" {
		return nil, tool.NewToolError(Name,
			fmt.Sprintf("No figurines found for character '%s'.", q.CharacterName), tool.CodeExecution)
	}

	orders, err := t.orders(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		ids, err := t.orderFigurineIDs(ctx, o.OrderID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if f, ok := figs[id]; ok {
				o.Figures = append(o.Figures, f)
			}
		}
		if len(o.Figures) > 0 {
			out = append(out, o)
		}
	}

	t.logger.Debug("purchases.lookup", "order", q.OrderNumber, "character", q.CharacterName,
		"customer", q.CustomerName, "results", len(out))
	return out, nil
}

func (t *Tool) figurines(ctx context.Context, character string) (map[string]Figurine, error) {
	query := `SELECT id, name, price, description FROM figurines`
	var args []any
	if character != "" {
		query += ` WHERE name = ? COLLATE NOCASE`
		args = append(args, character)
	}

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("purchases: query figurines: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Figurine)
	for rows.Next() {
		var f Figurine
		if err := rows.Scan(&f.ID, &f.Name, &f.Price, &f.Description); err != nil {
			return nil, fmt.Errorf("purchases: scan figurine: %w", err)
		}
		out[f.ID] = f
	}
	return out, rows.Err()
}

func (t *Tool) orders(ctx context.Context, q Query) ([]Order, error) {
	var (
		where []string
		args  []any
	)
	if q.OrderNumber > 0 {
		where = append(where, "id = ?")
		args = append(args, q.OrderNumber)
	}
	if q.CustomerName != "" {
		where = append(where, "customer_name = ? COLLATE NOCASE")
		args = append(args, q.CustomerName)
	}

	query := `SELECT id, customer_id, customer_name, total_cost FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("purchases: query orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var (
			o  Order
			id int
		)
		if err := rows.Scan(&id, &o.CustomerID, &o.CustomerName, &o.TotalCost); err != nil {
			return nil, fmt.Errorf("purchases: scan order: %w", err)
		}
		o.OrderID = fmt.Sprint(id)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (t *Tool) orderFigurineIDs(ctx context.Context, orderID string) ([]string, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT figurine_id FROM order_figurines WHERE order_id = ? ORDER BY figurine_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("purchases: query order lines: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
