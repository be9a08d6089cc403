package purchases

import (
	"context"
	"fmt"
)

// Figurine is an item of the figurine catalog.
type Figurine struct {
	ID          string  `json:"figurineId"`
	Name        string  `json:"figurineName"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
}

type customer struct{ id, name string }

var figurines = []Figurine{
	{"F001", "Luke Skywalker", 24.99, "Farm boy turned Jedi Knight in his Tatooine tunic, with a blue lightsaber."},
	{"F002", "Darth Vader", 39.99, "Dark Lord of the Sith with flowing cape and red lightsaber."},
	{"F003", "Princess Leia", 24.99, "Rebel leader in white gown with her iconic side buns."},
	{"F004", "Han Solo", 27.99, "Smuggler captain in vest and holster with his DL-44 blaster."},
	{"F005", "Chewbacca", 29.99, "Towering Wookiee co-pilot with bowcaster and bandolier."},
	{"F006", "Yoda", 19.99, "Small, wise Jedi Master with gimer stick and brown robe."},
	{"F007", "Obi-Wan Kenobi", 24.99, "Elderly Jedi hermit in desert robes."},
	{"F008", "R2-D2", 21.99, "Astromech droid with light-up dome and retractable third leg."},
	{"F009", "C-3PO", 21.99, "Golden protocol droid fluent in over six million forms of communication."},
	{"F010", "Boba Fett", 34.99, "Mandalorian bounty hunter in battered armor with jetpack."},
	{"F011", "Stormtrooper", 17.99, "Imperial infantry soldier in white armor with E-11 blaster."},
	{"F012", "Emperor Palpatine", 29.99, "Hooded Sith Lord in black robes crackling with Force lightning."},
	{"F013", "Lando Calrissian", 24.99, "Smooth administrator of Cloud City with a blue cape."},
	{"F014", "Jabba the Hutt", 44.99, "Massive crime lord lounging on his throne dais."},
	{"F015", "Admiral Ackbar", 22.99, "Mon Calamari fleet commander in Rebel uniform."},
	{"F016", "Wicket the Ewok", 16.99, "Curious Ewok scout with spear and orange hood."},
	{"F017", "Qui-Gon Jinn", 26.99, "Tall Jedi Master with long hair and green lightsaber."},
	{"F018", "Darth Maul", 32.99, "Zabrak Sith apprentice with a double-bladed red lightsaber."},
	{"F019", "Clone Trooper", 18.99, "Republic clone soldier in phase II armor awaiting orders."},
	{"F020", "Padmé Amidala", 26.99, "Queen of Naboo in elaborate royal headdress."},
}

var customers = []customer{
	{"C001", "Luke Johnson"},
	{"C002", "Leia Parker"},
	{"C003", "Han Richards"},
	{"C004", "Ben Smith"},
	{"C005", "Yoda Masterson"},
	{"C006", "Rey Fisher"},
	{"C007", "Anakin Skywalker"},
	{"C008", "Padmé Amidala"},
	{"C009", "Lando Calrissian"},
	{"C010", "Obi Wan"},
}

// orderLines assigns figurines to the orders 60..69. Order 66 holds a
// single clone trooper.
var orderLines = [][]string{
	{"F001", "F008", "F009"},
	{"F003", "F004"},
	{"F004", "F005", "F010"},
	{"F007", "F006"},
	{"F006"},
	{"F011", "F002", "F012", "F014"},
	{"F019"},
	{"F020", "F017", "F018"},
	{"F013", "F015", "F016"},
	{"F007", "F017"},
}

const firstOrderNumber = 60

const schema = `
CREATE TABLE IF NOT EXISTS figurines (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL,
	price       REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS orders (
	id            INTEGER PRIMARY KEY,
	customer_id   TEXT NOT NULL,
	customer_name TEXT NOT NULL,
	total_cost    REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS order_figurines (
	order_id    INTEGER NOT NULL REFERENCES orders(id),
	figurine_id TEXT NOT NULL REFERENCES figurines(id),
	PRIMARY KEY (order_id, figurine_id)
);
CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_name);
`

// Migrate creates the purchase schema if it does not exist.
func (t *Tool) Migrate(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("purchases: migrate: %w", err)
	}
	return nil
}

// Seed creates the schema and loads the sample figurine catalog and the ten
// sample customer orders. Existing rows are left untouched.
func (t *Tool) Seed(ctx context.Context) error {
	if err := t.Migrate(ctx); err != nil {
		return err
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("purchases: begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	prices := make(map[string]float64, len(figurines))
	for _, f := range figurines {
		prices[f.ID] = f.Price
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO figurines (id, name, description, price) VALUES (?, ?, ?, ?)`,
			f.ID, f.Name, f.Description, f.Price); err != nil {
			return fmt.Errorf("purchases: seed figurine %s: %w", f.ID, err)
		}
	}

	for i, c := range customers {
		orderID := firstOrderNumber + i
		var total float64
		for _, id := range orderLines[i] {
			total += prices[id]
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO orders (id, customer_id, customer_name, total_cost) VALUES (?, ?, ?, ?)`,
			orderID, c.id, c.name, total); err != nil {
			return fmt.Errorf("purchases: seed order %d: %w", orderID, err)
		}
		for _, id := range orderLines[i] {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO order_figurines (order_id, figurine_id) VALUES (?, ?)`,
				orderID, id); err != nil {
				return fmt.Errorf("purchases: seed order line %d/%s: %w", orderID, id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("purchases: commit seed: %w", err)
	}
	t.logger.Info("purchases.seeded", "figurines", len(figurines), "orders", len(customers))
	return nil
}
