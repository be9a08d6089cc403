// Package artifact stores and publishes run outputs.
//
// A Store keeps named binary artifacts. InMemoryStore suits tests and
// single‑process prototypes; FileStore writes into a directory (the
// storyteller's output folder). Publisher turns a terminal core.Result into
// artifacts: it downloads the auxiliary asset (the generated image) and
// writes a markdown document linking it.
package artifact
