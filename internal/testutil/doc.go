// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing conversations, tool catalogs and
// handoff graphs driven by scripted models. They are not intended for
// production usage.
package testutil
