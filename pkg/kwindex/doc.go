// Package kwindex implements the keyword index: a keyword maps to a set of
// names via cells on a per-keyword subject, per SPEC_FULL.md §4.9.
package kwindex
