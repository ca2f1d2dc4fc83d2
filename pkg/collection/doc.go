// Package collection implements append-only sequential collections: records
// written under <base>/<subpath>/<16-hex-ts>.<6-hex-suffix>, a parallel
// per-base index, and a stored-type tag set.
package collection
