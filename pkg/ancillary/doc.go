// Package ancillary implements the small fixed-shape index and time-series
// operators that ride on top of the core store: labels, file-hash and
// directory-child indexes, and per-process statistics, per SPEC_FULL.md
// §4.10.
package ancillary
