// Package flow tracks flow requests and their responses: requests and a
// completion index live on a per-session state subject, responses live on
// a per-request subject, per SPEC_FULL.md §4.7.
package flow
