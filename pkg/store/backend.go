package store

import "context"

// Backend is the primitive contract every physical store implementation
// must satisfy. Every call accepts a token that is opaque to the core;
// backends do not inspect it, and the configured TokenMode is applied only
// by Store.ResolveToken.
type Backend interface {
	// DeleteSubjects removes every attribute cell under each listed subject.
	DeleteSubjects(ctx context.Context, token string, subjects []string, sync bool) error

	// MultiSet writes cells to a single subject per in.
	MultiSet(ctx context.Context, token, subject string, in MultiSetInput) error

	// DeleteAttributes removes cells for the listed attributes whose
	// timestamp falls in [start, end]. A zero end means open-ended.
	DeleteAttributes(ctx context.Context, token, subject string, attrs []string, start, end int64, sync bool) error

	// Resolve returns the newest cell for a single attribute, or ok=false if
	// none exists.
	Resolve(ctx context.Context, token, subject, attribute string) (cell Cell, ok bool, err error)

	// ResolveMulti returns cells for any of the listed attributes on a single
	// subject. Order across attributes is unspecified; order within one
	// attribute is newest-first.
	ResolveMulti(ctx context.Context, token, subject string, attrs []string, spec TimestampSpec, limit int) ([]Cell, error)

	// ResolvePrefix returns cells whose attribute name starts with prefix, on
	// a single subject.
	ResolvePrefix(ctx context.Context, token, subject, prefix string, spec TimestampSpec, limit int) ([]Cell, error)

	// MultiResolvePrefix is ResolvePrefix fanned out over many subjects.
	MultiResolvePrefix(ctx context.Context, token string, subjects []string, prefix string, spec TimestampSpec, limit int) (map[string][]Cell, error)

	// ScanAttributes walks subjects lexicographically starting
	// strictly after afterURN, all of which must start with
	// subjectPrefix+"/", reading only the newest cell per requested
	// attribute. maxRecords <= 0 means unbounded. The walk is not lazy:
	// every matching row is collected and returned in one slice.
	ScanAttributes(ctx context.Context, token, subjectPrefix string, attrs []string, afterURN string, maxRecords int, relaxedOrder bool) ([]ScanRow, error)

	// Flush makes all previously non-sync writes durable before returning.
	Flush(ctx context.Context, token string) error

	// Size returns total stored bytes, or -1 if the backend cannot estimate.
	Size(ctx context.Context, token string) (int64, error)
}
