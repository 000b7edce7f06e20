// Package source resolves user queries into playable tracks.
package source

import (
	"context"

	"github.com/tkmsd/groovebox/internal/domain/track"
)

// Resolver turns a user query (URL, URI, or free text) into tracks ready
// to enqueue.
type Resolver interface {
	// Resolve returns the tracks a play request expands to. A track link
	// yields one track, a playlist link yields every track in it, free
	// text yields the top search hit.
	Resolve(ctx context.Context, query string) ([]track.Track, error)

	// Search returns up to limit candidate tracks for the query.
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
}
