package source

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/tkmsd/groovebox/internal/domain/track"
)

// Errors
var (
	ErrNoMatch = errors.New("no tracks matched the query")
)

// SpotifyConfig represents Spotify resolver configuration.
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
}

// SpotifyResolver resolves queries against the Spotify catalog.
type SpotifyResolver struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

var _ Resolver = (*SpotifyResolver)(nil)

// NewSpotify creates a Spotify-backed resolver. The refresh token is
// exchanged automatically by the oauth2 client.
func NewSpotify(ctx context.Context, cfg SpotifyConfig) (*SpotifyResolver, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
	)
	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}
	client := spotify.New(auth.Client(ctx, token))

	market := cfg.Market
	if market == "" {
		market = "US"
	}

	return &SpotifyResolver{
		client:     client,
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// Resolve expands a query into tracks. Track and playlist links are
// fetched directly, anything else goes through search.
func (r *SpotifyResolver) Resolve(ctx context.Context, query string) ([]track.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query is required")
	}

	if id, ok := extractID(query, "track"); ok {
		t, err := r.getTrack(ctx, id)
		if err != nil {
			return nil, err
		}
		return []track.Track{*t}, nil
	}
	if id, ok := extractID(query, "playlist"); ok {
		return r.getPlaylistTracks(ctx, id)
	}

	hits, err := r.Search(ctx, query, 1)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, errors.Wrapf(ErrNoMatch, "%q", query)
	}
	return hits[:1], nil
}

// Search searches the catalog for tracks.
func (r *SpotifyResolver) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if query == "" {
		return nil, errors.New("search query is required")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	var result *spotify.SearchResult
	err := r.retry(func() error {
		res, err := r.client.Search(ctx, query, spotify.SearchTypeTrack,
			spotify.Limit(limit), spotify.Market(r.market))
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}

	tracks := make([]track.Track, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		tracks = append(tracks, convertTrack(&result.Tracks.Tracks[i]))
	}
	return tracks, nil
}

func (r *SpotifyResolver) getTrack(ctx context.Context, id string) (*track.Track, error) {
	var result *spotify.FullTrack
	err := r.retry(func() error {
		t, err := r.client.GetTrack(ctx, spotify.ID(id), spotify.Market(r.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get track")
	}
	converted := convertTrack(result)
	return &converted, nil
}

func (r *SpotifyResolver) getPlaylistTracks(ctx context.Context, id string) ([]track.Track, error) {
	var tracks []track.Track
	offset := 0
	const limit = 100

	for {
		var page *spotify.PlaylistItemPage
		err := r.retry(func() error {
			p, err := r.client.GetPlaylistItems(ctx, spotify.ID(id),
				spotify.Limit(limit),
				spotify.Offset(offset),
				spotify.Market(r.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get playlist items")
		}

		for _, item := range page.Items {
			// Episodes have no track payload.
			if item.Track.Track != nil && item.Track.Track.ID != "" {
				tracks = append(tracks, convertTrack(item.Track.Track))
			}
		}

		if len(page.Items) < limit {
			break
		}
		offset += limit
	}

	if len(tracks) == 0 {
		return nil, errors.Wrapf(ErrNoMatch, "playlist %v is empty", id)
	}
	return tracks, nil
}

func convertTrack(t *spotify.FullTrack) track.Track {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	var thumbnail string
	if len(t.Album.Images) > 0 {
		thumbnail = t.Album.Images[0].URL
	}

	title := t.Name
	if len(artists) > 0 {
		title = strings.Join(artists, ", ") + " - " + t.Name
	}

	return track.Track{
		ID:           string(t.ID),
		Title:        title,
		URI:          "https://open.spotify.com/track/" + string(t.ID),
		Duration:     t.TimeDuration(),
		ThumbnailURL: thumbnail,
	}
}

func (r *SpotifyResolver) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < r.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
		if i < r.maxRetries-1 {
			time.Sleep(r.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractID pulls the resource id out of a Spotify URI or open.spotify.com
// link of the given kind. Plain free text does not match.
func extractID(input, kind string) (string, bool) {
	if strings.HasPrefix(input, "spotify:"+kind+":") {
		return strings.TrimPrefix(input, "spotify:"+kind+":"), true
	}
	marker := "/" + kind + "/"
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, marker) {
		parts := strings.Split(input, marker)
		id := strings.Split(parts[len(parts)-1], "?")[0]
		id = strings.TrimRight(id, "/")
		if id != "" {
			return id, true
		}
	}
	return "", false
}
