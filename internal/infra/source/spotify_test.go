package source

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zmb3/spotify/v2"
)

func TestExtractID(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		kind       string
		expected   string
		expectedOK bool
	}{
		{
			name:       "track URI format",
			input:      "spotify:track:4uLU6hMCjMI75M1A2tKUQC",
			kind:       "track",
			expected:   "4uLU6hMCjMI75M1A2tKUQC",
			expectedOK: true,
		},
		{
			name:       "track URL format",
			input:      "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC",
			kind:       "track",
			expected:   "4uLU6hMCjMI75M1A2tKUQC",
			expectedOK: true,
		},
		{
			name:       "track URL with query params",
			input:      "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=abc123",
			kind:       "track",
			expected:   "4uLU6hMCjMI75M1A2tKUQC",
			expectedOK: true,
		},
		{
			name:       "intl prefixed URL",
			input:      "https://open.spotify.com/intl-ja/track/4uLU6hMCjMI75M1A2tKUQC",
			kind:       "track",
			expected:   "4uLU6hMCjMI75M1A2tKUQC",
			expectedOK: true,
		},
		{
			name:       "playlist URL",
			input:      "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M?si=xyz",
			kind:       "playlist",
			expected:   "37i9dQZF1DXcBWIGoYBM5M",
			expectedOK: true,
		},
		{
			name:       "kind mismatch",
			input:      "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M",
			kind:       "track",
			expectedOK: false,
		},
		{
			name:       "free text does not match",
			input:      "never gonna give you up",
			kind:       "track",
			expectedOK: false,
		},
		{
			name:       "empty input",
			input:      "",
			kind:       "track",
			expectedOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := extractID(tt.input, tt.kind)
			assert.Equal(t, tt.expectedOK, ok)
			if tt.expectedOK {
				assert.Equal(t, tt.expected, id)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "rate limit",
			err:      errors.New("Error 429: rate limit exceeded"),
			expected: true,
		},
		{
			name:     "server error",
			err:      errors.New("503 service unavailable"),
			expected: true,
		},
		{
			name:     "not found is permanent",
			err:      errors.New("404 not found"),
			expected: false,
		},
		{
			name:     "bad request is permanent",
			err:      errors.New("invalid id"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryable(tt.err))
		})
	}
}

func TestConvertTrack(t *testing.T) {
	full := &spotify.FullTrack{
		SimpleTrack: spotify.SimpleTrack{
			ID:   "4uLU6hMCjMI75M1A2tKUQC",
			Name: "Never Gonna Give You Up",
			Artists: []spotify.SimpleArtist{
				{Name: "Rick Astley"},
			},
			Duration: 213573,
		},
		Album: spotify.SimpleAlbum{
			Name: "Whenever You Need Somebody",
			Images: []spotify.Image{
				{URL: "https://i.scdn.co/image/abc"},
			},
		},
	}

	got := convertTrack(full)
	assert.Equal(t, "4uLU6hMCjMI75M1A2tKUQC", got.ID)
	assert.Equal(t, "Rick Astley - Never Gonna Give You Up", got.Title)
	assert.Equal(t, "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC", got.URI)
	assert.Equal(t, 213573*time.Millisecond, got.Duration)
	assert.Equal(t, "https://i.scdn.co/image/abc", got.ThumbnailURL)
}

func TestNewSpotify_RequiresCredentials(t *testing.T) {
	_, err := NewSpotify(t.Context(), SpotifyConfig{})
	assert.Error(t, err)
}
