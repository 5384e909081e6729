// Spotify API implementation of [SuggestionSource]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/curate/internal/models"
	"github.com/desertthunder/curate/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
	spotifyPageSize = 100
)

// Spotify seed modes.
const (
	ModeOrdered = "ordered"
	ModeShuffle = "shuffle"
)

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Artists []SpotifyArtist `json:"artists"`
	Album   SpotifyAlbum    `json:"album"`
}

// SpotifyPlaylistTrack represents a track within a playlist context.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPaginatedPlaylistTracks is one page of /playlists/{id}/tracks.
type SpotifyPaginatedPlaylistTracks struct {
	Items  []SpotifyPlaylistTrack `json:"items"`
	Total  int                    `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
	Next   *string                `json:"next"`
}

// SpotifySuggester treats the tracks of a Spotify playlist as suggestions. It authenticates as an
// application with the client credentials flow, so only public playlists are readable.
type SpotifySuggester struct {
	baseURL    string
	httpClient *http.Client
	shuffle    func(n int, swap func(i, j int))
	logger     *log.Logger
}

// NewSpotifySuggester creates a suggester from the [credentials.spotify] configuration section.
func NewSpotifySuggester(cfg shared.SpotifyConfig, logger *log.Logger) (*SpotifySuggester, error) {
	return newSpotifySuggester(cfg, spotifyTokenURL, spotifyBaseURL, logger)
}

func newSpotifySuggester(cfg shared.SpotifyConfig, tokenURL, baseURL string, logger *log.Logger) (*SpotifySuggester, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: spotify client_id", shared.ErrMissingCredentials)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_secret", shared.ErrMissingCredentials)
	}

	conf := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	return &SpotifySuggester{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: conf.Client(context.Background()),
		shuffle:    rand.Shuffle,
		logger:     shared.WithLogger(logger, "service", "spotify"),
	}, nil
}

func (s *SpotifySuggester) Name() string {
	return "spotify"
}

// Suggest reads the playlist named by seed (an id, URI or open.spotify.com URL). Mode "shuffle"
// randomizes the order before the first count tracks are taken; any other mode keeps playlist order.
func (s *SpotifySuggester) Suggest(ctx context.Context, seed, mode string, count int) ([]models.SongSuggestion, error) {
	playlistID, err := ParseSpotifyPlaylistID(seed)
	if err != nil {
		return nil, err
	}

	var suggestions []models.SongSuggestion
	offset := 0
	for {
		page, err := s.playlistTracks(ctx, playlistID, offset)
		if err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.Track == nil || item.Track.Name == "" || len(item.Track.Artists) == 0 {
				continue
			}
			if item.Track.Type != "" && item.Track.Type != "track" {
				continue
			}
			suggestions = append(suggestions, models.SongSuggestion{
				Title:  item.Track.Name,
				Artist: item.Track.Artists[0].Name,
				Album:  item.Track.Album.Name,
				Reason: "from Spotify playlist " + playlistID,
			})
		}

		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += len(page.Items)
	}

	if mode == ModeShuffle {
		s.shuffle(len(suggestions), func(i, j int) { suggestions[i], suggestions[j] = suggestions[j], suggestions[i] })
	}
	if count > 0 && len(suggestions) > count {
		suggestions = suggestions[:count]
	}

	s.logger.Debug("read playlist seed", "playlist_id", playlistID, "mode", mode, "count", len(suggestions))
	return suggestions, nil
}

func (s *SpotifySuggester) playlistTracks(ctx context.Context, playlistID string, offset int) (*SpotifyPaginatedPlaylistTracks, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(spotifyPageSize))
	q.Set("offset", fmt.Sprint(offset))
	q.Set("fields", "items(track(id,name,type,artists(id,name),album(id,name))),total,limit,offset,next")

	endpoint := fmt.Sprintf("%s/playlists/%s/tracks?%s", s.baseURL, url.PathEscape(playlistID), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) {
			return nil, fmt.Errorf("%w: spotify token: %w", shared.ErrAuthFailed, err)
		}
		return nil, fmt.Errorf("%w: %w", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", shared.ErrServiceUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		status := &shared.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		return nil, fmt.Errorf("%w: %w", shared.ErrServiceUnavailable, status)
	}

	var page SpotifyPaginatedPlaylistTracks
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrMalformedSuggestions, err)
	}
	return &page, nil
}

// ParseSpotifyPlaylistID accepts a bare playlist id, a spotify:playlist: URI or an open.spotify.com URL.
func ParseSpotifyPlaylistID(seed string) (string, error) {
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return "", fmt.Errorf("%w: playlist seed", shared.ErrMissingArgument)
	}

	if rest, ok := strings.CutPrefix(seed, "spotify:playlist:"); ok {
		seed = rest
	} else if strings.Contains(seed, "://") {
		u, err := url.Parse(seed)
		if err != nil {
			return "", fmt.Errorf("%w: playlist url %q", shared.ErrInvalidArgument, seed)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) < 2 || parts[len(parts)-2] != "playlist" {
			return "", fmt.Errorf("%w: not a playlist url %q", shared.ErrInvalidArgument, seed)
		}
		seed = parts[len(parts)-1]
	}

	for _, r := range seed {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return "", fmt.Errorf("%w: playlist id %q", shared.ErrInvalidArgument, seed)
		}
	}
	return seed, nil
}
