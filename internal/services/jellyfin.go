// Jellyfin API implementation of the remote library
//
// Endpoint shapes follow https://api.jellyfin.org/
package services

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/curate/internal/models"
	"github.com/desertthunder/curate/internal/session"
	"github.com/desertthunder/curate/internal/shared"
)

const (
	jellyfinTimeout    = 60 * time.Second
	jellyfinMaxRetries = 3
	jellyfinRetryDelay = 500 * time.Millisecond
	clientVersion      = "1.0.0"
	defaultSearchLimit = 20
)

// JellyfinService talks to one Jellyfin server. It holds no session state: callers pass the
// [session.Session] to use on every call.
type JellyfinService struct {
	baseURL    string
	username   string
	password   string
	client     string
	device     string
	deviceID   string
	httpClient *http.Client
	logger     *log.Logger
}

// NewJellyfinService creates a client from the [jellyfin] configuration section.
func NewJellyfinService(cfg shared.JellyfinConfig, logger *log.Logger) (*JellyfinService, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("%w: jellyfin url", shared.ErrMissingConfig)
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("%w: jellyfin url %q", shared.ErrInvalidConfig, cfg.URL)
	}

	svc := &JellyfinService{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		client:     cmp.Or(strings.TrimSpace(cfg.Client), "curate"),
		device:     cmp.Or(strings.TrimSpace(cfg.Device), "CLI"),
		deviceID:   cmp.Or(strings.TrimSpace(cfg.DeviceID), "curate-"+shared.GenerateID()),
		httpClient: &http.Client{Timeout: jellyfinTimeout},
		logger:     shared.WithLogger(logger, "service", "jellyfin"),
	}
	return svc, nil
}

func (j *JellyfinService) Name() string {
	return "Jellyfin"
}

// BaseURL returns the server address without a trailing slash.
func (j *JellyfinService) BaseURL() string {
	return j.baseURL
}

// Authenticate exchanges the configured username and password for an access token.
func (j *JellyfinService) Authenticate(ctx context.Context) (*session.Credentials, error) {
	if j.username == "" {
		return nil, fmt.Errorf("%w: jellyfin username", shared.ErrMissingCredentials)
	}

	body := map[string]string{"Username": j.username, "Pw": j.password}
	data, err := j.doRequest(ctx, http.MethodPost, "/Users/AuthenticateByName", nil, body, "")
	if err != nil {
		return nil, err
	}

	var resp jellyfinAuthResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse auth response: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access token in response", shared.ErrAuthFailed)
	}

	return &session.Credentials{Token: resp.AccessToken, UserID: resp.User.ID}, nil
}

// Ping checks that the server answers its public info endpoint.
func (j *JellyfinService) Ping(ctx context.Context) error {
	_, err := j.doRequest(ctx, http.MethodGet, "/System/Info/Public", nil, nil, "")
	return err
}

// Search returns audio items matching query.
func (j *JellyfinService) Search(ctx context.Context, s session.Session, query string, limit int) ([]models.LibraryTrack, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	q := url.Values{}
	q.Set("searchTerm", query)
	q.Set("IncludeItemTypes", models.ItemTypeAudio)
	q.Set("Recursive", "true")
	q.Set("Fields", "AlbumArtist,Album")
	q.Set("Limit", strconv.Itoa(limit))

	var resp jellyfinItemsResponse
	if err := j.getJSON(ctx, s, fmt.Sprintf("/Users/%s/Items", s.UserID), q, &resp); err != nil {
		return nil, err
	}
	return mapTracks(resp.Items), nil
}

// CreatePlaylist creates an empty audio playlist owned by the session user.
func (j *JellyfinService) CreatePlaylist(ctx context.Context, s session.Session, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: playlist name", shared.ErrMissingArgument)
	}

	body := jellyfinCreatePlaylistRequest{Name: name, UserID: s.UserID, MediaType: models.ItemTypeAudio}
	data, err := j.doRequest(ctx, http.MethodPost, "/Playlists", nil, body, s.Token)
	if err != nil {
		return "", err
	}

	var resp jellyfinCreatePlaylistResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("failed to parse playlist response: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%w: playlist created without id", shared.ErrAPIRequest)
	}
	return resp.ID, nil
}

// AddToPlaylist appends items to a playlist. An empty list is a no-op.
func (j *JellyfinService) AddToPlaylist(ctx context.Context, s session.Session, playlistID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}

	q := url.Values{}
	q.Set("Ids", strings.Join(trackIDs, ","))
	q.Set("UserId", s.UserID)

	_, err := j.doRequest(ctx, http.MethodPost, fmt.Sprintf("/Playlists/%s/Items", playlistID), q, nil, s.Token)
	return err
}

// DeletePlaylist deletes the playlist item.
func (j *JellyfinService) DeletePlaylist(ctx context.Context, s session.Session, playlistID string) error {
	_, err := j.doRequest(ctx, http.MethodDelete, "/Items/"+playlistID, nil, nil, s.Token)
	return err
}

// Playlists lists the session user's playlists.
func (j *JellyfinService) Playlists(ctx context.Context, s session.Session) ([]models.Playlist, error) {
	q := url.Values{}
	q.Set("IncludeItemTypes", "Playlist")
	q.Set("Recursive", "true")
	q.Set("Fields", "ChildCount")
	q.Set("SortBy", "SortName")

	var resp jellyfinItemsResponse
	if err := j.getJSON(ctx, s, fmt.Sprintf("/Users/%s/Items", s.UserID), q, &resp); err != nil {
		return nil, err
	}

	playlists := make([]models.Playlist, 0, len(resp.Items))
	for _, it := range resp.Items {
		playlists = append(playlists, models.Playlist{ID: it.ID, Name: it.Name, TrackCount: it.ChildCount})
	}
	return playlists, nil
}

// PlaylistItems returns the tracks of a playlist in playlist order.
func (j *JellyfinService) PlaylistItems(ctx context.Context, s session.Session, playlistID string) ([]models.LibraryTrack, error) {
	q := url.Values{}
	q.Set("UserId", s.UserID)

	var resp jellyfinItemsResponse
	if err := j.getJSON(ctx, s, fmt.Sprintf("/Playlists/%s/Items", playlistID), q, &resp); err != nil {
		return nil, err
	}
	return mapTracks(resp.Items), nil
}

// ListCollections returns the server's virtual folders.
func (j *JellyfinService) ListCollections(ctx context.Context, s session.Session) ([]models.Collection, error) {
	var folders []jellyfinVirtualFolder
	if err := j.getJSON(ctx, s, "/Library/VirtualFolders", nil, &folders); err != nil {
		return nil, err
	}

	collections := make([]models.Collection, 0, len(folders))
	for _, f := range folders {
		collections = append(collections, models.Collection{ID: f.ItemID, Name: f.Name, ContentType: f.CollectionType})
	}
	return collections, nil
}

// TriggerScan queues a recursive metadata refresh of one collection. The server answers before the
// refresh runs.
func (j *JellyfinService) TriggerScan(ctx context.Context, s session.Session, collectionID string) error {
	q := url.Values{}
	q.Set("Recursive", "true")
	q.Set("MetadataRefreshMode", "Default")
	q.Set("ImageRefreshMode", "Default")
	q.Set("ReplaceAllMetadata", "false")
	q.Set("ReplaceAllImages", "false")

	_, err := j.doRequest(ctx, http.MethodPost, fmt.Sprintf("/Items/%s/Refresh", collectionID), q, nil, s.Token)
	return err
}

// ListActiveTasks returns the visible scheduled tasks.
func (j *JellyfinService) ListActiveTasks(ctx context.Context, s session.Session) ([]models.ScanTask, error) {
	q := url.Values{}
	q.Set("isHidden", "false")

	var raw []jellyfinTask
	if err := j.getJSON(ctx, s, "/ScheduledTasks", q, &raw); err != nil {
		return nil, err
	}

	tasks := make([]models.ScanTask, 0, len(raw))
	for _, t := range raw {
		tasks = append(tasks, mapTask(t))
	}
	return tasks, nil
}

func (j *JellyfinService) getJSON(ctx context.Context, s session.Session, path string, q url.Values, out any) error {
	data, err := j.doRequest(ctx, http.MethodGet, path, q, nil, s.Token)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", path, err)
	}
	return nil
}

// doRequest performs an HTTP request against the server.
//
// Idempotent requests answered with 5xx are retried with exponential backoff. A transport failure is
// reported as [shared.ErrServerOffline] and any other non-2xx answer as [shared.StatusError].
func (j *JellyfinService) doRequest(ctx context.Context, method, path string, query url.Values, body any, token string) ([]byte, error) {
	reqURL := j.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	retries := 0
	if method == http.MethodGet || method == http.MethodDelete {
		retries = jellyfinMaxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := jellyfinRetryDelay * time.Duration(1<<(attempt-1))
			j.logger.Debug("retrying request", "attempt", attempt, "delay", delay, "path", path)
			if !shared.Sleep(ctx.Done(), delay) {
				return nil, ctx.Err()
			}
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Emby-Authorization", j.authHeader(token))
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		j.logger.Debug("jellyfin request", "method", method, "path", path, "attempt", attempt)

		resp, err := j.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			j.logger.Error("jellyfin request failed", "path", path, "error", err)
			return nil, fmt.Errorf("%w: %w", shared.ErrServerOffline, err)
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}

		lastErr = &shared.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		if resp.StatusCode < 500 {
			return nil, lastErr
		}

		j.logger.Warn("jellyfin server error",
			"status", resp.StatusCode,
			"attempt", attempt,
			"max_retries", retries,
			"path", path,
		)
	}

	return nil, lastErr
}

// authHeader builds the X-Emby-Authorization header value.
func (j *JellyfinService) authHeader(token string) string {
	parts := []string{
		fmt.Sprintf(`MediaBrowser Client=%q`, j.client),
		fmt.Sprintf(`Device=%q`, j.device),
		fmt.Sprintf(`DeviceId=%q`, j.deviceID),
		fmt.Sprintf(`Version=%q`, clientVersion),
	}
	if token != "" {
		parts = append(parts, fmt.Sprintf(`Token=%q`, token))
	}
	return strings.Join(parts, ", ")
}
