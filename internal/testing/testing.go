// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/curate/internal/models"
	"github.com/desertthunder/curate/internal/shared"
)

// MockLibrary is an in-memory media server catalog for command and pipeline tests.
//
// Search matches tracks whose name contains the query, case-insensitively.
type MockLibrary struct {
	mu          sync.Mutex
	Tracks      []models.LibraryTrack
	Collections []models.Collection
	Tasks       []models.ScanTask
	Lists       map[string][]string // playlist id to track ids
	Names       map[string]string   // playlist id to name
	Triggered   []string
	Deleted     []string
	Err         error // returned by every call when set
}

// NewMockLibrary creates a [MockLibrary] holding tracks and a single music collection.
func NewMockLibrary(tracks ...models.LibraryTrack) *MockLibrary {
	return &MockLibrary{
		Tracks:      tracks,
		Collections: []models.Collection{{ID: "c-music", Name: "Music", ContentType: "music"}},
		Lists:       map[string][]string{},
		Names:       map[string]string{},
	}
}

func (m *MockLibrary) Search(ctx context.Context, query string, limit int) ([]models.LibraryTrack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	var out []models.LibraryTrack
	q := strings.ToLower(query)
	for _, t := range m.Tracks {
		if strings.Contains(strings.ToLower(t.Name), q) || strings.Contains(q, strings.ToLower(t.Name)) {
			out = append(out, t)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockLibrary) CreatePlaylist(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}

	id := fmt.Sprintf("pl-%d", len(m.Names)+1)
	m.Names[id] = name
	m.Lists[id] = nil
	return id, nil
}

func (m *MockLibrary) AddToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.Names[playlistID]; !ok {
		return shared.ErrPlaylistNotFound
	}
	m.Lists[playlistID] = append(m.Lists[playlistID], trackIDs...)
	return nil
}

func (m *MockLibrary) DeletePlaylist(ctx context.Context, playlistID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.Names[playlistID]; !ok {
		return shared.ErrPlaylistNotFound
	}
	delete(m.Names, playlistID)
	delete(m.Lists, playlistID)
	m.Deleted = append(m.Deleted, playlistID)
	return nil
}

func (m *MockLibrary) ListCollections(ctx context.Context) ([]models.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Collections, m.Err
}

func (m *MockLibrary) TriggerScan(ctx context.Context, collectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Triggered = append(m.Triggered, collectionID)
	return nil
}

func (m *MockLibrary) ListActiveTasks(ctx context.Context) ([]models.ScanTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Tasks, m.Err
}

func (m *MockLibrary) Playlists(ctx context.Context) ([]models.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	out := make([]models.Playlist, 0, len(m.Names))
	for id, name := range m.Names {
		out = append(out, models.Playlist{ID: id, Name: name, TrackCount: len(m.Lists[id])})
	}
	return out, nil
}

func (m *MockLibrary) PlaylistItems(ctx context.Context, playlistID string) ([]models.LibraryTrack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	ids, ok := m.Lists[playlistID]
	if !ok {
		return nil, shared.ErrPlaylistNotFound
	}
	var out []models.LibraryTrack
	for _, id := range ids {
		for _, t := range m.Tracks {
			if t.ID == id {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

// MockSource returns the same suggestions for every seed.
type MockSource struct {
	Suggestions []models.SongSuggestion
	Err         error
}

func (s *MockSource) Suggest(ctx context.Context, seed, mode string, count int) ([]models.SongSuggestion, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Suggestions, nil
}

func (s *MockSource) Name() string { return "mock" }

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
