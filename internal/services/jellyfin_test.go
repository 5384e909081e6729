package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/desertthunder/curate/internal/session"
	"github.com/desertthunder/curate/internal/shared"
)

func newTestJellyfin(t *testing.T, handler http.Handler) *JellyfinService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := NewJellyfinService(shared.JellyfinConfig{
		URL:      srv.URL + "/",
		Username: "curate",
		Password: "secret",
		DeviceID: "test-device",
	}, shared.NewLogger(io.Discard))
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return svc
}

var testSession = session.Session{Token: "tok-1", UserID: "user-1"}

func requireToken(t *testing.T, r *http.Request, token string) {
	t.Helper()
	if h := r.Header.Get("X-Emby-Authorization"); !strings.Contains(h, `Token="`+token+`"`) {
		t.Errorf("expected token %s in auth header, got %q", token, h)
	}
}

func TestJellyfinService(t *testing.T) {
	t.Run("NewJellyfinService", func(t *testing.T) {
		t.Run("Missing URL", func(t *testing.T) {
			_, err := NewJellyfinService(shared.JellyfinConfig{}, nil)
			if !errors.Is(err, shared.ErrMissingConfig) {
				t.Errorf("expected ErrMissingConfig, got %v", err)
			}
		})

		t.Run("Invalid URL", func(t *testing.T) {
			_, err := NewJellyfinService(shared.JellyfinConfig{URL: "not a url"}, nil)
			if !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})

		t.Run("Trims Trailing Slash", func(t *testing.T) {
			svc, err := NewJellyfinService(shared.JellyfinConfig{URL: "http://media.local:8096/"}, nil)
			if err != nil {
				t.Fatal(err)
			}
			if svc.BaseURL() != "http://media.local:8096" {
				t.Errorf("unexpected base url %s", svc.BaseURL())
			}
		})
	})

	t.Run("Authenticate", func(t *testing.T) {
		t.Run("Success", func(t *testing.T) {
			svc := newTestJellyfin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/Users/AuthenticateByName" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				h := r.Header.Get("X-Emby-Authorization")
				if !strings.Contains(h, `DeviceId="test-device"`) || strings.Contains(h, "Token=") {
					t.Errorf("unexpected auth header %q", h)
				}

				var body map[string]string
				json.NewDecoder(r.Body).Decode(&body)
				if body["Username"] != "curate" || body["Pw"] != "secret" {
					t.Errorf("unexpected body %v", body)
				}

				w.Write([]byte(`{"AccessToken":"abc","User":{"Id":"u1","Name":"curate"}}`))
			}))

			creds, err := svc.Authenticate(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if creds.Token != "abc" || creds.UserID != "u1" {
				t.Errorf("unexpected credentials %+v", creds)
			}
		})

		t.Run("Bad Password", func(t *testing.T) {
			svc := newTestJellyfin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "Invalid username or password", http.StatusUnauthorized)
			}))

			_, err := svc.Authenticate(context.Background())
			var status *shared.StatusError
			if !errors.As(err, &status) || status.StatusCode != http.StatusUnauthorized {
				t.Errorf("expected 401 StatusError, got %v", err)
			}
			if !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed, got %v", err)
			}
		})

		t.Run("Missing Username", func(t *testing.T) {
			svc, _ := NewJellyfinService(shared.JellyfinConfig{URL: "http://localhost:8096"}, nil)
			if _, err := svc.Authenticate(context.Background()); !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})
	})

	t.Run("Search", func(t *testing.T) {
		svc := newTestJellyfin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requireToken(t, r, "tok-1")
			if r.URL.Path != "/Users/user-1/Items" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			q := r.URL.Query()
			if q.Get("searchTerm") != "Heroes David Bowie" || q.Get("IncludeItemTypes") != "Audio" ||
				q.Get("Recursive") != "true" || q.Get("Limit") != "5" {
				t.Errorf("unexpected query %v", q)
			}

			w.Write([]byte(`{"Items":[
				{"Id":"t1","Name":"Heroes","Type":"Audio","AlbumArtist":"David Bowie","Album":"Heroes","RunTimeTicks":3660000000,"ImageTags":{"Primary":"img"}},
				{"Id":"t2","Name":"Heroes","Type":"Audio","Artists":["Peter Gabriel"]}
			],"TotalRecordCount":2}`))
		}))

		tracks, err := svc.Search(context.Background(), testSession, "Heroes David Bowie", 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %d", len(tracks))
		}
		if tracks[0].AlbumArtist != "David Bowie" || tracks[0].DurationSeconds != 366 || tracks[0].ImageRef != "img" {
			t.Errorf("unexpected mapping %+v", tracks[0])
		}
		if tracks[1].AlbumArtist != "Peter Gabriel" {
			t.Errorf("expected artist fallback, got %+v", tracks[1])
		}
	})

	t.Run("CreatePlaylist", func(t *testing.T) {
		svc := newTestJellyfin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requireToken(t, r, "tok-1")
			var body jellyfinCreatePlaylistRequest
			json.NewDecoder(r.Body).Decode(&body)
			if body.Name != "Mix" || body.UserID != "user-1" || body.MediaType != "Audio" {
				t.Errorf("unexpected body %+v", body)
			}
			w.Write([]byte(`{"Id":"pl-1"}`))
		}))

		id, err := svc.CreatePlaylist(context.Background(), testSession, "Mix")
		if err != nil || id != "pl-1" {
			t.Errorf("expected pl-1, got %q, %v", id, err)
		}

		if _, err := svc.CreatePlaylist(context.Background(), testSession, " "); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("AddToPlaylist", func(t *testing.T) {
		var calls atomic.Int32
		svc := newTestJellyfin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			if r.Method != http.MethodPost || r.URL.Path != "/Playlists/pl-1/Items" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			if ids := r.URL.Query().Get("Ids"); ids != "a,b" {
				t.Errorf("unexpected ids %q", ids)
			}
			w.WriteHeader(http.StatusNoContent)
		}))

		if err := svc.AddToPlaylist(context.Background(), testSession, "pl-1", []string{"a", "b"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := svc.AddToPlaylist(context.Background(), testSession, "pl-1", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("expected empty add to skip the request, got %d calls", calls.Load())
		}
	})

	t.Run("DeletePlaylist", func(t *testing.T) {
		svc := newTestJellyfin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodDelete || r.URL.Path != "/Items/pl-1" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			w.WriteHeader(http.StatusNoContent)
		}))

		if err := svc.DeletePlaylist(context.Background(), testSession, "pl-1"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Playlists", func(t *testing.T) {
		svc := newTestJellyfin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("IncludeItemTypes") != "Playlist" {
				t.Errorf("unexpected query %v", r.URL.Query())
			}
			w.Write([]byte(`{"Items":[{"Id":"pl-1","Name":"Mix","Type":"Playlist","ChildCount":12}]}`))
		}))

		playlists, err := svc.Playlists(context.Background(), testSession)
		if err != nil {
			t.Fatal(err)
		}
		if len(playlists) != 1 || playlists[0].TrackCount != 12 {
			t.Errorf("unexpected playlists %+v", playlists)
		}
	})

	t.Run("ListCollections", func(t *testing.T) {
		svc := newTestJellyfin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/Library/VirtualFolders" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			w.Write([]byte(`[
				{"Name":"Movies","ItemId":"m1","CollectionType":"movies"},
				{"Name":"Music","ItemId":"a1","CollectionType":"music"}
			]`))
		}))

		collections, err := svc.ListCollections(context.Background(), testSession)
		if err != nil {
			t.Fatal(err)
		}
		if len(collections) != 2 || collections[1].ID != "a1" || collections[1].ContentType != "music" {
			t.Errorf("unexpected collections %+v", collections)
		}
	})

	t.Run("TriggerScan", func(t *testing.T) {
		svc := newTestJellyfin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/Items/a1/Refresh" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			if r.URL.Query().Get("Recursive") != "true" {
				t.Errorf("expected recursive refresh")
			}
			w.WriteHeader(http.StatusNoContent)
		}))

		if err := svc.TriggerScan(context.Background(), testSession, "a1"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("ListActiveTasks", func(t *testing.T) {
		svc := newTestJellyfin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/ScheduledTasks" || r.URL.Query().Get("isHidden") != "false" {
				t.Errorf("unexpected request %s", r.URL)
			}
			w.Write([]byte(`[
				{"Id":"1","Name":"Scan Media Library","Key":"RefreshLibrary","State":"Running","CurrentProgressPercentage":42.5},
				{"Id":"2","Name":"Clean Cache","Key":"DeleteCacheFiles","State":"Idle","LastExecutionResult":{"Status":"Failed","ErrorMessage":"disk"}}
			]`))
		}))

		tasks, err := svc.ListActiveTasks(context.Background(), testSession)
		if err != nil {
			t.Fatal(err)
		}
		if len(tasks) != 2 {
			t.Fatalf("expected 2 tasks, got %d", len(tasks))
		}
		if !tasks[0].Active() || tasks[0].ProgressPercent == nil || *tasks[0].ProgressPercent != 42.5 {
			t.Errorf("unexpected running task %+v", tasks[0])
		}
		if tasks[1].Active() || tasks[1].StatusMessage != "Failed: disk" {
			t.Errorf("unexpected idle task %+v", tasks[1])
		}
	})

	t.Run("doRequest", func(t *testing.T) {
		t.Run("Retries Server Errors On Reads", func(t *testing.T) {
			var calls atomic.Int32
			svc := newTestJellyfin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					http.Error(w, "busy", http.StatusServiceUnavailable)
					return
				}
				w.Write([]byte(`[]`))
			}))

			if _, err := svc.ListCollections(context.Background(), testSession); err != nil {
				t.Fatalf("expected retry to succeed, got %v", err)
			}
			if calls.Load() != 2 {
				t.Errorf("expected 2 calls, got %d", calls.Load())
			}
		})

		t.Run("Does Not Retry Writes", func(t *testing.T) {
			var calls atomic.Int32
			svc := newTestJellyfin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				http.Error(w, "boom", http.StatusInternalServerError)
			}))

			err := svc.AddToPlaylist(context.Background(), testSession, "pl", []string{"a"})
			var status *shared.StatusError
			if !errors.As(err, &status) || status.StatusCode != 500 {
				t.Errorf("expected 500 StatusError, got %v", err)
			}
			if calls.Load() != 1 {
				t.Errorf("expected a single call, got %d", calls.Load())
			}
		})

		t.Run("Client Errors Are Not Retried", func(t *testing.T) {
			var calls atomic.Int32
			svc := newTestJellyfin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(http.StatusForbidden)
			}))

			_, err := svc.Search(context.Background(), testSession, "x", 1)
			if !session.IsAuthError(err) {
				t.Errorf("expected auth error, got %v", err)
			}
			if calls.Load() != 1 {
				t.Errorf("expected 1 call, got %d", calls.Load())
			}
		})

		t.Run("Offline Server", func(t *testing.T) {
			svc, _ := NewJellyfinService(shared.JellyfinConfig{URL: "http://127.0.0.1:1"}, shared.NewLogger(io.Discard))
			_, err := svc.ListCollections(context.Background(), testSession)
			if !errors.Is(err, shared.ErrServerOffline) {
				t.Errorf("expected ErrServerOffline, got %v", err)
			}
		})
	})
}

func TestGuardedLibrary(t *testing.T) {
	t.Run("Reauthenticates Once On 401", func(t *testing.T) {
		var logins, searches atomic.Int32
		svc := newTestJellyfin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/Users/AuthenticateByName":
				n := logins.Add(1)
				json.NewEncoder(w).Encode(map[string]any{
					"AccessToken": map[int32]string{1: "stale", 2: "fresh"}[n],
					"User":        map[string]string{"Id": "u1"},
				})
			case "/Users/u1/Items":
				searches.Add(1)
				if !strings.Contains(r.Header.Get("X-Emby-Authorization"), `Token="fresh"`) {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				w.Write([]byte(`{"Items":[{"Id":"t1","Name":"Heroes","Type":"Audio"}]}`))
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		}))

		guard := session.NewGuard(svc, session.Options{Logger: shared.NewLogger(io.Discard)})
		lib := NewGuardedLibrary(svc, guard)

		tracks, err := lib.Search(context.Background(), "Heroes", 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(tracks) != 1 {
			t.Errorf("expected 1 track, got %d", len(tracks))
		}
		if logins.Load() != 2 || searches.Load() != 2 {
			t.Errorf("expected 2 logins and 2 searches, got %d and %d", logins.Load(), searches.Load())
		}
		if lib.Guard().Refreshes() != 2 {
			t.Errorf("expected 2 refreshes, got %d", lib.Guard().Refreshes())
		}
	})

	t.Run("Persistent 401 Surfaces After One Retry", func(t *testing.T) {
		var searches atomic.Int32
		svc := newTestJellyfin(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/Users/AuthenticateByName" {
				w.Write([]byte(`{"AccessToken":"tok","User":{"Id":"u1"}}`))
				return
			}
			searches.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}))

		lib := NewGuardedLibrary(svc, session.NewGuard(svc, session.Options{Logger: shared.NewLogger(io.Discard)}))
		if _, err := lib.ListActiveTasks(context.Background()); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
		if searches.Load() != 2 {
			t.Errorf("expected exactly 2 attempts, got %d", searches.Load())
		}
	})
}
