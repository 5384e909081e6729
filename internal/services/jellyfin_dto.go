package services

import (
	"github.com/desertthunder/curate/internal/models"
)

// ticksPerSecond converts Jellyfin RunTimeTicks (100ns units) to seconds.
const ticksPerSecond = 10_000_000

// jellyfinAuthResponse is the response from /Users/AuthenticateByName.
type jellyfinAuthResponse struct {
	User        jellyfinUser `json:"User"`
	AccessToken string       `json:"AccessToken"`
	ServerID    string       `json:"ServerId"`
}

type jellyfinUser struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

type jellyfinItemsResponse struct {
	Items            []jellyfinItem `json:"Items"`
	TotalRecordCount int            `json:"TotalRecordCount"`
	StartIndex       int            `json:"StartIndex"`
}

type jellyfinImageTags struct {
	Primary string `json:"Primary,omitempty"`
}

// jellyfinItem is the subset of BaseItemDto used for audio and playlist items.
type jellyfinItem struct {
	ID           string            `json:"Id"`
	Name         string            `json:"Name"`
	Type         string            `json:"Type"`
	AlbumArtist  string            `json:"AlbumArtist,omitempty"`
	Artists      []string          `json:"Artists,omitempty"`
	Album        string            `json:"Album,omitempty"`
	RunTimeTicks int64             `json:"RunTimeTicks,omitempty"`
	ChildCount   int               `json:"ChildCount,omitempty"`
	ImageTags    jellyfinImageTags `json:"ImageTags,omitempty"`
	PlaylistItem string            `json:"PlaylistItemId,omitempty"`
}

type jellyfinVirtualFolder struct {
	Name           string   `json:"Name"`
	ItemID         string   `json:"ItemId"`
	CollectionType string   `json:"CollectionType"`
	Locations      []string `json:"Locations"`
}

type jellyfinTask struct {
	ID                        string   `json:"Id"`
	Name                      string   `json:"Name"`
	Key                       string   `json:"Key"`
	State                     string   `json:"State"`
	Category                  string   `json:"Category"`
	CurrentProgressPercentage *float64 `json:"CurrentProgressPercentage,omitempty"`
	LastExecutionResult       *struct {
		Status       string `json:"Status"`
		ErrorMessage string `json:"ErrorMessage,omitempty"`
	} `json:"LastExecutionResult,omitempty"`
}

type jellyfinCreatePlaylistRequest struct {
	Name      string   `json:"Name"`
	UserID    string   `json:"UserId"`
	MediaType string   `json:"MediaType"`
	IDs       []string `json:"Ids,omitempty"`
}

type jellyfinCreatePlaylistResponse struct {
	ID string `json:"Id"`
}

func mapTrack(it jellyfinItem) models.LibraryTrack {
	artist := it.AlbumArtist
	if artist == "" && len(it.Artists) > 0 {
		artist = it.Artists[0]
	}
	return models.LibraryTrack{
		ID:              it.ID,
		Name:            it.Name,
		AlbumArtist:     artist,
		Album:           it.Album,
		DurationSeconds: int(it.RunTimeTicks / ticksPerSecond),
		ImageRef:        it.ImageTags.Primary,
		Type:            it.Type,
	}
}

func mapTracks(items []jellyfinItem) []models.LibraryTrack {
	tracks := make([]models.LibraryTrack, 0, len(items))
	for _, it := range items {
		tracks = append(tracks, mapTrack(it))
	}
	return tracks
}

func mapTask(t jellyfinTask) models.ScanTask {
	task := models.ScanTask{
		ID:              t.ID,
		Name:            t.Name,
		Key:             t.Key,
		State:           models.TaskState(t.State),
		ProgressPercent: t.CurrentProgressPercentage,
	}
	if r := t.LastExecutionResult; r != nil {
		task.StatusMessage = r.Status
		if r.ErrorMessage != "" {
			task.StatusMessage += ": " + r.ErrorMessage
		}
	}
	return task
}
