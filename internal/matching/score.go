package matching

import (
	"strings"

	"github.com/desertthunder/curate/internal/models"
)

// MinScore is the lowest [Score] [BestMatch] accepts.
const MinScore = 5

const (
	strictThreshold  = 0.8
	relaxedThreshold = 0.6
	bonusThreshold   = 0.5

	titleStrictWeight   = 10
	titleRelaxedWeight  = 5
	artistStrictWeight  = 8
	artistRelaxedWeight = 4
	albumWeight         = 3
	comboBonus          = 5
)

// Score rates how well candidate matches suggestion. Higher is better.
func Score(suggestion models.SongSuggestion, candidate models.LibraryTrack) int {
	score := tiered(suggestion.Title, candidate.Name, titleStrictWeight, titleRelaxedWeight)

	if candidate.AlbumArtist != "" {
		score += tiered(suggestion.Artist, candidate.AlbumArtist, artistStrictWeight, artistRelaxedWeight)
	}

	if suggestion.Album != "" && candidate.Album != "" && IsSimilar(suggestion.Album, candidate.Album, strictThreshold) {
		score += albumWeight
	}

	titleSim := Similarity(Normalize(suggestion.Title), Normalize(candidate.Name))
	artistSim := Similarity(Normalize(suggestion.Artist), Normalize(candidate.AlbumArtist))
	if titleSim > bonusThreshold && artistSim > bonusThreshold {
		score += comboBonus
	}

	return score
}

func tiered(want, got string, strict, relaxed int) int {
	switch {
	case IsSimilar(want, got, strictThreshold):
		return strict
	case IsSimilar(want, got, relaxedThreshold):
		return relaxed
	default:
		return 0
	}
}

// BestMatch scores every matchable candidate and keeps the first one with the highest score.
// Track is nil unless that score reaches [MinScore].
func BestMatch(suggestion models.SongSuggestion, candidates []models.LibraryTrack) models.MatchResult {
	result := models.MatchResult{Suggestion: suggestion}

	best := -1
	for i := range candidates {
		if !candidates[i].Matchable() {
			continue
		}
		if s := Score(suggestion, candidates[i]); s > best {
			best = s
			result.Track = &candidates[i]
		}
	}

	if best < MinScore {
		result.Track = nil
		result.Score = max(best, 0)
		return result
	}

	track := *result.Track
	result.Track = &track
	result.Score = best
	return result
}

// BuildQueries returns the ordered, de-duplicated search terms tried for a suggestion.
func BuildQueries(suggestion models.SongSuggestion) []string {
	title := collapse(suggestion.Title)
	artist := collapse(suggestion.Artist)
	album := collapse(suggestion.Album)

	primary := join(title, artist)
	candidates := []string{primary, title, artist}
	if album != "" {
		candidates = append(candidates, join(title, album))
	}
	if stripped := StripStopWords(primary); stripped != primary {
		candidates = append(candidates, stripped)
	}

	seen := make(map[string]struct{}, len(candidates))
	queries := make([]string, 0, len(candidates))
	for _, q := range candidates {
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		queries = append(queries, q)
	}
	return queries
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func join(a, b string) string {
	return strings.TrimSpace(a + " " + b)
}
