package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/curate/internal/models"
	"github.com/desertthunder/curate/internal/shared"
)

// Suggestion modes understood by [LLMSuggester].
const (
	ModeSimilar  = "similar"
	ModeDiscover = "discover"
	ModeDeepCuts = "deep-cuts"
)

const llmDefaultTimeout = 90 * time.Second

var modePrompts = map[string]string{
	ModeSimilar:  "Suggest songs that sound closely related to the seed: same era, genre and mood.",
	ModeDiscover: "Suggest songs by different artists that fans of the seed would enjoy discovering.",
	ModeDeepCuts: "Suggest lesser-known album tracks and B-sides rather than the obvious hits.",
}

const systemPrompt = `You are a music curator. Answer with a JSON array only, no commentary.
Each element is an object with the keys "title", "artist", "album" and "reason".
Only suggest songs that exist on commercially released recordings.`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// LLMSuggester asks an OpenAI-compatible chat completions endpoint for suggestions.
type LLMSuggester struct {
	endpoint    string
	model       string
	apiKey      string
	temperature float64
	httpClient  *http.Client
	logger      *log.Logger
}

// NewLLMSuggester creates a suggester from the [suggestions] configuration section.
func NewLLMSuggester(cfg shared.SuggestionsConfig, logger *log.Logger) (*LLMSuggester, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("%w: suggestions endpoint", shared.ErrMissingConfig)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("%w: suggestions model", shared.ErrMissingConfig)
	}

	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = llmDefaultTimeout
	}

	return &LLMSuggester{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      shared.WithLogger(logger, "service", "llm"),
	}, nil
}

func (l *LLMSuggester) Name() string {
	return "llm"
}

// Suggest asks for count songs related to seed.
func (l *LLMSuggester) Suggest(ctx context.Context, seed, mode string, count int) ([]models.SongSuggestion, error) {
	if strings.TrimSpace(seed) == "" {
		return nil, fmt.Errorf("%w: seed", shared.ErrMissingArgument)
	}

	guidance, ok := modePrompts[mode]
	if !ok {
		l.logger.Warn("unknown suggestion mode, using similar", "mode", mode)
		guidance = modePrompts[ModeSimilar]
	}

	req := chatRequest{
		Model: l.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Seed: %s\n%s\nReturn exactly %d songs.", seed, guidance, count)},
		},
		Temperature: l.temperature,
	}

	content, err := l.complete(ctx, req)
	if err != nil {
		return nil, err
	}

	suggestions, err := ParseSuggestions(content)
	if err != nil {
		l.logger.Warn("unreadable suggestion payload", "error", err, "length", len(content))
		return nil, err
	}

	l.logger.Debug("received suggestions", "seed", seed, "mode", mode, "count", len(suggestions))
	return suggestions, nil
}

func (l *LLMSuggester) complete(ctx context.Context, body chatRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if l.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.apiKey)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %w", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", shared.ErrServiceUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status := &shared.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		return "", fmt.Errorf("%w: %w", shared.ErrServiceUnavailable, status)
	}

	var chat chatResponse
	if err := json.Unmarshal(data, &chat); err != nil || len(chat.Choices) == 0 {
		return "", fmt.Errorf("%w: no completion in response", shared.ErrMalformedSuggestions)
	}
	return chat.Choices[0].Message.Content, nil
}

// ParseSuggestions extracts a list of songs from a model answer. The list may be a bare JSON array,
// wrapped in a Markdown code fence or surrounded by prose, or an object holding it under "songs" or
// "suggestions". Anything else is [shared.ErrMalformedSuggestions].
func ParseSuggestions(content string) ([]models.SongSuggestion, error) {
	text := stripFence(strings.TrimSpace(content))
	if text == "" {
		return nil, fmt.Errorf("%w: empty answer", shared.ErrMalformedSuggestions)
	}

	if start, end := strings.IndexByte(text, '['), strings.LastIndexByte(text, ']'); start >= 0 && end > start {
		var list []models.SongSuggestion
		if err := json.Unmarshal([]byte(text[start:end+1]), &list); err == nil {
			return list, nil
		}
	}

	if start, end := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}'); start >= 0 && end > start {
		var wrapped struct {
			Songs       []models.SongSuggestion `json:"songs"`
			Suggestions []models.SongSuggestion `json:"suggestions"`
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), &wrapped); err == nil {
			if wrapped.Songs != nil {
				return wrapped.Songs, nil
			}
			if wrapped.Suggestions != nil {
				return wrapped.Suggestions, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: no song list found", shared.ErrMalformedSuggestions)
}

func stripFence(text string) string {
	open := strings.Index(text, "```")
	if open < 0 {
		return text
	}
	rest := text[open+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
