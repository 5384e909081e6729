package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bogem/id3v2/v2"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/curate/internal/shared"
)

const (
	acquireDefaultTimeout = 5 * time.Minute
	healthCheckTimeout    = 15 * time.Second
	stderrTailLines       = 3
)

var unsafeFilenameChars = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
)

// ToolAcquirer fetches songs with yt-dlp or a command-line compatible tool.
type ToolAcquirer struct {
	command string
	format  string
	timeout time.Duration
	logger  *log.Logger
}

// NewToolAcquirer creates an acquirer from the [acquisition] configuration section.
func NewToolAcquirer(cfg shared.AcquisitionConfig, logger *log.Logger) *ToolAcquirer {
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = acquireDefaultTimeout
	}
	format := strings.ToLower(strings.TrimSpace(cfg.AudioFormat))
	if format == "" {
		format = "mp3"
	}

	return &ToolAcquirer{
		command: strings.TrimSpace(cfg.Command),
		format:  format,
		timeout: timeout,
		logger:  shared.WithLogger(logger, "service", "acquire"),
	}
}

// HealthCheck reports whether the command is installed and answers --version.
func (a *ToolAcquirer) HealthCheck(ctx context.Context) bool {
	if a.command == "" {
		return false
	}
	path, err := exec.LookPath(a.command)
	if err != nil {
		a.logger.Warn("acquisition tool not found", "command", a.command, "error", err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		a.logger.Warn("acquisition tool health check failed", "command", path, "error", err)
		return false
	}

	a.logger.Debug("acquisition tool available", "command", path, "version", strings.TrimSpace(string(out)))
	return true
}

// Fetch downloads the best search match for the request into req.TargetDir and returns the written file.
// MP3 output is tagged with the requested title, artist and album.
func (a *ToolAcquirer) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	if a.command == "" {
		return nil, fmt.Errorf("%w: no command configured", shared.ErrAcquisitionUnavailable)
	}
	if strings.TrimSpace(req.TargetDir) == "" {
		return nil, fmt.Errorf("%w: no target directory", shared.ErrAcquisitionUnavailable)
	}
	if err := os.MkdirAll(req.TargetDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrAcquisitionUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, a.command, a.args(req)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	if err := cmd.Run(); err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: download exceeded %s", shared.ErrTimeout, a.timeout)
		case ctx.Err() != nil:
			return nil, ctx.Err()
		}
		tail := lastLines(stderr.String(), stderrTailLines)
		a.logger.Error("acquisition command failed", "title", req.Title, "artist", req.Artist, "error", err, "stderr", tail)
		if tail != "" {
			return nil, fmt.Errorf("%s failed: %w: %s", filepath.Base(a.command), err, tail)
		}
		return nil, fmt.Errorf("%s failed: %w", filepath.Base(a.command), err)
	}

	path := lastLines(stdout.String(), 1)
	if path == "" {
		return nil, fmt.Errorf("%s reported no output file", filepath.Base(a.command))
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("downloaded file missing: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		if err := TagMP3(path, req); err != nil {
			a.logger.Warn("failed to tag download", "path", path, "error", err)
		}
	}

	a.logger.Info("acquired song", "title", req.Title, "artist", req.Artist, "path", path,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return &FetchResult{FilePath: path}, nil
}

func (a *ToolAcquirer) args(req FetchRequest) []string {
	query := strings.TrimSpace(req.Artist + " - " + req.Title)
	output := filepath.Join(req.TargetDir, SafeFilename(req.Artist+" - "+req.Title)+".%(ext)s")

	return []string{
		"--no-playlist",
		"--no-progress",
		"--quiet",
		"--extract-audio",
		"--audio-format", a.format,
		"--output", output,
		"--print", "after_move:filepath",
		"ytsearch1:" + query,
	}
}

// TagMP3 writes title, artist and album frames to an MP3 file, replacing existing tags.
func TagMP3(path string, req FetchRequest) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: false})
	if err != nil {
		return fmt.Errorf("failed to open MP3 file for tagging: %w", err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetTitle(req.Title)
	tag.SetArtist(req.Artist)
	tag.AddTextFrame(tag.CommonID("Band/Orchestra/Accompaniment"), id3v2.EncodingUTF8, req.Artist)
	if req.Album != "" {
		tag.SetAlbum(req.Album)
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save MP3 tags: %w", err)
	}
	return nil
}

// SafeFilename replaces characters that are invalid in file names on common filesystems.
func SafeFilename(name string) string {
	name = strings.TrimSpace(unsafeFilenameChars.Replace(name))
	name = strings.Trim(name, ".")
	if name == "" {
		return "untitled"
	}
	return name
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
