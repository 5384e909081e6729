package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/bogem/id3v2/v2"
	"github.com/desertthunder/curate/internal/shared"
)

// fakeTool mimics the yt-dlp flags the acquirer uses: it answers --version, writes a file at the
// --output template and prints its path. Queries containing FAIL exit non-zero; SLOW sleeps.
const fakeTool = `#!/bin/sh
if [ "$1" = "--version" ]; then
	echo "2025.01.01"
	exit 0
fi
out=""
last=""
while [ $# -gt 0 ]; do
	case "$1" in
		--output) out="$2"; shift 2 ;;
		*) last="$1"; shift ;;
	esac
done
case "$last" in
	*FAIL*) echo "WARNING: something odd" >&2; echo "ERROR: no video results" >&2; exit 1 ;;
	*SLOW*) exec sleep 5 ;;
esac
file=$(printf '%s' "$out" | sed 's/%(ext)s/mp3/')
printf 'audio-bytes' > "$file"
printf '%s\n' "$file"
`

func writeFakeTool(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script tool requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-dlp")
	if err := os.WriteFile(path, []byte(fakeTool), 0o755); err != nil {
		t.Fatalf("failed to write fake tool: %v", err)
	}
	return path
}

func newTestAcquirer(command string, timeout time.Duration) *ToolAcquirer {
	return NewToolAcquirer(shared.AcquisitionConfig{
		Command: command,
		Timeout: shared.Duration{Duration: timeout},
	}, shared.NewLogger(io.Discard))
}

func TestToolAcquirer(t *testing.T) {
	t.Run("HealthCheck", func(t *testing.T) {
		t.Run("No Command", func(t *testing.T) {
			if newTestAcquirer("", 0).HealthCheck(context.Background()) {
				t.Error("expected false without a command")
			}
		})

		t.Run("Missing Binary", func(t *testing.T) {
			if newTestAcquirer("definitely-not-installed-dlp", 0).HealthCheck(context.Background()) {
				t.Error("expected false for missing binary")
			}
		})

		t.Run("Available", func(t *testing.T) {
			if !newTestAcquirer(writeFakeTool(t), 0).HealthCheck(context.Background()) {
				t.Error("expected fake tool to pass health check")
			}
		})
	})

	t.Run("Fetch", func(t *testing.T) {
		tool := writeFakeTool(t)

		t.Run("Writes And Tags File", func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "incoming")
			a := newTestAcquirer(tool, 10*time.Second)

			res, err := a.Fetch(context.Background(), FetchRequest{
				Title: "Heroes", Artist: "David Bowie", Album: "Heroes", TargetDir: dir,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if want := filepath.Join(dir, "David Bowie - Heroes.mp3"); res.FilePath != want {
				t.Errorf("expected %s, got %s", want, res.FilePath)
			}

			tag, err := id3v2.Open(res.FilePath, id3v2.Options{Parse: true})
			if err != nil {
				t.Fatalf("failed to read tags: %v", err)
			}
			defer tag.Close()
			if tag.Title() != "Heroes" || tag.Artist() != "David Bowie" || tag.Album() != "Heroes" {
				t.Errorf("unexpected tags %q / %q / %q", tag.Title(), tag.Artist(), tag.Album())
			}
		})

		t.Run("Unsafe Characters In Name", func(t *testing.T) {
			dir := t.TempDir()
			res, err := newTestAcquirer(tool, 10*time.Second).Fetch(context.Background(), FetchRequest{
				Title: "Either/Or?", Artist: "AC/DC", TargetDir: dir,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if filepath.Dir(res.FilePath) != dir || filepath.Base(res.FilePath) != "AC_DC - Either_Or_.mp3" {
				t.Errorf("unexpected path %s", res.FilePath)
			}
		})

		t.Run("Tool Failure Includes Stderr", func(t *testing.T) {
			_, err := newTestAcquirer(tool, 10*time.Second).Fetch(context.Background(), FetchRequest{
				Title: "FAIL", Artist: "Nobody", TargetDir: t.TempDir(),
			})
			if err == nil || !strings.Contains(err.Error(), "no video results") {
				t.Errorf("expected stderr tail in error, got %v", err)
			}
		})

		t.Run("Timeout", func(t *testing.T) {
			start := time.Now()
			_, err := newTestAcquirer(tool, 100*time.Millisecond).Fetch(context.Background(), FetchRequest{
				Title: "SLOW", Artist: "Nobody", TargetDir: t.TempDir(),
			})
			if !errors.Is(err, shared.ErrTimeout) {
				t.Errorf("expected ErrTimeout, got %v", err)
			}
			if time.Since(start) > 3*time.Second {
				t.Errorf("fetch did not stop at its timeout")
			}
		})

		t.Run("No Target Dir", func(t *testing.T) {
			_, err := newTestAcquirer(tool, 0).Fetch(context.Background(), FetchRequest{Title: "x", Artist: "y"})
			if !errors.Is(err, shared.ErrAcquisitionUnavailable) {
				t.Errorf("expected ErrAcquisitionUnavailable, got %v", err)
			}
		})
	})
}

func TestSafeFilename(t *testing.T) {
	tc := []struct{ in, want string }{
		{in: "David Bowie - Heroes", want: "David Bowie - Heroes"},
		{in: `a/b\c:d*e?f"g<h>i|j`, want: "a_b_c_d_e_f_g_h_i_j"},
		{in: " ..hidden.. ", want: "hidden"},
		{in: "...", want: "untitled"},
	}

	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			if got := SafeFilename(tt.in); got != tt.want {
				t.Errorf("SafeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
