package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/curate/internal/metrics"
	"github.com/desertthunder/curate/internal/models"
	"github.com/desertthunder/curate/internal/repositories"
	"github.com/desertthunder/curate/internal/services"
	"github.com/desertthunder/curate/internal/session"
	"github.com/desertthunder/curate/internal/shared"
	"github.com/desertthunder/curate/internal/tasks"
	"github.com/urfave/cli/v3"
)

// LibraryClient is the media server as the library commands see it. [*services.GuardedLibrary] implements it.
type LibraryClient interface {
	services.Library
	Playlists(ctx context.Context) ([]models.Playlist, error)
	PlaylistItems(ctx context.Context, playlistID string) ([]models.LibraryTrack, error)
}

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	library    LibraryClient
	guard      *session.Guard
	source     services.SuggestionSource
	acquirer   services.Acquirer
	runs       *repositories.RunRepository
	db         *sql.DB
	metrics    *metrics.Collector
	logger     *log.Logger
	output     io.Writer
	input      *os.File
	engine     *tasks.SynthesisEngine
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Nil collaborators are built from Config on first use.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Library    LibraryClient
	Guard      *session.Guard
	Source     services.SuggestionSource
	Acquirer   services.Acquirer
	Runs       *repositories.RunRepository
	Metrics    *metrics.Collector
	Logger     *log.Logger
	Output     io.Writer
	Input      *os.File
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		library:    opts.Library,
		guard:      opts.Guard,
		source:     opts.Source,
		acquirer:   opts.Acquirer,
		runs:       opts.Runs,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      opts.Input,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, synthCommand, libraryCommand, historyCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger swaps the logger, e.g. to keep log lines out of a full-screen TUI.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// Close releases the database handle, if one was opened.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// connectLibrary builds the Jellyfin client and its session guard from the [jellyfin] section.
func (r *Runner) connectLibrary() error {
	api, err := services.NewJellyfinService(r.config.Jellyfin, r.logger)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}

	r.guard = session.NewGuard(api, session.Options{
		Lifetime: r.config.Jellyfin.SessionLifetime.Duration,
		Margin:   r.config.Jellyfin.SessionMargin.Duration,
		Logger:   r.logger,
	})
	r.library = services.NewGuardedLibrary(api, r.guard)
	return nil
}

func (r *Runner) libraryClient() (LibraryClient, error) {
	if r.library == nil {
		if err := r.connectLibrary(); err != nil {
			return nil, err
		}
	}
	return r.library, nil
}

func (r *Runner) suggestionSource() (services.SuggestionSource, error) {
	if r.source != nil {
		return r.source, nil
	}

	var err error
	switch r.config.Suggestions.Provider {
	case "spotify":
		r.source, err = services.NewSpotifySuggester(r.config.Credentials.Spotify, r.logger)
	default:
		r.source, err = services.NewLLMSuggester(r.config.Suggestions, r.logger)
	}
	if err != nil {
		r.source = nil
		return nil, err
	}
	return r.source, nil
}

// runStore opens the configured database on first use. Commands that only record history
// treat an error here as "history disabled".
func (r *Runner) runStore() (*repositories.RunRepository, error) {
	if r.runs != nil {
		return r.runs, nil
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, err
	}
	r.db = db
	r.runs = repositories.NewRunRepository(db)
	return r.runs, nil
}

func (r *Runner) metricsCollector() *metrics.Collector {
	if r.metrics == nil {
		refreshes := func() int64 { return 0 }
		if r.guard != nil {
			refreshes = r.guard.Refreshes
		}
		r.metrics = metrics.New(refreshes)
	}
	return r.metrics
}

// synthesisEngine wires the engine from the configured collaborators.
func (r *Runner) synthesisEngine() (*tasks.SynthesisEngine, error) {
	if r.engine != nil {
		return r.engine, nil
	}

	library, err := r.libraryClient()
	if err != nil {
		return nil, err
	}
	source, err := r.suggestionSource()
	if err != nil {
		return nil, err
	}

	deps := tasks.Dependencies{
		Library: library,
		Source:  source,
		Metrics: r.metricsCollector(),
		Logger:  r.logger,
	}
	if r.guard != nil {
		deps.Sessions = r.guard
	}
	if r.acquirer != nil {
		deps.Acquirer = r.acquirer
	} else if r.config.Acquisition.Command != "" {
		deps.Acquirer = services.NewToolAcquirer(r.config.Acquisition, r.logger)
	}
	if runs, err := r.runStore(); err != nil {
		r.logger.Warn("run history disabled", "error", err)
	} else {
		deps.Recorder = runs
	}

	r.engine = tasks.NewSynthesisEngine(deps, tasks.OptionsFromConfig(r.config))
	return r.engine, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
