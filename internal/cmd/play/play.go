// Package play parses play command flags and runs the interactive
// session loop.
package play

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/selune/engine/internal/generation"
	"github.com/selune/engine/internal/media"
	"github.com/selune/engine/internal/memory"
	entrypoint "github.com/selune/engine/internal/platform/cmd"
	"github.com/selune/engine/internal/session"
	"github.com/selune/engine/internal/storage"
	storebbolt "github.com/selune/engine/internal/storage/bbolt"
	storesqlite "github.com/selune/engine/internal/storage/sqlite"
	"github.com/selune/engine/internal/world"
)

// Config holds play command configuration.
type Config struct {
	WorldPath string `env:"SELUNE_WORLD" envDefault:"worlds/moonfall.yaml"`
	Companion string `env:"SELUNE_COMPANION"`
	SessionID string `env:"SELUNE_SESSION"`

	DBDriver string `env:"SELUNE_DB_DRIVER" envDefault:"sqlite"`
	DBPath   string `env:"SELUNE_DB_PATH" envDefault:"selune.db"`

	GeminiAPIKey string `env:"SELUNE_GEMINI_API_KEY"`
	GeminiModel  string `env:"SELUNE_GEMINI_MODEL"`
	KimiAPIKey   string `env:"SELUNE_KIMI_API_KEY"`
	KimiBaseURL  string `env:"SELUNE_KIMI_BASE_URL"`
	KimiModel    string `env:"SELUNE_KIMI_MODEL"`

	HistoryLimit   int  `env:"SELUNE_HISTORY_LIMIT" envDefault:"50"`
	SemanticMemory bool `env:"SELUNE_SEMANTIC_MEMORY"`
	MediaEnabled   bool `env:"SELUNE_MEDIA"`
	AudioEnabled   bool `env:"SELUNE_AUDIO"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.WorldPath, "world", cfg.WorldPath, "Path to the world definition YAML")
	fs.StringVar(&cfg.Companion, "companion", cfg.Companion, "Active companion (defaults to the first in the cast)")
	fs.StringVar(&cfg.SessionID, "session", cfg.SessionID, "Session id to resume")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Database path")
	fs.StringVar(&cfg.DBDriver, "driver", cfg.DBDriver, "Database driver (sqlite or bbolt)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the interactive play loop.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServicePlay, func(ctx context.Context) error {
		return run(ctx, cfg, os.Stdin, os.Stdout)
	})
}

func run(ctx context.Context, cfg Config, in io.Reader, out io.Writer) error {
	def, err := world.Load(cfg.WorldPath)
	if err != nil {
		return err
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("store close: %v", err)
		}
	}()

	providers, embedder, closeProviders, err := buildProviders(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeProviders()

	opts := session.Options{
		Storage:  db,
		Embedder: embedder,
		Config:   session.Config{HistoryLimit: cfg.HistoryLimit},
	}
	if cfg.MediaEnabled {
		pipeline := media.NewPipeline(&media.Mock{})
		if cfg.AudioEnabled {
			pipeline.EnableAudio(&media.Mock{})
		}
		opts.Media = pipeline
	}

	orch := session.New(def, generation.NewManager(providers...), opts)

	if cfg.SessionID != "" {
		if err := orch.Resume(ctx, cfg.SessionID); err != nil {
			return err
		}
		fmt.Fprintf(out, "Resumed session %s at turn %d.\n\n", cfg.SessionID, orch.State().Turn)
	} else {
		companion := cfg.Companion
		if companion == "" {
			companion = firstCompanion(def)
		}
		if err := orch.Start(ctx, companion); err != nil {
			return err
		}
		fmt.Fprintf(out, "Session %s started.\n\n", orch.SessionID())

		intro, err := orch.GenerateIntro(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n\n", intro.Text)
	}

	return loop(ctx, orch, in, out)
}

func openStore(cfg Config) (storage.Store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return storesqlite.Open(cfg.DBPath)
	case "bbolt":
		return storebbolt.Open(cfg.DBPath)
	}
	return nil, fmt.Errorf("unknown db driver %q", cfg.DBDriver)
}

// buildProviders assembles the provider chain from configured API keys.
// With no keys at all the mock provider keeps the loop playable offline.
func buildProviders(ctx context.Context, cfg Config) ([]generation.Provider, memory.Embedder, func(), error) {
	var providers []generation.Provider
	var embedder memory.Embedder
	cleanup := func() {}

	if cfg.GeminiAPIKey != "" {
		gemini, err := generation.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, cleanup, err
		}
		providers = append(providers, gemini)
		cleanup = func() {
			if err := gemini.Close(); err != nil {
				log.Printf("gemini close: %v", err)
			}
		}
		if cfg.SemanticMemory {
			embedder = gemini
		}
	}
	if cfg.KimiAPIKey != "" {
		providers = append(providers, generation.NewKimi(generation.KimiConfig{
			APIKey:  cfg.KimiAPIKey,
			BaseURL: cfg.KimiBaseURL,
			Model:   cfg.KimiModel,
		}))
	}
	if len(providers) == 0 {
		log.Printf("no provider keys configured, using mock provider")
		providers = append(providers, generation.NewMock())
	}
	return providers, embedder, cleanup, nil
}

func firstCompanion(def *world.Definition) string {
	names := make([]string, 0, len(def.Companions))
	for name := range def.Companions {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func loop(ctx context.Context, orch *session.Orchestrator, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return nil
		}

		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue
		case input == "/quit" || input == "/exit":
			return nil
		case input == "/state":
			printState(out, orch)
			continue
		case input == "/beats":
			for _, beat := range orch.UpcomingBeats() {
				fmt.Fprintf(out, "  upcoming: %s\n", beat.ID)
			}
			continue
		}

		result, err := orch.ProcessTurn(ctx, input)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(out, "[turn failed: %v]\n", err)
			continue
		}

		fmt.Fprintf(out, "\n%s\n", result.Text)
		for _, name := range sortedKeys(result.AffinityChanges) {
			fmt.Fprintf(out, "  [%s %+d]\n", name, result.AffinityChanges[name])
		}
		for _, title := range result.NewQuests {
			fmt.Fprintf(out, "  [new quest: %s]\n", title)
		}
		for _, id := range result.CompletedQuests {
			fmt.Fprintf(out, "  [quest completed: %s]\n", id)
		}
		if result.Media != nil {
			go func(job *media.Job) {
				res := job.Result()
				if res.Err != nil || res.ImagePath == "" {
					return
				}
				log.Printf("media ready image=%s", res.ImagePath)
			}(result.Media)
		}
		fmt.Fprintln(out)
	}
}

func printState(out io.Writer, orch *session.Orchestrator) {
	ws := orch.State()
	fmt.Fprintf(out, "  turn=%d location=%s time=%s companion=%s\n", ws.Turn, ws.Location, ws.Time, ws.ActiveCompanion)
	for _, name := range sortedKeys(ws.Affinity) {
		fmt.Fprintf(out, "  affinity %s=%d\n", name, ws.Affinity[name])
	}
	for _, id := range ws.ActiveQuests {
		fmt.Fprintf(out, "  quest %s active\n", id)
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
