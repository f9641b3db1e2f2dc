// Package seed writes a starter world definition so a fresh install has
// something to play.
package seed

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	entrypoint "github.com/selune/engine/internal/platform/cmd"
	"github.com/selune/engine/internal/world"
)

// Config holds seed command configuration.
type Config struct {
	OutPath string `env:"SELUNE_SEED_OUT" envDefault:"worlds/moonfall.yaml"`
	Force   bool   `env:"SELUNE_SEED_FORCE"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Where to write the world file")
	fs.BoolVar(&cfg.Force, "force", cfg.Force, "Overwrite an existing file")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run writes the starter world.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSeed, func(context.Context) error {
		return Write(cfg)
	})
}

// Write validates the embedded starter world and writes it to the
// configured path. Existing files are kept unless Force is set.
func Write(cfg Config) error {
	if _, err := os.Stat(cfg.OutPath); err == nil && !cfg.Force {
		return fmt.Errorf("seed: %s already exists (use -force to overwrite)", cfg.OutPath)
	}

	// Parse before writing so a broken starter never reaches disk.
	if _, err := world.Parse([]byte(starterWorld)); err != nil {
		return fmt.Errorf("seed: starter world invalid: %w", err)
	}

	if dir := filepath.Dir(cfg.OutPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	if err := os.WriteFile(cfg.OutPath, []byte(starterWorld), 0o644); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	return nil
}

const starterWorld = `meta:
  id: moonfall
  name: Moonfall Station
  genre: sci-fi drama
  description: A mining station in decaying orbit around a dying moon.
  lore: |
    Moonfall Station has hung above the fractured moon Theia for sixty
    years. The ore is running out, the company stopped answering, and
    the skeleton crew that remains keeps the place alive out of habit
    and stubbornness. You arrived on the last supply shuttle.

companions:
  Elara:
    role: chief engineer
    base_personality: dry wit, fiercely loyal, allergic to small talk
    base_prompt: tall woman, short silver hair, grease-stained hands, orange jumpsuit
    default_outfit: jumpsuit
    wardrobe:
      jumpsuit: orange work jumpsuit, tool belt
      formal: black dress uniform, polished boots
      off_duty: worn t-shirt, cargo pants
    relations:
      Mira:
        rapport: 40
        jealousy_sensitivity: 0.3
    personality_system:
      affinity_tiers:
        "0": guarded, answers in single sentences
        "30": warm, jokes back, uses your name
        "60": open, shares doubts about the station
  Mira:
    role: comms officer
    base_personality: chatty, optimistic, hides worry behind jokes
    base_prompt: small woman, dark braid, headset around neck
    default_outfit: uniform
    wardrobe:
      uniform: grey station uniform
    relations:
      Elara:
        rapport: 40
        jealousy_sensitivity: 0.6

locations:
  docking_bay:
    name: Docking Bay
    description: Cavernous and cold, lit by flood lamps. The shuttle you came on is still cooling.
    lighting: harsh flood lights
    aliases: [the bay, hangar]
    connected_to: [corridor]
  corridor:
    name: Main Corridor
    description: A long spine of pipes and flickering panels.
    connected_to: [docking_bay, mess_hall, engine_room]
  mess_hall:
    name: Mess Hall
    description: Six tables, one working coffee machine, a view of Theia's scarred face.
    lighting: warm and dim
    connected_to: [corridor]
  engine_room:
    name: Engine Room
    description: Elara's kingdom. Deafening, hot, spotless.
    lighting: red service lights
    aliases: [engineering]
    connected_to: [corridor]

quests:
  coolant_leak:
    meta:
      title: The Coolant Leak
      description: Help Elara trace the slow leak before the reactor notices.
      character: Elara
    activation:
      type: auto
      conditions:
        - type: turn_count
          operator: gte
          value: 2
    stages:
      start:
        narrative_prompt: Elara is tracing a coolant leak and could use another pair of hands.
        exit_conditions:
          - type: flag
            target: leak_found
            value: true
        transitions:
          - condition: condition_0
            target: repair
      repair:
        narrative_prompt: The leak is found. Now someone has to crawl into the duct and patch it.
        on_enter:
          - action: set_flag
            key: duct_open
            value: true
        exit_conditions:
          - type: flag
            target: leak_patched
            value: true
        transitions:
          - condition: condition_0
            target: _complete
    rewards:
      affinity:
        Elara: 10
      flags:
        elara_trusts_you: true

narrative_arc:
  premise: The station is dying faster than anyone admits, and the crew must decide whether to save it or leave it.
  themes:
    - loyalty to a place past saving
    - found family under pressure
  hard_limits:
    - the station never explodes without warning
  beats:
    - id: first_blackout
      description: The station loses main power for a full minute. Emergency lights only. Theia fills the dark viewport.
      tone: tense, quiet
      trigger: turn >= 5
      priority: 1
      required_elements: [darkness, emergency lights]
      once: true
      consequence: "Elara += 5, flag:blackout_happened = true"
    - id: mira_confession
      description: Mira admits the company stopped answering hails three months ago. Nobody is coming.
      tone: raw, honest
      trigger: "turn >= 12 and blackout_happened"
      priority: 2
      required_elements: [hails, three months]
      once: true
      consequence: "flag:no_rescue = true"
`
