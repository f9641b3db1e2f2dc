// Package timeouts defines shared timeout constants used across engine
// commands. Centralizing these values prevents drift between components and
// makes the durations discoverable.
package timeouts

import "time"

// Generate caps a single model call while processing a turn.
const Generate = 90 * time.Second

// Judge caps the model call that validates a story beat execution.
const Judge = 30 * time.Second

// Shutdown limits how long a command waits for telemetry to flush during
// graceful shutdown.
const Shutdown = 5 * time.Second
