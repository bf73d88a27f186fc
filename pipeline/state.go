// Package pipeline - drives a batch of photographs through edge detection,
// inference and compositing, then blends the results into one canvas.
package pipeline

import (
	"math/rand"

	"github.com/nvr-ai/go-glitch/config"
)

// State is the per-run state every stage reads from.
type State struct {
	Config *config.Config
	// Seed is the seed Rand was created with.
	Seed int64
	// Rand is the run's random source. No stage draws from it yet.
	Rand *rand.Rand
}

// NewState creates the run state from a validated configuration.
func NewState(cfg *config.Config) *State {
	return &State{
		Config: cfg,
		Seed:   cfg.Pipeline.Seed,
		Rand:   rand.New(rand.NewSource(cfg.Pipeline.Seed)),
	}
}
