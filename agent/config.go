// Package agent owns the investigation loop: it sends the conversation to
// the reasoning service each turn, dispatches the requested tool call, feeds
// the result back, and stops on a final report or an exhausted turn budget.
package agent

import (
	"errors"
	"fmt"
)

// DefaultTurnBudget bounds the investigation when the caller does not set one.
const DefaultTurnBudget = 20

// Config is the immutable run configuration. Built once before the run
// starts; the controller never mutates it.
type Config struct {
	RunID      string // unique id for transcript and history naming
	Mission    string // free-text objective handed to the model
	Model      string // reasoning-service model identifier
	TurnBudget int    // maximum request/response turns
	Verbose    bool
}

func (c Config) Validate() error {
	if c.RunID == "" {
		return errors.New("config: run id is required")
	}
	if c.Model == "" {
		return errors.New("config: model is required")
	}
	if c.TurnBudget <= 0 {
		return fmt.Errorf("config: turn budget must be positive, got %d", c.TurnBudget)
	}
	return nil
}
