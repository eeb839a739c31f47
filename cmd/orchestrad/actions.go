package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/petrijr/orchestra/pkg/api"
)

// systemModule is the module name of the actions every daemon ships with.
const systemModule = "system"

// newSystemActions returns a registry holding the built-in system actions.
// Workflow files loaded at startup can only reference these.
func newSystemActions(logger *slog.Logger) *api.ActionRegistry {
	r := api.NewActionRegistry()
	r.MustRegister(systemModule, "noop", func(context.Context, map[string]any) (map[string]any, error) {
		return nil, nil
	})
	r.MustRegister(systemModule, "echo", func(_ context.Context, in map[string]any) (map[string]any, error) {
		return maps.Clone(in), nil
	})
	r.MustRegister(systemModule, "log", func(ctx context.Context, in map[string]any) (map[string]any, error) {
		msg, _ := in["message"].(string)
		logger.InfoContext(ctx, "Workflow log.", "message", msg)
		return nil, nil
	})
	r.MustRegister(systemModule, "sleep", sleepAction)
	r.MustRegister(systemModule, "fail", func(_ context.Context, in map[string]any) (map[string]any, error) {
		if msg, ok := in["message"].(string); ok && msg != "" {
			return nil, errors.New(msg)
		}
		return nil, errors.New("failed on request")
	})
	return r
}

// sleepAction waits for the "duration" parameter, a Go duration string.
func sleepAction(ctx context.Context, in map[string]any) (map[string]any, error) {
	raw, _ := in["duration"].(string)
	if raw == "" {
		return nil, errors.New("sleep: duration is required")
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("sleep: %w", err)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return map[string]any{"slept": d.String()}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
