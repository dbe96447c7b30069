package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/observability"
	"github.com/spf13/cobra"
)

// render writes v as indented JSON when --json is set, and calls pretty otherwise.
func render(cmd *cobra.Command, v any, pretty func(p *observability.Printer)) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, v)
	}
	pretty(observability.NewPrinter(out))
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

// parseID parses a UUID argument, naming what it identifies in the error.
func parseID(arg, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s ID %q: %w", what, arg, err)
	}
	return id, nil
}
