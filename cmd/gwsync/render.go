package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cuemby/gwsync/pkg/gateway"
	"github.com/cuemby/gwsync/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print what would be published, without touching the registry",
	Long: `Render fetches the gateway's runtime configuration once, builds the
registry state for this node and prints it.

Examples:
  # Show the kv entries and services as YAML
  gwsync render --traefik-url http://traefik:8080 --service-http http://10.0.0.5

  # Show the tag payloads as JSON
  gwsync render --mode tags -o json`,
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringP("output", "o", "yaml", "Output format: yaml or json")
}

// RenderedEntry is one registry key/value pair as printed by render
type RenderedEntry struct {
	Key   string `yaml:"key" json:"key"`
	Value string `yaml:"value" json:"value"`
}

// RenderedState is the render command output
type RenderedState struct {
	Node     string                 `yaml:"node" json:"node"`
	Mode     string                 `yaml:"mode" json:"mode"`
	Entries  []RenderedEntry        `yaml:"entries,omitempty" json:"entries,omitempty"`
	Services []types.ServicePayload `yaml:"services" json:"services"`
}

func runRender(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output")
	if format != "yaml" && format != "json" {
		return fmt.Errorf("unknown output format %q", format)
	}

	b, err := newBuilder()
	if err != nil {
		return err
	}

	doc, err := gateway.NewClient(cfg.Gateway()).Fetch(cmd.Context())
	if err != nil {
		return err
	}

	state, err := b.Build(doc)
	if err != nil {
		return fmt.Errorf("failed to build state: %w", err)
	}

	return writeState(cmd.OutOrStdout(), format, cfg.NodeName, cfg.Mode, state)
}

func writeState(w io.Writer, format, node, mode string, state *types.State) error {
	out := RenderedState{
		Node:     node,
		Mode:     mode,
		Services: state.Services,
	}
	for _, e := range state.Entries {
		out.Entries = append(out.Entries, RenderedEntry{Key: e.Key(), Value: e.Value})
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(out)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}
