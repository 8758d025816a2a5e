package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/its-jojoo/otterclipd/internal/adapter/ipc"
	"github.com/its-jojoo/otterclipd/internal/adapter/storage"
)

type ExportItem struct {
	ID         int64  `json:"id"`
	Kind       string `json:"kind"`
	MIME       string `json:"mime"`
	Content    string `json:"content,omitempty"`
	Hash       string `json:"hash"`
	CreatedAt  string `json:"created_at"`
	LastUsedAt string `json:"last_used_at"`
	Starred    bool   `json:"starred"`
}

// toExport keeps image metadata but not image bytes.
func toExport(items []ipc.Summary) []ExportItem {
	export := make([]ExportItem, 0, len(items))
	for _, it := range items {
		export = append(export, ExportItem{
			ID:         it.ID,
			Kind:       string(it.Kind),
			MIME:       it.MIME,
			Content:    it.Text,
			Hash:       it.Hash,
			CreatedAt:  it.CreatedAt.UTC().Format(time.RFC3339Nano),
			LastUsedAt: it.LastUsedAt.UTC().Format(time.RFC3339Nano),
			Starred:    it.Starred,
		})
	}
	return export
}

func newExportCmd(g *globals) *cobra.Command {
	var (
		out     string
		limit   int
		starred bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the history to a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var items []ipc.Summary
			if err := g.call(cmd, ipc.CmdList, map[string]any{"limit": limit, "starred_only": starred}, &items); err != nil {
				return err
			}
			export := toExport(items)

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			if err := printJSON(f, export); err != nil {
				_ = f.Close()
				return fmt.Errorf("encode: %w", err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("write output: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "exported", len(export), "items to", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "otterclip-export.json", "output json file path")
	cmd.Flags().IntVar(&limit, "limit", storage.MaxLimit, "max items to export")
	cmd.Flags().BoolVar(&starred, "starred", false, "only starred clips")
	return cmd
}
