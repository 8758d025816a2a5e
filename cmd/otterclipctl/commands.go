package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/its-jojoo/otterclipd/internal/adapter/ipc"
	"github.com/its-jojoo/otterclipd/internal/core"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func printSummaries(w io.Writer, items []ipc.Summary) {
	if len(items) == 0 {
		fmt.Fprintln(w, "(empty)")
		return
	}
	for _, it := range items {
		star := " "
		if it.Starred {
			star = "★"
		}
		label := it.Title
		if it.Kind == core.KindText {
			label = preview(it.Text, 80)
		}
		fmt.Fprintf(w, "%5d %s [%s] %s\n", it.ID, star, it.Kind, label)
	}
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (g *globals) listing(cmd *cobra.Command, name string, args map[string]any) error {
	var items []ipc.Summary
	if err := g.call(cmd, name, args, &items); err != nil {
		return err
	}
	if g.json {
		return printJSON(cmd.OutOrStdout(), items)
	}
	printSummaries(cmd.OutOrStdout(), items)
	return nil
}

func newListCmd(g *globals) *cobra.Command {
	var (
		limit   int
		starred bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent clips",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.listing(cmd, ipc.CmdList, map[string]any{"limit": limit, "starred_only": starred})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum clips to show")
	cmd.Flags().BoolVar(&starred, "starred", false, "only starred clips")
	return cmd
}

func newSearchCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Search text clips",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.listing(cmd, ipc.CmdSearch, map[string]any{"query": strings.Join(args, " "), "limit": limit})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum clips to show")
	return cmd
}

func newGalleryCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "List image clips",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.listing(cmd, ipc.CmdGallery, map[string]any{"limit": limit})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum clips to show")
	return cmd
}

func newStarCmd(g *globals) *cobra.Command {
	var off bool
	cmd := &cobra.Command{
		Use:   "star <id>",
		Short: "Star a clip so retention keeps it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			if err := g.call(cmd, ipc.CmdStar, map[string]any{"id": ids[0], "value": !off}, nil); err != nil {
				return err
			}
			state := "starred"
			if off {
				state = "unstarred"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", state, ids[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, "remove the star instead")
	return cmd
}

func newCopyCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "copy <id>",
		Short: "Put a clip back on the clipboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			if err := g.call(cmd, ipc.CmdCopy, map[string]any{"id": ids[0]}, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "copied %d\n", ids[0])
			return nil
		},
	}
}

func newDeleteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete clips by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			var out struct {
				Deleted int `json:"deleted_count"`
			}
			if err := g.call(cmd, ipc.CmdDeleteItems, map[string]any{"ids": ids}, &out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", out.Deleted)
			return nil
		},
	}
}

func newClearCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every clip that is not starred",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out core.DeleteCounts
			if err := g.call(cmd, ipc.CmdDeleteAllExceptStarred, nil, &out); err != nil {
				return err
			}
			if g.json {
				return printJSON(cmd.OutOrStdout(), out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d text and %d image clips\n", out.Items, out.Images)
			return nil
		},
	}
}

func newSettingsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Show the settings the daemon is using",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out json.RawMessage
			if err := g.call(cmd, ipc.CmdGetSettings, nil, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newStatsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show history counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out ipc.StatsResult
			if err := g.call(cmd, ipc.CmdStats, nil, &out); err != nil {
				return err
			}
			if g.json {
				return printJSON(cmd.OutOrStdout(), out)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "total %d, images %d, starred %d\n", out.Total, out.Images, out.Starred)
			if r := out.Retention; r != nil && r.LastRun != nil {
				fmt.Fprintf(w, "retention: last run %s, deleted %d (%d since start)\n",
					r.LastRun.Local().Format(time.DateTime), r.LastDeleted, r.TotalDeleted)
				if r.LastError != "" {
					fmt.Fprintf(w, "retention error: %s\n", r.LastError)
				}
			}
			return nil
		},
	}
}
