// Command otterclipctl talks to a running otterclipd.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/its-jojoo/otterclipd/internal/adapter/ipc"
	"github.com/its-jojoo/otterclipd/internal/config"
)

const callTimeout = 30 * time.Second

type globals struct {
	socket string
	json   bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "otterclipctl",
		Short:         "Query and manage the otterclipd clipboard history",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.socket, "socket", "", "daemon socket (default $XDG_RUNTIME_DIR/otterclip.sock)")
	root.PersistentFlags().BoolVar(&g.json, "json", false, "print raw JSON")

	root.AddCommand(
		newListCmd(g),
		newSearchCmd(g),
		newGalleryCmd(g),
		newStarCmd(g),
		newCopyCmd(g),
		newDeleteCmd(g),
		newClearCmd(g),
		newSettingsCmd(g),
		newStatsCmd(g),
		newExportCmd(g),
	)
	return root
}

// call runs one request against the daemon.
func (g *globals) call(cmd *cobra.Command, name string, args map[string]any, result any) error {
	socket := g.socket
	if socket == "" {
		socket = config.DefaultSocketPath()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()

	client, err := ipc.Dial(ctx, socket)
	if err != nil {
		return fmt.Errorf("%w (is otterclipd running?)", err)
	}
	defer client.Close()

	return client.Call(ctx, name, args, result)
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "otterclipctl:", err)
		os.Exit(1)
	}
}
