package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marksync/marksync/internal/config"
	"github.com/marksync/marksync/internal/logging"
	"github.com/marksync/marksync/internal/remote"
	"github.com/marksync/marksync/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "advanced",
	Short:   "Run a remote store that marksync can sync against",
	Long: `Serve a bookmark tree kept in one JSON file.

  GET  /                      the whole tree
  GET  /?propertyPath=<path>  the value at <path>, e.g. [0].children
  PUT  /<path>                replace the children of the folder at <path>

A fresh store holds a single empty root folder at [0].

Example usage:
  marksync serve --addr 127.0.0.1:8787 --token s3cret
  marksync configure --webhook http://127.0.0.1:8787 \
      --header "Authorization: Bearer s3cret" --mount-on 1 --remote-root "[0]"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		token, _ := cmd.Flags().GetString("token")
		doc, _ := cmd.Flags().GetString("file")
		if doc == "" {
			dir, err := config.DefaultDir()
			if err != nil {
				return err
			}
			doc = filepath.Join(dir, "remote.json")
		}

		sink, err := logging.NewSink(config.Logging{})
		if err != nil {
			return err
		}
		defer sink.Close()

		server, err := remote.NewServer(&remote.ServerConfig{
			Addr:         addr,
			DocumentPath: doc,
			Token:        token,
			Logger:       sink.Logger("store"),
		})
		if err != nil {
			return err
		}
		if err := server.Start(); err != nil {
			return err
		}

		fmt.Printf("%s Remote store on http://%s\n", ui.RenderAccent("🚀"), server.GetAddr())
		fmt.Printf("   Document: %s\n", doc)
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		fmt.Println("\nShutting down remote store...")
		return server.Stop()
	},
}

func init() {
	serveCmd.Flags().String("addr", "127.0.0.1:8787", "address to listen on")
	serveCmd.Flags().String("file", "", "JSON document (default ~/.config/marksync/remote.json)")
	serveCmd.Flags().String("token", "", "require 'Authorization: Bearer <token>'")

	rootCmd.AddCommand(serveCmd)
}
