// Command marksync keeps a local bookmark tree in step with a tree stored on
// a remote HTTP service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	dbPath     string
)

var rootCmd = &cobra.Command{
	Use:   "marksync",
	Short: "Synchronize a bookmark folder with a remote JSON store",
	Long: `marksync mirrors one folder of a local bookmark tree to a folder of a
remote tree served over HTTP, and back.

  upload     replaces the remote folder's children with the local ones
  download   replaces the local folder's children with the remote ones

Run 'marksync configure' first to pick the webhook, the local folder
(mount_on) and the remote folder (remote_root).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "tree", Title: "Tree Commands:"},
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/marksync/config.toml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "bookmark database (overrides store.path)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
