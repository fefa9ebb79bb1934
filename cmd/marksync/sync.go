package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marksync/marksync/internal/daemon"
	"github.com/marksync/marksync/internal/dashboard"
	"github.com/marksync/marksync/internal/treesync"
	"github.com/marksync/marksync/internal/ui"
)

var uploadCmd = &cobra.Command{
	Use:     "upload",
	GroupID: "sync",
	Short:   "Replace the remote folder's children with the local ones",
	Long: `Serialize the children of the local mount point and PUT them to the
remote root. The remote store's reply is printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd.Context(), treesync.DirectionUpload)
	},
}

var downloadCmd = &cobra.Command{
	Use:     "download",
	GroupID: "sync",
	Short:   "Replace the local folder's children with the remote ones",
	Long: `Fetch the children of the remote root, erase the children of the local
mount point and recreate the fetched tree in their place.

If the remote store cannot be reached the local tree is left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd.Context(), treesync.DirectionDownload)
	},
}

var triggerCmd = &cobra.Command{
	Use:     "trigger upload|download",
	GroupID: "sync",
	Short:   "Ask a running daemon to sync",
	Long: `Send BOOKMARK_SYNC_UPLOAD or BOOKMARK_SYNC_DOWNLOAD to the daemon's trigger
endpoint. The daemon runs one sync at a time and holds at most one more;
further requests are dropped until it catches up.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"upload", "download"},
	RunE: func(cmd *cobra.Command, args []string) error {
		action, err := actionFor(args[0])
		if err != nil {
			return err
		}

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			file, err := configFile()
			if err != nil {
				return err
			}
			cfg, err := file.Load()
			if err != nil {
				return err
			}
			addr = cfg.Daemon.Listen
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		resp, err := dashboard.PostTrigger(ctx, addr, action)
		if err != nil {
			return err
		}
		if resp.Queued {
			fmt.Printf("%s %s queued\n", ui.RenderPass("✓"), resp.Action)
		} else {
			fmt.Printf("%s %s dropped: a sync is already pending\n", ui.RenderWarn("⚠"), resp.Action)
		}
		return nil
	},
}

func actionFor(arg string) (string, error) {
	switch strings.ToUpper(arg) {
	case "UPLOAD", daemon.ActionUpload:
		return daemon.ActionUpload, nil
	case "DOWNLOAD", daemon.ActionDownload:
		return daemon.ActionDownload, nil
	default:
		return "", fmt.Errorf("unknown direction %q (want upload or download)", arg)
	}
}

func runSync(ctx context.Context, dir treesync.Direction) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	engine := a.engine(nil)

	fmt.Printf("%s Starting %s (mount %s, remote %s)...\n",
		ui.RenderAccent("🔄"), dir, orUnset(a.cfg.Sync.MountOn), orUnset(a.cfg.Sync.RemoteRoot))

	var res *treesync.Result
	if dir == treesync.DirectionUpload {
		res, err = engine.Upload(ctx)
	} else {
		res, err = engine.Download(ctx)
	}
	if errors.Is(err, treesync.ErrConfigIncomplete) {
		fmt.Printf("%s Nothing to do: %v\n", ui.RenderWarn("⚠"), err)
		fmt.Printf("   Run 'marksync configure' to set webhook, mount_on and remote_root\n")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s %s complete in %v\n", ui.RenderPass("✓"), dir, res.Duration.Round(time.Millisecond))
	switch dir {
	case treesync.DirectionUpload:
		fmt.Printf("   Nodes sent: %d\n", res.Uploaded)
		if len(res.Response) > 0 {
			fmt.Printf("   Remote replied: %s\n", strings.TrimSpace(string(res.Response)))
		}
	case treesync.DirectionDownload:
		fmt.Printf("   Nodes fetched: %d\n", res.Fetched)
		fmt.Printf("   Erased: %d removed, %d kept\n", res.Erase.Removed, res.Erase.Kept)
		fmt.Printf("   Merged: %d created, %d reused, %d skipped\n", res.Merge.Created, res.Merge.Reused, res.Merge.Skipped)
		if res.Merge.Failed > 0 {
			fmt.Printf("   %s %d nodes could not be created\n", ui.RenderWarn("⚠"), res.Merge.Failed)
		}
	}
	return nil
}

func orUnset(s string) string {
	if s == "" {
		return ui.RenderMuted("(unset)")
	}
	return s
}

func init() {
	triggerCmd.Flags().String("addr", "", "daemon address (default daemon.listen from config)")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(triggerCmd)
}
