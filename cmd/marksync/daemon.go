package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marksync/marksync/internal/daemon"
	"github.com/marksync/marksync/internal/dashboard"
	"github.com/marksync/marksync/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "advanced",
	Short:   "Download on a schedule and accept sync triggers",
	Long: `Run in the foreground:

  - download once at start (daemon.run_on_start) and every daemon.interval
  - watch the config file and pick up a new interval without restarting
  - serve the dashboard on daemon.listen:
      /ws        WebSocket feed (sync_started, sync_complete, sync_failed, trigger)
      /health    health check
      /trigger   POST {"action": "BOOKMARK_SYNC_UPLOAD" | "BOOKMARK_SYNC_DOWNLOAD"}

Only one sync runs at a time and at most one more waits; extra triggers
are dropped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		interval, err := a.cfg.Daemon.IntervalDuration()
		if err != nil {
			return err
		}
		listen := a.cfg.Daemon.Listen
		if v, _ := cmd.Flags().GetString("listen"); v != "" {
			listen = v
		}

		var d *daemon.Daemon
		server := dashboard.NewServer(&dashboard.Config{
			Addr: listen,
			Trigger: func(action string) (bool, error) {
				return d.Trigger(action)
			},
			Logger: a.sink.Logger("dashboard"),
		})
		handler := dashboard.NewHandler(server, a.sink.Logger("dashboard"))

		d, err = daemon.New(a.engine(handler), &daemon.Config{
			Interval:   interval,
			RunOnStart: a.cfg.Daemon.RunOnStart,
			Configs:    dbOverride{a.file},
			ConfigPath: a.file.Path(),
			Logger:     a.sink.Logger("daemon"),
		})
		if err != nil {
			return err
		}

		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		defer func() {
			if err := server.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			}
		}()

		fmt.Printf("%s marksync daemon started\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Dashboard: http://%s\n", server.GetAddr())
		fmt.Printf("   WebSocket: ws://%s/ws\n", server.GetAddr())
		fmt.Printf("   Interval:  %v\n", interval)
		if !a.cfg.Sync.Complete() {
			fmt.Printf("%s Sync is not configured yet; runs are skipped until 'marksync configure' completes it\n", ui.RenderWarn("⚠"))
		}
		fmt.Println("\nPress Ctrl+C to stop...")

		if err := d.Start(ctx); err != nil {
			return err
		}
		fmt.Println("\nDaemon stopped")
		return nil
	},
}

func init() {
	daemonCmd.Flags().String("listen", "", "dashboard address (default daemon.listen from config)")

	rootCmd.AddCommand(daemonCmd)
}
