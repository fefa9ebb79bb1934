package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/marksync/marksync/internal/config"
	"github.com/marksync/marksync/internal/remote"
	"github.com/marksync/marksync/internal/store"
	"github.com/marksync/marksync/internal/tree"
	"github.com/marksync/marksync/internal/ui"
)

var configureCmd = &cobra.Command{
	Use:     "configure",
	GroupID: "setup",
	Short:   "Choose the webhook, the local folder and the remote folder",
	Long: `Edit the configuration file.

On a terminal with no flags given, an interactive form asks for the webhook
and headers, then offers the local folders (by id) and the remote folders
(by address path) to pick from. Otherwise the flags are applied directly:

  marksync configure --webhook https://store.example.com/bookmarks \
      --header "Authorization: Bearer s3cret" \
      --mount-on 1 --remote-root "[0].children[2]"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		cfg := *a.cfg
		if dbPath != "" {
			// Keep the configured store path; --db only applies to this run.
			if fileCfg, err := a.file.Load(); err == nil {
				cfg.Store.Path = fileCfg.Store.Path
			}
		}

		noInput, _ := cmd.Flags().GetBool("no-input")
		interactive := !noInput && !anyChanged(cmd, configureFlags...) && term.IsTerminal(int(os.Stdin.Fd()))

		if interactive {
			if err := configureInteractive(cmd.Context(), a, &cfg); err != nil {
				return err
			}
		} else if err := configureFromFlags(cmd, &cfg); err != nil {
			return err
		}

		if err := a.file.Save(&cfg); err != nil {
			return err
		}

		fmt.Printf("%s Saved %s\n", ui.RenderPass("✓"), a.file.Path())
		fmt.Printf("   webhook:     %s\n", orUnset(cfg.Sync.WebHook))
		fmt.Printf("   mount_on:    %s\n", orUnset(cfg.Sync.MountOn))
		fmt.Printf("   remote_root: %s\n", orUnset(cfg.Sync.RemoteRoot))
		if !cfg.Sync.Complete() {
			fmt.Printf("%s Sync stays disabled until all three are set\n", ui.RenderWarn("⚠"))
		}
		return nil
	},
}

func configureFromFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("webhook") {
		v, _ := flags.GetString("webhook")
		if err := validateWebhook(v); err != nil {
			return err
		}
		cfg.Sync.WebHook = strings.TrimRight(v, "/")
	}
	if flags.Changed("header") {
		lines, _ := flags.GetStringArray("header")
		headers, err := parseHeaders(strings.Join(lines, "\n"))
		if err != nil {
			return err
		}
		cfg.Sync.Headers = headers
	}
	if flags.Changed("mount-on") {
		cfg.Sync.MountOn, _ = flags.GetString("mount-on")
	}
	if flags.Changed("remote-root") {
		v, _ := flags.GetString("remote-root")
		if _, err := tree.ParseAddress(v); err != nil {
			return err
		}
		cfg.Sync.RemoteRoot = v
	}
	if flags.Changed("interval") {
		cfg.Daemon.Interval, _ = flags.GetString("interval")
	}
	if flags.Changed("listen") {
		cfg.Daemon.Listen, _ = flags.GetString("listen")
	}
	if flags.Changed("log-file") {
		cfg.Logging.File, _ = flags.GetString("log-file")
	}
	return nil
}

func configureInteractive(ctx context.Context, a *app, cfg *config.Config) error {
	webhook := cfg.Sync.WebHook
	headersText := formatHeaders(cfg.Sync.Headers)

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Webhook").
				Description("Base URL of the remote store").
				Placeholder("https://store.example.com/bookmarks").
				Value(&webhook).
				Validate(validateWebhook),
			huh.NewText().
				Title("Headers").
				Description("Sent with every request, one per line: Name: value").
				Value(&headersText).
				Validate(func(s string) error {
					_, err := parseHeaders(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	headers, _ := parseHeaders(headersText)
	cfg.Sync.WebHook = strings.TrimRight(webhook, "/")
	cfg.Sync.Headers = headers

	roots, err := a.db.GetTree(ctx)
	if err != nil {
		return err
	}
	var localOpts []huh.Option[string]
	for _, f := range tree.Flatten(roots) {
		if f.ID == store.RootID {
			continue
		}
		localOpts = append(localOpts, huh.NewOption(f.Label, f.ID))
	}

	mountOn := cfg.Sync.MountOn
	remoteRoot := cfg.Sync.RemoteRoot
	interval := cfg.Daemon.Interval

	fields := []huh.Field{
		huh.NewSelect[string]().
			Title("Local folder (mount_on)").
			Options(localOpts...).
			Value(&mountOn),
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	client := remote.New(cfg.Sync.WebHook, cfg.Sync.Headers, &remote.Config{Logger: a.sink.Logger("remote")})
	remoteNodes, err := client.FetchTree(fetchCtx)
	if err != nil {
		fmt.Printf("%s Could not list remote folders: %v\n", ui.RenderWarn("⚠"), err)
		fields = append(fields, huh.NewInput().
			Title("Remote folder (remote_root)").
			Description("Address path such as [0].children[1]").
			Value(&remoteRoot).
			Validate(func(s string) error {
				_, err := tree.ParseAddress(s)
				return err
			}))
	} else {
		var remoteOpts []huh.Option[string]
		for _, f := range tree.Flatten(remoteNodes) {
			remoteOpts = append(remoteOpts, huh.NewOption(f.Label+"  "+f.AddressPath, f.AddressPath))
		}
		fields = append(fields, huh.NewSelect[string]().
			Title("Remote folder (remote_root)").
			Options(remoteOpts...).
			Value(&remoteRoot))
	}

	fields = append(fields, huh.NewInput().
		Title("Download interval").
		Value(&interval).
		Validate(func(s string) error {
			_, err := config.Daemon{Interval: s}.IntervalDuration()
			return err
		}))

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return err
	}

	cfg.Sync.MountOn = mountOn
	cfg.Sync.RemoteRoot = remoteRoot
	cfg.Daemon.Interval = interval
	return nil
}

var configureFlags = []string{"webhook", "header", "mount-on", "remote-root", "interval", "listen", "log-file"}

func anyChanged(cmd *cobra.Command, names ...string) bool {
	for _, name := range names {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

func validateWebhook(s string) error {
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("webhook must be an http(s) URL")
	}
	return nil
}

// parseHeaders reads "Name: value" lines. Blank lines are ignored.
func parseHeaders(s string) (map[string]string, error) {
	headers := make(map[string]string)
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("header %q is not in 'Name: value' form", line)
		}
		headers[name] = strings.TrimSpace(value)
	}
	if len(headers) == 0 {
		return nil, nil
	}
	return headers, nil
}

func formatHeaders(headers map[string]string) string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s: %s\n", name, headers[name])
	}
	return b.String()
}

func init() {
	f := configureCmd.Flags()
	f.String("webhook", "", "remote store base URL")
	f.StringArray("header", nil, "request header as 'Name: value' (repeatable, replaces all headers)")
	f.String("mount-on", "", "local folder id")
	f.String("remote-root", "", "remote folder address path, e.g. [0].children[1]")
	f.String("interval", "", "download interval, e.g. 30m")
	f.String("listen", "", "daemon dashboard address")
	f.String("log-file", "", "rotating log file")
	f.Bool("no-input", false, "never prompt")

	rootCmd.AddCommand(configureCmd)
}
