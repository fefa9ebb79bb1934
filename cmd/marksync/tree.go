package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/marksync/marksync/internal/tree"
	"github.com/marksync/marksync/internal/ui"
)

var treeCmd = &cobra.Command{
	Use:     "tree",
	GroupID: "tree",
	Short:   "Inspect and edit the local bookmark tree",
}

var treeShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Draw the local (or remote) tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if fromRemote, _ := cmd.Flags().GetBool("remote"); fromRemote {
			client, err := a.remoteClient()
			if err != nil {
				return err
			}
			nodes, err := client.FetchTree(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(ui.RenderTree(a.cfg.Sync.WebHook, nodes))
			return nil
		}

		id, _ := cmd.Flags().GetString("id")
		node, err := a.db.GetSubTree(cmd.Context(), id)
		if err != nil {
			return err
		}
		label := node.Title + "/"
		if node.ID == "0" {
			label = "/"
		}
		fmt.Println(ui.RenderTree(label, node.Children))
		return nil
	},
}

var treeExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print a folder's children as portable JSON or YAML",
	Long: `Print the children of a local folder in the portable shape sent on
upload (title, url, children; no ids). Defaults to the mount point.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		id, _ := cmd.Flags().GetString("id")
		if id == "" {
			id = a.cfg.Sync.MountOn
		}
		if id == "" {
			return fmt.Errorf("no folder given and mount_on is not configured")
		}

		node, err := a.db.GetSubTree(cmd.Context(), id)
		if err != nil {
			return err
		}
		nodes := tree.Serialize(node.Children)
		if nodes == nil {
			nodes = []tree.PortableNode{}
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(nodes)
		case "yaml":
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			if err := enc.Encode(nodes); err != nil {
				return err
			}
			return enc.Close()
		default:
			return fmt.Errorf("unknown format %q (want json or yaml)", format)
		}
	},
}

var treeAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a folder or bookmark",
	Long: `Create a node under --parent. With --url the node is a bookmark,
otherwise a folder. Without --index it is appended.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		req := tree.CreateRequest{}
		req.ParentID, _ = cmd.Flags().GetString("parent")
		req.Title, _ = cmd.Flags().GetString("title")
		req.URL, _ = cmd.Flags().GetString("url")
		if cmd.Flags().Changed("index") {
			index, _ := cmd.Flags().GetInt("index")
			req.Index = &index
		}

		node, err := a.db.Create(cmd.Context(), req)
		if err != nil {
			return err
		}
		kind := "bookmark"
		if node.IsFolder() {
			kind = "folder"
		}
		fmt.Printf("%s Created %s %q with id %s at index %d\n", ui.RenderPass("✓"), kind, node.Title, node.ID, node.Index)
		return nil
	},
}

var treeRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a node and everything under it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.db.RemoveTree(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("%s Removed %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

var foldersCmd = &cobra.Command{
	Use:     "folders",
	GroupID: "tree",
	Short:   "List folders usable as mount_on (local) or remote_root (remote)",
}

var foldersLocalCmd = &cobra.Command{
	Use:   "local",
	Short: "List local folders with their ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		roots, err := a.db.GetTree(cmd.Context())
		if err != nil {
			return err
		}
		return printFolders(cmd, tree.Flatten(roots), true)
	},
}

var foldersRemoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "List remote folders with their address paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		client, err := a.remoteClient()
		if err != nil {
			return err
		}
		nodes, err := client.FetchTree(cmd.Context())
		if err != nil {
			return err
		}
		return printFolders(cmd, tree.Flatten(nodes), false)
	},
}

func printFolders(cmd *cobra.Command, entries []tree.FolderEntry, local bool) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	for _, e := range entries {
		key := e.AddressPath
		if local {
			key = e.ID
		}
		fmt.Printf("%s %s\n", ui.RenderAccent(fmt.Sprintf("%-24s", key)), e.Label)
	}
	return nil
}

func init() {
	treeShowCmd.Flags().String("id", "0", "folder to draw")
	treeShowCmd.Flags().Bool("remote", false, "draw the remote tree instead")

	treeExportCmd.Flags().String("id", "", "folder to export (default mount_on)")
	treeExportCmd.Flags().String("format", "json", "output format: json or yaml")

	treeAddCmd.Flags().String("parent", "", "parent folder id")
	treeAddCmd.Flags().String("title", "", "title")
	treeAddCmd.Flags().String("url", "", "url (makes the node a bookmark)")
	treeAddCmd.Flags().Int("index", 0, "position among the parent's children")
	_ = treeAddCmd.MarkFlagRequired("parent")

	foldersCmd.PersistentFlags().Bool("json", false, "print JSON")

	treeCmd.AddCommand(treeShowCmd, treeExportCmd, treeAddCmd, treeRmCmd)
	foldersCmd.AddCommand(foldersLocalCmd, foldersRemoteCmd)

	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(foldersCmd)
}
