package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/engineeringwithtemi/aide/internal/config"
)

// --- workspace ---

var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	Aliases: []string{"ws"},
	Short:   "Manage workspaces",
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := loadAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/workspaces")
		if err != nil {
			return err
		}

		var workspaces []struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &workspaces); err != nil {
			return err
		}

		if len(workspaces) == 0 {
			fmt.Println("No workspaces yet. Create one with: aide workspace create <name>")
			return nil
		}
		for _, ws := range workspaces {
			fmt.Printf("%s  %s  %s\n", colorize(colorCyan, ws.ID[:8]), ws.CreatedAt, ws.Name)
		}
		return nil
	},
}

var workspaceCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a workspace",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.Join(args, " ")

		client, err := loadAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/workspaces", map[string]string{"name": name})
		if err != nil {
			return err
		}

		var ws struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &ws); err != nil {
			return err
		}

		printSuccess("Created workspace %s (%s)", name, ws.ID)
		return nil
	},
}

var workspaceDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a workspace and everything in it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This deletes the workspace, its sources, labs, and chat history. Use --confirm to proceed.")
			return nil
		}

		client, err := loadAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/v1/workspaces/"+args[0])
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		printSuccess("Deleted workspace %s", args[0])
		return nil
	},
}

func init() {
	workspaceDeleteCmd.Flags().Bool("confirm", false, "confirm deletion")
	workspaceCmd.AddCommand(workspaceListCmd)
	workspaceCmd.AddCommand(workspaceCreateCmd)
	workspaceCmd.AddCommand(workspaceDeleteCmd)
}

// --- source ---

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Manage content sources",
}

var sourceAddCmd = &cobra.Command{
	Use:   "add <workspace-id> <file.pdf>",
	Short: "Add a PDF to a workspace and upload its content",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		workspaceID, filePath := args[0], args[1]
		title, _ := cmd.Flags().GetString("title")
		if title == "" {
			title = strings.TrimSuffix(filepath.Base(filePath), ".pdf")
		}

		client, err := loadAPIClient()
		if err != nil {
			return err
		}

		printStep("Creating source %q...", title)
		resp, err := client.post(cmd.Context(), "/v1/workspaces/"+workspaceID+"/sources",
			map[string]string{"type": "pdf", "title": title})
		if err != nil {
			return err
		}
		var src struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &src); err != nil {
			return err
		}

		printStep("Uploading %s...", filePath)
		uploadResp, err := client.upload(cmd.Context(), "/v1/sources/"+src.ID+"/content", filePath)
		if err != nil {
			return err
		}
		var view struct {
			Chapters []json.RawMessage `json:"chapters"`
		}
		if err := decodeJSON(uploadResp, &view); err != nil {
			return err
		}

		printSuccess("Source %s ready (%d chapters)", src.ID, len(view.Chapters))
		return nil
	},
}

var sourceListCmd = &cobra.Command{
	Use:   "list <workspace-id>",
	Short: "List the sources in a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := loadAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/workspaces/"+args[0]+"/sources")
		if err != nil {
			return err
		}

		var sources []struct {
			ID          string `json:"id"`
			Type        string `json:"type"`
			Title       string `json:"title"`
			StoragePath string `json:"storage_path"`
		}
		if err := decodeJSON(resp, &sources); err != nil {
			return err
		}

		if len(sources) == 0 {
			fmt.Println("No sources in this workspace.")
			return nil
		}
		for _, s := range sources {
			state := "ready"
			if s.StoragePath == "" {
				state = "empty"
			}
			fmt.Printf("%s  %-4s  %-6s  %s\n", colorize(colorCyan, s.ID[:8]), s.Type, state, s.Title)
		}
		return nil
	},
}

var sourceShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a source's chapter structure as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := loadAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/sources/"+args[0])
		if err != nil {
			return err
		}

		var view any
		if err := decodeJSON(resp, &view); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	},
}

func init() {
	sourceAddCmd.Flags().String("title", "", "title for the source (default: file name)")
	sourceCmd.AddCommand(sourceAddCmd)
	sourceCmd.AddCommand(sourceListCmd)
	sourceCmd.AddCommand(sourceShowCmd)
}

// --- labs ---

var labsCmd = &cobra.Command{
	Use:   "labs",
	Short: "Inspect generated labs",
}

var labsListCmd = &cobra.Command{
	Use:   "list <source-id>",
	Short: "List the labs generated from a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := loadAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/sources/"+args[0]+"/labs")
		if err != nil {
			return err
		}

		var labs []struct {
			ID        string `json:"id"`
			Type      string `json:"type"`
			Status    string `json:"status"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &labs); err != nil {
			return err
		}

		if len(labs) == 0 {
			fmt.Println("No labs generated from this source yet.")
			return nil
		}
		for _, l := range labs {
			fmt.Printf("%s  %-14s  %-12s  %s\n",
				colorize(colorCyan, l.ID[:8]), l.Type, l.Status, l.CreatedAt)
		}
		return nil
	},
}

var labsGenerateCmd = &cobra.Command{
	Use:   "generate <source-id> <lab-type>",
	Short: "Generate a lab from a source",
	Long: `Generate a lab from a source.

Examples:
  aide labs generate 4f8a12bc quiz_lab
  aide labs generate 4f8a12bc flashcard_lab --chapter ch_3`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sourceID, labType := args[0], args[1]
		chapter, _ := cmd.Flags().GetString("chapter")

		client, err := loadAPIClient()
		if err != nil {
			return err
		}

		body := map[string]string{"lab_type": labType}
		if chapter != "" {
			body["chapter_id"] = chapter
		}

		printStep("Generating %s...", labType)
		resp, err := client.post(cmd.Context(), "/v1/sources/"+sourceID+"/labs", body)
		if err != nil {
			return err
		}

		var l struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &l); err != nil {
			return err
		}

		printSuccess("Generated lab %s", l.ID)
		return nil
	},
}

func init() {
	labsGenerateCmd.Flags().String("chapter", "", "restrict generation to one chapter id")
	labsCmd.AddCommand(labsListCmd)
	labsCmd.AddCommand(labsGenerateCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration override",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}

		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
