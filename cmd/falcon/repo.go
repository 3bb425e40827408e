package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/falconlabs/falcon/pkg/client"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage ingested repositories",
}

var repoAddCmd = &cobra.Command{
	Use:   "add GIT_URL",
	Short: "Clone a repository into the virtual filesystem",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := serverClient(cmd)
		if err != nil {
			return err
		}

		fmt.Printf("Ingesting %s...\n", args[0])
		res, err := c.IngestRepo(args[0])
		if err != nil {
			return fmt.Errorf("failed to ingest repo: %v", err)
		}

		if res.FileCount > 0 {
			fmt.Printf("✓ Repo %s is %s (%d files)\n", res.RepoID, res.Status, res.FileCount)
		} else {
			fmt.Printf("✓ Repo %s is %s\n", res.RepoID, res.Status)
		}
		return nil
	},
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := serverClient(cmd)
		if err != nil {
			return err
		}
		repos, err := c.ListRepos()
		if err != nil {
			return fmt.Errorf("failed to list repos: %v", err)
		}
		if len(repos) == 0 {
			fmt.Println("No repos found.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "REPO ID\tNAME\tSTATUS\tFILES\tINGESTED")
		for _, r := range repos {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
				r.RepoID, r.Name, r.Status, r.FileCount,
				r.IngestedAt.Local().Format(time.RFC3339))
		}
		return tw.Flush()
	},
}

var repoRmCmd = &cobra.Command{
	Use:   "rm REPO_ID",
	Short: "Remove an ingested repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := serverClient(cmd)
		if err != nil {
			return err
		}
		if err := c.DeleteRepo(args[0]); err != nil {
			return fmt.Errorf("failed to remove repo: %v", err)
		}
		fmt.Printf("✓ Repo removed: %s\n", args[0])
		return nil
	},
}

var repoAskCmd = &cobra.Command{
	Use:   "ask REPO_ID QUESTION",
	Short: "Ask the exploration agent a question about a repository",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := serverClient(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = c.RepoChat(ctx, args[0], args[1], nil, func(f client.Frame) error {
			var ev struct {
				Type      string          `json:"type"`
				Name      string          `json:"name"`
				Arguments json.RawMessage `json:"arguments"`
				Content   string          `json:"content"`
			}
			if err := json.Unmarshal(f.Data, &ev); err != nil {
				return err
			}

			switch ev.Type {
			case "text_delta":
				fmt.Print(ev.Content)
			case "tool_start":
				fmt.Printf("\n[%s %s]\n", ev.Name, ev.Arguments)
			case "error":
				return fmt.Errorf("%s", ev.Content)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("chat failed: %v", err)
		}

		fmt.Println()
		return nil
	},
}

func init() {
	repoCmd.PersistentFlags().String("server", "http://localhost:8000", "Falcon server URL")

	repoCmd.AddCommand(repoAddCmd)
	repoCmd.AddCommand(repoListCmd)
	repoCmd.AddCommand(repoRmCmd)
	repoCmd.AddCommand(repoAskCmd)

	rootCmd.AddCommand(repoCmd)
}
