package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/falconlabs/falcon/pkg/client"
)

var wikiCmd = &cobra.Command{
	Use:   "wiki",
	Short: "Manage generated wikis",
}

var wikiCreateCmd = &cobra.Command{
	Use:   "create GITHUB_URL",
	Short: "Generate a wiki for a GitHub repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		branch, _ := cmd.Flags().GetString("branch")

		c, err := serverClient(cmd)
		if err != nil {
			return err
		}
		res, err := c.CreateWiki(args[0], branch)
		if err != nil {
			return fmt.Errorf("failed to create wiki: %v", err)
		}

		fmt.Printf("✓ Wiki %s (%s)\n", res.WikiID, res.Status)
		fmt.Printf("  Follow progress with: falcon wiki watch %s\n", res.WikiID)
		return nil
	},
}

var wikiListCmd = &cobra.Command{
	Use:   "list",
	Short: "List wikis",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		repo, _ := cmd.Flags().GetString("repo")

		c, err := serverClient(cmd)
		if err != nil {
			return err
		}
		wikis, err := c.ListWikis(owner, repo)
		if err != nil {
			return fmt.Errorf("failed to list wikis: %v", err)
		}
		if len(wikis) == 0 {
			fmt.Println("No wikis found.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "WIKI ID\tREPOSITORY\tBRANCH\tSTATUS\tPAGES")
		for _, w := range wikis {
			fmt.Fprintf(tw, "%s\t%s/%s\t%s\t%s\t%d/%d\n",
				w.WikiID, w.Owner, w.Repo, w.Branch, w.Status, w.CompletedPages, w.TotalPages)
		}
		return tw.Flush()
	},
}

var wikiStatusCmd = &cobra.Command{
	Use:   "status WIKI_ID",
	Short: "Show generation phase and page progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := serverClient(cmd)
		if err != nil {
			return err
		}
		st, err := c.GetWikiStatus(args[0])
		if err != nil {
			return fmt.Errorf("failed to get status: %v", err)
		}

		fmt.Printf("Status: %s\n", st.Status)
		if st.Progress != nil {
			fmt.Printf("Pages:  %d/%d\n", st.Progress.Completed, st.Progress.Total)
		}
		if st.StartedAt != nil {
			fmt.Printf("Started: %s\n", st.StartedAt.Local().Format(time.RFC3339))
		}
		return nil
	},
}

var wikiWatchCmd = &cobra.Command{
	Use:   "watch WIKI_ID",
	Short: "Follow generation events until the wiki completes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := serverClient(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Watching wiki %s (Ctrl+C to stop)...\n", args[0])
		err = c.StreamEvents(ctx, args[0], func(f client.Frame) error {
			fmt.Printf("%s: %s\n", f.Event, f.Data)
			return nil
		})
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("event stream failed: %v", err)
		}
		return nil
	},
}

var wikiPagesCmd = &cobra.Command{
	Use:   "pages WIKI_ID",
	Short: "List the pages of a wiki",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := serverClient(cmd)
		if err != nil {
			return err
		}
		pages, err := c.ListPages(args[0])
		if err != nil {
			return fmt.Errorf("failed to list pages: %v", err)
		}
		if len(pages) == 0 {
			fmt.Println("No pages found.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SLUG\tSECTION\tTITLE")
		for _, p := range pages {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Slug, p.Section, p.Title)
		}
		return tw.Flush()
	},
}

var wikiChatCmd = &cobra.Command{
	Use:   "chat WIKI_ID MESSAGE",
	Short: "Ask a question about a completed wiki",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		conversation, _ := cmd.Flags().GetString("conversation")

		c, err := serverClient(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var conversationID string
		err = c.WikiChat(ctx, args[0], conversation, args[1], func(f client.Frame) error {
			switch f.Event {
			case "thinking":
				var data struct {
					Content      string   `json:"content"`
					ContextPages []string `json:"context_pages"`
				}
				if err := json.Unmarshal(f.Data, &data); err != nil {
					return err
				}
				if len(data.ContextPages) > 0 {
					fmt.Printf("Context: %s\n\n", strings.Join(data.ContextPages, ", "))
				}
				fmt.Print(data.Content)
			case "complete":
				var data struct {
					ConversationID string `json:"conversation_id"`
				}
				if err := json.Unmarshal(f.Data, &data); err != nil {
					return err
				}
				conversationID = data.ConversationID
			case "error":
				var data struct {
					Message string `json:"message"`
				}
				_ = json.Unmarshal(f.Data, &data)
				return fmt.Errorf("%s", data.Message)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("chat failed: %v", err)
		}

		fmt.Println()
		if conversationID != "" {
			fmt.Printf("\nContinue with: falcon wiki chat %s \"...\" --conversation %s\n",
				args[0], conversationID)
		}
		return nil
	},
}

var wikiDeleteCmd = &cobra.Command{
	Use:   "delete WIKI_ID",
	Short: "Delete a wiki and all of its pages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := serverClient(cmd)
		if err != nil {
			return err
		}
		if err := c.DeleteWiki(args[0]); err != nil {
			return fmt.Errorf("failed to delete wiki: %v", err)
		}
		fmt.Printf("✓ Wiki deleted: %s\n", args[0])
		return nil
	},
}

func init() {
	wikiCmd.PersistentFlags().String("server", "http://localhost:8000", "Falcon server URL")

	wikiCmd.AddCommand(wikiCreateCmd)
	wikiCmd.AddCommand(wikiListCmd)
	wikiCmd.AddCommand(wikiStatusCmd)
	wikiCmd.AddCommand(wikiWatchCmd)
	wikiCmd.AddCommand(wikiPagesCmd)
	wikiCmd.AddCommand(wikiChatCmd)
	wikiCmd.AddCommand(wikiDeleteCmd)

	wikiCreateCmd.Flags().String("branch", "", "Branch to document (default: repository default branch)")
	wikiListCmd.Flags().String("owner", "", "Filter by repository owner")
	wikiListCmd.Flags().String("repo", "", "Filter by repository name")
	wikiChatCmd.Flags().String("conversation", "", "Conversation ID to continue")

	rootCmd.AddCommand(wikiCmd)
}

// serverClient builds an API client from the command's --server flag.
func serverClient(cmd *cobra.Command) (*client.Client, error) {
	server, _ := cmd.Flags().GetString("server")
	c, err := client.NewClient(server)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %v", err)
	}
	return c, nil
}
