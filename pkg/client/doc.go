/*
Package client provides a Go client library for the Falcon HTTP API.

The client package wraps Falcon's REST and SSE endpoints with a convenient,
type-safe Go interface. It handles request encoding, error decoding, and
server-sent event parsing, and provides one method per API operation.

# Architecture

The client provides a high-level interface to the Falcon server:

	┌──────────────────── APPLICATION CODE ──────────────────────┐
	│                                                            │
	│  import "github.com/falconlabs/falcon/pkg/client"          │
	│                                                            │
	│  c, err := client.NewClient("http://localhost:8000")       │
	│  res, err := c.CreateWiki("https://github.com/o/r", "")    │
	│                                                            │
	└──────────────────┬─────────────────────────────────────────┘
	                   │
	┌──────────────────▼──── pkg/client ─────────────────────────┐
	│                                                            │
	│  ┌──────────────────────────────────────────────┐          │
	│  │           Unary methods                      │          │
	│  │  - JSON request/response per endpoint        │          │
	│  │  - {"detail": ...} errors → *APIError        │          │
	│  │  - 10s default timeout                       │          │
	│  └──────────────────┬───────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼───────────────────────────┐          │
	│  │           Streaming methods                  │          │
	│  │  - "event:"/"data:" SSE frame parsing        │          │
	│  │  - Frames delivered via FrameFunc callback   │          │
	│  │  - Lifetime bound to the caller's context    │          │
	│  └──────────────────┬───────────────────────────┘          │
	└─────────────────────┼──────────────────────────────────────┘
	                      │ HTTP (port 8000)
	                      ▼
	               Falcon API Server

# Usage

Creating a client:

	c, err := client.NewClient("http://localhost:8000")
	if err != nil {
		log.Fatal(err)
	}

Generating a wiki:

	res, err := c.CreateWiki("https://github.com/owner/repo", "")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Wiki %s is %s\n", res.WikiID, res.Status)

Following generation progress:

	err := c.StreamEvents(ctx, res.WikiID, func(f client.Frame) error {
		fmt.Printf("%s: %s\n", f.Event, f.Data)
		return nil
	})

Reading the result:

	pages, err := c.ListPages(res.WikiID)
	for _, p := range pages {
		fmt.Printf("- %s/%s: %s\n", p.Section, p.Slug, p.Title)
	}
	page, err := c.GetPage(res.WikiID, "architecture/overview")

Asking the exploration agent about an ingested repo:

	ing, err := c.IngestRepo("https://github.com/owner/repo")
	err = c.RepoChat(ctx, ing.RepoID, "Where is the entry point?", nil,
		func(f client.Frame) error {
			if f.Event == "text_delta" {
				var ev struct {
					Content string `json:"content"`
				}
				json.Unmarshal(f.Data, &ev)
				fmt.Print(ev.Content)
			}
			return nil
		})

# Error Handling

Non-2xx responses are returned as *APIError carrying the HTTP status and
the server's detail message:

	_, err := c.GetWiki(id)
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		fmt.Println("no such wiki")
	}

# Thread Safety

The client holds no mutable state and is safe for concurrent use; the
underlying http.Client pools and reuses connections.

# Integration Points

This package integrates with:

  - pkg/api: consumes the HTTP surface it serves
  - cmd/falcon: backs the wiki and repo CLI commands
*/
package client
