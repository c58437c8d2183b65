package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/neur0map/yinx/internal/daemon"
	"github.com/neur0map/yinx/internal/retrieval"
	"github.com/neur0map/yinx/internal/types"
)

var (
	queryLimit   int
	querySession string
	queryTool    string
	querySince   string
	queryUntil   string
	queryJSON    bool
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Search the indexed captures",
	Long: `Search the indexed captures with hybrid semantic and keyword
retrieval. Each result carries provenance back to the command that
produced it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 0, "maximum results (default from config)")
	queryCmd.Flags().StringVar(&querySession, "session", "", "restrict to a session ID")
	queryCmd.Flags().StringVar(&queryTool, "tool", "", "restrict to a tool (e.g. nmap)")
	queryCmd.Flags().StringVar(&querySince, "since", "", "only captures after this time (RFC 3339)")
	queryCmd.Flags().StringVar(&queryUntil, "until", "", "only captures before this time (RFC 3339)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	filters, err := buildFilters()
	if err != nil {
		return err
	}

	client := daemon.NewClient(cfg.Daemon.SocketPath)
	result, err := client.Query(&daemon.QueryRequest{
		Text:    strings.Join(args, " "),
		Limit:   queryLimit,
		Filters: filters,
	})
	if err != nil {
		return err
	}

	if queryJSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(out))
		return nil
	}

	printResult(cmd, result)
	return nil
}

func buildFilters() (*retrieval.Filters, error) {
	filters := &retrieval.Filters{
		SessionID: types.ID(querySession),
		Tool:      queryTool,
	}
	if querySince != "" {
		since, err := time.Parse(time.RFC3339, querySince)
		if err != nil {
			return nil, fmt.Errorf("invalid --since value %q: %w", querySince, err)
		}
		filters.Since = since
	}
	if queryUntil != "" {
		until, err := time.Parse(time.RFC3339, queryUntil)
		if err != nil {
			return nil, fmt.Errorf("invalid --until value %q: %w", queryUntil, err)
		}
		filters.Until = until
	}
	if *filters == (retrieval.Filters{}) {
		return nil, nil
	}
	return filters, nil
}

func printResult(cmd *cobra.Command, result *retrieval.Result) {
	if len(result.Degraded) > 0 {
		color.Yellow("degraded: %s unavailable", strings.Join(result.Degraded, ", "))
	}
	if len(result.Chunks) == 0 {
		cmd.Println("no results")
		return
	}

	for i, chunk := range result.Chunks {
		p := chunk.Provenance
		header := fmt.Sprintf("%d. [%.3f]", i+1, chunk.Score)
		if p.Tool != "" {
			header += " " + color.CyanString(p.Tool)
		}
		cmd.Println(header)
		cmd.Printf("   %s\n", chunk.Text)
		cmd.Printf("   %s  %s  capture=%d  blob=%s\n",
			color.New(color.Faint).Sprint(p.Timestamp.Format(time.RFC3339)),
			color.New(color.Faint).Sprint(p.Command),
			p.CaptureID, p.BlobHash)
	}
}
