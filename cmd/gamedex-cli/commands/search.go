package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gamedex-backend/lib/catalog"
	"gamedex-backend/lib/restyutil"
	"gamedex-backend/lib/scrapers/ankergames"
	"gamedex-backend/lib/scrapers/gamebounty"
	"gamedex-backend/lib/scrapers/steamunderground"
	"gamedex-backend/lib/telemetry"
	"gamedex-backend/services/search"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	searchTimeout *time.Duration
	searchJson    *bool
	searchVerbose *bool
	debugHttpDir  *string
)

func init() {
	searchTimeout = searchCmd.Flags().Duration("timeout", time.Second*60, "Deadline for the whole aggregation run.")
	searchJson = searchCmd.Flags().Bool("json", false, "Print full records as json instead of a table.")
	searchVerbose = searchCmd.Flags().BoolP("verbose", "v", false, "Enable debug logging.")
	debugHttpDir = searchCmd.Flags().String("debug-http", "", "Dump every raw http exchange into this directory.")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Searches all sources for a game and prints the aggregated results.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*searchVerbose)
		if *debugHttpDir != "" {
			steamunderground.SetRestyInstrumentOutput(
				restyutil.NewFilesystemOutput(filepath.Join(*debugHttpDir, "steamunderground")),
			)
			ankergames.SetRestyInstrumentOutput(
				restyutil.NewFilesystemOutput(filepath.Join(*debugHttpDir, "ankergames")),
			)
			gamebounty.SetRestyInstrumentOutput(
				restyutil.NewFilesystemOutput(filepath.Join(*debugHttpDir, "gamebounty")),
			)
		}

		service, err := search.New(search.Options{})
		if err != nil {
			slog.Error("failed to initialize search service", "err", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), *searchTimeout)
		defer cancel()

		t1 := time.Now()
		records := service.Search(ctx, args[0])
		slog.Info("aggregation finished", "results", len(records), "seconds", time.Since(t1).Seconds())

		if *searchJson {
			out, err := json.MarshalIndent(records, "", "  ")
			if err != nil {
				slog.Error("failed to marshal records", "err", err)
				os.Exit(1)
			}
			fmt.Println(string(out))
			return
		}

		renderTable(records)
	},
}

func renderTable(records []catalog.Record) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "Source", "Title", "Downloads", "Url"})
	for i, r := range records {
		hosts := []string{}
		for _, d := range r.Downloads {
			hosts = append(hosts, d.Host)
		}
		t.AppendRow(table.Row{
			i + 1,
			r.Source,
			r.Title,
			strings.Join(hosts, ", "),
			r.Url,
		})
	}
	t.Render()
}
