package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/heyjunin/HLSgrab/pkg/history"
	"github.com/spf13/cobra"
)

var historyLimit int

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "history",
		Short:         "List recent jobs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run:           runHistory,
	}
	cmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of jobs to show")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fail(err)
		return
	}

	ctx := context.Background()
	store, err := history.Open(ctx, cfg.HistoryDB)
	if err != nil {
		fail(err)
		return
	}
	defer store.Close()

	entries, err := store.Recent(ctx, historyLimit)
	if err != nil {
		fail(err)
		return
	}
	if len(entries) == 0 {
		fmt.Println("No jobs recorded.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FINISHED\tOUTCOME\tPATH\tTOOK\tRESULT\tURL")
	for _, e := range entries {
		path := "remux"
		if e.UsedFallback {
			path = fmt.Sprintf("segments(%d)", e.Segments)
		}
		result := e.Path
		if e.Error != "" {
			result = e.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.FinishedAt.Local().Format(time.DateTime), e.Outcome, path,
			e.Duration().Round(time.Second), result, e.URL)
	}
	w.Flush()
}
