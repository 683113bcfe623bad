package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	appbilling "github.com/notaria/backend/internal/application/billing"
	"github.com/notaria/backend/internal/infrastructure/feed"
	"github.com/spf13/cobra"
)

func newImportCmd(with runWithServices) *cobra.Command {
	var (
		kindFlag string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "import <file.xml>",
		Short: "Ingest one Koinor XML export",
		Example: `  billingctl import estado_cuenta_2026-01-19.xml
  billingctl import cxc.xml --type snapshot --json`,
		Args: cobra.ExactArgs(1),
		RunE: with(func(cmd *cobra.Command, args []string, svc *services) error {
			kind, err := feed.ParseKind(kindFlag)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			summary, err := svc.imports.Run(cmd.Context(), appbilling.FeedFile{
				Name: filepath.Base(args[0]),
				Data: data,
				Kind: kind,
			})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, summary)
			}
			printSummary(cmd, summary)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&kindFlag, "type", "t", "", "Export kind: ledger, movement or snapshot (sniffed when omitted)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run summary as JSON")
	return cmd
}

func newStatusCmd(with runWithServices) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the most recent sync run and whether ingestion is healthy",
		Args:  cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, _ []string, svc *services) error {
			status, err := svc.sync.Status(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			w := out(cmd)
			if status.LastSync == nil {
				fmt.Fprintln(w, "No sync runs recorded")
				return nil
			}
			health := "UNHEALTHY"
			if status.Healthy {
				health = "healthy"
			}
			last := status.LastSync
			fmt.Fprintf(w, "Last run:  %s %s (%s)\n", last.ID, last.FileName, last.Status)
			fmt.Fprintf(w, "Started:   %s\n", last.StartedAt.Local().Format(time.DateTime))
			if status.MinutesSinceLastSync != nil {
				fmt.Fprintf(w, "Age:       %d min\n", *status.MinutesSinceLastSync)
			}
			fmt.Fprintf(w, "Health:    %s\n", health)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")
	return cmd
}

func newHistoryCmd(with runWithServices) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent sync runs, newest first",
		Args:  cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, _ []string, svc *services) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			logs, err := svc.sync.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, logs)
			}
			tw := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tTYPE\tSTATUS\tROWS\tCREATED\tUPDATED\tERRORS\tFILE")
			for _, l := range logs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
					l.StartedAt.Local().Format(time.DateTime), l.FileType, l.Status,
					l.Counters.TotalRows, l.Counters.Created, l.Counters.Updated, l.Counters.Errors, l.FileName)
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of runs to show (server default when 0)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the runs as JSON")
	return cmd
}

func printSummary(cmd *cobra.Command, s *appbilling.RunSummary) {
	w := out(cmd)
	fmt.Fprintf(w, "Run %s: %s %s (%s)\n", s.SyncID, s.FileType, s.FileName, s.Status)
	fmt.Fprintf(w, "  rows %d  created %d  updated %d  unchanged %d  skipped %d  errors %d\n",
		s.TotalRows, s.Created, s.Updated, s.Unchanged, s.Skipped, s.Errors)
	fmt.Fprintf(w, "  documents linked %d  superseded %d  %d ms\n", s.DocumentsLinked, s.Superseded, s.DurationMs)
	for _, e := range s.ErrorSample {
		fmt.Fprintf(w, "  ! %s: %s\n", e.Record, e.Message)
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(out(cmd))
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
