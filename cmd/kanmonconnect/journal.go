package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"kanmonconnect/internal/config"
	"kanmonconnect/internal/journal"

	"github.com/spf13/cobra"
)

func openJournal(cmd *cobra.Command) (*journal.Store, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Journal.Enabled {
		return nil, nil, fmt.Errorf("journal is disabled (journal.enabled = false)")
	}
	store, err := journal.Open(cfg.Journal.DBPath, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func journalCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the record of past sessions",
	}
	cmd.PersistentFlags().IntVarP(&limit, "limit", "n", 0, "maximum rows to print (0 = default)")

	cmd.AddCommand(&cobra.Command{
		Use:   "sessions",
		Short: "List recent sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openJournal(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			sessions, err := store.Sessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tENDED\tMESSAGES\tURL")
			for _, s := range sessions {
				ended := "-"
				if s.EndedAt != nil {
					ended = s.EndedAt.Local().Format(time.DateTime)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					s.ID, s.StartedAt.Local().Format(time.DateTime), ended, s.Messages, s.URL)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "messages [sessionID]",
		Short: "Print the bridge traffic of one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openJournal(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			msgs, err := store.Messages(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				queued := ""
				if m.Queued {
					queued = " (queued)"
				}
				fmt.Printf("%s %-3s %s%s %s\n",
					m.CreatedAt.Local().Format(time.TimeOnly), m.Direction, m.Action, queued, m.Payload)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "events",
		Short: "List events delivered to the consumer, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openJournal(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			events, err := store.Events(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, e := range events {
				session := e.SessionID
				if session == "" {
					session = "-"
				}
				fmt.Printf("%s %s %s %s\n",
					e.CreatedAt.Local().Format(time.DateTime), session, e.EventType, e.Payload)
			}
			return nil
		},
	})

	var days int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete rows older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openJournal(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			if days <= 0 {
				days = cfg.Journal.RetentionDays
			}
			n, err := store.Prune(cmd.Context(), days)
			if err != nil {
				return err
			}
			fmt.Printf("pruned %d rows older than %d days\n", n, days)
			return nil
		},
	}
	prune.Flags().IntVar(&days, "days", 0, "retention in days (default: journal.retentionDays)")
	cmd.AddCommand(prune)

	return cmd
}
