package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/alertbell/internal/alert"
	"github.com/gyaneshwarpardhi/alertbell/internal/store"
)

func newAlertsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect and update the persisted alerts",
	}
	cmd.AddCommand(newAlertsListCmd(opts))
	cmd.AddCommand(newAlertsCountsCmd(opts))
	cmd.AddCommand(newAlertsReadAllCmd(opts))
	cmd.AddCommand(newAlertsToggleCmd(opts))
	return cmd
}

// withStore opens the configured store, runs fn and closes it again.
func (o *rootOptions) withStore(ctx context.Context, fn func(*store.Store) error) error {
	_, cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	log := o.newLogger(cfg.Log)
	backend, err := openBackend(cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	st := store.New(ctx, backend, store.Options{
		Key:         cfg.Store.Key,
		Categorizer: alert.NewCategorizer(cfg.CategoryAliases()),
		Logger:      log,
	})
	defer st.Close()
	return fn(st)
}

func newAlertsListCmd(opts *rootOptions) *cobra.Command {
	var category string
	var unread bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			active, ok := alert.ParseCategory(category)
			if !ok {
				return fmt.Errorf("unknown category %q", category)
			}
			return opts.withStore(cmd.Context(), func(st *store.Store) error {
				alerts := st.Visible(active, unread)
				if opts.output != "table" {
					return opts.printOutput(alerts)
				}
				t := opts.newTable("ID", "CATEGORY", "READ", "TIME", "MESSAGE")
				for _, a := range alerts {
					t.AddRow(a.ID, string(a.Type), formatRead(a.Read), a.Time.Local().Format("2006-01-02 15:04:05"), truncate(a.Message, 60))
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "filter by category (전체, 결제, 재고, 폐기, 일반 or english alias)")
	cmd.Flags().BoolVar(&unread, "unread", false, "show unread alerts only")
	return cmd
}

func newAlertsCountsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Show unread counts per category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd.Context(), func(st *store.Store) error {
				counts := st.UnreadCounts()
				if opts.output != "table" {
					return opts.printOutput(counts)
				}
				t := opts.newTable("CATEGORY", "UNREAD")
				for _, c := range append([]alert.Category{alert.All}, alert.Categories()...) {
					t.AddRow(string(c), fmt.Sprint(counts[c]))
				}
				t.Render()
				return nil
			})
		},
	}
}

func newAlertsReadAllCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "read-all",
		Short: "Mark every alert as read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd.Context(), func(st *store.Store) error {
				n := st.MarkAllRead(cmd.Context())
				if opts.output != "table" {
					return opts.printOutput(map[string]int{"marked": n})
				}
				_, err := fmt.Fprintf(opts.stdout, "%d alert(s) marked as read\n", n)
				return err
			})
		},
	}
}

func newAlertsToggleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Flip the read flag of one alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd.Context(), func(st *store.Store) error {
				a, ok := st.ToggleRead(cmd.Context(), args[0])
				if !ok {
					return fmt.Errorf("alert %q not found", args[0])
				}
				if opts.output != "table" {
					return opts.printOutput(a)
				}
				_, err := fmt.Fprintf(opts.stdout, "%s is now %s\n", a.ID, formatRead(a.Read))
				return err
			})
		},
	}
}

func formatRead(read bool) string {
	if read {
		return "read"
	}
	return "unread"
}
