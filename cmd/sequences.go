// File: cmd/sequences.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/observability"
	"github.com/xkilldash9x/pagepilot/internal/service"
	"github.com/xkilldash9x/pagepilot/internal/store"
)

var findLimit int

var sequencesCmd = &cobra.Command{
	Use:   "sequences",
	Short: "Inspect and manage validated action sequences.",
}

var sequencesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sequences, most recently used first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
			sequences, err := st.ListSequences(ctx)
			if err != nil {
				return err
			}
			printSequences(sequences)
			return nil
		})
	},
}

var sequencesFindCmd = &cobra.Command{
	Use:   `find "task description"`,
	Short: "Find sequences similar to a task description.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
			sequences, err := st.FindSimilar(ctx, args[0], findLimit)
			if err != nil {
				return err
			}
			printSequences(sequences)
			return nil
		})
	},
}

var sequencesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored sequence.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
			if err := st.DeleteSequence(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted sequence %s\n", args[0])
			return nil
		})
	},
}

var sequencesReplayCmd = &cobra.Command{
	Use:   "replay <id>",
	Short: "Replay a validated sequence without oracle involvement.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		components, err := service.NewComponentFactory().Create(ctx, cfg, observability.GetLogger())
		if err != nil {
			return err
		}
		defer components.Shutdown()

		results, err := components.Supervisor.ExecuteValidated(ctx, args[0])
		for _, r := range results {
			marker := "ok"
			if !r.Success {
				marker = "FAILED"
			}
			fmt.Printf("  %-6s %s (%s)\n", marker, r.Detail, r.Duration.Round(time.Millisecond))
			if r.Error != "" {
				fmt.Printf("         %s\n", r.Error)
			}
		}
		if err != nil {
			return err
		}
		fmt.Printf("Replayed %d actions successfully.\n", len(results))
		return nil
	},
}

func init() {
	sequencesFindCmd.Flags().IntVar(&findLimit, "limit", 5, "maximum number of matches")
	sequencesCmd.AddCommand(sequencesListCmd, sequencesFindCmd, sequencesDeleteCmd, sequencesReplayCmd)
	rootCmd.AddCommand(sequencesCmd)
}

// withStore opens just the database-backed store; sequence inspection does
// not need a browser or an API key.
func withStore(ctx context.Context, fn func(context.Context, *store.Store) error) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("database URL is not configured (hint: check PAGEPILOT_DATABASE_URL)")
	}
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to create database connection pool: %w", err)
	}
	defer pool.Close()

	st, err := store.New(ctx, pool, observability.GetLogger())
	if err != nil {
		return err
	}
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	return fn(ctx, st)
}

func printSequences(sequences []schemas.ValidatedSequence) {
	if len(sequences) == 0 {
		fmt.Println("No sequences stored.")
		return
	}
	for _, seq := range sequences {
		fmt.Printf("%s  freq=%-3d  %s\n", seq.ID, seq.Frequency, seq.Description)
		fmt.Printf("    %d actions, url=%s, last used %s\n",
			len(seq.Actions), seq.URL, seq.LastUsed.Format(time.RFC3339))
	}
}
