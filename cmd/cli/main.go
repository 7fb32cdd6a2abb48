package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"gamehub/internal/app"
	"gamehub/internal/auth"
	"gamehub/internal/catalog"
	"gamehub/internal/jobs"
	"gamehub/pkg/database"
	"gamehub/pkg/logger"
	"gamehub/pkg/models"
	"gamehub/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// newApp loads config and wires the app against the local stores. The
// caller must defer a.Close().
func newApp() (*app.App, error) {
	cfg, err := utils.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a, err := app.New(cfg, lg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func readSnapshot(path string) (*models.CatalogSnapshot, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return catalog.DecodeSnapshot(data)
}

var rootCmd = &cobra.Command{
	Use:          "gamehub",
	Short:        "Game library catalog and enrichment",
	SilenceUsage: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := utils.Load()
		if err != nil {
			return err
		}
		db, err := database.Open(database.Config{Path: cfg.DBPath})
		if err != nil {
			return err
		}
		defer db.Close()
		if err := database.Migrate(db); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Database at %s is up to date\n", cfg.DBPath)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import a platform catalog snapshot (FILE or - for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := readSnapshot(args[0])
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Catalog.Import(cmd.Context(), s)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync FILE",
	Short: "Unlink games no longer present in a platform snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := readSnapshot(args[0])
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Catalog.Sync(cmd.Context(), s)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var importCSVCmd = &cobra.Command{
	Use:   "import-csv FILE",
	Short: "Import a store library exported as CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, _ := cmd.Flags().GetString("platform")
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		s, err := catalog.ReadSnapshotCSV(f, models.SourceType(platform))
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Catalog.Import(cmd.Context(), s)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var exportCSVCmd = &cobra.Command{
	Use:   "export-csv FILE",
	Short: "Write the whole catalog as CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := os.MkdirAll(filepath.Dir(args[0]), 0o755); err != nil {
			return err
		}
		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		n, err := catalog.WriteGamesCSV(cmd.Context(), a.Games, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d games to %s\n", n, args[0])
		return nil
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Run bulk enrichment jobs",
}

var jobsRunCmd = &cobra.Command{
	Use:       "run TYPE",
	Short:     "Run a job to completion, printing progress",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(jobs.TypeGenres), string(jobs.TypeCovers), string(jobs.TypeRatings), string(jobs.TypeLibraryImport)},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		typ := jobs.Type(args[0])
		spec, ok := a.Enrich.Spec(typ)
		if !ok {
			return fmt.Errorf("unknown job type %q", args[0])
		}

		info, err := a.Jobs.Start(cmd.Context(), spec)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Started %s run %s: %d items, about %.1f minutes\n", typ, info.RunID, info.Total, info.EstimatedMinutes)

		every, _ := cmd.Flags().GetDuration("every")
		done := make(chan error, 1)
		go func() { done <- a.Jobs.Wait(cmd.Context(), typ) }()

		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case err := <-done:
				if err != nil {
					return err
				}
				st := a.Jobs.Status(typ)
				if st.Result == nil {
					return nil
				}
				fmt.Fprintf(out, "Finished: %d succeeded, %d failed\n", st.Result.Succeeded, st.Result.Failed)
				for _, e := range st.Result.Errors {
					fmt.Fprintf(out, "  %s: %s\n", e.Item, e.Error)
				}
				return nil
			case <-ticker.C:
				if p := a.Jobs.Status(typ).Progress; p != nil {
					line := fmt.Sprintf("  %d/%d", p.Completed, p.Total)
					if p.CurrentItem != "" {
						line += " " + p.CurrentItem
					}
					if p.EstimatedMinutesRemaining != nil {
						line += fmt.Sprintf(" (~%.1f min left)", *p.EstimatedMinutesRemaining)
					}
					fmt.Fprintln(out, line)
				}
			}
		}
	},
}

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Follow job events from the TCP feed, reconnecting on disconnect",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		pretty, _ := cmd.Flags().GetBool("pretty")
		ctx := cmd.Context()
		for {
			if err := followFeed(ctx, addr, pretty, cmd.OutOrStdout()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "feed disconnected: %v\n", err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	},
}

func followFeed(ctx context.Context, addr string, pretty bool, out io.Writer) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := sc.Bytes()
		if !pretty {
			fmt.Fprintln(out, string(line))
			continue
		}
		var ev map[string]any
		if err := json.Unmarshal(line, &ev); err != nil {
			fmt.Fprintln(out, string(line))
			continue
		}
		if err := printJSON(out, ev); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return io.EOF
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an admin bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := utils.Load()
		if err != nil {
			return err
		}
		ts := auth.TokenService{
			Secret:   []byte(cfg.Auth.JWTSecret),
			Issuer:   cfg.Auth.JWTIssuer,
			Duration: cfg.Auth.JWTDuration,
		}
		tok, exp, err := ts.Sign(cfg.Auth.AdminUser)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.UTC().Format(time.RFC3339))
		return nil
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password PASSWORD",
	Short: "Print the bcrypt hash for GAMEHUB_ADMIN_PASSWORD_HASH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	jobsCmd.AddCommand(jobsRunCmd)
	importCSVCmd.Flags().String("platform", string(models.SourceManual), "Source the CSV was exported from")
	feedCmd.Flags().String("addr", "127.0.0.1:7070", "TCP feed address")
	feedCmd.Flags().Bool("pretty", true, "Pretty print events")
	jobsRunCmd.Flags().Duration("every", 2*time.Second, "Progress print interval")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(importCSVCmd)
	rootCmd.AddCommand(exportCSVCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(hashPasswordCmd)
}
