package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bilozorDev/orests-journal-ios-app/internal/config"
	"github.com/bilozorDev/orests-journal-ios-app/internal/logger"
	"github.com/bilozorDev/orests-journal-ios-app/internal/model"
	"github.com/bilozorDev/orests-journal-ios-app/internal/repository"
	"github.com/bilozorDev/orests-journal-ios-app/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	version    = "dev"
	commit     = "none"
	buildDate  = "unknown"
	jsonOutput bool
)

// app holds the collaborators shared by the commands that touch the database
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	repo     *repository.PostgresRepository
	embedder service.Embedder
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Logging.Env, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	for _, w := range cfg.Warnings {
		log.Warn("Configuration fallback", zap.String("detail", w))
	}

	repo, err := repository.NewPostgresRepository(cfg.GetPostgreSQLDSN(), cfg.PostgreSQL.MaxConnections, cfg.PostgreSQL.MaxIdleConnections)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	embedder, err := service.NewEmbedder(cfg.Embedding, log)
	if err != nil {
		repo.Close()
		return nil, err
	}

	return &app{cfg: cfg, log: log, repo: repo, embedder: embedder}, nil
}

func (a *app) close() {
	a.repo.Close()
	_ = a.log.Sync()
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "journalctl",
		Short: "Pet health journal search tools",
		Long: `journalctl runs natural-language searches over a pet health journal
and maintains the embeddings those searches read from.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(versionCmd(), parseCmd(), searchCmd(), backfillCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    buildDate,
				})
				return
			}
			fmt.Printf("journalctl %s (%s, %s)\n", version, commit, buildDate)
		},
	}
}

func parseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <query>",
		Short: "Show the intent and cleaned text detected in a query",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			parsed := service.ParseQuery(strings.Join(args, " "))
			if jsonOutput {
				printJSON(map[string]any{
					"original_query": parsed.OriginalQuery,
					"intent":         parsed.Intent,
					"cleaned_query":  parsed.CleanedQuery,
				})
				return
			}
			fmt.Printf("intent:  %s\ncleaned: %q\n", parsed.Intent, parsed.CleanedQuery)
		},
	}
}

func searchCmd() *cobra.Command {
	var (
		petID     string
		threshold float64
		count     int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the journal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &model.SearchRequest{Query: strings.Join(args, " ")}
			if petID != "" {
				id, err := uuid.Parse(petID)
				if err != nil {
					return fmt.Errorf("invalid --pet: %w", err)
				}
				req.PetID = &id
			}
			if cmd.Flags().Changed("threshold") {
				req.MatchThreshold = &threshold
			}
			if cmd.Flags().Changed("count") {
				req.MatchCount = &count
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			svc := service.NewSearchService(service.SearchServiceConfig{
				Embedder:       a.embedder,
				Events:         a.repo,
				Shaper:         service.NewResultShaper(a.cfg.Search.ChronologicalIntent),
				MatchThreshold: a.cfg.Search.MatchThreshold,
				MatchCount:     a.cfg.Search.MatchCount,
				MaxMatchCount:  a.cfg.Search.MaxMatchCount,
				Logger:         a.log,
			})

			resp, err := svc.Search(cmd.Context(), req)
			if err != nil {
				return err
			}

			if jsonOutput {
				printJSON(resp)
				return nil
			}
			printResults(resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&petID, "pet", "", "Restrict the search to one pet (uuid)")
	cmd.Flags().Float64Var(&threshold, "threshold", service.DefaultMatchThreshold, "Minimum similarity in [0, 1]")
	cmd.Flags().IntVar(&count, "count", service.DefaultMatchCount, "Maximum number of results")

	return cmd
}

func backfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Embed every category and event that has no embedding yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			indexer := service.NewEmbeddingIndexer(a.embedder, a.repo, service.IndexerConfig{
				BatchSize:     a.cfg.Backfill.BatchSize,
				Concurrency:   a.cfg.Backfill.Concurrency,
				RatePerSecond: a.cfg.Backfill.RatePerSecond,
			}, a.log)

			report, err := indexer.Backfill(cmd.Context())
			if jsonOutput && report != nil {
				printJSON(report)
			} else if report != nil {
				fmt.Printf("processed %d, updated %d, failed %d\n", report.Processed, report.Updated, report.Failed)
				for _, e := range report.Errors {
					fmt.Fprintf(os.Stderr, "  %s\n", e)
				}
			}
			return err
		},
	}
}

func printResults(resp *model.SearchResponse) {
	fmt.Printf("intent: %s  cleaned: %q  results: %d  (%d ms)\n", resp.Intent, resp.CleanedQuery, resp.Total, resp.Took)
	for i, r := range resp.Results {
		line := fmt.Sprintf("%2d. %.3f  %s  %-12s %s", i+1, r.Similarity, r.OccurredAt.Format("2006-01-02"), r.PetName, r.CategoryName)
		if r.Notes != nil && *r.Notes != "" {
			line += " - " + *r.Notes
		}
		fmt.Println(line)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
