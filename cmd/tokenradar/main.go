package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"tokenradar/application/screener"
	"tokenradar/application/scoring"
	"tokenradar/domain"
	"tokenradar/infrastructure/birdeye"
	"tokenradar/infrastructure/config"
	"tokenradar/infrastructure/httpx"
	"tokenradar/infrastructure/metrics"
	"tokenradar/infrastructure/ratelimit"
	"tokenradar/infrastructure/snapshot"
)

const appName = "tokenradar"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if err := rootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   appName,
		Short: "Token market screener: rate-limited collection, snapshot caching, composite scoring",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config")

	root.AddCommand(scanCmd(&configPath))
	root.AddCommand(tradersCmd(&configPath))
	root.AddCommand(monitorCmd(&configPath))
	root.AddCommand(healthCmd(&configPath))
	return root
}

func scanCmd(configPath *string) *cobra.Command {
	var (
		force  bool
		top    int
		sortBy string
		asc    bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Fetch, score and print the token universe",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := buildScreener(*configPath)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			scored, err := s.Tokens(ctx, force)
			if err != nil {
				return err
			}
			if sortBy != "" {
				screener.SortTokens(scored, sortBy, asc)
			}

			printTokens(scored, top)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "bypass the snapshot cache")
	cmd.Flags().IntVar(&top, "top", 25, "rows to print (0 = all)")
	cmd.Flags().StringVar(&sortBy, "sort", "", "re-sort by field (volume, liquidity, mc, change)")
	cmd.Flags().BoolVar(&asc, "asc", false, "sort ascending")
	return cmd
}

func tradersCmd(configPath *string) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "traders",
		Short: "Fetch and print the top-trader list with trade history",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := buildScreener(*configPath)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			traders, err := s.Traders(ctx, force)
			if err != nil {
				return err
			}
			printTraders(traders)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "bypass the snapshot cache")
	return cmd
}

func monitorCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Serve /healthz and /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			r := mux.NewRouter()
			r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				fmt.Fprintln(w, "ok")
			}).Methods(http.MethodGet)
			r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

			srv := &http.Server{
				Addr:         cfg.Monitor.ListenAddr,
				Handler:      r,
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 10 * time.Second,
			}

			ctx, cancel := signalContext()
			defer cancel()
			go func() {
				<-ctx.Done()
				shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
				defer stop()
				srv.Shutdown(shutdownCtx) //nolint:errcheck
			}()

			log.Info().Str("addr", cfg.Monitor.ListenAddr).Msg("monitor listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
}

func healthCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the upstream API",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := buildScreener(*configPath)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			if err := client.Probe(ctx); err != nil {
				return fmt.Errorf("upstream probe failed: %w", err)
			}
			log.Info().Msg("upstream OK")
			return nil
		},
	}
}

// buildScreener wires the pipeline from configuration.
func buildScreener(configPath string) (*screener.Screener, *birdeye.Client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Birdeye.APIKey == "" {
		log.Warn().Msg("no API key configured; set BIRDEYE_API_KEY or birdeye.api_key")
	}

	client := birdeye.NewClient(birdeye.Config{
		BaseURL: cfg.Birdeye.BaseURL,
		APIKey:  cfg.Birdeye.APIKey,
		Timeout: cfg.Birdeye.Timeout(),
		Budget:  ratelimit.NewWindow(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window()),
		Caller: httpx.New(httpx.Config{
			Attempts:        cfg.Retry.MaxAttempts,
			BackoffFactor:   cfg.Retry.Backoff(),
			BreakerFailures: uint32(cfg.Retry.BreakerFailures),
			BreakerTimeout:  time.Duration(cfg.Retry.BreakerTimeout) * time.Second,
		}),
	})

	store, err := buildStore(cfg.Cache)
	if err != nil {
		return nil, nil, err
	}

	var opts []scoring.Option
	if len(cfg.Scoring.Weights) > 0 {
		opts = append(opts, scoring.WithWeights(scoring.Merge(scoring.DefaultWeights, cfg.Scoring.Weights)))
	}
	if cfg.Scoring.Thresholds != (scoring.Thresholds{}) {
		opts = append(opts, scoring.WithThresholds(cfg.Scoring.Thresholds))
	}
	if cfg.Scoring.NoFilter {
		opts = append(opts, scoring.WithFilter(nil))
	} else if cfg.Scoring.Filter != nil {
		opts = append(opts, scoring.WithFilter(cfg.Scoring.Filter))
	}
	engine := scoring.NewEngine(opts...)

	s := screener.New(client, store, engine, screener.Config{
		TargetCount:      cfg.Collect.TargetCount,
		BatchSize:        cfg.Collect.BatchSize,
		PaceInterval:     cfg.RateLimit.PaceInterval(),
		Enrich:           cfg.Collect.Enrich,
		TraderTradeLimit: cfg.Collect.TraderTradeLimit,
	})
	return s, client, nil
}

func buildStore(cfg config.CacheConfig) (snapshot.Store, error) {
	maxAges := snapshot.MaxAges{
		Tokens:  cfg.TokenMaxAge(),
		Traders: cfg.TraderMaxAge(),
	}
	switch cfg.Backend {
	case "", "file":
		return snapshot.NewFileStore(cfg.Dir, maxAges), nil
	case "memory":
		return snapshot.NewMemoryStore(maxAges), nil
	case "redis":
		client := snapshot.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		return snapshot.NewRedisStore(client, maxAges), nil
	case "postgres":
		store, err := snapshot.NewPostgresStore(cfg.PostgresDSN, maxAges)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(context.Background()); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printTokens(scored []domain.ScoredToken, top int) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tSYMBOL\tSCORE\tVOL 24H\tLIQUIDITY\tMC\tCHG %\tFLAGS")
	for i, tok := range scored {
		if top > 0 && i >= top {
			break
		}
		flags := ""
		if tok.IsSuspicious {
			flags += "suspicious "
		}
		if tok.IsPump {
			flags += "pump"
		}
		fmt.Fprintf(w, "%d\t%s\t%.3f\t%.0f\t%.0f\t%.0f\t%.1f\t%s\n",
			tok.Rank, tok.Symbol, tok.Performance,
			tok.Volume24hUSD, tok.Liquidity, tok.MarketCap,
			tok.Change24hPercent, flags)
	}
	w.Flush()
}

func printTraders(traders []domain.Trader) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tPNL\tVOLUME\tTRADES\tHISTORY ROWS")
	for _, tr := range traders {
		fmt.Fprintf(w, "%s\t%.2f\t%.0f\t%d\t%d\n",
			tr.Address, tr.PnL, tr.VolumeUSD, tr.TradeCount, len(tr.Trades))
	}
	w.Flush()
}
