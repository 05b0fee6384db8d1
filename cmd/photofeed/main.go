package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantmind-br/photofeed/internal/app"
	"github.com/quantmind-br/photofeed/internal/cache"
	"github.com/quantmind-br/photofeed/internal/config"
	"github.com/quantmind-br/photofeed/internal/notify"
	"github.com/quantmind-br/photofeed/internal/poll"
	"github.com/quantmind-br/photofeed/internal/utils"
	"github.com/quantmind-br/photofeed/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool

	// Dependencies for testing
	stdin        io.Reader = os.Stdin
	stdout       io.Writer = os.Stdout
	httpClient             = &http.Client{Timeout: 5 * time.Second}
	isWritableFn           = utils.IsWritableDir
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "photofeed",
	Short: "Browse and watch a remote photo feed",
	Long: `photofeed browses recent photos or search results from Flickr and keeps
watching the active search in the background, reporting newly published
photos as they appear.`,
	Version:       version.Short(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.photofeed/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("api-key", "", "Flickr API key")
	rootCmd.PersistentFlags().String("store", "", "Store directory (default is ~/.photofeed/store)")
	rootCmd.PersistentFlags().Int("page-size", config.DefaultPageSize, "Photos per page")
	rootCmd.PersistentFlags().Duration("poll-interval", config.DefaultPollInterval, "Background poll period")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Disable the response cache")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (pretty or json)")

	_ = viper.BindPFlag("flickr.api_key", rootCmd.PersistentFlags().Lookup("api-key"))
	_ = viper.BindPFlag("store.directory", rootCmd.PersistentFlags().Lookup("store"))
	_ = viper.BindPFlag("feed.page_size", rootCmd.PersistentFlags().Lookup("page-size"))
	_ = viper.BindPFlag("poll.interval", rootCmd.PersistentFlags().Lookup("poll-interval"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	daemonCmd.Flags().Bool("metrics", false, "Serve prometheus metrics")
	daemonCmd.Flags().String("metrics-addr", config.DefaultMetricsAddress, "Metrics listen address")
	_ = viper.BindPFlag("metrics.enabled", daemonCmd.Flags().Lookup("metrics"))
	_ = viper.BindPFlag("metrics.address", daemonCmd.Flags().Lookup("metrics-addr"))

	snapshotShowCmd.Flags().StringP("format", "f", app.FormatText, "Output format (text, json, yaml)")
	snapshotCmd.AddCommand(snapshotShowCmd, snapshotClearCmd)

	cacheStatsCmd.Flags().StringP("format", "f", app.FormatText, "Output format (text, json, yaml)")
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)

	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd, configShowCmd)

	rootCmd.AddCommand(browseCmd, pollCmd, daemonCmd, snapshotCmd, cacheCmd, configCmd, doctorCmd, versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// loadConfig applies flags that viper cannot express directly
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		cfg.Cache.Enabled = false
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *utils.Logger {
	return utils.NewLogger(utils.LoggerOptions{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Verbose: verbose,
	})
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func openRuntime(cmd *cobra.Command, opts app.Options) (*app.Runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	opts.Config = cfg
	opts.Logger = newLogger(cfg)
	return app.Open(opts)
}

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse recent photos and search interactively",
	Long: `Starts an interactive session. Type text to search (results follow after a
short pause), or use :next, :search, :retry, :refresh, :clear, :open <id> and
:quit. While a search is active it is polled in the background and new photos
are reported.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := app.SyncWriter(stdout)
		rt, err := openRuntime(cmd, app.Options{Notifier: notify.NewWriter(out)})
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx, cancel := signalContext()
		defer cancel()

		fmt.Fprintln(out, "Type :help for commands.")
		return app.NewSession(rt, stdin, out).Run(ctx)
	},
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Check the active search for new photos once",
	Long: `Runs a single reconciliation of the active search and exits. Transient
failures are retried like scheduled runs (poll.max_retries). Suitable for
cron: the exit code is 1 when the run still failed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd, app.Options{Notifier: notify.NewWriter(stdout)})
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx, cancel := signalContext()
		defer cancel()

		res, err := app.PollOnce(ctx, rt)
		if err != nil {
			return fmt.Errorf("poll failed: %w", err)
		}
		switch {
		case res.Skipped:
			fmt.Fprintln(stdout, "No active search.")
		case len(res.Added) == 0:
			fmt.Fprintf(stdout, "No new photos for %q.\n", res.Query)
		}
		return nil
	},
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Keep polling the active search in the background",
	Long: `Runs the scheduler without a foreground session. Registrations made by a
previous browse session are resumed. Only one process can use a store
directory at a time.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd, app.Options{Notifier: notify.NewWriter(stdout)})
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx, cancel := signalContext()
		defer cancel()

		return app.RunDaemon(ctx, rt)
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect or reset the active search record",
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active search record",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd, app.Options{Offline: true})
		if err != nil {
			return err
		}
		defer rt.Close()

		snap, err := rt.Store.Read(cmd.Context())
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		return app.WriteSnapshot(stdout, snap, format)
	},
}

var snapshotClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the active search and stop polling it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd, app.Options{Offline: true})
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.Store.Clear(cmd.Context()); err != nil {
			return err
		}
		if err := rt.Scheduler.Cancel(cmd.Context(), poll.TaskID); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Active search cleared.")
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or empty the response cache",
}

// openCache opens the response cache alone, without the store
func openCache(cmd *cobra.Command) (*cache.BadgerCache, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return cache.NewBadgerCache(cache.Options{
		Directory: utils.ExpandPath(cfg.Cache.Directory),
		Logger:    newLogger(cfg),
	})
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print response cache statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		format, _ := cmd.Flags().GetString("format")
		return app.WriteCacheStats(stdout, c.Stats(), format)
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached response",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		n := c.Size()
		if err := c.Clear(); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
		fmt.Fprintf(stdout, "Removed %d cached responses.\n", n)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create or print the configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the current settings",
	Long: `Writes the effective settings (defaults plus any flags and environment
overrides) to ~/.photofeed/config.yaml, or to the --config path.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path := cfgFile
		if path == "" {
			path = config.ConfigFilePath()
		}
		if force, _ := cmd.Flags().GetBool("force"); !force {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
		}
		if err := config.Save(cfg, path); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(stdout, "Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		data, err := config.Marshal(cfg.Redacted())
		if err != nil {
			return err
		}
		_, err = stdout.Write(data)
		return err
	},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and connectivity",
	Long:  "Verifies that the configuration is valid, the store is writable and the photo API is reachable.",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(stdout, "Checking photofeed setup...")
		allPassed := true

		fmt.Fprint(stdout, "  Config file: ")
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(stdout, "FAILED (%v)\n", err)
			return nil
		}
		fmt.Fprintln(stdout, "OK")

		fmt.Fprint(stdout, "  API key: ")
		if err := cfg.RequireAPIKey(); err != nil {
			fmt.Fprintf(stdout, "MISSING (%v)\n", err)
			allPassed = false
		} else {
			fmt.Fprintln(stdout, "OK")
		}

		fmt.Fprint(stdout, "  Photo API: ")
		if checkAPI(cfg.Flickr.BaseURL) {
			fmt.Fprintln(stdout, "OK")
		} else {
			fmt.Fprintln(stdout, "UNREACHABLE")
			allPassed = false
		}

		fmt.Fprint(stdout, "  Store directory: ")
		if cfg.Store.InMemory {
			fmt.Fprintln(stdout, "OK (in memory)")
		} else if dir := utils.ExpandPath(cfg.Store.Directory); isWritableFn(dir) {
			fmt.Fprintf(stdout, "OK (%s)\n", dir)
		} else {
			fmt.Fprintf(stdout, "FAILED (%s is not writable)\n", dir)
			allPassed = false
		}

		fmt.Fprint(stdout, "  Cache directory: ")
		if !cfg.Cache.Enabled {
			fmt.Fprintln(stdout, "DISABLED")
		} else if dir := utils.ExpandPath(cfg.Cache.Directory); isWritableFn(dir) {
			fmt.Fprintf(stdout, "OK (%s)\n", dir)
		} else {
			fmt.Fprintf(stdout, "WARN (%s is not writable, responses will not be cached)\n", dir)
		}

		fmt.Fprintln(stdout)
		if allPassed {
			fmt.Fprintln(stdout, "All critical checks passed!")
		} else {
			fmt.Fprintln(stdout, "Some checks failed. Please resolve the issues above.")
		}
		return nil
	},
}

// checkAPI reports whether the photo API host answers at all
func checkAPI(baseURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, baseURL, nil)
	if err != nil {
		return false
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(stdout, version.Full())
	},
}
