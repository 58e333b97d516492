package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/openmined/photosync/internal/client"
	"github.com/openmined/photosync/internal/client/config"
	photosync "github.com/openmined/photosync/internal/client/sync"
	"github.com/openmined/photosync/internal/utils"
	"github.com/openmined/photosync/internal/version"
)

const envPrefix = "PHOTOSHARE"

var home, _ = os.UserHomeDir()

var rootCmd = &cobra.Command{
	Use:   "photosync",
	Short: "Download new photos from a PhotoShare server",
	Long: `photosync keeps a local folder in step with a PhotoShare server.
It lists the photos created since the last pass and downloads each one,
including live photo bundles. Nothing is ever uploaded or deleted.`,
	Version: version.Detailed(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup(cmd)
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		mgr := photosync.NewManager(config.NewHolder(cfg))
		c := client.New(mgr)
		defer slog.Info("Bye!")

		if once, _ := cmd.Flags().GetBool("once"); once {
			report, err := c.RunOnce(cmd.Context())
			if report != nil {
				printReport(cmd, report)
			}
			return err
		}
		return c.Start(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().Bool("once", false, "Run one sync pass and exit")
	rootCmd.Flags().Float64P("interval", "i", config.DefaultPollInterval.Hours(), "Poll interval in hours")

	addConfigFlags(rootCmd.PersistentFlags())
}

func addConfigFlags(pf *pflag.FlagSet) {
	pf.StringP("config", "c", config.DefaultConfigPath, "Config file")
	pf.StringP("server", "s", config.DefaultServerURL, "PhotoShare server URL")
	pf.StringP("download-dir", "d", config.DefaultDownloadDir, "Directory photos are saved to")
	pf.String("state-file", config.DefaultStateFile, "File holding the sync cursor")
	pf.String("journal", "", "SQLite download journal, empty disables it")
	pf.String("log-file", config.DefaultLogFilePath, "Rotating log file, empty logs to the console only")
	pf.BoolP("verbose", "v", false, "Debug logging")
}

func main() {
	loadDotEnv()
	slog.SetDefault(slog.New(consoleHandler(slog.LevelInfo)))

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadDotEnv loads .env from the working directory, then from the config
// directory. Variables already set in the environment win.
func loadDotEnv() {
	for _, path := range []string{".env", filepath.Join(config.DefaultConfigDir, ".env")} {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", path, err)
		}
	}
}

// setup loads the config and switches logging to its final form.
func setup(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	setupLogger(cfg.LogFile, level)
	slog.Debug("photosync", "version", version.Version, "revision", version.Revision, "config", cfg.Path)
	return cfg, nil
}

func consoleHandler(level slog.Level) slog.Handler {
	return tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
}

func setupLogger(logFile string, level slog.Level) {
	handlers := []slog.Handler{consoleHandler(level)}

	if logFile != "" {
		if err := utils.EnsureParent(logFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		} else {
			rotating := &lumberjack.Logger{
				Filename:   logFile,
				MaxSize:    10, // megabytes
				MaxBackups: 5,
				MaxAge:     30, // days
				Compress:   true,
			}
			handlers = append(handlers, slog.NewTextHandler(rotating, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}
	}

	slog.SetDefault(slog.New(utils.NewFanoutHandler(handlers...)))
}

// loadConfig merges, lowest first: built-in defaults, the JSON config file,
// PHOTOSHARE_* environment variables and explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()

	cfg := config.Default()
	configPath := resolveConfigPath(cmd)
	if cmd.Flag("config").Changed || utils.FileExists(configPath) {
		v.SetConfigFile(configPath)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config read '%s': %w", configPath, err)
			}
		}
		cfg.Path = configPath
	}

	// Bind flags to viper
	bindFlag(v, "server_url", cmd.Flags().Lookup("server"))
	bindFlag(v, "download_dir", cmd.Flags().Lookup("download-dir"))
	bindFlag(v, "state_file", cmd.Flags().Lookup("state-file"))
	bindFlag(v, "journal_path", cmd.Flags().Lookup("journal"))
	bindFlag(v, "log_file", cmd.Flags().Lookup("log-file"))
	bindFlag(v, "http.addr", cmd.Flags().Lookup("http-addr"))
	bindFlag(v, "http.token", cmd.Flags().Lookup("http-token"))

	// Set up environment variables
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, dst := range map[string]*string{
		"server_url":   &cfg.ServerURL,
		"secret":       &cfg.Secret,
		"download_dir": &cfg.DownloadDir,
		"state_file":   &cfg.StateFile,
		"journal_path": &cfg.JournalPath,
		"log_file":     &cfg.LogFile,
		"http.addr":    &cfg.HTTP.Addr,
		"http.token":   &cfg.HTTP.Token,
	} {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	if !v.IsSet("log_file") {
		cfg.LogFile = config.DefaultLogFilePath
	}

	var err error
	if cfg.PollInterval, err = durationSetting(v, "poll_interval", time.Hour, cfg.PollInterval); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = durationSetting(v, "timeout", time.Second, cfg.Timeout); err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("interval"); f != nil && f.Changed {
		hours, _ := cmd.Flags().GetFloat64("interval")
		cfg.PollInterval = time.Duration(hours * float64(time.Hour))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindFlag binds only flags the command actually has, and only when set, so a
// flag default never hides the file or the environment.
func bindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if flag == nil || !flag.Changed {
		return
	}
	v.BindPFlag(key, flag)
}

// durationSetting reads a duration written either as a bare number of unit
// (environment: PHOTOSHARE_POLL_INTERVAL=2 means two hours), a Go duration
// string ("90m"), or the nanosecond integer Config.Save writes.
func durationSetting(v *viper.Viper, key string, unit, fallback time.Duration) (time.Duration, error) {
	if !v.IsSet(key) {
		return fallback, nil
	}

	switch raw := v.Get(key).(type) {
	case string:
		raw = strings.TrimSpace(raw)
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return time.Duration(n * float64(unit)), nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return d, nil
	case float64:
		return time.Duration(raw), nil
	case int:
		return time.Duration(raw), nil
	case int64:
		return time.Duration(raw), nil
	default:
		return 0, fmt.Errorf("%s: unsupported value %v", key, raw)
	}
}

func printReport(cmd *cobra.Command, r *photosync.Report) {
	out := cmd.OutOrStdout()
	if r.Error != "" {
		fmt.Fprintf(out, "%s %s\n", red.Render("sync failed:"), r.Error)
		return
	}
	fmt.Fprintf(out, "%s %d downloaded, %d skipped, %d failed, %s in %s\n",
		green.Render("sync complete:"),
		r.Downloaded, r.Skipped, r.Failed, r.BytesHuman(), r.Duration().Round(time.Millisecond))
}
