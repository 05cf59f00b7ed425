package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"igarchive/pkg/archive"
	"igarchive/pkg/catalog"
	"igarchive/pkg/config"
	"igarchive/pkg/engine"
	"igarchive/pkg/instagram"
	"igarchive/pkg/logger"
	"igarchive/pkg/media"
	"igarchive/pkg/ratelimit"
	"igarchive/pkg/session"
	"igarchive/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile   string
	archiveRoot  string
	logLevel     string
	workers      int
	accessToken  string
	refreshToken string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "igarchive",
	Short: "An incremental Instagram profile archiver",
	Long: `igarchive keeps local archives of Instagram profiles: metadata with
avatar history, live stories, highlights with their covers, posts and
tagged posts.

Every run is incremental. Already archived media is never downloaded
twice, stories that moved between the live feed and highlights are
copied locally instead of refetched, and interrupted runs pick up
where they left off.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .igarchive.yaml)")
	rootCmd.PersistentFlags().StringVarP(&archiveRoot, "root", "r", "", "archive root directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "concurrent profiles for update --all")
	rootCmd.PersistentFlags().StringVar(&accessToken, "access-token", "", "story API access token")
	rootCmd.PersistentFlags().StringVar(&refreshToken, "refresh-token", "", "story API refresh token")

	rootCmd.SetVersionTemplate(`igarchive {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// app bundles everything a command needs: configuration, catalog,
// archive tree, session and the engine on top of them.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	catalog *catalog.Catalog
	tree    *archive.Tree
	session *session.Context
	store   session.Store
	engine  *engine.Engine
}

// newApp loads configuration and opens the catalog, tree and session
func newApp() (*app, error) {
	flags := make(map[string]interface{})
	if archiveRoot != "" {
		flags["root"] = archiveRoot
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	if workers > 0 {
		flags["workers"] = workers
	}
	if accessToken != "" {
		flags["access-token"] = accessToken
	}
	if refreshToken != "" {
		flags["refresh-token"] = refreshToken
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logger.GetLogger()

	tree, err := archive.NewTree(cfg.Archive.Root)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Open(cfg.CatalogPath())
	if err != nil {
		return nil, err
	}

	store, err := session.OpenDefaultStore(cfg.Archive.Root)
	if err != nil {
		log.WithError(err).Warn("session store unavailable, tokens will not persist")
		store = nil
	}
	refresher := instagram.NewTokenRefresher(cfg.Upstream.StoryAPI, cfg.Upstream.UserAgent, cfg.Download.Timeout)
	sess := session.NewContext(session.Tokens{
		Access:  cfg.Upstream.AccessToken,
		Refresh: cfg.Upstream.RefreshToken,
	}, store, refresher, log)

	endpoints := instagram.Endpoints{
		StoryAPI:   cfg.Upstream.StoryAPI,
		PostMirror: cfg.Upstream.PostMirror,
		ProfileAPI: cfg.Upstream.ProfileAPI,
	}
	limiter := ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute)
	client := instagram.NewClient(endpoints, sess, limiter, cfg.Download.Timeout,
		cfg.RateLimit.MaxRetries, cfg.Upstream.UserAgent, log)

	eng := engine.New(cat, tree, client, media.NewGenerator(log), cfg, log)
	if err := eng.SweepStaging(); err != nil {
		log.WithError(err).Warn("failed to sweep staging directory")
	}

	return &app{
		cfg:     cfg,
		log:     log,
		catalog: cat,
		tree:    tree,
		session: sess,
		store:   store,
		engine:  eng,
	}, nil
}

// Close releases the catalog
func (a *app) Close() {
	if err := a.catalog.Close(); err != nil {
		a.log.WithError(err).Warn("failed to close catalog")
	}
}

// exitWith prints the error and terminates
func exitWith(err error) {
	ui.PrintError("Error", err)
	os.Exit(1)
}
