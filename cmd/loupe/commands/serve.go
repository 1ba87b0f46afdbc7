package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loupe-ai/loupe/internal/config"
	"github.com/loupe-ai/loupe/internal/credit"
	"github.com/loupe-ai/loupe/internal/logging"
	"github.com/loupe-ai/loupe/internal/provider"
	"github.com/loupe-ai/loupe/internal/server"
	"github.com/loupe-ai/loupe/internal/session"
	"github.com/loupe-ai/loupe/internal/storage"
	"github.com/loupe-ai/loupe/internal/tool"
	"github.com/loupe-ai/loupe/pkg/types"
)

var (
	servePort int
	serveHost string
	serveDir  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the research API server",
	Long: `Start Loupe as a server exposing the research HTTP API.

Sessions persisted from a previous run are loaded back into memory on
startup.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Directory to load config from")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir := serveDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return err
		}
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	if appConfig.Log != nil && appConfig.Log.Level != "" {
		logCfg := logging.DefaultConfig()
		logCfg.Level = logging.ParseLevel(appConfig.Log.Level)
		logCfg.Pretty = appConfig.Log.Pretty
		logging.Init(logCfg)
	}

	logging.Info().Str("version", Version).Str("directory", workDir).Msg("Starting loupe server")

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	// Session snapshot storage
	storageDir := paths.StoragePath()
	if appConfig.Storage != nil && appConfig.Storage.Dir != "" {
		storageDir = appConfig.Storage.Dir
	}
	persist := storage.NewSessions(storageDir)

	store := session.NewStore(persist)
	restoreSessions(cmd.Context(), store, persist)

	// Providers and the LLM adapter
	registry, err := provider.InitializeProviders(cmd.Context(), appConfig)
	if err != nil {
		return err
	}
	adapter := provider.NewAdapter(registry)

	// Tools
	tools := tool.DefaultRegistry(appConfig)

	// Credit gating, when enabled
	var gate *credit.Gate
	if appConfig.Credits != nil && appConfig.Credits.Enabled {
		gate = credit.NewGate(appConfig.Credits.InitialBalance, appConfig.Credits.Unlimited)
	}

	pools := session.Pools{
		Conversation: provider.ParsePool(appConfig.Pools.Conversation),
		Summary:      provider.ParsePool(appConfig.Pools.Summary),
		Termination:  provider.ParsePool(appConfig.Pools.Termination),
	}

	runner := session.NewRunner(store, adapter, tools, gate, pools)
	svc := session.NewService(store, runner, *appConfig.Session)

	serverConfig := server.DefaultConfig()
	serverConfig.Host = appConfig.Server.Host
	serverConfig.Port = appConfig.Server.Port
	if serveHost != "" {
		serverConfig.Host = serveHost
	}
	if servePort != 0 {
		serverConfig.Port = servePort
	}

	srv := server.New(serverConfig, svc)

	go func() {
		logging.Info().
			Str("host", serverConfig.Host).
			Int("port", serverConfig.Port).
			Msg("Server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("Server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("Server shutdown error")
	}

	logging.Info().Msg("Server stopped")
	return nil
}

// restoreSessions loads persisted session snapshots back into the
// store. A snapshot that fails to load is skipped, not fatal.
func restoreSessions(ctx context.Context, store *session.Store, persist *storage.Sessions) {
	sessions, err := persist.LoadAll(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to scan persisted sessions")
		return
	}

	restored := 0
	for _, sess := range sessions {
		// A snapshot caught mid-flight has no driver anymore; park it so
		// a follow-up message can resume it.
		switch sess.Status {
		case types.StatusRunning, types.StatusCompacting:
			sess.Status = types.StatusAwaitingInput
		}
		if err := store.Create(sess); err != nil {
			logging.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Failed to restore session")
			continue
		}
		restored++
	}
	if restored > 0 {
		logging.Info().Int("count", restored).Msg("Restored persisted sessions")
	}
}
