package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bobarin/wellvoice/internal/cache"
	"github.com/bobarin/wellvoice/internal/config"
	"github.com/bobarin/wellvoice/internal/logger"
	"github.com/bobarin/wellvoice/internal/services"
	"github.com/bobarin/wellvoice/internal/voice"
)

// localOwner keys the single-user cache and settings rows on this machine.
const localOwner = "local"

var (
	cachePath string
	logLevel  string
	activeCfg *config.Config
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "voicectl",
		Short:         "Speak, cache and tune wellness assistant voice replies",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if cachePath != "" {
				cfg.VoicectlCachePath = cachePath
			}
			if err := logger.Init(cfg.Logger()); err != nil {
				return err
			}
			activeCfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cachePath, "cache", "", "SQLite cache file (default VOICECTL_CACHE_PATH or the user cache dir)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default LOG_LEVEL or info)")

	cmd.AddCommand(newSpeakCmd())
	cmd.AddCommand(newVoicesCmd())
	cmd.AddCommand(newSettingsCmd())
	cmd.AddCommand(newCacheCmd())

	return cmd
}

func requireConfig() (*config.Config, error) {
	if activeCfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return activeCfg, nil
}

// openLocal opens the on-disk cache, which also holds the saved settings.
func openLocal(cfg *config.Config) (*cache.SQLiteBackend, error) {
	return cache.OpenSQLite(cfg.VoicectlCachePath)
}

// localSettings returns the saved settings manager for this machine.
func localSettings(cmd *cobra.Command, cfg *config.Config, backend *cache.SQLiteBackend) (*voice.Manager, error) {
	_, defaultVoice := services.NewSynthesizer(cfg.Providers())
	m := voice.NewManager(backend, localOwner, defaultVoice)
	if _, err := m.Load(cmd.Context()); err != nil {
		return nil, err
	}
	return m, nil
}
