package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"xrayguard/internal/config"
	"xrayguard/internal/logging"
	"xrayguard/internal/quota"
	"xrayguard/internal/systemd"
	"xrayguard/internal/version"
	"xrayguard/internal/xray"
)

var (
	logger *logging.Logger
	cfg    *config.Config
)

func initLogger() {
	logConfig := &logging.LogConfig{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
	}

	if err := logging.InitLogger(logConfig); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logger = logging.GetGlobalLogger()
}

var rootCmd = &cobra.Command{
	Use:   "xrayguard",
	Short: "xrayguard - xray service and traffic quota control plane",
	Long: `xrayguard manages the xray VPN relay service through systemd and
enforces per-user traffic quotas against xray's live statistics API.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("xrayguard %s\n", version.Info())
	},
}

// newManager builds the systemd manager from configuration
func newManager() *systemd.Manager {
	mgr, err := systemd.New(cfg.ServiceName, systemd.Timeouts{
		Default: cfg.SystemctlTimeoutDuration(),
		Start:   cfg.StartTimeoutDuration(),
		Stop:    cfg.StopTimeoutDuration(),
		Restart: cfg.RestartTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Invalid service name %q: %v", cfg.ServiceName, err)
		os.Exit(1)
	}
	return mgr
}

func newStatsClient() *xray.StatsClient {
	return xray.NewStatsClient(cfg.APIHost, cfg.APIPort).
		WithBinary(cfg.XrayBinary).
		WithTimeout(cfg.StatsTimeoutDuration())
}

func newStore() *quota.Store {
	return quota.NewStore(cfg.QuotaFile)
}

func newEnforcer() *quota.Enforcer {
	return quota.NewEnforcer(newStore(), newStatsClient())
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serviceCmd)
	rootCmd.AddCommand(quotaCmd)
}

func main() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	initLogger()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
