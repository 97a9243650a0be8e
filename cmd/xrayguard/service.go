package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"xrayguard/internal/systemd"
)

// serviceCmd handles xray service management through systemd
var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the xray service",
	Long:  `Query and control the xray systemd service: status, start, stop, restart, enable, disable.`,
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show xray service status",
	Run: func(cmd *cobra.Command, args []string) {
		mgr := newManager()

		status, err := mgr.Status(context.Background())
		if err != nil {
			logger.Error("Failed to read service status: %v", err)
			os.Exit(1)
		}

		printStatus(status)
	},
}

var serviceStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the xray service",
	Run: func(cmd *cobra.Command, args []string) {
		runServiceOperation(func(mgr *systemd.Manager) *systemd.OperationResult {
			return mgr.Start(context.Background())
		})
	},
}

var serviceStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the xray service",
	Run: func(cmd *cobra.Command, args []string) {
		runServiceOperation(func(mgr *systemd.Manager) *systemd.OperationResult {
			return mgr.Stop(context.Background())
		})
	},
}

var serviceEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable the xray service at boot",
	Run: func(cmd *cobra.Command, args []string) {
		runServiceOperation(func(mgr *systemd.Manager) *systemd.OperationResult {
			return mgr.Enable(context.Background())
		})
	},
}

var serviceDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable the xray service at boot",
	Run: func(cmd *cobra.Command, args []string) {
		runServiceOperation(func(mgr *systemd.Manager) *systemd.OperationResult {
			return mgr.Disable(context.Background())
		})
	},
}

var serviceRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the xray service and wait until it is ready",
	Run: func(cmd *cobra.Command, args []string) {
		gracefulSeconds, _ := cmd.Flags().GetInt("graceful-timeout")

		warnIfNotRoot()
		mgr := newManager()

		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = fmt.Sprintf(" Restarting %s...", mgr.ServiceName())
		s.Start()
		result := mgr.Restart(context.Background(), time.Duration(gracefulSeconds)*time.Second)
		s.Stop()

		if !result.Success {
			logger.Error("Restart failed: %s", result.Stderr)
			os.Exit(1)
		}

		logger.Info("Service %s restarted in %s (downtime %s)",
			result.ServiceName, result.Duration.Round(time.Millisecond), result.Downtime.Round(time.Millisecond))
	},
}

func runServiceOperation(op func(*systemd.Manager) *systemd.OperationResult) {
	warnIfNotRoot()
	mgr := newManager()

	result := op(mgr)
	if !result.Success {
		logger.Error("Failed to %s %s: %s", result.Operation, result.ServiceName, result.Stderr)
		os.Exit(1)
	}

	logger.Info("Service %s: %s completed in %s",
		result.ServiceName, result.Operation, result.Duration.Round(time.Millisecond))
}

func warnIfNotRoot() {
	if warning := systemd.PermissionWarning(); warning != "" {
		if systemd.CanUseSudo() {
			warning += " (sudo is available)"
		}
		logger.Warn("%s", warning)
	}
}

func printStatus(status *systemd.Status) {
	health := color.RedString("unhealthy")
	if status.Healthy {
		health = color.GreenString("healthy")
	}

	fmt.Printf("Service:  %s (%s)\n", status.ServiceName, health)
	fmt.Printf("State:    %s/%s\n", status.ActiveState, status.SubState)
	fmt.Printf("Loaded:   %v\n", status.Loaded)
	if status.PID != nil {
		fmt.Printf("PID:      %d\n", *status.PID)
	}
	if status.Memory != "" {
		fmt.Printf("Memory:   %s\n", status.Memory)
	}
	fmt.Printf("Restarts: %d\n", status.Restarts)
	if status.Uptime != "" {
		fmt.Printf("Uptime:   %s (since %s)\n", status.Uptime, status.StartTime.Format(time.RFC3339))
	}
}

func init() {
	serviceRestartCmd.Flags().Int("graceful-timeout", 10, "Seconds to wait for the service to report ready after restart")

	serviceCmd.AddCommand(serviceStatusCmd)
	serviceCmd.AddCommand(serviceStartCmd)
	serviceCmd.AddCommand(serviceStopCmd)
	serviceCmd.AddCommand(serviceRestartCmd)
	serviceCmd.AddCommand(serviceEnableCmd)
	serviceCmd.AddCommand(serviceDisableCmd)
}
