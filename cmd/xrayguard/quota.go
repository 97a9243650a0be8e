package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"xrayguard/internal/quota"
)

// quotaCmd handles per-user traffic quota management
var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Manage per-user traffic quotas",
	Long: `Inspect and manage per-user traffic quotas backed by xray's
statistics API. Quotas live in a single JSON document; enforcement
transitions users that crossed their limit into the exceeded state.`,
}

var quotaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all quotas with current usage",
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")

		store := newStore()
		quotas, err := store.GetAllQuotas()
		if err != nil {
			logger.Error("Failed to read quotas: %v", err)
			os.Exit(1)
		}

		if asJSON {
			printJSON(quotas)
			return
		}

		if len(quotas) == 0 {
			fmt.Println("No quotas configured.")
			return
		}

		emails := make([]string, 0, len(quotas))
		for email := range quotas {
			emails = append(emails, email)
		}
		sort.Strings(emails)

		for _, email := range emails {
			q := quotas[email]
			fmt.Printf("%s  %s  [%s]\n",
				email,
				quota.FormatUsageSummary(q.UsedBytes, q.QuotaBytes),
				colorStatus(q.Status))
		}
	},
}

var quotaShowCmd = &cobra.Command{
	Use:   "show <email>",
	Short: "Show one user's quota",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
		email := args[0]

		q, err := newStore().GetQuota(email)
		if err != nil {
			logger.Error("Failed to read quota for %s: %v", email, err)
			os.Exit(1)
		}

		if asJSON {
			printJSON(q)
			return
		}

		fmt.Printf("User:       %s\n", email)
		fmt.Printf("Limit:      %s\n", quota.FormatTraffic(q.QuotaBytes).Display)
		fmt.Printf("Used:       %s\n", quota.FormatUsageSummary(q.UsedBytes, q.QuotaBytes))
		fmt.Printf("Remaining:  %s\n", quota.FormatRemaining(q.UsedBytes, q.QuotaBytes))
		fmt.Printf("Status:     %s\n", colorStatus(q.Status))
		if q.LastReset != "" {
			fmt.Printf("Last reset: %s\n", q.LastReset)
		}
	},
}

var quotaSetCmd = &cobra.Command{
	Use:   "set <email> <limit>",
	Short: "Set a user's quota limit (e.g. 10GB, 500MB, unlimited)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		email, limitArg := args[0], args[1]

		limitBytes, err := quota.ParseTraffic(limitArg)
		if err != nil {
			logger.Error("Invalid limit %q: %v", limitArg, err)
			os.Exit(1)
		}

		if err := newStore().SetQuota(quota.SetQuotaParams{
			Email:      email,
			QuotaBytes: limitBytes,
		}); err != nil {
			logger.Error("Failed to set quota for %s: %v", email, err)
			os.Exit(1)
		}

		logger.Info("Quota for %s set to %s", email, quota.FormatTraffic(limitBytes).Display)
	},
}

var quotaResetCmd = &cobra.Command{
	Use:   "reset <email>",
	Short: "Reset a user's usage counter",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		email := args[0]

		if err := newStore().ResetUsage(email); err != nil {
			logger.Error("Failed to reset usage for %s: %v", email, err)
			os.Exit(1)
		}

		logger.Info("Usage for %s reset to zero", email)
	},
}

var quotaRemoveCmd = &cobra.Command{
	Use:   "remove <email>",
	Short: "Remove a user's quota entry",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		email := args[0]

		if err := newStore().RemoveQuota(email); err != nil {
			logger.Error("Failed to remove quota for %s: %v", email, err)
			os.Exit(1)
		}

		logger.Info("Quota entry for %s removed", email)
	},
}

var quotaEnforceCmd = &cobra.Command{
	Use:   "enforce",
	Short: "Run an enforcement pass over all quota-bearing users",
	Run: func(cmd *cobra.Command, args []string) {
		autoDisable, _ := cmd.Flags().GetBool("auto-disable")
		asJSON, _ := cmd.Flags().GetBool("json")

		// Stats read stale or zero while the daemon is down; the pass
		// still runs on cached counters, but say so.
		mgr := newManager()
		if !mgr.IsActive(context.Background()) {
			logger.Warn("Service %s is not running; enforcement will use cached usage counters", mgr.ServiceName())
		}
		if !newStatsClient().IsStatsAvailable(context.Background()) {
			logger.Info("Stats API not available at %s; using cached usage counters", cfg.ServerAddress())
		}

		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = " Enforcing quotas..."
		s.Start()
		summary, err := newEnforcer().EnforceQuotas(context.Background(), autoDisable)
		s.Stop()

		if err != nil {
			logger.Error("Enforcement pass failed: %v", err)
			os.Exit(1)
		}

		if asJSON {
			printJSON(summary)
			return
		}

		logger.Info("Checked %d users: %d normal, %d warning, %d exceeded, %d newly disabled",
			summary.TotalChecked, summary.NormalCount, summary.WarningCount,
			summary.ExceededCount, summary.NewlyDisabledCount)

		for _, r := range summary.Results {
			if r.AlertLevel == quota.AlertNormal {
				continue
			}
			line := fmt.Sprintf("%s  %s  %.2f%%", r.Email,
				quota.FormatUsageSummary(r.UsedBytes, r.QuotaBytes), r.UsagePercent)
			if r.WasDisabled {
				line += "  " + color.RedString("disabled")
			}
			fmt.Println(line)
		}
	},
}

var quotaAttentionCmd = &cobra.Command{
	Use:   "attention",
	Short: "List users at warning level or over quota",
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")

		results, err := newEnforcer().UsersNeedingAttention(context.Background())
		if err != nil {
			logger.Error("Failed to check quotas: %v", err)
			os.Exit(1)
		}

		if asJSON {
			printJSON(results)
			return
		}

		if len(results) == 0 {
			fmt.Println("All users within quota.")
			return
		}

		for _, r := range results {
			level := color.YellowString(string(r.AlertLevel))
			if r.AlertLevel == quota.AlertExceeded {
				level = color.RedString(string(r.AlertLevel))
			}
			fmt.Printf("%s  %s  [%s]\n", r.Email,
				quota.FormatUsageSummary(r.UsedBytes, r.QuotaBytes), level)
		}
	},
}

var quotaReenableCmd = &cobra.Command{
	Use:   "reenable <email>",
	Short: "Re-enable a disabled or exceeded user",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resetUsage, _ := cmd.Flags().GetBool("reset-usage")
		email := args[0]

		if err := newEnforcer().ReenableUser(context.Background(), email, resetUsage); err != nil {
			logger.Error("Failed to re-enable %s: %v", email, err)
			os.Exit(1)
		}

		if resetUsage {
			logger.Info("User %s re-enabled with usage reset", email)
		} else {
			logger.Info("User %s re-enabled", email)
		}
	},
}

func colorStatus(status quota.Status) string {
	switch status {
	case quota.StatusActive:
		return color.GreenString(string(status))
	case quota.StatusExceeded:
		return color.RedString(string(status))
	default:
		return color.YellowString(string(status))
	}
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Error("Failed to encode output: %v", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

func init() {
	quotaListCmd.Flags().Bool("json", false, "Output as JSON")
	quotaShowCmd.Flags().Bool("json", false, "Output as JSON")
	quotaEnforceCmd.Flags().Bool("json", false, "Output as JSON")
	quotaEnforceCmd.Flags().Bool("auto-disable", true, "Transition users over their limit to exceeded")
	quotaAttentionCmd.Flags().Bool("json", false, "Output as JSON")
	quotaReenableCmd.Flags().Bool("reset-usage", false, "Also reset the usage counter")

	quotaCmd.AddCommand(quotaListCmd)
	quotaCmd.AddCommand(quotaShowCmd)
	quotaCmd.AddCommand(quotaSetCmd)
	quotaCmd.AddCommand(quotaResetCmd)
	quotaCmd.AddCommand(quotaRemoveCmd)
	quotaCmd.AddCommand(quotaEnforceCmd)
	quotaCmd.AddCommand(quotaAttentionCmd)
	quotaCmd.AddCommand(quotaReenableCmd)
}
