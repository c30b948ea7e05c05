package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fleetsafety/immobilizer/internal/cli"
	"github.com/fleetsafety/immobilizer/internal/models"
)

var (
	overrideFleetID  string
	supervisorUserID string
	overrideNotes    string
)

var overridesCmd = &cobra.Command{
	Use:   "overrides",
	Short: "Manage supervisor override requests",
}

var overridesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending override requests for a fleet",
	Long: `List pending supervisor override requests, most urgent first.

Examples:
  immobilizer-admin overrides list --fleet 7f3c...
  immobilizer-admin overrides list --fleet 7f3c... --json`,
	Run: func(cmd *cobra.Command, args []string) {
		fleetID, err := uuid.Parse(overrideFleetID)
		if err != nil {
			fmt.Printf("❌ Invalid fleet ID: %v\n", err)
			os.Exit(1)
		}

		client := newAPIClient()
		requests, err := client.ListPendingOverrides(fleetID)
		if err != nil {
			fmt.Printf("❌ Failed to list overrides: %v\n", err)
			os.Exit(1)
		}

		if outputJSON {
			printJSON(requests)
			return
		}
		printOverrideList(requests)
	},
}

var overridesApproveCmd = &cobra.Command{
	Use:   "approve <request-id>",
	Short: "Approve a pending override and release the vehicle",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resolveOverride(args[0], true)
	},
}

var overridesDenyCmd = &cobra.Command{
	Use:   "deny <request-id>",
	Short: "Deny a pending override, the vehicle stays immobilized",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resolveOverride(args[0], false)
	},
}

func resolveOverride(requestIDArg string, approve bool) {
	requestID, err := uuid.Parse(requestIDArg)
	if err != nil {
		fmt.Printf("❌ Invalid request ID: %v\n", err)
		os.Exit(1)
	}

	supervisorID, err := uuid.Parse(supervisorUserID)
	if err != nil {
		fmt.Printf("❌ Invalid supervisor ID (use --supervisor): %v\n", err)
		os.Exit(1)
	}

	client := newAPIClient()

	var request *models.SupervisorOverrideRequest
	if approve {
		request, err = client.ApproveOverride(requestID, supervisorID, overrideNotes)
	} else {
		request, err = client.DenyOverride(requestID, supervisorID, overrideNotes)
	}
	if err != nil {
		fmt.Printf("❌ Failed to resolve override: %v\n", err)
		os.Exit(1)
	}

	if outputJSON {
		printJSON(request)
		return
	}

	if approve {
		fmt.Printf("✅ Override %s approved, vehicle %s released\n", request.ID, request.VehicleID)
	} else {
		fmt.Printf("✅ Override %s denied, vehicle %s stays immobilized\n", request.ID, request.VehicleID)
	}
}

func printOverrideList(requests []models.SupervisorOverrideRequest) {
	if len(requests) == 0 {
		fmt.Println("📭 No pending override requests")
		return
	}

	fmt.Printf("\n📋 %d pending override request(s):\n\n", len(requests))
	fmt.Printf("%-36s  %-36s  %-8s  %-9s  %s\n", "Request ID", "Vehicle ID", "Urgency", "Expires", "Reason")

	now := time.Now()
	for _, r := range requests {
		expires := "expired"
		if remaining := r.ExpiresAt.Sub(now); remaining > 0 {
			expires = remaining.Round(time.Minute).String()
		}
		fmt.Printf("%-36s  %-36s  %-8s  %-9s  %s\n", r.ID, r.VehicleID, r.Urgency, expires, truncate(r.Reason, 60))
	}

	fmt.Println("\n📖 Resolve a request:")
	fmt.Println("  immobilizer-admin overrides approve <request-id> --supervisor <user-id>")
}

func newAPIClient() *cli.Client {
	client := cli.NewClient(viper.GetString("api.url"), viper.GetString("api.token"))
	if err := client.HealthCheck(); err != nil {
		fmt.Printf("❌ API health check failed: %v\n", err)
		fmt.Println("💡 Tip: Make sure the immobilizer server is running")
		os.Exit(1)
	}
	return client
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("❌ Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func init() {
	rootCmd.AddCommand(overridesCmd)
	overridesCmd.AddCommand(overridesListCmd)
	overridesCmd.AddCommand(overridesApproveCmd)
	overridesCmd.AddCommand(overridesDenyCmd)

	overridesListCmd.Flags().StringVar(&overrideFleetID, "fleet", "", "Fleet ID (required)")
	overridesListCmd.MarkFlagRequired("fleet")

	for _, c := range []*cobra.Command{overridesApproveCmd, overridesDenyCmd} {
		c.Flags().StringVar(&supervisorUserID, "supervisor", "", "Supervisor user ID (required)")
		c.Flags().StringVar(&overrideNotes, "notes", "", "Resolution notes")
		c.MarkFlagRequired("supervisor")
	}
}
