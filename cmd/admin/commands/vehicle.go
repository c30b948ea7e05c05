package commands

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fleetsafety/immobilizer/internal/cli"
)

var (
	actorUserID   string
	commandReason string
	eventLimit    int
)

var vehicleCmd = &cobra.Command{
	Use:   "vehicle",
	Short: "Manually operate a vehicle's kill switch",
}

var vehicleEngageCmd = &cobra.Command{
	Use:   "engage <vehicle-id>",
	Short: "Engage a vehicle's kill switch",
	Long: `Engage the kill switch outside of the workflow lifecycle, for example
on a stolen vehicle report. The command commits locally first and is
replayed against the telematics vendor if the vendor call fails.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runKillSwitchCommand(args[0], "engage")
	},
}

var vehicleDisengageCmd = &cobra.Command{
	Use:   "disengage <vehicle-id>",
	Short: "Disengage a vehicle's kill switch",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runKillSwitchCommand(args[0], "disengage")
	},
}

var vehicleEventsCmd = &cobra.Command{
	Use:   "events <vehicle-id>",
	Short: "Show the kill switch audit trail for a vehicle",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		vehicleID, err := uuid.Parse(args[0])
		if err != nil {
			fmt.Printf("❌ Invalid vehicle ID: %v\n", err)
			os.Exit(1)
		}

		client := newAPIClient()
		events, err := client.ListVehicleEvents(vehicleID, eventLimit)
		if err != nil {
			fmt.Printf("❌ Failed to list events: %v\n", err)
			os.Exit(1)
		}

		if outputJSON {
			printJSON(events)
			return
		}

		if len(events) == 0 {
			fmt.Println("📭 No events recorded for this vehicle")
			return
		}

		fmt.Printf("\n📋 %d event(s):\n\n", len(events))
		fmt.Printf("%-20s  %-18s  %-36s  %s\n", "Time", "Event", "Actor", "Reason")
		for _, e := range events {
			fmt.Printf("%-20s  %-18s  %-36s  %s\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"), e.EventType, e.ActorID, truncate(e.Reason, 60))
		}
	},
}

func runKillSwitchCommand(vehicleIDArg, verb string) {
	vehicleID, err := uuid.Parse(vehicleIDArg)
	if err != nil {
		fmt.Printf("❌ Invalid vehicle ID: %v\n", err)
		os.Exit(1)
	}

	actorID, err := uuid.Parse(actorUserID)
	if err != nil {
		fmt.Printf("❌ Invalid actor ID (use --actor): %v\n", err)
		os.Exit(1)
	}

	client := newAPIClient()

	var result *cli.KillSwitchResult
	if verb == "engage" {
		result, err = client.EngageVehicle(vehicleID, actorID, commandReason)
	} else {
		result, err = client.DisengageVehicle(vehicleID, actorID, commandReason)
	}
	if err != nil {
		fmt.Printf("❌ Failed to %s vehicle: %v\n", verb, err)
		os.Exit(1)
	}

	if outputJSON {
		printJSON(result)
		return
	}

	if !result.Changed {
		fmt.Printf("ℹ️  Vehicle %s was already in the requested state\n", vehicleID)
		return
	}

	fmt.Printf("✅ Vehicle %s %sd\n", vehicleID, verb)
	if result.Warning != "" {
		fmt.Printf("⚠️  %s\n", result.Warning)
	}
}

func init() {
	rootCmd.AddCommand(vehicleCmd)
	vehicleCmd.AddCommand(vehicleEngageCmd)
	vehicleCmd.AddCommand(vehicleDisengageCmd)
	vehicleCmd.AddCommand(vehicleEventsCmd)

	for _, c := range []*cobra.Command{vehicleEngageCmd, vehicleDisengageCmd} {
		c.Flags().StringVar(&actorUserID, "actor", "", "Acting user ID (required)")
		c.Flags().StringVar(&commandReason, "reason", "", "Reason recorded in the audit trail (required)")
		c.MarkFlagRequired("actor")
		c.MarkFlagRequired("reason")
	}

	vehicleEventsCmd.Flags().IntVar(&eventLimit, "limit", 50, "Maximum number of events to show")
}
