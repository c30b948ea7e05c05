package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	apiURL     string
	apiToken   string
	outputJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "immobilizer-admin",
	Short: "Fleet Safety Immobilizer admin CLI",
	Long: `Operational tooling for the vehicle immobilization engine.

Examples:
  immobilizer-admin overrides list --fleet <fleet-id>
  immobilizer-admin overrides approve <request-id> --supervisor <user-id> --notes "driver cleared"
  immobilizer-admin vehicle engage <vehicle-id> --actor <user-id> --reason "stolen vehicle report"
  immobilizer-admin vehicle events <vehicle-id>
  immobilizer-admin credential set <provider-id> --file creds.json`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initConfig()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.immobilizer-admin.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "Immobilizer API URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "api-token", "", "API authentication token")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output results in JSON format")

	viper.BindPFlag("api.url", rootCmd.PersistentFlags().Lookup("api-url"))
	viper.BindPFlag("api.token", rootCmd.PersistentFlags().Lookup("api-token"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".immobilizer-admin")
	}

	viper.SetEnvPrefix("IMMOBILIZER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if !outputJSON {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}

	if apiURL != "" && apiURL != "http://localhost:8080" {
		viper.Set("api.url", apiURL)
	}
	if apiToken != "" {
		viper.Set("api.token", apiToken)
	}
}
