package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fleetsafety/immobilizer/internal/repository/postgres"
	"github.com/fleetsafety/immobilizer/pkg/config"
	"github.com/fleetsafety/immobilizer/pkg/database"
	"github.com/fleetsafety/immobilizer/pkg/logger"
	"github.com/fleetsafety/immobilizer/pkg/vault"
)

var credentialFile string

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage encrypted vendor credentials",
}

var credentialSetCmd = &cobra.Command{
	Use:   "set <provider-id>",
	Short: "Encrypt and store a vendor credential",
	Long: `Read a credential JSON file, encrypt it with the configured vault key,
and store the blob on the vendor provider. Talks to the database directly,
so DB_* and VAULT_* environment variables must be set.

The credential file holds the vendor API key, plus a secret for vendors
that authenticate with a key pair:
  {"api_key": "..."}
  {"api_key": "...", "api_secret": "..."}`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		providerID, err := uuid.Parse(args[0])
		if err != nil {
			fmt.Printf("❌ Invalid provider ID: %v\n", err)
			os.Exit(1)
		}

		raw, err := os.ReadFile(credentialFile)
		if err != nil {
			fmt.Printf("❌ Failed to read credential file: %v\n", err)
			os.Exit(1)
		}
		if !json.Valid(raw) {
			fmt.Printf("❌ Credential file is not valid JSON: %s\n", credentialFile)
			os.Exit(1)
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("❌ Failed to load config: %v\n", err)
			os.Exit(1)
		}

		log, err := logger.New("error", "text")
		if err != nil {
			fmt.Printf("❌ Failed to initialize logger: %v\n", err)
			os.Exit(1)
		}

		db, err := database.NewPostgresDB(cfg, log)
		if err != nil {
			fmt.Printf("❌ Failed to connect to database: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()

		credVault, err := vault.New(cfg.Vault.Passphrase, cfg.Vault.Salt)
		if err != nil {
			fmt.Printf("❌ Failed to initialize vault: %v\n", err)
			os.Exit(1)
		}

		blob, err := credVault.Encrypt(raw)
		if err != nil {
			fmt.Printf("❌ Failed to encrypt credential: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		providerRepo := postgres.NewProviderRepository(db.DB)
		if err := providerRepo.UpdateCredential(ctx, providerID, blob); err != nil {
			fmt.Printf("❌ Failed to store credential: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("✅ Credential stored for provider %s\n", providerID)
	},
}

func init() {
	rootCmd.AddCommand(credentialCmd)
	credentialCmd.AddCommand(credentialSetCmd)

	credentialSetCmd.Flags().StringVar(&credentialFile, "file", "", "Path to the credential JSON file (required)")
	credentialSetCmd.MarkFlagRequired("file")
}
