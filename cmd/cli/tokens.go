package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/scandash/scandash/internal/auth"
)

var tokenEmail string

// tokensCmd represents the tokens command.
var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Manage API access tokens",
	Long: `Manage bearer tokens for the scandash API. Tokens are stored as
bcrypt hashes in the server configuration; the raw token is printed once
at generation time and cannot be recovered.`,
}

// tokensGenerateCmd represents the tokens generate command.
var tokensGenerateCmd = &cobra.Command{
	Use:   "generate <subject-id>",
	Short: "Generate a new API token",
	Long: `Generate a new bearer token for the given subject. The command prints
the raw token followed by the YAML entry to add under auth.tokens in the
server configuration.`,
	Example: `  scandash tokens generate alice
  scandash tokens generate ci-bot --email ci@example.com`,
	Args: cobra.ExactArgs(1),
	RunE: runTokensGenerate,
}

func init() {
	rootCmd.AddCommand(tokensCmd)
	tokensCmd.AddCommand(tokensGenerateCmd)

	tokensGenerateCmd.Flags().StringVar(&tokenEmail, "email", "", "email address associated with the token")
}

func runTokensGenerate(_ *cobra.Command, args []string) error {
	token, entry, err := auth.GenerateToken(args[0], tokenEmail)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	entryYAML, err := yaml.Marshal([]*auth.TokenEntry{entry})
	if err != nil {
		return fmt.Errorf("encoding token entry: %w", err)
	}

	fmt.Printf("Token (store it now, it will not be shown again):\n\n  %s\n\n", token)
	fmt.Printf("Add to the server configuration under auth.tokens:\n\n%s", entryYAML)
	return nil
}
