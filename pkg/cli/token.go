package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/volunteermatching/volops/pkg/auth"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens",
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create <subject>",
	Short: "Mint a bearer token for the mutating API routes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		if config.Auth.Secret == "" {
			return errors.New("auth.secret must be set to mint tokens the server will accept")
		}

		ttl := config.Auth.TokenTTL
		if tokenTTL > 0 {
			ttl = tokenTTL
		}
		if ttl <= 0 {
			ttl = time.Hour
		}

		token, err := auth.NewJWTManager(config.Auth.Secret, config.Auth.Issuer, ttl).Create(args[0])
		if err != nil {
			return err
		}

		expires := time.Now().Add(ttl).UTC().Format(time.RFC3339)
		if PrintJSON(map[string]string{"token": token, "subject": args[0], "expires_at": expires}) {
			return nil
		}

		PrintSuccess("Token created")
		PrintNewline()
		fmt.Printf("  %s\n", BoldStyle.Render("Token:"))
		fmt.Printf("  %s\n", CodeStyle.Render(token))
		PrintNewline()
		PrintKeyValue("Subject", args[0])
		PrintKeyValue("Expires", expires)
		PrintNewline()
		return nil
	},
}

func init() {
	tokenCreateCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime, overrides auth.tokenTTL")
	tokenCmd.AddCommand(tokenCreateCmd)
}
