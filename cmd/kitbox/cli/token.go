package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kitbox/kitbox/internal/auth"
	"github.com/kitbox/kitbox/internal/credentials"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint identity tokens",
	Long:  `Mint signed identity tokens using the server's signing credential.`,
}

var (
	tokenUID   string
	tokenEmail string
	tokenAdmin bool
	tokenHead  bool
	tokenTTL   time.Duration
)

var tokenMintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint a signed identity token",
	Long: `Mint a signed identity token from the credential material in the
environment. The same resolution strategies the server uses apply here,
so this works anywhere the server could start.

Examples:
  kitbox token mint --uid u123 --email ops@example.com --admin --ttl 1h
  kitbox token mint --uid root --email root@example.com --head-admin --ttl 15m`,
	RunE: runTokenMint,
}

func init() {
	tokenMintCmd.Flags().StringVar(&tokenUID, "uid", "", "Identity uid to embed in the token")
	tokenMintCmd.Flags().StringVar(&tokenEmail, "email", "", "Identity email to embed in the token")
	tokenMintCmd.Flags().BoolVar(&tokenAdmin, "admin", false, "Set the admin claim")
	tokenMintCmd.Flags().BoolVar(&tokenHead, "head-admin", false, "Set the head admin claim")
	tokenMintCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token time-to-live (e.g. 15m, 1h)")
	tokenMintCmd.MarkFlagRequired("uid")
	tokenMintCmd.MarkFlagRequired("email")

	tokenCmd.AddCommand(tokenMintCmd)
}

func runTokenMint(cmd *cobra.Command, args []string) error {
	resolver := credentials.NewResolver()
	bundle, err := resolver.Resolve()
	if err != nil {
		return fmt.Errorf("resolving signing credentials: %w", err)
	}

	verifier := auth.NewVerifier(bundle)
	token, err := verifier.Mint(tokenUID, tokenEmail, tokenAdmin || tokenHead, tokenHead, tokenTTL)
	if err != nil {
		return fmt.Errorf("minting token: %w", err)
	}

	fmt.Fprintf(os.Stderr, "✓ Token minted\n")
	fmt.Fprintf(os.Stderr, "  UID:      %s\n", tokenUID)
	fmt.Fprintf(os.Stderr, "  Email:    %s\n", tokenEmail)
	fmt.Fprintf(os.Stderr, "  Admin:    %t\n", tokenAdmin || tokenHead)
	fmt.Fprintf(os.Stderr, "  Head:     %t\n", tokenHead)
	fmt.Fprintf(os.Stderr, "  Expires:  %s\n", time.Now().Add(tokenTTL).UTC().Format(time.RFC3339))
	fmt.Fprintf(os.Stderr, "\n")

	// Print the token to stdout so it can be captured by scripts
	fmt.Print(token)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}
