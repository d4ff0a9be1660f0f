package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kitbox/kitbox/internal/gate"
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Manage secondary gate passwords",
}

var gateHashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Hash a gate password for the settings file",
	Long: `Prompt for a gate password and print its bcrypt hash. Paste the
hash into the password_hash field of a gate block in the settings file.
The plaintext password is never stored or printed.`,
	RunE: runGateHash,
}

func init() {
	gateCmd.AddCommand(gateHashCmd)
}

func runGateHash(cmd *cobra.Command, args []string) error {
	fmt.Fprint(os.Stderr, "Gate password: ")
	password, err := readPassword()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	fmt.Fprint(os.Stderr, "Confirm password: ")
	confirm, err := readPassword()
	if err != nil {
		return fmt.Errorf("reading confirmation: %w", err)
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	hash, err := gate.HashPassword(password)
	if err != nil {
		return err
	}

	fmt.Println(hash)
	return nil
}

func readPassword() (string, error) {
	// Check if stdin is a terminal
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr) // newline after password input
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// Non-interactive: read from stdin (piped input)
	var password string
	_, err := fmt.Fscanln(os.Stdin, &password)
	if err != nil {
		return "", err
	}
	return password, nil
}
