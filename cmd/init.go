package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/alcove-sh/alcove/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an alcove.yml with an initial API token",
	Long: `Interactively generate the server configuration. The command prints the
initial API token exactly once; store it somewhere safe.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfgFile); err == nil {
		var overwrite bool
		prompt := &survey.Confirm{
			Message: fmt.Sprintf("%s already exists. Overwrite it?", cfgFile),
			Default: false,
		}
		if err := survey.AskOne(prompt, &overwrite); err != nil {
			return fmt.Errorf("survey failed: %w", err)
		}
		if !overwrite {
			return fmt.Errorf("init cancelled, %s left untouched", cfgFile)
		}
	}

	cfg := config.Default()

	var portAnswer string
	if err := survey.AskOne(&survey.Input{
		Message: "HTTP port:",
		Default: strconv.Itoa(cfg.Server.Port),
	}, &portAnswer); err != nil {
		return fmt.Errorf("survey failed: %w", err)
	}
	port, err := strconv.Atoi(portAnswer)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", portAnswer, err)
	}
	cfg.Server.Port = port

	if err := survey.AskOne(&survey.Input{
		Message: "Data directory:",
		Default: cfg.Server.DataDir,
	}, &cfg.Server.DataDir); err != nil {
		return fmt.Errorf("survey failed: %w", err)
	}

	var user string
	if err := survey.AskOne(&survey.Input{
		Message: "Initial user name:",
		Default: "admin",
	}, &user); err != nil {
		return fmt.Errorf("survey failed: %w", err)
	}

	token, err := generateRandomToken(16) // 16 bytes
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}
	cfg.Auth.Tokens = map[string]string{user: token}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(cfgFile, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", cfgFile, err)
	}

	fmt.Printf("Wrote %s\n", cfgFile)
	fmt.Printf("Initial login token for %s: %s\n", user, token)
	fmt.Println("The token is not shown again. Pass it as `Authorization: Bearer <token>`.")
	return nil
}

// generateRandomToken generates a random token of the given byte length
func generateRandomToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
