package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/findmykit/trackagent"
	"github.com/findmykit/trackagent/internal/config"
	"github.com/findmykit/trackagent/internal/providers/fmip"
	"github.com/findmykit/trackagent/internal/session"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate interactively and save the session",
		Long: `login prompts for the account credential, negotiates a second factor when
the provider demands one, and saves the resulting session blob for the other
commands to reuse. The password is not stored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if cfg.Backend != config.BackendICloud {
				return errors.Errorf(
					"interactive login is only implemented for the %s backend; the findmy gateway manages its own sessions",
					config.BackendICloud)
			}

			store := session.NewStore(cfg.SessionFile)
			auth, err := fmip.NewAuth(store)
			if err != nil {
				return err
			}

			reader := bufio.NewReader(os.Stdin)
			appleID, err := prompt(reader, "Apple ID email: ")
			if err != nil {
				return err
			}
			password, err := prompt(reader, "Password: ")
			if err != nil {
				return err
			}

			result, err := auth.BeginLogin(cmd.Context(), appleID, password)
			if err != nil {
				return err
			}
			if !result.Requires2FA {
				fmt.Printf("Authentication successful. Session saved to %s\n", store.Path())
				return nil
			}

			fmt.Println("\nTwo-factor authentication required.")
			for i, method := range result.Methods {
				label := describeMethod(method)
				fmt.Printf("%d - %s\n", i, label)
			}
			choice, err := prompt(reader, "\nSelect method (enter number): ")
			if err != nil {
				return err
			}
			index, err := strconv.Atoi(choice)
			if err != nil || index < 0 || index >= len(result.Methods) {
				return errors.Errorf("invalid method selection %q", choice)
			}

			if err := auth.RequestCode(cmd.Context(), index); err != nil {
				return err
			}
			code, err := prompt(reader, "Enter the verification code: ")
			if err != nil {
				return err
			}
			if err := auth.SubmitChallenge(cmd.Context(), index, code); err != nil {
				return err
			}

			fmt.Printf("Authentication successful. Session saved to %s\n", store.Path())
			return nil
		},
	}
	return cmd
}

func describeMethod(method trackagent.SecondFactorMethod) string {
	if method.Kind == "sms" {
		return fmt.Sprintf("SMS (%s)", method.PhoneNumber)
	}
	return "Trusted Device"
}

func prompt(reader *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", errors.Wrap(err, "read input")
	}
	value := strings.TrimSpace(line)
	if value == "" {
		return "", errors.New("input cannot be empty")
	}
	return value, nil
}
