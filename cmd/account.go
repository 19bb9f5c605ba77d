/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/bugtrail/apiserver/internal/client"
	"github.com/spf13/cobra"
)

var accountServerURL string

// accountCmd groups the terminal account flows.
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Drive the account flows from a terminal",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register an account and set its first password",
	Long: `Register an account and set its first password.

The registration step collects name, email, and the provisional
password; the password step asks for that provisional password again
and the new one, mirroring the server's validation rules.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)
		out := cmd.OutOrStdout()

		name, err := client.PromptLine(reader, "Enter your name", out)
		if err != nil {
			return err
		}
		email, err := client.PromptLine(reader, "Enter your email", out)
		if err != nil {
			return err
		}
		role, err := client.PromptLine(reader, "Enter role (empty for default)", out)
		if err != nil {
			return err
		}
		provisional, err := client.PromptPassword("Enter provisional password", out)
		if err != nil {
			return err
		}

		staged := &client.StagedRegistration{
			Name:     name,
			Email:    email,
			Password: provisional,
			Role:     role,
		}

		api := client.New(accountServerURL)
		form := client.NewPasswordForm(api, staged)
		result, err := runPasswordForm(cmd, form)
		if err != nil {
			return err
		}
		if result.ClearStaged {
			staged.Password = ""
		}

		fmt.Fprintln(out, "Account created. Log in with your new password.")
		return nil
	},
}

var accountChangePasswordCmd = &cobra.Command{
	Use:   "change-password",
	Short: "Change the password of an existing account",
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)
		out := cmd.OutOrStdout()

		email, err := client.PromptLine(reader, "Enter your email", out)
		if err != nil {
			return err
		}
		password, err := client.PromptPassword("Enter current password", out)
		if err != nil {
			return err
		}

		api := client.New(accountServerURL)
		if _, err := api.Login(cmd.Context(), email, password); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		form := client.NewPasswordForm(api, nil)
		result, err := runPasswordForm(cmd, form)
		if err != nil {
			return err
		}
		if result.ClearSession {
			fmt.Fprintln(out, "Password changed. Your session was cleared; log in again.")
		}
		return nil
	},
}

// runPasswordForm drives the old/new password form until it submits
// successfully or the input is exhausted.
func runPasswordForm(cmd *cobra.Command, form *client.PasswordForm) (client.SubmitResult, error) {
	out := cmd.OutOrStdout()

	for {
		oldPassword, err := client.PromptPassword("Enter old password", out)
		if err != nil {
			return client.SubmitResult{}, err
		}
		form.SetField(client.FieldOldPassword, oldPassword)
		if message := form.ValidateField(client.FieldOldPassword); message != "" {
			fmt.Fprintf(out, "old password: %s\n", message)
			continue
		}

		newPassword, err := client.PromptPassword("Enter new password", out)
		if err != nil {
			return client.SubmitResult{}, err
		}
		form.SetField(client.FieldNewPassword, newPassword)
		if message := form.ValidateField(client.FieldNewPassword); message != "" {
			fmt.Fprintf(out, "new password: %s\n", message)
			continue
		}

		result, err := form.Submit(cmd.Context())
		if err != nil {
			switch form.State() {
			case client.StateFieldError:
				for _, field := range []string{client.FieldOldPassword, client.FieldNewPassword} {
					if message := form.FieldError(field); message != "" {
						fmt.Fprintf(out, "%s: %s\n", field, message)
					}
				}
				continue
			default:
				return client.SubmitResult{}, fmt.Errorf("submit failed: %s", form.GeneralError())
			}
		}
		return result, nil
	}
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountCreateCmd)
	accountCmd.AddCommand(accountChangePasswordCmd)

	accountCmd.PersistentFlags().StringVar(&accountServerURL, "server", "http://localhost:8080", "base URL of the account API server")
}
