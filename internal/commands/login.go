package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/studymate/studymate/client"
)

var loginCmd = &cobra.Command{
	Use:   "login <username> <password>",
	Short: "Log in and save the token",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()
		acct, err := apiClient().Login(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		return saveAccount(cmd, acct)
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <username> <password>",
	Short: "Create an account and save the token",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		invite, _ := cmd.Flags().GetString("invite")
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()
		acct, err := apiClient().Register(ctx, args[0], args[1], invite)
		if err != nil {
			return err
		}
		return saveAccount(cmd, acct)
	},
}

func saveAccount(cmd *cobra.Command, acct client.Account) error {
	noSave, _ := cmd.Flags().GetBool("no-save")
	if noSave {
		cmd.Printf("Logged in as %s. Token:\n%s\n", acct.Username, acct.Token)
		return nil
	}
	path, err := credentialsPath()
	if err != nil {
		return fmt.Errorf("locate credentials file: %w", err)
	}
	env := map[string]string{
		"STUDYMATE_SERVER": serverURL,
		"STUDYMATE_TOKEN":  acct.Token,
	}
	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	cmd.Printf("Logged in as %s (%d points). Token saved to %s\n", acct.Username, acct.Points, path)
	return nil
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().Bool("no-save", false, "print the token instead of saving it")
	}
	registerCmd.Flags().String("invite", "", "invite code, when the server requires one")
}
