/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/learngate/apiserver/config"
	"github.com/learngate/apiserver/internal/db"
	"github.com/learngate/apiserver/internal/store"
	"github.com/learngate/apiserver/types"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var (
	bootstrapUsername string
	bootstrapEmail    string
	bootstrapName     string
	bootstrapPassword string
)

// bootstrapCmd represents the bootstrap command. It creates the first
// super admin account so the approval workflow has a deciding authority.
var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the initial super admin account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if bootstrapUsername == "" || bootstrapEmail == "" || bootstrapPassword == "" {
			return errors.New("--username, --email and --password are required")
		}
		if bootstrapName == "" {
			bootstrapName = bootstrapUsername
		}

		cfg := config.LoadConfig()
		dbConn, err := db.Open(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		users := store.NewUserRepository(dbConn)
		if _, err := users.GetByUsername(cmd.Context(), bootstrapUsername); err == nil {
			return fmt.Errorf("user %q already exists", bootstrapUsername)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(bootstrapPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		user, err := users.Create(cmd.Context(), types.User{
			Username:           bootstrapUsername,
			Email:              bootstrapEmail,
			Name:               bootstrapName,
			Role:               types.RoleSuperAdmin,
			IsSuperAdmin:       true,
			IsVerified:         true,
			VerificationStatus: types.VerificationNotRequired,
			Permissions: []string{
				types.PermApproveAdmins,
				types.PermApproveModerators,
				types.PermManageUsers,
			},
			IsActive:     true,
			PasswordHash: string(hashed),
		})
		if err != nil {
			return err
		}

		fmt.Printf("created super admin %s (id %d)\n", user.Username, user.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(bootstrapCmd)

	bootstrapCmd.Flags().StringVar(&bootstrapUsername, "username", "", "login name for the account")
	bootstrapCmd.Flags().StringVar(&bootstrapEmail, "email", "", "email address for the account")
	bootstrapCmd.Flags().StringVar(&bootstrapName, "name", "", "display name (defaults to the username)")
	bootstrapCmd.Flags().StringVar(&bootstrapPassword, "password", "", "initial password")
}
