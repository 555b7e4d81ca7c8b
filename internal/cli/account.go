package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/itsneelabh/cartshare"
	"github.com/itsneelabh/cartshare/auth"
)

func (c *CLI) loginCommand() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in",
		Args:  cobra.NoArgs,
		RunE: c.guest(func(ctx context.Context, app *cartshare.App, _ []string) error {
			var err error
			if email, err = c.prompt("Email", email); err != nil {
				return err
			}
			if password, err = c.prompt("Password", password); err != nil {
				return err
			}
			if err := auth.ValidateLogin(email, password); err != nil {
				return err
			}

			res := app.Auth.Login(ctx, email, password)
			if !res.Success {
				return message(res.Error)
			}
			c.printf("Signed in as %s.\n", displayName(app.Auth.User()))
			return nil
		}),
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when empty)")
	return cmd
}

func (c *CLI) registerCommand() *cobra.Command {
	var email, username, password, confirmation, location string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: c.guest(func(ctx context.Context, app *cartshare.App, _ []string) error {
			var err error
			if email, err = c.prompt("Email", email); err != nil {
				return err
			}
			if username, err = c.prompt("Username", username); err != nil {
				return err
			}
			if password, err = c.prompt("Password", password); err != nil {
				return err
			}
			if confirmation, err = c.prompt("Confirm password", confirmation); err != nil {
				return err
			}
			if err := auth.ValidateRegistration(email, username, password, confirmation); err != nil {
				return err
			}

			res := app.Auth.Register(ctx, email, username, password, confirmation, location)
			if !res.Success {
				return message(res.Error)
			}
			c.println("Account created.")
			if res.RecoveryCode != "" {
				c.printf("Your recovery code is %s\n", res.RecoveryCode)
				c.println("Keep it somewhere safe. It is the only way to reset a forgotten password.")
			}
			c.println("Sign in with `cartshare login`.")
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringVarP(&email, "email", "e", "", "account email")
	f.StringVarP(&username, "username", "u", "", "display name, at least 3 characters")
	f.StringVarP(&password, "password", "p", "", "password, at least 6 characters")
	f.StringVar(&confirmation, "confirm", "", "password again")
	f.StringVar(&location, "location", "", "city, optional")
	return cmd
}

func (c *CLI) forgotPasswordCommand() *cobra.Command {
	var code, password, confirmation string
	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Set a new password with your recovery code",
		Args:  cobra.NoArgs,
		RunE: c.guest(func(ctx context.Context, app *cartshare.App, _ []string) error {
			var err error
			if code, err = c.prompt("Recovery code", code); err != nil {
				return err
			}
			if err := auth.ValidateRecoveryCode(code); err != nil {
				return err
			}
			if password, err = c.prompt("New password", password); err != nil {
				return err
			}
			if confirmation, err = c.prompt("Confirm password", confirmation); err != nil {
				return err
			}
			if err := auth.ValidatePasswordReset(password, confirmation); err != nil {
				return err
			}

			if !app.Auth.ResetPasswordWithToken(ctx, code, password, confirmation) {
				return message("Could not reset the password. Check the recovery code and try again.")
			}
			c.println("Password updated. You can sign in now.")
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringVarP(&code, "code", "c", "", "recovery code shown at registration")
	f.StringVarP(&password, "password", "p", "", "new password")
	f.StringVar(&confirmation, "confirm", "", "new password again")
	return cmd
}

func (c *CLI) profileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show and edit your account",
		Args:  cobra.NoArgs,
		RunE:  c.authed(c.showProfile),
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show your account",
			Args:  cobra.NoArgs,
			RunE:  c.authed(c.showProfile),
		},
		c.changeUsernameCommand(),
		c.changePasswordCommand(),
	)
	return cmd
}

func (c *CLI) showProfile(ctx context.Context, app *cartshare.App, _ []string) error {
	user := app.Auth.RefreshUser(ctx)
	if user == nil {
		return message("Could not load your profile.")
	}
	c.printf("Username: %s\n", user.Username)
	c.printf("Email:    %s\n", user.Email)
	c.printf("Profile:  %s\n", app.Config.Session.Profile)
	return nil
}

func (c *CLI) changeUsernameCommand() *cobra.Command {
	var password, username string
	cmd := &cobra.Command{
		Use:   "change-username [new-username]",
		Short: "Pick a new username",
		Args:  cobra.MaximumNArgs(1),
		RunE: c.authed(func(ctx context.Context, app *cartshare.App, args []string) error {
			if len(args) == 1 {
				username = args[0]
			}
			var err error
			if username, err = c.prompt("New username", username); err != nil {
				return err
			}
			if password, err = c.prompt("Current password", password); err != nil {
				return err
			}
			if err := auth.ValidateUsernameChange(password, username); err != nil {
				return err
			}

			res := app.Auth.ChangeUsername(ctx, password, username)
			if !res.Success {
				return message(res.Error)
			}
			c.printf("Username changed to %s.\n", displayName(app.Auth.User()))
			return nil
		}),
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "current password")
	cmd.Flags().StringVarP(&username, "username", "u", "", "new username")
	return cmd
}

func (c *CLI) changePasswordCommand() *cobra.Command {
	var oldPassword, newPassword, confirmation string
	cmd := &cobra.Command{
		Use:   "change-password",
		Short: "Change your password",
		Args:  cobra.NoArgs,
		RunE: c.authed(func(ctx context.Context, app *cartshare.App, _ []string) error {
			var err error
			if oldPassword, err = c.prompt("Current password", oldPassword); err != nil {
				return err
			}
			if newPassword, err = c.prompt("New password", newPassword); err != nil {
				return err
			}
			if confirmation, err = c.prompt("Confirm password", confirmation); err != nil {
				return err
			}
			if err := auth.ValidatePasswordChange(oldPassword, newPassword, confirmation); err != nil {
				return err
			}

			res := app.Auth.ChangePassword(ctx, oldPassword, newPassword, confirmation)
			if !res.Success {
				return message(res.Error)
			}
			c.println("Password changed.")
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringVar(&oldPassword, "old", "", "current password")
	f.StringVar(&newPassword, "new", "", "new password")
	f.StringVar(&confirmation, "confirm", "", "new password again")
	return cmd
}

func (c *CLI) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: c.authed(func(ctx context.Context, app *cartshare.App, _ []string) error {
			if err := app.Auth.Logout(ctx); err != nil {
				return err
			}
			c.println("Signed out.")
			return nil
		}),
	}
}
