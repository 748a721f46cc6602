package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"rfpdesk/internal/session"
	"rfpdesk/pkg/apiclient"
	"rfpdesk/pkg/domain"
)

func (c *cli) loginCmd() *cobra.Command {
	var email, password string
	var remember bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" || password == "" {
				saved, ok, err := c.app.SavedLogin()
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("--email and --password are required (no saved login)")
				}
				email, password, remember = saved.Email, saved.Password, true
			}
			sess, err := c.app.Login(cmd.Context(), email, password, remember)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", sess.Email, sess.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().BoolVar(&remember, "remember", false, "keep the credentials for the next login")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.app.Logout(cmd.Context())
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := c.app.WhoAmI(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "email:   %s\nrole:    %s\nuser id: %s\n", id.Session.Email, id.Session.Role, id.Session.UserID)
			if !id.Token.ExpiresAt.IsZero() {
				state := "valid"
				if id.Expired {
					state = "expired"
				}
				fmt.Fprintf(out, "token:   %s until %s\n", state, id.Token.ExpiresAt.Local().Format(time.RFC1123))
			}
			switch {
			case id.Verified:
				fmt.Fprintln(out, "signature: verified")
			case id.VerifyErr != nil:
				fmt.Fprintf(out, "signature: rejected (%v)\n", id.VerifyErr)
			}
			return nil
		},
	}
}

func (c *cli) sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect session activity",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Print logins and logouts from every rfpctl sharing the Redis channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "watching session events, Ctrl-C to stop")
			return c.app.WatchSession(cmd.Context(), func(ev session.Event) {
				who := ev.Session.Email
				if who == "" {
					who = "-"
				}
				fmt.Fprintf(out, "%s\t%s\t%s\n", time.Now().Format(time.TimeOnly), ev.Kind, who)
			})
		},
	})
	return cmd
}

func (c *cli) profileCmd() *cobra.Command {
	var username, email, image string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Update your username, email or picture",
		RunE: func(cmd *cobra.Command, _ []string) error {
			upd := apiclient.ProfileUpdate{Username: username, Email: email}
			if image != "" {
				f, err := os.Open(image)
				if err != nil {
					return err
				}
				defer f.Close()
				upd.ImageName = filepath.Base(image)
				upd.Image = f
			}
			if upd.Username == "" && upd.Email == "" && upd.Image == nil {
				return errors.New("nothing to update: pass --username, --email or --image")
			}
			user, err := c.app.UpdateProfile(cmd.Context(), upd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "profile updated: %s <%s>\n", user.Username, user.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "new username")
	cmd.Flags().StringVar(&email, "email", "", "new email")
	cmd.Flags().StringVar(&image, "image", "", "path to a profile picture")
	return cmd
}

func (c *cli) passwordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Change, forget or reset a password",
	}

	var oldPw, newPw, confirm string
	change := &cobra.Command{
		Use:   "change",
		Short: "Change the session user's password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.ChangePassword(cmd.Context(), oldPw, newPw, confirm); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password changed successfully.")
			return nil
		},
	}
	change.Flags().StringVar(&oldPw, "old", "", "current password")
	change.Flags().StringVar(&newPw, "new", "", "new password")
	change.Flags().StringVar(&confirm, "confirm", "", "new password again")

	var email string
	forgot := &cobra.Command{
		Use:   "forgot",
		Short: "Send a one-time reset code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.ForgotPassword(cmd.Context(), email); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "A reset code was sent to %s.\n", email)
			return nil
		},
	}
	forgot.Flags().StringVar(&email, "email", "", "account email")

	var otp string
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Set a new password with a one-time code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.ResetPassword(cmd.Context(), email, otp, newPw, confirm); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password reset. You can log in now.")
			return nil
		},
	}
	reset.Flags().StringVar(&email, "email", "", "account email")
	reset.Flags().StringVar(&otp, "otp", "", "one-time code")
	reset.Flags().StringVar(&newPw, "new", "", "new password")
	reset.Flags().StringVar(&confirm, "confirm", "", "new password again")

	cmd.AddCommand(change, forgot, reset)
	return cmd
}

func (c *cli) teamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "team",
		Short: "List, add or remove team members",
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := c.app.Users(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tROLE")
			for _, u := range users {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.UserID, u.Username, u.Email, u.Role)
			}
			return tw.Flush()
		},
	}

	var role string
	add := &cobra.Command{
		Use:   "add <username> <email>",
		Short: "Add a member with a generated password",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := c.app.AddMember(cmd.Context(), args[0], args[1], domain.UserRole(strings.ToLower(role)))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s. Temporary password: %s\n", args[1], password)
			return nil
		},
	}
	add.Flags().StringVar(&role, "role", string(domain.RoleReviewer), "member role")

	remove := &cobra.Command{
		Use:   "remove <username|email>",
		Short: "Remove a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := c.app.FindUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := c.app.RemoveMember(cmd.Context(), user); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s.\n", user.Username)
			return nil
		},
	}
	cmd.AddCommand(add, remove)
	return cmd
}
