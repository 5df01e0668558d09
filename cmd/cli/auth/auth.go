package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/crucial707/hci-inventory/cmd/cli/client"
	"github.com/crucial707/hci-inventory/cmd/cli/config"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassword is replaced in tests to avoid touching the terminal.
var readPassword = term.ReadPassword

// InitAuth registers register, login, logout and profile on the root command.
func InitAuth(rootCmd *cobra.Command) {
	rootCmd.AddCommand(registerCmd(), loginCmd(), logoutCmd(), profileCmd())
}

type credentialFlags struct {
	username string
	password string
}

func (c *credentialFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.username, "username", "", "account username (prompted when omitted)")
	cmd.Flags().StringVar(&c.password, "password", "", "account password (prompted when omitted)")
}

// resolve fills in whatever was not given as a flag from the command's input.
func (c *credentialFlags) resolve(cmd *cobra.Command) (map[string]string, error) {
	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	if c.username == "" {
		fmt.Fprint(out, "Username: ")
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		c.username = strings.TrimSpace(line)
	}
	if c.username == "" {
		return nil, errors.New("username is required")
	}

	if c.password == "" {
		fmt.Fprint(out, "Password: ")
		pw, err := promptPassword(cmd, in)
		if err != nil {
			return nil, err
		}
		c.password = pw
	}
	if c.password == "" {
		return nil, errors.New("password is required")
	}

	return map[string]string{"username": c.username, "password": c.password}, nil
}

// promptPassword reads without echo from a terminal and falls back to a plain line otherwise.
func promptPassword(cmd *cobra.Command, in *bufio.Reader) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		pw, err := readPassword(int(f.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		return string(pw), err
	}
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ==========================
// Register
// ==========================
func registerCmd() *cobra.Command {
	var creds credentialFlags
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := creds.resolve(cmd)
			if err != nil {
				return err
			}
			var resp struct {
				User struct {
					ID       int    `json:"id"`
					Username string `json:"username"`
				} `json:"user"`
			}
			if err := client.Do(http.MethodPost, "/register", "", payload, &resp); err != nil {
				return fmt.Errorf("register: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (id %d). Run `inv login` to start a session.\n",
				resp.User.Username, resp.User.ID)
			return nil
		},
	}
	creds.bind(cmd)
	return cmd
}

// ==========================
// Login (stores the token locally)
// ==========================
func loginCmd() *cobra.Command {
	var creds credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store a session token",
		Long:  "Authenticate with the inventory API and store the token for subsequent CLI commands.",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := creds.resolve(cmd)
			if err != nil {
				return err
			}
			var resp struct {
				Token string `json:"token"`
			}
			if err := client.Do(http.MethodPost, "/login", "", payload, &resp); err != nil {
				return fmt.Errorf("login: %w", err)
			}
			if resp.Token == "" {
				return errors.New("login succeeded but no token returned")
			}
			if err := config.SaveToken(resp.Token); err != nil {
				return fmt.Errorf("save token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Login successful. Token stored locally.")
			return nil
		},
	}
	creds.bind(cmd)
	return cmd
}

// ==========================
// Logout
// ==========================
func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.DeleteToken(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

// ==========================
// Profile
// ==========================
func profileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := config.ReadToken()
			if err != nil {
				return err
			}
			var resp struct {
				Message string `json:"message"`
				User    struct {
					UserID   int    `json:"user_id"`
					Username string `json:"username"`
				} `json:"user"`
			}
			if err := client.Do(http.MethodGet, "/profile", token, nil, &resp); err != nil {
				var apiErr *client.APIError
				if errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden {
					return errors.New("session expired: run `inv login` again")
				}
				return fmt.Errorf("profile: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s, %s (id %d)\n", resp.Message, resp.User.Username, resp.User.UserID)
			return nil
		},
	}
}
