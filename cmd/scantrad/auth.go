package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login <pseudo>",
	Short: "Log in to the translation backend",
	Long: `Log in with a pseudo (at least 2 characters). The backend creates the
user on first login. The pseudo is persisted locally and sent as the
identity header on subsequent requests.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		st := mustStore(cfg)
		defer st.Close()

		client := mustClient(cfg, st)
		resp, err := client.Login(context.Background(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error logging in: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Logged in as %s\n", resp.Pseudo)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the current session",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustConfig()
		st := mustStore(cfg)
		defer st.Close()

		client := mustClient(cfg, st)
		if !client.Session().LoggedIn() {
			fmt.Println("Not logged in")
			return
		}
		if err := client.Logout(); err != nil {
			fmt.Fprintf(os.Stderr, "Error logging out: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Logged out")
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
