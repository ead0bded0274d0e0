package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/foxzi/campaigner/internal/api"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "HTTP API helpers",
}

var apiHashKeyCmd = &cobra.Command{
	Use:   "hash-key [key]",
	Short: "Print the bcrypt hash of an API key for api.api_key_hash",
	Long:  `Print the bcrypt hash of an API key. Without an argument the key is read from the terminal.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAPIHashKey,
}

func init() {
	apiCmd.AddCommand(apiHashKeyCmd)
	rootCmd.AddCommand(apiCmd)
}

func runAPIHashKey(cmd *cobra.Command, args []string) error {
	var key string
	if len(args) == 1 {
		key = args[0]
	} else {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return fmt.Errorf("pass the key as an argument when stdin is not a terminal")
		}
		fmt.Fprint(os.Stderr, "API key: ")
		data, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to read key: %w", err)
		}
		key = string(data)
	}
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}

	hash, err := api.HashKey(key)
	if err != nil {
		return err
	}

	fmt.Println(hash)
	return nil
}
