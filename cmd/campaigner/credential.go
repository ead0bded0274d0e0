package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/campaigner/internal/config"
	"github.com/foxzi/campaigner/internal/credential"
)

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage passwords stored in the OS keyring",
}

var credentialSetCmd = &cobra.Command{
	Use:       "set <smtp|imap>",
	Short:     "Store a password in the keyring",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(credential.KindSMTP), string(credential.KindIMAP)},
	RunE:      runCredentialSet,
}

var credentialDeleteCmd = &cobra.Command{
	Use:       "delete <smtp|imap>",
	Short:     "Remove a password from the keyring",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(credential.KindSMTP), string(credential.KindIMAP)},
	RunE:      runCredentialDelete,
}

func init() {
	credentialCmd.AddCommand(credentialSetCmd, credentialDeleteCmd)
	rootCmd.AddCommand(credentialCmd)
}

// credentialAccount maps the kind argument to its configured username
func credentialAccount(cfg *config.Config, arg string) (credential.Kind, string, error) {
	switch credential.Kind(arg) {
	case credential.KindSMTP:
		return credential.KindSMTP, cfg.SMTP.Username, nil
	case credential.KindIMAP:
		return credential.KindIMAP, cfg.IMAP.Username, nil
	}
	return "", "", fmt.Errorf("unknown credential kind %q (use smtp or imap)", arg)
}

func runCredentialSet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	kind, account, err := credentialAccount(cfg, args[0])
	if err != nil {
		return err
	}
	if account == "" {
		return fmt.Errorf("no %s username configured", kind)
	}

	source := credential.New(cfg.Credentials)
	password, err := source.Prompt(kind, account)
	if err != nil {
		return err
	}
	if err := source.Set(kind, account, password); err != nil {
		return err
	}

	fmt.Printf("%s password for %s stored\n", kind, account)
	return nil
}

func runCredentialDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	kind, account, err := credentialAccount(cfg, args[0])
	if err != nil {
		return err
	}

	if err := credential.New(cfg.Credentials).Delete(kind, account); err != nil {
		return err
	}

	fmt.Printf("%s password for %s removed\n", kind, account)
	return nil
}
