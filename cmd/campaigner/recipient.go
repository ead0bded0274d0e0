package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/campaigner/internal/recipient"
)

var (
	recipientName     string
	recipientEmail    string
	recipientCompany  string
	recipientPurchase string
	recipientAll      bool
	recipientSearch   string
	recipientLimit    int
	recipientOffset   int
	recipientBackupTo string
)

var recipientCmd = &cobra.Command{
	Use:     "recipient",
	Aliases: []string{"recipients"},
	Short:   "Recipient list commands",
}

var recipientAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a recipient",
	RunE:  runRecipientAdd,
}

var recipientListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recipients",
	RunE:  runRecipientList,
}

var recipientShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show recipient details",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecipientShow,
}

var recipientUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update recipient fields",
	Long:  `Update the fields given as flags. Pass an empty value to clear company or last purchase date.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runRecipientUpdate,
}

var recipientDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Exclude a recipient from campaigns",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecipientDeactivate,
}

var recipientRestoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Include a deactivated recipient again",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecipientRestore,
}

var recipientImportCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import recipients from CSV",
	Long:  `Import recipients from a CSV file with a header row naming name, email, company and last_purchase_date columns.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runRecipientImport,
}

var recipientBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a point-in-time copy of the recipient database",
	RunE:  runRecipientBackup,
}

func init() {
	recipientAddCmd.Flags().StringVar(&recipientName, "name", "", "Full name (required)")
	recipientAddCmd.Flags().StringVar(&recipientEmail, "email", "", "Email address (required)")
	recipientAddCmd.Flags().StringVar(&recipientCompany, "company", "", "Company")
	recipientAddCmd.Flags().StringVar(&recipientPurchase, "last-purchase", "", "Last purchase date (YYYY-MM-DD)")
	recipientAddCmd.MarkFlagRequired("name")
	recipientAddCmd.MarkFlagRequired("email")

	recipientListCmd.Flags().BoolVar(&recipientAll, "all", false, "Include deactivated recipients")
	recipientListCmd.Flags().StringVar(&recipientSearch, "search", "", "Match name, email or company")
	recipientListCmd.Flags().IntVar(&recipientLimit, "limit", 0, "Maximum number of recipients")
	recipientListCmd.Flags().IntVar(&recipientOffset, "offset", 0, "Skip this many recipients")

	recipientUpdateCmd.Flags().StringVar(&recipientName, "name", "", "New name")
	recipientUpdateCmd.Flags().StringVar(&recipientEmail, "email", "", "New email address")
	recipientUpdateCmd.Flags().StringVar(&recipientCompany, "company", "", "New company")
	recipientUpdateCmd.Flags().StringVar(&recipientPurchase, "last-purchase", "", "New last purchase date")

	recipientBackupCmd.Flags().StringVar(&recipientBackupTo, "dir", "", "Backup directory (default storage.backup_dir)")

	recipientCmd.AddCommand(
		recipientAddCmd,
		recipientListCmd,
		recipientShowCmd,
		recipientUpdateCmd,
		recipientDeactivateCmd,
		recipientRestoreCmd,
		recipientImportCmd,
		recipientBackupCmd,
	)
	rootCmd.AddCommand(recipientCmd)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid recipient id: %s", arg)
	}
	return id, nil
}

// optionalFlag returns nil for an empty value
func optionalFlag(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func runRecipientAdd(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	r := &recipient.Recipient{
		Name:             recipientName,
		Email:            recipientEmail,
		Company:          optionalFlag(recipientCompany),
		LastPurchaseDate: optionalFlag(recipientPurchase),
	}
	if err := application.Recipients.Add(context.Background(), r); err != nil {
		return fmt.Errorf("failed to add recipient: %w", err)
	}

	fmt.Printf("Recipient added: %d %s <%s>\n", r.ID, r.Name, r.Email)
	return nil
}

func runRecipientList(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	recipients, err := application.Recipients.List(context.Background(), recipient.Filter{
		ActiveOnly: !recipientAll,
		Search:     recipientSearch,
		Limit:      recipientLimit,
		Offset:     recipientOffset,
	})
	if err != nil {
		return fmt.Errorf("failed to list recipients: %w", err)
	}

	if len(recipients) == 0 {
		fmt.Println("No recipients found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tCOMPANY\tLAST PURCHASE\tACTIVE")
	fmt.Fprintln(w, "--\t----\t-----\t-------\t-------------\t------")
	for _, r := range recipients {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Name, r.Email, orDash(r.Company), orDash(r.LastPurchaseDate), yesNo(r.IsActive))
	}
	w.Flush()

	fmt.Printf("\nTotal: %d recipients\n", len(recipients))
	return nil
}

func runRecipientShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	r, err := application.Recipients.Get(context.Background(), id)
	if err != nil {
		return fmt.Errorf("failed to get recipient: %w", err)
	}

	fmt.Printf("ID:            %d\n", r.ID)
	fmt.Printf("Name:          %s\n", r.Name)
	fmt.Printf("Email:         %s\n", r.Email)
	fmt.Printf("Company:       %s\n", orDash(r.Company))
	fmt.Printf("Last purchase: %s\n", orDash(r.LastPurchaseDate))
	fmt.Printf("Active:        %s\n", yesNo(r.IsActive))
	return nil
}

func runRecipientUpdate(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	var u recipient.Update
	flags := cmd.Flags()
	if flags.Changed("name") {
		u.Name = &recipientName
	}
	if flags.Changed("email") {
		u.Email = &recipientEmail
	}
	if flags.Changed("company") {
		u.Company = &recipientCompany
	}
	if flags.Changed("last-purchase") {
		u.LastPurchaseDate = &recipientPurchase
	}
	if u.IsEmpty() {
		return fmt.Errorf("nothing to update: pass at least one of --name, --email, --company, --last-purchase")
	}

	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.Recipients.Update(context.Background(), id, u); err != nil {
		return fmt.Errorf("failed to update recipient: %w", err)
	}

	fmt.Printf("Recipient %d updated\n", id)
	return nil
}

func runRecipientDeactivate(cmd *cobra.Command, args []string) error {
	return setRecipientActive(args[0], false)
}

func runRecipientRestore(cmd *cobra.Command, args []string) error {
	return setRecipientActive(args[0], true)
}

func setRecipientActive(arg string, active bool) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}

	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := context.Background()
	if active {
		err = application.Recipients.Restore(ctx, id)
	} else {
		err = application.Recipients.Deactivate(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("failed to change recipient %d: %w", id, err)
	}

	if active {
		fmt.Printf("Recipient %d restored\n", id)
	} else {
		fmt.Printf("Recipient %d deactivated\n", id)
	}
	return nil
}

func runRecipientImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	result, err := application.Recipients.ImportCSV(context.Background(), f)
	if err != nil {
		return fmt.Errorf("failed to import recipients: %w", err)
	}

	fmt.Printf("Imported %d of %d rows (%d duplicates, %d skipped)\n",
		result.Imported, result.Total, result.Duplicates, result.Skipped)
	for _, e := range result.Errors {
		fmt.Printf("  %s\n", e)
	}
	return nil
}

func runRecipientBackup(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	dir := recipientBackupTo
	if dir == "" {
		dir = application.Config.Storage.BackupDir
	}

	path, err := application.Recipients.Backup(context.Background(), dir, time.Now())
	if err != nil {
		return fmt.Errorf("failed to back up recipients: %w", err)
	}

	fmt.Printf("Backup written to %s\n", path)
	return nil
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
