package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/foxzi/campaigner/internal/app"
	"github.com/foxzi/campaigner/internal/recipient"
	"github.com/foxzi/campaigner/internal/render"
	"github.com/foxzi/campaigner/internal/template"
)

var (
	templateName        string
	templateSubject     string
	templateText        string
	templateTextFile    string
	templateHTML        string
	templateHTMLFile    string
	templateRecipientID int64
)

var templateCmd = &cobra.Command{
	Use:     "template",
	Aliases: []string{"templates"},
	Short:   "Email template commands",
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates",
	RunE:  runTemplateList,
}

var templateShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a template and its placeholders",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateShow,
}

var templateAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new template",
	Long: `Add a new template. Subject and bodies may use {name}, {first_name},
{email}, {company}, {last_purchase_date}, {last_purchase} and {id}.
Use {{ and }} for literal braces.`,
	RunE: runTemplateAdd,
}

var templateEditCmd = &cobra.Command{
	Use:   "edit <name>",
	Short: "Change an existing template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateEdit,
}

var templateDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateDelete,
}

var templatePreviewCmd = &cobra.Command{
	Use:   "preview [name]",
	Short: "Render a template for one recipient",
	Long:  `Render a template, or the built-in personalized email when no name is given, for one recipient without sending it.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTemplatePreview,
}

func init() {
	templateAddCmd.Flags().StringVar(&templateName, "name", "", "Template name (required)")
	templateAddCmd.Flags().StringVar(&templateSubject, "subject", "", "Subject (required)")
	templateAddCmd.Flags().StringVar(&templateText, "text", "", "Plain text body")
	templateAddCmd.Flags().StringVar(&templateTextFile, "text-file", "", "Read the plain text body from a file")
	templateAddCmd.Flags().StringVar(&templateHTML, "html", "", "HTML body")
	templateAddCmd.Flags().StringVar(&templateHTMLFile, "html-file", "", "Read the HTML body from a file")
	templateAddCmd.MarkFlagRequired("name")
	templateAddCmd.MarkFlagRequired("subject")

	templateEditCmd.Flags().StringVar(&templateSubject, "subject", "", "New subject")
	templateEditCmd.Flags().StringVar(&templateText, "text", "", "New plain text body")
	templateEditCmd.Flags().StringVar(&templateTextFile, "text-file", "", "Read the new plain text body from a file")
	templateEditCmd.Flags().StringVar(&templateHTML, "html", "", "New HTML body")
	templateEditCmd.Flags().StringVar(&templateHTMLFile, "html-file", "", "Read the new HTML body from a file")

	templatePreviewCmd.Flags().Int64Var(&templateRecipientID, "id", 0, "Recipient id (default first active recipient)")

	templateCmd.AddCommand(
		templateListCmd,
		templateShowCmd,
		templateAddCmd,
		templateEditCmd,
		templateDeleteCmd,
		templatePreviewCmd,
	)
	rootCmd.AddCommand(templateCmd)
}

// bodyFlag returns the inline value or the contents of file, whichever was
// given; ok is false when neither flag was set
func bodyFlag(cmd *cobra.Command, inline, file, inlineName, fileName string) (string, bool, error) {
	flags := cmd.Flags()
	switch {
	case flags.Changed(inlineName) && flags.Changed(fileName):
		return "", false, fmt.Errorf("--%s and --%s are mutually exclusive", inlineName, fileName)
	case flags.Changed(fileName):
		data, err := os.ReadFile(file)
		if err != nil {
			return "", false, fmt.Errorf("failed to read %s: %w", file, err)
		}
		return string(data), true, nil
	case flags.Changed(inlineName):
		return inline, true, nil
	}
	return "", false, nil
}

func runTemplateList(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	names, err := application.Templates.List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}

	if len(names) == 0 {
		fmt.Println("No templates found")
		return nil
	}

	fmt.Println("Available templates:")
	for _, name := range names {
		fmt.Printf("  - %s\n", name)
	}
	return nil
}

func runTemplateShow(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	tmpl, err := application.Templates.Get(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get template: %w", err)
	}

	fmt.Printf("Name:         %s\n", tmpl.Name)
	fmt.Printf("Subject:      %s\n", tmpl.Subject)
	fmt.Printf("Placeholders: %s\n", strings.Join(tmpl.Fields(), ", "))
	if !tmpl.CreatedAt.IsZero() {
		fmt.Printf("Created:      %s\n", tmpl.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Updated:      %s\n", tmpl.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	if tmpl.Text != "" {
		fmt.Printf("\n--- Text ---\n%s\n", tmpl.Text)
	}
	if tmpl.HTML != "" {
		fmt.Printf("\n--- HTML ---\n%s\n", tmpl.HTML)
	}
	return nil
}

func runTemplateAdd(cmd *cobra.Command, args []string) error {
	text, _, err := bodyFlag(cmd, templateText, templateTextFile, "text", "text-file")
	if err != nil {
		return err
	}
	html, _, err := bodyFlag(cmd, templateHTML, templateHTMLFile, "html", "html-file")
	if err != nil {
		return err
	}

	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	tmpl := &template.Template{
		Name:    templateName,
		Subject: templateSubject,
		Text:    text,
		HTML:    html,
	}
	if err := application.Templates.Create(context.Background(), tmpl); err != nil {
		return fmt.Errorf("failed to add template: %w", err)
	}

	fmt.Printf("Template '%s' added\n", tmpl.Name)
	return nil
}

func runTemplateEdit(cmd *cobra.Command, args []string) error {
	text, textSet, err := bodyFlag(cmd, templateText, templateTextFile, "text", "text-file")
	if err != nil {
		return err
	}
	html, htmlSet, err := bodyFlag(cmd, templateHTML, templateHTMLFile, "html", "html-file")
	if err != nil {
		return err
	}
	subjectSet := cmd.Flags().Changed("subject")
	if !textSet && !htmlSet && !subjectSet {
		return fmt.Errorf("nothing to change: pass --subject, --text or --html")
	}

	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := context.Background()
	tmpl, err := application.Templates.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get template: %w", err)
	}
	if subjectSet {
		tmpl.Subject = templateSubject
	}
	if textSet {
		tmpl.Text = text
	}
	if htmlSet {
		tmpl.HTML = html
	}

	if err := application.Templates.Save(ctx, tmpl); err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}

	fmt.Printf("Template '%s' updated\n", tmpl.Name)
	return nil
}

func runTemplateDelete(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.Templates.Delete(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	fmt.Printf("Template '%s' deleted\n", args[0])
	return nil
}

func runTemplatePreview(cmd *cobra.Command, args []string) error {
	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := context.Background()
	rcpt, err := previewRecipient(ctx, application, templateRecipientID)
	if err != nil {
		return err
	}

	var email *render.Email
	if len(args) == 0 {
		email, err = application.Renderer.RenderPersonalized(rcpt)
	} else {
		var tmpl *template.Template
		if tmpl, err = application.Templates.Get(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to get template: %w", err)
		}
		email, err = application.Renderer.RenderTemplate(tmpl, rcpt)
	}
	if err != nil {
		return fmt.Errorf("failed to render for %s: %w", rcpt.Email, err)
	}

	printEmail(rcpt, email)
	return nil
}

// previewRecipient returns the recipient with id, or the first active one
func previewRecipient(ctx context.Context, application *app.App, id int64) (*recipient.Recipient, error) {
	if id != 0 {
		r, err := application.Recipients.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get recipient: %w", err)
		}
		return r, nil
	}

	active, err := application.Recipients.List(ctx, recipient.Filter{ActiveOnly: true, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	if len(active) == 0 {
		return nil, errors.New("no active recipients to preview with")
	}
	return &active[0], nil
}

func printEmail(rcpt *recipient.Recipient, email *render.Email) {
	fmt.Printf("To:      %s <%s>\n", rcpt.Name, rcpt.Email)
	fmt.Printf("Subject: %s\n", email.Subject)
	if email.Text != "" {
		fmt.Printf("\n--- Text ---\n%s\n", email.Text)
	}
	if email.HTML != "" {
		fmt.Printf("\n--- HTML ---\n%s\n", email.HTML)
	}
}
