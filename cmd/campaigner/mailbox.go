package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/campaigner/internal/app"
	"github.com/foxzi/campaigner/internal/mailbox"
)

var (
	mailboxPage      int
	mailboxPerPage   int
	mailboxLimit     int
	mailboxSender    string
	mailboxSubject   string
	mailboxAfter     string
	mailboxReplyText string
	mailboxReplyHTML string
	mailboxForwardTo string
	mailboxNote      string
)

var mailboxCmd = &cobra.Command{
	Use:     "mailbox",
	Aliases: []string{"inbox"},
	Short:   "Read and answer received mail over IMAP",
}

var mailboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List received messages, newest page last",
	RunE:  runMailboxList,
}

var mailboxSearchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search sender, subject and body",
	Args:  cobra.ExactArgs(1),
	RunE:  runMailboxSearch,
}

var mailboxFilterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Filter messages by sender, subject or date",
	RunE:  runMailboxFilter,
}

var mailboxShowCmd = &cobra.Command{
	Use:   "show <uid>",
	Short: "Show a message",
	Args:  cobra.ExactArgs(1),
	RunE:  runMailboxShow,
}

var mailboxDeleteCmd = &cobra.Command{
	Use:   "delete <uid>",
	Short: "Delete a message",
	Args:  cobra.ExactArgs(1),
	RunE:  runMailboxDelete,
}

var mailboxReplyCmd = &cobra.Command{
	Use:   "reply <uid>",
	Short: "Reply to a message",
	Args:  cobra.ExactArgs(1),
	RunE:  runMailboxReply,
}

var mailboxForwardCmd = &cobra.Command{
	Use:   "forward <uid>",
	Short: "Forward a message",
	Args:  cobra.ExactArgs(1),
	RunE:  runMailboxForward,
}

func init() {
	mailboxCmd.PersistentFlags().IntVar(&mailboxLimit, "fetch", 0, "Messages to fetch (default imap.fetch_limit)")
	for _, c := range []*cobra.Command{mailboxListCmd, mailboxSearchCmd, mailboxFilterCmd} {
		c.Flags().IntVar(&mailboxPage, "page", 1, "Page number")
		c.Flags().IntVar(&mailboxPerPage, "per-page", mailbox.DefaultPerPage, "Messages per page")
	}

	mailboxFilterCmd.Flags().StringVar(&mailboxSender, "sender", "", "Sender contains")
	mailboxFilterCmd.Flags().StringVar(&mailboxSubject, "subject", "", "Subject contains")
	mailboxFilterCmd.Flags().StringVar(&mailboxAfter, "after", "", "Received on or after (YYYY-MM-DD)")

	mailboxReplyCmd.Flags().StringVar(&mailboxReplyText, "text", "", "Reply text (required)")
	mailboxReplyCmd.Flags().StringVar(&mailboxReplyHTML, "html", "", "Reply HTML (default a short note)")
	mailboxReplyCmd.MarkFlagRequired("text")

	mailboxForwardCmd.Flags().StringVar(&mailboxForwardTo, "to", "", "Forward to address (required)")
	mailboxForwardCmd.Flags().StringVar(&mailboxNote, "note", "", "Note above the forwarded message")
	mailboxForwardCmd.MarkFlagRequired("to")

	mailboxCmd.AddCommand(
		mailboxListCmd,
		mailboxSearchCmd,
		mailboxFilterCmd,
		mailboxShowCmd,
		mailboxDeleteCmd,
		mailboxReplyCmd,
		mailboxForwardCmd,
	)
	rootCmd.AddCommand(mailboxCmd)
}

// fetchMessages opens the app and reads the most recent messages
func fetchMessages(ctx context.Context) (*app.App, []mailbox.Message, error) {
	application, err := openApp()
	if err != nil {
		return nil, nil, err
	}

	limit := mailboxLimit
	if limit == 0 {
		limit = application.Config.IMAP.FetchLimit
	}

	var msgs []mailbox.Message
	err = application.WithMailbox(ctx, func(c *mailbox.Client) error {
		var err error
		msgs, err = c.Fetch(ctx, limit)
		return err
	})
	if err != nil {
		application.Close()
		return nil, nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return application, msgs, nil
}

// findMessage fetches and returns the message with the uid in arg
func findMessage(ctx context.Context, arg string) (*app.App, *mailbox.Message, error) {
	uid, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid message uid: %s", arg)
	}

	application, msgs, err := fetchMessages(ctx)
	if err != nil {
		return nil, nil, err
	}
	for i := range msgs {
		if msgs[i].UID == uint32(uid) {
			return application, &msgs[i], nil
		}
	}
	application.Close()
	return nil, nil, fmt.Errorf("%w: uid %d", mailbox.ErrNotFound, uid)
}

func printPage(msgs []mailbox.Message) {
	if len(msgs) == 0 {
		fmt.Println("No messages found")
		return
	}

	page := mailbox.Paginate(msgs, mailboxPage, mailboxPerPage)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "UID\tDATE\tFROM\tSUBJECT")
	fmt.Fprintln(w, "---\t----\t----\t-------")
	for _, m := range page.Items {
		date := "-"
		if !m.Date.IsZero() {
			date = m.Date.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", m.UID, date, truncate(m.From, 30), truncate(m.Subject, 50))
	}
	w.Flush()

	fmt.Printf("\nShowing %d-%d of %d (page %d/%d)\n", page.Start, page.End, page.Total, page.Number, page.TotalPages)
}

func runMailboxList(cmd *cobra.Command, args []string) error {
	application, msgs, err := fetchMessages(context.Background())
	if err != nil {
		return err
	}
	defer application.Close()

	printPage(msgs)
	return nil
}

func runMailboxSearch(cmd *cobra.Command, args []string) error {
	application, msgs, err := fetchMessages(context.Background())
	if err != nil {
		return err
	}
	defer application.Close()

	printPage(mailbox.Search(msgs, args[0]))
	return nil
}

func runMailboxFilter(cmd *cobra.Command, args []string) error {
	criteria := mailbox.Criteria{Sender: mailboxSender, Subject: mailboxSubject}
	if mailboxAfter != "" {
		after, err := time.Parse("2006-01-02", mailboxAfter)
		if err != nil {
			return fmt.Errorf("invalid --after date %q: use YYYY-MM-DD", mailboxAfter)
		}
		criteria.After = after
	}

	application, msgs, err := fetchMessages(context.Background())
	if err != nil {
		return err
	}
	defer application.Close()

	printPage(mailbox.Filter(msgs, criteria))
	return nil
}

func runMailboxShow(cmd *cobra.Command, args []string) error {
	application, msg, err := findMessage(context.Background(), args[0])
	if err != nil {
		return err
	}
	defer application.Close()

	fmt.Printf("UID:     %d\n", msg.UID)
	fmt.Printf("From:    %s <%s>\n", msg.From, msg.Sender())
	fmt.Printf("Date:    %s\n", msg.DateString())
	fmt.Printf("Subject: %s\n", msg.Subject)
	for _, a := range msg.Attachments {
		fmt.Printf("Attachment: %s (%s, %d bytes)\n", a.Filename, a.ContentType, a.Size)
	}
	fmt.Printf("\n%s\n", msg.Body())
	return nil
}

func runMailboxDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	uid, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid message uid: %s", args[0])
	}

	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	err = application.WithMailbox(ctx, func(c *mailbox.Client) error {
		return c.Delete(ctx, uint32(uid))
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	fmt.Printf("Message %d deleted\n", uid)
	return nil
}

func runMailboxReply(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	application, msg, err := findMessage(ctx, args[0])
	if err != nil {
		return err
	}
	defer application.Close()

	draft, err := mailbox.Reply(msg, mailboxReplyText, mailboxReplyHTML)
	if err != nil {
		return fmt.Errorf("failed to draft reply: %w", err)
	}
	if err := application.SendMessage(ctx, draft.Message()); err != nil {
		return err
	}

	fmt.Printf("Reply sent to %s\n", msg.Sender())
	return nil
}

func runMailboxForward(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	application, msg, err := findMessage(ctx, args[0])
	if err != nil {
		return err
	}
	defer application.Close()

	draft, err := mailbox.Forward(msg, mailboxForwardTo, mailboxNote)
	if err != nil {
		return fmt.Errorf("failed to draft forward: %w", err)
	}
	if err := application.SendMessage(ctx, draft.Message()); err != nil {
		return err
	}

	fmt.Printf("Message forwarded to %s\n", mailboxForwardTo)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
