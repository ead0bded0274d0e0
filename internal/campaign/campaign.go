package campaign

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/campaigner/internal/analytics"
	"github.com/foxzi/campaigner/internal/recipient"
	"github.com/foxzi/campaigner/internal/render"
)

// Outcome statuses
const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
	StatusRendered = "rendered" // dry run
)

// ID returns the analytics campaign id for a template name; the built-in
// personalized email uses the default campaign
func ID(templateName string) string {
	if templateName == "" {
		return analytics.DefaultCampaign
	}
	return "template_" + templateName
}

// Options tune one run
type Options struct {
	DryRun bool // render only: no send, no analytics, no delay
	Limit  int  // cap on recipients, 0 = all
}

// Outcome is the result for one recipient
type Outcome struct {
	Recipient recipient.Recipient `json:"recipient"`
	Status    string              `json:"status"`
	Reason    string              `json:"reason,omitempty"`
	Kind      string              `json:"kind,omitempty"` // failure class, used as metrics label
	Email     *render.Email       `json:"email,omitempty"`
}

// Report aggregates a run
type Report struct {
	RunID      string        `json:"run_id"`
	CampaignID string        `json:"campaign_id"`
	DryRun     bool          `json:"dry_run,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Outcomes   []Outcome     `json:"outcomes"`
	Sent       int           `json:"sent"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Rendered   int           `json:"rendered,omitempty"`
	Attempted  int           `json:"attempted"`
}

func newReport(campaignID string, dryRun bool, started time.Time) *Report {
	return &Report{
		RunID:      uuid.NewString(),
		CampaignID: campaignID,
		DryRun:     dryRun,
		StartedAt:  started,
	}
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case StatusSent:
		r.Sent++
		r.Attempted++
	case StatusFailed:
		r.Failed++
		r.Attempted++
	case StatusRendered:
		r.Rendered++
		r.Attempted++
	case StatusSkipped:
		r.Skipped++
	}
}

// Failures returns the failed outcomes in order
func (r *Report) Failures() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			failed = append(failed, o)
		}
	}
	return failed
}

// Summary is the line shown to the user after a run
func (r *Report) Summary() string {
	if r.DryRun {
		return fmt.Sprintf("rendered %d/%d recipients (dry run)", r.Rendered, r.Attempted)
	}
	s := fmt.Sprintf("sent to %d/%d recipients", r.Sent, r.Attempted)
	if r.Skipped > 0 {
		s += fmt.Sprintf(", %d skipped", r.Skipped)
	}
	return s
}
