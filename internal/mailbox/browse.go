package mailbox

import (
	"strings"
	"time"
)

// DefaultPerPage is the page size of the mailbox listing
const DefaultPerPage = 5

// Search returns messages whose sender, subject or body contains term,
// ignoring case
func Search(msgs []Message, term string) []Message {
	term = strings.ToLower(term)
	var out []Message
	for _, m := range msgs {
		if containsFold(m.From, term) || containsFold(m.FromAddr, term) ||
			containsFold(m.Subject, term) || containsFold(m.Body(), term) {
			out = append(out, m)
		}
	}
	return out
}

// Criteria narrows a message list. Empty fields match everything.
type Criteria struct {
	Sender  string
	Subject string
	After   time.Time // Inclusive, compared by calendar day
}

// Filter returns the messages matching every set criterion
func Filter(msgs []Message, c Criteria) []Message {
	sender := strings.ToLower(c.Sender)
	subject := strings.ToLower(c.Subject)

	var out []Message
	for _, m := range msgs {
		if sender != "" && !containsFold(m.From, sender) && !containsFold(m.FromAddr, sender) {
			continue
		}
		if subject != "" && !containsFold(m.Subject, subject) {
			continue
		}
		if !c.After.IsZero() && day(m.Date).Before(day(c.After)) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Page is one page of a message list
type Page struct {
	Items      []Message
	Number     int // 1-based
	TotalPages int
	Total      int
	Start      int // 1-based index of the first item, 0 when empty
	End        int
}

// Paginate slices msgs into pages of perPage. Page numbers outside the
// range are clamped.
func Paginate(msgs []Message, page, perPage int) Page {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	total := len(msgs)
	totalPages := (total + perPage - 1) / perPage

	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}

	p := Page{Number: page, TotalPages: totalPages, Total: total}
	start := (page - 1) * perPage
	if start >= total {
		return p
	}
	end := min(start+perPage, total)

	p.Items = msgs[start:end]
	p.Start = start + 1
	p.End = end
	return p
}

func containsFold(s, lowerTerm string) bool {
	return strings.Contains(strings.ToLower(s), lowerTerm)
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
