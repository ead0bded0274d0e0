package mailbox

import (
	"fmt"
	"testing"
	"time"
)

func sampleMessages() []Message {
	return []Message{
		{UID: 1, From: "Alice", FromAddr: "alice@example.com", Subject: "Order question", Text: "Where is my plywood?", Date: time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)},
		{UID: 2, From: "bob@example.com", FromAddr: "bob@example.com", Subject: "Invoice", HTML: "<p>Invoice attached</p>", Date: time.Date(2024, 2, 10, 23, 30, 0, 0, time.UTC)},
		{UID: 3, From: "Carol", FromAddr: "carol@plyflame.com", Subject: "Re: Order question", Text: "Shipped today", Date: time.Date(2024, 2, 15, 8, 0, 0, 0, time.UTC)},
	}
}

func uids(msgs []Message) []uint32 {
	out := []uint32{}
	for _, m := range msgs {
		out = append(out, m.UID)
	}
	return out
}

func TestSearch(t *testing.T) {
	tests := []struct {
		term string
		want []uint32
	}{
		{"order", []uint32{1, 3}},
		{"ALICE", []uint32{1}},
		{"plyflame.com", []uint32{3}},
		{"invoice attached", []uint32{2}},
		{"nothing", []uint32{}},
		{"", []uint32{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			got := uids(Search(sampleMessages(), tt.term))
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("Search(%q) = %v, want %v", tt.term, got, tt.want)
			}
		})
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		want     []uint32
	}{
		{"empty", Criteria{}, []uint32{1, 2, 3}},
		{"sender by name", Criteria{Sender: "carol"}, []uint32{3}},
		{"sender by address", Criteria{Sender: "@example.com"}, []uint32{1, 2}},
		{"subject", Criteria{Subject: "ORDER"}, []uint32{1, 3}},
		{"after is inclusive by day", Criteria{After: time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)}, []uint32{2, 3}},
		{"combined", Criteria{Sender: "a", Subject: "order", After: time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)}, []uint32{3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := uids(Filter(sampleMessages(), tt.criteria))
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("Filter() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPaginate(t *testing.T) {
	msgs := make([]Message, 12)
	for i := range msgs {
		msgs[i].UID = uint32(i + 1)
	}

	tests := []struct {
		name       string
		page       int
		perPage    int
		wantNumber int
		wantFirst  uint32
		wantLen    int
		wantStart  int
		wantEnd    int
	}{
		{"first page default size", 1, 0, 1, 1, 5, 1, 5},
		{"last partial page", 3, 5, 3, 11, 2, 11, 12},
		{"beyond range clamps", 9, 5, 3, 11, 2, 11, 12},
		{"zero clamps to first", 0, 5, 1, 1, 5, 1, 5},
		{"single page", 1, 20, 1, 1, 12, 1, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Paginate(msgs, tt.page, tt.perPage)
			if p.Number != tt.wantNumber || len(p.Items) != tt.wantLen || p.Start != tt.wantStart || p.End != tt.wantEnd {
				t.Fatalf("Paginate() = page %d, %d items, %d-%d", p.Number, len(p.Items), p.Start, p.End)
			}
			if p.Items[0].UID != tt.wantFirst {
				t.Errorf("first UID = %d, want %d", p.Items[0].UID, tt.wantFirst)
			}
			if p.Total != 12 {
				t.Errorf("Total = %d", p.Total)
			}
		})
	}

	if p := Paginate(msgs, 1, 5); p.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", p.TotalPages)
	}
}

func TestPaginateEmpty(t *testing.T) {
	p := Paginate(nil, 1, 5)
	if len(p.Items) != 0 || p.TotalPages != 0 || p.Number != 1 || p.Start != 0 {
		t.Errorf("Paginate(nil) = %+v", p)
	}
}
