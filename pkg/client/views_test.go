package client

import (
	"testing"
	"time"
)

func tp(t time.Time) *time.Time { return &t }
func sp(s string) *string       { return &s }

func fixtureClient(now time.Time) *Client {
	c := New("http://example.invalid", nil)
	c.todos = []Todo{
		{ID: 1, Title: "File taxes", DueDate: tp(now.Add(-48 * time.Hour)), CreatedAt: now.Add(-5 * time.Hour)},
		{ID: 2, Title: "Water plants", Description: sp("the ferns especially"), DueDate: tp(now.Add(24 * time.Hour)), CreatedAt: now.Add(-4 * time.Hour)},
		{ID: 3, Title: "Book flights", DueDate: tp(now.Add(6 * 24 * time.Hour)), CreatedAt: now.Add(-3 * time.Hour)},
		{ID: 4, Title: "Renew passport", DueDate: tp(now.Add(30 * 24 * time.Hour)), CreatedAt: now.Add(-2 * time.Hour)},
		{ID: 5, Title: "Call dentist", IsCompleted: true, CompletedAt: tp(now.Add(-time.Hour)), CreatedAt: now.Add(-time.Hour)},
		{ID: 6, Title: "No deadline here", CreatedAt: now},
	}
	return c
}

func idsOf(todos []Todo) []int64 {
	ids := make([]int64, len(todos))
	for i, t := range todos {
		ids[i] = t.ID
	}
	return ids
}

func assertIDs(t *testing.T, got []Todo, want ...int64) {
	t.Helper()
	gotIDs := idsOf(got)
	if len(gotIDs) != len(want) {
		t.Fatalf("expected ids %v, got %v", want, gotIDs)
	}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("expected ids %v, got %v", want, gotIDs)
		}
	}
}

func TestOverdue(t *testing.T) {
	now := time.Now()
	c := fixtureClient(now)

	assertIDs(t, c.Overdue(now), 1)
}

func TestOverdueIgnoresCompleted(t *testing.T) {
	now := time.Now()
	c := fixtureClient(now)
	c.todos[0].IsCompleted = true

	assertIDs(t, c.Overdue(now))
}

func TestUrgentSortedBySoonestDue(t *testing.T) {
	now := time.Now()
	c := fixtureClient(now)

	// 2 is due tomorrow, 3 in six days; 1 is past due, 4 beyond the
	// window, 6 has no due date.
	assertIDs(t, c.Urgent(now), 2, 3)
}

func TestUrgentBoundaryIsInclusive(t *testing.T) {
	now := time.Now()
	c := New("http://example.invalid", nil)
	c.todos = []Todo{
		{ID: 1, Title: "due right now", DueDate: tp(now)},
		{ID: 2, Title: "due at window edge", DueDate: tp(now.Add(urgentWindow))},
		{ID: 3, Title: "just past the edge", DueDate: tp(now.Add(urgentWindow + time.Second))},
	}

	assertIDs(t, c.Urgent(now), 1, 2)
}

func TestFiltered(t *testing.T) {
	now := time.Now()
	c := fixtureClient(now)

	tests := []struct {
		name   string
		filter Filter
		query  string
		want   []int64
	}{
		{"all, incomplete first then newest", FilterAll, "", []int64{6, 4, 3, 2, 1, 5}},
		{"active only", FilterActive, "", []int64{6, 4, 3, 2, 1}},
		{"completed only", FilterCompleted, "", []int64{5}},
		{"overdue only", FilterOverdue, "", []int64{1}},
		{"query matches title", FilterAll, "taxes", []int64{1}},
		{"query is case-insensitive", FilterAll, "WATER", []int64{2}},
		{"query matches description", FilterAll, "ferns", []int64{2}},
		{"query plus status", FilterCompleted, "dentist", []int64{5}},
		{"no matches", FilterAll, "zzz", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertIDs(t, c.Filtered(tt.filter, tt.query, now), tt.want...)
		})
	}
}

func TestStats(t *testing.T) {
	now := time.Now()
	c := fixtureClient(now)

	s := c.Stats(now)
	if s.Total != 6 || s.Active != 5 || s.Completed != 1 || s.Overdue != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestStatsEmptyList(t *testing.T) {
	c := New("http://example.invalid", nil)

	s := c.Stats(time.Now())
	if s != (Stats{}) {
		t.Fatalf("expected zero stats, got %+v", s)
	}
}
