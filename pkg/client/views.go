package client

import (
	"sort"
	"strings"
	"time"
)

// urgentWindow matches the server's classification: a todo is urgent when
// its due date falls within the next seven days.
const urgentWindow = 7 * 24 * time.Hour

// Filter selects a slice of the todo list.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterActive    Filter = "active"
	FilterCompleted Filter = "completed"
	FilterOverdue   Filter = "overdue"
)

// Stats summarizes the cached list.
type Stats struct {
	Total     int
	Active    int
	Completed int
	Overdue   int
}

func isOverdue(t Todo, now time.Time) bool {
	return !t.IsCompleted && t.DueDate != nil && t.DueDate.Before(now)
}

func isUrgent(t Todo, now time.Time) bool {
	if t.IsCompleted || t.DueDate == nil {
		return false
	}
	return !t.DueDate.Before(now) && !t.DueDate.After(now.Add(urgentWindow))
}

// Overdue returns incomplete todos whose due date has passed.
func (c *Client) Overdue(now time.Time) []Todo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []Todo{}
	for _, t := range c.todos {
		if isOverdue(t, now) {
			out = append(out, t)
		}
	}
	return out
}

// Urgent returns incomplete todos due within the next seven days, soonest
// first.
func (c *Client) Urgent(now time.Time) []Todo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []Todo{}
	for _, t := range c.todos {
		if isUrgent(t, now) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueDate.Before(*out[j].DueDate)
	})
	return out
}

// Filtered applies a status filter and a case-insensitive text query over
// title and description. Incomplete todos sort before completed ones, and
// within each group newest first.
func (c *Client) Filtered(filter Filter, query string, now time.Time) []Todo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	out := []Todo{}
	for _, t := range c.todos {
		switch filter {
		case FilterActive:
			if t.IsCompleted {
				continue
			}
		case FilterCompleted:
			if !t.IsCompleted {
				continue
			}
		case FilterOverdue:
			if !isOverdue(t, now) {
				continue
			}
		}
		if query != "" && !matchesQuery(t, query) {
			continue
		}
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsCompleted != out[j].IsCompleted {
			return !out[i].IsCompleted
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func matchesQuery(t Todo, query string) bool {
	if strings.Contains(strings.ToLower(t.Title), query) {
		return true
	}
	return t.Description != nil && strings.Contains(strings.ToLower(*t.Description), query)
}

// Stats counts the cached todos by state.
func (c *Client) Stats(now time.Time) Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Stats{Total: len(c.todos)}
	for _, t := range c.todos {
		if t.IsCompleted {
			s.Completed++
			continue
		}
		s.Active++
		if isOverdue(t, now) {
			s.Overdue++
		}
	}
	return s
}
