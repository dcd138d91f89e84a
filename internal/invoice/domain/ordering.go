package domain

import (
	"sort"
)

// SortOldestFirst orders invoices by due date ascending with undated
// invoices last, then by creation time, then by id.
func SortOldestFirst(items []OpenInvoice) {
	sort.SliceStable(items, func(i, j int) bool {
		return oldestFirst(items[i].Invoice, items[j].Invoice)
	})
}

func oldestFirst(a, b Invoice) bool {
	switch {
	case a.DueDate == nil && b.DueDate != nil:
		return false
	case a.DueDate != nil && b.DueDate == nil:
		return true
	case a.DueDate != nil && b.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
		return a.DueDate.Before(*b.DueDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
