package model

import "time"

// UPtr converts an int into *int
func UPtr(i int) *int {
	return &i
}

// UVal safely dereferences *int, returning 0 for nil
func UVal(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// TPtr converts a time.Time into *time.Time
func TPtr(t time.Time) *time.Time {
	return &t
}
