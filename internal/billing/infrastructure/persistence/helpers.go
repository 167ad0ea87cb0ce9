package persistence

import (
	"fmt"
	"strings"
	"time"
)

func errExternalIDTaken(id string) error {
	return fmt.Errorf("external subscription %s is already linked to another user", id)
}

func joinIDs(ids []string) string {
	return strings.Join(ids, ",")
}

func splitIDs(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

func timePtr(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}
