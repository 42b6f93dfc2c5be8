package handlers

import "github.com/araddon/dateparse"

// parseTimeCell is the shared multi-format date parser used by both the
// CSV and vector handlers (spec.md §4.1 "multi-format date parser").
func parseTimeCell(s string) (string, error) {
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return "", err
	}
	return t.Format("2006-01-02"), nil
}
