package main

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/logflow/poflow/pkg/tui"
)

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func count(n int64) string { return tui.FormatNumber(n) }

func day(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateOnly)
}

func optDay(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return day(*t)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func extOf(path string) string {
	return strings.TrimPrefix(filepath.Ext(path), ".")
}
