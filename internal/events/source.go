package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/beekhof/astrocal/internal/calendar"
)

// Source retrieves the events of one month.
type Source interface {
	Fetch(ctx context.Context, period calendar.Period) (map[calendar.DateKey]string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, period calendar.Period) (map[calendar.DateKey]string, error)

// Fetch implements Source.
func (f SourceFunc) Fetch(ctx context.Context, period calendar.Period) (map[calendar.DateKey]string, error) {
	return f(ctx, period)
}

// NamedSource labels a source for logging and error messages.
type NamedSource struct {
	Name   string
	Source Source
}

// Multi fetches from several sources and merges the results. Labels of
// the same day are joined with "; " in source order. Failed sources do
// not discard the others' results: the merged map is returned together
// with the joined errors.
type Multi []NamedSource

// Fetch implements Source.
func (m Multi) Fetch(ctx context.Context, period calendar.Period) (map[calendar.DateKey]string, error) {
	merged := make(map[calendar.DateKey]string)
	var errs []error

	for _, ns := range m {
		found, err := ns.Source.Fetch(ctx, period)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ns.Name, err))
		}
		for key, label := range found {
			if existing, ok := merged[key]; ok && existing != label {
				merged[key] = existing + "; " + label
				continue
			}
			merged[key] = label
		}
	}

	return merged, errors.Join(errs...)
}

// Names returns the source names, for logging.
func (m Multi) Names() string {
	names := make([]string, len(m))
	for i, ns := range m {
		names[i] = ns.Name
	}
	return strings.Join(names, ", ")
}
