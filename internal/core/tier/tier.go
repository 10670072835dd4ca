package tier

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Tier is a named reminder configuration. Tiers differ only by the inclusive
// range of days overdue they select.
type Tier struct {
	Name    string
	MinDays int
	MaxDays int
}

var presets = map[string]Tier{
	"five-days":   {Name: "five-days", MinDays: 1, MaxDays: 5},
	"ten-days":    {Name: "ten-days", MinDays: 6, MaxDays: 10},
	"twenty-days": {Name: "twenty-days", MinDays: 11, MaxDays: 20},
}

// Preset returns the built-in tier registered under name.
func Preset(name string) (Tier, bool) {
	t, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// Names lists the built-in tier names in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Contains reports whether days falls inside the tier's inclusive range.
func (t Tier) Contains(days int) bool {
	return days >= t.MinDays && days <= t.MaxDays
}

// Validate checks that the tier is usable as a pipeline configuration.
func (t Tier) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("tier name is required")
	}
	if strings.ContainsAny(t.Name, `/\`) || t.Name == "." || t.Name == ".." {
		return fmt.Errorf("tier name %q must be a plain directory name", t.Name)
	}
	if t.MinDays > t.MaxDays {
		return fmt.Errorf("tier %q: min days %d is greater than max days %d", t.Name, t.MinDays, t.MaxDays)
	}
	return nil
}

func (t Tier) String() string {
	return fmt.Sprintf("%s[%d..%d]", t.Name, t.MinDays, t.MaxDays)
}
