package digest

import (
	"strings"
	"time"

	"council-digest/directory"
	"council-digest/normalize"
	"council-digest/ranker"
)

// Window is the trailing time range of items eligible for a run.
// Always passed explicitly; the assembler never reaches for a clock.
type Window struct {
	Start time.Time
	End   time.Time
}

// Group is the display partition for one category.
type Group struct {
	Category string
	Items    []normalize.Item
}

// Payload is the finalized per-subscriber selection for one send.
type Payload struct {
	// Items in rank order, already filtered and capped.
	Items []normalize.Item
	// Highlights are the leading items, shown above the category
	// sections.
	Highlights []normalize.Item
	// Groups partitions Items by category in the configured display
	// order, preserving rank order within each group.
	Groups          []Group
	Window          Window
	TotalCandidates int
}

// Assembler selects, caps, and groups ranked items per subscriber.
type Assembler struct {
	maxItems      int
	maxHighlights int
	categoryOrder []string
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithMaxItems caps the payload size.
func WithMaxItems(n int) AssemblerOption {
	return func(a *Assembler) {
		a.maxItems = n
	}
}

// WithMaxHighlights caps the highlights block.
func WithMaxHighlights(n int) AssemblerOption {
	return func(a *Assembler) {
		a.maxHighlights = n
	}
}

// WithCategoryOrder fixes the display order of category groups.
func WithCategoryOrder(order []string) AssemblerOption {
	return func(a *Assembler) {
		a.categoryOrder = append([]string(nil), order...)
	}
}

// NewAssembler creates an assembler.
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		maxItems:      15,
		maxHighlights: 3,
		categoryOrder: []string{
			normalize.CategoryHearing,
			normalize.CategoryVideo,
			normalize.CategoryPress,
			normalize.CategoryOther,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble builds the payload for one subscriber from globally ranked
// items. An item is included when its category is among the
// subscriber's topics, or its title/excerpt matches the free-text
// interest. A subscriber with no criteria gets the top-ranked items
// overall. Output is deterministic for identical inputs.
func (a *Assembler) Assemble(sub directory.Subscriber, ranked []ranker.RankedItem, window Window) *Payload {
	var selected []normalize.Item
	for _, ri := range ranked {
		if len(selected) >= a.maxItems {
			break
		}
		if a.matches(sub, ri.Item) {
			selected = append(selected, ri.Item)
		}
	}

	highlights := selected
	if len(highlights) > a.maxHighlights {
		highlights = highlights[:a.maxHighlights]
	}

	return &Payload{
		Items:           selected,
		Highlights:      highlights,
		Groups:          a.group(selected),
		Window:          window,
		TotalCandidates: len(ranked),
	}
}

func (a *Assembler) matches(sub directory.Subscriber, item normalize.Item) bool {
	if !sub.HasCriteria() {
		return true
	}

	for _, topic := range sub.Topics {
		if strings.EqualFold(topic, item.Category) {
			return true
		}
	}

	if interest := strings.TrimSpace(sub.FreeTextInterest); interest != "" {
		text := strings.ToLower(item.Title + " " + item.Excerpt)
		for _, term := range splitInterest(interest) {
			if strings.Contains(text, term) {
				return true
			}
		}
	}

	return false
}

// splitInterest breaks a free-text interest into lowercase match terms
// on commas and semicolons.
func splitInterest(interest string) []string {
	fields := strings.FieldsFunc(interest, func(r rune) bool {
		return r == ',' || r == ';'
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			terms = append(terms, f)
		}
	}
	return terms
}

func (a *Assembler) group(items []normalize.Item) []Group {
	byCategory := make(map[string][]normalize.Item)
	for _, item := range items {
		byCategory[item.Category] = append(byCategory[item.Category], item)
	}

	var groups []Group
	for _, cat := range a.categoryOrder {
		if members := byCategory[cat]; len(members) > 0 {
			groups = append(groups, Group{Category: cat, Items: members})
			delete(byCategory, cat)
		}
	}
	// Categories missing from the configured order land at the end,
	// following the rank order of their first item.
	for _, item := range items {
		if members, ok := byCategory[item.Category]; ok {
			groups = append(groups, Group{Category: item.Category, Items: members})
			delete(byCategory, item.Category)
		}
	}
	return groups
}
