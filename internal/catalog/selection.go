package catalog

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidSelection flags an option structure that does not satisfy the
// product's group constraints. It is fatal for the requesting operation.
var ErrInvalidSelection = errors.New("invalid option selection")

// ValidateSelections checks every selection against the product's option
// groups: options must belong to the named group, per-group totals must sit
// within [min, max], and child options require their parent to be selected.
func ValidateSelections(p Product, sels []Selection) error {
	groups := make(map[uuid.UUID]OptionGroup, len(p.Groups))
	options := make(map[uuid.UUID]Option)
	optionGroup := make(map[uuid.UUID]uuid.UUID)
	for _, g := range p.Groups {
		groups[g.ID] = g
		for _, o := range g.Options {
			options[o.ID] = o
			optionGroup[o.ID] = g.ID
		}
	}

	picked := make(map[uuid.UUID]bool, len(sels))
	counts := make(map[uuid.UUID]int, len(p.Groups))
	for _, sel := range sels {
		if sel.Quantity <= 0 {
			return fmt.Errorf("option quantity must be positive: %w", ErrInvalidSelection)
		}
		opt, ok := options[sel.OptionID]
		if !ok {
			return fmt.Errorf("option %s not found on product %s: %w", sel.OptionID, p.ID, ErrInvalidSelection)
		}
		if optionGroup[sel.OptionID] != sel.GroupID {
			return fmt.Errorf("option %s does not belong to group %s: %w", sel.OptionID, sel.GroupID, ErrInvalidSelection)
		}
		if opt.ParentOptionID != nil {
			if sel.ParentOptionID == nil || *sel.ParentOptionID != *opt.ParentOptionID {
				return fmt.Errorf("option %s requires parent option %s: %w", sel.OptionID, *opt.ParentOptionID, ErrInvalidSelection)
			}
		}
		picked[sel.OptionID] = true
		counts[sel.GroupID] += sel.Quantity
	}

	// Child selections are only valid when their parent was actually picked.
	for _, sel := range sels {
		if sel.ParentOptionID != nil && !picked[*sel.ParentOptionID] {
			return fmt.Errorf("parent option %s not selected: %w", *sel.ParentOptionID, ErrInvalidSelection)
		}
	}

	for _, g := range p.Groups {
		n := counts[g.ID]
		if n < g.Min {
			return fmt.Errorf("group %q requires at least %d selection(s): %w", g.Name, g.Min, ErrInvalidSelection)
		}
		if g.Max > 0 && n > g.Max {
			return fmt.Errorf("group %q allows at most %d selection(s): %w", g.Name, g.Max, ErrInvalidSelection)
		}
	}
	return nil
}
