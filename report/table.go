package report

import (
	"context"
	"encoding/json"

	"github.com/teranos/reportlib/errors"
	"github.com/teranos/reportlib/wire"
)

// Table controls the parent's table view of the report.
type Table struct {
	s *Session
}

// ShowPopover shows a popover over the table view.
func (t *Table) ShowPopover(ctx context.Context, popover json.RawMessage) error {
	if len(popover) == 0 {
		return errors.NewInvalidRequestError("showTablePopover: popover is required")
	}
	return t.s.m.Notify(ctx, wire.TablePopoverParams{Popover: popover})
}

func (t *Table) HidePopover(ctx context.Context) error {
	return t.s.m.Notify(ctx, wire.Signal{Name: wire.ActionHideTablePopover})
}

// SetFacetsConfig replaces the facet configuration at index for the table
// view. The facet must name the attributes the table loads.
func (t *Table) SetFacetsConfig(ctx context.Context, index int, facet FacetsConfig) error {
	if index < 0 {
		return errors.NewInvalidRequestError("setFacetsConfig: negative index %d", index)
	}
	if len(facet.Attributes) == 0 {
		return errors.NewInvalidRequestError("setFacetsConfig: facet %q has no attributes", facet.Key)
	}
	if cfg := t.s.Configuration(); cfg != nil && index >= len(cfg.Facets) {
		return errors.NewInvalidRequestError("setFacetsConfig: index %d out of range, %d facets configured", index, len(cfg.Facets))
	}
	raw, err := json.Marshal(facet)
	if err != nil {
		return errors.Wrap(err, "encode facets config")
	}
	return t.s.m.Notify(ctx, wire.FacetsConfigParams{Index: index, Config: raw})
}
