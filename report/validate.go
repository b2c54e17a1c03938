package report

import (
	"github.com/teranos/reportlib/errors"
)

// Validate checks a configuration before it is sent to the parent.
// Problems the parent would tolerate are returned as warnings; anything
// that would make callbacks unreachable or ambiguous is an error wrapping
// errors.ErrInvalidConfiguration.
func (c *Configuration) Validate() (warnings []string, err error) {
	if c == nil {
		return nil, errors.NewInvalidConfigurationError("configuration is nil")
	}

	keys := make(map[string]bool, len(c.Facets))
	for i, f := range c.Facets {
		if f.Key == "" {
			return nil, errors.NewInvalidConfigurationError("facets[%d]: key is required", i)
		}
		if keys[f.Key] {
			return nil, errors.NewInvalidConfigurationError("facets[%d]: duplicate key %q", i, f.Key)
		}
		keys[f.Key] = true
		if f.DefaultPageSize < 0 {
			return nil, errors.NewInvalidConfigurationError("facet %q: defaultPageSize must not be negative", f.Key)
		}
	}

	if c.MenuActions != nil {
		if c.MenuActions.ShowConfigure && c.MenuActions.ConfigureCallback == nil {
			warnings = append(warnings, "menuActions.showConfigure is set without a configure callback")
		}
		if err := validateDropdowns(c.MenuActions.CustomDropdowns); err != nil {
			return nil, err
		}
	}

	if c.ReportViewCallback != nil && c.ReportViewFactSheetType == "" {
		warnings = append(warnings, "reportViewCallback is set but reportViewFactSheetType is empty, the view selector stays hidden")
	}
	if c.ToggleEditingCallback != nil && !c.AllowEditing {
		warnings = append(warnings, "toggleEditingCallback is set but allowEditing is false")
	}

	if c.Export != nil && c.Export.Disabled && c.Export.BeforeExport != nil {
		warnings = append(warnings, "export.beforeExport is set but export is disabled")
	}

	if c.UI != nil {
		for id, fn := range c.UI.OnButtonClick {
			if id == "" {
				return nil, errors.NewInvalidConfigurationError("ui.onButtonClick: element id is required")
			}
			if fn == nil {
				return nil, errors.NewInvalidConfigurationError("ui.onButtonClick[%q]: handler is nil", id)
			}
		}
		if c.UI.Elements != nil && c.UI.Update == nil {
			warnings = append(warnings, "ui.elements are set without an update callback, selections are not reported back")
		}
	}

	return warnings, nil
}

func validateDropdowns(dropdowns []CustomDropdown) error {
	ids := make(map[string]bool, len(dropdowns))
	for i, d := range dropdowns {
		if d.ID == "" {
			return errors.NewInvalidConfigurationError("customDropdowns[%d]: id is required", i)
		}
		if ids[d.ID] {
			return errors.NewInvalidConfigurationError("customDropdowns[%d]: duplicate id %q", i, d.ID)
		}
		ids[d.ID] = true

		entries := make(map[string]bool, len(d.Entries))
		for j, e := range d.Entries {
			if e.ID == "" {
				return errors.NewInvalidConfigurationError("dropdown %q entries[%d]: id is required", d.ID, j)
			}
			if entries[e.ID] {
				return errors.NewInvalidConfigurationError("dropdown %q entries[%d]: duplicate id %q", d.ID, j, e.ID)
			}
			entries[e.ID] = true
		}
		if d.InitialSelectionEntryID != "" && !entries[d.InitialSelectionEntryID] {
			return errors.NewInvalidConfigurationError("dropdown %q: initial selection %q is not one of its entries", d.ID, d.InitialSelectionEntryID)
		}
	}
	return nil
}
