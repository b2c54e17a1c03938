package report

import (
	"context"
	"encoding/json"
	"time"

	"github.com/teranos/reportlib/errors"
	"github.com/teranos/reportlib/logger"
	"github.com/teranos/reportlib/messenger"
	"github.com/teranos/reportlib/wire"
)

// replyTimeout bounds messages sent back from inside a listener.
const replyTimeout = 10 * time.Second

// facetsResult is the payload of the facetsResult channel.
type facetsResult struct {
	FacetKey string          `json:"facetKey"`
	Data     json.RawMessage `json:"data"`
}

// facetsSelectionUpdate is the payload of the facetsSelectionUpdate channel.
type facetsSelectionUpdate struct {
	FacetKey     string          `json:"facetKey"`
	Selection    FacetsSelection `json:"selection"`
	ChangedFacet json.RawMessage `json:"changedFacet,omitempty"`
}

// dropdownSelection is the payload of the customDropdownSelection channel.
type dropdownSelection struct {
	DropdownID string `json:"dropdownId"`
	EntryID    string `json:"entryId"`
}

type mounter struct {
	s    *Session
	gen  uint64
	subs []*messenger.Subscription
}

// on registers fn for ch. fn is skipped once the configuration it was mounted
// for has been replaced, even if the dispatch was already under way.
func (mt *mounter) on(ch wire.Channel, callOnError bool, fn messenger.Listener) {
	s, gen := mt.s, mt.gen
	sub := s.m.On(ch, func(data json.RawMessage, isError bool) {
		if !s.live(gen) {
			return
		}
		fn(data, isError)
	}, callOnError)
	mt.subs = append(mt.subs, sub)
}

// mount registers one listener per channel cfg has a use for.
func (s *Session) mount(cfg *Configuration, gen uint64) []*messenger.Subscription {
	mt := &mounter{s: s, gen: gen}

	mt.on(wire.ChannelSetup, false, s.onSetup)

	if len(cfg.Facets) > 0 {
		mt.on(wire.ChannelFacetsResult, false, func(data json.RawMessage, _ bool) {
			s.onFacetsResult(cfg, data)
		})
		mt.on(wire.ChannelFacetsSelectionUpdate, false, func(data json.RawMessage, _ bool) {
			s.onFacetsSelection(cfg, data)
		})
	}

	if cfg.UI != nil {
		if cfg.UI.Update != nil {
			mt.on(wire.ChannelUISelectionUpdate, false, func(data json.RawMessage, _ bool) {
				s.onUISelection(cfg.UI.Update, data)
			})
		}
		if len(cfg.UI.OnButtonClick) > 0 {
			mt.on(wire.ChannelUIButtonClick, false, func(data json.RawMessage, _ bool) {
				s.onButtonClick(cfg.UI.OnButtonClick, data)
			})
		}
	}

	if cfg.Export != nil && cfg.Export.BeforeExport != nil {
		mt.on(wire.ChannelExportDataRequest, false, func(data json.RawMessage, _ bool) {
			s.onExportRequest(cfg.Export.BeforeExport, data)
		})
	}

	if cfg.TableConfigCallback != nil {
		mt.on(wire.ChannelTableConfigRequest, false, func(json.RawMessage, bool) {
			s.onTableConfigRequest(cfg.TableConfigCallback)
		})
	}

	if cfg.MenuActions != nil {
		if hasDropdownCallbacks(cfg.MenuActions.CustomDropdowns) {
			dropdowns := cfg.MenuActions.CustomDropdowns
			mt.on(wire.ChannelCustomDropdownSelection, false, func(data json.RawMessage, _ bool) {
				s.onDropdownSelection(dropdowns, data)
			})
		}
		if cb := cfg.MenuActions.ConfigureCallback; cb != nil {
			mt.on(wire.ChannelConfigure, false, func(json.RawMessage, bool) { cb() })
		}
	}

	if cb := cfg.ReportViewCallback; cb != nil {
		mt.on(wire.ChannelReportView, false, func(data json.RawMessage, _ bool) { cb(data) })
	}

	if cb := cfg.ToggleEditingCallback; cb != nil {
		mt.on(wire.ChannelToggleEditing, false, func(data json.RawMessage, _ bool) {
			var enabled bool
			if err := json.Unmarshal(data, &enabled); err != nil {
				s.logger.Warnw("Ignoring malformed toggleEditing payload", logger.FieldError, err)
				return
			}
			cb(enabled)
		})
	}

	mt.on(wire.ChannelFormModalUpdate, false, s.onFormModalUpdate)
	mt.on(wire.ChannelSidePaneFieldUpdate, false, s.onSidePaneUpdate)
	mt.on(wire.ChannelSidePaneClick, false, s.onSidePaneClick)
	mt.on(wire.ChannelSidePaneClose, false, func(json.RawMessage, bool) { s.onSidePaneClose() })

	if s.currentMonitor() != nil {
		mt.on(wire.ChannelDOMEvent, false, s.onDOMEvent)
		mt.on(wire.ChannelErrorEvent, true, s.onErrorEvent)
	}

	s.logger.Debugw("Mounted configuration listeners", logger.FieldCount, len(mt.subs), "generation", gen)
	return mt.subs
}

func hasDropdownCallbacks(dropdowns []CustomDropdown) bool {
	for _, d := range dropdowns {
		for _, e := range d.Entries {
			if e.Callback != nil {
				return true
			}
		}
	}
	return false
}

func (s *Session) onSetup(data json.RawMessage, _ bool) {
	setup, err := decodeSetup(data)
	if err != nil {
		s.logger.Warnw("Ignoring malformed setup refresh", logger.FieldError, err)
		return
	}
	s.mu.Lock()
	s.setup = setup
	s.mu.Unlock()
	s.logger.Debugw("Setup refreshed", logger.FieldReportID, setup.ReportID)
}

// facetFor finds the facet a payload addresses. An empty key selects the
// only facet when exactly one is configured.
func facetFor(cfg *Configuration, key string) (*FacetsConfig, bool) {
	if key == "" && len(cfg.Facets) == 1 {
		return &cfg.Facets[0], true
	}
	for i := range cfg.Facets {
		if cfg.Facets[i].Key == key {
			return &cfg.Facets[i], true
		}
	}
	return nil, false
}

func (s *Session) onFacetsResult(cfg *Configuration, data json.RawMessage) {
	var res facetsResult
	if err := json.Unmarshal(data, &res); err != nil {
		s.logger.Warnw("Ignoring malformed facets result", logger.FieldError, err)
		return
	}
	facet, ok := facetFor(cfg, res.FacetKey)
	if !ok {
		s.logger.Debugw("Facets result for unknown facet", "facet_key", res.FacetKey)
		return
	}

	s.mu.Lock()
	s.filterResults[facet.Key] = res.Data
	s.mu.Unlock()

	if facet.Callback != nil {
		facet.Callback(res.Data)
	}
}

func (s *Session) onFacetsSelection(cfg *Configuration, data json.RawMessage) {
	var upd facetsSelectionUpdate
	if err := json.Unmarshal(data, &upd); err != nil {
		s.logger.Warnw("Ignoring malformed facets selection", logger.FieldError, err)
		return
	}
	facet, ok := facetFor(cfg, upd.FacetKey)
	if !ok {
		s.logger.Debugw("Facets selection for unknown facet", "facet_key", upd.FacetKey)
		return
	}

	s.mu.Lock()
	s.facetSelections[facet.Key] = upd.Selection
	s.mu.Unlock()

	if facet.FacetFiltersChangedCallback != nil {
		facet.FacetFiltersChangedCallback(upd.Selection)
	}
	if facet.FacetChangedCallback != nil && len(upd.ChangedFacet) > 0 {
		facet.FacetChangedCallback(upd.ChangedFacet)
	}
}

func (s *Session) onUISelection(update func(UISelection) (*UIMinimalConfiguration, error), data json.RawMessage) {
	var sel UISelection
	if err := json.Unmarshal(data, &sel); err != nil {
		s.logger.Warnw("Ignoring malformed UI selection", logger.FieldError, err)
		return
	}
	next, err := update(sel)
	if err != nil {
		s.reportCallbackError("ui.update", err)
		return
	}
	if next == nil {
		return
	}
	raw, err := json.Marshal(next)
	if err != nil {
		s.reportCallbackError("ui.update", errors.Wrap(err, "encode UI configuration"))
		return
	}
	s.reply(wire.UIUpdateParams{Configuration: raw})
}

func (s *Session) onButtonClick(handlers map[string]func(ButtonClick), data json.RawMessage) {
	var click ButtonClick
	if err := json.Unmarshal(data, &click); err != nil {
		s.logger.Warnw("Ignoring malformed button click", logger.FieldError, err)
		return
	}
	fn, ok := handlers[click.ID]
	if !ok {
		s.logger.Debugw("Click on button without handler", "element_id", click.ID)
		return
	}
	fn(click)
}

func (s *Session) onExportRequest(before func(json.RawMessage) (json.RawMessage, error), data json.RawMessage) {
	payload, err := before(data)
	if err != nil {
		s.reportCallbackError("export.beforeExport", err)
		return
	}
	s.reply(wire.ExportDataParams{Data: payload})
}

func (s *Session) onTableConfigRequest(cb func() *TableConfig) {
	tc := cb()
	if tc == nil {
		return
	}
	raw, err := json.Marshal(tc)
	if err != nil {
		s.reportCallbackError("tableConfigCallback", errors.Wrap(err, "encode table config"))
		return
	}
	s.reply(wire.TableConfigParams{Config: raw})
}

func (s *Session) onDropdownSelection(dropdowns []CustomDropdown, data json.RawMessage) {
	var sel dropdownSelection
	if err := json.Unmarshal(data, &sel); err != nil {
		s.logger.Warnw("Ignoring malformed dropdown selection", logger.FieldError, err)
		return
	}
	for _, d := range dropdowns {
		if d.ID != sel.DropdownID {
			continue
		}
		for _, e := range d.Entries {
			if e.ID == sel.EntryID {
				if e.Callback != nil {
					e.Callback(e)
				}
				return
			}
		}
	}
	s.logger.Debugw("Selection of unknown dropdown entry", "dropdown_id", sel.DropdownID, "entry_id", sel.EntryID)
}

func (s *Session) onDOMEvent(data json.RawMessage, _ bool) {
	r := s.currentMonitor()
	if r == nil {
		return
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		fields = map[string]interface{}{"raw": string(data)}
	}
	r.CaptureEvent(wire.ChannelDOMEvent.ID(), fields)
}

func (s *Session) onErrorEvent(data json.RawMessage, _ bool) {
	r := s.currentMonitor()
	if r == nil {
		return
	}
	remote := &errors.RemoteError{Action: wire.ChannelErrorEvent.ID(), Data: data}
	r.CaptureError(errors.New(remote.Message()), map[string]string{"source": wire.ChannelErrorEvent.ID()})
}

// reply sends a fire-and-forget answer from inside a listener.
func (s *Session) reply(p wire.Params) {
	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()
	if err := s.m.Notify(ctx, p); err != nil {
		s.logger.Warnw("Failed to answer parent", logger.FieldAction, p.Action(), logger.FieldError, err)
	}
}

func (s *Session) reportCallbackError(callback string, err error) {
	s.logger.Errorw("Report callback failed", "callback", callback, logger.FieldError, err)
	if r := s.currentMonitor(); r != nil {
		r.CaptureError(err, map[string]string{"callback": callback})
	}
}
