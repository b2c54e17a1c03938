package report

import (
	"context"
	"encoding/json"

	"github.com/teranos/reportlib/errors"
	"github.com/teranos/reportlib/logger"
	"github.com/teranos/reportlib/wire"
)

// FormModal is the state of a form dialog shown by the parent.
type FormModal struct {
	Fields   json.RawMessage `json:"fields"`
	Values   json.RawMessage `json:"values"`
	Messages json.RawMessage `json:"messages,omitempty"`
	Valid    *bool           `json:"valid,omitempty"`
}

// FormModalUpdate reacts to a change in an open form dialog. A non-nil
// result replaces the dialog's state.
type FormModalUpdate func(form FormModal) *FormModal

type formModalHandler struct {
	update FormModalUpdate
}

// OpenFormModal shows a form dialog and waits until the user confirms or
// cancels it. ok is false on cancel. update may be nil.
func (s *Session) OpenFormModal(ctx context.Context, form FormModal, update FormModalUpdate) (values json.RawMessage, ok bool, err error) {
	if err := s.requireReady("openFormModal"); err != nil {
		return nil, false, err
	}

	h := &formModalHandler{update: update}
	s.mu.Lock()
	s.formModal = h
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.formModal == h {
			s.formModal = nil
		}
		s.mu.Unlock()
	}()

	data, err := s.m.Request(ctx, wire.FormModalParams{
		Fields:    form.Fields,
		Values:    form.Values,
		Messages:  form.Messages,
		HasUpdate: update != nil,
	})
	if err != nil {
		return nil, false, err
	}
	if isFalse(data) {
		return nil, false, nil
	}
	return data, true, nil
}

func (s *Session) onFormModalUpdate(data json.RawMessage, _ bool) {
	s.mu.Lock()
	h := s.formModal
	s.mu.Unlock()
	if h == nil || h.update == nil {
		return
	}

	var form FormModal
	if err := json.Unmarshal(data, &form); err != nil {
		s.logger.Warnw("Ignoring malformed form modal update", logger.FieldError, err)
		return
	}
	next := h.update(form)
	if next == nil {
		return
	}
	s.reply(wire.FormModalUpdateParams{
		Fields:   next.Fields,
		Values:   next.Values,
		Messages: next.Messages,
		Valid:    next.Valid,
	})
}

// SidePaneClick identifies the side pane element that was clicked.
type SidePaneClick struct {
	ID string `json:"id"`
}

// SidePaneHandlers receives side pane interaction. Any field may be nil.
type SidePaneHandlers struct {
	Update func(update json.RawMessage)
	Click  func(click SidePaneClick)
	Close  func()
}

// OpenSidePane shows elements in the parent's side pane. Handlers stay
// installed until the pane closes or another pane is opened.
func (s *Session) OpenSidePane(ctx context.Context, elements json.RawMessage, handlers SidePaneHandlers) error {
	if err := s.requireReady("openSidePane"); err != nil {
		return err
	}
	if len(elements) == 0 {
		return errors.NewInvalidRequestError("openSidePane: elements are required")
	}

	h := handlers
	s.mu.Lock()
	s.sidePane = &h
	s.mu.Unlock()

	return s.m.Notify(ctx, wire.SidePaneParams{
		Elements:  elements,
		HasUpdate: handlers.Update != nil,
		HasClick:  handlers.Click != nil,
		HasClose:  handlers.Close != nil,
	})
}

func (s *Session) currentSidePane() *SidePaneHandlers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sidePane
}

func (s *Session) onSidePaneUpdate(data json.RawMessage, _ bool) {
	if h := s.currentSidePane(); h != nil && h.Update != nil {
		h.Update(data)
	}
}

func (s *Session) onSidePaneClick(data json.RawMessage, _ bool) {
	h := s.currentSidePane()
	if h == nil || h.Click == nil {
		return
	}
	var click SidePaneClick
	if err := json.Unmarshal(data, &click); err != nil {
		s.logger.Warnw("Ignoring malformed side pane click", logger.FieldError, err)
		return
	}
	h.Click(click)
}

func (s *Session) onSidePaneClose() {
	s.mu.Lock()
	h := s.sidePane
	s.sidePane = nil
	s.mu.Unlock()
	if h != nil && h.Close != nil {
		h.Close()
	}
}
