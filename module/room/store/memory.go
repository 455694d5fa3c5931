package store

import (
	"context"
	"sort"
	"sync"

	"PMarket/module/room/model"
	"PMarket/tools/errs"
)

// Memory is an in-process Store for dev mode and tests.
type Memory struct {
	mu       sync.RWMutex
	messages map[string]map[string]*model.Message // room -> id -> message
	offers   map[string]*model.Offer
}

func NewMemory() *Memory {
	return &Memory{
		messages: make(map[string]map[string]*model.Message),
		offers:   make(map[string]*model.Offer),
	}
}

func (s *Memory) ListMessages(_ context.Context, room string) ([]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Message, 0, len(s.messages[room]))
	for _, m := range s.messages[room] {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Memory) GetMessage(_ context.Context, room, id string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[room][id]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("message", "id", id)
	}
	cp := *m
	return &cp, nil
}

func (s *Memory) InsertMessage(_ context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.messages[m.Room]
	if byID == nil {
		byID = make(map[string]*model.Message)
		s.messages[m.Room] = byID
	}
	if _, dup := byID[m.ID]; dup {
		return errs.New("duplicate message", "id", m.ID)
	}
	cp := *m
	cp.Offer = nil
	byID[m.ID] = &cp
	return nil
}

func (s *Memory) UpdateMessage(_ context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.messages[m.Room][m.ID]
	if !ok {
		return errs.ErrRecordNotFound.WrapMsg("message", "id", m.ID)
	}
	cur.Body = m.Body
	cur.Attachments = m.Attachments
	cur.UpdatedAt = m.UpdatedAt
	return nil
}

func (s *Memory) DeleteMessage(_ context.Context, room, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.messages[room]
	if _, ok := byID[id]; !ok {
		return errs.ErrRecordNotFound.WrapMsg("message", "id", id)
	}
	delete(byID, id)
	if len(byID) == 0 {
		delete(s.messages, room)
	}
	return nil
}

func (s *Memory) GetOffer(_ context.Context, id string) (*model.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.offers[id]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("offer", "id", id)
	}
	cp := *o
	return &cp, nil
}

func (s *Memory) InsertOffer(_ context.Context, o *model.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.offers[o.ID]; dup {
		return errs.New("duplicate offer", "id", o.ID)
	}
	cp := *o
	s.offers[o.ID] = &cp
	return nil
}
