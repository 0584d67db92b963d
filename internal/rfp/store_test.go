package rfp

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"procurement/db"
	"procurement/models"
)

// memStore - хранилище в памяти с той же семантикой ошибок, что и db.Storage
type memStore struct {
	mu        sync.Mutex
	rfps      map[string]*models.RFP
	vendors   map[string]*models.Vendor
	proposals map[string]*models.Proposal // ключ rfpID/vendorID
	messages  map[string]string           // Message-ID -> ключ предложения
	clock     time.Time
}

func newMemStore() *memStore {
	return &memStore{
		rfps:      map[string]*models.RFP{},
		vendors:   map[string]*models.Vendor{},
		proposals: map[string]*models.Proposal{},
		messages:  map[string]string{},
		clock:     time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memStore) CreateRFP(_ context.Context, r *models.RFP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = db.NewID()
	}
	r.CreatedAt = m.tick()
	cp := *r
	m.rfps[r.ID] = &cp
	return nil
}

func (m *memStore) GetRFP(_ context.Context, id string) (*models.RFP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rfps[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) ListRFPs(_ context.Context) ([]models.RFP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.RFP{}
	for _, r := range m.rfps {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) TransitionRFP(_ context.Context, id string, from []string, to string) (*models.RFP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rfps[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	if !slices.Contains(from, r.Status) {
		return nil, db.ErrStatusConflict
	}
	r.Status = to
	cp := *r
	return &cp, nil
}

func (m *memStore) setStatus(id, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rfps[id].Status = status
}

func (m *memStore) CreateVendor(_ context.Context, v *models.Vendor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.vendors {
		if strings.EqualFold(existing.Email, v.Email) {
			return db.ErrDuplicateEmail
		}
	}
	if v.ID == "" {
		v.ID = db.NewID()
	}
	v.Email = strings.ToLower(v.Email)
	v.CreatedAt = m.tick()
	cp := *v
	m.vendors[v.ID] = &cp
	return nil
}

func (m *memStore) GetVendorByEmail(_ context.Context, email string) (*models.Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.vendors {
		if strings.EqualFold(v.Email, email) {
			cp := *v
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *memStore) GetVendorsByIDs(_ context.Context, ids []string) ([]models.Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Vendor{}
	for _, id := range ids {
		if v, ok := m.vendors[id]; ok {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (m *memStore) ListVendors(_ context.Context) ([]models.Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Vendor{}
	for _, v := range m.vendors {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) UpsertProposal(_ context.Context, p *models.Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := p.RFPID + "/" + p.VendorID
	now := m.tick()
	if existing, ok := m.proposals[key]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else {
		if p.ID == "" {
			p.ID = db.NewID()
		}
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	p.Score = nil
	cp := *p
	m.proposals[key] = &cp
	if p.SourceMessageID != nil {
		if _, ok := m.messages[*p.SourceMessageID]; !ok {
			m.messages[*p.SourceMessageID] = key
		}
	}
	return nil
}

func (m *memStore) GetProposalsForRFP(_ context.Context, rfpID string) ([]models.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Proposal{}
	for _, p := range m.proposals {
		if p.RFPID == rfpID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) GetProposalByMessageID(_ context.Context, messageID string) (*models.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.messages[messageID]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *m.proposals[key]
	return &cp, nil
}

func (m *memStore) SetProposalScore(_ context.Context, rfpID, vendorID string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[rfpID+"/"+vendorID]
	if !ok {
		return db.ErrNotFound
	}
	p.Score = &score
	return nil
}
