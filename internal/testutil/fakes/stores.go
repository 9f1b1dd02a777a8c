package fakes

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/leadwatch/leadwatch/internal/core"
	"github.com/leadwatch/leadwatch/internal/data"
	"github.com/leadwatch/leadwatch/internal/domain/model"
)

// CredentialStore is an in-memory core.CredentialRepository.
type CredentialStore struct {
	mu     sync.Mutex
	creds  map[string]model.Credential
	writes int
}

// NewCredentialStore returns an empty CredentialStore.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{creds: make(map[string]model.Credential)}
}

var _ core.CredentialRepository = (*CredentialStore)(nil)

func (s *CredentialStore) Get(_ context.Context, userID string) (*model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[userID]
	if !ok {
		return nil, data.ErrCredentialNotFound
	}
	return &c, nil
}

func (s *CredentialStore) Upsert(_ context.Context, req model.SaveCredentialRequest) (*model.Credential, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.IfRevision != "" {
		if cur, ok := s.creds[req.UserID]; !ok || cur.Revision != req.IfRevision {
			return nil, data.ErrCredentialChanged
		}
	}
	s.writes++
	c := model.Credential{
		UserID:       req.UserID,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		ExpiresAt:    req.ExpiresAt.UTC(),
		Scope:        req.Scope,
		Revision:     strconv.Itoa(s.writes),
	}
	s.creds[req.UserID] = c
	return &c, nil
}

func (s *CredentialStore) DeleteRevision(_ context.Context, userID, revision string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.creds[userID]; !ok || cur.Revision != revision {
		return false, nil
	}
	delete(s.creds, userID)
	return true, nil
}

func (s *CredentialStore) Delete(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.creds[userID]
	delete(s.creds, userID)
	return ok, nil
}

func (s *CredentialStore) ListExpiring(_ context.Context, before time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var creds []model.Credential
	for _, c := range s.creds {
		if !c.ExpiresAt.After(before) {
			creds = append(creds, c)
		}
	}
	sort.Slice(creds, func(a, b int) bool { return creds[a].ExpiresAt.Before(creds[b].ExpiresAt) })
	ids := make([]string, 0, len(creds))
	for _, c := range creds {
		if len(ids) == limit {
			break
		}
		ids = append(ids, c.UserID)
	}
	return ids, nil
}

// ProductStore is an in-memory core.ProductRepository.
type ProductStore struct {
	mu       sync.Mutex
	products map[string]*model.Product
}

// NewProductStore returns a ProductStore seeded with products.
func NewProductStore(products ...*model.Product) *ProductStore {
	s := &ProductStore{products: make(map[string]*model.Product)}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

var _ core.ProductRepository = (*ProductStore)(nil)

// Put replaces a product.
func (s *ProductStore) Put(p *model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// Remove deletes a product.
func (s *ProductStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
}

func (s *ProductStore) GetByID(_ context.Context, id string) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, data.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *ProductStore) ListActiveByUser(_ context.Context, userID string) ([]*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Product
	for _, p := range s.products {
		if p.UserID == userID && p.IsActive() {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

// LeadStore is an in-memory core.LeadRepository enforcing the (user, product, post) unique key.
type LeadStore struct {
	mu    sync.Mutex
	leads map[[3]string]model.NewLeadRequest
}

// NewLeadStore returns an empty LeadStore.
func NewLeadStore() *LeadStore {
	return &LeadStore{leads: make(map[[3]string]model.NewLeadRequest)}
}

var _ core.LeadRepository = (*LeadStore)(nil)

func (s *LeadStore) ExistingPostIDs(
	_ context.Context,
	userID, productID string,
	postIDs []string,
) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{})
	for _, id := range postIDs {
		if _, ok := s.leads[[3]string{userID, productID, id}]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (s *LeadStore) InsertIfAbsent(_ context.Context, req model.NewLeadRequest) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [3]string{req.UserID, req.ProductID, req.Scored.Candidate.PostID}
	if _, ok := s.leads[key]; ok {
		return false, nil
	}
	s.leads[key] = req
	return true, nil
}

func (s *LeadStore) CountByProduct(_ context.Context, userID, productID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.leads {
		if k[0] == userID && k[1] == productID {
			n++
		}
	}
	return n, nil
}

// All returns every stored lead request.
func (s *LeadStore) All() []model.NewLeadRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.NewLeadRequest, 0, len(s.leads))
	for _, l := range s.leads {
		out = append(out, l)
	}
	return out
}
