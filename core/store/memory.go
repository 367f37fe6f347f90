package store

import (
	"sync"

	"github.com/kmoreau/citycab/core/model"
)

// MemoryTaxiStore keeps taxi records in memory, remembering registration
// order for the assignment scan.
type MemoryTaxiStore struct {
	mu    sync.RWMutex
	taxis map[string]model.Taxi
	order []string
}

func NewMemoryTaxiStore() *MemoryTaxiStore {
	return &MemoryTaxiStore{taxis: map[string]model.Taxi{}}
}

func (s *MemoryTaxiStore) Save(t model.Taxi) {
	s.mu.Lock()
	if _, ok := s.taxis[t.ID]; !ok {
		s.order = append(s.order, t.ID)
	}
	s.taxis[t.ID] = t
	s.mu.Unlock()
}

func (s *MemoryTaxiStore) Find(id string) (model.Taxi, bool) {
	s.mu.RLock()
	t, ok := s.taxis[id]
	s.mu.RUnlock()
	return t, ok
}

func (s *MemoryTaxiStore) FindAllAvailable() []model.Taxi {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.Taxi
	for _, id := range s.order {
		if t, ok := s.taxis[id]; ok && t.Available {
			res = append(res, t)
		}
	}
	return res
}

func (s *MemoryTaxiStore) All() []model.Taxi {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Taxi, 0, len(s.order))
	for _, id := range s.order {
		if t, ok := s.taxis[id]; ok {
			res = append(res, t)
		}
	}
	return res
}

func (s *MemoryTaxiStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.taxis, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// MemoryCustomerStore keeps customer records in memory.
type MemoryCustomerStore struct {
	mu        sync.RWMutex
	customers map[string]model.Customer
	order     []string
}

func NewMemoryCustomerStore() *MemoryCustomerStore {
	return &MemoryCustomerStore{customers: map[string]model.Customer{}}
}

func (s *MemoryCustomerStore) Save(c model.Customer) {
	s.mu.Lock()
	if _, ok := s.customers[c.ID]; !ok {
		s.order = append(s.order, c.ID)
	}
	s.customers[c.ID] = c
	s.mu.Unlock()
}

func (s *MemoryCustomerStore) Find(id string) (model.Customer, bool) {
	s.mu.RLock()
	c, ok := s.customers[id]
	s.mu.RUnlock()
	return c, ok
}

func (s *MemoryCustomerStore) All() []model.Customer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Customer, 0, len(s.order))
	for _, id := range s.order {
		res = append(res, s.customers[id])
	}
	return res
}

// MemoryLocationStore keeps the named destinations in memory.
type MemoryLocationStore struct {
	mu        sync.RWMutex
	locations map[string]model.Location
	order     []string
}

func NewMemoryLocationStore() *MemoryLocationStore {
	return &MemoryLocationStore{locations: map[string]model.Location{}}
}

func (s *MemoryLocationStore) Save(l model.Location) {
	s.mu.Lock()
	if _, ok := s.locations[l.ID]; !ok {
		s.order = append(s.order, l.ID)
	}
	s.locations[l.ID] = l
	s.mu.Unlock()
}

func (s *MemoryLocationStore) Find(id string) (model.Location, bool) {
	s.mu.RLock()
	l, ok := s.locations[id]
	s.mu.RUnlock()
	return l, ok
}

func (s *MemoryLocationStore) All() []model.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Location, 0, len(s.order))
	for _, id := range s.order {
		res = append(res, s.locations[id])
	}
	return res
}

// MemoryAssignmentStore keeps the active customer/taxi pairings.
type MemoryAssignmentStore struct {
	mu     sync.RWMutex
	byTaxi map[string]model.Assignment
}

func NewMemoryAssignmentStore() *MemoryAssignmentStore {
	return &MemoryAssignmentStore{byTaxi: map[string]model.Assignment{}}
}

func (s *MemoryAssignmentStore) Replace(a model.Assignment) {
	s.mu.Lock()
	s.byTaxi[a.TaxiID] = a
	s.mu.Unlock()
}

func (s *MemoryAssignmentStore) FindByTaxi(taxiID string) (model.Assignment, bool) {
	s.mu.RLock()
	a, ok := s.byTaxi[taxiID]
	s.mu.RUnlock()
	return a, ok
}

func (s *MemoryAssignmentStore) DeleteForTaxi(taxiID string) {
	s.mu.Lock()
	delete(s.byTaxi, taxiID)
	s.mu.Unlock()
}
