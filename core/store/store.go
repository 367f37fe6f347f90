// Package store defines the persistence collaborators the dispatch core
// depends on. The coordinator only needs identifier lookups plus three
// queries: all available taxis, assignment by taxi, and delete all
// assignments for a taxi.
package store

import "github.com/kmoreau/citycab/core/model"

// TaxiStore persists taxi records. Implementations must preserve
// registration order in FindAllAvailable and All.
type TaxiStore interface {
	Save(t model.Taxi)
	Find(id string) (model.Taxi, bool)
	FindAllAvailable() []model.Taxi
	All() []model.Taxi
	Delete(id string)
}

// CustomerStore persists customer records. Customers are never deleted.
type CustomerStore interface {
	Save(c model.Customer)
	Find(id string) (model.Customer, bool)
	All() []model.Customer
}

// LocationStore persists the named destinations of the city grid.
type LocationStore interface {
	Save(l model.Location)
	Find(id string) (model.Location, bool)
	All() []model.Location
}

// AssignmentStore persists customer/taxi pairings. A taxi holds at most
// one row; Replace removes any previous rows for the taxi first.
type AssignmentStore interface {
	Replace(a model.Assignment)
	FindByTaxi(taxiID string) (model.Assignment, bool)
	DeleteForTaxi(taxiID string)
}
