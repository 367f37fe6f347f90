// Package events defines the domain events published on the in-process
// event bus.
package events

import "github.com/kmoreau/citycab/core/model"

// SessionEvent signals a taxi connection entering or leaving SERVING.
type SessionEvent struct {
	TaxiID    string
	Connected bool
}

// AssignmentEvent signals the outcome of one assignment attempt.
type AssignmentEvent struct {
	CustomerID    string
	TaxiID        string
	DestinationID string
	Ok            bool
	Reason        string
}

// StatusEvent carries a token-validated status update accepted by the
// orchestrator.
type StatusEvent struct {
	Status model.StatusUpdate
}

// RideCompletedEvent signals a customer notified with the terminal END
// marker.
type RideCompletedEvent struct {
	CustomerID string
	TaxiID     string
}
