package model

// TaxiState is the lifecycle state of a taxi as reported over the wire.
type TaxiState string

const (
	TaxiIdle                 TaxiState = "IDLE"
	TaxiAssigned             TaxiState = "ASSIGNED"
	TaxiEnRouteToPickup      TaxiState = "EN_ROUTE_TO_PICKUP"
	TaxiPickup               TaxiState = "PICKUP"
	TaxiEnRouteToDestination TaxiState = "EN_ROUTE_TO_DESTINATION"
	TaxiDestinationReached   TaxiState = "DESTINATION_REACHED"
	TaxiReturningToBase      TaxiState = "RETURNING_TO_BASE"
	TaxiStopped              TaxiState = "STOPPED"
)

// Base is the cell every taxi returns to after a completed ride.
const (
	BaseX = 1
	BaseY = 1
)

// Taxi represents a registered taxi unit tracked by the coordinator.
type Taxi struct {
	ID        string    `json:"id"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Available bool      `json:"available"`
	DestRef   string    `json:"dest_ref,omitempty"` // customer currently served, empty when none
	State     TaxiState `json:"state"`
}

// InTransit reports whether the taxi is currently driving a leg of a ride.
func (t Taxi) InTransit() bool {
	switch t.State {
	case TaxiEnRouteToPickup, TaxiEnRouteToDestination, TaxiReturningToBase:
		return true
	}
	return false
}

// AtBase reports whether the taxi sits on the base cell.
func (t Taxi) AtBase() bool { return t.X == BaseX && t.Y == BaseY }
