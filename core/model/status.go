package model

// StatusUpdate is the payload a taxi publishes on every movement step.
// It travels sealed in the secure envelope and carries the session token
// the coordinator issued during the handshake.
type StatusUpdate struct {
	TaxiID string    `json:"taxi_id"`
	X      int       `json:"x"`
	Y      int       `json:"y"`
	State  TaxiState `json:"state"`
	Token  string    `json:"token"`
}

// Directive is a coordinator instruction to a taxi. It is a flat struct
// rather than a status subtype: taxi coordinates plus the optional pickup
// and destination cells, -1 when not applicable.
type Directive struct {
	TaxiID    string    `json:"taxi_id"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	State     TaxiState `json:"state"`
	CustomerX int       `json:"customer_x"`
	CustomerY int       `json:"customer_y"`
	DestX     int       `json:"dest_x"`
	DestY     int       `json:"dest_y"`
}

// ReturnDirective builds the directive instructing a taxi to head back to
// base after a completed ride.
func ReturnDirective(t Taxi) Directive {
	return Directive{
		TaxiID:    t.ID,
		X:         t.X,
		Y:         t.Y,
		State:     TaxiReturningToBase,
		CustomerX: -1,
		CustomerY: -1,
		DestX:     -1,
		DestY:     -1,
	}
}
