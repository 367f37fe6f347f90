package model

// CustomerState is the lifecycle state of a customer through one ride.
type CustomerState string

const (
	CustomerIdle             CustomerState = "IDLE"
	CustomerRequesting       CustomerState = "REQUESTING"
	CustomerWaitingForTaxi   CustomerState = "WAITING_FOR_TAXI"
	CustomerInTransit        CustomerState = "IN_TRANSIT"
	CustomerServiceCompleted CustomerState = "SERVICE_COMPLETED"
)

// Customer is created on its first ride request and kept afterwards.
type Customer struct {
	ID            string        `json:"id"`
	X             int           `json:"x"`
	Y             int           `json:"y"`
	DestinationID string        `json:"destination_id,omitempty"`
	State         CustomerState `json:"state"`
}
