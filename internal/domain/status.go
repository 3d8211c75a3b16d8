package domain

// AttemptStatus is the state of a single job attempt
type AttemptStatus string

const (
	StatusQueued       AttemptStatus = "queued"
	StatusProcessing   AttemptStatus = "processing"
	StatusDelivered    AttemptStatus = "delivered"
	StatusParked       AttemptStatus = "parked"
	StatusRequeued     AttemptStatus = "requeued"
	StatusDropped      AttemptStatus = "dropped"
	StatusDeadLettered AttemptStatus = "dead_lettered"
)

func (s AttemptStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the attempt lineage ends at this status
func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusParked, StatusDropped, StatusDeadLettered:
		return true
	}
	return false
}

// Transition is an allowed move between two attempt statuses
type Transition struct {
	From AttemptStatus
	To   AttemptStatus
}

var ValidTransitions = []Transition{
	{From: StatusQueued, To: StatusProcessing},
	{From: StatusProcessing, To: StatusDelivered},
	{From: StatusProcessing, To: StatusParked},
	{From: StatusProcessing, To: StatusRequeued},
	{From: StatusProcessing, To: StatusDropped},
	{From: StatusProcessing, To: StatusDeadLettered},
	{From: StatusRequeued, To: StatusQueued},
	// manual recovery of a parked job
	{From: StatusParked, To: StatusDelivered},
}

// CanTransition reports whether from -> to is a valid move
func CanTransition(from, to AttemptStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// ParseStatus converts a string to a terminal or intermediate AttemptStatus
func ParseStatus(s string) (AttemptStatus, bool) {
	switch st := AttemptStatus(s); st {
	case StatusQueued, StatusProcessing, StatusDelivered, StatusParked,
		StatusRequeued, StatusDropped, StatusDeadLettered:
		return st, true
	}
	return "", false
}
