package orders

type Status string

const (
	StatusPending          Status = "pending"
	StatusConfirmed        Status = "confirmed"
	StatusPreparing        Status = "preparing"
	StatusReadyForDelivery Status = "ready_for_delivery"
	StatusOutForDelivery   Status = "out_for_delivery"
	StatusDelivered        Status = "delivered"
	StatusCancelled        Status = "cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:          {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:        {StatusPreparing: true, StatusCancelled: true},
	StatusPreparing:        {StatusReadyForDelivery: true, StatusCancelled: true},
	StatusReadyForDelivery: {StatusOutForDelivery: true, StatusCancelled: true},
	StatusOutForDelivery:   {StatusDelivered: true},
	StatusDelivered:        {},
	StatusCancelled:        {},
}

func ValidStatus(s Status) bool {
	_, ok := validNext[s]
	return ok
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func Terminal(s Status) bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CustomerCancellable limits customers to early-stage cancellation. This is
// policy layered on top of the graph, not part of the graph itself: the
// graph allows cancelled from any non-terminal state except out_for_delivery.
func CustomerCancellable(s Status) bool {
	return s == StatusPending || s == StatusConfirmed
}
