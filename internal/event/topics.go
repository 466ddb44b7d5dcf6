package event

const (
	TopicOrderCreated    = "order.created"
	TopicPaymentUpdated  = "payment.updated"
	TopicAgentRegistered = "delivery.agent.registered"
)

// Partition key = order_id so all events for one order keep their order.
func PartitionKey(id string) []byte { return []byte(id) }
