package orders

const (
	TopicOrderReserved           = "order.reserved"
	TopicReservationPartial      = "reservation.partially_failed"
	TopicCustomerLocationUpdated = "customer.location.updated"
)

// Partition by aggregate id so events of one order or customer stay ordered.
func PartitionKey(id string) []byte { return []byte(id) }
