package redisx

import "time"

const (
	// Last known device position: loc:{device_id} -> {"latitude":..,"longitude":..}
	KeyDeviceLocation = "loc:%s"

	// Resolved profile per principal: session:{principal_id} -> identity.Profile JSON
	KeySession = "session:%s"

	// Cached order status: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Reservation lock per bag: lock:bag:{bag_id} -> holder token
	KeyBagLock = "lock:bag:%s"

	// Dedup of consumed events: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLDeviceLocation = 30 * 24 * time.Hour
	TTLSession        = 10 * time.Minute
	TTLStatusCache    = 5 * time.Minute
	TTLDedup          = 48 * time.Hour
)
