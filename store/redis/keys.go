package redis

// Key prefixes for primary entity storage.
const (
	prefixEndpoint = "courier:ep:"
	prefixDelivery = "courier:del:"
	prefixDLQ      = "courier:dlq:"
)

// Key prefixes for sorted set and set indexes.
const (
	zEndpointAll = "courier:z:ep:all"
	sEndpointOn  = "courier:s:ep:enabled"
	zDeliveryEP  = "courier:z:del:ep:" // + endpoint ID
	zDeliveryDue = "courier:z:del:due"
	zDLQAll      = "courier:z:dlq:all"
	zDLQEndpoint = "courier:z:dlq:ep:" // + endpoint ID
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}
