package courier

import "github.com/xraph/courier/internal/entity"

// Entity is the timestamp base embedded by courier domain objects.
type Entity = entity.Entity

// NewEntity returns an Entity stamped with the current UTC time.
func NewEntity() Entity {
	return entity.New()
}
