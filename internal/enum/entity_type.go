package enum

type EntityType string

const (
	QUEUE_ITEM EntityType = "QUEUE_ITEM"
	USER       EntityType = "USER"
)

func (entityType EntityType) String() string {
	return string(entityType)
}
