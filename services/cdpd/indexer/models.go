package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRecord is one committed protocol event. Seq orders records in commit
// order; Position and Related hold the positions the event touched.
type EventRecord struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Seq        uint64            `gorm:"uniqueIndex;not null" json:"seq"`
	Type       string            `gorm:"size:64;index" json:"type"`
	Position   string            `gorm:"size:96;index" json:"position,omitempty"`
	Related    string            `gorm:"size:96;index" json:"related,omitempty"`
	Account    string            `gorm:"size:96;index" json:"account,omitempty"`
	Attributes map[string]string `gorm:"serializer:json;type:text" json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

func (EventRecord) TableName() string { return "cdp_events" }

// AutoMigrate creates or updates the index schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{})
}
