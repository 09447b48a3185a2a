package models

import (
	"time"

	"github.com/adminkit/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// BaseModel provides common persistence fields for all models.
// It maps to the identity and timestamps of a domain entity.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// FromDomainEntity populates BaseModel from a domain entity
func (m *BaseModel) FromDomainEntity(e shared.Entity) {
	m.ID = e.GetID().UUID()
	m.CreatedAt = e.GetCreatedAt()
	m.UpdatedAt = e.GetUpdatedAt()
}

// DomainID returns the model ID as a domain UUID
func (m *BaseModel) DomainID() shared.UUID {
	return shared.UUIDFrom(m.ID)
}

// AggregateModel provides common persistence fields for aggregate roots.
// It extends BaseModel with version for optimistic locking.
type AggregateModel struct {
	BaseModel
	Version int `gorm:"not null;default:1"`
}

// FromDomainAggregateRoot populates AggregateModel from a domain aggregate root
func (m *AggregateModel) FromDomainAggregateRoot(a shared.AggregateRoot) {
	m.FromDomainEntity(a)
	m.Version = a.GetVersion()
}
