// package models defines the data model for curate
package models

import (
	"time"
)

// Model is a persisted entity with a string id and audit timestamps.
type Model interface {
	ID() string
	CreatedAt() time.Time
	UpdatedAt() time.Time
	Validate() error
}

// Repository stores models of one type. History is append-only, so there is no Update.
type Repository[T Model] interface {
	Create(model T) error
	Get(id string) (T, error)
	Delete(id string) error
	List(criteria map[string]any) ([]T, error) // criteria keys are implementation specific
}
