package shared

import (
	"fmt"
	"reflect"
	"slices"
	"time"
)

// Entity is the base interface for all change-tracked domain entities
type Entity interface {
	GetID() UUID
	GetCreatedAt() time.Time
	GetUpdatedAt() time.Time
	// IsNew is true until the entity has been persisted once
	IsNew() bool
	// IsChanged is true if the entity or any of its children has unsaved changes
	IsChanged() bool
	ChangedFields() []string
	ChangedData() map[string]any
	// SetSaved clears the dirty state of the entity and all of its children
	SetSaved()
	ChildEntities() []Entity
	AllChildEntities() []Entity
}

// BaseEntity tracks identity, dirty fields and owned child entities for a
// struct-shaped set of properties T.
type BaseEntity[T any] struct {
	id            UUID
	props         T
	createdAt     time.Time
	updatedAt     time.Time
	isNew         bool
	changedFields []string
	children      []Entity
}

// NewBaseEntity creates a new, unsaved entity with a generated ID
func NewBaseEntity[T any](props T) BaseEntity[T] {
	return NewBaseEntityWithID(NewUUID(), props)
}

// NewBaseEntityWithID creates a new, unsaved entity with the given ID
func NewBaseEntityWithID[T any](id UUID, props T) BaseEntity[T] {
	mustBeStruct[T]()
	now := time.Now()
	return BaseEntity[T]{
		id:        id,
		props:     props,
		createdAt: now,
		updatedAt: now,
		isNew:     true,
	}
}

// RestoreBaseEntity rebuilds an entity hydrated from storage. It is neither
// new nor changed.
func RestoreBaseEntity[T any](id UUID, props T, createdAt, updatedAt time.Time) BaseEntity[T] {
	mustBeStruct[T]()
	return BaseEntity[T]{
		id:        id,
		props:     props,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

func mustBeStruct[T any]() {
	if t := reflect.TypeFor[T](); t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("shared: entity properties must be a struct, got %s", t))
	}
}

// GetID returns the entity ID
func (e *BaseEntity[T]) GetID() UUID {
	return e.id
}

// GetCreatedAt returns the creation timestamp
func (e *BaseEntity[T]) GetCreatedAt() time.Time {
	return e.createdAt
}

// GetUpdatedAt returns the last update timestamp
func (e *BaseEntity[T]) GetUpdatedAt() time.Time {
	return e.updatedAt
}

// Props returns a copy of the current properties
func (e *BaseEntity[T]) Props() T {
	return e.props
}

// IsNew returns true if the entity has never been saved
func (e *BaseEntity[T]) IsNew() bool {
	return e.isNew
}

// IsChanged returns true if a field is dirty or any child is new or changed
func (e *BaseEntity[T]) IsChanged() bool {
	if len(e.changedFields) > 0 {
		return true
	}
	for _, child := range e.children {
		if child.IsNew() || child.IsChanged() {
			return true
		}
	}
	return false
}

// Update applies mutate to a copy of the properties and keeps every top-level
// field whose value is no longer identical. Identity follows reference
// semantics: slices, maps, pointers and funcs compare by reference, everything
// else by value. Returns the fields recorded as changed by this call.
func (e *BaseEntity[T]) Update(mutate func(props *T)) []string {
	next := e.props
	mutate(&next)

	current := reflect.ValueOf(&e.props).Elem()
	updated := reflect.ValueOf(&next).Elem()

	var changed []string
	for i := 0; i < current.NumField(); i++ {
		if !sameValue(current.Field(i), updated.Field(i)) {
			changed = append(changed, current.Type().Field(i).Name)
		}
	}
	if len(changed) == 0 {
		return nil
	}

	e.props = next
	e.MarkChanged(changed...)
	return changed
}

// MarkChanged records fields as changed regardless of their values
func (e *BaseEntity[T]) MarkChanged(fields ...string) {
	if len(fields) == 0 {
		return
	}
	for _, field := range fields {
		if !slices.Contains(e.changedFields, field) {
			e.changedFields = append(e.changedFields, field)
		}
	}
	e.updatedAt = time.Now()
}

// ChangedFields returns the dirty fields in the order they were first changed
func (e *BaseEntity[T]) ChangedFields() []string {
	return slices.Clone(e.changedFields)
}

// ChangedData returns the dirty fields with their current values. Fields
// marked through MarkChanged that are not part of T are omitted.
func (e *BaseEntity[T]) ChangedData() map[string]any {
	data := make(map[string]any, len(e.changedFields))
	props := reflect.ValueOf(&e.props).Elem()
	for _, field := range e.changedFields {
		f := props.FieldByName(field)
		if !f.IsValid() || !f.CanInterface() {
			continue
		}
		data[field] = f.Interface()
	}
	return data
}

// AddChildEntity registers a child for cascading saves. Nil and already
// registered children are ignored.
func (e *BaseEntity[T]) AddChildEntity(child Entity) {
	if isNilEntity(child) || slices.Contains(e.children, child) {
		return
	}
	e.children = append(e.children, child)
}

// RemoveChildEntity unregisters a child and reports whether it was present
func (e *BaseEntity[T]) RemoveChildEntity(child Entity) bool {
	i := slices.Index(e.children, child)
	if i < 0 {
		return false
	}
	e.children = slices.Delete(e.children, i, i+1)
	return true
}

// ChildEntities returns the directly registered children
func (e *BaseEntity[T]) ChildEntities() []Entity {
	return slices.Clone(e.children)
}

// AllChildEntities flattens the child tree depth-first, each child before
// its own children
func (e *BaseEntity[T]) AllChildEntities() []Entity {
	all := make([]Entity, 0, len(e.children))
	for _, child := range e.children {
		all = append(all, child)
		all = append(all, child.AllChildEntities()...)
	}
	return all
}

// SetSaved marks the entity and all of its children as persisted
func (e *BaseEntity[T]) SetSaved() {
	e.isNew = false
	e.changedFields = nil
	for _, child := range e.children {
		child.SetSaved()
	}
}

func isNilEntity(e Entity) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// sameValue reports whether a and b are identical in the reference sense
func sameValue(a, b reflect.Value) bool {
	switch a.Kind() {
	case reflect.Slice:
		return a.IsNil() == b.IsNil() && a.Len() == b.Len() && a.Pointer() == b.Pointer()
	case reflect.Map, reflect.Pointer, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return a.Pointer() == b.Pointer()
	case reflect.Interface:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() == b.IsNil()
		}
		if a.Elem().Type() != b.Elem().Type() {
			return false
		}
		return sameValue(a.Elem(), b.Elem())
	case reflect.Struct:
		for i := 0; i < a.NumField(); i++ {
			if !sameValue(a.Field(i), b.Field(i)) {
				return false
			}
		}
		return true
	case reflect.Array:
		for i := 0; i < a.Len(); i++ {
			if !sameValue(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true
	default:
		return a.Equal(b)
	}
}
