package shared

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/adminkit/backend/internal/domain/shared"

// Store is the persistence backend behind a ChangeTrackingRepository.
// DoCreate and DoUpdate return the persisted entity, possibly carrying
// storage-assigned values. Child hooks are required: a store that owns no
// children returns nil from them.
type Store[E Entity] interface {
	FindAll(ctx context.Context) ([]E, error)
	FindByID(ctx context.Context, id UUID) (E, error)
	DoCreate(ctx context.Context, entity E) (E, error)
	DoUpdate(ctx context.Context, entity E, changed map[string]any) (E, error)
	DoRemove(ctx context.Context, id UUID) error
	HandleChildEntity(ctx context.Context, child Entity) error
	HandleChildAggregateRoot(ctx context.Context, child AggregateRoot) error
}

// ChangeTrackingRepository saves an entity together with its child entities:
// new children first, then changed children, then the entity itself, and
// finally clears the dirty state of the whole tree.
type ChangeTrackingRepository[E Entity] struct {
	store  Store[E]
	logger *zap.Logger
	tracer trace.Tracer
	writes metric.Int64Counter
}

// RepositoryOption configures a ChangeTrackingRepository
type RepositoryOption func(*repositoryOptions)

type repositoryOptions struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithTracerProvider overrides the global tracer provider
func WithTracerProvider(tp trace.TracerProvider) RepositoryOption {
	return func(o *repositoryOptions) {
		o.tracerProvider = tp
	}
}

// WithMeterProvider overrides the global meter provider
func WithMeterProvider(mp metric.MeterProvider) RepositoryOption {
	return func(o *repositoryOptions) {
		o.meterProvider = mp
	}
}

// NewChangeTrackingRepository creates a repository on top of store
func NewChangeTrackingRepository[E Entity](store Store[E], logger *zap.Logger, opts ...RepositoryOption) *ChangeTrackingRepository[E] {
	o := repositoryOptions{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	writes, err := o.meterProvider.Meter(instrumentationName).Int64Counter(
		"repository.entity.writes",
		metric.WithDescription("Number of entities written by change-tracking repositories"),
	)
	if err != nil {
		logger.Warn("failed to create repository write counter", zap.Error(err))
	}

	return &ChangeTrackingRepository[E]{
		store:  store,
		logger: logger,
		tracer: o.tracerProvider.Tracer(instrumentationName),
		writes: writes,
	}
}

// FindAll returns every stored entity
func (r *ChangeTrackingRepository[E]) FindAll(ctx context.Context) ([]E, error) {
	return r.store.FindAll(ctx)
}

// FindByID returns the entity with the given ID
func (r *ChangeTrackingRepository[E]) FindByID(ctx context.Context, id UUID) (E, error) {
	return r.store.FindByID(ctx, id)
}

// Save persists entity and cascades into its children. A clean entity is
// returned as is without touching the store.
func (r *ChangeTrackingRepository[E]) Save(ctx context.Context, entity E) (E, error) {
	ctx, span := r.tracer.Start(ctx, "ChangeTrackingRepository.Save",
		trace.WithAttributes(
			attribute.String("entity.id", entity.GetID().String()),
			attribute.String("entity.type", fmt.Sprintf("%T", entity)),
			attribute.Bool("entity.new", entity.IsNew()),
		),
	)
	defer span.End()

	saved, err := r.save(ctx, entity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return saved, err
	}
	return saved, nil
}

func (r *ChangeTrackingRepository[E]) save(ctx context.Context, entity E) (E, error) {
	children := entity.AllChildEntities()

	var created, changed []Entity
	for _, child := range children {
		switch {
		case child.IsNew():
			created = append(created, child)
		case child.IsChanged():
			changed = append(changed, child)
		}
	}

	for _, child := range created {
		if err := r.handleChild(ctx, child); err != nil {
			return entity, err
		}
	}
	for _, child := range changed {
		if err := r.handleChild(ctx, child); err != nil {
			return entity, err
		}
	}

	var (
		result    E
		err       error
		operation string
	)
	switch {
	case entity.IsNew():
		operation = "create"
		result, err = r.store.DoCreate(ctx, entity)
	case entity.IsChanged():
		operation = "update"
		result, err = r.store.DoUpdate(ctx, entity, entity.ChangedData())
	default:
		r.logger.Debug("entity unchanged, skipping save",
			zap.String("entity_id", entity.GetID().String()),
		)
		return entity, nil
	}
	if err != nil {
		return entity, err
	}

	r.clearEntityState(result)
	r.recordWrite(ctx, operation)
	r.logger.Debug("entity saved",
		zap.String("entity_id", result.GetID().String()),
		zap.String("operation", operation),
		zap.Int("new_children", len(created)),
		zap.Int("changed_children", len(changed)),
	)
	return result, nil
}

func (r *ChangeTrackingRepository[E]) handleChild(ctx context.Context, child Entity) error {
	if root, ok := child.(AggregateRoot); ok {
		return r.store.HandleChildAggregateRoot(ctx, root)
	}
	return r.store.HandleChildEntity(ctx, child)
}

// clearEntityState marks the saved entity and its children clean
func (r *ChangeTrackingRepository[E]) clearEntityState(entity E) {
	entity.SetSaved()
}

func (r *ChangeTrackingRepository[E]) recordWrite(ctx context.Context, operation string) {
	if r.writes == nil {
		return
	}
	r.writes.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

// SaveMany saves entities one after another. It stops at the first failure
// and returns the entities saved before it along with the error; nothing is
// rolled back.
func (r *ChangeTrackingRepository[E]) SaveMany(ctx context.Context, entities []E) ([]E, error) {
	saved := make([]E, 0, len(entities))
	for i, entity := range entities {
		result, err := r.Save(ctx, entity)
		if err != nil {
			r.logger.Warn("save many aborted",
				zap.Int("index", i),
				zap.Int("saved", len(saved)),
				zap.Error(err),
			)
			return saved, err
		}
		saved = append(saved, result)
	}
	return saved, nil
}

// Remove deletes entity. Children are not removed.
func (r *ChangeTrackingRepository[E]) Remove(ctx context.Context, entity E) error {
	return r.RemoveByID(ctx, entity.GetID())
}

// RemoveByID deletes the entity with the given ID
func (r *ChangeTrackingRepository[E]) RemoveByID(ctx context.Context, id UUID) error {
	ctx, span := r.tracer.Start(ctx, "ChangeTrackingRepository.Remove",
		trace.WithAttributes(attribute.String("entity.id", id.String())),
	)
	defer span.End()

	if err := r.store.DoRemove(ctx, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	r.recordWrite(ctx, "remove")
	return nil
}
