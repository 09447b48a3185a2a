package shared

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

// fakeAccountStore records every hook call in order
type fakeAccountStore struct {
	calls       []string
	failCreate  map[string]error
	failChild   error
	lastChanged map[string]any
	rows        map[UUID]*account
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{
		failCreate: make(map[string]error),
		rows:       make(map[UUID]*account),
	}
}

func (s *fakeAccountStore) FindAll(_ context.Context) ([]*account, error) {
	all := make([]*account, 0, len(s.rows))
	for _, row := range s.rows {
		all = append(all, row)
	}
	return all, nil
}

func (s *fakeAccountStore) FindByID(_ context.Context, id UUID) (*account, error) {
	row, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return row, nil
}

func (s *fakeAccountStore) DoCreate(_ context.Context, a *account) (*account, error) {
	s.calls = append(s.calls, "create:"+a.Props().Name)
	if err := s.failCreate[a.Props().Name]; err != nil {
		return nil, err
	}
	s.rows[a.GetID()] = a
	return a, nil
}

func (s *fakeAccountStore) DoUpdate(_ context.Context, a *account, changed map[string]any) (*account, error) {
	s.calls = append(s.calls, "update:"+a.Props().Name)
	s.lastChanged = changed
	s.rows[a.GetID()] = a
	return a, nil
}

func (s *fakeAccountStore) DoRemove(_ context.Context, id UUID) error {
	if _, ok := s.rows[id]; !ok {
		return ErrNotFound
	}
	s.calls = append(s.calls, "remove")
	delete(s.rows, id)
	return nil
}

func (s *fakeAccountStore) HandleChildEntity(_ context.Context, child Entity) error {
	if s.failChild != nil {
		return s.failChild
	}
	l := child.(*line)
	state := "changed"
	if l.IsNew() {
		state = "new"
	}
	s.calls = append(s.calls, state+"-child:"+l.Props().SKU)
	return nil
}

func (s *fakeAccountStore) HandleChildAggregateRoot(_ context.Context, child AggregateRoot) error {
	s.calls = append(s.calls, "child-aggregate:"+child.(*account).Props().Name)
	return nil
}

func newTestRepository(store Store[*account], opts ...RepositoryOption) *ChangeTrackingRepository[*account] {
	return NewChangeTrackingRepository[*account](store, zap.NewNop(), opts...)
}

func TestChangeTrackingRepository_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("new children before changed children before the root", func(t *testing.T) {
		store := newFakeAccountStore()
		repo := newTestRepository(store)

		root := newAccount("root")
		a := newLine("A", 1)
		b := newLine("B", 1)
		c := restoredLine("C", 1)
		root.AddChildEntity(c)
		root.AddChildEntity(a)
		root.AddChildEntity(b)
		c.Update(func(p *lineProps) { p.Qty = 2 })

		saved, err := repo.Save(ctx, root)

		require.NoError(t, err)
		assert.Same(t, root, saved)
		assert.Equal(t, []string{"new-child:A", "new-child:B", "changed-child:C", "create:root"}, store.calls)
		for _, e := range []Entity{root, a, b, c} {
			assert.False(t, e.IsNew())
			assert.False(t, e.IsChanged())
		}
	})

	t.Run("grandchildren are discovered depth first", func(t *testing.T) {
		store := newFakeAccountStore()
		repo := newTestRepository(store)

		root := newAccount("root")
		parent := newLine("P", 1)
		parent.AddChildEntity(newLine("P1", 1))
		root.AddChildEntity(parent)
		root.AddChildEntity(newLine("Q", 1))

		_, err := repo.Save(ctx, root)

		require.NoError(t, err)
		assert.Equal(t, []string{"new-child:P", "new-child:P1", "new-child:Q", "create:root"}, store.calls)
	})

	t.Run("child aggregates use their own hook", func(t *testing.T) {
		store := newFakeAccountStore()
		repo := newTestRepository(store)

		root := newAccount("root")
		root.AddChildEntity(newAccount("sub"))

		_, err := repo.Save(ctx, root)

		require.NoError(t, err)
		assert.Equal(t, []string{"child-aggregate:sub", "create:root"}, store.calls)
	})

	t.Run("changed root is updated with its changed data", func(t *testing.T) {
		store := newFakeAccountStore()
		repo := newTestRepository(store)
		root := newAccount("root")
		root.SetSaved()

		root.Update(func(p *accountProps) { p.Balance = 42 })
		_, err := repo.Save(ctx, root)

		require.NoError(t, err)
		assert.Equal(t, []string{"update:root"}, store.calls)
		assert.Equal(t, map[string]any{"Balance": 42}, store.lastChanged)
		assert.False(t, root.IsChanged())
	})

	t.Run("root dirty only through a child is updated with empty data", func(t *testing.T) {
		store := newFakeAccountStore()
		repo := newTestRepository(store)
		root := newAccount("root")
		child := restoredLine("C", 1)
		root.AddChildEntity(child)
		root.SetSaved()

		child.MarkChanged("Qty")
		_, err := repo.Save(ctx, root)

		require.NoError(t, err)
		assert.Equal(t, []string{"changed-child:C", "update:root"}, store.calls)
		assert.Empty(t, store.lastChanged)
	})

	t.Run("clean root is not written", func(t *testing.T) {
		store := newFakeAccountStore()
		repo := newTestRepository(store)
		root := newAccount("root")
		root.SetSaved()

		saved, err := repo.Save(ctx, root)

		require.NoError(t, err)
		assert.Same(t, root, saved)
		assert.Empty(t, store.calls)
	})

	t.Run("child failure stops the save and keeps state", func(t *testing.T) {
		store := newFakeAccountStore()
		store.failChild = errors.New("disk full")
		repo := newTestRepository(store)
		root := newAccount("root")
		child := newLine("A", 1)
		root.AddChildEntity(child)

		_, err := repo.Save(ctx, root)

		assert.EqualError(t, err, "disk full")
		assert.Empty(t, store.calls)
		assert.True(t, root.IsNew())
		assert.True(t, child.IsNew())
	})

	t.Run("create failure propagates unchanged", func(t *testing.T) {
		store := newFakeAccountStore()
		store.failCreate["root"] = ErrAlreadyExists
		repo := newTestRepository(store)
		root := newAccount("root")

		_, err := repo.Save(ctx, root)

		assert.ErrorIs(t, err, ErrAlreadyExists)
		assert.True(t, root.IsNew())
	})
}

func TestChangeTrackingRepository_SaveMany(t *testing.T) {
	ctx := context.Background()

	t.Run("stops at the first failure", func(t *testing.T) {
		store := newFakeAccountStore()
		boom := errors.New("constraint violation")
		store.failCreate["second"] = boom
		repo := newTestRepository(store)
		first, second, third := newAccount("first"), newAccount("second"), newAccount("third")

		saved, err := repo.SaveMany(ctx, []*account{first, second, third})

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []*account{first}, saved)
		assert.False(t, first.IsNew())
		assert.True(t, second.IsNew())
		assert.True(t, third.IsNew())
		assert.Equal(t, []string{"create:first", "create:second"}, store.calls)
	})

	t.Run("saves all in order", func(t *testing.T) {
		store := newFakeAccountStore()
		repo := newTestRepository(store)

		saved, err := repo.SaveMany(ctx, []*account{newAccount("a"), newAccount("b")})

		require.NoError(t, err)
		assert.Len(t, saved, 2)
		assert.Equal(t, []string{"create:a", "create:b"}, store.calls)
	})
}

func TestChangeTrackingRepository_Remove(t *testing.T) {
	ctx := context.Background()
	store := newFakeAccountStore()
	repo := newTestRepository(store)
	root := newAccount("root")
	root.AddChildEntity(newLine("A", 1))
	_, err := repo.Save(ctx, root)
	require.NoError(t, err)
	store.calls = nil

	require.NoError(t, repo.Remove(ctx, root))

	assert.Equal(t, []string{"remove"}, store.calls, "children are not removed")
	_, err = repo.FindByID(ctx, root.GetID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.RemoveByID(ctx, root.GetID()), ErrNotFound)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestChangeTrackingRepository_Telemetry(t *testing.T) {
	ctx := context.Background()
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	store := newFakeAccountStore()
	store.failCreate["broken"] = errors.New("boom")
	repo := newTestRepository(store, WithTracerProvider(tp), WithMeterProvider(mp))

	_, err := repo.Save(ctx, newAccount("ok"))
	require.NoError(t, err)
	_, err = repo.Save(ctx, newAccount("broken"))
	require.Error(t, err)

	ended := spans.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "ChangeTrackingRepository.Save", ended[0].Name())
	assert.Len(t, ended[1].Events(), 1, "the failure is recorded on the span")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)
	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
}
