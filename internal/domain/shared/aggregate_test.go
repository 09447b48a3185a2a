package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseAggregateRoot_Apply(t *testing.T) {
	ctx := context.Background()

	t.Run("buffers events and runs handlers", func(t *testing.T) {
		a := newAccount("alice")

		require.NoError(t, a.Deposit(ctx, 10))
		require.NoError(t, a.Deposit(ctx, 5))

		assert.Equal(t, 15, a.Props().Balance)
		assert.Len(t, a.UncommittedEvents(), 2)
		assert.True(t, a.HasUncommittedEvents())
		assert.Equal(t, []string{"MoneyDeposited", "MoneyDeposited"}, a.handled)
	})

	t.Run("skip handler still buffers", func(t *testing.T) {
		a := newAccount("alice")

		require.NoError(t, a.Apply(ctx, newMoneyDeposited(a.GetID(), 10), SkipHandler()))

		assert.Equal(t, 0, a.Props().Balance)
		assert.Empty(t, a.handled)
		assert.Len(t, a.UncommittedEvents(), 1)
	})

	t.Run("event without handler is buffered silently", func(t *testing.T) {
		a := newAccount("alice")
		event := &unhandledEvent{BaseDomainEvent: NewBaseDomainEvent("Unhandled", "Account", a.GetID())}

		require.NoError(t, a.Apply(ctx, event))

		assert.Empty(t, a.handled)
		assert.Equal(t, []DomainEvent{event}, a.UncommittedEvents())
	})

	t.Run("auto commit publishes immediately and never buffers", func(t *testing.T) {
		pub := &recordingPublisher{}
		a := newAccount("alice", WithEventPublisher(pub), WithAutoCommit(true))

		require.NoError(t, a.Deposit(ctx, 10))

		assert.True(t, a.IsAutoCommit())
		assert.Empty(t, a.UncommittedEvents())
		require.Len(t, pub.calls, 1)
		assert.Equal(t, 10, a.Props().Balance)
	})

	t.Run("auto commit publish failure skips the handler", func(t *testing.T) {
		pub := &recordingPublisher{err: errPublish}
		a := newAccount("alice", WithEventPublisher(pub), WithAutoCommit(true))

		err := a.Deposit(ctx, 10)

		assert.ErrorIs(t, err, errPublish)
		assert.Equal(t, 0, a.Props().Balance)
		assert.Empty(t, a.UncommittedEvents())
	})

	t.Run("handler registered later replaces earlier one", func(t *testing.T) {
		a := newAccount("alice")
		var calls int
		OnEvent(&a.BaseAggregateRoot, func(e *moneyDeposited) { calls++ })

		require.NoError(t, a.Deposit(ctx, 10))

		assert.Equal(t, 1, calls)
		assert.Equal(t, 0, a.Props().Balance)
	})
}

func TestBaseAggregateRoot_Commit(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes buffer in order exactly once", func(t *testing.T) {
		pub := &recordingPublisher{}
		a := newAccount("alice", WithEventPublisher(pub))
		e1 := newMoneyDeposited(a.GetID(), 1)
		e2 := newAccountRenamed(a.GetID(), "bob")
		e3 := newMoneyDeposited(a.GetID(), 3)
		for _, e := range []DomainEvent{e1, e2, e3} {
			require.NoError(t, a.Apply(ctx, e))
		}
		assert.Empty(t, pub.calls, "nothing is published before commit")

		require.NoError(t, a.Commit(ctx))
		require.NoError(t, a.Commit(ctx))

		require.Len(t, pub.calls, 1)
		assert.Equal(t, []DomainEvent{e1, e2, e3}, pub.published())
		assert.Empty(t, a.UncommittedEvents())
	})

	t.Run("failed commit keeps the buffer", func(t *testing.T) {
		pub := &recordingPublisher{err: errPublish}
		a := newAccount("alice", WithEventPublisher(pub))
		require.NoError(t, a.Deposit(ctx, 1))

		err := a.Commit(ctx)

		assert.ErrorIs(t, err, errPublish)
		assert.Len(t, a.UncommittedEvents(), 1)

		pub.err = nil
		require.NoError(t, a.Commit(ctx))
		assert.Len(t, pub.published(), 1)
		assert.Empty(t, a.UncommittedEvents())
	})

	t.Run("commit without publisher drops events", func(t *testing.T) {
		a := newAccount("alice")
		require.NoError(t, a.Deposit(ctx, 1))

		require.NoError(t, a.Commit(ctx))

		assert.Empty(t, a.UncommittedEvents())
	})

	t.Run("publisher injected after construction", func(t *testing.T) {
		a := newAccount("alice")
		pub := &recordingPublisher{}
		a.SetEventPublisher(pub)
		require.NoError(t, a.Deposit(ctx, 1))

		require.NoError(t, a.Commit(ctx))

		assert.Len(t, pub.published(), 1)
	})

	t.Run("commit to explicit publisher", func(t *testing.T) {
		own := &recordingPublisher{}
		other := &recordingPublisher{}
		a := newAccount("alice", WithEventPublisher(own))
		require.NoError(t, a.Deposit(ctx, 1))

		require.NoError(t, a.CommitTo(ctx, other))

		assert.Empty(t, own.calls)
		assert.Len(t, other.published(), 1)
	})

	t.Run("uncommit discards without publishing", func(t *testing.T) {
		pub := &recordingPublisher{}
		a := newAccount("alice", WithEventPublisher(pub))
		require.NoError(t, a.Deposit(ctx, 1))
		require.NoError(t, a.Deposit(ctx, 2))

		a.Uncommit()
		require.NoError(t, a.Commit(ctx))

		assert.Empty(t, a.UncommittedEvents())
		assert.Empty(t, pub.calls)
		assert.Equal(t, 3, a.Props().Balance, "handlers already ran")
	})

	t.Run("uncommitted events is a snapshot", func(t *testing.T) {
		a := newAccount("alice")
		require.NoError(t, a.Deposit(ctx, 1))

		snapshot := a.UncommittedEvents()
		snapshot[0] = nil

		assert.NotNil(t, a.UncommittedEvents()[0])
	})
}

func TestBaseAggregateRoot_LoadFromHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("replays handlers without buffering", func(t *testing.T) {
		pub := &recordingPublisher{}
		a := newAccount("alice", WithEventPublisher(pub))
		history := []DomainEvent{
			newMoneyDeposited(a.GetID(), 10),
			newAccountRenamed(a.GetID(), "bob"),
		}

		require.NoError(t, a.LoadFromHistory(ctx, history))

		assert.Equal(t, 10, a.Props().Balance)
		assert.Equal(t, "bob", a.Props().Name)
		assert.Equal(t, []string{"MoneyDeposited", "AccountRenamed"}, a.handled)
		assert.Empty(t, a.UncommittedEvents())

		require.NoError(t, a.Commit(ctx))
		assert.Empty(t, pub.calls)
	})

	t.Run("history is not published in auto commit mode", func(t *testing.T) {
		pub := &recordingPublisher{}
		a := newAccount("alice", WithEventPublisher(pub), WithAutoCommit(true))

		require.NoError(t, a.LoadFromHistory(ctx, []DomainEvent{newMoneyDeposited(a.GetID(), 10)}))

		assert.Empty(t, pub.calls)
		assert.Equal(t, 10, a.Props().Balance)
	})

	t.Run("replaying twice runs handlers twice", func(t *testing.T) {
		a := newAccount("alice")
		history := []DomainEvent{newMoneyDeposited(a.GetID(), 10)}

		require.NoError(t, a.LoadFromHistory(ctx, history))
		require.NoError(t, a.LoadFromHistory(ctx, history))

		assert.Equal(t, 20, a.Props().Balance)
	})
}

func TestBaseAggregateRoot_Version(t *testing.T) {
	a := newAccount("alice")
	assert.Equal(t, 1, a.GetVersion())

	a.IncrementVersion()
	assert.Equal(t, 2, a.GetVersion())

	a.SetVersion(7)
	assert.Equal(t, 7, a.GetVersion())

	var _ AggregateRoot = a
}
