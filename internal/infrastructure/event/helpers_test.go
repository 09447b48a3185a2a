package event

import (
	"context"
	"sync"
	"testing"

	"github.com/adminkit/backend/internal/domain/shared"
	"github.com/adminkit/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testEventType = "TestHappened"

type testEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func newTestEvent(data string) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(testEventType, "Test", shared.NewUUID()),
		Data:            data,
	}
}

// recordingHandler remembers the events it saw and returns err for each
type recordingHandler struct {
	name  string
	types []string
	err   error

	mu     sync.Mutex
	events []shared.DomainEvent
	ctxs   []context.Context
}

func newRecordingHandler(name string, types ...string) *recordingHandler {
	return &recordingHandler{name: name, types: types}
}

func (h *recordingHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	h.ctxs = append(h.ctxs, ctx)
	return h.err
}

func (h *recordingHandler) EventTypes() []string {
	return h.types
}

func (h *recordingHandler) received() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.events...)
}

type panickingHandler struct{}

func (panickingHandler) Handle(context.Context, shared.DomainEvent) error { panic("boom") }
func (panickingHandler) EventTypes() []string                            { return nil }

func setupOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.OutboxEntryModel{}))
	return db
}

func newTestSerializer() *EventSerializer {
	s := NewEventSerializer()
	s.Register(testEventType, &testEvent{})
	return s
}
