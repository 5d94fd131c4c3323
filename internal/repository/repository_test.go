package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pai-dashboard-go/internal/apperror"
	"pai-dashboard-go/internal/model"
	"pai-dashboard-go/pkg/database"
)

func newTestStore(t *testing.T) *database.Store {
	t.Helper()
	store, err := database.Open(database.Options{Driver: "sqlite", DSN: ":memory:", OpTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(&model.Conversation{}, &model.Message{}, &model.ModelConfig{}, &model.PerformanceMetric{}))
	return store
}

func seedConversation(t *testing.T, repo ConversationRepository, at time.Time) *model.Conversation {
	t.Helper()
	conv := &model.Conversation{ID: uuid.NewString(), Title: "New Conversation", UserID: "anonymous", CreatedAt: at, UpdatedAt: at}
	require.NoError(t, repo.Create(context.Background(), conv))
	return conv
}

func newMessage(convID, role, content string, at time.Time) *model.Message {
	return &model.Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		Role:           role,
		Content:        content,
		Tokens:         model.EstimateTokens(content),
		CreatedAt:      at,
	}
}

func TestMessageRepository_AppendRequiresConversation(t *testing.T) {
	store := newTestStore(t)
	msgs := NewMessageRepository(store)

	err := msgs.Append(context.Background(), newMessage("missing", model.RoleUser, "hi", time.Now().UTC()))
	require.True(t, apperror.Is(err, apperror.CodeNotFound))

	rows, err := store.Query(context.Background(), "SELECT COUNT(*) AS n FROM messages")
	require.NoError(t, err)
	require.EqualValues(t, 0, rows[0]["n"])
}

func TestMessageRepository_AppendBumpsUpdatedAtAndOrders(t *testing.T) {
	store := newTestStore(t)
	convs := NewConversationRepository(store)
	msgs := NewMessageRepository(store)
	ctx := context.Background()

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	conv := seedConversation(t, convs, start)

	// 相同时间戳的两条消息按插入顺序返回
	same := start.Add(time.Minute)
	require.NoError(t, msgs.Append(ctx, newMessage(conv.ID, model.RoleUser, "first", same)))
	require.NoError(t, msgs.Append(ctx, newMessage(conv.ID, model.RoleAssistant, "second", same)))
	require.NoError(t, msgs.Append(ctx, newMessage(conv.ID, model.RoleUser, "third", same.Add(time.Second))))

	list, err := msgs.ListByConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, []string{"first", "second", "third"}, []string{list[0].Content, list[1].Content, list[2].Content})

	got, err := convs.FindByID(ctx, conv.ID)
	require.NoError(t, err)
	require.True(t, got.UpdatedAt.Equal(same.Add(time.Second)), "updatedAt = %v", got.UpdatedAt)
}

func TestConversationRepository_ListMostRecentlyUpdatedFirst(t *testing.T) {
	store := newTestStore(t)
	convs := NewConversationRepository(store)
	msgs := NewMessageRepository(store)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := seedConversation(t, convs, base)
	b := seedConversation(t, convs, base.Add(time.Hour))
	require.NoError(t, msgs.Append(ctx, newMessage(a.ID, model.RoleUser, "bump", base.Add(2*time.Hour))))

	list, err := convs.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, a.ID, list[0].ID)
	require.Equal(t, b.ID, list[1].ID)
}

func TestConversationRepository_DeleteCascadesAndIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	convs := NewConversationRepository(store)
	msgs := NewMessageRepository(store)
	metrics := NewMetricRepository(store)
	ctx := context.Background()

	now := time.Now().UTC()
	conv := seedConversation(t, convs, now)
	other := seedConversation(t, convs, now)
	for i := 0; i < 4; i++ {
		m := newMessage(conv.ID, model.RoleUser, fmt.Sprintf("m%d", i), now)
		require.NoError(t, msgs.Append(ctx, m))
		require.NoError(t, metrics.Create(ctx, &model.PerformanceMetric{ID: uuid.NewString(), MessageID: m.ID, Timestamp: now}))
	}
	require.NoError(t, msgs.Append(ctx, newMessage(other.ID, model.RoleUser, "keep", now)))

	require.NoError(t, convs.Delete(ctx, conv.ID))

	_, err := convs.FindByID(ctx, conv.ID)
	require.True(t, apperror.Is(err, apperror.CodeNotFound))
	left, err := msgs.ListByConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Empty(t, left)

	rows, err := store.Query(ctx, "SELECT COUNT(*) AS n FROM performance_metrics")
	require.NoError(t, err)
	require.EqualValues(t, 0, rows[0]["n"])

	kept, err := msgs.ListByConversation(ctx, other.ID)
	require.NoError(t, err)
	require.Len(t, kept, 1)

	require.NoError(t, convs.Delete(ctx, conv.ID))
}

func TestConversationRepository_UpdateTitleNotFound(t *testing.T) {
	store := newTestStore(t)
	convs := NewConversationRepository(store)

	err := convs.UpdateTitle(context.Background(), "nope", "title")
	require.True(t, apperror.Is(err, apperror.CodeNotFound))
}

func TestMessageRepository_SetFeedback(t *testing.T) {
	store := newTestStore(t)
	convs := NewConversationRepository(store)
	msgs := NewMessageRepository(store)
	ctx := context.Background()

	conv := seedConversation(t, convs, time.Now().UTC())
	m := newMessage(conv.ID, model.RoleAssistant, "answer", time.Now().UTC())
	require.NoError(t, msgs.Append(ctx, m))

	require.NoError(t, msgs.SetFeedback(ctx, m.ID, -1))
	list, err := msgs.ListByConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, list[0].Feedback)
	require.Equal(t, -1, *list[0].Feedback)

	err = msgs.SetFeedback(ctx, "missing", 1)
	require.True(t, apperror.Is(err, apperror.CodeNotFound))
}

func TestMessageRepository_SearchEscapesWildcards(t *testing.T) {
	store := newTestStore(t)
	convs := NewConversationRepository(store)
	msgs := NewMessageRepository(store)
	ctx := context.Background()

	conv := seedConversation(t, convs, time.Now().UTC())
	require.NoError(t, msgs.Append(ctx, newMessage(conv.ID, model.RoleUser, "discount 100% off", time.Now().UTC())))
	require.NoError(t, msgs.Append(ctx, newMessage(conv.ID, model.RoleUser, "discount 1000 off", time.Now().UTC())))

	hits, err := msgs.Search(ctx, "100%", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "discount 100% off", hits[0].Content)
	require.Equal(t, conv.ID, hits[0].ConversationID)
}

func TestModelConfigRepository_LatestUsesInsertOrder(t *testing.T) {
	store := newTestStore(t)
	repo := NewModelConfigRepository(store)
	ctx := context.Background()

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	require.Nil(t, latest)

	// 两行使用相同的创建时间，仍以后插入的为准
	at := time.Date(2026, 5, 5, 5, 5, 5, 0, time.UTC)
	first := &model.ModelConfig{ID: uuid.NewString(), Name: "a", Temperature: 0.1, TopP: 1, MaxTokens: 10, CreatedAt: at}
	second := &model.ModelConfig{ID: uuid.NewString(), Name: "b", Temperature: 0.9, TopP: 1, MaxTokens: 10, CreatedAt: at}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	latest, err = repo.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, second.ID, latest.ID)

	byID, err := repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, "a", byID.Name)

	_, err = repo.FindByID(ctx, "missing")
	require.True(t, apperror.Is(err, apperror.CodeNotFound))
}

func TestNewSettingsCache_NilClientIsNoop(t *testing.T) {
	cache := NewSettingsCache(nil, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, &model.ModelConfig{ID: "x"}))
	got, err := cache.Get(ctx)
	require.NoError(t, err)
	require.Nil(t, got)
	require.NoError(t, cache.Invalidate(ctx))
}

func TestLockConversation_LocksRowOnMySQL(t *testing.T) {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "dashboard:secret@tcp(127.0.0.1:3306)/dashboard?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true, Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	stmt := lockConversation(db, "c-1").Take(&model.Conversation{}).Statement
	require.Contains(t, stmt.SQL.String(), "FOR UPDATE")
	require.Equal(t, []interface{}{"c-1"}, stmt.Vars)
}

func TestLockConversation_PlainSelectOnSQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{DryRun: true, Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	stmt := lockConversation(db, "c-1").Take(&model.Conversation{}).Statement
	require.NotContains(t, stmt.SQL.String(), "FOR UPDATE")
}

func TestMessageRepository_ConcurrentAppendAndDeleteLeaveNoOrphans(t *testing.T) {
	store := newTestStore(t)
	convs := NewConversationRepository(store)
	msgs := NewMessageRepository(store)
	ctx := context.Background()
	conv := seedConversation(t, convs, time.Now().UTC())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := msgs.Append(ctx, newMessage(conv.ID, model.RoleUser, fmt.Sprintf("m-%d", i), time.Now().UTC()))
			if err != nil {
				assert.True(t, apperror.Is(err, apperror.CodeNotFound), "unexpected error: %v", err)
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, convs.Delete(ctx, conv.ID))
	}()
	wg.Wait()

	rows, err := store.Query(ctx, `SELECT COUNT(*) AS n FROM messages m
		LEFT JOIN conversations c ON c.id = m.conversation_id WHERE c.id IS NULL`)
	require.NoError(t, err)
	require.EqualValues(t, 0, rows[0]["n"])
}
