package repos

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/PabloG6/medscan-intellibus/internal/db"
	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/types"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	svc, err := db.NewSQLiteService(filepath.Join(t.TempDir(), "repos.db"), logger.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	if err := svc.AutoMigrateAll(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return svc.DB()
}

func createTestUser(t *testing.T, gdb *gorm.DB, email string) *types.User {
	t.Helper()
	users, err := NewUserRepo(gdb, logger.Nop()).Create(context.Background(), nil, []*types.User{{
		Email: email, Password: "hash", FirstName: "Test", LastName: "User",
	}})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return users[0]
}

func TestChatRepoScopesByUser(t *testing.T) {
	ctx := context.Background()
	gdb := openTestDB(t)
	owner := createTestUser(t, gdb, "owner@example.com")
	other := createTestUser(t, gdb, "other@example.com")
	repo := NewChatRepo(gdb, logger.Nop())

	chat, err := repo.Create(ctx, nil, &types.Chat{UserID: owner.ID, Title: "New Chat"})
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if chat.ID == "" {
		t.Fatalf("chat id not assigned")
	}

	got, err := repo.GetByIDForUser(ctx, nil, chat.ID, owner.ID)
	if err != nil || got == nil {
		t.Fatalf("owner lookup = %v, %v", got, err)
	}
	got, err = repo.GetByIDForUser(ctx, nil, chat.ID, other.ID)
	if err != nil {
		t.Fatalf("other lookup error: %v", err)
	}
	if got != nil {
		t.Fatalf("other user could read chat %s", chat.ID)
	}
	got, err = repo.GetByIDForUser(ctx, nil, "missing", owner.ID)
	if err != nil || got != nil {
		t.Fatalf("missing lookup = %v, %v", got, err)
	}
}

func TestChatRepoListOrdersByUpdatedAt(t *testing.T) {
	ctx := context.Background()
	gdb := openTestDB(t)
	owner := createTestUser(t, gdb, "owner@example.com")
	repo := NewChatRepo(gdb, logger.Nop())

	first, _ := repo.Create(ctx, nil, &types.Chat{UserID: owner.ID, Title: "first"})
	time.Sleep(5 * time.Millisecond)
	if _, err := repo.Create(ctx, nil, &types.Chat{UserID: owner.ID, Title: "second"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := repo.Touch(ctx, nil, first.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}

	chats, err := repo.ListByUser(ctx, nil, owner.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(chats) != 2 || chats[0].Title != "first" {
		t.Fatalf("unexpected order: %+v", chats)
	}
}

func TestChatMessageInsertSkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	gdb := openTestDB(t)
	owner := createTestUser(t, gdb, "owner@example.com")
	chat, _ := NewChatRepo(gdb, logger.Nop()).Create(ctx, nil, &types.Chat{UserID: owner.ID, Title: "t"})
	repo := NewChatMessageRepo(gdb, logger.Nop())

	newMsg := func(id string) *types.ChatMessage {
		return &types.ChatMessage{
			ChatID: chat.ID,
			ID:     id,
			Role:   types.RoleUser,
			Parts:  datatypes.NewJSONType([]types.MessagePart{types.TextPart(id)}),
		}
	}

	n, err := repo.Insert(ctx, nil, []*types.ChatMessage{newMsg("a"), newMsg("b")})
	if err != nil || n != 2 {
		t.Fatalf("first insert = %d, %v", n, err)
	}
	n, err = repo.Insert(ctx, nil, []*types.ChatMessage{newMsg("a")})
	if err != nil {
		t.Fatalf("duplicate insert should be a no-op, got %v", err)
	}
	if n != 0 {
		t.Fatalf("duplicate insert wrote %d rows", n)
	}

	msgs, err := repo.GetByChatID(ctx, nil, chat.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "a" || msgs[1].ID != "b" {
		t.Fatalf("unexpected transcript: %d messages", len(msgs))
	}
	if parts := msgs[0].Parts.Data(); len(parts) != 1 || parts[0].Text != "a" {
		t.Fatalf("parts not persisted: %+v", parts)
	}
}

func TestChatMessageOrderingFollowsAppendOrder(t *testing.T) {
	ctx := context.Background()
	gdb := openTestDB(t)
	owner := createTestUser(t, gdb, "owner@example.com")
	chat, _ := NewChatRepo(gdb, logger.Nop()).Create(ctx, nil, &types.Chat{UserID: owner.ID, Title: "t"})
	repo := NewChatMessageRepo(gdb, logger.Nop())

	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	// "first" carries a client timestamp well after "second".
	if _, err := repo.Insert(ctx, nil, []*types.ChatMessage{
		{ChatID: chat.ID, ID: "first", Role: types.RoleUser, CreatedAt: base.Add(time.Hour), InsertedAt: base},
		{ChatID: chat.ID, ID: "second", Role: types.RoleAssistant, CreatedAt: base, InsertedAt: base.Add(time.Second)},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	msgs, err := repo.GetByChatID(ctx, nil, chat.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if msgs[0].ID != "first" || msgs[1].ID != "second" {
		t.Fatalf("got order %s, %s", msgs[0].ID, msgs[1].ID)
	}
}

func TestChatMessageUpdateAnnotationsScopedToChat(t *testing.T) {
	ctx := context.Background()
	gdb := openTestDB(t)
	owner := createTestUser(t, gdb, "owner@example.com")
	chatRepo := NewChatRepo(gdb, logger.Nop())
	chatA, _ := chatRepo.Create(ctx, nil, &types.Chat{UserID: owner.ID, Title: "a"})
	chatB, _ := chatRepo.Create(ctx, nil, &types.Chat{UserID: owner.ID, Title: "b"})
	repo := NewChatMessageRepo(gdb, logger.Nop())
	if _, err := repo.Insert(ctx, nil, []*types.ChatMessage{{ChatID: chatA.ID, ID: "m1", Role: types.RoleAssistant}}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	meta := &types.MessageMetadata{Image: &types.ImageOverlay{Alt: "edited", Labels: []types.ImageLabel{{ID: "l1", X: 10, Y: 20, Text: "x"}}, Editable: true}}
	n, err := repo.UpdateAnnotations(ctx, nil, chatB.ID, "m1", meta, nil)
	if err != nil {
		t.Fatalf("update wrong chat: %v", err)
	}
	if n != 0 {
		t.Fatalf("update through another chat touched %d rows", n)
	}

	n, err = repo.UpdateAnnotations(ctx, nil, chatA.ID, "m1", meta, []types.Attachment{{ID: "att", MediaType: "image/png", DataURL: "data:image/png;base64,AA"}})
	if err != nil || n != 1 {
		t.Fatalf("update = %d, %v", n, err)
	}
	got, err := repo.GetByID(ctx, nil, chatA.ID, "m1")
	if err != nil || got == nil {
		t.Fatalf("get = %v, %v", got, err)
	}
	if md := got.Metadata.Data(); md == nil || md.Image == nil || md.Image.Alt != "edited" {
		t.Fatalf("metadata not updated: %+v", md)
	}
	if atts := got.Attachments.Data(); len(atts) != 1 || atts[0].ID != "att" {
		t.Fatalf("attachments not updated: %+v", atts)
	}
	if got.Role != types.RoleAssistant {
		t.Fatalf("role changed to %q", got.Role)
	}
}

func TestUserTokenLookups(t *testing.T) {
	ctx := context.Background()
	gdb := openTestDB(t)
	owner := createTestUser(t, gdb, "owner@example.com")
	repo := NewUserTokenRepo(gdb, logger.Nop())

	tok := &types.UserToken{UserID: owner.ID, AccessToken: "acc", RefreshToken: "ref", ExpiresAt: time.Now().Add(time.Hour)}
	if _, err := repo.Create(ctx, nil, []*types.UserToken{tok}); err != nil {
		t.Fatalf("create: %v", err)
	}
	byRefresh, err := repo.GetByRefreshTokens(ctx, nil, []string{"ref"})
	if err != nil || len(byRefresh) != 1 || byRefresh[0].UserID != owner.ID {
		t.Fatalf("by refresh = %+v, %v", byRefresh, err)
	}
	if err := repo.FullDeleteByTokens(ctx, nil, byRefresh); err != nil {
		t.Fatalf("delete: %v", err)
	}
	byAccess, err := repo.GetByAccessTokens(ctx, nil, []string{"acc"})
	if err != nil || len(byAccess) != 0 {
		t.Fatalf("token survived delete: %+v, %v", byAccess, err)
	}
	if _, err := repo.GetByUserIDs(ctx, nil, []uuid.UUID{owner.ID}); err != nil {
		t.Fatalf("by user: %v", err)
	}
}
