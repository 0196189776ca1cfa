package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/repos"
	"github.com/PabloG6/medscan-intellibus/internal/requestdata"
	"github.com/PabloG6/medscan-intellibus/internal/transform"
	"github.com/PabloG6/medscan-intellibus/internal/types"
)

const (
	ActionChatUpdated    = "chat_updated"
	ActionMessageUpdated = "message_updated"

	untitledChatTitle = "New Chat"
)

// ChatNotifier pushes change notifications to a user's live connections.
type ChatNotifier interface {
	NotifyUser(ctx context.Context, userID uuid.UUID, action string, payload interface{})
}

// SubmitResult is the outcome of one submitted chat turn. Reply is nil when no
// assistant message was generated.
type SubmitResult struct {
	Chat       *types.Chat
	Transcript []types.UIMessage
	Reply      *types.UIMessage
}

type ChatService interface {
	ResolveOrCreateChat(ctx context.Context, chatID string, title string) (*types.Chat, error)
	MergeIncomingMessages(ctx context.Context, chat *types.Chat, incoming []types.UIMessage) ([]*types.ChatMessage, error)
	MaybeRespond(ctx context.Context, chat *types.Chat, transcript []*types.ChatMessage) (*types.UIMessage, error)
	SubmitTurn(ctx context.Context, chatID string, messages []types.UIMessage, title string) (*SubmitResult, error)

	UpdateMessageAnnotations(ctx context.Context, chatID, messageID string, metadata *types.MessageMetadata, attachments []types.Attachment) (*types.UIMessage, error)

	CreateChat(ctx context.Context) (*types.Chat, error)
	ListChats(ctx context.Context) ([]*types.Chat, error)
	GetTranscript(ctx context.Context, chatID string) ([]types.UIMessage, error)
	GetMessage(ctx context.Context, chatID, messageID string) (*types.UIMessage, error)
}

type chatService struct {
	db               *gorm.DB
	log              *logger.Logger
	chatRepo         repos.ChatRepo
	chatMessageRepo  repos.ChatMessageRepo
	inference        InferenceProvider
	imageLoader      ImageLoader
	metadata         ChatMetadataGenerator
	notifier         ChatNotifier
	inferenceTimeout time.Duration
	now              func() time.Time
}

// NewChatService wires the chat flows. notifier may be nil.
func NewChatService(
	db *gorm.DB,
	log *logger.Logger,
	chatRepo repos.ChatRepo,
	chatMessageRepo repos.ChatMessageRepo,
	inference InferenceProvider,
	imageLoader ImageLoader,
	metadata ChatMetadataGenerator,
	notifier ChatNotifier,
	inferenceTimeout time.Duration,
) ChatService {
	serviceLog := log.With("service", "ChatService")
	if metadata == nil {
		metadata = staticMetadataGenerator{}
	}
	return &chatService{
		db:               db,
		log:              serviceLog,
		chatRepo:         chatRepo,
		chatMessageRepo:  chatMessageRepo,
		inference:        inference,
		imageLoader:      imageLoader,
		metadata:         metadata,
		notifier:         notifier,
		inferenceTimeout: inferenceTimeout,
		now:              time.Now,
	}
}

func (cs *chatService) userID(ctx context.Context) (uuid.UUID, error) {
	userID := requestdata.UserID(ctx)
	if userID == uuid.Nil {
		return uuid.Nil, ErrUnauthorized
	}
	return userID, nil
}

// ResolveOrCreateChat returns the caller's chat with chatID. A missing id, an
// unknown id, and another user's id all yield a brand new chat.
func (cs *chatService) ResolveOrCreateChat(ctx context.Context, chatID string, title string) (*types.Chat, error) {
	userID, err := cs.userID(ctx)
	if err != nil {
		return nil, err
	}
	chatID = strings.TrimSpace(chatID)
	if chatID != "" {
		chat, err := cs.chatRepo.GetByIDForUser(ctx, nil, chatID, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load chat: %w", err)
		}
		if chat != nil {
			return chat, nil
		}
		cs.log.Debug("Chat not found for user, creating a new one", "chatID", chatID, "userID", userID)
	}
	chat := &types.Chat{
		UserID: userID,
		Title:  strings.TrimSpace(title),
	}
	if chat.Title == "" {
		chat.Title = untitledChatTitle
	}
	created, err := cs.chatRepo.Create(ctx, nil, chat)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return created, nil
}

// MergeIncomingMessages stores every incoming message not yet in the chat and
// returns the full transcript afterwards.
func (cs *chatService) MergeIncomingMessages(ctx context.Context, chat *types.Chat, incoming []types.UIMessage) ([]*types.ChatMessage, error) {
	if _, err := cs.userID(ctx); err != nil {
		return nil, err
	}
	existing, err := cs.chatMessageRepo.GetByChatID(ctx, nil, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	if len(incoming) == 0 {
		return existing, nil
	}

	stored := make(map[string]bool, len(existing))
	for _, m := range existing {
		stored[m.ID] = true
	}
	now := cs.now()
	appendAt := nextInsertedAt(existing, now)
	var toInsert []*types.ChatMessage
	for _, m := range incoming {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if stored[m.ID] {
			continue
		}
		stored[m.ID] = true
		row := transform.ToStoreInsertParams(m, chat, now)
		row.InsertedAt = appendAt.Add(time.Duration(len(toInsert)) * time.Microsecond)
		toInsert = append(toInsert, row)
	}
	if len(toInsert) == 0 {
		return existing, nil
	}

	var transcript []*types.ChatMessage
	err = cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := cs.chatMessageRepo.Insert(ctx, tx, toInsert); err != nil {
			return err
		}
		if err := cs.chatRepo.Touch(ctx, tx, chat.ID); err != nil {
			return err
		}
		var lErr error
		transcript, lErr = cs.chatMessageRepo.GetByChatID(ctx, tx, chat.ID)
		return lErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to merge messages: %w", err)
	}
	cs.notify(ctx, chat.UserID, ActionChatUpdated, chat)
	return transcript, nil
}

// MaybeRespond builds and stores an assistant reply when the transcript ends
// with a user message. It returns nil when no reply is due.
func (cs *chatService) MaybeRespond(ctx context.Context, chat *types.Chat, transcript []*types.ChatMessage) (*types.UIMessage, error) {
	if _, err := cs.userID(ctx); err != nil {
		return nil, err
	}
	if len(transcript) == 0 {
		return nil, nil
	}
	last := transcript[len(transcript)-1]
	if last.Role != types.RoleUser {
		return nil, nil
	}

	var reply types.UIMessage
	attachments := transform.ToWire(last).Attachments()
	if len(attachments) == 0 {
		reply = cs.uploadPrompt()
	} else {
		reply = cs.analyze(ctx, chat, attachments)
	}

	now := cs.now()
	row := transform.ToStoreInsertParams(reply, chat, now)
	row.InsertedAt = nextInsertedAt(transcript, now)
	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := cs.chatMessageRepo.Insert(ctx, tx, []*types.ChatMessage{row}); err != nil {
			return err
		}
		return cs.chatRepo.Touch(ctx, tx, chat.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store assistant reply: %w", err)
	}
	out := transform.ToWire(row)
	cs.notify(ctx, chat.UserID, ActionChatUpdated, chat)
	return &out, nil
}

func (cs *chatService) uploadPrompt() types.UIMessage {
	return types.UIMessage{
		ID:    uuid.NewString(),
		Role:  types.RoleAssistant,
		Parts: []types.MessagePart{types.TextPart(uploadPromptText)},
		Metadata: &types.MessageMetadata{
			Timestamp: cs.timestamp(),
		},
	}
}

// analyze runs inference on the first attachment. Inference failures produce
// an apology reply instead of an error.
func (cs *chatService) analyze(ctx context.Context, chat *types.Chat, attachments []types.Attachment) types.UIMessage {
	primary := attachments[0]
	parts := []types.MessagePart{{}}
	for _, att := range attachments {
		parts = append(parts, types.FilePart(att.DataURL, att.MediaType, att.Filename))
	}
	reply := types.UIMessage{
		ID:    uuid.NewString(),
		Role:  types.RoleAssistant,
		Parts: parts,
		Metadata: &types.MessageMetadata{
			Timestamp:   cs.timestamp(),
			Attachments: append([]types.Attachment(nil), attachments...),
		},
	}

	analysis, err := cs.runInference(ctx, primary)
	if err != nil {
		cs.log.Error("Inference failed, replying with an apology", "chatID", chat.ID, "attachmentID", primary.ID, "error", err)
		reply.Parts[0] = types.TextPart(inferenceFailedText)
		return reply
	}

	labels := BuildLabels(analysis)
	alt := primary.Alt
	if alt == "" {
		alt = analysis.Classification.Label
	}
	reply.Parts[0] = types.TextPart(BuildSummary(analysis))
	reply.Metadata.Image = &types.ImageOverlay{
		Alt:      alt,
		Labels:   labels,
		Editable: true,
	}
	reply.Metadata.Attachments[0].Labels = labels
	cs.log.Info("Analyzed attachment", "chatID", chat.ID, "classification", analysis.Classification.Label, "boxes", len(labels))
	return reply
}

func (cs *chatService) runInference(ctx context.Context, att types.Attachment) (*Analysis, error) {
	if cs.inference == nil {
		return nil, fmt.Errorf("%w: no provider configured", ErrUpstreamInference)
	}
	if cs.inferenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cs.inferenceTimeout)
		defer cancel()
	}
	img, err := cs.imageLoader.Load(ctx, att)
	if err != nil {
		return nil, err
	}
	analysis, err := cs.inference.Analyze(ctx, img)
	if err != nil {
		return nil, err
	}
	if err := analysis.Validate(); err != nil {
		return nil, err
	}
	return analysis, nil
}

// SubmitTurn resolves the chat, merges the incoming messages and generates a
// reply when one is due.
func (cs *chatService) SubmitTurn(ctx context.Context, chatID string, messages []types.UIMessage, title string) (*SubmitResult, error) {
	if _, err := cs.userID(ctx); err != nil {
		return nil, err
	}
	chat, err := cs.ResolveOrCreateChat(ctx, chatID, title)
	if err != nil {
		return nil, err
	}
	transcript, err := cs.MergeIncomingMessages(ctx, chat, messages)
	if err != nil {
		return nil, err
	}
	result := &SubmitResult{Chat: chat, Transcript: transform.ToWireAll(transcript)}
	if len(messages) == 0 {
		return result, nil
	}
	reply, err := cs.MaybeRespond(ctx, chat, transcript)
	if err != nil {
		return nil, err
	}
	if reply != nil {
		result.Reply = reply
		result.Transcript = append(result.Transcript, *reply)
	}
	return result, nil
}

func (cs *chatService) UpdateMessageAnnotations(ctx context.Context, chatID, messageID string, metadata *types.MessageMetadata, attachments []types.Attachment) (*types.UIMessage, error) {
	userID, err := cs.userID(ctx)
	if err != nil {
		return nil, err
	}
	chatID = strings.TrimSpace(chatID)
	messageID = strings.TrimSpace(messageID)
	if chatID == "" || messageID == "" {
		return nil, fmt.Errorf("%w: chatId and messageId are required", ErrValidation)
	}

	var updated *types.ChatMessage
	err = cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		chat, err := cs.chatRepo.GetByIDForUser(ctx, tx, chatID, userID)
		if err != nil {
			return err
		}
		if chat == nil {
			return ErrChatNotFound
		}
		n, err := cs.chatMessageRepo.UpdateAnnotations(ctx, tx, chatID, messageID, metadata, attachments)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrMessageNotFound
		}
		if err := cs.chatRepo.Touch(ctx, tx, chatID); err != nil {
			return err
		}
		updated, err = cs.chatMessageRepo.GetByID(ctx, tx, chatID, messageID)
		if err != nil {
			return err
		}
		if updated == nil {
			return ErrMessageNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := transform.ToWire(updated)
	cs.notify(ctx, userID, ActionMessageUpdated, map[string]interface{}{"chatId": chatID, "message": out})
	return &out, nil
}

// CreateChat starts an empty chat with a generated title and description.
func (cs *chatService) CreateChat(ctx context.Context) (*types.Chat, error) {
	userID, err := cs.userID(ctx)
	if err != nil {
		return nil, err
	}
	md := cs.metadata.Generate(ctx)
	chat, err := cs.chatRepo.Create(ctx, nil, &types.Chat{
		UserID:      userID,
		Title:       md.Title,
		Description: md.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	cs.notify(ctx, userID, ActionChatUpdated, chat)
	return chat, nil
}

func (cs *chatService) ListChats(ctx context.Context) ([]*types.Chat, error) {
	userID, err := cs.userID(ctx)
	if err != nil {
		return nil, err
	}
	chats, err := cs.chatRepo.ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	if chats == nil {
		chats = []*types.Chat{}
	}
	return chats, nil
}

func (cs *chatService) GetTranscript(ctx context.Context, chatID string) ([]types.UIMessage, error) {
	chat, err := cs.ownedChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	msgs, err := cs.chatMessageRepo.GetByChatID(ctx, nil, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	return transform.ToWireAll(msgs), nil
}

func (cs *chatService) GetMessage(ctx context.Context, chatID, messageID string) (*types.UIMessage, error) {
	chat, err := cs.ownedChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	msg, err := cs.chatMessageRepo.GetByID(ctx, nil, chat.ID, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load message: %w", err)
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	out := transform.ToWire(msg)
	return &out, nil
}

func (cs *chatService) ownedChat(ctx context.Context, chatID string) (*types.Chat, error) {
	userID, err := cs.userID(ctx)
	if err != nil {
		return nil, err
	}
	chat, err := cs.chatRepo.GetByIDForUser(ctx, nil, chatID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat: %w", err)
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

func (cs *chatService) notify(ctx context.Context, userID uuid.UUID, action string, payload interface{}) {
	if cs.notifier == nil {
		return
	}
	cs.notifier.NotifyUser(ctx, userID, action, payload)
}

// nextInsertedAt returns an append time strictly after every stored message,
// so a reply never sorts ahead of the turn it answers. Steps are microseconds,
// the coarsest precision among the supported stores.
func nextInsertedAt(transcript []*types.ChatMessage, now time.Time) time.Time {
	at := now.UTC()
	for _, m := range transcript {
		if !m.InsertedAt.Before(at) {
			at = m.InsertedAt.UTC().Add(time.Microsecond)
		}
	}
	return at
}

func (cs *chatService) timestamp() string {
	return cs.now().UTC().Format(time.RFC3339Nano)
}
