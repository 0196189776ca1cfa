package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/services"
	"github.com/PabloG6/medscan-intellibus/internal/stream"
	"github.com/PabloG6/medscan-intellibus/internal/types"
)

// ChatIDHeader carries the resolved chat id on every submit response.
const ChatIDHeader = "x-chat-id"

type ChatHandler struct {
	log            *logger.Logger
	chatService    services.ChatService
	overlayService services.OverlayService
}

func NewChatHandler(log *logger.Logger, chatService services.ChatService, overlayService services.OverlayService) *ChatHandler {
	return &ChatHandler{
		log:            log.With("handler", "ChatHandler"),
		chatService:    chatService,
		overlayService: overlayService,
	}
}

type submitChatRequest struct {
	ChatID   string            `json:"chatId"`
	Messages []types.UIMessage `json:"messages"`
	Title    string            `json:"title"`
}

// Submit merges a chat turn. It answers with JSON when no reply is due and
// with an event stream of the new assistant message otherwise.
func (ch *ChatHandler) Submit(c *gin.Context) {
	var req submitChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.ChatID == "" {
		req.ChatID = c.GetHeader(ChatIDHeader)
	}
	ctx := c.Request.Context()
	res, err := ch.chatService.SubmitTurn(ctx, req.ChatID, req.Messages, req.Title)
	if err != nil {
		respondError(c, ch.log, "Failed to process chat turn", err)
		return
	}
	c.Header(ChatIDHeader, res.Chat.ID)
	if res.Reply == nil {
		c.JSON(http.StatusOK, gin.H{"chatId": res.Chat.ID, "messages": res.Transcript})
		return
	}

	stream.SetHeaders(c.Writer)
	c.Status(http.StatusOK)
	if err := stream.WriteSSE(ctx, c.Writer, stream.Assemble(*res.Reply)); err != nil {
		// The reply is already stored; the client can reload the transcript.
		ch.log.Warn("Stream interrupted", "chatID", res.Chat.ID, "messageID", res.Reply.ID, "error", err)
	}
}

func (ch *ChatHandler) New(c *gin.Context) {
	chat, err := ch.chatService.CreateChat(c.Request.Context())
	if err != nil {
		respondError(c, ch.log, "Failed to create chat", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"chatId":      chat.ID,
		"title":       chat.Title,
		"description": chat.Description,
	})
}

type patchMessageRequest struct {
	ChatID      string                 `json:"chatId"`
	MessageID   string                 `json:"messageId"`
	Metadata    *types.MessageMetadata `json:"metadata"`
	Attachments []types.Attachment     `json:"attachments"`
}

func (ch *ChatHandler) PatchMessage(c *gin.Context) {
	var req patchMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.ChatID) == "" || strings.TrimSpace(req.MessageID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chatId and messageId are required"})
		return
	}
	msg, err := ch.chatService.UpdateMessageAnnotations(c.Request.Context(), req.ChatID, req.MessageID, req.Metadata, req.Attachments)
	if err != nil {
		respondError(c, ch.log, "Failed to update message", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (ch *ChatHandler) List(c *gin.Context) {
	chats, err := ch.chatService.ListChats(c.Request.Context())
	if err != nil {
		respondError(c, ch.log, "Failed to list chats", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (ch *ChatHandler) Transcript(c *gin.Context) {
	chatID := c.Param("chatId")
	msgs, err := ch.chatService.GetTranscript(c.Request.Context(), chatID)
	if err != nil {
		respondError(c, ch.log, "Failed to load messages", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chatId": chatID, "messages": msgs})
}

func (ch *ChatHandler) Overlay(c *gin.Context) {
	index := 0
	if raw := c.Query("attachment"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "attachment must be a non-negative integer"})
			return
		}
		index = n
	}
	png, err := ch.overlayService.RenderOverlay(c.Request.Context(), c.Param("chatId"), c.Param("messageId"), index)
	if err != nil {
		respondError(c, ch.log, "Failed to render overlay", err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}
