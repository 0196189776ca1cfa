package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/services"
	"github.com/PabloG6/medscan-intellibus/internal/stream"
	"github.com/PabloG6/medscan-intellibus/internal/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeChatService embeds the interface so tests only implement what they hit.
type fakeChatService struct {
	services.ChatService

	submitted   string
	submitRes   *services.SubmitResult
	submitErr   error
	patchMsg    *types.UIMessage
	patchErr    error
	createdChat *types.Chat
}

func (f *fakeChatService) SubmitTurn(ctx context.Context, chatID string, messages []types.UIMessage, title string) (*services.SubmitResult, error) {
	f.submitted = chatID
	return f.submitRes, f.submitErr
}

func (f *fakeChatService) UpdateMessageAnnotations(ctx context.Context, chatID, messageID string, metadata *types.MessageMetadata, attachments []types.Attachment) (*types.UIMessage, error) {
	return f.patchMsg, f.patchErr
}

func (f *fakeChatService) CreateChat(ctx context.Context) (*types.Chat, error) {
	return f.createdChat, nil
}

type fakeOverlayService struct {
	index int
	png   []byte
	err   error
}

func (f *fakeOverlayService) RenderOverlay(ctx context.Context, chatID, messageID string, attachmentIndex int) ([]byte, error) {
	f.index = attachmentIndex
	return f.png, f.err
}

func newChatRouter(chatSvc *fakeChatService, overlay *fakeOverlayService) *gin.Engine {
	h := NewChatHandler(logger.Nop(), chatSvc, overlay)
	r := gin.New()
	r.POST("/api/chat", h.Submit)
	r.POST("/api/chat/new", h.New)
	r.PATCH("/api/chat/message", h.PatchMessage)
	r.GET("/api/chats/:chatId/messages/:messageId/overlay", h.Overlay)
	return r
}

func doJSON(r http.Handler, method, path string, body interface{}, header map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitWithoutReplyReturnsTranscript(t *testing.T) {
	chatSvc := &fakeChatService{submitRes: &services.SubmitResult{
		Chat: &types.Chat{ID: "chat-1", Title: "New Chat"},
		Transcript: []types.UIMessage{
			{ID: "u1", Role: types.RoleUser, Parts: []types.MessagePart{{Type: types.PartText, Text: "hello"}}},
		},
	}}
	w := doJSON(newChatRouter(chatSvc, &fakeOverlayService{}), http.MethodPost, "/api/chat",
		gin.H{"chatId": "chat-1", "messages": []gin.H{}}, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get(ChatIDHeader); got != "chat-1" {
		t.Fatalf("x-chat-id = %q", got)
	}
	var resp struct {
		ChatID   string            `json:"chatId"`
		Messages []types.UIMessage `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ChatID != "chat-1" || len(resp.Messages) != 1 || resp.Messages[0].ID != "u1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSubmitFallsBackToHeaderChatID(t *testing.T) {
	chatSvc := &fakeChatService{submitRes: &services.SubmitResult{Chat: &types.Chat{ID: "from-header"}}}
	w := doJSON(newChatRouter(chatSvc, &fakeOverlayService{}), http.MethodPost, "/api/chat",
		gin.H{"messages": []gin.H{}}, map[string]string{ChatIDHeader: "from-header"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if chatSvc.submitted != "from-header" {
		t.Fatalf("submitted chat id = %q", chatSvc.submitted)
	}
}

func TestSubmitStreamsReply(t *testing.T) {
	reply := types.UIMessage{
		ID:   "a1",
		Role: types.RoleAssistant,
		Parts: []types.MessagePart{
			{Type: types.PartText, Text: "**Classification:** Normal"},
			{Type: types.PartFile, URL: "data:image/png;base64,AAAA", MediaType: "image/png"},
		},
	}
	chatSvc := &fakeChatService{submitRes: &services.SubmitResult{
		Chat:  &types.Chat{ID: "chat-2"},
		Reply: &reply,
	}}
	w := doJSON(newChatRouter(chatSvc, &fakeOverlayService{}), http.MethodPost, "/api/chat",
		gin.H{"chatId": "chat-2", "messages": []gin.H{}}, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}
	if w.Header().Get(stream.ProtocolHeader) != "v1" {
		t.Fatalf("missing protocol header")
	}
	if w.Header().Get(ChatIDHeader) != "chat-2" {
		t.Fatalf("missing x-chat-id on stream")
	}
	body := w.Body.String()
	for _, want := range []string{
		`"type":"start","messageId":"a1"`,
		`"type":"text-delta","id":"text-a1-0","delta":"**Classification:** Normal"`,
		`"type":"file","url":"data:image/png;base64,AAAA","mediaType":"image/png"`,
		`"type":"finish"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("stream missing %s\n%s", want, body)
		}
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Fatalf("stream not terminated: %q", body)
	}
}

func TestSubmitUnauthorized(t *testing.T) {
	chatSvc := &fakeChatService{submitErr: services.ErrUnauthorized}
	w := doJSON(newChatRouter(chatSvc, &fakeOverlayService{}), http.MethodPost, "/api/chat",
		gin.H{"messages": []gin.H{}}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestNewChat(t *testing.T) {
	chatSvc := &fakeChatService{createdChat: &types.Chat{ID: "c9", Title: "Chest CT Review", Description: "Reviewing a chest CT."}}
	w := doJSON(newChatRouter(chatSvc, &fakeOverlayService{}), http.MethodPost, "/api/chat/new", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["chatId"] != "c9" || resp["title"] != "Chest CT Review" || resp["description"] != "Reviewing a chest CT." {
		t.Fatalf("unexpected response %v", resp)
	}
}

func TestPatchMessage(t *testing.T) {
	tests := []struct {
		name       string
		body       gin.H
		patchMsg   *types.UIMessage
		patchErr   error
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing ids",
			body:       gin.H{"chatId": "c1"},
			wantStatus: http.StatusBadRequest,
			wantError:  "chatId and messageId are required",
		},
		{
			name:       "unknown message",
			body:       gin.H{"chatId": "c1", "messageId": "m404"},
			patchErr:   fmt.Errorf("lookup: %w", services.ErrMessageNotFound),
			wantStatus: http.StatusNotFound,
			wantError:  "Message not found",
		},
		{
			name:       "store failure",
			body:       gin.H{"chatId": "c1", "messageId": "m1"},
			patchErr:   errors.New("disk full"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "Failed to update message",
		},
		{
			name:       "ok",
			body:       gin.H{"chatId": "c1", "messageId": "m1", "metadata": gin.H{"image": gin.H{"labels": []gin.H{}, "editable": true}}},
			patchMsg:   &types.UIMessage{ID: "m1", Role: types.RoleAssistant, Parts: []types.MessagePart{}},
			wantStatus: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chatSvc := &fakeChatService{patchMsg: tt.patchMsg, patchErr: tt.patchErr}
			w := doJSON(newChatRouter(chatSvc, &fakeOverlayService{}), http.MethodPatch, "/api/chat/message", tt.body, nil)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}
			var resp map[string]json.RawMessage
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if tt.wantError != "" {
				var msg string
				_ = json.Unmarshal(resp["error"], &msg)
				if msg != tt.wantError {
					t.Fatalf("error = %q, want %q", msg, tt.wantError)
				}
				return
			}
			if _, ok := resp["message"]; !ok {
				t.Fatalf("response has no message: %s", w.Body.String())
			}
		})
	}
}

func TestOverlay(t *testing.T) {
	overlay := &fakeOverlayService{png: []byte("\x89PNG")}
	r := newChatRouter(&fakeChatService{}, overlay)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chats/c1/messages/m1/overlay?attachment=2", nil))
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("status = %d, content-type = %q", w.Code, w.Header().Get("Content-Type"))
	}
	if overlay.index != 2 {
		t.Fatalf("attachment index = %d", overlay.index)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chats/c1/messages/m1/overlay?attachment=-1", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("negative index status = %d", w.Code)
	}

	overlay.err = services.ErrChatNotFound
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chats/other/messages/m1/overlay", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign chat status = %d", w.Code)
	}
}

type fakeUploadService struct {
	gotName string
	gotBody string
}

func (f *fakeUploadService) UploadAttachment(ctx context.Context, filename string, r io.Reader) (*types.Attachment, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.gotName, f.gotBody = filename, string(data)
	return &types.Attachment{ID: "att-1", MediaType: "image/png", DataURL: "https://storage.googleapis.com/b/attachments/u/att-1.png", Filename: filename}, nil
}

func TestUpload(t *testing.T) {
	svc := &fakeUploadService{}
	h := NewUploadHandler(logger.Nop(), svc, 1<<20)
	r := gin.New()
	r.POST("/api/uploads", h.Upload)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "scan.png")
	_, _ = fw.Write([]byte("pixels"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if svc.gotName != "scan.png" || svc.gotBody != "pixels" {
		t.Fatalf("service got %q / %q", svc.gotName, svc.gotBody)
	}
	var resp map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["id"] != "att-1" || resp["mediaType"] != "image/png" || !strings.HasPrefix(resp["url"], "https://") {
		t.Fatalf("unexpected response %v", resp)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader("")))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing file status = %d", w.Code)
	}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func TestHealthz(t *testing.T) {
	for _, tt := range []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{errors.New("connection refused"), http.StatusServiceUnavailable},
	} {
		r := gin.New()
		r.GET("/healthz", NewHealthHandler(fakePinger{tt.err}).Healthz)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if w.Code != tt.want {
			t.Fatalf("err=%v status = %d, want %d", tt.err, w.Code, tt.want)
		}
	}
}

func TestSplitName(t *testing.T) {
	first, last := splitName("  Ada  King Lovelace ")
	if first != "Ada" || last != "King Lovelace" {
		t.Fatalf("got %q %q", first, last)
	}
	if first, last := splitName(""); first != "" || last != "" {
		t.Fatalf("empty name split to %q %q", first, last)
	}
}
