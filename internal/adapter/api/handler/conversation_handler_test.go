package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmsync/internal/adapter/api"
	"dmsync/internal/domain/entity"
	"dmsync/internal/domain/repository"
	"dmsync/internal/infrastructure/cache"
	"dmsync/internal/infrastructure/cache/adapter"
	"dmsync/internal/usecase"
	"dmsync/pkg/errors"
)

type stubSubscription struct{}

func (stubSubscription) Unsubscribe() {}

// stubConversationRepo is the minimal in-memory ConversationRepository the
// handler tests need.
type stubConversationRepo struct {
	conversations map[string]*entity.Conversation
}

func (s *stubConversationRepo) Create(ctx context.Context, c *entity.Conversation) error {
	if c.ID == "" {
		c.ID = "conv-" + c.CounterpartID
	}
	c.Participants = []string{c.CustomerID, c.CounterpartID}
	s.conversations[c.ID] = c
	return nil
}

func (s *stubConversationRepo) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	c, ok := s.conversations[id]
	if !ok {
		return nil, errors.ConversationNotFound(id)
	}
	return c, nil
}

func (s *stubConversationRepo) ListByUserID(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	var out []*entity.Conversation
	for _, c := range s.conversations {
		if c.HasParticipant(userID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubConversationRepo) FindDirect(ctx context.Context, userID, counterpartID string) (*entity.Conversation, error) {
	for _, c := range s.conversations {
		if c.HasParticipant(userID) && c.HasParticipant(counterpartID) {
			return c, nil
		}
	}
	return nil, errors.NotFound("Conversation", nil)
}

func (s *stubConversationRepo) Update(ctx context.Context, c *entity.Conversation) error {
	s.conversations[c.ID] = c
	return nil
}

func (s *stubConversationRepo) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	return nil
}

func (s *stubConversationRepo) Delete(ctx context.Context, id string) error {
	delete(s.conversations, id)
	return nil
}

func (s *stubConversationRepo) Subscribe(ctx context.Context, userID string, onEvent func(repository.ConversationEvent), onStatus repository.StatusHandler) (repository.Subscription, error) {
	return stubSubscription{}, nil
}

type stubMessageRepo struct {
	messages map[string][]*entity.Message
}

func (s *stubMessageRepo) Create(ctx context.Context, m *entity.Message) error {
	if m.ID == "" {
		m.ID = "msg-" + m.Content
	}
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], m)
	return nil
}

func (s *stubMessageRepo) GetByID(ctx context.Context, conversationID, messageID string) (*entity.Message, error) {
	for _, m := range s.messages[conversationID] {
		if m.ID == messageID {
			return m, nil
		}
	}
	return nil, errors.NotFound("Message", nil)
}

func (s *stubMessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	return s.messages[conversationID], nil
}

func (s *stubMessageRepo) UpdateFields(ctx context.Context, conversationID, messageID string, fields map[string]interface{}) error {
	return nil
}

func (s *stubMessageRepo) MarkSeen(ctx context.Context, conversationID, viewerID string) ([]*entity.Message, error) {
	return nil, nil
}

func (s *stubMessageRepo) Subscribe(ctx context.Context, conversationID string, onEvent func(repository.MessageEvent), onStatus repository.StatusHandler) (repository.Subscription, error) {
	return stubSubscription{}, nil
}

type stubProfileRepo struct{}

func (stubProfileRepo) GetByID(ctx context.Context, id string) (*entity.UserProfile, error) {
	return &entity.UserProfile{ID: id, Username: id}, nil
}

func (stubProfileRepo) BatchGet(ctx context.Context, ids []string) (map[string]*entity.UserProfile, error) {
	out := make(map[string]*entity.UserProfile)
	for _, id := range ids {
		out[id] = &entity.UserProfile{ID: id, Username: id}
	}
	return out, nil
}

type handlerFixture struct {
	echo      *echo.Echo
	directory *usecase.ConversationDirectory
	convRepo  *stubConversationRepo
}

func newHandlerFixture(t *testing.T, conversations ...*entity.Conversation) *handlerFixture {
	t.Helper()

	convRepo := &stubConversationRepo{conversations: make(map[string]*entity.Conversation)}
	for _, c := range conversations {
		require.NoError(t, convRepo.Create(context.Background(), c))
	}
	msgRepo := &stubMessageRepo{messages: make(map[string][]*entity.Message)}

	directory := usecase.NewConversationDirectory(
		"alice",
		convRepo, msgRepo,
		stubProfileRepo{}, stubProfileRepo{},
		nil,
		cache.NewStore(adapter.NewMemoryKV()),
		time.Second, time.Second,
	)
	directory.Initialize(context.Background())
	t.Cleanup(directory.Close)

	// let the background fetch land before the handlers read state
	require.Eventually(t, func() bool {
		return len(directory.Snapshot().Conversations) == len(conversations)
	}, time.Second, 5*time.Millisecond)

	e := echo.New()
	e.Validator = api.NewValidator()
	return &handlerFixture{echo: e, directory: directory, convRepo: convRepo}
}

func (f *handlerFixture) request(method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	return f.echo.NewContext(req, rec), rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	errInfo, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "response carries no error object")
	return errInfo["code"].(string)
}

func TestListConversationsReturnsSnapshot(t *testing.T) {
	f := newHandlerFixture(t, &entity.Conversation{
		ID: "conv-1", CustomerID: "alice", CounterpartID: "bob", HasMessages: true,
	})
	h := NewConversationHandler(f.directory)

	c, rec := f.request(http.MethodGet, "/v1/conversations", "")
	require.NoError(t, h.ListConversations(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]interface{})
	assert.Len(t, data["conversations"], 1)
	assert.Contains(t, []string{"connecting", "connected"}, data["connection_status"])
}

func TestSelectConversationNotFound(t *testing.T) {
	f := newHandlerFixture(t)
	h := NewConversationHandler(f.directory)

	c, rec := f.request(http.MethodPost, "/v1/conversations/nope/select", `{"lock":true}`)
	c.SetParamNames("id")
	c.SetParamValues("nope")
	require.NoError(t, h.SelectConversation(c))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "CONVERSATION_NOT_FOUND", errorCode(t, rec))
}

func TestStartConversationValidatesRecipient(t *testing.T) {
	f := newHandlerFixture(t)
	h := NewConversationHandler(f.directory)

	c, rec := f.request(http.MethodPost, "/v1/conversations/start", `{}`)
	require.NoError(t, h.StartConversation(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
}

func TestStartConversationOpensPendingShell(t *testing.T) {
	f := newHandlerFixture(t)
	h := NewConversationHandler(f.directory)

	c, rec := f.request(http.MethodPost, "/v1/conversations/start", `{"recipient_id":"bob"}`)
	require.NoError(t, h.StartConversation(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	pending := data["pending"].(map[string]interface{})
	assert.Equal(t, "bob", pending["recipient_id"])
	assert.Empty(t, data["selected_conversation_id"])
}

func TestSendFirstMessageCreatesConversation(t *testing.T) {
	f := newHandlerFixture(t)
	h := NewConversationHandler(f.directory)

	c, _ := f.request(http.MethodPost, "/v1/conversations/start", `{"recipient_id":"bob"}`)
	require.NoError(t, h.StartConversation(c))

	c, rec := f.request(http.MethodPost, "/v1/conversations/pending/messages", `{"content":"hi bob"}`)
	require.NoError(t, h.SendFirstMessage(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "hi bob", data["last_message"])
	assert.Equal(t, true, data["has_messages"])

	snap := f.directory.Snapshot()
	assert.Nil(t, snap.Pending)
	require.Len(t, snap.Conversations, 1)
	assert.Equal(t, snap.Conversations[0].ID, snap.SelectedConversationID)
}

func TestSendFirstMessageWithoutPending(t *testing.T) {
	f := newHandlerFixture(t)
	h := NewConversationHandler(f.directory)

	c, rec := f.request(http.MethodPost, "/v1/conversations/pending/messages", `{"content":"hi"}`)
	require.NoError(t, h.SendFirstMessage(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", errorCode(t, rec))
}

func TestConnectionStatusEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	h := NewConversationHandler(f.directory)

	c, rec := f.request(http.MethodGet, "/v1/connection", "")
	require.NoError(t, h.ConnectionStatus(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Contains(t, []string{"connecting", "connected", "disconnected"}, data["status"])
}

func TestMessageEndpointsRequireOpenConversation(t *testing.T) {
	f := newHandlerFixture(t)
	h := NewMessageHandler(f.directory)

	c, rec := f.request(http.MethodGet, "/v1/messages", "")
	require.NoError(t, h.ListMessages(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", errorCode(t, rec))

	c, rec = f.request(http.MethodPost, "/v1/typing", `{"is_typing":true}`)
	require.NoError(t, h.SetTyping(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageIntoSelectedConversation(t *testing.T) {
	f := newHandlerFixture(t, &entity.Conversation{
		ID: "conv-1", CustomerID: "alice", CounterpartID: "bob", HasMessages: true,
	})
	convHandler := NewConversationHandler(f.directory)
	msgHandler := NewMessageHandler(f.directory)

	c, rec := f.request(http.MethodPost, "/v1/conversations/conv-1/select", `{}`)
	c.SetParamNames("id")
	c.SetParamValues("conv-1")
	require.NoError(t, convHandler.SelectConversation(c))
	require.Equal(t, http.StatusOK, rec.Code)

	c, rec = f.request(http.MethodPost, "/v1/messages", `{"content":"hello"}`)
	require.NoError(t, msgHandler.SendMessage(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "hello", data["content"])
	assert.Equal(t, "alice", data["sender_id"])
}

func TestSendMessageValidatesContent(t *testing.T) {
	f := newHandlerFixture(t, &entity.Conversation{
		ID: "conv-1", CustomerID: "alice", CounterpartID: "bob", HasMessages: true,
	})
	convHandler := NewConversationHandler(f.directory)
	msgHandler := NewMessageHandler(f.directory)

	c, _ := f.request(http.MethodPost, "/v1/conversations/conv-1/select", `{}`)
	c.SetParamNames("id")
	c.SetParamValues("conv-1")
	require.NoError(t, convHandler.SelectConversation(c))

	c, rec := f.request(http.MethodPost, "/v1/messages", `{}`)
	require.NoError(t, msgHandler.SendMessage(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
}
