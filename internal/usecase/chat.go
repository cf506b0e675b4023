package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-api/internal/domain"
)

const defaultMemoryLimit = 10

// ParamGetter reads a named parameter, such as the system prompt.
type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Backend produces one model reply for an assembled conversation.
type Backend interface {
	Converse(ctx context.Context, req domain.InferenceRequest) (string, error)
}

// TurnStore persists the turns of each session.
type TurnStore interface {
	GetHistory(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error)
	PutTurn(ctx context.Context, turn domain.Turn) error
}

// ChatService answers chat messages with the session's recent turns as context.
type ChatService struct {
	store       TurnStore
	backend     Backend
	modelID     string
	memoryLimit int
	now         func() time.Time

	params      ParamGetter
	promptParam string

	cacheMu      sync.RWMutex
	promptLoaded bool
	systemPrompt string
}

// ChatInput is one inbound message. An empty SessionID starts a new session.
type ChatInput struct {
	SessionID string
	Message   string
}

// ChatOutput is the reply with the session it belongs to.
type ChatOutput struct {
	SessionID    string
	Reply        string
	LatencyMS    int64
	HistoryTurns int
}

// Option configures a ChatService.
type Option func(*ChatService)

// WithSystemPrompt loads the system prompt from the named parameter on first
// use. A failed load is retried on the next request.
func WithSystemPrompt(p ParamGetter, name string) Option {
	return func(s *ChatService) {
		s.params = p
		s.promptParam = strings.TrimSpace(name)
	}
}

// WithClock overrides the time source used for turn timestamps and latency.
func WithClock(now func() time.Time) Option {
	return func(s *ChatService) {
		s.now = now
	}
}

// NewChatService validates its dependencies. A non-positive memoryLimit uses
// the default of 10 turns.
func NewChatService(store TurnStore, backend Backend, modelID string, memoryLimit int, opts ...Option) (*ChatService, error) {
	if store == nil {
		return nil, errors.New("usecase: turn store must not be nil")
	}
	if backend == nil {
		return nil, errors.New("usecase: inference backend must not be nil")
	}
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return nil, errors.New("usecase: model id must not be empty")
	}
	if memoryLimit <= 0 {
		memoryLimit = defaultMemoryLimit
	}
	s := &ChatService{
		store:       store,
		backend:     backend,
		modelID:     modelID,
		memoryLimit: memoryLimit,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.promptParam != "" && s.params == nil {
		return nil, errors.New("usecase: system prompt parameter set without a parameter getter")
	}
	return s, nil
}

// Chat loads the session's recent turns, stores the user message, asks the
// backend for a reply and stores it. The user turn is not rolled back when a
// later step fails.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_message", "", nil)
	}
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = newUUID()
	}

	system, err := s.ensureSystemPrompt(ctx)
	if err != nil {
		return ChatOutput{}, newError(ErrorInternal, "ssm_load_error", sessionID, err)
	}

	history, err := s.loadHistory(ctx, sessionID)
	if err != nil {
		return ChatOutput{}, newError(ErrorInternal, "dynamodb_history_error", sessionID, err)
	}

	if err := s.writeTurn(ctx, sessionID, domain.RoleUser, message, nil); err != nil {
		return ChatOutput{}, newError(ErrorInternal, "dynamodb_write_error", sessionID, err)
	}

	reply, latencyMS, err := s.invoke(ctx, system, history, message)
	if err != nil {
		return ChatOutput{}, newError(ErrorInternal, "inference_error", sessionID, err)
	}

	if err := s.writeTurn(ctx, sessionID, domain.RoleAssistant, reply, &latencyMS); err != nil {
		return ChatOutput{}, newError(ErrorInternal, "dynamodb_write_error", sessionID, err)
	}

	return ChatOutput{
		SessionID:    sessionID,
		Reply:        reply,
		LatencyMS:    latencyMS,
		HistoryTurns: len(history),
	}, nil
}

// loadHistory returns the most recent turns as text-typed chat messages,
// oldest first, skipping records with an unknown role or no content.
func (s *ChatService) loadHistory(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	turns, err := s.store.GetHistory(ctx, sessionID, s.memoryLimit)
	if err != nil {
		return nil, err
	}
	msgs := make([]domain.ChatMessage, 0, len(turns))
	for _, t := range turns {
		if !t.Role.Valid() || t.Content == "" {
			continue
		}
		msgs = append(msgs, domain.ChatMessage{
			Role:    t.Role,
			Content: []domain.ContentBlock{{Type: "text", Text: t.Content}},
		})
	}
	return msgs, nil
}

func (s *ChatService) invoke(ctx context.Context, system string, history []domain.ChatMessage, message string) (string, int64, error) {
	req := domain.InferenceRequest{
		ModelID:  s.modelID,
		System:   system,
		Messages: buildConversation(history, message),
		Config:   domain.DefaultInferenceConfig(),
	}

	start := s.now()
	reply, err := s.backend.Converse(ctx, req)
	latencyMS := s.now().Sub(start).Milliseconds()
	if err != nil {
		return "", latencyMS, err
	}
	return strings.TrimSpace(reply), latencyMS, nil
}

// buildConversation maps history to backend-bound messages and appends the
// new user message last.
func buildConversation(history []domain.ChatMessage, message string) []domain.ChatMessage {
	convo := make([]domain.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		text := m.FirstText()
		if !m.Role.Valid() || text == "" {
			continue
		}
		convo = append(convo, domain.ChatMessage{
			Role:    m.Role,
			Content: []domain.ContentBlock{{Text: text}},
		})
	}
	return append(convo, domain.ChatMessage{
		Role:    domain.RoleUser,
		Content: []domain.ContentBlock{{Text: message}},
	})
}

func (s *ChatService) writeTurn(ctx context.Context, sessionID string, role domain.Role, content string, latencyMS *int64) error {
	return s.store.PutTurn(ctx, domain.Turn{
		SessionID: sessionID,
		Timestamp: domain.FormatTimestamp(s.now()),
		Role:      role,
		Content:   content,
		LatencyMS: latencyMS,
	})
}

func (s *ChatService) ensureSystemPrompt(ctx context.Context) (string, error) {
	if s.promptParam == "" {
		return "", nil
	}

	s.cacheMu.RLock()
	if s.promptLoaded {
		prompt := s.systemPrompt
		s.cacheMu.RUnlock()
		return prompt, nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.promptLoaded {
		return s.systemPrompt, nil
	}

	prompt, err := s.params.GetParameter(ctx, s.promptParam)
	if err != nil {
		return "", fmt.Errorf("usecase: load system prompt: %w", err)
	}
	s.systemPrompt = strings.TrimSpace(prompt)
	s.promptLoaded = true
	return s.systemPrompt, nil
}

var newUUID = func() string {
	return uuid.NewString()
}
