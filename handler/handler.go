package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"chat-api/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	badRequestMessage   = "Provide JSON body: { session_id?: string, message: string }"
	serverErrorMessage  = "Server error"
)

// ChatUseCase runs one chat exchange.
type ChatUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

// Handler adapts API Gateway HTTP API events to a ChatUseCase.
type Handler struct {
	uc     ChatUseCase
	logger *slog.Logger
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

type errorResponse struct {
	Error     string `json:"error"`
	SessionID string `json:"session_id,omitempty"`
}

// NewHandler builds the Lambda handler. A nil logger falls back to slog.Default.
func NewHandler(uc ChatUseCase, logger *slog.Logger) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{uc: uc, logger: logger}, nil
}

// Handle serves one API Gateway HTTP API request. Failures are reported in the
// response envelope; the returned error is always nil so the platform never
// replaces the body with its own.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	correlationID := correlationIDFrom(req)
	log := h.logger.With("correlation_id", correlationID)

	in, ok := parseRequest(req)
	if !ok {
		log.Debug("rejected chat request")
		return jsonResponse(http.StatusBadRequest, errorResponse{Error: badRequestMessage}, correlationID), nil
	}

	out, err := h.uc.Chat(ctx, usecase.ChatInput{SessionID: in.SessionID, Message: in.Message})
	if err != nil {
		var ucErr *usecase.Error
		if errors.As(err, &ucErr) && ucErr.Code == usecase.ErrorInvalidInput {
			log.Debug("rejected chat request", "reason", ucErr.Reason)
			return jsonResponse(http.StatusBadRequest, errorResponse{Error: badRequestMessage}, correlationID), nil
		}

		sessionID := in.SessionID
		reason := "unexpected_error"
		if ucErr != nil {
			reason = ucErr.Reason
			if ucErr.SessionID != "" {
				sessionID = ucErr.SessionID
			}
		}
		log.Error("chat request failed", "session_id", sessionID, "reason", reason, "err", err)
		return jsonResponse(http.StatusInternalServerError, errorResponse{Error: serverErrorMessage, SessionID: sessionID}, correlationID), nil
	}

	log.Info("chat reply sent",
		"session_id", out.SessionID,
		"latency_ms", out.LatencyMS,
		"history_turns", out.HistoryTurns,
		"reply_chars", len(out.Reply),
	)
	return jsonResponse(http.StatusOK, chatResponse{SessionID: out.SessionID, Reply: out.Reply}, correlationID), nil
}

// parseRequest decodes and trims the request body. Malformed JSON and a blank
// message are reported the same way.
func parseRequest(req events.APIGatewayV2HTTPRequest) (chatRequest, bool) {
	body := req.Body
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return chatRequest{}, false
		}
		body = string(decoded)
	}
	if strings.TrimSpace(body) == "" {
		body = "{}"
	}

	var in chatRequest
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return chatRequest{}, false
	}
	in.SessionID = strings.TrimSpace(in.SessionID)
	in.Message = strings.TrimSpace(in.Message)
	if in.Message == "" {
		return chatRequest{}, false
	}
	return in, true
}

func correlationIDFrom(req events.APIGatewayV2HTTPRequest) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, headerCorrelationID) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if id := req.RequestContext.RequestID; id != "" {
		return id
	}
	return uuid.NewString()
}

func jsonResponse(status int, body any, correlationID string) events.APIGatewayV2HTTPResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"Server error"}`)
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			headerCorrelationID: correlationID,
		},
		Body: string(raw),
	}
}
