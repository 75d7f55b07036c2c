// Package transport implements the stateless request/response surface of the
// remote chat service. It owns request construction and error classification;
// all conversation state lives with the lifecycle manager.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/chatportal/conversation-core/internal/model"
	"github.com/chatportal/conversation-core/pkg/logger"
	"github.com/chatportal/conversation-core/pkg/metrics"
)

const apiPrefix = "/api/chat"

// Client talks to the remote chat service. All operations are side-effect
// free with respect to client-local state; they only return data.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
	tracer     trace.Tracer
}

// New creates a chat service client. The timeout bounds every request; an
// expired request classifies as ErrServiceUnavailable.
func New(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/") + apiPrefix,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log,
		tracer: otel.Tracer("conversation-core/transport"),
	}
}

// CreateConversation opens a new conversation on the service. An empty title
// falls back to the service default.
func (c *Client) CreateConversation(ctx context.Context, title string) (*model.Conversation, error) {
	if strings.TrimSpace(title) == "" {
		title = model.DefaultTitle
	}

	var conv model.Conversation
	err := c.do(ctx, "create", http.MethodPost, "/create/", model.CreateConversationRequest{Title: title}, &conv)
	if err != nil {
		return nil, err
	}

	if conv.ID == "" {
		return nil, fmt.Errorf("%w: create response missing conversation id", ErrServiceUnavailable)
	}
	if conv.Status == "" {
		conv.Status = model.StatusActive
	}

	return &conv, nil
}

// FetchConversations returns every conversation known to the service, in the
// service's own ordering (newest first).
func (c *Client) FetchConversations(ctx context.Context) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := c.do(ctx, "list", http.MethodGet, "/", nil, &convs)
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// FetchConversation returns the current metadata of one conversation.
func (c *Client) FetchConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := c.do(ctx, "detail", http.MethodGet, "/"+conversationID+"/", nil, &conv)
	if err != nil {
		return nil, err
	}
	if conv.ID == "" {
		return nil, fmt.Errorf("%w: detail response missing conversation id", ErrServiceUnavailable)
	}
	return &conv, nil
}

// PostMessage submits one user message and returns the assistant reply paired
// to it. The user message is not echoed back by the service.
func (c *Client) PostMessage(ctx context.Context, conversationID, content string) (*model.SendMessageResponse, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("message content must not be empty")
	}

	var resp model.SendMessageResponse
	err := c.do(ctx, "send", http.MethodPost, "/"+conversationID+"/send/", model.SendMessageRequest{Content: content}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.AI.Content == "" {
		return nil, fmt.Errorf("%w: send response missing assistant reply", ErrServiceUnavailable)
	}
	resp.AI.Sender = model.SenderAI

	return &resp, nil
}

// FetchMessages returns the full message log for a conversation, oldest
// first. Used once, at conversation resume time.
func (c *Client) FetchMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var msgs []model.Message
	err := c.do(ctx, "messages", http.MethodGet, "/"+conversationID+"/messages/", nil, &msgs)
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// EndConversation closes a conversation and returns its generated summary.
// The remote contract is not idempotent; the lifecycle manager guards against
// a second call.
func (c *Client) EndConversation(ctx context.Context, conversationID string) (*model.EndConversationResponse, error) {
	var resp model.EndConversationResponse
	err := c.do(ctx, "end", http.MethodPost, "/"+conversationID+"/end/", nil, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchStatus returns the service liveness string. Informational only; it
// never gates other operations.
func (c *Client) FetchStatus(ctx context.Context) (string, error) {
	var resp model.StatusResponse
	err := c.do(ctx, "status", http.MethodGet, "/status/", nil, &resp)
	if err != nil {
		return "", err
	}
	if resp.Status == "" {
		return "Unknown", nil
	}
	return resp.Status, nil
}

// Search runs a semantic search over historical conversations. Ranking
// authority belongs to the service; results are re-sorted (stable, descending
// similarity) only when the returned order cannot be trusted. Malformed
// entries are dropped at this boundary.
func (c *Client) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("search query must not be empty")
	}

	var resp model.SearchResponse
	err := c.do(ctx, "search", http.MethodPost, "/search/", model.SearchRequest{Query: query}, &resp)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	results := resp.Results[:0]
	for _, r := range resp.Results {
		if !r.Valid() {
			c.logger.Warn("dropping malformed search result",
				zap.Float64("similarity", r.Similarity),
			)
			continue
		}
		results = append(results, r)
	}

	if !sort.SliceIsSorted(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	}) {
		c.logger.Warn("search results arrived out of rank order, re-sorting")
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Similarity > results[j].Similarity
		})
	}

	metrics.SearchesTotal.WithLabelValues("success").Inc()
	return results, nil
}

// FetchDashboard returns the raw dashboard payload. Fields omitted by the
// service stay nil so callers can render them as unknown instead of a silent
// zero.
func (c *Client) FetchDashboard(ctx context.Context) (*model.DashboardResponse, error) {
	var resp model.DashboardResponse
	err := c.do(ctx, "dashboard", http.MethodGet, "/dashboard/", nil, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// do executes one request against the service and classifies the outcome:
// connectivity failures wrap ErrServiceUnavailable, non-2xx statuses become
// *RequestRejectedError.
func (c *Client) do(ctx context.Context, operation, method, path string, body, out any) error {
	ctx, span := c.tracer.Start(ctx, "chat."+operation,
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("chat.operation", operation),
		),
	)
	defer span.End()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", operation, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", operation, err)
	}

	correlationID := uuid.New().String()
	req.Header.Set("X-Correlation-ID", correlationID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		metrics.RecordRequest(operation, "unavailable", duration.Seconds())
		c.logger.Warn("chat service unreachable",
			zap.String("operation", operation),
			zap.String("correlation_id", correlationID),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		span.SetStatus(codes.Error, "request rejected")
		metrics.RecordRequest(operation, "rejected", duration.Seconds())
		c.logger.Warn("chat service rejected request",
			zap.String("operation", operation),
			zap.String("correlation_id", correlationID),
			zap.Int("status", resp.StatusCode),
		)
		return &RequestRejectedError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(detail)),
		}
	}

	metrics.RecordRequest(operation, "success", duration.Seconds())
	c.logger.Debug("chat service request completed",
		zap.String("operation", operation),
		zap.String("correlation_id", correlationID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration),
	)

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			span.RecordError(err)
			return fmt.Errorf("%w: malformed %s response: %v", ErrServiceUnavailable, operation, err)
		}
	}

	return nil
}
