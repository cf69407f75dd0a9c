package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pushgate/internal/types"
)

// userAgent identifies this service to the gateway.
const userAgent = "PushGate/1.0"

// PushGatewayConfig holds the configuration for creating a PushGatewayClient.
type PushGatewayConfig struct {
	GatewayURL string
	APIKey     string
	MaxRetries int
	Logger     types.Logger
}

// PushGatewayClient implements PushProvider against an FCM-style legacy HTTP
// send endpoint: one POST per message, server-key auth, a multicast JSON
// payload, and a summary reply with per-token results. All requests route
// through BaseClient for transport retries and error mapping.
type PushGatewayClient struct {
	base       *BaseClient
	apiKey     string
	gatewayURL string
	logger     types.Logger
}

// NewPushGatewayClient creates a PushGatewayClient. The httpClient timeout
// bounds a single attempt; transport retries multiply it.
func NewPushGatewayClient(httpClient *http.Client, cfg PushGatewayConfig) *PushGatewayClient {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	base := NewBaseClient(
		httpClient,
		"push-gateway",
		RetryPolicy{
			MaxRetries: maxRetries,
			MinWait:    500 * time.Millisecond,
			MaxWait:    10 * time.Second,
		},
		userAgent,
	)

	return &PushGatewayClient{
		base:       base,
		apiKey:     cfg.APIKey,
		gatewayURL: strings.TrimSuffix(cfg.GatewayURL, "/"),
		logger:     cfg.Logger,
	}
}

// NewPushGatewayClientWithBase creates a PushGatewayClient with a
// pre-configured BaseClient. This is useful for testing when you want to
// control the BaseClient configuration (e.g., disable retries).
func NewPushGatewayClientWithBase(base *BaseClient, cfg PushGatewayConfig) *PushGatewayClient {
	return &PushGatewayClient{
		base:       base,
		apiKey:     cfg.APIKey,
		gatewayURL: strings.TrimSuffix(cfg.GatewayURL, "/"),
		logger:     cfg.Logger,
	}
}

// ---------------------------------------------------------------------------
// PushProvider Implementation
// ---------------------------------------------------------------------------

// SendPush transmits one notification as a multicast to all device tokens.
// A 200 reply always yields a non-nil PushResult; Success is true only when
// the gateway rejected no token. Transport failures (network errors, 429/5xx
// after retries, open breaker) surface as AppErrors from BaseClient.
func (c *PushGatewayClient) SendPush(ctx context.Context, msg *types.NotificationMessage) (*types.PushResult, error) {
	payload := buildGatewayPayload(msg)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal gateway payload",
			err,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create gateway request",
			err,
		)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+c.apiKey)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, wrapGatewayError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeProviderFailure,
			"failed to read gateway response",
			err,
		)
	}

	if resp.StatusCode != http.StatusOK {
		return c.handleErrorStatus(resp.StatusCode, respBody)
	}

	var reply gatewayResponse
	if err := json.Unmarshal(respBody, &reply); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeProviderFailure,
			"gateway response is not valid JSON",
			err,
		)
	}

	result := &types.PushResult{
		Success:      reply.Failure == 0,
		SuccessCount: reply.Success,
		FailureCount: reply.Failure,
		Response:     rawResponse(respBody, resp.StatusCode),
	}

	c.logger.Debug("gateway reply",
		"notification_id", msg.NotificationID,
		"success", reply.Success,
		"failure", reply.Failure,
	)
	return result, nil
}

// handleErrorStatus maps non-200 gateway replies that BaseClient passed
// through (4xx other than 429). These are request-level rejections, not
// transport failures; the reply is still preserved for the status store.
func (c *PushGatewayClient) handleErrorStatus(statusCode int, body []byte) (*types.PushResult, error) {
	result := &types.PushResult{
		Success:  false,
		Response: rawResponse(body, statusCode),
	}

	var message string
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		message = "gateway rejected credentials"
	case http.StatusBadRequest:
		message = "gateway rejected payload"
	default:
		message = fmt.Sprintf("gateway returned %d", statusCode)
	}

	return result, types.NewAppErrorWithDetails(
		types.ErrCodeProviderFailure,
		message,
		nil,
		map[string]any{"status_code": statusCode},
	)
}

// wrapGatewayError passes BaseClient AppErrors through unchanged and wraps
// anything else as a provider failure.
func wrapGatewayError(err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(types.ErrCodeProviderFailure, "gateway request failed", err)
}

// ---------------------------------------------------------------------------
// Wire Format
// ---------------------------------------------------------------------------

// gatewayPayload is the legacy multicast send request body.
type gatewayPayload struct {
	RegistrationIDs []string            `json:"registration_ids"`
	Notification    gatewayNotification `json:"notification"`
	Data            map[string]any      `json:"data,omitempty"`
	TimeToLive      int                 `json:"time_to_live"`
}

type gatewayNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// gatewayResponse is the summary reply for a multicast send.
type gatewayResponse struct {
	MulticastID int64           `json:"multicast_id"`
	Success     int             `json:"success"`
	Failure     int             `json:"failure"`
	Results     []gatewayResult `json:"results"`
}

type gatewayResult struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

// buildGatewayPayload maps a domain message to the gateway wire format.
func buildGatewayPayload(msg *types.NotificationMessage) gatewayPayload {
	return gatewayPayload{
		RegistrationIDs: msg.DeviceTokens,
		Notification: gatewayNotification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data:       msg.Data,
		TimeToLive: msg.TTLSeconds,
	}
}

// rawResponse preserves the gateway's reply for the provider_response column.
// Unparseable bodies are stored as a string under "body".
func rawResponse(body []byte, statusCode int) types.ProviderResponse {
	raw := types.ProviderResponse{}
	if err := json.Unmarshal(body, &raw); err != nil || len(raw) == 0 {
		raw = types.ProviderResponse{"body": string(body)}
	}
	raw["status_code"] = statusCode
	return raw
}

// ---------------------------------------------------------------------------
// Interface Compliance
// ---------------------------------------------------------------------------

// Compile-time assertion that PushGatewayClient satisfies PushProvider.
var _ PushProvider = (*PushGatewayClient)(nil)
