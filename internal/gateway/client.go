// Package gateway talks to the school-management GraphQL API: it fetches
// result snapshots, asks for derived grades and submits the exclusion and
// bulk result mutations.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"assessment-results/internal/config"
	"assessment-results/internal/logger"
	"assessment-results/pkg/errors"

	"github.com/rs/zerolog"
)

const namespaceHeader = "X-Academic-Namespace-Id"

var errRateLimited = fmt.Errorf("HTTP %d", http.StatusTooManyRequests)

// retryPolicy decides which failures an operation is resent after.
type retryPolicy int

const (
	// retryQuery resends reads after any transient failure.
	retryQuery retryPolicy = iota
	// retryMutation resends writes only after a 401 or 429, when the server
	// rejected the request before applying it. A timeout or 5xx may follow a
	// commit, so resending could create new rows twice.
	retryMutation
)

func (p retryPolicy) allows(err error) bool {
	if !errors.IsRetryable(err) {
		return false
	}
	if p == retryQuery {
		return true
	}
	return errors.Is(err, errors.ErrAuthenticationFailed) || errors.Is(err, errRateLimited)
}

type Client struct {
	cfg         *config.Config
	httpClient  *http.Client
	authManager *AuthManager
	log         zerolog.Logger
}

func NewClient(cfg *config.Config) *Client {
	httpClient := &http.Client{
		Timeout: cfg.Gateway.Timeout,
	}
	return &Client{
		cfg:         cfg,
		httpClient:  httpClient,
		authManager: NewAuthManager(cfg, httpClient),
		log:         logger.Component("gateway"),
	}
}

type graphQLRequest struct {
	OperationName string                 `json:"operationName,omitempty"`
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string        `json:"message"`
	Path    []interface{} `json:"path,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors,omitempty"`
}

// do runs one GraphQL operation. Queries are retried after transport
// failures, 401, 429 and 5xx; mutations only after 401 and 429.
func (c *Client) do(ctx context.Context, policy retryPolicy, namespaceID int64, operation, query string, variables map[string]interface{}, out interface{}) error {
	attempts := c.cfg.Gateway.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.Gateway.RetryDelay * time.Duration(attempt)):
			}
		}

		err := c.send(ctx, namespaceID, operation, query, variables, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !policy.allows(err) {
			var re errors.RetryableError
			if errors.As(err, &re) {
				return fmt.Errorf("%w: %s: %s: %w", errors.ErrExternalAPIError, operation, re.Message, re.Err)
			}
			return err
		}
		c.log.Warn().Err(err).Str("operation", operation).Int("attempt", attempt+1).Msg("GraphQL request failed, retrying")
	}

	return fmt.Errorf("%w: %s failed after %d attempts: %w", errors.ErrExternalAPIError, operation, attempts, lastErr)
}

func (c *Client) send(ctx context.Context, namespaceID int64, operation, query string, variables map[string]interface{}, out interface{}) error {
	jsonData, err := json.Marshal(graphQLRequest{
		OperationName: operation,
		Query:         query,
		Variables:     variables,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.GraphQLURL(), bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if namespaceID != 0 {
		req.Header.Set(namespaceHeader, strconv.FormatInt(namespaceID, 10))
	}

	if c.authManager.Enabled() {
		token, err := c.authManager.GetToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.log.Debug().Str("operation", operation).Msg("Sending GraphQL request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewRetryableError(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// Token might be expired, the retry will fetch a new one.
		c.authManager.Invalidate()
		return errors.NewRetryableError(errors.ErrAuthenticationFailed, "unauthorized")
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.NewRetryableError(errRateLimited, "rate limited")
	case resp.StatusCode >= http.StatusInternalServerError:
		return errors.NewRetryableError(fmt.Errorf("HTTP %d", resp.StatusCode), "external service unavailable")
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s returned status %d: %s", errors.ErrExternalAPIError, operation, resp.StatusCode, string(body))
	}

	var gqlResp graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}

	if len(gqlResp.Errors) > 0 {
		messages := make([]string, len(gqlResp.Errors))
		for i, e := range gqlResp.Errors {
			messages[i] = e.Message
		}
		return fmt.Errorf("%w: %s: %s", errors.ErrExternalAPIError, operation, strings.Join(messages, "; "))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(gqlResp.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", operation, err)
	}
	return nil
}
