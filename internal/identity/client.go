package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medtrack/server/internal/model"
	"github.com/medtrack/server/pkg/circuitbreaker"
	apperrors "github.com/medtrack/server/pkg/errors"
)

// Conflict signal documented by the identity provider. This is the only
// error pattern given special handling; everything else propagates as-is.
const (
	conflictCode    = "session_exists"
	conflictMessage = "Session already exists"
)

// Client talks to the identity provider.
type Client interface {
	CreateSession(ctx context.Context, identifier, secret string) (*model.SessionResult, error)
	SignUp(ctx context.Context, req *model.SignUpRequest) (*model.SessionResult, error)
	RefreshToken(ctx context.Context, refreshToken string) (model.Token, string, error)
	EndSession(ctx context.Context, token string) error
}

type providerError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type errorEnvelope struct {
	Errors []providerError `json:"errors"`
}

type sessionResponse struct {
	Status       string `json:"status"`
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	Identity     *struct {
		ID        string `json:"id"`
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"identity"`
}

type httpClient struct {
	baseURL string
	http    *http.Client
	cb      *circuitbreaker.CircuitBreaker
}

// NewClient creates an identity provider client. Calls are wrapped in a
// circuit breaker so a flapping provider does not stall every request for a
// full timeout.
func NewClient(baseURL string, timeout time.Duration) Client {
	return &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "identity-provider",
			MaxFailures: 5,
			Timeout:     15 * time.Second,
		}),
	}
}

func (c *httpClient) CreateSession(ctx context.Context, identifier, secret string) (*model.SessionResult, error) {
	body := map[string]string{"identifier": identifier, "secret": secret}
	var resp sessionResponse
	if err := c.post(ctx, "/v1/sessions", body, &resp); err != nil {
		return nil, err
	}
	return c.toSessionResult(&resp)
}

func (c *httpClient) SignUp(ctx context.Context, req *model.SignUpRequest) (*model.SessionResult, error) {
	body := map[string]string{
		"identifier": req.Identifier,
		"secret":     req.Secret,
		"first_name": req.FirstName,
		"last_name":  req.LastName,
	}
	var resp sessionResponse
	if err := c.post(ctx, "/v1/users", body, &resp); err != nil {
		return nil, err
	}
	return c.toSessionResult(&resp)
}

func (c *httpClient) RefreshToken(ctx context.Context, refreshToken string) (model.Token, string, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var resp sessionResponse
	if err := c.post(ctx, "/v1/sessions/refresh", body, &resp); err != nil {
		return model.Token{}, "", err
	}
	token, err := ParseToken(resp.Token)
	if err != nil {
		return model.Token{}, "", apperrors.AuthExpired(err)
	}
	return token, resp.RefreshToken, nil
}

func (c *httpClient) EndSession(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/sessions/current", nil)
	if err != nil {
		return apperrors.Internal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return c.do(req, nil)
}

func (c *httpClient) toSessionResult(resp *sessionResponse) (*model.SessionResult, error) {
	result := &model.SessionResult{Status: resp.Status}
	if resp.Status == model.SessionStatusComplete {
		token, err := ParseToken(resp.Token)
		if err != nil {
			return nil, apperrors.AuthExpired(err)
		}
		result.Token = token
		result.RefreshToken = resp.RefreshToken
	}
	if resp.Identity != nil {
		result.Identity = &model.Identity{
			ID:          resp.Identity.ID,
			Email:       resp.Identity.Email,
			FirstName:   resp.Identity.FirstName,
			LastName:    resp.Identity.LastName,
			DisplayName: strings.TrimSpace(resp.Identity.FirstName + " " + resp.Identity.LastName),
		}
	}
	return result, nil
}

func (c *httpClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperrors.Internal(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return apperrors.Internal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out interface{}) error {
	var resp *http.Response
	err := c.cb.Execute(func() error {
		var doErr error
		resp, doErr = c.http.Do(req)
		return doErr
	})
	if err != nil {
		return apperrors.BackendUnreachable(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.BackendUnreachable(err)
	}

	if resp.StatusCode >= 400 {
		return c.classifyError(resp.StatusCode, raw)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return apperrors.BackendUnreachable(fmt.Errorf("malformed provider response: %w", err))
		}
	}
	return nil
}

func (c *httpClient) classifyError(status int, raw []byte) error {
	var envelope errorEnvelope
	_ = json.Unmarshal(raw, &envelope)

	for _, pe := range envelope.Errors {
		if pe.Code == conflictCode || strings.Contains(pe.Message, conflictMessage) {
			return apperrors.AuthConflict(fmt.Errorf("provider: %s", pe.Message))
		}
	}

	msg := "provider error"
	if len(envelope.Errors) > 0 {
		msg = envelope.Errors[0].Message
	}

	switch {
	case status == http.StatusUnauthorized:
		return apperrors.AuthExpired(fmt.Errorf("provider: %s", msg))
	case status >= 500:
		return apperrors.BackendUnreachable(fmt.Errorf("provider: %s", msg))
	default:
		return apperrors.ValidationFailed(msg, nil)
	}
}

// ParseToken extracts the expiry claim from a provider-issued JWT. The token
// is otherwise treated as opaque here; signature verification happens where
// the token is consumed.
func ParseToken(value string) (model.Token, error) {
	if value == "" {
		return model.Token{}, fmt.Errorf("empty token")
	}

	token := model.Token{Value: value}
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(value, claims); err != nil {
		// Not a JWT; treat as opaque with no known expiry.
		return token, nil
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		token.ExpiresAt = exp.Time
	}
	return token, nil
}
