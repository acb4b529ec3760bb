package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"

	"github.com/imtaco/reqflow/internal/errors"
	"github.com/imtaco/reqflow/internal/log"
	"github.com/imtaco/reqflow/internal/retry"
	"github.com/imtaco/reqflow/request"
)

const tokenPath = "/token"

type tokenRequest struct {
	Subject string `json:"subject"`
	Scope   string `json:"scope,omitempty"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
}

// Credentials hold the bearer token shared by every Client using them.
type Credentials struct {
	http    *resty.Client
	subject string
	scope   string
	retry   retry.Retry
	logger  *log.Logger

	group singleflight.Group
	mu    sync.RWMutex
	token string
}

func NewCredentials(logger *log.Logger, baseURL, subject, scope string, r retry.Retry) *Credentials {
	if logger == nil {
		panic("logger is required")
	}
	if r == nil {
		panic("retry is required")
	}
	return &Credentials{
		http:    newResty(baseURL, 0),
		subject: subject,
		scope:   scope,
		retry:   r,
		logger:  logger.Module("Credentials"),
	}
}

// Token returns the current token, acquiring one first if none is held.
// Concurrent first calls share a single acquisition that a cancelled caller
// does not abort.
func (c *Credentials) Token(ctx context.Context) (string, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		return token, nil
	}

	// the shared acquisition outlives any single caller; each caller still
	// stops waiting when its own ctx ends
	ch := c.group.DoChan("token", func() (any, error) {
		return c.acquire(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Renew replaces the token, retrying transient failures with backoff. Its
// signature matches the refresh middleware handler.
func (c *Credentials) Renew(ctx context.Context, _ *request.Context) error {
	_, err := c.acquire(ctx)
	return err
}

func (c *Credentials) acquire(ctx context.Context) (string, error) {
	var token string
	err := c.retry.Do(ctx, func() error {
		t, err := c.issue(ctx)
		if err != nil {
			return err
		}
		token = t
		return nil
	})
	if err != nil {
		return "", errors.Wrap(ErrToken, err, c.subject)
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	c.logger.Debug("token acquired", log.String("subject", c.subject))
	return token, nil
}

func (c *Credentials) issue(ctx context.Context) (string, error) {
	var out tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(tokenRequest{Subject: c.subject, Scope: c.scope}).
		SetResult(&out).
		Post(tokenPath)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		se := &StatusError{StatusCode: resp.StatusCode(), Body: resp.Body()}
		if resp.StatusCode() < http.StatusInternalServerError {
			return "", retry.Permanent(se)
		}
		return "", se
	}
	if out.Token == "" {
		return "", retry.Permanent(errors.New(ErrToken, "empty token in response"))
	}
	c.logger.Debug("token issued", log.Duration("ttl", time.Duration(out.ExpiresIn)*time.Second))
	return out.Token, nil
}
