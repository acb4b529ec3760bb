package transport

import (
	"context"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/go-resty/resty/v2"

	"github.com/imtaco/reqflow/internal/errors"
	"github.com/imtaco/reqflow/internal/log"
	"github.com/imtaco/reqflow/request"
)

const defaultTimeout = 10 * time.Second

func newResty(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)
}

// Client issues authenticated JSON calls against one upstream.
type Client struct {
	http   *resty.Client
	creds  *Credentials
	logger *log.Logger
}

// NewClient creates a client; creds may be nil for anonymous upstreams.
func NewClient(logger *log.Logger, baseURL string, timeout time.Duration, creds *Credentials) *Client {
	if logger == nil {
		panic("logger is required")
	}
	return &Client{
		http:   newResty(baseURL, timeout),
		creds:  creds,
		logger: logger.Module("Transport"),
	}
}

// Fetcher returns a request.Fetcher calling method on path. The first
// param, when present, is the JSON body; for GET a map[string]string is
// sent as the query instead. The raw response body is returned as
// json.RawMessage.
func (c *Client) Fetcher(method, path string) request.Fetcher {
	return func(ctx context.Context, params ...any) (any, error) {
		req := c.http.R().SetContext(ctx)

		if c.creds != nil {
			token, err := c.creds.Token(ctx)
			if err != nil {
				return nil, err
			}
			req.SetAuthToken(token)
		}

		if len(params) > 0 && params[0] != nil {
			if q, ok := params[0].(map[string]string); ok && method == resty.MethodGet {
				req.SetQueryParams(q)
			} else {
				req.SetBody(params[0])
			}
		}

		c.logger.Debug("upstream call", log.String("method", method), log.String("path", path))
		resp, err := req.Execute(method, path)
		if err != nil {
			return nil, errors.Wrapf(ErrRequest, err, "%s %s", method, path)
		}
		if resp.IsError() {
			return nil, &StatusError{StatusCode: resp.StatusCode(), Body: resp.Body()}
		}
		return json.RawMessage(resp.Body()), nil
	}
}
