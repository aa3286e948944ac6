// Package restplane implements agentcore delegates over HTTP, driven by a service model.
package restplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"

	"agentcore/pkg/agentcore"
	"agentcore/pkg/config"
	"agentcore/pkg/logx"
	"agentcore/pkg/servicemodel"
	"agentcore/pkg/version"
)

const (
	logDomain = "rest"

	// ResponseMetadataKey holds request metadata added to every successful result.
	ResponseMetadataKey = "ResponseMetadata"
	// PayloadKey holds a non-JSON response body.
	PayloadKey = "payload"
)

// TokenSource resolves the bearer token used to authenticate requests.
type TokenSource func() (string, error)

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return func() (string, error) { return token, nil }
}

// SecretToken resolves the token through config.GetSecret (secrets file, then environment).
func SecretToken(name string) TokenSource {
	return func() (string, error) {
		token, err := config.GetSecret(name)
		if err != nil {
			return "", fmt.Errorf("resolve credentials: %w", err)
		}
		return token, nil
	}
}

// Client is a delegate for one service plane.
type Client struct {
	model      *servicemodel.Model
	region     string
	endpoint   *url.URL
	httpClient *http.Client
	token      string
	logger     *logx.Logger
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient  *http.Client
	endpoint    string
	tokenSource TokenSource
	logger      *logx.Logger
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithEndpoint overrides the model's endpoint template.
func WithEndpoint(endpoint string) Option {
	return func(o *clientOptions) { o.endpoint = endpoint }
}

// WithTokenSource sets how the bearer token is resolved.
func WithTokenSource(ts TokenSource) Option {
	return func(o *clientOptions) { o.tokenSource = ts }
}

// WithLogger sets the logger.
func WithLogger(logger *logx.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// New creates a client for model scoped to region. It resolves credentials eagerly and
// fails if they are unavailable. No request is sent.
func New(model *servicemodel.Model, region string, opts ...Option) (*Client, error) {
	if model == nil {
		return nil, fmt.Errorf("service model is required")
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}

	o := clientOptions{
		tokenSource: SecretToken(config.DefaultTokenEnv),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: time.Duration(config.DefaultTimeoutSeconds) * time.Second}
	}
	if o.logger == nil {
		o.logger = logx.NewLogger(model.Service)
	}

	rawEndpoint := o.endpoint
	if rawEndpoint == "" {
		rawEndpoint = model.EndpointFor(region)
	}
	endpoint, err := url.Parse(rawEndpoint)
	if err != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("invalid endpoint %q for %s", rawEndpoint, model.Service)
	}

	token, err := o.tokenSource()
	if err != nil {
		return nil, err
	}

	o.logger.DebugDomain(logDomain, "Created %s client for region %s at %s", model.Service, region, endpoint)
	return &Client{
		model:      model,
		region:     region,
		endpoint:   endpoint,
		httpClient: o.httpClient,
		token:      token,
		logger:     o.logger,
	}, nil
}

// Factory adapts New to an agentcore.Factory.
func Factory(model *servicemodel.Model, opts ...Option) agentcore.Factory {
	return func(region string) (agentcore.Delegate, error) {
		c, err := New(model, region, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Service returns the service identity.
func (c *Client) Service() string {
	return c.model.Service
}

// Region returns the region the client is scoped to.
func (c *Client) Region() string {
	return c.region
}

// Documentation returns the model's documentation URL.
func (c *Client) Documentation() string {
	return c.model.Documentation
}

// Operations lists the model's operations.
func (c *Client) Operations() []string {
	return c.model.Names()
}

// Lookup returns the named operation if the model defines it.
func (c *Client) Lookup(name string) (agentcore.Operation, bool) {
	opDef, ok := c.model.Operation(name)
	if !ok {
		return nil, false
	}
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		return c.invoke(ctx, name, opDef, args)
	}, true
}

func (c *Client) invoke(ctx context.Context, name string, opDef servicemodel.Operation, args map[string]any) (map[string]any, error) {
	req, requestID, err := c.buildRequest(ctx, name, opDef, args)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", c.model.Service, name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response: %w", c.model.Service, name, err)
	}
	c.logger.DebugDomain(logDomain, "%s %s -> %d (%s, %dms)", req.Method, req.URL.Path, resp.StatusCode, name, time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newServiceError(c.model.Service, name, resp, body, requestID)
	}
	return decodeResponse(resp, body, requestID)
}

// buildRequest maps args onto the operation's path, query, and JSON body. The caller's
// map is never modified.
func (c *Client) buildRequest(ctx context.Context, name string, opDef servicemodel.Operation, args map[string]any) (*http.Request, string, error) {
	remaining := make(map[string]any, len(args)+1)
	for k, v := range args {
		remaining[k] = v
	}
	if opDef.IdempotencyToken != "" {
		if _, ok := remaining[opDef.IdempotencyToken]; !ok {
			remaining[opDef.IdempotencyToken] = uuid.NewString()
		}
	}

	path := opDef.Path
	for _, param := range opDef.PathParams() {
		value, ok := remaining[param]
		if !ok {
			return nil, "", fmt.Errorf("%s %s: missing required path parameter %q", c.model.Service, name, param)
		}
		path = strings.ReplaceAll(path, "{"+param+"}", url.PathEscape(fmt.Sprint(value)))
		delete(remaining, param)
	}

	query := url.Values{}
	for _, key := range opDef.Query {
		if value, ok := remaining[key]; ok {
			query.Set(key, fmt.Sprint(value))
			delete(remaining, key)
		}
	}

	var body io.Reader
	if opDef.Method == http.MethodGet {
		for key, value := range remaining {
			query.Set(key, fmt.Sprint(value))
		}
	} else if len(remaining) > 0 {
		payload, err := encodeBody(remaining)
		if err != nil {
			return nil, "", fmt.Errorf("%s %s: %w", c.model.Service, name, err)
		}
		body = bytes.NewReader(payload)
	}

	u := c.endpoint.JoinPath(path)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, opDef.Method, u.String(), body)
	if err != nil {
		return nil, "", fmt.Errorf("%s %s: build request: %w", c.model.Service, name, err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-Id", requestID)
	req.Header.Set("User-Agent", "agentcore-go/"+version.Version)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, requestID, nil
}

// encodeBody builds the JSON body key by key in sorted order.
func encodeBody(fields map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	payload := []byte("{}")
	for _, key := range keys {
		var err error
		payload, err = sjson.SetBytes(payload, escapePath(key), fields[key])
		if err != nil {
			return nil, fmt.Errorf("encode field %q: %w", key, err)
		}
	}
	return payload, nil
}

// escapePath makes a literal object key safe to use as an sjson path.
func escapePath(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func decodeResponse(resp *http.Response, body []byte, requestID string) (map[string]any, error) {
	result := map[string]any{}

	if len(bytes.TrimSpace(body)) > 0 {
		mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
		decoded := map[string]any{}
		if (mediaType == "" || strings.HasSuffix(mediaType, "json")) && json.Unmarshal(body, &decoded) == nil {
			result = decoded
		} else {
			result[PayloadKey] = string(body)
			result["contentType"] = resp.Header.Get("Content-Type")
		}
	}

	if rid := resp.Header.Get("X-Amzn-Requestid"); rid != "" {
		requestID = rid
	}
	result[ResponseMetadataKey] = map[string]any{
		"RequestId":      requestID,
		"HTTPStatusCode": resp.StatusCode,
	}
	return result, nil
}
