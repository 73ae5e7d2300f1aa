package envelope

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/yurifrl/categorisation/pkg/config"
)

// Client performs calls on behalf of the vendor callers.
type Client struct {
	http   *http.Client
	logger *log.Logger
}

// New builds a client honouring the proxy and timeout settings of cfg.
func New(cfg *config.Config, logger *log.Logger) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy := cfg.Proxy.URL(); proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", proxy, err)
		}
		logger.Info("using http proxy", "proxy", u.Host)
		transport.Proxy = http.ProxyURL(u)
	}
	return NewWithHTTPClient(&http.Client{Transport: transport, Timeout: cfg.HTTP.Timeout}, logger), nil
}

// NewWithHTTPClient wraps an existing http.Client.
func NewWithHTTPClient(hc *http.Client, logger *log.Logger) *Client {
	return &Client{http: hc, logger: logger}
}

// Do sends req. Transport failures are reported through the returned
// Response, never as a separate error.
func (c *Client) Do(ctx context.Context, req *Request) *Response {
	requestID := req.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
		req.Header.Set("X-Request-Id", requestID)
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return c.failed(req, requestID, fmt.Errorf("failed to build request: %w", err))
	}
	httpReq.Header = req.Header.Clone()
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	c.logger.Debug("calling endpoint", "method", req.Method, "url", req.URL, "request_id", requestID)
	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return c.failed(req, requestID, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return c.failed(req, requestID, fmt.Errorf("failed to read response: %w", err))
	}

	resp := &Response{
		Request:    req,
		StatusCode: httpResp.StatusCode,
		Reason:     reason(httpResp),
		Header:     httpResp.Header,
		RequestID:  requestID,
		Elapsed:    time.Since(start),
	}
	resp.setBody(data)
	c.logger.Debug("endpoint returned", "url", req.URL, "status", resp.StatusCode, "bytes", len(data), "elapsed", resp.Elapsed)
	return resp
}

func (c *Client) failed(req *Request, requestID string, err error) *Response {
	c.logger.Error("call failed", "method", req.Method, "url", req.URL, "err", err)
	resp := Failed(req, err)
	resp.RequestID = requestID
	return resp
}

func reason(r *http.Response) string {
	if s := strings.TrimPrefix(r.Status, strconv.Itoa(r.StatusCode)+" "); s != "" && s != r.Status {
		return s
	}
	return http.StatusText(r.StatusCode)
}
