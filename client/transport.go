package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shibukawa/snapodata"
)

// Request is one HTTP exchange handed to a Transport.
type Request struct {
	Method string
	URI    string
	Header http.Header
	Body   io.Reader
}

// Response is what a Transport returns. The caller closes Body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Transport sends requests to the service.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// HTTPTransport is a Transport on net/http. It adds the OData version
// headers and the configured extra headers to every request.
type HTTPTransport struct {
	client     *http.Client
	headers    map[string]string
	maxVersion snapodata.ProtocolVersion
}

// NewHTTPTransport creates a transport from the service configuration.
func NewHTTPTransport(cfg snapodata.ServiceConfig) (*HTTPTransport, error) {
	maxVersion := snapodata.LatestVersion

	if cfg.MaxProtocolVersion != "" {
		v, err := snapodata.ParseProtocolVersion(cfg.MaxProtocolVersion)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", snapodata.ErrConfigValidation, err)
		}

		maxVersion = v
	}

	return &HTTPTransport{
		client:     &http.Client{Timeout: cfg.Timeout},
		headers:    cfg.Headers,
		maxVersion: maxVersion,
	}, nil
}

func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URI, req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.URL.RawQuery = escapeQuery(httpReq.URL.RawQuery)

	httpReq.Header.Set("OData-MaxVersion", t.maxVersion.String())
	httpReq.Header.Set("OData-Version", snapodata.Version40.String())
	httpReq.Header.Set("Accept", "application/json")

	for name, value := range t.headers {
		httpReq.Header.Set(name, value)
	}

	for name, values := range req.Header {
		httpReq.Header[name] = values
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}, nil
}

// escapeQuery percent-encodes the bytes of a query string that may not
// appear in a request line, such as the spaces between filter operands.
// Option syntax such as $, =, & and parentheses is left as written. String
// literals arrive already encoded by the translator, so a %XX sequence is
// kept and only a bare % is encoded.
func escapeQuery(q string) string {
	var b strings.Builder

	for i := 0; i < len(q); i++ {
		c := q[i]

		switch {
		case c == '%' && i+2 < len(q) && isHex(q[i+1]) && isHex(q[i+2]):
			b.WriteByte(c)
		case c <= ' ' || c >= 0x7f || strings.IndexByte("%\"<>\\^`{|}", c) >= 0:
			fmt.Fprintf(&b, "%%%02X", c)
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}
