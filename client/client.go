package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shibukawa/snapodata"
	"github.com/shibukawa/snapodata/edm"
	"github.com/shibukawa/snapodata/expr"
	"github.com/shibukawa/snapodata/translate"
)

// Feed is a collection response. Entries are handed back undecoded.
type Feed struct {
	Context  string
	Count    *int64
	NextLink string
	Entries  []json.RawMessage
}

type feedEnvelope struct {
	Context  string            `json:"@odata.context"`
	Count    *int64            `json:"@odata.count"`
	NextLink string            `json:"@odata.nextLink"`
	Value    []json.RawMessage `json:"value"`
}

// Client executes query expressions against one OData service.
type Client struct {
	cfg        *snapodata.Config
	model      edm.Model
	transport  Transport
	translator *translate.Translator
}

// New creates a client. A nil cfg uses the defaults, which still need a
// base URL. A nil transport uses an HTTPTransport built from cfg.
func New(cfg *snapodata.Config, model edm.Model, transport Transport) (*Client, error) {
	if cfg == nil {
		cfg = snapodata.DefaultConfig()
	}

	if cfg.Service.BaseURL == "" {
		return nil, fmt.Errorf("%w: service.base_url is required", snapodata.ErrConfigValidation)
	}

	if transport == nil {
		t, err := NewHTTPTransport(cfg.Service)
		if err != nil {
			return nil, err
		}

		transport = t
	}

	return &Client{
		cfg:        cfg,
		model:      model,
		transport:  transport,
		translator: translate.NewTranslator(strings.TrimSuffix(cfg.Service.BaseURL, "/"), model),
	}, nil
}

// Translate converts a query expression without sending it. The result is
// also checked against the configured maximum protocol version.
func (c *Client) Translate(node expr.Node) (*translate.QueryComponents, error) {
	qc, err := c.translator.Translate(node)
	if err != nil {
		return nil, err
	}

	if limit := c.cfg.ProtocolVersion(); !limit.AtLeast(qc.Version) {
		return nil, fmt.Errorf("%w: %s needs %s, configured maximum is %s", snapodata.ErrProtocolVersion, qc.URI, qc.Version, limit)
	}

	return qc, nil
}

// Execute runs a query that produces a sequence.
func (c *Client) Execute(ctx context.Context, node expr.Node) (*Feed, error) {
	qc, err := c.Translate(node)
	if err != nil {
		return nil, err
	}

	if qc.Terminal != translate.TerminalNone || qc.ResultType.Kind != expr.KindSequence {
		return nil, fmt.Errorf("%w: result is %s", ErrNotASequence, qc.ResultType)
	}

	_, body, err := c.get(ctx, qc)
	if err != nil {
		if c.ignoreNotFound(err) {
			return &Feed{}, nil
		}

		return nil, err
	}

	return parseFeed(body)
}

// ExecuteSingle runs a First/Single query, or fetches a singleton. The
// OrDefault forms return nil for an empty result.
func (c *Client) ExecuteSingle(ctx context.Context, node expr.Node) (json.RawMessage, error) {
	qc, err := c.Translate(node)
	if err != nil {
		return nil, err
	}

	singleton := qc.Terminal == translate.TerminalNone && qc.ResultType.Kind != expr.KindSequence
	if !singleton && !qc.Terminal.IsSingle() {
		return nil, fmt.Errorf("%w: %s does not produce a single entity", snapodata.ErrUnsupportedQueryShape, qc.Terminal)
	}

	_, body, err := c.get(ctx, qc)
	if err != nil {
		if c.ignoreNotFound(err) {
			return nil, nil
		}

		return nil, err
	}

	if singleton {
		return json.RawMessage(body), nil
	}

	feed, err := parseFeed(body)
	if err != nil {
		return nil, err
	}

	switch {
	case len(feed.Entries) == 0:
		if qc.Terminal.OrDefault() {
			return nil, nil
		}

		return nil, ErrNoElements
	case len(feed.Entries) > 1 && (qc.Terminal == translate.TerminalSingle || qc.Terminal == translate.TerminalSingleOrDefault):
		return nil, ErrMoreThanOneElement
	}

	return feed.Entries[0], nil
}

// ExecuteScalar runs a Count, LongCount or aggregate query and converts
// the response to the static result type: int32, int64, float32, float64
// or decimal.Decimal, or a pointer to one of these for nullable results.
func (c *Client) ExecuteScalar(ctx context.Context, node expr.Node) (any, error) {
	qc, err := c.Translate(node)
	if err != nil {
		return nil, err
	}

	if !qc.Terminal.IsScalar() {
		return nil, fmt.Errorf("%w: %s does not produce a scalar", snapodata.ErrUnsupportedQueryShape, qc.Terminal)
	}

	resp, body, err := c.get(ctx, qc)
	if err != nil {
		return nil, err
	}

	var raw []byte

	if qc.Terminal == translate.TerminalAggregate {
		value, _, err := ParseAggregateEnvelope(body, qc.Alias)
		if err != nil {
			return nil, &ScalarConversionError{Response: resp, Body: body, Target: qc.ResultType, Reason: err.Error()}
		}

		raw = value
	} else {
		raw = []byte(ParseCountBody(body))
	}

	value, err := convertScalar(raw, qc.ResultType)
	if err != nil {
		return nil, &ScalarConversionError{Response: resp, Body: body, Target: qc.ResultType, Reason: err.Error()}
	}

	return value, nil
}

// ScalarAs runs ExecuteScalar and asserts the result type.
func ScalarAs[T any](ctx context.Context, c *Client, node expr.Node) (T, error) {
	var zero T

	value, err := c.ExecuteScalar(ctx, node)
	if err != nil {
		return zero, err
	}

	v, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("%w: result is %T, not %T", snapodata.ErrScalarConversion, value, zero)
	}

	return v, nil
}

func (c *Client) ignoreNotFound(err error) bool {
	return c.cfg.Service.IgnoreResourceNotFound && errors.Is(err, snapodata.ErrResourceNotFound)
}

func (c *Client) get(ctx context.Context, qc *translate.QueryComponents) (*Response, []byte, error) {
	return c.send(ctx, &Request{Method: http.MethodGet, URI: qc.URI}, qc.Version)
}

// send performs one exchange and reads the whole body. Non-2xx statuses
// become a StatusError.
func (c *Client) send(ctx context.Context, req *Request, version snapodata.ProtocolVersion) (*Response, []byte, error) {
	logger := requestLoggerFromContext(ctx, req, version)
	defer logger.Write(ctx)

	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		logger.SetErr(err)
		return nil, nil, err
	}
	defer resp.Body.Close()

	logger.SetStatus(resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("%w: failed to read response body: %w", ErrRequestFailed, err)
		logger.SetErr(err)

		return nil, nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := &StatusError{
			Method:     req.Method,
			URI:        req.URI,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       body,
		}
		logger.SetErr(err)

		return nil, nil, err
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))

	return resp, body, nil
}

func parseFeed(body []byte) (*Feed, error) {
	var envelope feedEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("invalid collection response: %w", err)
	}

	return &Feed{
		Context:  envelope.Context,
		Count:    envelope.Count,
		NextLink: envelope.NextLink,
		Entries:  envelope.Value,
	}, nil
}
