package batch

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// HTTPVersion is the only version token accepted on request and status lines.
const HTTPVersion = "HTTP/1.1"

var knownMethods = map[string]bool{
	"GET":     true,
	"POST":    true,
	"PUT":     true,
	"PATCH":   true,
	"MERGE":   true,
	"DELETE":  true,
	"HEAD":    true,
	"OPTIONS": true,
}

// queryMethods may not appear inside a changeset.
var queryMethods = map[string]bool{
	"GET":     true,
	"HEAD":    true,
	"OPTIONS": true,
}

// Request is one request part of a batch.
type Request struct {
	Method    string
	URI       string
	Version   string
	Header    Header
	ContentID string
	// Body is valid until the next Reader.Read.
	Body io.Reader
}

// Response is one response part of a batch.
type Response struct {
	Version    string
	StatusCode int
	Reason     string
	Header     Header
	ContentID  string
	// Body is valid until the next Reader.Read.
	Body io.Reader
}

// Part is the current part of a Reader. Header holds the MIME headers of
// the part; exactly one of Request and Response is set.
type Part struct {
	Header   Header
	Request  *Request
	Response *Response
}

// parseRequestLine splits "METHOD URI HTTP/1.1" at its first and last
// space, so the URI may contain spaces.
func parseRequestLine(line string) (method, uri, version string, err error) {
	first := strings.IndexByte(line, ' ')
	last := strings.LastIndexByte(line, ' ')

	if first <= 0 || last == first {
		return "", "", "", fmt.Errorf("request line %q must be METHOD URI VERSION", line)
	}

	method = line[:first]
	uri = line[first+1 : last]
	version = line[last+1:]

	if uri == "" {
		return "", "", "", fmt.Errorf("request line %q has no URI", line)
	}

	if version != HTTPVersion {
		return "", "", "", fmt.Errorf("unsupported HTTP version %q", version)
	}

	if !knownMethods[method] {
		return "", "", "", fmt.Errorf("unknown HTTP method %q", method)
	}

	return method, uri, version, nil
}

// parseStatusLine splits "HTTP/1.1 200 OK". The reason may contain spaces
// and may be empty.
func parseStatusLine(line string) (version string, status int, reason string, err error) {
	first := strings.IndexByte(line, ' ')
	if first <= 0 {
		return "", 0, "", fmt.Errorf("status line %q must be VERSION STATUS REASON", line)
	}

	version = line[:first]
	if version != HTTPVersion {
		return "", 0, "", fmt.Errorf("unsupported HTTP version %q", version)
	}

	rest := line[first+1:]

	code := rest
	if i := strings.IndexByte(rest, ' '); i >= 0 {
		code = rest[:i]
		reason = rest[i+1:]
	}

	status, err = strconv.Atoi(code)
	if err != nil || status < 100 || status > 999 {
		return "", 0, "", fmt.Errorf("invalid status code %q", code)
	}

	return version, status, reason, nil
}

// parseHeaderLine splits "Name: value". The value has surrounding
// whitespace removed.
func parseHeaderLine(line string) (string, string, error) {
	i := strings.IndexByte(line, ':')
	if i <= 0 {
		return "", "", fmt.Errorf("header line %q has no name", line)
	}

	name := line[:i]
	if strings.ContainsAny(name, " \t") {
		return "", "", fmt.Errorf("header name %q contains whitespace", name)
	}

	return name, strings.TrimSpace(line[i+1:]), nil
}

func isContinuation(line string) bool {
	return line != "" && (line[0] == ' ' || line[0] == '\t')
}
