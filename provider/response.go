package provider

import (
	"context"
	"mime"
	"net/http"
	"strings"
	"sync/atomic"
)

type responseStatusKey struct{}

// trackResponse returns a context in which observeResponse records the HTTP
// status of the request made with it.
func trackResponse(ctx context.Context) context.Context {
	return context.WithValue(ctx, responseStatusKey{}, new(atomic.Int32))
}

func recordStatus(ctx context.Context, code int) {
	if status, ok := ctx.Value(responseStatusKey{}).(*atomic.Int32); ok {
		status.Store(int32(code))
	}
}

// receivedOK reports whether a 2xx response arrived for a tracked context.
func receivedOK(ctx context.Context) bool {
	status, ok := ctx.Value(responseStatusKey{}).(*atomic.Int32)
	if !ok {
		return false
	}
	code := status.Load()
	return code >= 200 && code < 300
}

// observeResponse is SDK client middleware. It records the response status
// for classify and labels successful bodies without a JSON or event-stream
// content type as JSON, since compatible servers and proxies often omit or
// misreport it and the SDKs refuse to decode anything else.
func observeResponse(req *http.Request, next func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	resp, err := next(req)
	if err != nil || resp == nil {
		return resp, err
	}
	recordStatus(req.Context(), resp.StatusCode)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && !decodable(resp.Header.Get("Content-Type")) {
		resp.Header.Set("Content-Type", "application/json")
	}
	return resp, nil
}

func decodable(contentType string) bool {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	return mediaType == "application/json" ||
		strings.HasSuffix(mediaType, "+json") ||
		mediaType == "text/event-stream"
}
