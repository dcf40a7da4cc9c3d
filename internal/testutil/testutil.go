// Package testutil holds helpers shared by the HTTP-facing package tests.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// LoopbackRequest builds a request that appears to come from localhost, so
// tsweb.AllowDebugAccess lets it through to /debug/ routes.
func LoopbackRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// Serve runs req against h and returns the recorded response.
func Serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		body, _ := io.ReadAll(io.LimitReader(w.Body, 512))
		t.Errorf("status code = %d, want %d (body %q)", w.Code, want, body)
	}
}
