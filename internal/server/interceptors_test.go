package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// stubHandler is a no-op gRPC handler used in interceptor tests.
func stubHandler(_ context.Context, _ any) (any, error) {
	return "ok", nil
}

const renderMethod = expressionServiceName + "/Render"

func TestAuthInterceptor(t *testing.T) {
	for _, tc := range []struct {
		name   string
		token  string
		method string
		md     metadata.MD
		code   codes.Code
	}{
		{"Disabled", "", renderMethod, nil, codes.OK},
		{"HealthExempt", "secret", expressionServiceName + "/Health", nil, codes.OK},
		{"GRPCHealthExempt", "secret", "/grpc.health.v1.Health/Check", nil, codes.OK},
		{"MissingMetadata", "secret", renderMethod, nil, codes.Unauthenticated},
		{"MissingAuthHeader", "secret", renderMethod, metadata.Pairs("other", "value"), codes.Unauthenticated},
		{"WrongToken", "secret", renderMethod, metadata.Pairs("authorization", "Bearer wrong"), codes.Unauthenticated},
		{"InvalidScheme", "secret", renderMethod, metadata.Pairs("authorization", "Basic secret"), codes.Unauthenticated},
		{"CorrectToken", "secret", renderMethod, metadata.Pairs("authorization", "Bearer secret"), codes.OK},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			if tc.md != nil {
				ctx = metadata.NewIncomingContext(ctx, tc.md)
			}
			resp, err := AuthInterceptor(tc.token)(ctx, nil, &grpc.UnaryServerInfo{FullMethod: tc.method}, stubHandler)
			if got := status.Code(err); got != tc.code {
				t.Fatalf("expected code=%v, got %v (err=%v)", tc.code, got, err)
			}
			if tc.code == codes.OK && resp != "ok" {
				t.Fatalf("expected 'ok', got %v", resp)
			}
		})
	}
}

func TestRecoveryInterceptor(t *testing.T) {
	panicking := func(context.Context, any) (any, error) { panic("boom") }
	_, err := RecoveryInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: renderMethod}, panicking)
	requireCode(t, err, codes.Internal)
}

func TestLoggingInterceptor_PassesThrough(t *testing.T) {
	failing := func(context.Context, any) (any, error) { return nil, status.Error(codes.NotFound, "nope") }
	_, err := LoggingInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: renderMethod}, failing)
	requireCode(t, err, codes.NotFound)

	resp, err := LoggingInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: renderMethod}, stubHandler)
	if err != nil || resp != "ok" {
		t.Fatalf("expected ok, got %v, %v", resp, err)
	}
}

func TestAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	for _, tc := range []struct {
		name   string
		token  string
		method string
		path   string
		header string
		code   int
	}{
		{"NoHeader", "secret", "GET", "/v1/drafts", "", 401},
		{"WrongToken", "secret", "GET", "/v1/drafts", "Bearer wrong", 401},
		{"InvalidScheme", "secret", "GET", "/v1/drafts", "Basic secret", 401},
		{"CorrectToken", "secret", "GET", "/v1/drafts", "Bearer secret", 200},
		{"HealthExempt", "secret", "GET", "/v1/health", "", 200},
		{"HealthPostNotExempt", "secret", "POST", "/v1/health", "", 401},
		{"Disabled", "", "GET", "/v1/drafts", "", 200},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			AuthMiddleware(tc.token, ok).ServeHTTP(rec, req)
			requireStatus(t, rec, tc.code)
		})
	}
}

func TestLoggingMiddleware_RecordsStatusAndFlushes(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Error("expected wrapped writer to implement http.Flusher")
		}
		writeError(w, http.StatusTeapot, "short and stout")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/anything", nil))
	requireStatus(t, rec, http.StatusTeapot)
	if !strings.Contains(rec.Body.String(), "short and stout") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}
