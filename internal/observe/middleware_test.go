package observe

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

const remoteTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"

func controlMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/session", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /v1/session/start", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no topic", http.StatusUnprocessableEntity)
	})
	return mux
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		path        string
		traceparent string
		wantStatus  int
		wantRoute   string
	}{
		{"matched route", "GET", "/v1/session", "", http.StatusOK, "GET /v1/session"},
		{"handler error", "POST", "/v1/session/start", "", http.StatusUnprocessableEntity, "POST /v1/session/start"},
		{"unknown path", "GET", "/v1/nope/123", "", http.StatusNotFound, "unmatched"},
		{"remote parent", "GET", "/v1/session", "00-" + remoteTraceID + "-00f067aa0ba902b7-01", http.StatusOK, "GET /v1/session"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := recordSpans(t)
			sink := newMeterSink(t)

			var seen string
			inner := controlMux()
			h := Middleware(sink.m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = CorrelationID(r.Context())
				inner.ServeHTTP(w, r)
			}))

			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.traceparent != "" {
				req.Header.Set("traceparent", tt.traceparent)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if len(seen) != 32 {
				t.Fatalf("handler saw correlation id %q", seen)
			}
			if tt.traceparent != "" && seen != remoteTraceID {
				t.Errorf("correlation id = %q, want remote trace %q", seen, remoteTraceID)
			}
			if got := rec.Header().Get(CorrelationHeader); got != seen {
				t.Errorf("%s = %q, want %q", CorrelationHeader, got, seen)
			}
			if rec.Header().Get("traceparent") == "" {
				t.Error("response carries no traceparent")
			}

			spans := exp.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("recorded %d spans, want 1", len(spans))
			}
			if spans[0].Name != tt.wantRoute {
				t.Errorf("span name = %q, want %q", spans[0].Name, tt.wantRoute)
			}
			if code := spanAttr(spans[0], "http.response.status_code"); code != strconv.Itoa(tt.wantStatus) {
				t.Errorf("span status_code = %q, want %d", code, tt.wantStatus)
			}

			dps := sink.histogram("matrixvoice.http.request.duration")
			if len(dps) != 1 || dps[0].Count != 1 {
				t.Fatalf("data points = %+v", dps)
			}
			attrs := dps[0].Attributes
			if v, _ := attrs.Value(attribute.Key("path")); v.AsString() != tt.wantRoute {
				t.Errorf("path label = %q, want %q", v.AsString(), tt.wantRoute)
			}
			if v, _ := attrs.Value(attribute.Key("status")); v.AsInt64() != int64(tt.wantStatus) {
				t.Errorf("status label = %d, want %d", v.AsInt64(), tt.wantStatus)
			}
		})
	}
}
