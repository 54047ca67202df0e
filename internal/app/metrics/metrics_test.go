package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHandlerServesMetrics(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected non-empty metrics body")
	}
}

func TestInstrumentHandlerRecordsRequest(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodPost, "/users/123/rules", nil)
	rec := httptest.NewRecorder()

	InstrumentHandler(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
}

func TestInstrumentHandlerPassesThroughMetricsPath(t *testing.T) {
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	InstrumentHandler(inner).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected /metrics requests to pass through to the wrapped handler")
	}
}

func TestSchedulerHooksObserveTickAndLag(t *testing.T) {
	hooks := NewSchedulerHooks()
	hooks.ObserveTick(3, 1)
	hooks.ObserveLag(2 * time.Second)
	hooks.ObserveLag(-time.Second) // negative lag clamps to zero, must not panic
}

func TestRecordProviderRequest(t *testing.T) {
	RecordProviderRequest("discogs", 50*time.Millisecond, true)
	RecordProviderRequest("ebay", 120*time.Millisecond, false)
}

func TestRecordNotificationDelivery(t *testing.T) {
	RecordNotificationDelivery("email", true)
	RecordNotificationDelivery("realtime", false)
}

func TestRecordImportJob(t *testing.T) {
	RecordImportJob(2*time.Second, true)
	RecordImportJob(time.Second, false)
}

func TestObservationHooksLifecycle(t *testing.T) {
	hooks := ObservationHooks("vinylwatch_test", "observe", "ops")

	ctx := context.Background()
	meta := map[string]string{"rule_id": "rule-1"}

	hooks.OnStart(ctx, meta)
	hooks.OnComplete(ctx, meta, nil, 10*time.Millisecond)
	hooks.OnComplete(ctx, meta, context.Canceled, 5*time.Millisecond)
}

func TestObservationHooksReuseCollector(t *testing.T) {
	first := ObservationHooks("vinylwatch_test", "reuse", "ops")
	second := ObservationHooks("vinylwatch_test", "reuse", "ops")

	ctx := context.Background()
	first.OnStart(ctx, nil)
	second.OnComplete(ctx, nil, nil, time.Millisecond)
}

func TestMetaLabel(t *testing.T) {
	cases := []struct {
		name string
		meta map[string]string
		want string
	}{
		{name: "nil meta", meta: nil, want: "unknown"},
		{name: "rule id", meta: map[string]string{"rule_id": "r1"}, want: "r1"},
		{name: "listing id", meta: map[string]string{"listing_id": "l1"}, want: "l1"},
		{name: "job id", meta: map[string]string{"job_id": "j1"}, want: "j1"},
		{name: "notification id", meta: map[string]string{"notification_id": "n1"}, want: "n1"},
		{name: "no known keys", meta: map[string]string{"other": "x"}, want: "unknown"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := metaLabel(tc.meta); got != tc.want {
				t.Fatalf("metaLabel() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSpecificHookFactories(t *testing.T) {
	ctx := context.Background()

	importHooks := ImportJobHooks()
	importHooks.OnStart(ctx, map[string]string{"job_id": "job-1"})
	importHooks.OnComplete(ctx, map[string]string{"job_id": "job-1"}, nil, time.Millisecond)

	deliveryHooks := NotificationDeliveryHooks()
	deliveryHooks.OnStart(ctx, map[string]string{"notification_id": "notif-1"})
	deliveryHooks.OnComplete(ctx, map[string]string{"notification_id": "notif-1"}, nil, time.Millisecond)

	providerHooks := ProviderRequestHooks()
	providerHooks.OnStart(ctx, map[string]string{"rule_id": "rule-1"})
	providerHooks.OnComplete(ctx, map[string]string{"rule_id": "rule-1"}, nil, time.Millisecond)
}

func TestDispatcherHooksAlias(t *testing.T) {
	hooks := DispatcherHooks("vinylwatch_test", "dispatch", "ops")

	ctx := context.Background()
	hooks.OnStart(ctx, map[string]string{"job_id": "job-2"})
	hooks.OnComplete(ctx, map[string]string{"job_id": "job-2"}, nil, time.Millisecond)
}

func TestStatusRecorderDefaultsToOKWhenWriteWithoutHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}

	if _, err := sr.Write([]byte("body")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if sr.status != http.StatusOK {
		t.Fatalf("expected default status 200, got %d", sr.status)
	}
}

func TestStatusRecorderCapturesWriteHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}

	sr.WriteHeader(http.StatusNotFound)

	if sr.status != http.StatusNotFound {
		t.Fatalf("expected captured status 404, got %d", sr.status)
	}
}

func TestCanonicalPath(t *testing.T) {
	cases := []struct {
		name string
		path string
		want string
	}{
		{name: "root", path: "/", want: "/"},
		{name: "empty", path: "", want: "/"},
		{name: "single segment", path: "/healthz", want: "/healthz"},
		{name: "users collection", path: "/users", want: "/users"},
		{name: "single user", path: "/users/123", want: "/users/:user"},
		{name: "user sub-resource", path: "/users/123/rules", want: "/users/rules"},
		{name: "trailing slash", path: "/metrics/", want: "/metrics"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := canonicalPath(tc.path); got != tc.want {
				t.Fatalf("canonicalPath(%q) = %q, want %q", tc.path, got, tc.want)
			}
		})
	}
}
