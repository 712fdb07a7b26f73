package obs

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"extensao.org/internal/ids"
)

func TestCanonicalPath(t *testing.T) {
	id := ids.New()
	cases := map[string]string{
		"":                                  "/",
		"/metrics":                          "/metrics",
		"/v1/activities/" + id:              "/v1/activities/:id",
		"/v1/proofs/" + id + "/status":      "/v1/proofs/:id/status",
		"/v1/activities/not-an-id":          "/v1/activities/not-an-id",
		"/v1/audit?limit=10":                "/v1/audit",
		"/v1/users/" + id + "/password/":    "/v1/users/:id/password",
		"/v1/enrollments?student_id=" + id:  "/v1/enrollments",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInstrumentPassesStatusThrough(t *testing.T) {
	Init()
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/info", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rr.Code)
	}
}

func TestInitBuildInfoKeepsOneSeries(t *testing.T) {
	InitBuildInfo("1.0.0", "abc")
	InitBuildInfo("1.0.1", "def")
	if n := testutil.CollectAndCount(buildInfo); n != 1 {
		t.Fatalf("expected one build_info series, got %d", n)
	}
	if v := testutil.ToFloat64(buildInfo.WithLabelValues("1.0.1", "def", runtime.Version())); v != 1 {
		t.Fatalf("expected build_info=1, got %v", v)
	}
}
