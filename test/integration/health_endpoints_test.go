package integration

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestHealthEndpoints(t *testing.T) {
	s, closeFn := newCaptureTestServer(t)
	defer closeFn()

	cases := []struct {
		path       string
		wantStatus string
		wantChecks int
	}{
		{path: "/health/live", wantStatus: "ok", wantChecks: -1},
		{path: "/health/ready", wantStatus: "ready", wantChecks: 1},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			resp, env := doJSON(t, s.client, http.MethodGet, s.baseURL+tc.path, nil, nil)
			if resp.StatusCode != http.StatusOK || !env.Success {
				t.Fatalf("status=%d success=%v", resp.StatusCode, env.Success)
			}
			if resp.Header.Get("X-Request-Id") == "" {
				t.Fatal("expected a request id on every response")
			}
			var data struct {
				Status string            `json:"status"`
				Checks []json.RawMessage `json:"checks"`
			}
			if err := json.Unmarshal(env.Data, &data); err != nil {
				t.Fatalf("decode data: %v", err)
			}
			if data.Status != tc.wantStatus {
				t.Fatalf("status=%q want %q", data.Status, tc.wantStatus)
			}
			if tc.wantChecks >= 0 && len(data.Checks) != tc.wantChecks {
				t.Fatalf("expected %d checks without redis, got %d", tc.wantChecks, len(data.Checks))
			}
		})
	}
}
