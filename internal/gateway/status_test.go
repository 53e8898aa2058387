package gateway

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/mpdagents/mpdchat/internal/provider/providertest"
)

func TestStatus(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, providertest.Reply("ok"), Config{})
	srv := serve(t, g)

	for _, thread := range []string{"a", "b"} {
		if resp, body := do(t, http.MethodPost, srv.URL+"/chat", `{"message":"hi","thread_id":"`+thread+`"}`); resp.StatusCode != http.StatusOK {
			t.Fatalf("/chat = %d %s", resp.StatusCode, body)
		}
	}

	resp, body := do(t, http.MethodGet, srv.URL+"/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got StatusResponse
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatal(err)
	}
	if got.Threads != 2 {
		t.Errorf("Threads = %d, want 2", got.Threads)
	}
	if got.DefaultPersona != "intelligent" {
		t.Errorf("DefaultPersona = %q", got.DefaultPersona)
	}
	if got.Metrics.Turns != 2 || got.Metrics.Errors != 0 {
		t.Errorf("Metrics = %+v", got.Metrics)
	}
	if len(got.Providers) != 1 {
		t.Errorf("Providers = %+v", got.Providers)
	}
}
