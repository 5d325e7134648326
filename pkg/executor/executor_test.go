package executor

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"machinaos/proxyrouter/internal/testutil"
	"machinaos/proxyrouter/pkg/limits/budget"
	"machinaos/proxyrouter/pkg/providers"
	"machinaos/proxyrouter/pkg/proxy"
	"machinaos/proxyrouter/pkg/routing"
	"machinaos/proxyrouter/pkg/transport"
	"machinaos/proxyrouter/pkg/usage"
)

type testEnv struct {
	exec   *Executor
	svc    *proxy.Service
	client *testutil.ScriptedClient
	ledger *usage.MemoryLedger
}

func newEnv(t *testing.T, provs []providers.Config, rules []routing.Rule, opts testutil.ServiceOptions) *testEnv {
	t.Helper()
	svc, _ := testutil.NewService(t, provs, rules, opts)
	client := testutil.NewScriptedClient()
	ledger := usage.NewMemoryLedger()

	exec, err := New(Options{
		Router:         svc,
		Client:         client,
		Usage:          ledger,
		DefaultTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEnv{exec: exec, svc: svc, client: client, ledger: ledger}
}

func (e *testEnv) records(t *testing.T) []usage.Record {
	t.Helper()
	recs, err := e.ledger.Query(context.Background(), usage.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	return recs
}

func ok(body string) testutil.Step {
	return testutil.Step{Status: http.StatusOK, Body: []byte(body)}
}

func TestExecute_FailoverToCheaperProvider(t *testing.T) {
	env := newEnv(t,
		[]providers.Config{testutil.Provider("p1", 1, 5), testutil.Provider("p2", 2, 2)},
		[]routing.Rule{testutil.CatchAll(1, true)},
		testutil.ServiceOptions{},
	)
	env.client.
		On(testutil.Gateway("p1"), testutil.Step{Status: http.StatusServiceUnavailable}).
		On(testutil.Gateway("p2"), testutil.Step{Status: http.StatusOK, Body: []byte(`{"ok":true}`), Bytes: 1048576})

	res := env.exec.Execute(context.Background(), Request{
		URL:       "https://example.com/profile",
		SessionID: "s1",
		NodeID:    "n1",
	})

	if !res.Success {
		t.Fatalf("Success = false, error = %q", res.Error)
	}
	if res.Attempt != 2 || res.Provider != "p2" || res.Status != http.StatusOK {
		t.Errorf("Attempt = %d, Provider = %q, Status = %d", res.Attempt, res.Provider, res.Status)
	}
	if res.Cost != 0.00195313 || res.Bytes != 1048576 {
		t.Errorf("Cost = %v, Bytes = %d", res.Cost, res.Bytes)
	}
	if data, ok := res.Data.(map[string]any); !ok || data["ok"] != true {
		t.Errorf("Data = %#v, want decoded JSON", res.Data)
	}

	if got := env.client.Gateways(); len(got) != 2 || got[0] != testutil.Gateway("p1") || got[1] != testutil.Gateway("p2") {
		t.Errorf("gateways = %v", got)
	}

	stats := env.svc.GetStats()
	if stats["p1"].TotalRequests != 1 || stats["p1"].SuccessRate >= 1 {
		t.Errorf("p1 stats = %+v, want one failure", stats["p1"])
	}
	if stats["p2"].TotalRequests != 1 || stats["p2"].TotalBytes != 1048576 {
		t.Errorf("p2 stats = %+v", stats["p2"])
	}

	// The 503 carried no bytes, so only the p2 attempt is billed.
	recs := env.records(t)
	if len(recs) != 1 {
		t.Fatalf("usage records = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.Provider != "p2" || rec.Cost != 0.00195313 || rec.SessionID != "s1" || rec.NodeID != "n1" || rec.Attempt != 2 || !rec.Success {
		t.Errorf("record = %+v", rec)
	}
	if rec.TargetHost != "example.com" {
		t.Errorf("TargetHost = %q", rec.TargetHost)
	}
}

func TestExecute_FailoverExhaustion(t *testing.T) {
	env := newEnv(t,
		[]providers.Config{testutil.Provider("p1", 1, 5)},
		[]routing.Rule{testutil.CatchAll(2, true)},
		testutil.ServiceOptions{},
	)
	env.client.On(testutil.Gateway("p1"), testutil.Step{Status: http.StatusBadGateway, Body: []byte("bad gateway")})

	res := env.exec.Execute(context.Background(), Request{URL: "https://example.com"})

	if res.Success {
		t.Fatal("Success = true")
	}
	if res.Attempt != 3 || len(env.client.Calls()) != 3 {
		t.Errorf("Attempt = %d, calls = %d, want 3", res.Attempt, len(env.client.Calls()))
	}
	if !strings.HasPrefix(res.Error, "All 3 attempts failed. Last error: ") || !strings.Contains(res.Error, "502") {
		t.Errorf("Error = %q", res.Error)
	}
	if res.Data != "bad gateway" {
		t.Errorf("Data = %#v, want raw body", res.Data)
	}

	// Failures that transferred bytes are still billed.
	recs := env.records(t)
	if len(recs) != 3 {
		t.Fatalf("usage records = %d, want 3", len(recs))
	}
	var sum float64
	for _, r := range recs {
		if r.Success {
			t.Errorf("record %+v marked successful", r)
		}
		sum += r.Cost
	}
	if res.Bytes != 3*int64(len("bad gateway")) || res.Cost != sum {
		t.Errorf("Bytes = %d, Cost = %v, want totals %v", res.Bytes, res.Cost, sum)
	}
}

func TestExecute_RetryPolicy(t *testing.T) {
	zero := 0
	three := 3

	tests := []struct {
		name      string
		rule      routing.Rule
		override  *int
		wantCalls int
	}{
		{name: "rule retries", rule: testutil.CatchAll(1, true), wantCalls: 2},
		{name: "override disables retries", rule: testutil.CatchAll(4, true), override: &zero, wantCalls: 1},
		{name: "override adds retries", rule: testutil.CatchAll(0, true), override: &three, wantCalls: 4},
		{name: "failover disabled", rule: testutil.CatchAll(3, false), wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t, []providers.Config{testutil.Provider("p1", 1, 5)}, []routing.Rule{tt.rule}, testutil.ServiceOptions{})
			env.client.On(testutil.Gateway("p1"), testutil.Step{Kind: transport.KindConnect})

			res := env.exec.Execute(context.Background(), Request{URL: "https://example.com", MaxRetriesOverride: tt.override})
			if res.Success {
				t.Fatal("Success = true")
			}
			if got := len(env.client.Calls()); got != tt.wantCalls || res.Attempt != tt.wantCalls {
				t.Errorf("calls = %d, Attempt = %d, want %d", got, res.Attempt, tt.wantCalls)
			}
		})
	}
}

func TestExecute_NetworkErrorFailover(t *testing.T) {
	env := newEnv(t,
		[]providers.Config{testutil.Provider("p1", 1, 5), testutil.Provider("p2", 2, 2)},
		[]routing.Rule{testutil.CatchAll(2, true)},
		testutil.ServiceOptions{},
	)
	env.client.
		On(testutil.Gateway("p1"), testutil.Step{Kind: transport.KindConnect}).
		On(testutil.Gateway("p2"), ok("done"))

	res := env.exec.Execute(context.Background(), Request{URL: "https://example.com"})
	if !res.Success || res.Attempt != 2 || res.Provider != "p2" {
		t.Errorf("result = %+v", res)
	}
	if res.Data != "done" {
		t.Errorf("Data = %#v", res.Data)
	}
	if s := env.svc.GetStats()["p1"]; s.ConsecutiveFailures != 1 {
		t.Errorf("p1 stats = %+v, want one failure", s)
	}
}

func TestExecute_DisabledService(t *testing.T) {
	disabled := testutil.Provider("p1", 1, 5)
	disabled.Enabled = false
	env := newEnv(t, []providers.Config{disabled}, []routing.Rule{testutil.CatchAll(2, true)}, testutil.ServiceOptions{})

	res := env.exec.Execute(context.Background(), Request{URL: "https://example.com"})

	if res.Success {
		t.Fatal("Success = true")
	}
	if !strings.Contains(res.Error, "no proxy provider available") {
		t.Errorf("Error = %q", res.Error)
	}
	if res.Attempt != 0 || len(env.client.Calls()) != 0 {
		t.Errorf("Attempt = %d, calls = %d, want none", res.Attempt, len(env.client.Calls()))
	}
}

func TestExecute_ConfigErrors(t *testing.T) {
	negative := -1
	env := newEnv(t,
		[]providers.Config{testutil.Provider("p1", 1, 5)},
		[]routing.Rule{{ID: "only", DomainPattern: "*.covered.com", Failover: true, MaxRetries: 3}},
		testutil.ServiceOptions{},
	)
	env.client.On(testutil.Gateway("p1"), ok("x"))

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{name: "missing url", req: Request{}, want: "url is required"},
		{name: "no host", req: Request{URL: "http://"}, want: "has no host"},
		{name: "unsupported scheme", req: Request{URL: "ftp://files.covered.com/x"}, want: "must use http or https"},
		{name: "missing scheme", req: Request{URL: "www.covered.com/x"}, want: "must use http or https"},
		{name: "bad method", req: Request{Method: "TRACE", URL: "https://www.covered.com"}, want: "unsupported HTTP method"},
		{name: "negative retries", req: Request{URL: "https://www.covered.com", MaxRetriesOverride: &negative}, want: "non-negative"},
		{name: "no catch-all", req: Request{URL: "https://other.com"}, want: "no routing rule matches"},
		{name: "unknown override", req: Request{URL: "https://www.covered.com", ProviderOverride: "nope"}, want: "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.exec.Execute(context.Background(), tt.req)
			if res.Success || !strings.Contains(res.Error, tt.want) {
				t.Errorf("result = %+v, want error containing %q", res, tt.want)
			}
			if res.Attempt != 0 {
				t.Errorf("Attempt = %d, want 0", res.Attempt)
			}
		})
	}

	if n := len(env.client.Calls()); n != 0 {
		t.Errorf("client called %d times for invalid requests", n)
	}
}

func TestExecute_InvalidRequestIsFatal(t *testing.T) {
	env := newEnv(t,
		[]providers.Config{testutil.Provider("p1", 1, 5), testutil.Provider("p2", 2, 5)},
		[]routing.Rule{testutil.CatchAll(3, true)},
		testutil.ServiceOptions{},
	)
	env.client.
		On(testutil.Gateway("p1"), testutil.Step{Kind: transport.KindInvalid}).
		On(testutil.Gateway("p2"), ok("x"))

	res := env.exec.Execute(context.Background(), Request{URL: "https://example.com"})
	if res.Success || res.Attempt != 1 || len(env.client.Calls()) != 1 {
		t.Errorf("result = %+v, calls = %d; want one fatal attempt", res, len(env.client.Calls()))
	}
	if s := env.svc.GetStats()["p1"]; s.TotalRequests != 0 {
		t.Errorf("malformed request counted against provider: %+v", s)
	}
}

func TestExecute_Cancellation(t *testing.T) {
	env := newEnv(t,
		[]providers.Config{testutil.Provider("p1", 1, 5), testutil.Provider("p2", 2, 5)},
		[]routing.Rule{testutil.CatchAll(3, true)},
		testutil.ServiceOptions{},
	)
	env.client.
		On(testutil.Gateway("p1"), testutil.Step{Block: true, Bytes: 4096}).
		On(testutil.Gateway("p2"), ok("x"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *Result, 1)
	go func() {
		done <- env.exec.Execute(ctx, Request{URL: "https://example.com", Timeout: 10 * time.Second, SessionID: "s1"})
	}()

	select {
	case <-env.client.Started:
	case <-time.After(5 * time.Second):
		t.Fatal("attempt never started")
	}
	cancel()

	var res *Result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not return after cancellation")
	}

	if res.Success || res.Error != "request cancelled" || res.Attempt != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(env.client.Calls()) != 1 {
		t.Errorf("calls = %d, want no retries", len(env.client.Calls()))
	}
	if s := env.svc.GetStats()["p1"]; s.TotalRequests != 0 {
		t.Errorf("cancelled attempt reported to health: %+v", s)
	}

	recs := env.records(t)
	if len(recs) != 1 || recs[0].BytesTransferred != 4096 || recs[0].Success {
		t.Errorf("usage records = %+v, want the partial transfer", recs)
	}
}

func TestExecute_AttemptTimeout(t *testing.T) {
	env := newEnv(t,
		[]providers.Config{testutil.Provider("p1", 1, 5), testutil.Provider("p2", 2, 5)},
		[]routing.Rule{testutil.CatchAll(1, true)},
		testutil.ServiceOptions{},
	)
	env.client.
		On(testutil.Gateway("p1"), testutil.Step{Block: true}).
		On(testutil.Gateway("p2"), ok("late but fine"))

	res := env.exec.Execute(context.Background(), Request{URL: "https://example.com", Timeout: 20 * time.Millisecond})
	if !res.Success || res.Attempt != 2 || res.Provider != "p2" {
		t.Errorf("result = %+v, want success on p2", res)
	}
	if s := env.svc.GetStats()["p1"]; s.TotalRequests != 1 || s.ConsecutiveFailures != 1 {
		t.Errorf("timed out attempt not reported as failure: %+v", s)
	}
}

func TestExecute_Budget(t *testing.T) {
	tracker := budget.NewTracker(budget.Config{DailyLimit: 0.001})
	env := newEnv(t,
		[]providers.Config{testutil.Provider("p1", 1, 5)},
		[]routing.Rule{testutil.CatchAll(2, true)},
		testutil.ServiceOptions{Budget: tracker},
	)
	// 1 MiB at $5/GiB is $0.00488281, over the $0.001 cap.
	env.client.On(testutil.Gateway("p1"), testutil.Step{Status: http.StatusOK, Body: []byte("x"), Bytes: 1 << 20})

	first := env.exec.Execute(context.Background(), Request{URL: "https://example.com"})
	if !first.Success {
		t.Fatalf("first request failed: %q", first.Error)
	}

	second := env.exec.Execute(context.Background(), Request{URL: "https://example.com"})
	if second.Success || !strings.Contains(second.Error, "budget") {
		t.Errorf("second result = %+v, want budget error", second)
	}
	if len(env.client.Calls()) != 1 {
		t.Errorf("calls = %d, want 1", len(env.client.Calls()))
	}
}

func TestExecute_ResponseShape(t *testing.T) {
	env := newEnv(t,
		[]providers.Config{testutil.Provider("p1", 1, 5)},
		[]routing.Rule{testutil.CatchAll(0, true)},
		testutil.ServiceOptions{},
	)
	env.client.On(testutil.Gateway("p1"), testutil.Step{
		Status:  http.StatusCreated,
		Body:    []byte(`[1,2]`),
		Headers: http.Header{"Content-Type": {"application/json"}, "Set-Cookie": {"a=1", "b=2"}},
	})

	res := env.exec.Execute(context.Background(), Request{
		Method: "post",
		URL:    "https://api.example.com/items",
		Body:   []byte(`{"name":"x"}`),
	})
	if !res.Success || res.Status != http.StatusCreated {
		t.Fatalf("result = %+v", res)
	}
	if items, ok := res.Data.([]any); !ok || len(items) != 2 {
		t.Errorf("Data = %#v", res.Data)
	}
	if res.Headers["Content-Type"] != "application/json" || res.Headers["Set-Cookie"] != "a=1" {
		t.Errorf("Headers = %v", res.Headers)
	}
	if res.URL != "https://api.example.com/items" {
		t.Errorf("URL = %q", res.URL)
	}

	call := env.client.Calls()[0]
	if call.Method != http.MethodPost || string(call.Body) != `{"name":"x"}` {
		t.Errorf("call = %+v", call)
	}
	if call.ProxyURL != "http://up1:pw@gw.p1.example:8000" {
		t.Errorf("ProxyURL = %q", call.ProxyURL)
	}
}

func TestExecute_ProviderOverride(t *testing.T) {
	env := newEnv(t,
		[]providers.Config{testutil.Provider("p1", 1, 5), testutil.Provider("p2", 2, 5)},
		[]routing.Rule{testutil.CatchAll(0, true)},
		testutil.ServiceOptions{},
	)
	env.client.On(testutil.Gateway("p2"), ok("x"))

	res := env.exec.Execute(context.Background(), Request{URL: "https://example.com", ProviderOverride: "p2"})
	if !res.Success || res.Provider != "p2" {
		t.Errorf("result = %+v", res)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{Client: testutil.NewScriptedClient()}); err == nil {
		t.Error("New() without router succeeded")
	}
	svc, _ := testutil.NewService(t, nil, nil, testutil.ServiceOptions{})
	if _, err := New(Options{Router: svc}); err == nil {
		t.Error("New() without client succeeded")
	}
}
