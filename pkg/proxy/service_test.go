package proxy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"machinaos/proxyrouter/pkg/credentials"
	"machinaos/proxyrouter/pkg/health"
	"machinaos/proxyrouter/pkg/limits/budget"
	"machinaos/proxyrouter/pkg/providers"
	"machinaos/proxyrouter/pkg/routing"
	"machinaos/proxyrouter/pkg/store"
)

type testEnv struct {
	svc    *Service
	store  *store.MemoryStore
	health *health.Scorer
}

func provider(name string, priority int) providers.Config {
	return providers.Config{
		Name:              name,
		Enabled:           true,
		Priority:          priority,
		Weight:            1,
		CostPerGB:         5,
		GatewayHost:       "gw." + name + ".example",
		GatewayPort:       22225,
		StickySupport:     true,
		URLTemplatePreset: providers.PresetBrightData,
	}
}

func catchAll(preferred ...string) routing.Rule {
	r := routing.DefaultCatchAll()
	r.PreferredProviders = preferred
	return r
}

func newEnv(t *testing.T, provs []providers.Config, rules []routing.Rule, mutate func(*Options)) *testEnv {
	t.Helper()
	ctx := context.Background()

	ms := store.NewMemoryStore()
	if err := store.Seed(ctx, ms, provs, rules); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	creds := make(map[string]providers.Credentials)
	for _, p := range provs {
		creds[p.Name] = providers.Credentials{Username: "u" + p.Name, Password: "pw"}
	}

	var n atomic.Int64
	scorer := health.NewScorer(health.Config{Seed: 7, MinSamples: 1, MinHealthyScore: 0.9})
	opts := Options{
		Store:       ms,
		Credentials: credentials.NewStaticStore(creds),
		Health:      scorer,
		NewSessionID: func() string {
			return fmt.Sprintf("sess%d", n.Add(1))
		},
	}
	if mutate != nil {
		mutate(&opts)
	}

	svc, err := NewService(ctx, opts)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	t.Cleanup(svc.Close)
	return &testEnv{svc: svc, store: ms, health: opts.Health}
}

func (e *testEnv) fail(name string, times int) {
	for i := 0; i < times; i++ {
		e.svc.ReportResult(name, health.Result{Success: false, LatencyMs: 100, StatusCode: 503})
	}
}

func TestService_Disabled(t *testing.T) {
	disabled := provider("p1", 1)
	disabled.Enabled = false

	for name, provs := range map[string][]providers.Config{
		"no providers": nil,
		"all disabled": {disabled},
	} {
		t.Run(name, func(t *testing.T) {
			env := newEnv(t, provs, []routing.Rule{catchAll()}, nil)

			if env.svc.IsEnabled() {
				t.Error("IsEnabled() = true")
			}
			url, err := env.svc.GetProxyURL(context.Background(), "https://example.com", SelectParams{})
			if url != "" || err != nil {
				t.Errorf("GetProxyURL() = %q, %v; want empty, nil", url, err)
			}
			_, err = env.svc.Select(context.Background(), "https://example.com", SelectParams{})
			if !errors.Is(err, ErrNoProviderAvailable) {
				t.Errorf("Select() error = %v, want ErrNoProviderAvailable", err)
			}
		})
	}
}

func TestService_RoutingSpecificity(t *testing.T) {
	env := newEnv(t,
		[]providers.Config{provider("providerA", 1), provider("providerB", 1)},
		[]routing.Rule{
			{ID: "example", DomainPattern: "*.example.com", PreferredProviders: []string{"providerA"}, Failover: true, Priority: 100},
			{ID: "rest", DomainPattern: "*", PreferredProviders: []string{"providerB"}, Failover: true, Priority: 100},
		}, nil)
	ctx := context.Background()

	sel, err := env.svc.Select(ctx, "https://api.example.com/x", SelectParams{Geo: &providers.GeoTarget{Country: "us"}})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if sel.Provider != "providerA" || sel.Rule.ID != "example" {
		t.Errorf("Select() = %s via %s, want providerA via example", sel.Provider, sel.Rule.ID)
	}
	if want := "http://uproviderA-country-us:pw@gw.providerA.example:22225"; sel.ProxyURL != want {
		t.Errorf("ProxyURL = %q, want %q", sel.ProxyURL, want)
	}
	if sel.Country != "US" || sel.SessionID != "" || sel.Reason != "healthy" {
		t.Errorf("Selection = %+v", sel)
	}

	url, err := env.svc.GetProxyURL(ctx, "https://other.com", SelectParams{})
	if err != nil {
		t.Fatalf("GetProxyURL() error = %v", err)
	}
	if want := "http://uproviderB:pw@gw.providerB.example:22225"; url != want {
		t.Errorf("GetProxyURL() = %q, want %q", url, want)
	}

	st := env.svc.Status()
	if st.Matches.TotalMatches != 2 || st.Matches.MatchesPerRule["example"] != 1 {
		t.Errorf("Matches = %+v", st.Matches)
	}
}

func TestService_MissingCatchAll(t *testing.T) {
	env := newEnv(t,
		[]providers.Config{provider("p1", 1)},
		[]routing.Rule{{ID: "only", DomainPattern: "*.example.com", Failover: true}}, nil)

	_, err := env.svc.Select(context.Background(), "https://other.com", SelectParams{})
	if !errors.Is(err, providers.ErrProxyConfig) {
		t.Errorf("Select() error = %v, want ErrProxyConfig", err)
	}
	_, err = env.svc.GetProxyURL(context.Background(), "not a url at all ::", SelectParams{})
	if !errors.Is(err, providers.ErrProxyConfig) {
		t.Errorf("GetProxyURL() error = %v, want ErrProxyConfig", err)
	}
}

func TestService_CountryConstraints(t *testing.T) {
	de := provider("de-only", 1)
	de.GeoCoverage = []string{"DE"}
	anywhere := provider("anywhere", 5)

	t.Run("rule country overrides request", func(t *testing.T) {
		rule := catchAll()
		rule.RequiredCountry = "DE"
		env := newEnv(t, []providers.Config{de, anywhere}, []routing.Rule{rule}, nil)

		sel, err := env.svc.Select(context.Background(), "https://a.com", SelectParams{Geo: &providers.GeoTarget{Country: "US", City: "Boston"}})
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if sel.Country != "DE" || sel.Provider != "de-only" {
			t.Errorf("Selection = %s/%s, want de-only/DE", sel.Provider, sel.Country)
		}
		if !strings.Contains(sel.ProxyURL, "country-de-city-boston") {
			t.Errorf("ProxyURL = %q", sel.ProxyURL)
		}
	})

	t.Run("preferred provider lacking coverage falls back", func(t *testing.T) {
		env := newEnv(t, []providers.Config{de, anywhere}, []routing.Rule{catchAll("de-only")}, nil)

		sel, err := env.svc.Select(context.Background(), "https://a.com", SelectParams{Geo: &providers.GeoTarget{Country: "US"}})
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if sel.Provider != "anywhere" {
			t.Errorf("Provider = %s, want anywhere", sel.Provider)
		}
	})

	t.Run("no coverage at all", func(t *testing.T) {
		rule := catchAll()
		rule.RequiredCountry = "FR"
		env := newEnv(t, []providers.Config{de}, []routing.Rule{rule}, nil)

		_, err := env.svc.Select(context.Background(), "https://a.com", SelectParams{})
		var nhp *NoHealthyProviderError
		if !errors.As(err, &nhp) {
			t.Fatalf("Select() error = %v, want NoHealthyProviderError", err)
		}
		if nhp.Country != "FR" || nhp.Target != "a.com" || !strings.Contains(err.Error(), "FR") {
			t.Errorf("error = %v", err)
		}
	})
}

func TestService_HealthRanking(t *testing.T) {
	ctx := context.Background()

	t.Run("unhealthy provider is skipped", func(t *testing.T) {
		env := newEnv(t, []providers.Config{provider("p1", 1), provider("p2", 2)}, []routing.Rule{catchAll()}, nil)
		env.fail("p1", 3)

		sel, err := env.svc.Select(ctx, "https://a.com", SelectParams{})
		if err != nil {
			t.Fatal(err)
		}
		if sel.Provider != "p2" || sel.Degraded {
			t.Errorf("Selection = %s degraded=%v, want p2 healthy", sel.Provider, sel.Degraded)
		}
	})

	t.Run("least unhealthy when all unhealthy", func(t *testing.T) {
		env := newEnv(t, []providers.Config{provider("p1", 2), provider("p2", 1)}, []routing.Rule{catchAll()}, nil)
		env.fail("p1", 3)
		env.fail("p2", 6)

		sel, err := env.svc.Select(ctx, "https://a.com", SelectParams{})
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if sel.Provider != "p1" || !sel.Degraded || sel.Reason != "degraded" {
			t.Errorf("Selection = %+v, want degraded p1", sel)
		}
	})

	t.Run("failover disabled pins the preferred provider", func(t *testing.T) {
		rule := catchAll("p1", "p2")
		rule.Failover = false
		env := newEnv(t, []providers.Config{provider("p1", 1), provider("p2", 1)}, []routing.Rule{rule}, nil)
		env.fail("p1", 3)

		sel, err := env.svc.Select(ctx, "https://a.com", SelectParams{})
		if err != nil {
			t.Fatal(err)
		}
		if sel.Provider != "p1" || sel.Reason != "pinned" || !sel.Degraded {
			t.Errorf("Selection = %+v, want pinned degraded p1", sel)
		}
	})

	t.Run("avoid moves tried providers last", func(t *testing.T) {
		env := newEnv(t, []providers.Config{provider("p1", 1), provider("p2", 2)}, []routing.Rule{catchAll()}, nil)

		sel, _ := env.svc.Select(ctx, "https://a.com", SelectParams{Avoid: []string{"p1"}})
		if sel.Provider != "p2" {
			t.Errorf("Provider = %s, want p2", sel.Provider)
		}
		sel, _ = env.svc.Select(ctx, "https://a.com", SelectParams{Avoid: []string{"p1", "p2"}})
		if sel.Provider != "p1" {
			t.Errorf("all avoided: Provider = %s, want p1", sel.Provider)
		}
	})
}

func TestService_ProviderOverride(t *testing.T) {
	off := provider("off", 1)
	off.Enabled = false
	env := newEnv(t, []providers.Config{provider("p1", 1), provider("p2", 2), off}, []routing.Rule{catchAll("p1")}, nil)
	env.fail("p2", 5)
	ctx := context.Background()

	sel, err := env.svc.Select(ctx, "https://a.com", SelectParams{ProviderOverride: "p2"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if sel.Provider != "p2" || sel.Reason != "override" {
		t.Errorf("Selection = %+v, want override p2", sel)
	}

	if _, err := env.svc.Select(ctx, "https://a.com", SelectParams{ProviderOverride: "off"}); !errors.Is(err, ErrNoProviderAvailable) {
		t.Errorf("disabled override error = %v", err)
	}
	if _, err := env.svc.Select(ctx, "https://a.com", SelectParams{ProviderOverride: "ghost"}); !errors.Is(err, providers.ErrProxyConfig) {
		t.Errorf("unknown override error = %v", err)
	}
}

func TestService_StickySessions(t *testing.T) {
	rule := catchAll()
	rule.SessionType = providers.SessionSticky
	rule.StickyDurationSeconds = 3600

	p1 := provider("p1", 1)
	p1.URLTemplatePreset = providers.PresetSmartproxy
	p1.MaxStickySeconds = 600
	noSticky := provider("p2", 2)
	noSticky.StickySupport = false

	env := newEnv(t, []providers.Config{p1, noSticky}, []routing.Rule{rule}, nil)
	ctx := context.Background()

	first, err := env.svc.Select(ctx, "https://a.com", SelectParams{SessionID: "wf-1"})
	if err != nil {
		t.Fatal(err)
	}
	if first.SessionID != "sess1" {
		t.Errorf("SessionID = %q, want sess1", first.SessionID)
	}
	if want := "http://user-up1-session-sess1-sessionduration-10:pw@gw.p1.example:22225"; first.ProxyURL != want {
		t.Errorf("ProxyURL = %q, want %q", first.ProxyURL, want)
	}

	again, _ := env.svc.Select(ctx, "https://b.com", SelectParams{SessionID: "wf-1"})
	if again.ProxyURL != first.ProxyURL || again.Reason != "sticky" {
		t.Errorf("sticky reuse = %+v", again)
	}

	other, _ := env.svc.Select(ctx, "https://a.com", SelectParams{SessionID: "wf-2"})
	if other.SessionID != "sess2" {
		t.Errorf("second session id = %q, want sess2", other.SessionID)
	}

	anon, _ := env.svc.Select(ctx, "https://a.com", SelectParams{})
	if anon.SessionID != "sess3" {
		t.Errorf("anonymous session id = %q, want sess3", anon.SessionID)
	}

	// Providers without sticky support fall back to rotating sessions.
	rot, _ := env.svc.Select(ctx, "https://a.com", SelectParams{ProviderOverride: "p2", SessionID: "wf-3"})
	if rot.SessionID != "" || strings.Contains(rot.ProxyURL, "session") {
		t.Errorf("non-sticky provider rendered a session: %+v", rot)
	}

	// A failing bound provider is abandoned.
	env.fail("p1", 3)
	moved, _ := env.svc.Select(ctx, "https://a.com", SelectParams{SessionID: "wf-1"})
	if moved.Provider != "p2" {
		t.Errorf("after failures Provider = %s, want p2", moved.Provider)
	}

	if env.svc.Status().StickySessions == 0 {
		t.Error("Status().StickySessions = 0")
	}
}

func TestService_Budget(t *testing.T) {
	tracker := budget.NewTracker(budget.Config{DailyLimit: 1})
	env := newEnv(t, []providers.Config{provider("p1", 1)}, []routing.Rule{catchAll()}, func(o *Options) {
		o.Budget = tracker
	})
	ctx := context.Background()

	if _, err := env.svc.Select(ctx, "https://a.com", SelectParams{}); err != nil {
		t.Fatalf("Select() under budget error = %v", err)
	}

	env.svc.RecordSpend(env.svc.Cost("p1", 1<<30))

	_, err := env.svc.Select(ctx, "https://a.com", SelectParams{})
	if !errors.Is(err, budget.ErrBudgetExceeded) {
		t.Errorf("Select() error = %v, want ErrBudgetExceeded", err)
	}
	if st := env.svc.Status(); st.Budget == nil || st.Budget.Allowed {
		t.Errorf("Status().Budget = %+v", st.Budget)
	}
}

func TestService_ReportResult(t *testing.T) {
	env := newEnv(t, []providers.Config{provider("p1", 1)}, []routing.Rule{catchAll()}, nil)

	env.svc.ReportResult("ghost", health.Result{Success: false})
	env.svc.ReportResult("p1", health.Result{Success: true, LatencyMs: 200, BytesTransferred: 1024})

	stats := env.svc.GetStats()
	if _, ok := stats["ghost"]; ok {
		t.Error("unknown provider tracked")
	}
	if stats["p1"].TotalRequests != 1 || stats["p1"].TotalBytes != 1024 {
		t.Errorf("stats = %+v", stats["p1"])
	}
}

func TestService_Concurrency(t *testing.T) {
	p1 := provider("p1", 1)
	p1.MaxConcurrent = 1
	env := newEnv(t, []providers.Config{p1, provider("p2", 2)}, []routing.Rule{catchAll()}, nil)
	ctx := context.Background()

	release, err := env.svc.Acquire(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}

	sel, _ := env.svc.Select(ctx, "https://a.com", SelectParams{})
	if sel.Provider != "p2" {
		t.Errorf("saturated p1 still first: %s", sel.Provider)
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := env.svc.Acquire(short, "p1"); err == nil {
		t.Error("second Acquire() should time out")
	}

	release()
	release()
	if env.svc.Status().InFlight["p1"] != 0 {
		t.Error("double release corrupted in-flight count")
	}
}

func TestService_Admin(t *testing.T) {
	env := newEnv(t, []providers.Config{provider("p1", 1)}, []routing.Rule{catchAll()}, nil)
	ctx := context.Background()

	t.Run("invalid template rejected before save", func(t *testing.T) {
		bad := provider("p2", 1)
		bad.URLTemplate = `{"param_field": "header"}`
		if err := env.svc.UpsertProvider(ctx, bad); !errors.Is(err, providers.ErrProxyConfig) {
			t.Fatalf("UpsertProvider() error = %v", err)
		}
		list, _ := env.store.ListProviders(ctx)
		if len(list) != 1 {
			t.Errorf("store has %d providers, want 1", len(list))
		}
	})

	t.Run("upsert provider and rule", func(t *testing.T) {
		if err := env.svc.UpsertProvider(ctx, provider("p2", 5)); err != nil {
			t.Fatal(err)
		}
		rule := routing.Rule{ID: "shop", DomainPattern: "*.shop.com", PreferredProviders: []string{"p2"}, Failover: true, Priority: 10}
		if err := env.svc.UpsertRule(ctx, rule); err != nil {
			t.Fatal(err)
		}

		sel, err := env.svc.Select(ctx, "https://www.shop.com", SelectParams{})
		if err != nil {
			t.Fatal(err)
		}
		if sel.Provider != "p2" || sel.Rule.ID != "shop" {
			t.Errorf("Selection = %s via %s", sel.Provider, sel.Rule.ID)
		}
		if len(env.svc.GetRules()) != 2 || len(env.svc.GetProviders()) != 2 {
			t.Error("accessors not updated")
		}
	})

	t.Run("disable and enable", func(t *testing.T) {
		if err := env.svc.SetProviderEnabled(ctx, "ghost", false); !errors.Is(err, ErrProviderNotFound) {
			t.Errorf("unknown provider error = %v", err)
		}
		if err := env.svc.SetProviderEnabled(ctx, "p2", false); err != nil {
			t.Fatal(err)
		}
		sel, _ := env.svc.Select(ctx, "https://www.shop.com", SelectParams{})
		if sel.Provider != "p1" {
			t.Errorf("disabled p2 still selected")
		}
		if err := env.svc.SetProviderEnabled(ctx, "p2", true); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("delete rules", func(t *testing.T) {
		if err := env.svc.DeleteRule(ctx, "shop"); err != nil {
			t.Fatal(err)
		}
		if err := env.svc.DeleteRule(ctx, "shop"); !errors.Is(err, routing.ErrRuleNotFound) {
			t.Errorf("second delete error = %v", err)
		}
		if err := env.svc.DeleteRule(ctx, "default"); !errors.Is(err, routing.ErrLastCatchAll) {
			t.Errorf("deleting last catch-all error = %v", err)
		}
	})

	t.Run("catch-all cannot be narrowed", func(t *testing.T) {
		narrowed := catchAll()
		narrowed.DomainPattern = "*.shop.com"
		if err := env.svc.UpsertRule(ctx, narrowed); !errors.Is(err, routing.ErrLastCatchAll) {
			t.Fatalf("UpsertRule() error = %v, want ErrLastCatchAll", err)
		}

		sel, err := env.svc.Select(ctx, "https://other.com", SelectParams{})
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if sel.Rule.ID != "default" || !sel.Rule.IsCatchAll() {
			t.Errorf("Select() rule = %s (%s), want the default catch-all", sel.Rule.ID, sel.Rule.DomainPattern)
		}
		stored, _ := env.store.ListRoutingRules(ctx)
		for _, r := range stored {
			if r.ID == "default" && r.DomainPattern != "*" {
				t.Errorf("stored default pattern = %q, want *", r.DomainPattern)
			}
		}
	})

	t.Run("second catch-all allows narrowing the first", func(t *testing.T) {
		if err := env.svc.UpsertRule(ctx, routing.Rule{ID: "fallback", DomainPattern: "*", Priority: 2000}); err != nil {
			t.Fatal(err)
		}
		narrowed := catchAll()
		narrowed.DomainPattern = "*.shop.com"
		if err := env.svc.UpsertRule(ctx, narrowed); err != nil {
			t.Fatalf("UpsertRule() error = %v", err)
		}
		sel, err := env.svc.Select(ctx, "https://other.com", SelectParams{})
		if err != nil {
			t.Fatal(err)
		}
		if sel.Rule.ID != "fallback" {
			t.Errorf("Select() rule = %s, want fallback", sel.Rule.ID)
		}
		if err := env.svc.DeleteRule(ctx, "fallback"); !errors.Is(err, routing.ErrLastCatchAll) {
			t.Errorf("deleting remaining catch-all error = %v", err)
		}
	})

	t.Run("invalid rule rejected", func(t *testing.T) {
		err := env.svc.UpsertRule(ctx, routing.Rule{ID: "bad", DomainPattern: "*", MaxRetries: -1})
		if !errors.Is(err, providers.ErrProxyConfig) {
			t.Errorf("UpsertRule() error = %v", err)
		}
	})
}

func TestService_ConcurrentSelectDuringUpdates(t *testing.T) {
	env := newEnv(t, []providers.Config{provider("p1", 1), provider("p2", 2)}, []routing.Rule{catchAll()}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan error, 8)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				sel, err := env.svc.Select(ctx, "https://a.com", SelectParams{})
				if err != nil {
					errs <- err
					return
				}
				env.svc.ReportResult(sel.Provider, health.Result{Success: true, LatencyMs: 50})
			}
		}()
	}

	for i := 0; i < 20; i++ {
		if err := env.svc.SetProviderEnabled(ctx, "p1", i%2 == 0); err != nil {
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Select() during updates: %v", err)
	}
}
