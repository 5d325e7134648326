package testutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"machinaos/proxyrouter/pkg/transport"
)

// Step is one scripted exchange.
type Step struct {
	Status  int
	Body    []byte
	Headers http.Header

	// Bytes overrides the transferred byte count (default: len(Body)).
	Bytes int64

	// Kind, when set, fails the exchange with a *transport.Error.
	Kind transport.ErrorKind

	// Block waits for the request context to end and fails with a
	// timeout or canceled error.
	Block bool
}

// Call records one exchange seen by a ScriptedClient.
type Call struct {
	Gateway  string
	ProxyURL string
	Method   string
	URL      string
	Body     []byte
}

// ScriptedClient is a transport.Client that replays scripted exchanges
// keyed by a substring of the proxy URL, usually the gateway host. The
// last step of a script repeats once the others are used.
type ScriptedClient struct {
	mu      sync.Mutex
	scripts map[string][]Step
	order   []string
	calls   []Call

	// Started receives a value when a blocking step begins.
	Started chan struct{}
}

// NewScriptedClient creates an empty client. Exchanges through unscripted
// proxies fail with a connect error.
func NewScriptedClient() *ScriptedClient {
	return &ScriptedClient{
		scripts: make(map[string][]Step),
		Started: make(chan struct{}, 16),
	}
}

// On scripts the exchanges for proxy URLs containing gateway.
func (c *ScriptedClient) On(gateway string, steps ...Step) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.scripts[gateway]; !ok {
		c.order = append(c.order, gateway)
	}
	c.scripts[gateway] = steps
	return c
}

// Do implements transport.Client.
func (c *ScriptedClient) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	step, gateway, ok := c.next(req)
	if !ok {
		return nil, &transport.Error{Kind: transport.KindConnect, Err: fmt.Errorf("no script for proxy %q", req.ProxyURL)}
	}

	if step.Block {
		select {
		case c.Started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		kind := transport.KindTimeout
		if errors.Is(ctx.Err(), context.Canceled) {
			kind = transport.KindCanceled
		}
		return nil, &transport.Error{Kind: kind, Bytes: step.Bytes, Err: ctx.Err()}
	}

	if step.Kind != "" {
		return nil, &transport.Error{Kind: step.Kind, Bytes: step.Bytes, Err: fmt.Errorf("scripted %s failure via %s", step.Kind, gateway)}
	}

	bytes := step.Bytes
	if bytes == 0 {
		bytes = int64(len(step.Body))
	}
	headers := step.Headers
	if headers == nil {
		headers = http.Header{}
	}
	return &transport.Response{
		StatusCode:       step.Status,
		Headers:          headers,
		Body:             step.Body,
		BytesTransferred: bytes,
	}, nil
}

func (c *ScriptedClient) next(req *transport.Request) (Step, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, gateway := range c.order {
		if !strings.Contains(req.ProxyURL, gateway) {
			continue
		}
		c.calls = append(c.calls, Call{
			Gateway:  gateway,
			ProxyURL: req.ProxyURL,
			Method:   req.Method,
			URL:      req.URL,
			Body:     req.Body,
		})
		steps := c.scripts[gateway]
		if len(steps) == 0 {
			return Step{}, gateway, false
		}
		step := steps[0]
		if len(steps) > 1 {
			c.scripts[gateway] = steps[1:]
		}
		return step, gateway, true
	}
	return Step{}, "", false
}

// Calls returns the exchanges seen so far.
func (c *ScriptedClient) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Gateways returns the gateway of every call in order.
func (c *ScriptedClient) Gateways() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	for i, call := range c.calls {
		out[i] = call.Gateway
	}
	return out
}
