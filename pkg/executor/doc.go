// Package executor sends HTTP requests through residential proxies with
// failover.
//
// An Executor asks its Router for a provider, performs the exchange with a
// transport.Client and, on an HTTP status >= 400 or a network error,
// retries through the next-best provider until the matched rule's
// max_retries is used up:
//
//	exec, err := executor.New(executor.Options{
//	    Router: svc,
//	    Client: transport.NewHTTPClient(transport.HTTPConfig{}),
//	    Usage:  ledger,
//	})
//	res := exec.Execute(ctx, executor.Request{URL: "https://example.com"})
//
// Every attempt is reported to the health scorer, and every attempt that
// transferred bytes is billed to the usage ledger and the daily budget.
// Execute never returns an error; failures are described by the Result.
package executor
