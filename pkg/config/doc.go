// Package config loads and validates proxyrouter configuration.
//
// Configuration is YAML decoded on top of built-in defaults, so a file only
// needs the settings it changes. Environment variables named
// PROXYROUTER_SECTION_FIELD override the file:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("proxyrouter.yaml")
//	if err != nil {
//	    var verr config.ValidationError
//	    if errors.As(err, &verr) {
//	        for _, fe := range verr.Errors {
//	            fmt.Println(fe.Field, fe.Message)
//	        }
//	    }
//	}
//
// A minimal file defines providers and routing rules:
//
//	providers:
//	  - name: brightdata
//	    enabled: true
//	    priority: 1
//	    cost_per_gb: 8.4
//	    gateway_host: brd.superproxy.io
//	    gateway_port: 22225
//	    url_template_preset: brightdata
//	routing:
//	  rules:
//	    - id: linkedin
//	      domain_pattern: "*.linkedin.com"
//	      preferred_providers: [brightdata]
//	      session_type: sticky
//	      sticky_duration_seconds: 600
//	      max_retries: 2
//	      failover: true
//	      priority: 10
//
// A catch-all rule ("*") is added when none is configured. Validate
// reports every problem at once as a ValidationError.
//
// Watcher reloads the file on change, skipping writes that leave the
// content unchanged.
package config
