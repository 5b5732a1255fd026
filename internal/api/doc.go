// Package api implements the ruleaudit REST API server.
//
// # Overview
//
// The server accepts iptables-save text and answers with analysis results,
// remediation plans and optimized rule sets. Runs are optionally recorded in
// the history store.
//
// # Endpoints
//
//	POST /api/v1/analyze    rules -> {run_id, result, warnings}
//	POST /api/v1/recommend  rules -> {run_id, result, plan, warnings}
//	POST /api/v1/optimize   rules -> {run_id, removed, rules, diff, warnings}
//	GET  /api/v1/history    recorded runs, newest first (?limit=n)
//	GET  /api/v1/history/{id}
//	GET  /api/v1/logs       recent log entries (?limit=n&source=api)
//	GET  /healthz
//	GET  /metrics           Prometheus exposition
//
// # Request Flow
//
//	HTTP Request → AccessLogger → i18n.Middleware → mux → handler
//
// Errors are JSON objects {"error": "...", "details": "..."}, localized per
// Accept-Language.
package api
