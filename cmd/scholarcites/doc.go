// Package main hosts the scholarcites entrypoint.
//
// Architecture overview:
//   - CLI: cmd wires the cobra commands (refresh, serve, stats, prune) to a shared
//     application container built once per invocation. The container owns the cache
//     store, the bibliography source, the fetch pipeline and the progress hub.
//   - Refresh pipeline: refresh.Coordinator loads the cache, asks staleness.Select
//     for the stalest entries within the per-run budget, and hands them to the
//     dispatcher. The dispatcher fetches sequentially, pausing a random interval
//     between lookups, saves the cache after every successful mutation, and stops
//     the whole run early when the source starts refusing every egress path.
//   - Fetch pipeline: the worker resolves each publication through the Colly-based
//     Scholar backend, optionally warming an author listing first so several titles
//     resolve from one query. Blocked or unparseable responses are retried once
//     through the headless Chromedp backend; network errors are not. Outbound
//     traffic goes through the egress rotator, which either fetches directly or
//     rotates across configured proxies with a per-path rate limit.
//   - Persistence: the cache is a single YAML file written atomically (temp file
//     plus rename) with deterministic ordering, so an unchanged run leaves the
//     bytes identical. A corrupt or missing file degrades to an empty cache.
//   - HTTP API: internal/api.Server exposes health probes, the cached counts, run
//     history and Prometheus metrics. In serve mode the container can also refresh
//     on a timer; overlapping ticks are skipped, not queued.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides
//     structured logging; progress events flow through a buffered hub to the log,
//     Prometheus and run-history sinks.
//
// Operational notes:
//   - Concurrency model: one refresh at a time, enforced by the coordinator; fetches
//     within a run are sequential so the pacing pauses mean anything. The HTTP
//     server and the refresh ticker share the process in serve mode.
//   - Rate limiting/backoff: random pauses between lookups come from
//     scholar.pause_min/pause_max; proxy paths are additionally throttled by
//     proxy.per_path_rate. There is no retry budget beyond the rotation count.
//   - Observability: zap logs carry run IDs and publication keys at every
//     transition; Prometheus counters and histograms track fetch attempts, pauses
//     and HTTP traffic; the run store keeps the recent refresh history for the API.
//
// Quick checklist:
//   - Configure env vars: SCHOLAR_CACHE_PATH, SCHOLAR_BIBLIOGRAPHY_PATH,
//     SCHOLAR_SCHOLAR_MAX_ENTRIES_PER_BATCH, SCHOLAR_SCHOLAR_FETCH_TIMEOUT,
//     SCHOLAR_PROXY_ENABLED plus SCHOLAR_PROXY_URLS when rotating, and
//     SCHOLAR_SERVER_REFRESH_INTERVAL for timed refreshes in serve mode.
//   - Run locally: go run ./cmd/scholarcites refresh --config scholarcites.yaml
//     (or rely solely on env overrides).
//   - Serve mode: go run ./cmd/scholarcites serve; the process reacts to SIGINT and
//     SIGTERM with a graceful drain of the HTTP server and the progress hub.
package main
