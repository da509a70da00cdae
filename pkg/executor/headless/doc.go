// Package headless runs a publishing job without a terminal UI, as used by
// the CLI and the upload server.
//
// The executor wraps a publisher, renders its events to the console at the
// configured verbosity, classifies the outcome and writes run artifacts.
//
//	┌──────────────────────────────┐
//	│       Headless Executor      │
//	│  - Console event rendering   │
//	│  - Outcome classification    │
//	│  - Artifact generation       │
//	└──────────────┬───────────────┘
//	               │ Publish(ctx)
//	               ▼
//	┌──────────────────────────────┐
//	│    publish.Orchestrator      │
//	│  extract → refine → publish  │
//	└──────────────────────────────┘
//
// Example usage:
//
//	exec, _ := headless.NewExecutor(cfg)
//	orch, _ := publish.NewOrchestrator(src, wf, connect, bundle,
//	    publish.WithEventHandler(exec.EventHandler()))
//	summary, err := exec.Run(ctx, orch)
//
// A run is successful when the page was written from a verified draft and
// the tool loop ended with an answer. A run that published but stopped the
// loop early, or published an unverified draft, is a partial success.
package headless
