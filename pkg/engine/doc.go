// Package engine is the composition root. It builds provider completers,
// imports MCP toolboxes and constructs the configured agents, then exposes
// them through a frontend-agnostic API. Frontends (the CLI, the HTTP host)
// run agents through Engine and observe activity through an EventBus.
package engine
