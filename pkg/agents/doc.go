// Package agents defines the Agent abstraction shared by the shop agents and
// the ways agents are composed.
//
// An [Agent] turns one user input into a [Response]. Most agents are a
// [ConversationAgent]: a named [conversation.Controller]. Agents compose in
// two ways:
//
//   - [AsTool] wraps an agent as a toolbox.Tool, so an orchestrator agent can
//     delegate to specialists through ordinary tool calls. The specialist runs
//     its own bounded conversation and only its final text is returned.
//   - [Sequential] runs agents one after the other, feeding each output to the
//     next as its input.
//
// A [Registry] is the directory of agents a host can run by name.
package agents
