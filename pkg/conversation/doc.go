// Package conversation drives a bounded-turn, tool-augmented conversation
// with a model.
//
// A [Controller] is built once from a [modeladapter.Completer] and a
// [toolbox.ToolBox] and can run any number of independent conversations,
// concurrently if needed. Each [Controller.Run] walks the state machine
//
//	AwaitingModel → ModelReplied → {ExecutingTools → AwaitingModel} | Terminal
//
// and always returns an [Outcome]; failures never escape as panics or errors.
package conversation
