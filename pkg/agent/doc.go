// Package agent bridges synchronous callers onto multi-turn LLM runs. The
// Adapter drives a provider through a bounded tool-use loop, emitting one
// event per transcript turn, and converts provider and context failures into
// the package's sentinel errors.
package agent
