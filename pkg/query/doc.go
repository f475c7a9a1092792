// Package query orchestrates the full lifecycle of an agent query: input
// validation, session creation, the bounded run, and finalization. Every
// failure surfaces as an Error carrying one of the package's kinds so the
// HTTP boundary can map it without inspecting causes.
package query
