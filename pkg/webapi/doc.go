// Package webapi exposes the query service over HTTP: a form endpoint that
// redirects to the session view, a JSON API, session retrieval, a websocket
// progress stream, and health and metrics endpoints.
package webapi
