// Package api serves the node's admin HTTP interface for the channel table.
//
// Every response uses the same JSON envelope:
//
//	{"result":"ok","data":{...},"correlationId":"..."}
//	{"result":"error","code":"INVALID_INDEX","message":"...","correlationId":"..."}
//
// Routes live under /api/v1. Only /health is reachable without a bearer token.
package api
