// Package mcp exposes the ima bridge over the Model Context Protocol.
//
// The server registers three tools (ask, ima_validate_config and
// ima_get_status) and three resources (ima://config, ima://help and
// ima://status) on the official MCP Go SDK and serves them over any SDK
// transport. The shipped binary runs it on stdio.
//
// Upstream failures arrive as regular answer text because the ask pipeline
// converts them to messages; only input mistakes such as an empty question
// produce MCP error results.
package mcp
