// Package client implements the retry orchestrator for knowledge-base
// questions.
//
// Client.Ask drives the full pipeline (token check, session init, streaming
// QA request) with bounded retries: auth-classified failures trigger a token
// refresh and an immediate retry, transient ones a one-second delay, and a
// failed refresh abandons the remaining attempts. The outward contract is
// data, not faults: every call returns at least one message, with synthetic
// system messages standing in for rejected input or total failure.
//
// The package also carries the connectivity surface the MCP status tools
// use: Validate runs a live canned question; StatusReport renders the cached
// outcome alongside configuration validity.
package client
