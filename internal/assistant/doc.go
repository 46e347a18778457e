// Package assistant talks to the remote assistant service.
//
// # Overview
//
// The service exposes a thread / run / message model: a thread holds one
// user's conversation, a run executes the fixed assistant against the thread
// and completes asynchronously, and the answer appears as the newest message.
//
// Client is a thin request layer. Every call returns the raw JSON payload so
// that a single malformed field never aborts a turn; Parser pulls out the few
// fields the orchestrator needs and returns empty values (with a warning log)
// when a payload cannot be parsed.
//
// # Calls
//
//	POST   /threads                         CreateThread, CreateThreadWithMessages
//	DELETE /threads/{id}                    DeleteThread
//	POST   /threads/{id}/messages           CreateMessage
//	GET    /threads/{id}/messages           ListMessages (newest first)
//	GET    /threads/{id}/messages/{msg}     GetMessage
//	POST   /threads/{id}/runs               CreateRun
//	GET    /threads/{id}/runs/{run}         GetRun
//	GET    /files/{id}                      GetFile
//
// All requests carry a bearer token and the OpenAI-Beta version header.
// Non-2xx answers become *StatusError.
package assistant
