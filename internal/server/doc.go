// Package server exposes the HTTP API.
//
//	GET  /health        liveness, always 200
//	GET  /health/ready  200 when the session store answers a ping, 503 otherwise
//	POST /api/turns     runs one turn and returns what was delivered
//
// POST /api/turns takes {"chat_id", "user_id", "question", "reply_to", "kind"}.
// chat_id carries the frontend prefix ("telegram:123") so answers go to the
// right chat. The call blocks until the turn finishes.
package server
