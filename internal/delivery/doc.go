// Package delivery sends answers back to chat platforms.
//
// Router implements the orchestrator's delivery contract. It reads the
// frontend prefix of a chat id ("telegram:123", "matrix:!room:example.org")
// and hands the rest to the Sender registered for that frontend. Telegram and
// Matrix are the two senders; both are written against narrow interfaces of
// their client libraries so tests can record calls.
package delivery
