// Package dedupe suppresses redelivered inbound chat messages.
//
// Chat platforms may deliver the same update twice (long-poll retries,
// sync replays after a reconnect). Window remembers (frontend, chat,
// message) keys for a TTL so only the first delivery starts a turn.
package dedupe
