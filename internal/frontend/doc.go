// Package frontend receives questions from chat platforms.
//
// Telegram (long polling) and Matrix (sync loop) convert platform updates
// into Messages and hand them to a Bridge. The Bridge drops redelivered
// messages, handles the mode commands (/search, /regular, /help and their
// "!" forms), reads the user's stored request kind and runs the turn. While
// the turn is in flight it follows the turn's events to keep a typing
// indicator up. Failed turns get a short apology; a file search that
// delivers nothing gets a "no matching files" reply.
package frontend
