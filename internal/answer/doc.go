// Package answer decides what a completed run produced: a text reply or a set
// of files to deliver, and which files.
//
// Classify is the decision table; Resolver.Resolve applies it and extracts the
// file references for the chosen branch. Non-search turns always produce text.
package answer
