// Package event implements the line-oriented event-stream protocol parser.
//
// The server sends events as groups of text lines:
//
//	event: message
//	data: {"id":"abc","message":"hi"}
//	<blank line>
//
// A line starting with "event:" names the pending event's kind, a line
// starting with "data:" carries its JSON payload, and a blank line
// terminates the event. The parser performs no I/O and never fails:
// malformed payloads degrade to an event without data, because a single
// bad line must never take down a long-lived connection.
package event
