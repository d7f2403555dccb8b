package main

import (
	"fmt"
	"strings"
)

// consoleTransport writes streamed chunks straight to stdout. Terminate
// payloads are recognized by their sentinel shape and swallowed; the
// REPL unblocks via the orchestrator's Wait channel instead.
type consoleTransport struct{}

func newConsoleTransport() *consoleTransport {
	return &consoleTransport{}
}

func (t *consoleTransport) Send(channelID, payload string) {
	if isTerminatePayload(payload) {
		return
	}
	fmt.Print(payload)
}

func isTerminatePayload(payload string) bool {
	return strings.HasPrefix(payload, "__TERMINATE_") && strings.HasSuffix(payload, "__")
}
