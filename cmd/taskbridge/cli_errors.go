package main

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/taskbridge/taskbridge/pkg/errors"
)

// printCLIError writes a user-facing error with a hint for the common
// failure classes.
func printCLIError(err error, asJSON bool) {
	var be *errors.BridgeError
	if !stderrors.As(err, &be) {
		if asJSON {
			fmt.Fprintf(os.Stderr, `{"error":{"code":"UNKNOWN","message":%q}}%s`, err.Error(), "\n")
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		return
	}

	hint := hintFor(be)
	if asJSON {
		fmt.Fprintf(os.Stderr, `{"error":{"code":%q,"message":%q,"hint":%q}}%s`,
			be.Code, be.Message, hint, "\n")
		return
	}
	fmt.Fprintf(os.Stderr, "Error [%s]: %s\n", be.Code, be.Message)
	if be.Err != nil {
		fmt.Fprintf(os.Stderr, "  Cause: %s\n", be.Err.Error())
	}
	if hint != "" {
		fmt.Fprintf(os.Stderr, "  Hint: %s\n", hint)
	}
}

func hintFor(be *errors.BridgeError) string {
	switch be.Code {
	case errors.CodeConfiguration:
		return "check your config file and environment (TASKBRIDGE_CHAT_API_KEY, server.command)"
	case errors.CodeRemoteUnavailable:
		return "check that the task server command exists and is executable"
	case errors.CodeModelUnavailable:
		return "check the chat API key, base URL, and your network connection"
	case errors.CodeExhausted:
		return "raise loop.max_iterations or loop.deadline, or simplify the request"
	case errors.CodeTimeout:
		return "raise server.request_timeout or check server health"
	default:
		return ""
	}
}
