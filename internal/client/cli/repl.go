package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isVerified() bool
	Connect(ctx context.Context) error
	Login(ctx context.Context) error
	Status(ctx context.Context) error
	Attach(ctx context.Context, args []string) error
	Fetch(ctx context.Context, args []string) error
	Reconcile(ctx context.Context) error
	Watch(ctx context.Context) error
	Logout(ctx context.Context) error
}

// runREPL starts a simple read-eval-print loop for the ChainAnchor CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Not verified:
//	  - help            - show available commands
//	  - connect         - unlock the wallet and bind an address
//	  - login           - request a challenge, sign it, and verify
//	  - status          - show the current binding and anchor record
//	  - exit | quit     - leave the program
//
//	Verified (additionally):
//	  - attach <file> [class] [-e]  - upload a document and anchor its
//	    content id on-chain; -e encrypts it under the wallet key first
//	  - fetch [class] [out]         - download (and decrypt) the document
//	  - reconcile [class]           - align the local record with chain state
//	  - watch                       - follow on-chain attach events
//	  - logout                      - drop the session and clear local state
//
// Any errors returned by command handlers are printed here; handlers do
// their own result output. This keeps the REPL loop focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("anchor> %s ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]
		args := parts[1:]

		var err error
		switch cmd {
		case "help":
			if a.isVerified() {
				printlnFn("Available commands: status, attach, fetch, reconcile, watch, logout, exit")
			} else {
				printlnFn("Available commands: connect, login, status, exit")
			}

		case "connect":
			err = a.Connect(ctx)

		case "login":
			err = a.Login(ctx)

		case "status":
			err = a.Status(ctx)

		case "attach":
			err = a.Attach(ctx, args)

		case "fetch":
			err = a.Fetch(ctx, args)

		case "reconcile":
			err = a.Reconcile(ctx)

		case "watch":
			err = a.Watch(ctx)

		case "logout":
			err = a.Logout(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err.Error())
		}
	}
}
