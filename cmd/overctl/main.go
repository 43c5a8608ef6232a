// overctl is the companion CLI for overseerd: a thin line-oriented client
// of the local IPC transport (internal/transport/ipc), plus a `watch`
// subcommand that upgrades to the transport's websocket live-feed
// (internal/transport/ipc.WatchServer).
//
// Grounded on the teacher's cmd/maestro bootstrap CLIs: a single flag.Parse,
// one dial, one request/response round trip, printed to stdout — no TUI,
// no interactive prompts (golang.org/x/term is explicitly dropped,
// SPEC_FULL.md §3).
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	socketPath := flag.String("socket", "/tmp/overseer.sock", "path to overseerd's IPC socket")
	timeout := flag.Duration("timeout", 5*time.Second, "dial/round-trip timeout")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: overctl [-socket path] <list|approve|reject|resume|mode|steer|task|watch> [args...]")
		os.Exit(2)
	}

	if args[0] == "watch" {
		if err := runWatch(*socketPath); err != nil {
			fmt.Fprintf(os.Stderr, "overctl: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runCommand(*socketPath, *timeout, strings.Join(args, " ")); err != nil {
		fmt.Fprintf(os.Stderr, "overctl: %v\n", err)
		os.Exit(1)
	}
}

// runCommand dials the line-oriented IPC socket, writes one command line,
// reads one JSON response line, and prints it.
func runCommand(socketPath string, timeout time.Duration, cmdLine string) error {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", socketPath, err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(timeout))

	if _, err := fmt.Fprintln(conn, cmdLine); err != nil {
		return fmt.Errorf("write command: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		return fmt.Errorf("no response")
	}

	var pretty map[string]interface{}
	if err := json.Unmarshal(scanner.Bytes(), &pretty); err != nil {
		fmt.Println(scanner.Text())
		return nil
	}
	encoded, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(encoded))
	return nil
}

// runWatch dials overseerd's watch socket (the same base path with a
// ".watch" suffix, matching cmd/overseerd's wiring) over a websocket
// upgrade and prints each session snapshot as it arrives until interrupted.
func runWatch(socketPath string) error {
	watchSocket := socketPath + ".watch"

	dialer := websocket.Dialer{
		NetDial: func(_, _ string) (net.Conn, error) {
			return net.Dial("unix", watchSocket)
		},
		HandshakeTimeout: 5 * time.Second,
	}

	conn, _, err := dialer.Dial("ws://unix/watch", http.Header{})
	if err != nil {
		return fmt.Errorf("dial watch socket %s: %w", watchSocket, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		_ = conn.Close()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read watch frame: %w", err)
		}
		fmt.Println(string(data))
	}
}
