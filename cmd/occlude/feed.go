package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/1broseidon/occlude/internal/bridge"
	"github.com/1broseidon/occlude/internal/occlusion"
	"github.com/1broseidon/occlude/internal/runtimepath"
)

const maxFeedLine = 4 << 20

func runFeed(args []string) int {
	fs := newFlagSet("feed", "feed [--socket PATH] [FILE]",
		"Read report batches, one JSON object per line, from FILE or stdin and\n"+
			"stream them to the daemon's report bridge.\n\n"+
			`Example line: {"timestamp":120,"reports":[{"key":"card","rect":{"left":0,"top":0,"right":40,"bottom":40},"visible":true}]}`)
	socket := fs.String("socket", "", "Bridge socket path (default: $XDG_RUNTIME_DIR/occlude-bridge.sock)")
	timeout := fs.Duration("timeout", 2*time.Second, "Connect and write timeout")
	if code := parseFlags(fs, args); code >= 0 {
		return code
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(os.Stderr, "feed takes at most one file")
		fs.Usage()
		return 2
	}

	var in io.Reader = os.Stdin
	if fs.NArg() == 1 && fs.Arg(0) != "-" {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer f.Close()
		in = f
	}

	path := *socket
	if path == "" {
		var err error
		if path, err = runtimepath.BridgeSocketPath(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	sender, err := bridge.Dial(path, *timeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer sender.Close()

	n, err := feedBatches(in, sender.Send)
	if err != nil {
		fmt.Fprintf(os.Stderr, "after %d batches: %v\n", n, err)
		return 1
	}
	fmt.Printf("sent %d batches\n", n)
	return 0
}

// feedBatches decodes JSON-lines batches from r and hands each to send in
// order. Blank lines are skipped.
func feedBatches(r io.Reader, send func(occlusion.Batch) error) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxFeedLine)

	sent := 0
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		var batch occlusion.Batch
		if err := json.Unmarshal(data, &batch); err != nil {
			return sent, fmt.Errorf("line %d: %w", line, err)
		}
		if err := send(batch); err != nil {
			return sent, fmt.Errorf("line %d: %w", line, err)
		}
		sent++
	}
	if err := scanner.Err(); err != nil {
		return sent, err
	}
	return sent, nil
}
