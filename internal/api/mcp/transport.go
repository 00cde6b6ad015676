// transport.go provides the StdioTransport that wires a Server to an MCP
// client via line-delimited JSON-RPC 2.0 over stdin/stdout, adapted from
// the teacher's internal/api/mcp.StdioTransport.
//
// Protocol rules (must be followed exactly):
//   - Each JSON-RPC request arrives as one newline-terminated line on stdin.
//   - Each JSON-RPC response is written as one newline-terminated line to
//     stdout.
//   - ALL diagnostic output goes to stderr; any stray byte on stdout
//     corrupts the protocol framing.
package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/scrypster/arbor/internal/gate"
)

// StdioTransport reads line-delimited JSON-RPC 2.0 requests from an
// io.Reader and writes responses to an io.Writer.
type StdioTransport struct {
	server *Server
	cred   gate.Credential
	in     io.Reader
	out    io.Writer
	logger *log.Logger
}

// NewStdioTransport constructs a StdioTransport. cred is the credential
// presented for every request on this connection — a local stdio MCP
// session authenticates once, at process start, not per call.
func NewStdioTransport(srv *Server, cred gate.Credential, in io.Reader, out io.Writer) *StdioTransport {
	return &StdioTransport{
		server: srv,
		cred:   cred,
		in:     in,
		out:    out,
		logger: log.New(os.Stderr, "arbor-mcp: ", log.LstdFlags),
	}
}

// Serve processes requests until stdin is closed or ctx is cancelled.
func (t *StdioTransport) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(t.in)
	const maxBuf = 4 * 1024 * 1024
	buf := make([]byte, maxBuf)
	scanner.Buffer(buf, maxBuf)

	for {
		select {
		case <-ctx.Done():
			t.logger.Println("context cancelled, shutting down")
			return ctx.Err()
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				t.logger.Printf("stdin scanner error: %v", err)
				return fmt.Errorf("stdin scanner: %w", err)
			}
			t.logger.Println("stdin closed, shutting down")
			return nil
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := t.server.HandleRequest(ctx, line, t.cred)
		if err := t.writeResponse(resp); err != nil {
			t.logger.Printf("write error: %v", err)
			return fmt.Errorf("write response: %w", err)
		}

		select {
		case <-ctx.Done():
			t.logger.Println("context cancelled after handler, shutting down")
			return ctx.Err()
		default:
		}
	}
}

func (t *StdioTransport) writeResponse(resp []byte) error {
	_, err := fmt.Fprintf(t.out, "%s\n", resp)
	return err
}
