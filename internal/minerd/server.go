package minerd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

const (
	codeInvalidJSON = 23

	requestDeadline = 10 * time.Second
)

// Handler processes one cgminer API request.
type Handler interface {
	Handle(context.Context, Request) any
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) any

func (f HandlerFunc) Handle(ctx context.Context, req Request) any {
	return f(ctx, req)
}

// Serve accepts API clients until context cancellation or listener close.
// Each connection carries one request and one NUL-terminated reply.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accept API connection: %w", err)
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()
			_ = c.SetDeadline(time.Now().Add(requestDeadline))

			reader := bufio.NewReader(c)
			line, err := reader.ReadBytes('\n')
			if err != nil && len(line) == 0 {
				return
			}

			var req Request
			if err := json.Unmarshal(line, &req); err != nil {
				_ = WriteResponse(c, ErrorResponse(time.Now(), "cgproxy", codeInvalidJSON, "Invalid JSON"))
				return
			}

			_ = WriteResponse(c, handler.Handle(ctx, req))
		}(conn)
	}
}

// WriteResponse encodes v as JSON and appends the NUL terminator.
func WriteResponse(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	payload = append(payload, 0)
	_, err = w.Write(payload)
	return err
}
