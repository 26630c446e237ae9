// Package cgminer implements the cgminer API client: one TCP connection per
// command, a newline-terminated JSON request, and a NUL-terminated JSON reply.
package cgminer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rbright/cgproxy/internal/fsm"
)

const (
	DefaultPort           = 4028
	DefaultConnectTimeout = 10 * time.Second
	DefaultCommandTimeout = 10 * time.Second

	readChunkSize = 4096
	tracerName    = "github.com/rbright/cgproxy/internal/cgminer"
)

// aLongTimeAgo is a deadline that has always passed; it unblocks pending I/O.
var aLongTimeAgo = time.Unix(1, 0)

// Config describes one daemon endpoint and its per-phase bounds.
type Config struct {
	Host           string
	Port           int
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	// MaxResponseBytes caps the response buffer; zero means unlimited.
	MaxResponseBytes int
}

// DialFunc opens a stream connection; net.Dialer.DialContext satisfies it.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Result summarizes one settled command for observers.
type Result struct {
	Command  string
	Verb     string
	Addr     string
	State    fsm.State
	Duration time.Duration
	Bytes    int
	Err      error
}

// Observer is notified once per SendCommand call after the exchange settles.
type Observer interface {
	ObserveCommand(Result)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Result)

func (f ObserverFunc) ObserveCommand(r Result) {
	f(r)
}

// Option customizes a Client.
type Option func(*Client)

// WithDialer replaces the TCP dialer.
func WithDialer(dial DialFunc) Option {
	return func(c *Client) {
		if dial != nil {
			c.dial = dial
		}
	}
}

// WithLogger enables per-command debug and failure logs.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithObserver registers a settled-command callback.
func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// Client sends commands to one daemon. It holds no connection state and is
// safe for concurrent use.
type Client struct {
	cfg      Config
	dial     DialFunc
	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer
}

// NewClient builds a client, filling unset timeouts with the defaults.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}

	dialer := &net.Dialer{}
	c := &Client{
		cfg:    cfg,
		dial:   dialer.DialContext,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective client configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Addr returns the daemon address in host:port form.
func (c *Client) Addr() string {
	return net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

// Connect opens a fresh connection to the daemon within the connect bound.
func (c *Client) Connect(ctx context.Context) (net.Conn, error) {
	conn, _, err := c.connect(ctx)
	return conn, err
}

// SendCommand performs one request/response exchange and returns the parsed
// JSON reply. The command string is sent verbatim, parameters included.
func (c *Client) SendCommand(ctx context.Context, command string) (any, error) {
	start := time.Now()
	verb := Verb(command)

	ctx, span := c.tracer.Start(ctx, "cgminer.command",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cgminer.command", verb),
			attribute.String("server.address", c.cfg.Host),
			attribute.Int("server.port", c.cfg.Port),
		),
	)

	x := &exchange{state: fsm.StateIdle}
	value, n, err := c.send(ctx, command, x)

	c.finish(span, Result{
		Command:  command,
		Verb:     verb,
		Addr:     c.Addr(),
		State:    x.state,
		Duration: time.Since(start),
		Bytes:    n,
		Err:      err,
	})
	return value, err
}

func (c *Client) send(ctx context.Context, command string, x *exchange) (any, int, error) {
	frame, err := EncodeRequest(command)
	if err != nil {
		return nil, 0, err
	}

	x.fire(fsm.EventDial)
	conn, event, err := c.connect(ctx)
	x.fire(event)
	if err != nil {
		return nil, 0, err
	}

	raw, err := c.roundTrip(ctx, conn, frame, x)
	if err != nil {
		return nil, len(raw), err
	}

	value, err := DecodeResponse(CleanResponse(raw))
	if err != nil {
		x.fire(fsm.EventParseFail)
		return nil, len(raw), err
	}
	x.fire(fsm.EventResponse)
	return value, len(raw), nil
}

func (c *Client) connect(ctx context.Context) (net.Conn, fsm.Event, error) {
	addr := c.Addr()
	if err := validateAddress(c.cfg.Host, c.cfg.Port); err != nil {
		return nil, fsm.EventDialFail, &ConnectionError{Addr: addr, Err: err}
	}
	if ctx.Err() != nil {
		return nil, fsm.EventCancel, cancelled(ctx)
	}

	// Cancelling dialCtx aborts a half-open socket, so the timeout path never leaks one.
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, err := c.dial(dialCtx, "tcp", addr)
	if err == nil {
		return conn, fsm.EventDialOK, nil
	}

	switch {
	case ctx.Err() != nil:
		return nil, fsm.EventCancel, cancelled(ctx)
	case errors.Is(dialCtx.Err(), context.DeadlineExceeded), isTimeout(err):
		return nil, fsm.EventDialTimeout, fmt.Errorf("%w after %s", ErrConnectionTimeout, c.cfg.ConnectTimeout)
	default:
		return nil, fsm.EventDialFail, &ConnectionError{Addr: addr, Err: err}
	}
}

// roundTrip writes frame and reads until a chunk carries the terminator.
// The connection is closed before it returns.
func (c *Client) roundTrip(ctx context.Context, conn net.Conn, frame []byte, x *exchange) ([]byte, error) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.cfg.CommandTimeout)); err != nil {
		x.fire(fsm.EventTransport)
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(aLongTimeAgo)
	})
	defer stop()

	if _, err := conn.Write(frame); err != nil {
		return nil, c.ioFailure(ctx, "write command", err, x)
	}
	x.fire(fsm.EventSent)

	var response []byte
	chunk := make([]byte, readChunkSize)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			response = append(response, chunk[:n]...)
			// Earlier chunks held no terminator, so only the new one needs a scan.
			if Complete(chunk[:n]) {
				return response, nil
			}
			if c.cfg.MaxResponseBytes > 0 && len(response) > c.cfg.MaxResponseBytes {
				x.fire(fsm.EventTransport)
				return response, ErrResponseTooLarge
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) && ctx.Err() == nil {
				x.fire(fsm.EventTransport)
				return response, ErrIncompleteResponse
			}
			return response, c.ioFailure(ctx, "read response", err, x)
		}
	}
}

func (c *Client) ioFailure(ctx context.Context, op string, err error, x *exchange) error {
	switch {
	case ctx.Err() != nil:
		x.fire(fsm.EventCancel)
		return cancelled(ctx)
	case errors.Is(err, os.ErrDeadlineExceeded):
		x.fire(fsm.EventReadTimeout)
		return fmt.Errorf("%w after %s", ErrCommandTimeout, c.cfg.CommandTimeout)
	default:
		x.fire(fsm.EventTransport)
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (c *Client) finish(span trace.Span, res Result) {
	span.SetAttributes(
		attribute.String("cgminer.state", string(res.State)),
		attribute.Int("cgminer.response_bytes", res.Bytes),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	span.End()

	// The full command can carry pool credentials; only the verb is logged.
	if c.logger != nil {
		if res.Err != nil {
			c.logger.Warn("cgminer command failed",
				"command", res.Verb,
				"addr", res.Addr,
				"state", res.State,
				"duration_ms", res.Duration.Milliseconds(),
				"error", res.Err.Error(),
			)
		} else {
			c.logger.Debug("cgminer command complete",
				"command", res.Verb,
				"addr", res.Addr,
				"state", res.State,
				"duration_ms", res.Duration.Milliseconds(),
				"bytes", res.Bytes,
			)
		}
	}

	if c.observer != nil {
		c.observer.ObserveCommand(res)
	}
}

// exchange tracks the lifecycle state of one SendCommand call. Events come
// only from this file; an invalid one leaves the state unchanged.
type exchange struct {
	state fsm.State
}

func (x *exchange) fire(event fsm.Event) {
	if next, err := fsm.Transition(x.state, event); err == nil {
		x.state = next
	}
}

// Connect opens one connection to host:port with the default connect bound.
func Connect(ctx context.Context, host string, port int) (net.Conn, error) {
	return NewClient(Config{Host: host, Port: port}).Connect(ctx)
}

// SendCommand runs one exchange against host:port with default bounds.
func SendCommand(ctx context.Context, host string, port int, command string) (any, error) {
	return NewClient(Config{Host: host, Port: port}).SendCommand(ctx, command)
}

func validateAddress(host string, port int) error {
	if strings.TrimSpace(host) == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidAddress)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidAddress, port)
	}
	return nil
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
