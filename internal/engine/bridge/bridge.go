// Package bridge implements engine.Runtime over a websocket connection to a
// bridge process running next to the engine sessions.
//
// Discovery dials {url}/sessions and sends {"op":"find"}; the bridge answers
// {"sessions":[...]}. A connection dials {url}/engine?session=NAME and then
// exchanges one JSON request and one JSON reply per call:
//
//	-> {"id":1,"op":"call","name":"sim","args":[...],"nargout":3}
//	<- {"id":1,"outputs":[...],"stdout":"...","error":{"kind":"...","message":"..."}}
//
// Closing a handle sends {"op":"disconnect"} followed by a normal closure.
package bridge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/matlock-dev/matlock/internal/engine"
	"github.com/matlock-dev/matlock/internal/errors"
	"github.com/matlock-dev/matlock/internal/logging"
)

const (
	opFind       = "find"
	opCall       = "call"
	opDisconnect = "disconnect"

	// readLimit bounds a single reply; simulation traces can be large.
	readLimit = 64 << 20

	closeTimeout = 5 * time.Second
)

type request struct {
	ID      uint64 `json:"id,omitempty"`
	Op      string `json:"op"`
	Name    string `json:"name,omitempty"`
	Args    []any  `json:"args,omitempty"`
	Nargout int    `json:"nargout,omitempty"`
}

type reply struct {
	ID       uint64     `json:"id,omitempty"`
	Sessions []string   `json:"sessions,omitempty"`
	Outputs  []any      `json:"outputs,omitempty"`
	Stdout   string     `json:"stdout,omitempty"`
	Error    *wireError `json:"error,omitempty"`
}

type wireError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Runtime dials a bridge for every discovery and connection.
type Runtime struct {
	baseURL    *url.URL
	httpClient *http.Client
	header     http.Header
	logger     *logging.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithHTTPClient sets the client used for the websocket handshake.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Runtime) {
		r.httpClient = c
	}
}

// WithHeader adds a header to every handshake, e.g. an auth token.
func WithHeader(key, value string) Option {
	return func(r *Runtime) {
		r.header.Set(key, value)
	}
}

// WithLogger sets the Runtime's logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runtime) {
		r.logger = l
	}
}

// New returns a Runtime for the bridge at rawURL. http and https URLs are
// dialed as ws and wss.
func New(rawURL string, opts ...Option) (*Runtime, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid bridge url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("invalid bridge url %q: scheme must be ws, wss, http or https", rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid bridge url %q: missing host", rawURL)
	}

	r := &Runtime{
		baseURL: u,
		header:  make(http.Header),
		logger:  logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("bridge")
	return r, nil
}

// URL returns the websocket URL for path with query appended.
func (r *Runtime) URL(path string, query url.Values) string {
	u := *r.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = query.Encode()
	return u.String()
}

func (r *Runtime) dial(ctx context.Context, path string, query url.Values) (*websocket.Conn, error) {
	target := r.URL(path, query)
	conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPClient: r.httpClient,
		HTTPHeader: r.header,
	})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", errors.ErrRuntimeUnavailable, target, err)
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

// FindSessions implements engine.Runtime.
func (r *Runtime) FindSessions(ctx context.Context) ([]string, error) {
	conn, err := r.dial(ctx, "/sessions", nil)
	if err != nil {
		return nil, err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := wsjson.Write(ctx, conn, request{Op: opFind}); err != nil {
		return nil, fmt.Errorf("%w: send find: %w", errors.ErrRuntimeUnavailable, err)
	}
	var rep reply
	if err := wsjson.Read(ctx, conn, &rep); err != nil {
		return nil, fmt.Errorf("%w: read sessions: %w", errors.ErrRuntimeUnavailable, err)
	}
	if rep.Error != nil {
		return nil, &engine.CallError{Kind: rep.Error.Kind, Message: rep.Error.Message}
	}

	r.logger.Debug("sessions found", "count", len(rep.Sessions))
	return rep.Sessions, nil
}

// Connect implements engine.Runtime.
func (r *Runtime) Connect(ctx context.Context, session string) (engine.Handle, error) {
	query := url.Values{}
	if session != "" {
		query.Set("session", session)
	}

	conn, err := r.dial(ctx, "/engine", query)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("engine handle opened", "session", session)
	return &Handle{conn: conn, session: session, logger: r.logger.WithSession(session)}, nil
}

// Handle is an engine.Handle backed by one websocket. Calls are serialized.
type Handle struct {
	conn    *websocket.Conn
	session string
	logger  *logging.Logger

	mu     sync.Mutex
	nextID uint64
	closed bool
}

// Call implements engine.Handle.
func (h *Handle) Call(ctx context.Context, name string, args []any, nargout int) (engine.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return engine.Result{}, errors.NewSessionError("handle is closed", errors.ErrNotConnected).
			WithSession(h.session)
	}

	h.nextID++
	id := h.nextID
	req := request{ID: id, Op: opCall, Name: name, Args: args, Nargout: nargout}
	if err := wsjson.Write(ctx, h.conn, req); err != nil {
		return engine.Result{}, fmt.Errorf("send %s: %w", name, err)
	}

	var rep reply
	if err := wsjson.Read(ctx, h.conn, &rep); err != nil {
		return engine.Result{}, fmt.Errorf("read %s reply: %w", name, err)
	}
	if rep.ID != id {
		return engine.Result{}, fmt.Errorf("bridge protocol error: reply id %d for request %d", rep.ID, id)
	}
	if rep.Error != nil {
		return engine.Result{}, &engine.CallError{
			Kind:    rep.Error.Kind,
			Message: rep.Error.Message,
			Stdout:  rep.Stdout,
		}
	}

	return engine.Result{Outputs: rep.Outputs, Stdout: rep.Stdout}, nil
}

// Close implements engine.Handle. It tells the bridge to disconnect from the
// session and closes the websocket.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, h.conn, request{Op: opDisconnect}); err != nil {
		h.logger.Debug("disconnect message not delivered", "error", err)
	}

	if err := h.conn.Close(websocket.StatusNormalClosure, "disconnect"); err != nil {
		return fmt.Errorf("close engine connection: %w", err)
	}
	return nil
}
