// Package httpapi exposes a registry of named queries over HTTP: each
// query turns request variables into a Fetch value, runs it through the
// executor, and reports the result alongside the round diagnostics the run
// produced.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gitter-badger/fetch-2/internal/eventbus"
	"github.com/gitter-badger/fetch-2/internal/events"
	"github.com/gitter-badger/fetch-2/internal/reqid"
	round "github.com/gitter-badger/fetch-2/internal/round"
)

// QueryFunc builds and runs a Fetch value from request variables, returning
// its data and the environment the run produced.
type QueryFunc func(ctx context.Context, variables json.RawMessage) (data any, env round.Env, err error)

// Handler is an http.Handler that dispatches POST /run requests to a
// registered QueryFunc by name.
type Handler struct {
	registry *queryRegistry
	opt      Options
}

type queryRegistry struct {
	queries map[string]QueryFunc
}

// Options configures a Handler.
type Options struct {
	// Timeout sets a default timeout if the incoming request context has
	// none. 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses.
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// Option configures Options.
type Option func(*Options)

func WithTimeout(d time.Duration) Option      { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                      { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option         { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}

// New creates an empty Handler. Call Register to add queries before
// serving.
func New(opts ...Option) *Handler {
	op := Options{Timeout: 10 * time.Second}
	for _, f := range opts {
		f(&op)
	}
	return &Handler{registry: &queryRegistry{queries: map[string]QueryFunc{}}, opt: op}
}

// Register adds a named query, replacing any query previously registered
// under the same name.
func (h *Handler) Register(name string, fn QueryFunc) {
	h.registry.queries[name] = fn
}

type request struct {
	Query     string          `json:"query"`
	Variables json.RawMessage `json:"variables,omitempty"`
}

type roundView struct {
	Kind            string `json:"kind"`
	SourceName      string `json:"sourceName,omitempty"`
	ServedFromCache bool   `json:"servedFromCache"`
}

type response struct {
	Data   any         `json:"data,omitempty"`
	Errors []errorView `json:"errors,omitempty"`
	Rounds []roundView `json:"rounds,omitempty"`
}

type errorView struct {
	Message string `json:"message"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, _ = reqid.NewContext(ctx)
	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Duration: time.Since(start)})
	}()

	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, response{Errors: []errorView{{Message: "method not allowed"}}}, h.opt.Pretty)
		return
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	req, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != nil {
		status = http.StatusBadRequest
		writeJSON(w, status, response{Errors: []errorView{{Message: berr.Error()}}}, h.opt.Pretty)
		return
	}

	fn, ok := h.registry.queries[req.Query]
	if !ok {
		status = http.StatusNotFound
		writeJSON(w, status, response{Errors: []errorView{{Message: "unknown query: " + req.Query}}}, h.opt.Pretty)
		return
	}

	data, env, err := fn(ctx, req.Variables)
	res := response{Data: data, Rounds: roundViews(env)}
	if err != nil {
		res.Errors = []errorView{{Message: err.Error()}}
	}
	writeJSON(w, status, res, h.opt.Pretty)
}

func roundViews(env round.Env) []roundView {
	if env.Log == nil {
		return nil
	}
	rounds := env.Log.Rounds()
	out := make([]roundView, len(rounds))
	for i, rd := range rounds {
		out[i] = roundView{
			Kind:            kindName(rd.Description.Kind),
			SourceName:      rd.Description.SourceName,
			ServedFromCache: rd.ServedFromCache,
		}
	}
	return out
}

func kindName(k round.DescriptionKind) string {
	switch k {
	case round.OneRound:
		return "one"
	case round.ManyRound:
		return "many"
	case round.ConcurrentRound:
		return "concurrent"
	default:
		return "unknown"
	}
}

func parseRequest(r *http.Request, maxBody int64) (request, error) {
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return request{}, errBadRequest{"failed to read body"}
	}
	defer r.Body.Close()
	if maxBody > 0 && int64(len(body)) > maxBody {
		return request{}, errBadRequest{"body too large"}
	}
	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		return request{}, errBadRequest{"invalid JSON"}
	}
	if req.Query == "" {
		return request{}, errBadRequest{"missing 'query'"}
	}
	return req, nil
}

type errBadRequest struct{ msg string }

func (e errBadRequest) Error() string { return e.msg }

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
