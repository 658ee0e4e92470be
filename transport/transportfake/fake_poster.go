package transportfake

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-auth-guard/transport"
)

// Call records one Post.
type Call struct {
	URL  string
	Body json.RawMessage
}

// HandlerFunc produces the response for a URL.
type HandlerFunc func(body json.RawMessage) (any, error)

// Poster answers Posts from per-URL handlers and records every call.
type Poster struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	calls    []Call
}

var _ transport.Poster = (*Poster)(nil)

func New() *Poster {
	return &Poster{handlers: make(map[string]HandlerFunc)}
}

// Handle registers h for url, replacing any previous handler.
func (p *Poster) Handle(url string, h HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[url] = h
}

// Respond registers a fixed response for url.
func (p *Poster) Respond(url string, response any) {
	p.Handle(url, func(json.RawMessage) (any, error) { return response, nil })
}

// Fail makes every Post to url return err.
func (p *Poster) Fail(url string, err error) {
	p.Handle(url, func(json.RawMessage) (any, error) { return nil, err })
}

func (p *Poster) Post(_ context.Context, url string, body any) (json.RawMessage, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.calls = append(p.calls, Call{URL: url, Body: encoded})
	h, ok := p.handlers[url]
	p.mu.Unlock()

	if !ok {
		return nil, &transport.HTTPError{StatusCode: 404, Status: "404 Not Found", Body: []byte(fmt.Sprintf(`{"message":"no handler for %s"}`, url))}
	}
	resp, err := h(encoded)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Calls returns the calls made so far.
func (p *Poster) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// CallsTo returns the calls made to url.
func (p *Poster) CallsTo(url string) []Call {
	var out []Call
	for _, c := range p.Calls() {
		if c.URL == url {
			out = append(out, c)
		}
	}
	return out
}

func (p *Poster) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}
