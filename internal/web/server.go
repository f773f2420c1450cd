// Package web serves the valve-mixer status page and its JSON feed.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/sweeney/valve-mixer/internal/status"
)

const readHeaderTimeout = 5 * time.Second

// Server renders tracker snapshots over HTTP. It only reads; the valves are
// controlled from the serial link alone.
type Server struct {
	srv     *http.Server
	tracker *status.Tracker
}

// New returns a Server bound to addr. Call ListenAndServe or Serve to start it.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler routes the page at / and /index.html and the feed at /index.json.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", readOnly(s.page))
	mux.HandleFunc("/index.json", readOnly(s.feed))
	return mux
}

func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// readOnly rejects anything but GET and HEAD.
func readOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/", "/index.html":
	default:
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.tracker.Snapshot())
}

// feed is polled by the page every second, so it must not be cached.
func (s *Server) feed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}
