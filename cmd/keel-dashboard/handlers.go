package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"
)

func splitHostPort(addr string) (string, string, error) {
	return net.SplitHostPort(addr)
}

func errBindHost(host string) error {
	return fmt.Errorf("refusing to bind non-loopback host %q: dashboard is read-only localhost HTTP only", host)
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	data := s.summary
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	if len(data) == 0 {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("# No summary published yet\n"))
		return
	}
	w.Write(data)
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	issues, err := s.handle.Engine.GetReady(ctx)
	writeJSON(w, issues, err)
}

func (s *server) handleBlocked(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	issues, err := s.handle.Engine.GetBlocked(ctx)
	writeJSON(w, issues, err)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	stats, err := s.handle.Engine.GetStats(ctx)
	writeJSON(w, stats, err)
}

func writeJSON(w http.ResponseWriter, v any, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}
