// Command keel-dashboard serves the rendered context summary and a
// small set of read-only JSON endpoints over localhost-only HTTP,
// refreshing its in-memory view whenever the summary file is
// republished, rather than re-rendering on every request.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/filigree-dev/keel"
)

type server struct {
	handle *keel.Handle

	mu      sync.RWMutex
	summary []byte
}

func main() {
	projectDir := flag.String("project", ".", "project directory (contains .filigree/)")
	addr := flag.String("addr", "127.0.0.1:4850", "listen address; must stay on 127.0.0.1")
	flag.Parse()

	if err := requireLoopback(*addr); err != nil {
		log.Fatalf("keel-dashboard: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	p := keel.DefaultProject(*projectDir)
	h, err := keel.OpenReadOnly(ctx, p)
	if err != nil {
		log.Fatalf("keel-dashboard: open project: %v", err)
	}
	defer h.Close()

	srv := &server{handle: h}
	srv.reload()

	go srv.watch(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.handleIndex)
	mux.HandleFunc("/api/ready", srv.handleReady)
	mux.HandleFunc("/api/blocked", srv.handleBlocked)
	mux.HandleFunc("/api/stats", srv.handleStats)

	httpServer := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("keel-dashboard: serving %s on http://%s", p.SummaryPath, *addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("keel-dashboard: %v", err)
	}
}

// requireLoopback rejects any bind address that isn't localhost — the
// dashboard never exposes write access, but it still must not listen
// beyond 127.0.0.1 per the "no network exposure beyond localhost
// read-only HTTP" non-goal.
func requireLoopback(addr string) error {
	host, _, err := splitHostPort(addr)
	if err != nil {
		return err
	}
	switch host {
	case "127.0.0.1", "localhost", "::1", "":
		return nil
	default:
		return errBindHost(host)
	}
}

// reload re-reads the published summary file into memory. Called once
// at startup and again each time the watcher observes a republish.
func (s *server) reload() {
	data, err := os.ReadFile(s.handle.Project.SummaryPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("keel-dashboard: read summary: %v", err)
		}
		return
	}
	s.mu.Lock()
	s.summary = data
	s.mu.Unlock()
}

// watch follows the project's .filigree directory for the summary
// file's atomic rename-into-place, debouncing bursts the same way a
// republish-then-reload loop would otherwise thrash on.
func (s *server) watch(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("keel-dashboard: create watcher: %v", err)
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(s.handle.Project.SummaryPath)
	if err := watcher.Add(dir); err != nil {
		log.Printf("keel-dashboard: watch %s: %v", dir, err)
		return
	}

	target := filepath.Base(s.handle.Project.SummaryPath)
	var debounce *time.Timer
	debounceDelay := 200 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, s.reload)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("keel-dashboard: watcher error: %v", err)
		}
	}
}
