package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/schaermu/packsync/internal/activation"
	"github.com/schaermu/packsync/internal/config"
	packsync "github.com/schaermu/packsync/internal/sync"
)

// GitHubReleaseEvent represents the relevant fields from a GitHub release webhook
type GitHubReleaseEvent struct {
	Action  string `json:"action"`
	Release struct {
		TagName    string `json:"tag_name"`
		Draft      bool   `json:"draft"`
		Prerelease bool   `json:"prerelease"`
	} `json:"release"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// Runner performs one sync run
type Runner interface {
	Run(ctx context.Context) (*packsync.Result, error)
}

// Server triggers syncs from GitHub release webhooks and an optional poll timer
type Server struct {
	cfg          *config.Config
	runner       Runner
	logger       *slog.Logger
	secret       []byte
	pollInterval time.Duration
	syncMu       sync.Mutex // guards syncRunning and syncPending
	syncRunning  bool       // whether a sync is currently in progress
	syncPending  bool       // whether another sync is needed after the current one
	debounce     *debouncer
}

// debouncer implements debouncing for webhook events
type debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	delay    time.Duration
	callback func()
}

// NewServer creates a new webhook server. The secret is only read when a
// listen address is configured.
func NewServer(cfg *config.Config, runner Runner, logger *slog.Logger) (*Server, error) {
	if err := cfg.ValidateServe(); err != nil {
		return nil, fmt.Errorf("invalid serve configuration: %w", err)
	}

	s := &Server{
		cfg:          cfg,
		runner:       runner,
		logger:       logger,
		pollInterval: cfg.PollInterval(),
		debounce:     &debouncer{delay: 2 * time.Second},
	}

	if cfg.Serve.ListenAddr != "" {
		secret, err := os.ReadFile(cfg.Serve.GitHubWebhookSecretFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read webhook secret: %w", err)
		}
		s.secret = []byte(strings.TrimSpace(string(secret)))
		if len(s.secret) == 0 {
			return nil, fmt.Errorf("webhook secret file %s is empty", cfg.Serve.GitHubWebhookSecretFile)
		}
	}

	return s, nil
}

// Start performs an initial sync, then serves webhooks and polls until ctx
// is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("performing initial sync")
	s.performSync(ctx)

	if s.pollInterval > 0 {
		go s.poll(ctx)
	}

	if s.cfg.Serve.ListenAddr == "" {
		<-ctx.Done()
		s.logger.Info("stopping poller")
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebhook)

	server := &http.Server{
		Addr:              s.cfg.Serve.ListenAddr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	ln, err := s.listen()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("webhook server starting", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down webhook server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// listen prefers a socket passed in by systemd over binding listen_addr
func (s *Server) listen() (net.Listener, error) {
	ln, err := activation.Listener(s.cfg.Serve.SocketName)
	if err != nil {
		return nil, fmt.Errorf("socket activation: %w", err)
	}
	if ln != nil {
		s.logger.Info("using socket activated listener", "addr", ln.Addr().String())
		return ln, nil
	}

	ln, err = net.Listen("tcp", s.cfg.Serve.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.cfg.Serve.ListenAddr, err)
	}
	return ln, nil
}

// poll triggers a sync every poll interval
func (s *Server) poll(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.logger.Info("polling for releases", "interval", s.pollInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.performSync(ctx)
		}
	}
}

// handleWebhook handles incoming GitHub webhook requests
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.logger.Warn("rejecting non-POST request", "method", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "application/json" {
		s.logger.Warn("rejecting request with invalid content type", "content_type", contentType)
		http.Error(w, "Invalid content type", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MB limit
	if err != nil {
		s.logger.Error("failed to read request body", "error", err)
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}
	defer func() {
		_ = r.Body.Close()
	}()

	signature := r.Header.Get("X-Hub-Signature-256")
	if !s.verifySignature(body, signature) {
		s.logger.Warn("rejecting request with invalid signature")
		http.Error(w, "Invalid signature", http.StatusForbidden)
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	s.logger.Info("received webhook", "event", eventType)

	if !contains(s.cfg.Serve.AllowedEventTypes, eventType) {
		s.logger.Info("ignoring disallowed event type", "event", eventType)
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "Event type not configured for sync\n")
		return
	}

	var event GitHubReleaseEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.logger.Error("failed to parse webhook payload", "error", err)
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	if !contains(s.cfg.Serve.AllowedActions, event.Action) {
		s.logger.Info("ignoring disallowed release action", "action", event.Action)
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "Action not configured for sync\n")
		return
	}

	if event.Release.Draft {
		s.logger.Info("ignoring draft release", "tag", event.Release.TagName)
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "Draft releases are not synced\n")
		return
	}

	s.logger.Info("webhook accepted",
		"event", eventType,
		"action", event.Action,
		"tag", event.Release.TagName,
		"repo", event.Repository.FullName)

	s.debounce.trigger(func() {
		s.performSync(context.Background())
	})

	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "Sync triggered\n")
}

// verifySignature verifies the GitHub webhook signature
func (s *Server) verifySignature(body []byte, signature string) bool {
	// GitHub signature format: sha256=<hex>
	hexSig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok || len(s.secret) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(hexSig), []byte(expected))
}

// contains reports whether v is in allowed; an empty list allows everything
func contains(allowed []string, v string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// performSync executes the sync operation with single-flight semantics.
// If a sync is already in progress, at most one additional run is queued;
// further concurrent requests are dropped.
func (s *Server) performSync(ctx context.Context) {
	s.syncMu.Lock()
	if s.syncRunning {
		s.syncPending = true
		s.syncMu.Unlock()
		s.logger.Info("sync already in progress, queuing pending re-run")
		return
	}
	s.syncRunning = true
	s.syncMu.Unlock()

	for {
		res, err := s.runner.Run(ctx)
		switch {
		case err != nil:
			s.logger.Error("sync failed", "error", err)
		case res.NotNeeded:
			s.logger.Info("pack already up to date", "version", res.PreviousVersion)
		case res.Failed():
			s.logger.Warn("sync finished with failures", "run_id", res.RunID, "failures", len(res.Failures))
		default:
			s.logger.Info("sync completed", "run_id", res.RunID, "version", res.InstalledVersion)
		}

		s.syncMu.Lock()
		if !s.syncPending {
			s.syncRunning = false
			s.syncMu.Unlock()
			break
		}
		s.syncPending = false
		s.syncMu.Unlock()

		s.logger.Info("re-running sync due to pending request")
	}
}

// trigger schedules the callback to run after the debounce delay
func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		cb := d.callback
		d.mu.Unlock()

		if cb != nil {
			cb()
		}
	})
}
