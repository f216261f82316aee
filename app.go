package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"loopin/server/logging"
)

// Run serves the realtime layer until the context is cancelled or the
// listener fails. The stores are injected so the caller picks the backing
// implementation; cmd/server wires the bundled sqlite store.
func Run(ctx context.Context, cfg Config, world WorldStateStore, safePoints SafePointStore, inventory InventoryStore) error {
	publisher := logging.NewConsolePublisher(os.Stdout)
	telemetry := newTelemetryCounters()

	engine := NewHTTPRulesEngine(cfg.RulesEngineURL, cfg.RulesTimeout)
	rules := NewRulesEngineClient(engine, cfg.RetryBaseDelay, publisher, telemetry)

	hub := NewHub(world, safePoints, inventory, rules, HubConfig{
		Publisher:     publisher,
		PowerupTTL:    cfg.PowerupTTL,
		SweepInterval: cfg.SweepInterval,
		telemetry:     telemetry,
	})

	stop := make(chan struct{})
	go hub.RunAbilitySweeper(stop)
	defer close(stop)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/diagnostics", func(w http.ResponseWriter, r *http.Request) {
		payload := struct {
			Status     string            `json:"status"`
			ServerTime int64             `json:"serverTime"`
			Telemetry  telemetrySnapshot `json:"telemetry"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			Telemetry:  hub.TelemetrySnapshot(),
		}
		data, err := json.Marshal(payload)
		if err != nil {
			http.Error(w, "failed to encode", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	mux.HandleFunc("/ws/game", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("upgrade failed: %v", err)
			return
		}
		go hub.HandleConnection(conn)
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("server listening on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
