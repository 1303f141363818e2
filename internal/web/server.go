// Package web serves the read-only status endpoints: health, the latest
// cycle summary and the treasury net flow.
package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/driftline/ate/internal/engine"
	"github.com/driftline/ate/internal/logger"
	"github.com/driftline/ate/internal/state"
	"github.com/driftline/ate/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer handles HTTP requests for engine status data
type WebServer struct {
	router *mux.Router
	addr   string
	engine *engine.Engine
}

// NewWebServer creates a new web server instance
func NewWebServer(addr string, eng *engine.Engine) *WebServer {
	if addr == "" {
		addr = ":8080"
	}

	server := &WebServer{
		router: mux.NewRouter(),
		addr:   addr,
		engine: eng,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/cycles/latest", ws.handleGetLatestCycle).Methods("GET")
	api.HandleFunc("/treasury/netflow", ws.handleGetNetFlow).Methods("GET")
	api.HandleFunc("/portfolio/summary", ws.handleGetPortfolioSummary).Methods("GET")

	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("addr", ws.addr).Msg("Starting web server")

	server := &http.Server{
		Addr:         ws.addr,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	}
	if state.DB != nil {
		if err := state.TestDBConnection(); err != nil {
			health["status"] = "degraded"
			health["database_error"] = err.Error()
		}
	}
	st := ws.engine.State()
	if st.LastCycleAt != nil {
		health["last_cycle_at"] = st.LastCycleAt
		health["cycle_counter"] = st.CycleCounter
	}
	ws.writeJSON(w, health)
}

func (ws *WebServer) handleGetLatestCycle(w http.ResponseWriter, r *http.Request) {
	report := ws.engine.LastReport
	if report == nil && state.DB != nil {
		var err error
		report, err = state.LatestCycleSummary()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	if report == nil {
		http.Error(w, "no cycles have run yet", http.StatusNotFound)
		return
	}
	ws.writeJSON(w, report)
}

// handleGetNetFlow reports deposits minus redemptions straight from the
// treasury refs, without loading event bodies.
func (ws *WebServer) handleGetNetFlow(w http.ResponseWriter, r *http.Request) {
	treasury := &ws.engine.State().Sync.Treasury
	deposits := 0
	redemptions := 0
	for _, ref := range treasury.Refs {
		switch ref.Cause {
		case types.CauseDeposit:
			deposits++
		case types.CauseRedemption:
			redemptions++
		}
	}
	ws.writeJSON(w, map[string]interface{}{
		"net_flow_usd":       treasury.NetFlow(),
		"deposits":           deposits,
		"redemptions":        redemptions,
		"events":             len(treasury.Refs),
		"last_block_scanned": treasury.LastBlockScanned,
		"last_updated_at":    treasury.LastUpdatedAt,
	})
}

func (ws *WebServer) handleGetPortfolioSummary(w http.ResponseWriter, r *http.Request) {
	ledger := ws.engine.State().Portfolio
	reserves := map[string]string{}
	for _, reserve := range ledger.Reserves {
		reserves[reserve.Asset.Symbol] = reserve.Quantity.String()
	}
	ws.writeJSON(w, map[string]interface{}{
		"reserves":       reserves,
		"open_positions": len(ledger.OpenPositions()),
		"positions":      len(ledger.Positions),
		"trades":         len(ledger.Trades),
	})
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Handled request")
	})
}
