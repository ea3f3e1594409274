package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/basket-engine/internal/engine"
	"github.com/elys-network/basket-engine/internal/ledger"
	"github.com/elys-network/basket-engine/internal/logger"
	"github.com/elys-network/basket-engine/internal/metrics"
	"github.com/elys-network/basket-engine/internal/state"
	"github.com/gorilla/mux"
)

var webLogger = logger.GetForComponent("web_server")

var (
	errInvalidAmount = errors.New("amount must be a non-negative integer")
	errQtyOutOfRange = errors.New("amount is out of range")
)

// WebServer exposes read-only basket data, quotes and receipt history over HTTP
type WebServer struct {
	router     *mux.Router
	handler    http.Handler
	port       string
	engine     *engine.Engine
	metrics    *metrics.Collector
	configName string
	started    time.Time
	srv        *http.Server
}

// NewWebServer creates a new web server instance. collector may be nil.
func NewWebServer(port string, eng *engine.Engine, collector *metrics.Collector, configName string) *WebServer {
	if port == "" {
		port = "8080"
	}
	if configName == "" {
		configName = "default"
	}

	server := &WebServer{
		router:     mux.NewRouter(),
		port:       port,
		engine:     eng,
		metrics:    collector,
		configName: configName,
		started:    time.Now(),
	}

	// Rebind after logger.Initialize has run.
	webLogger = logger.GetForComponent("web_server")

	server.setupRoutes()
	server.handler = collector.InstrumentHandler(server.router)
	server.srv = &http.Server{
		Addr:         ":" + port,
		Handler:      server.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	if ws.metrics != nil {
		ws.router.Handle("/metrics", ws.metrics.Handler()).Methods("GET")
	}

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/basket", ws.handleGetBasket).Methods("GET")
	api.HandleFunc("/bassets", ws.handleGetBassets).Methods("GET")
	api.HandleFunc("/bassets/{asset:.+}", ws.handleGetBasset).Methods("GET")
	api.HandleFunc("/cache", ws.handleGetCacheStates).Methods("GET")
	api.HandleFunc("/quote/mint", ws.handleQuoteMint).Methods("GET")
	api.HandleFunc("/quote/swap", ws.handleQuoteSwap).Methods("GET")
	api.HandleFunc("/quote/redeem", ws.handleQuoteRedeem).Methods("GET")
	api.HandleFunc("/quote/redeem-exact", ws.handleQuoteRedeemExact).Methods("GET")
	api.HandleFunc("/quote/redeem-proportional", ws.handleQuoteRedeemProportional).Methods("GET")
	api.HandleFunc("/receipts", ws.handleGetReceipts).Methods("GET")
	api.HandleFunc("/receipts/{id}", ws.handleGetReceipt).Methods("GET")
	api.HandleFunc("/summary", ws.handleGetSummary).Methods("GET")
	api.HandleFunc("/fees", ws.handleGetFeeMetrics).Methods("GET")
	api.HandleFunc("/parameters", ws.handleGetParameters).Methods("GET")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler returns the instrumented router.
func (ws *WebServer) Handler() http.Handler {
	return ws.handler
}

// Server returns the http.Server started by Start, for graceful shutdown.
func (ws *WebServer) Server() *http.Server {
	return ws.srv
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")
	return ws.srv.ListenAndServe()
}

// handleHealth reports engine, conservation and database health
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	basket := ws.engine.GetBasket()
	report, consErr := ws.engine.Conservation()
	hasErrors := consErr != nil

	dbStatus := "disabled"
	if state.DB != nil {
		dbStatus = "healthy"
		if err := state.TestDBConnection(); err != nil {
			dbStatus = "unhealthy"
			hasErrors = true
		}
	}

	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "basketd",
			"version": "1.0.0",
		},
		"basket_status": map[string]interface{}{
			"sequence":     basket.Sequence,
			"bassets":      len(basket.Bassets),
			"conserved":    consErr == nil,
			"difference":   report.Difference,
			"database":     dbStatus,
			"total_supply": basket.TotalSupply,
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}
	ws.writeJSONResponse(w, statusCode, response)
}

func (ws *WebServer) handleGetBasket(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.engine.GetBasket())
}

func (ws *WebServer) handleGetBassets(w http.ResponseWriter, r *http.Request) {
	bassets := ws.engine.GetBassets()
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"bassets": bassets,
		"count":   len(bassets),
	})
}

func (ws *WebServer) handleGetBasset(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]
	view, err := ws.engine.GetBasset(asset)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, ledger.ErrInvalidAsset.Error())
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, view)
}

func (ws *WebServer) handleGetCacheStates(w http.ResponseWriter, r *http.Request) {
	states, err := ws.engine.CacheStates(r.Context())
	if err != nil {
		webLogger.Warn().Err(err).Msg("Some cache states could not be read")
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"caches":   states,
		"complete": err == nil,
	})
}

func (ws *WebServer) handleQuoteMint(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	qty, err := parseAmount(q.Get("qty"))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := ws.engine.GetMintOutput(q.Get("asset"), qty)
	ws.writeQuote(w, res, err)
}

func (ws *WebServer) handleQuoteSwap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	qty, err := parseAmount(q.Get("qty"))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := ws.engine.GetSwapOutput(q.Get("input"), q.Get("output"), qty)
	ws.writeQuote(w, res, err)
}

func (ws *WebServer) handleQuoteRedeem(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	qty, err := parseAmount(q.Get("qty"))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := ws.engine.GetRedeemOutput(q.Get("asset"), qty)
	ws.writeQuote(w, res, err)
}

// handleQuoteRedeemExact takes comma separated assets and qtys.
func (ws *WebServer) handleQuoteRedeemExact(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	assets := splitList(q.Get("assets"))
	rawQtys := splitList(q.Get("qtys"))
	qtys := make([]sdkmath.Int, 0, len(rawQtys))
	for _, raw := range rawQtys {
		qty, err := parseAmount(raw)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		qtys = append(qtys, qty)
	}
	res, err := ws.engine.GetRedeemExactInput(assets, qtys)
	ws.writeQuote(w, res, err)
}

func (ws *WebServer) handleQuoteRedeemProportional(w http.ResponseWriter, r *http.Request) {
	qty, err := parseAmount(r.URL.Query().Get("qty"))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := ws.engine.GetRedeemProportionalOutput(qty)
	ws.writeQuote(w, res, err)
}

// writeQuote maps rejected quotes to 422, unknown assets to 404 and overflowing quantities to 400.
func (ws *WebServer) writeQuote(w http.ResponseWriter, res interface{}, err error) {
	switch {
	case err == nil:
		ws.writeJSONResponse(w, http.StatusOK, res)
	case errors.Is(err, engine.ErrArithmetic):
		ws.writeErrorResponse(w, http.StatusBadRequest, errQtyOutOfRange.Error())
	case errors.Is(err, ledger.ErrInvalidAsset):
		ws.writeErrorResponse(w, http.StatusNotFound, engine.ReasonInvalidAsset)
	case errors.Is(err, engine.ErrValidation):
		ws.writeErrorResponse(w, http.StatusUnprocessableEntity, engine.Reason(err))
	default:
		webLogger.Error().Err(err).Msg("Quote failed")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Quote failed")
	}
}

// handleGetReceipts returns recent receipts, optionally filtered by asset
func (ws *WebServer) handleGetReceipts(w http.ResponseWriter, r *http.Request) {
	if state.DB == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Receipt history is not enabled")
		return
	}
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	asset := r.URL.Query().Get("asset")
	var (
		receipts interface{}
		count    int
		err      error
	)
	if asset != "" {
		list, qerr := state.GetReceiptsByAsset(r.Context(), asset, limit)
		receipts, count, err = list, len(list), qerr
	} else {
		list, qerr := state.GetRecentReceipts(r.Context(), limit)
		receipts, count, err = list, len(list), qerr
	}
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get receipts")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve receipts")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"receipts": receipts,
		"count":    count,
		"limit":    limit,
	})
}

// handleGetReceipt returns one receipt by operation id
func (ws *WebServer) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	if state.DB == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Receipt history is not enabled")
		return
	}
	id := mux.Vars(r)["id"]
	receipt, err := state.GetReceiptByOperationID(r.Context(), id)
	if errors.Is(err, state.ErrReceiptNotFound) {
		ws.writeErrorResponse(w, http.StatusNotFound, "Receipt not found")
		return
	}
	if err != nil {
		webLogger.Error().Err(err).Str("operationId", id).Msg("Failed to get receipt")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve receipt")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, receipt)
}

func (ws *WebServer) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	if state.DB == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Receipt history is not enabled")
		return
	}
	summary, err := state.GetBasketSummary(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get basket summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve basket summary")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}

func (ws *WebServer) handleGetFeeMetrics(w http.ResponseWriter, r *http.Request) {
	if state.DB == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Receipt history is not enabled")
		return
	}
	fees, err := state.GetFeeMetrics(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get fee metrics")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve fee metrics")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"fees": fees})
}

// handleGetParameters returns the live parameters and, when persisted, the active version
func (ws *WebServer) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"parameters": ws.engine.GetBasket().Parameters(),
		"timestamp":  time.Now().UTC(),
	}
	if state.DB != nil {
		stored, err := state.LoadActiveBasketParameters(r.Context(), ws.configName)
		if err != nil {
			webLogger.Warn().Err(err).Msg("Failed to load stored basket parameters")
		} else {
			response["stored"] = stored
		}
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func parseAmount(raw string) (sdkmath.Int, error) {
	if raw == "" {
		return sdkmath.ZeroInt(), nil
	}
	amount, ok := sdkmath.NewIntFromString(strings.TrimSpace(raw))
	if !ok || amount.IsNegative() {
		return sdkmath.Int{}, errInvalidAmount
	}
	return amount, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
