// Package rpc exposes the forwarder and sponsor over JSON-RPC 2.0.
//
// State-mutating methods are serialised behind a single mutex; the engines
// assume a single writer and no interleaving.
package rpc

import (
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

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"lukechampine.com/blake3"

	"gasstation/core/state"
	"gasstation/native/forwarder"
	"gasstation/native/sponsorship"
	"gasstation/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	submitSeenTTL   = 15 * time.Minute

	// AuthTokenEnv holds the bearer token required for balance-mutating
	// relay methods when set.
	AuthTokenEnv = "GASSTATION_RPC_TOKEN"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeDuplicate      = -32010
	codeRateLimited    = -32020
)

// Config wires the server's collaborators.
type Config struct {
	Forwarder     *forwarder.Engine
	Sponsor       *sponsorship.Engine
	State         *state.Manager
	Logger        *slog.Logger
	AdminSecret   string
	RatePerMinute int
}

type Server struct {
	fwd     *forwarder.Engine
	sponsor *sponsorship.Engine
	st      *state.Manager
	logger  *slog.Logger
	metrics *observability.RelayMetrics

	authToken   string
	adminSecret []byte
	perMinute   float64

	// mu serialises every state-mutating method.
	mu sync.Mutex

	seenMu sync.Mutex
	seen   map[[32]byte]time.Time

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

// NewServer builds the RPC server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	perMinute := float64(cfg.RatePerMinute)
	if perMinute <= 0 {
		perMinute = 60
	}
	return &Server{
		fwd:         cfg.Forwarder,
		sponsor:     cfg.Sponsor,
		st:          cfg.State,
		logger:      logger,
		metrics:     observability.Relay(),
		authToken:   strings.TrimSpace(os.Getenv(AuthTokenEnv)),
		adminSecret: []byte(strings.TrimSpace(cfg.AdminSecret)),
		perMinute:   perMinute,
		seen:        make(map[[32]byte]time.Time),
		limiters:    make(map[string]*rate.Limiter),
	}
}

// Router assembles the HTTP surface: the JSON-RPC endpoint plus health and
// metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/rpc", s.handle)
	return r
}

// Start serves the router on addr and blocks.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", "addr", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	resp := rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Error: &rpcError{Code: code, Message: message}}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	resp := rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request body")
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large")
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload")
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version")
		return
	}

	correlation := uuid.NewString()
	logger := s.logger.With("rpcId", correlation, "method", req.Method)

	if !s.allowSource(r) {
		s.metrics.ObserveRejection(req.Method, "rate_limited")
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded")
		return
	}

	result, rpcErr := s.dispatch(r, &req, body, logger)
	ok := rpcErr == nil
	s.metrics.ObserveRequest(req.Method, ok, time.Since(started))
	if rpcErr != nil {
		logger.Info("rpc request failed", "code", rpcErr.Code, "message", rpcErr.Message)
		writeError(w, rpcErr.status, req.ID, rpcErr.Code, rpcErr.Message)
		return
	}
	logger.Debug("rpc request served")
	writeResult(w, req.ID, result)
}

type handlerError struct {
	rpcError
	status int
}

func errServer(message string) *handlerError {
	return &handlerError{rpcError: rpcError{Code: codeServerError, Message: message}, status: http.StatusOK}
}

func errParams(message string) *handlerError {
	return &handlerError{rpcError: rpcError{Code: codeInvalidParams, Message: message}, status: http.StatusBadRequest}
}

func errUnauthorized(message string) *handlerError {
	return &handlerError{rpcError: rpcError{Code: codeUnauthorized, Message: message}, status: http.StatusUnauthorized}
}

func (s *Server) dispatch(r *http.Request, req *rpcRequest, raw []byte, logger *slog.Logger) (interface{}, *handlerError) {
	switch {
	case strings.HasPrefix(req.Method, "admin_"):
		c, herr := s.authorizeAdmin(r)
		if herr != nil {
			s.metrics.ObserveRejection(req.Method, "unauthorized")
			return nil, herr
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.dispatchAdmin(req, c)
	case req.Method == "gas_execute" || req.Method == "gas_sponsor":
		if herr := s.requireAuthToken(r); herr != nil {
			s.metrics.ObserveRejection(req.Method, "unauthorized")
			return nil, herr
		}
		if herr := s.checkDuplicate(raw); herr != nil {
			s.metrics.ObserveRejection(req.Method, "duplicate")
			return nil, herr
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if req.Method == "gas_execute" {
			return s.handleExecute(req, logger)
		}
		return s.handleSponsor(req, logger)
	case req.Method == "gas_depositCredit" || req.Method == "gas_withdrawCredit" ||
		req.Method == "gas_depositToken" || req.Method == "gas_withdrawToken":
		if herr := s.requireAuthToken(r); herr != nil {
			s.metrics.ObserveRejection(req.Method, "unauthorized")
			return nil, herr
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		switch req.Method {
		case "gas_depositCredit":
			return s.handleDepositCredit(req)
		case "gas_withdrawCredit":
			return s.handleWithdrawCredit(req)
		case "gas_depositToken":
			return s.handleDepositToken(req)
		default:
			return s.handleWithdrawToken(req)
		}
	case req.Method == "gas_verify":
		return s.handleVerify(req)
	case req.Method == "gas_nonce":
		return s.handleNonce(req)
	case req.Method == "gas_estimateFee":
		return s.handleEstimateFee(req)
	case req.Method == "gas_canSponsor":
		return s.handleCanSponsor(req)
	case req.Method == "gas_creditBalance":
		return s.handleCreditBalance(req)
	case req.Method == "gas_domain":
		return s.handleDomain()
	default:
		return nil, &handlerError{rpcError: rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}, status: http.StatusNotFound}
	}
}

// requireAuthToken enforces the bearer token on balance-mutating relay
// methods when one is configured.
func (s *Server) requireAuthToken(r *http.Request) *handlerError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "Bearer "+s.authToken {
		return nil
	}
	return errUnauthorized("invalid or missing bearer token")
}

// allowSource applies the per-source rate limit.
func (s *Server) allowSource(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	s.limiterMu.Lock()
	limiter, ok := s.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.perMinute/60.0), int(s.perMinute))
		s.limiters[host] = limiter
	}
	s.limiterMu.Unlock()
	return limiter.Allow()
}

// checkDuplicate refuses resubmission of identical request bytes within the
// seen window. The replay counter is the real defence; this only keeps
// accidental double-submits from burning a relayer's rate budget.
func (s *Server) checkDuplicate(raw []byte) *handlerError {
	sum := blake3.Sum256(raw)
	now := time.Now()
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	for key, at := range s.seen {
		if now.Sub(at) > submitSeenTTL {
			delete(s.seen, key)
		}
	}
	if at, ok := s.seen[sum]; ok && now.Sub(at) <= submitSeenTTL {
		return &handlerError{rpcError: rpcError{Code: codeDuplicate, Message: "duplicate submission"}, status: http.StatusConflict}
	}
	s.seen[sum] = now
	return nil
}
