package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rzbill/paystream/internal/metrics"
	"github.com/rzbill/paystream/internal/payment"
	"github.com/rzbill/paystream/internal/runtime"
	paymentsvc "github.com/rzbill/paystream/internal/services/payments"
	logpkg "github.com/rzbill/paystream/pkg/log"
	"github.com/shopspring/decimal"
)

type Server struct {
	rt         *runtime.Runtime
	svc        *paymentsvc.Service
	m          *metrics.Metrics
	transfers  Transferer
	logger     logpkg.Logger
	authSecret string
	srv        *http.Server
	lis        net.Listener
}

// Options customizes Server construction. Zero values get sensible defaults.
type Options struct {
	Metrics    *metrics.Metrics
	Transferer Transferer
	Logger     logpkg.Logger
}

func New(rt *runtime.Runtime, opts Options) *Server {
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger().With(logpkg.Component("http"))
	}
	if opts.Transferer == nil {
		opts.Transferer = newLogTransferer(opts.Logger, opts.Metrics)
	}
	mux := http.NewServeMux()
	s := &Server{
		rt:         rt,
		svc:        paymentsvc.NewWithLogger(rt, opts.Logger.With(logpkg.Component("payments"))),
		m:          opts.Metrics,
		transfers:  opts.Transferer,
		logger:     opts.Logger,
		authSecret: rt.Config().AuthSecret,
		srv:        &http.Server{Handler: cors(mux)},
	}
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	mux.HandleFunc("/v1/initialize", s.handleInitialize)
	mux.HandleFunc("/v1/payments/create", s.handleCreate)
	mux.HandleFunc("/v1/payments/process", s.handleProcess)
	mux.HandleFunc("/v1/payments/claim", s.handleClaim)
	mux.HandleFunc("/v1/payments/reject", s.handleReject)
	mux.HandleFunc("/v1/payments/get", s.handleGet)
	mux.HandleFunc("/v1/payments/list", s.handleList)
	mux.Handle("/metrics", s.m.Handler())
	return s
}

// Handler exposes the routed handler, mostly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("http server listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+devAccountHeader)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service sentinels onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, errUnauthenticated):
		code = http.StatusUnauthorized
	case errors.Is(err, payment.ErrStreamNotFound),
		errors.Is(err, payment.ErrAccountIndexMissing):
		code = http.StatusNotFound
	case errors.Is(err, payment.ErrInvalidCreationParams),
		errors.Is(err, payment.ErrNonDivisibleAmount):
		code = http.StatusBadRequest
	case errors.Is(err, payment.ErrInitialize),
		errors.Is(err, payment.ErrStreamAlreadyActivated),
		errors.Is(err, payment.ErrStreamNotActivated),
		errors.Is(err, payment.ErrDuplicateStream):
		code = http.StatusConflict
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_serving"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type initializeReq struct {
	Deposit decimal.Decimal `json:"deposit"`
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.post(w, r)
	if !ok {
		return
	}
	var req initializeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	err := s.svc.Initialize(caller, req.Deposit)
	s.m.Operations.WithLabelValues("initialize", metrics.OpResult(err)).Inc()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "initialized"})
}

type createReq struct {
	Receiver      string          `json:"receiver"`
	PeriodDays    uint64          `json:"period_days"`
	PaymentAmount decimal.Decimal `json:"payment_amount"`
	Deposit       decimal.Decimal `json:"deposit"`
}

type createResp struct {
	StreamID uint64 `json:"stream_id"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.post(w, r)
	if !ok {
		return
	}
	var req createReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	id, err := s.svc.Create(caller, req.Receiver, req.PeriodDays, req.PaymentAmount, req.Deposit)
	s.m.Operations.WithLabelValues("create", metrics.OpResult(err)).Inc()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createResp{StreamID: id})
}

type processReq struct {
	Decision paymentsvc.ProcessDecision `json:"decision"`
	StreamID uint64                     `json:"stream_id"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.post(w, r)
	if !ok {
		return
	}
	var req processReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Decision != paymentsvc.ProcessApprove && req.Decision != paymentsvc.ProcessReject {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "decision must be approve or reject"})
		return
	}
	st, err := s.svc.Process(caller, paymentsvc.ProcessRequest{Decision: req.Decision, StreamID: req.StreamID})
	s.m.Operations.WithLabelValues("process", metrics.OpResult(err)).Inc()
	if err != nil {
		writeError(w, err)
		return
	}
	if st != nil {
		s.settle(*st)
		writeJSON(w, http.StatusOK, st)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

type claimReq struct {
	StreamID uint64 `json:"stream_id"`
}

type claimResp struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.post(w, r)
	if !ok {
		return
	}
	var req claimReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	amount, err := s.svc.Claim(caller, req.StreamID)
	s.m.Operations.WithLabelValues("claim", metrics.OpResult(err)).Inc()
	if err != nil {
		writeError(w, err)
		return
	}
	s.transfers.Transfer(caller, amount)
	writeJSON(w, http.StatusOK, claimResp{Amount: amount})
}

type rejectReq struct {
	StreamID uint64 `json:"stream_id"`
	Role     string `json:"role"`
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.post(w, r)
	if !ok {
		return
	}
	var req rejectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	role, err := payment.ParseRole(req.Role)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	st, err := s.svc.Reject(caller, req.StreamID, role)
	s.m.Operations.WithLabelValues("reject", metrics.OpResult(err)).Inc()
	if err != nil {
		writeError(w, err)
		return
	}
	s.settle(st)
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.get(w, r)
	if !ok {
		return
	}
	role, err := payment.ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	id, err := strconv.ParseUint(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid stream id"})
		return
	}
	info, err := s.svc.Get(caller, id, role)
	s.m.Operations.WithLabelValues("get", metrics.OpResult(err)).Inc()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type listResp struct {
	Streams []paymentsvc.StreamInfo `json:"streams"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.get(w, r)
	if !ok {
		return
	}
	role, err := payment.ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	opts := paymentsvc.ListOptions{Filter: r.URL.Query().Get("filter")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		opts.Limit = limit
	}
	streams, err := s.svc.List(caller, role, opts)
	s.m.Operations.WithLabelValues("list", metrics.OpResult(err)).Inc()
	if err != nil {
		writeError(w, err)
		return
	}
	if streams == nil {
		streams = []paymentsvc.StreamInfo{}
	}
	writeJSON(w, http.StatusOK, listResp{Streams: streams})
}

// settle schedules the non-zero legs of a settlement.
func (s *Server) settle(st paymentsvc.Settlement) {
	s.transfers.Transfer(st.Issuer.Account, st.Issuer.Amount)
	s.transfers.Transfer(st.Receiver.Account, st.Receiver.Amount)
}

func (s *Server) post(w http.ResponseWriter, r *http.Request) (string, bool) {
	return s.caller(w, r, http.MethodPost)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) (string, bool) {
	return s.caller(w, r, http.MethodGet)
}

func (s *Server) caller(w http.ResponseWriter, r *http.Request, method string) (string, bool) {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return "", false
	}
	caller, err := s.callerFromRequest(r)
	if err != nil {
		writeError(w, err)
		return "", false
	}
	return caller, true
}
