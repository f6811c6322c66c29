package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/proxygov/pkg/chain"
	"github.com/uhyunpark/proxygov/pkg/contracts/multisig"
	"github.com/uhyunpark/proxygov/pkg/contracts/proxy"
	"github.com/uhyunpark/proxygov/pkg/mempool"
	"github.com/uhyunpark/proxygov/pkg/node"
	"github.com/uhyunpark/proxygov/pkg/storage"
	"github.com/uhyunpark/proxygov/pkg/tx"
)

const maxTxBodyBytes = 1 << 20

type Options struct {
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	Logger         *zap.SugaredLogger
}

// Server handles REST API and WebSocket connections
type Server struct {
	node    *node.Node
	router  *mux.Router
	hub     *Hub
	origins []string
	logger  *zap.SugaredLogger
	events  map[common.Hash]string
}

func NewServer(n *node.Node, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	s := &Server{
		node:    n,
		router:  mux.NewRouter(),
		hub:     NewHub(opts.Logger),
		origins: opts.AllowedOrigins,
		logger:  opts.Logger,
		events:  eventNames(proxy.ABI, multisig.ABI, chain.SchedulerABI),
	}
	s.setupRoutes(opts.Gatherer)
	return s
}

func eventNames(abis ...abi.ABI) map[common.Hash]string {
	names := make(map[common.Hash]string)
	for _, a := range abis {
		for _, ev := range a.Events {
			names[ev.ID] = ev.Name
		}
	}
	return names
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Chain endpoints
	api.HandleFunc("/chain/status", s.handleGetChainStatus).Methods("GET")
	api.HandleFunc("/scheduled", s.handleGetScheduled).Methods("GET")
	api.HandleFunc("/accounts/{address}/nonce", s.handleGetNonce).Methods("GET")

	// Governance endpoints
	api.HandleFunc("/proxy/{address}", s.handleGetProxy).Methods("GET")
	api.HandleFunc("/multisig/{address}", s.handleGetMultiSig).Methods("GET")
	api.HandleFunc("/multisig/{address}/proposals/{id}", s.handleGetProposal).Methods("GET")

	// Transactions
	api.HandleFunc("/tx", s.handleSubmitTx).Methods("POST")
	api.HandleFunc("/tx/{hash}", s.handleGetReceipt).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
}

// Handler returns the router wrapped in the CORS policy.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves the API on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run()
	defer s.hub.Stop()

	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Infow("api_server_started", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleGetChainStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := s.node.Ledger.PendingCalls()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "read scheduled calls", err.Error())
		return
	}
	status := ChainStatus{
		Height:           s.node.Ledger.Height(),
		MempoolSize:      s.node.Mempool.Len(),
		ScheduledPending: len(pending),
		BlockTimeMs:      s.node.BlockTime.Milliseconds(),
	}
	latest, ok, err := s.node.Store.LatestBlock()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "read latest block", err.Error())
		return
	}
	if ok {
		status.LatestBlockHash = latest.Hash
		status.LatestBlockTime = &latest.Time
	}
	respondJSON(w, status)
}

func (s *Server) handleGetScheduled(w http.ResponseWriter, r *http.Request) {
	pending, err := s.node.Ledger.PendingCalls()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "read scheduled calls", err.Error())
		return
	}
	out := make([]ScheduledInfo, 0, len(pending))
	for _, sc := range pending {
		info := ScheduledInfo{
			Task:      sc.Task,
			From:      sc.From,
			Target:    sc.To,
			Input:     sc.Input,
			Scheduled: sc.Scheduled,
			Due:       sc.Due,
		}
		if target, ok := proxy.DecodeUpgradeTo(sc.Input); ok {
			info.UpgradeTo = &target
		}
		out = append(out, info)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetNonce(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r)
	if !ok {
		return
	}
	respondJSON(w, NonceInfo{Address: addr, Nonce: s.node.Ledger.Nonce(addr)})
}

func (s *Server) handleGetProxy(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.contractVar(w, r, proxy.Name)
	if !ok {
		return
	}
	admin, err := proxy.Admin(s.node.Ledger, addr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "read admin", err.Error())
		return
	}
	impl, err := proxy.Implementation(s.node.Ledger, addr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "read implementation", err.Error())
		return
	}
	respondJSON(w, ProxyInfo{
		Address:        addr,
		Admin:          admin,
		Implementation: impl,
		Code:           s.node.Ledger.CodeName(impl),
	})
}

func (s *Server) handleGetMultiSig(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.contractVar(w, r, multisig.Name)
	if !ok {
		return
	}
	v := s.node.Ledger
	info := MultiSigInfo{Address: addr}
	var err error
	if info.Proxy, err = multisig.Proxy(v, addr); err == nil {
		if info.Signers, err = multisig.Signers(v, addr); err == nil {
			if info.ConfirmationsRequired, err = multisig.ConfirmationsRequired(v, addr); err == nil {
				info.ProposalCount, err = multisig.ProposalCount(v, addr)
			}
		}
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "read multisig", err.Error())
		return
	}
	if info.ProposalCount > 0 {
		current, err := multisig.CurrentProposal(v, addr)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "read current proposal", err.Error())
			return
		}
		info.CurrentProposal = &current
	}
	respondJSON(w, info)
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.contractVar(w, r, multisig.Name)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid proposal id", err.Error())
		return
	}
	v := s.node.Ledger
	p, err := multisig.GetProposal(v, addr, id)
	if errors.Is(err, chain.ErrInvalidArgument) {
		respondError(w, http.StatusNotFound, "proposal not found", err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "read proposal", err.Error())
		return
	}
	signers, err := multisig.Signers(v, addr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "read signers", err.Error())
		return
	}
	info := ProposalInfo{Proposal: p, ApprovedBy: []common.Address{}}
	for _, signer := range signers {
		approved, err := multisig.HasApproved(v, addr, signer, id)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "read approvals", err.Error())
			return
		}
		if approved {
			info.ApprovedBy = append(info.ApprovedBy, signer)
		}
	}
	respondJSON(w, info)
}

func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}
	call, err := tx.Deserialize(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid transaction", err.Error())
		return
	}
	hash, err := s.node.Submit(call)
	switch {
	case errors.Is(err, mempool.ErrDuplicate):
		respondError(w, http.StatusConflict, "duplicate transaction", hash.Hex())
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, "transaction rejected", err.Error())
		return
	}
	s.logger.Infow("tx_received", "hash", hash.Hex(), "from", call.From.Hex(), "to", call.To.Hex(), "nonce", call.Nonce)
	respondJSON(w, SubmitTxResponse{Status: "submitted", Hash: hash})
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	raw, err := hexutil.Decode(mux.Vars(r)["hash"])
	if err != nil || len(raw) != common.HashLength {
		respondError(w, http.StatusBadRequest, "invalid hash", "")
		return
	}
	receipt, ok, err := s.node.Receipt(common.BytesToHash(raw))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "read receipt", err.Error())
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "receipt not found", "")
		return
	}
	respondJSON(w, receipt)
}

// ==============================
// Broadcast Methods (called from the node)
// ==============================

// OnBlock pushes the block to the blocks channel and every log of its
// receipts to the events channel.
func (s *Server) OnBlock(b storage.Block, receipts []*chain.Receipt) {
	failed := 0
	for _, r := range receipts {
		if !r.Succeeded() {
			failed++
		}
	}
	s.hub.BroadcastToChannel(ChannelBlocks, BlockUpdate{
		Type:       "block",
		Height:     b.Height,
		Hash:       b.Hash,
		ParentHash: b.ParentHash,
		Timestamp:  b.Time.UnixMilli(),
		TxHashes:   b.TxHashes,
		Deferred:   b.Deferred,
		Failed:     failed,
	})
	for _, r := range receipts {
		for _, lg := range r.Logs {
			update := EventUpdate{Type: "event", Log: lg}
			if len(lg.Topics) > 0 {
				update.Event = s.events[lg.Topics[0]]
			}
			s.hub.BroadcastToChannel(ChannelEvents, update)
		}
	}
}

// ==============================
// Helper Functions
// ==============================

func addressVar(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "invalid address", raw)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// contractVar resolves the address path variable and checks that it holds
// code registered under name.
func (s *Server) contractVar(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	addr, ok := addressVar(w, r)
	if !ok {
		return addr, false
	}
	if got := s.node.Ledger.CodeName(addr); got != name {
		respondError(w, http.StatusNotFound, "no "+name+" at address", addr.Hex())
		return addr, false
	}
	return addr, true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
