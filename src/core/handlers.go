package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// APIVersion is reported in the X-API-Version header of every response
const APIVersion = "1.0"

// CallerHeader carries the pre-authenticated account of the caller
const CallerHeader = "X-Account-ID"

// Pagination defaults
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 1000
)

// APIResponse is the envelope of every API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError describes a failed request
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteSuccess writes a 200 response carrying data
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	WriteSuccessWithStatus(w, http.StatusOK, data)
}

// WriteSuccessWithStatus writes a successful response with the given status
func WriteSuccessWithStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-API-Version", APIVersion)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

// WriteError writes an error response
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-API-Version", APIVersion)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
	})
}

// errorStatuses maps settlement errors to HTTP statuses, most specific first.
// A fee error names the target's balance, not the caller's, so it wins over
// the ledger error it wraps.
var errorStatuses = []struct {
	err    error
	status int
	code   string
}{
	{ErrFee, http.StatusInternalServerError, "FEE_ERROR"},
	{ErrInsufficientBalance, http.StatusPaymentRequired, "INSUFFICIENT_BALANCE"},
	{ErrQuantityLimitReached, http.StatusBadRequest, "QUANTITY_LIMIT_REACHED"},
	{ErrDuplicateTarget, http.StatusBadRequest, "DUPLICATE_TARGET"},
	{ErrOverflow, http.StatusBadRequest, "OVERFLOW"},
	{ErrInvalidTrustLevel, http.StatusBadRequest, "INVALID_TRUST_LEVEL"},
	{ErrInvalidRatios, http.StatusBadRequest, "INVALID_RATIOS"},
	{ErrNoUpdatesAllowed, http.StatusConflict, "NO_UPDATES_ALLOWED"},
	{ErrChallengeTimeout, http.StatusConflict, "CHALLENGE_TIMEOUT"},
	{ErrFailedProxy, http.StatusConflict, "FAILED_PROXY"},
	{ErrChallengeNotClaimed, http.StatusConflict, "CHALLENGE_NOT_CLAIMED"},
	{ErrRoundInProgress, http.StatusConflict, "ROUND_IN_PROGRESS"},
	{ErrRefreshNotEnded, http.StatusConflict, "REFRESH_NOT_ENDED"},
	{ErrChallengeHarvested, http.StatusConflict, "CHALLENGE_HARVESTED"},
	{ErrRecordNotFound, http.StatusNotFound, "RECORD_NOT_FOUND"},
	{ErrChallengeNotFound, http.StatusNotFound, "CHALLENGE_NOT_FOUND"},
	{ErrNotChallenger, http.StatusForbidden, "NOT_CHALLENGER"},
}

// writeSettlementError maps a settlement error onto the error envelope
func writeSettlementError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			WriteError(w, e.status, e.code, err.Error())
			return
		}
	}
	logger.Error("Settlement request failed",
		"path", r.URL.Path,
		"requestId", GetRequestID(r.Context()),
		"error", err)
	WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
}

// requireCaller reads the caller account, writing a 401 when it is missing
func requireCaller(w http.ResponseWriter, r *http.Request) (AccountID, bool) {
	caller := r.Header.Get(CallerHeader)
	if !IsValidAccountID(caller) {
		WriteError(w, http.StatusUnauthorized, "INVALID_CALLER", "Missing or invalid "+CallerHeader+" header")
		return "", false
	}
	return AccountID(caller), true
}

// accountVar reads an account path variable, writing a 400 when malformed
func accountVar(w http.ResponseWriter, r *http.Request, name string) (AccountID, bool) {
	id := mux.Vars(r)[name]
	if !IsValidAccountID(id) {
		WriteError(w, http.StatusBadRequest, "INVALID_ACCOUNT", "Invalid account ID format")
		return "", false
	}
	return AccountID(id), true
}

// PaginationParams holds limit/offset query parameters
type PaginationParams struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ParsePaginationParams reads limit and offset, falling back to defaultLimit
// and capping at maxLimit
func ParsePaginationParams(r *http.Request, defaultLimit, maxLimit int) PaginationParams {
	params := PaginationParams{Limit: defaultLimit}

	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 {
		params.Limit = limit
	}
	if params.Limit > maxLimit {
		params.Limit = maxLimit
	}
	if offset, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && offset > 0 {
		params.Offset = offset
	}
	return params
}

// paginate slices items by the params and wraps them with pagination metadata
func paginate[T any](items []T, params PaginationParams) map[string]interface{} {
	total := len(items)
	start := params.Offset
	if start > total {
		start = total
	}
	end := start + params.Limit
	if end > total {
		end = total
	}
	page := items[start:end]
	if page == nil {
		page = []T{}
	}
	return map[string]interface{}{
		"data": page,
		"pagination": map[string]interface{}{
			"limit":  params.Limit,
			"offset": params.Offset,
			"total":  total,
		},
	}
}

// registerAPIRoutes registers every API route on router
func (node *SettlementNode) registerAPIRoutes(router *mux.Router) {
	router.HandleFunc("/health", node.HealthCheckHandler).Methods("GET")

	// Round lifecycle
	router.HandleFunc("/rounds", node.NewRoundHandler).Methods("POST")
	router.HandleFunc("/rounds/current", node.GetRoundHandler).Methods("GET")
	router.HandleFunc("/refresh", node.RefreshHandler).Methods("POST")

	// Payroll settlement
	router.HandleFunc("/payroll", node.ListPayrollsHandler).Methods("GET")
	router.HandleFunc("/payroll/claim", node.ClaimPayrollHandler).Methods("POST")
	router.HandleFunc("/payroll/{pathfinder}", node.GetPayrollHandler).Methods("GET")
	router.HandleFunc("/payroll/{pathfinder}/proxy-claim", node.ProxyClaimHandler).Methods("POST")

	// Challenges
	router.HandleFunc("/challenges", node.OpenChallengeHandler).Methods("POST")
	router.HandleFunc("/challenges", node.ListChallengesHandler).Methods("GET")
	router.HandleFunc("/challenges/{id}", node.GetChallengeHandler).Methods("GET")
	router.HandleFunc("/challenges/{id}/harvest", node.HarvestChallengeHandler).Methods("POST")

	// Trust graph
	router.HandleFunc("/trust", node.SetTrustHandler).Methods("POST")
	router.HandleFunc("/trust/{account}", node.GetTrustHandler).Methods("GET")

	// Ledger
	router.HandleFunc("/ledger/deposit", node.DepositHandler).Methods("POST")
	router.HandleFunc("/ledger/freeze", node.FreezeHandler).Methods("POST")
	router.HandleFunc("/ledger/{account}", node.GetBalanceHandler).Methods("GET")

	router.HandleFunc("/events", node.GetEventsHandler).Methods("GET")
}

// Router builds the API router with versioned and unversioned routes
func (node *SettlementNode) Router() *mux.Router {
	router := mux.NewRouter()

	v1Router := router.PathPrefix("/api/v1").Subrouter()
	node.registerAPIRoutes(v1Router)

	// Backward-compatible unversioned routes
	apiRouter := router.PathPrefix("/api").Subrouter()
	node.registerAPIRoutes(apiRouter)

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return router
}

// Handler wraps the router with the middleware chain
func (node *SettlementNode) Handler() http.Handler {
	var handler http.Handler = node.Router()
	handler = NodeAuthMiddleware(handler)
	handler = BodySizeLimitMiddleware(node.Config.MaxBodySizeBytes)(handler)
	handler = RateLimitMiddleware(NewIPRateLimiter(node.Config.RateLimitPerMinute).TrustProxyHeaders(node.Config.TrustProxyHeaders))(handler)
	handler = MetricsMiddleware(handler)
	handler = RequestIDMiddleware(handler)
	return otelhttp.NewHandler(handler, "pathfinder")
}

// StartServer starts the HTTP server for API endpoints
func (node *SettlementNode) StartServer(port string) error {
	ConfigureNodeAuth(node.Config.NodeAuthSecret, node.Config.RequireNodeAuth)

	node.Server = &http.Server{
		Addr:              ":" + port,
		Handler:           node.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Starting settlement node server", "port", port, "nodeId", node.NodeID)
	return node.Server.ListenAndServe()
}

// HealthCheckHandler handles health check requests
func (node *SettlementNode) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	state := node.Reputation.State()
	WriteSuccess(w, map[string]interface{}{
		"status":  "ok",
		"node_id": node.NodeID,
		"height":  node.Clock.Now(),
		"round":   state.Round,
		"phase":   state.Phase,
		"uptime":  int64(time.Since(node.startedAt).Seconds()),
		"version": "1.0.0",
	})
}

// NewRoundHandler opens the next round, draining every payroll
func (node *SettlementNode) NewRoundHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	reward, err := node.Engine.NewRound(r.Context(), caller)
	if err != nil {
		writeSettlementError(w, r, err)
		return
	}

	WriteSuccessWithStatus(w, http.StatusCreated, map[string]interface{}{
		"round":       node.Reputation.State(),
		"proxyReward": reward,
	})
}

// GetRoundHandler returns the round state and settlement parameters
func (node *SettlementNode) GetRoundHandler(w http.ResponseWriter, r *http.Request) {
	node.Reputation.Tick(node.Clock.Now())
	WriteSuccess(w, map[string]interface{}{
		"height":           node.Clock.Now(),
		"round":            node.Reputation.State(),
		"params":           node.Engine.Params(),
		"proxyRatio":       node.Config.ProxyRatio,
		"proxyGracePeriod": node.Config.ProxyGracePeriod,
	})
}

// RefreshRequest is the body of a refresh submission
type RefreshRequest struct {
	Scores []UserScore `json:"scores"`
}

// RefreshHandler stakes and applies a batch of score updates for the caller
func (node *SettlementNode) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req RefreshRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		return
	}
	if len(req.Scores) == 0 {
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "scores must not be empty")
		return
	}
	for _, us := range req.Scores {
		if !IsValidAccountID(string(us.Target)) {
			WriteError(w, http.StatusBadRequest, "INVALID_ACCOUNT", "Invalid target account ID: "+string(us.Target))
			return
		}
	}

	totalFee, err := node.Engine.Refresh(r.Context(), caller, req.Scores)
	if err != nil {
		writeSettlementError(w, r, err)
		return
	}

	payroll, _ := node.Engine.Payroll(caller)
	WriteSuccess(w, map[string]interface{}{
		"pathfinder": caller,
		"count":      len(req.Scores),
		"totalFee":   totalFee,
		"payroll":    payroll,
	})
}

// ClaimPayrollHandler pays the caller its own payroll
func (node *SettlementNode) ClaimPayrollHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	amount, err := node.Engine.ReceiverAll(r.Context(), caller)
	if err != nil {
		writeSettlementError(w, r, err)
		return
	}

	WriteSuccess(w, map[string]interface{}{
		"pathfinder": caller,
		"amount":     amount,
	})
}

// ProxyClaimHandler settles another pathfinder's payroll for a cut
func (node *SettlementNode) ProxyClaimHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	pathfinder, ok := accountVar(w, r, "pathfinder")
	if !ok {
		return
	}

	cut, err := node.Engine.ReceiverAllProxy(r.Context(), caller, pathfinder)
	if err != nil {
		writeSettlementError(w, r, err)
		return
	}

	WriteSuccess(w, map[string]interface{}{
		"proxy":      caller,
		"pathfinder": pathfinder,
		"proxyCut":   cut,
	})
}

// GetPayrollHandler returns a pathfinder's payroll and live records
func (node *SettlementNode) GetPayrollHandler(w http.ResponseWriter, r *http.Request) {
	pathfinder, ok := accountVar(w, r, "pathfinder")
	if !ok {
		return
	}

	payroll, records := node.Engine.Payroll(pathfinder)
	response := map[string]interface{}{
		"pathfinder": pathfinder,
		"payroll":    payroll,
		"records":    records,
	}
	if total, err := payroll.TotalAmount(node.Config.UpdateStakingAmount); err == nil {
		response["totalAmount"] = total
	}
	WriteSuccess(w, response)
}

// ListPayrollsHandler lists outstanding payrolls
func (node *SettlementNode) ListPayrollsHandler(w http.ResponseWriter, r *http.Request) {
	params := ParsePaginationParams(r, DefaultPageLimit, MaxPageLimit)
	WriteSuccess(w, paginate(node.Engine.Payrolls(), params))
}

// OpenChallengeRequest is the body of a dispute
type OpenChallengeRequest struct {
	Target     AccountID `json:"target"`
	Pathfinder AccountID `json:"pathfinder"`
}

// OpenChallengeHandler disputes a refresh record on behalf of the caller
func (node *SettlementNode) OpenChallengeHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req OpenChallengeRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		return
	}
	if !IsValidAccountID(string(req.Target)) || !IsValidAccountID(string(req.Pathfinder)) {
		WriteError(w, http.StatusBadRequest, "INVALID_ACCOUNT", "Invalid target or pathfinder account ID")
		return
	}

	challenge, err := node.Challenges.Open(r.Context(), caller, req.Target, req.Pathfinder)
	if err != nil {
		writeSettlementError(w, r, err)
		return
	}

	WriteSuccessWithStatus(w, http.StatusCreated, challenge)
}

// ListChallengesHandler lists outstanding challenges, or all with ?all=true
func (node *SettlementNode) ListChallengesHandler(w http.ResponseWriter, r *http.Request) {
	includeHarvested := r.URL.Query().Get("all") == "true"
	params := ParsePaginationParams(r, DefaultPageLimit, MaxPageLimit)
	WriteSuccess(w, paginate(node.Challenges.List(includeHarvested), params))
}

// GetChallengeHandler returns one challenge
func (node *SettlementNode) GetChallengeHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !ValidateStringField(id, MaxChallengeIDLength) {
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid challenge ID")
		return
	}

	challenge, exists := node.Challenges.Get(id)
	if !exists {
		WriteError(w, http.StatusNotFound, "CHALLENGE_NOT_FOUND", "Challenge not found")
		return
	}
	WriteSuccess(w, challenge)
}

// HarvestChallengeHandler pays a challenge bounty to its challenger
func (node *SettlementNode) HarvestChallengeHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if !ValidateStringField(id, MaxChallengeIDLength) {
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid challenge ID")
		return
	}

	challenge, err := node.Challenges.Harvest(r.Context(), id, caller)
	if err != nil {
		writeSettlementError(w, r, err)
		return
	}
	WriteSuccess(w, challenge)
}

// SetTrustRequest is the body of a trust update
type SetTrustRequest struct {
	Trustee AccountID `json:"trustee"`
	Level   float64   `json:"level"`
}

// SetTrustHandler records the caller's trust in another account
func (node *SettlementNode) SetTrustHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req SetTrustRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		return
	}
	if !IsValidAccountID(string(req.Trustee)) {
		WriteError(w, http.StatusBadRequest, "INVALID_ACCOUNT", "Invalid trustee account ID")
		return
	}
	if req.Trustee == caller {
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "An account cannot trust itself")
		return
	}

	if err := node.Trust.SetTrust(caller, req.Trustee, req.Level); err != nil {
		writeSettlementError(w, r, err)
		return
	}

	WriteSuccess(w, TrustEdge{Truster: caller, Trustee: req.Trustee, Level: req.Level})
}

// GetTrustHandler returns an account's trustees and who its social balance is shared with
func (node *SettlementNode) GetTrustHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := accountVar(w, r, "account")
	if !ok {
		return
	}

	WriteSuccess(w, map[string]interface{}{
		"account":    account,
		"trustees":   node.Trust.GetDirectTrustees(account),
		"sharedWith": node.Trust.TrustedOf(account),
	})
}

// LedgerRequest is the body of a deposit or freeze
type LedgerRequest struct {
	Account AccountID `json:"account,omitempty"`
	Amount  Amount    `json:"amount"`
}

// DepositHandler credits free balance to an account, the caller by default
func (node *SettlementNode) DepositHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req LedgerRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		return
	}
	account := caller
	if req.Account != "" {
		if !IsValidAccountID(string(req.Account)) {
			WriteError(w, http.StatusBadRequest, "INVALID_ACCOUNT", "Invalid account ID format")
			return
		}
		account = req.Account
	}
	if req.Amount == 0 {
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "amount must be positive")
		return
	}

	if err := node.Deposit(account, req.Amount); err != nil {
		writeSettlementError(w, r, err)
		return
	}
	WriteSuccess(w, map[string]interface{}{
		"account": account,
		"balance": node.Ledger.Balance(node.Config.Asset, account),
	})
}

// FreezeHandler moves the caller's free balance into its social balance
func (node *SettlementNode) FreezeHandler(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req LedgerRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		return
	}
	if req.Amount == 0 {
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "amount must be positive")
		return
	}

	if err := node.FreezeShare(caller, req.Amount); err != nil {
		writeSettlementError(w, r, err)
		return
	}
	WriteSuccess(w, map[string]interface{}{
		"account": caller,
		"balance": node.Ledger.Balance(node.Config.Asset, caller),
	})
}

// GetBalanceHandler returns an account's balance and score
func (node *SettlementNode) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := accountVar(w, r, "account")
	if !ok {
		return
	}

	response := map[string]interface{}{
		"account": account,
		"asset":   node.Config.Asset,
		"balance": node.Ledger.Balance(node.Config.Asset, account),
	}
	if score, exists := node.Reputation.Score(account); exists {
		response["score"] = score
	}
	WriteSuccess(w, response)
}

// GetEventsHandler returns recent settlement events, optionally filtered by ?kind=
func (node *SettlementNode) GetEventsHandler(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if !ValidateStringField(kind, MaxEventKindLength) {
		WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid event kind")
		return
	}

	var events []Event
	if kind != "" {
		events = node.Events.Filter(EventKind(kind))
	} else {
		events = node.Events.Recent(0)
	}

	params := ParsePaginationParams(r, DefaultPageLimit, MaxPageLimit)
	WriteSuccess(w, paginate(events, params))
}
