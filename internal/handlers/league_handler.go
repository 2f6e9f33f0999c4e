package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	"predictive-league/internal/auth"
	"predictive-league/internal/confidential"
	"predictive-league/internal/logging"
	"predictive-league/internal/models"
	"predictive-league/internal/services"
)

type LeagueHandler struct {
	leagueService *services.LeagueService
}

func NewLeagueHandler(leagueService *services.LeagueService) *LeagueHandler {
	return &LeagueHandler{
		leagueService: leagueService,
	}
}

// RegisterRoutes mounts the league API. Reads are public; writes need the auth middleware.
func (h *LeagueHandler) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.GET("/config", h.GetConfig)
	public.GET("/events", h.StreamEvents)
	public.GET("/leagues", h.ListLeagues)
	public.GET("/leagues/:id", h.GetLeague)
	public.GET("/leagues/:id/options", h.GetOptions)
	public.GET("/leagues/:id/picks", h.GetPickCounts)
	public.GET("/leagues/:id/proposal", h.GetProposal)
	public.GET("/leagues/:id/challenges", h.GetChallenges)
	public.GET("/leagues/:id/transfers", h.GetTransfers)

	protected.POST("/leagues", h.CreateLeague)
	protected.GET("/leagues/:id/entries/me", h.GetMyEntry)
	protected.POST("/leagues/:id/entries", h.EnterLeague)
	protected.PUT("/leagues/:id/entries", h.EditEntry)
	protected.POST("/leagues/:id/proposal", h.ProposeResult)
	protected.POST("/leagues/:id/challenges", h.ChallengeResult)
	protected.POST("/leagues/:id/finalize", h.FinalizeResult)
	protected.POST("/leagues/:id/arbitrate", h.ArbitrateResult)
	protected.POST("/leagues/:id/cancel", h.CancelLeague)
	protected.POST("/leagues/:id/claim", h.ClaimPrize)
	protected.POST("/leagues/:id/refund", h.ClaimRefund)
}

// ciphertextRequest carries an encrypted weight as hex.
type ciphertextRequest struct {
	Handle string `json:"handle" binding:"required"`
	Proof  string `json:"proof" binding:"required"`
}

func (r ciphertextRequest) decode() (confidential.Ciphertext, error) {
	handle, err := hexutil.Decode(r.Handle)
	if err != nil || len(handle) != common.HashLength {
		return confidential.Ciphertext{}, fmt.Errorf("handle must be 32 bytes of 0x-prefixed hex")
	}
	proof, err := hexutil.Decode(r.Proof)
	if err != nil {
		return confidential.Ciphertext{}, fmt.Errorf("proof must be 0x-prefixed hex")
	}
	return confidential.Ciphertext{Handle: common.BytesToHash(handle), Proof: proof}, nil
}

func statusFor(kind services.ErrorKind) int {
	switch kind {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindAuthorization:
		return http.StatusForbidden
	case services.KindEconomic:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusConflict
	}
}

// respondError maps ledger rejections to 4xx with their code; anything else is a 500.
func respondError(c *gin.Context, err error) {
	var lerr *services.LedgerError
	if errors.As(err, &lerr) {
		c.JSON(statusFor(lerr.Kind), gin.H{"error": lerr.Code, "message": lerr.Message})
		return
	}
	logging.HTTP.Error().Err(err).Str("path", c.FullPath()).Msg("ledger operation failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "BadRequest", "message": msg})
}

func caller(c *gin.Context) (common.Address, bool) {
	wallet, ok := auth.GetWalletAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return wallet, ok
}

func parseAmount(c *gin.Context, raw string, field string) (models.Wei, bool) {
	if raw == "" {
		return models.Wei{}, true
	}
	amount, err := models.ParseWei(raw)
	if err != nil {
		badRequest(c, field+": "+err.Error())
		return models.Wei{}, false
	}
	return amount, true
}

// GetConfig returns the protocol constants
// GET /api/config
func (h *LeagueHandler) GetConfig(c *gin.Context) {
	p := h.leagueService.Policy()
	resp := gin.H{
		"min_entry_fee":            p.MinEntryFee,
		"min_entry_fee_eth":        p.MinEntryFee.Ether().String(),
		"challenge_bond":           p.ChallengeBond,
		"challenge_bond_eth":       p.ChallengeBond.Ether().String(),
		"challenge_period_seconds": int64(p.ChallengePeriod / time.Second),
		"min_duration_seconds":     int64(p.MinDuration / time.Second),
		"max_duration_seconds":     int64(p.MaxDuration / time.Second),
		"cancel_fee":               p.CancelFee,
		"stale_after_seconds":      int64(p.StaleAfter / time.Second),
		"min_options":              services.MinOptions,
		"max_options":              services.MaxOptions,
		"min_weight":               confidential.MinWeight,
		"max_weight":               confidential.MaxWeight,
		"push_sentinel":            models.PushSentinel,
		"contract":                 p.Contract.Hex(),
		"treasury":                 p.Treasury.Hex(),
	}
	if p.HasArbiter() {
		resp["arbiter"] = p.Arbiter.Hex()
		resp["arbitration_period_seconds"] = int64(p.ArbitrationPeriod / time.Second)
	}
	c.JSON(http.StatusOK, resp)
}

// CreateLeague registers a new league owned by the caller
// POST /api/leagues
func (h *LeagueHandler) CreateLeague(c *gin.Context) {
	wallet, ok := caller(c)
	if !ok {
		return
	}

	var req struct {
		ID              string   `json:"id" binding:"required"`
		Title           string   `json:"title" binding:"required"`
		Options         []string `json:"options" binding:"required"`
		EntryFee        string   `json:"entry_fee" binding:"required"`
		DurationSeconds int64    `json:"duration_seconds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	fee, ok := parseAmount(c, req.EntryFee, "entry_fee")
	if !ok {
		return
	}

	league, err := h.leagueService.CreateLeague(c.Request.Context(), wallet, services.CreateLeagueParams{
		ID:       req.ID,
		Title:    req.Title,
		Options:  req.Options,
		EntryFee: fee,
		Duration: time.Duration(req.DurationSeconds) * time.Second,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, leagueView(league))
}

// ListLeagues returns league ids in creation order
// GET /api/leagues?limit=20&offset=0
func (h *LeagueHandler) ListLeagues(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		badRequest(c, "limit must be between 1 and 100")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		badRequest(c, "offset must be non-negative")
		return
	}

	ids, total, err := h.leagueService.ListLeagues(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"leagues": ids,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func leagueView(league *models.League) gin.H {
	return gin.H{
		"league":         league,
		"entry_fee_eth":  league.EntryFee.Ether().String(),
		"prize_pool_eth": league.PrizePool.Ether().String(),
		"push":           league.IsPush(),
	}
}

// GetLeague retrieves a league with its options and pick counts
// GET /api/leagues/:id
func (h *LeagueHandler) GetLeague(c *gin.Context) {
	league, err := h.leagueService.GetLeague(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, leagueView(league))
}

// GET /api/leagues/:id/options
func (h *LeagueHandler) GetOptions(c *gin.Context) {
	options, err := h.leagueService.GetOptions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"options": options})
}

// GET /api/leagues/:id/picks
func (h *LeagueHandler) GetPickCounts(c *gin.Context) {
	counts, err := h.leagueService.GetPickCounts(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"picks": counts})
}

// GET /api/leagues/:id/proposal
func (h *LeagueHandler) GetProposal(c *gin.Context) {
	proposal, err := h.leagueService.GetProposal(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	p := h.leagueService.Policy()
	c.JSON(http.StatusOK, gin.H{
		"proposal":   proposal,
		"window_end": proposal.ProposeTime.Add(p.ChallengePeriod),
	})
}

// GET /api/leagues/:id/challenges
func (h *LeagueHandler) GetChallenges(c *gin.Context) {
	challenges, err := h.leagueService.GetChallenges(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if challenges == nil {
		challenges = []models.Challenge{}
	}
	c.JSON(http.StatusOK, gin.H{"challenges": challenges})
}

// GET /api/leagues/:id/transfers
func (h *LeagueHandler) GetTransfers(c *gin.Context) {
	transfers, err := h.leagueService.GetTransfers(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if transfers == nil {
		transfers = []models.Transfer{}
	}
	c.JSON(http.StatusOK, gin.H{"transfers": transfers})
}

// GetMyEntry returns the caller's own entry; nobody else's is exposed
// GET /api/leagues/:id/entries/me
func (h *LeagueHandler) GetMyEntry(c *gin.Context) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	entry, err := h.leagueService.GetEntry(c.Request.Context(), c.Param("id"), wallet)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

type entryRequest struct {
	OptionID   *uint8            `json:"option_id" binding:"required"`
	Ciphertext ciphertextRequest `json:"ciphertext" binding:"required"`
	Payment    string            `json:"payment"`
}

// EnterLeague submits an entry with an encrypted weight and the entry fee
// POST /api/leagues/:id/entries
func (h *LeagueHandler) EnterLeague(c *gin.Context) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ct, err := req.Ciphertext.decode()
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	payment, ok := parseAmount(c, req.Payment, "payment")
	if !ok {
		return
	}

	entry, err := h.leagueService.EnterLeague(c.Request.Context(), wallet, c.Param("id"), *req.OptionID, ct, payment)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// EditEntry replaces the option and weight of the caller's entry before lock time
// PUT /api/leagues/:id/entries
func (h *LeagueHandler) EditEntry(c *gin.Context) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ct, err := req.Ciphertext.decode()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	entry, err := h.leagueService.EditEntry(c.Request.Context(), wallet, c.Param("id"), *req.OptionID, ct)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

type outcomeRequest struct {
	Option *uint8 `json:"option" binding:"required"`
	Bond   string `json:"bond"`
}

// POST /api/leagues/:id/proposal
func (h *LeagueHandler) ProposeResult(c *gin.Context) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	var req outcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	bond, ok := parseAmount(c, req.Bond, "bond")
	if !ok {
		return
	}

	proposal, err := h.leagueService.ProposeResult(c.Request.Context(), wallet, c.Param("id"), *req.Option, bond)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, proposal)
}

// POST /api/leagues/:id/challenges
func (h *LeagueHandler) ChallengeResult(c *gin.Context) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	var req outcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	bond, ok := parseAmount(c, req.Bond, "bond")
	if !ok {
		return
	}

	challenge, err := h.leagueService.ChallengeResult(c.Request.Context(), wallet, c.Param("id"), *req.Option, bond)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, challenge)
}

// POST /api/leagues/:id/finalize
func (h *LeagueHandler) FinalizeResult(c *gin.Context) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	league, err := h.leagueService.FinalizeResult(c.Request.Context(), wallet, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, leagueView(league))
}

// POST /api/leagues/:id/arbitrate
func (h *LeagueHandler) ArbitrateResult(c *gin.Context) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	var req struct {
		Ruling *uint8 `json:"ruling" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	league, err := h.leagueService.ArbitrateResult(c.Request.Context(), wallet, c.Param("id"), *req.Ruling)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, leagueView(league))
}

// POST /api/leagues/:id/cancel
func (h *LeagueHandler) CancelLeague(c *gin.Context) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	var req struct {
		Payment string `json:"payment"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	payment, ok := parseAmount(c, req.Payment, "payment")
	if !ok {
		return
	}

	league, err := h.leagueService.CancelLeague(c.Request.Context(), wallet, c.Param("id"), payment)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, leagueView(league))
}

// POST /api/leagues/:id/claim
func (h *LeagueHandler) ClaimPrize(c *gin.Context) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	payout, err := h.leagueService.ClaimPrize(c.Request.Context(), wallet, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amount": payout, "amount_eth": payout.Ether().String()})
}

// POST /api/leagues/:id/refund
func (h *LeagueHandler) ClaimRefund(c *gin.Context) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	refund, err := h.leagueService.ClaimRefund(c.Request.Context(), wallet, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amount": refund, "amount_eth": refund.Ether().String()})
}

// StreamEvents relays committed ledger events as server-sent events.
// GET /api/events?league=<id>
func (h *LeagueHandler) StreamEvents(c *gin.Context) {
	filter := c.Query("league")

	ch := make(chan models.LeagueEvent, 64)
	sub := h.leagueService.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev := <-ch:
			if filter == "" || ev.LeagueID == filter {
				c.SSEvent(string(ev.Type), ev)
			}
			return true
		case <-sub.Err():
			return false
		case <-c.Request.Context().Done():
			return false
		}
	})
}
