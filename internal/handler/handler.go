package handler

import (
	"errors"
	"strconv"

	"walletcore/internal/config"
	"walletcore/internal/infrastructure/lock"
	"walletcore/internal/model"
	"walletcore/internal/repository"
	"walletcore/internal/service"
	"walletcore/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler bundles the service dependencies behind the HTTP surface.
type Handler struct {
	ledgerService *service.LedgerService
	applier       *service.Applier
	reconciler    *service.Reconciler
}

func NewHandler(db *gorm.DB, locker lock.Locker, cfg *config.Config, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		ledgerService: service.NewLedgerService(db, logger),
		applier:       service.NewApplier(db, locker, cfg, logger),
		reconciler:    service.NewReconciler(db, cfg, logger),
	}
}

// writeError maps domain errors onto business response codes.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrEventNotFound):
		response.BusinessError(c, response.CodeEventNotFound, err.Error())
	case errors.Is(err, repository.ErrEventStatusInvalid):
		response.BusinessError(c, response.CodeEventStatusInvalid, err.Error())
	case errors.Is(err, repository.ErrDuplicateReference):
		response.BusinessError(c, response.CodeDuplicateReference, err.Error())
	case errors.Is(err, repository.ErrAccountNotFound):
		response.BusinessError(c, response.CodeAccountNotFound, err.Error())
	case errors.Is(err, service.ErrApplyContention):
		response.BusinessError(c, response.CodeApplyContention, err.Error())
	case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrUnknownKind):
		response.ParamError(c, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

func parseUserID(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "invalid user_id")
		return 0, false
	}
	return userID, true
}

func parseAmount(c *gin.Context, raw string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		response.ParamError(c, "invalid amount")
		return decimal.Zero, false
	}
	return amount, true
}

// ============================================================
// Account endpoints
// ============================================================

// GetBalance returns the incrementally maintained balance.
// GET /api/v1/account/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	account, err := h.ledgerService.GetAccount(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":      account.UserID,
		"balance":      account.Balance,
		"kyc_verified": account.KYCVerified,
	})
}

// UpdateKYCRequest carries a KYC review outcome.
type UpdateKYCRequest struct {
	UserID   int64  `json:"user_id" binding:"required"`
	Status   string `json:"status" binding:"required"`
	Country  string `json:"country"`
	IDType   string `json:"id_type"`
	IDNumber string `json:"id_number"`
}

// UpdateKYC syncs the account verification flag from a review outcome.
// POST /api/v1/account/kyc
func (h *Handler) UpdateKYC(c *gin.Context) {
	var req UpdateKYCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	err := h.ledgerService.SetKYCStatus(c.Request.Context(), req.UserID, req.Status, req.Country, req.IDType, req.IDNumber)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"user_id": req.UserID, "status": req.Status})
}

// Reconcile compares the incremental balance with the recomputed one.
// GET /api/v1/account/reconcile?user_id=xxx
func (h *Handler) Reconcile(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	report, err := h.reconciler.Reconcile(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, report)
}

// ============================================================
// Event submission endpoints
// ============================================================

// SubmitDepositRequest creates a deposit awaiting admin approval.
type SubmitDepositRequest struct {
	UserID    int64  `json:"user_id" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	Reference string `json:"reference"`
}

// SubmitDeposit records a PENDING deposit; the balance moves only on
// admin approval.
// POST /api/v1/event/deposit
func (h *Handler) SubmitDeposit(c *gin.Context) {
	var req SubmitDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	event, err := h.ledgerService.CreateEvent(c.Request.Context(), &service.CreateEventRequest{
		UserID:    req.UserID,
		Kind:      model.EventKindDeposit,
		Amount:    amount,
		Reference: req.Reference,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, event)
}

type SubmitWithdrawRequest struct {
	UserID        int64  `json:"user_id" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	AccountNumber string `json:"account_number" binding:"required"`
	BankName      string `json:"bank_name" binding:"required"`
	Reference     string `json:"reference"`
}

// SubmitWithdraw records a PENDING withdrawal; the funds check happens at
// approval time, not submission time.
// POST /api/v1/event/withdraw
func (h *Handler) SubmitWithdraw(c *gin.Context) {
	var req SubmitWithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	event, err := h.ledgerService.CreateEvent(c.Request.Context(), &service.CreateEventRequest{
		UserID:        req.UserID,
		Kind:          model.EventKindWithdraw,
		Amount:        amount,
		Reference:     req.Reference,
		AccountNumber: req.AccountNumber,
		BankName:      req.BankName,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, event)
}

type SubmitBuyRequest struct {
	UserID    int64  `json:"user_id" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	ItemName  string `json:"item_name" binding:"required"`
	Reference string `json:"reference"`
}

// SubmitBuy creates and immediately approves a purchase. The apply outcome
// tells the caller whether the debit went through or was rejected for
// insufficient funds.
// POST /api/v1/event/buy
func (h *Handler) SubmitBuy(c *gin.Context) {
	var req SubmitBuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	event, err := h.ledgerService.CreateEvent(c.Request.Context(), &service.CreateEventRequest{
		UserID:    req.UserID,
		Kind:      model.EventKindBuy,
		Amount:    amount,
		Reference: req.Reference,
		ItemName:  req.ItemName,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := h.applier.Approve(c.Request.Context(), event.EventNo)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

type SubmitSwapRequest struct {
	UserID    int64  `json:"user_id" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	FromAsset string `json:"from_asset" binding:"required"`
	ToAsset   string `json:"to_asset" binding:"required"`
	Rate      string `json:"rate"`
	Reference string `json:"reference"`
}

// SubmitSwap creates and immediately approves a balance-neutral swap record.
// POST /api/v1/event/swap
func (h *Handler) SubmitSwap(c *gin.Context) {
	var req SubmitSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	rate := decimal.Zero
	if req.Rate != "" {
		var okRate bool
		rate, okRate = parseAmount(c, req.Rate)
		if !okRate {
			return
		}
	}

	event, err := h.ledgerService.CreateEvent(c.Request.Context(), &service.CreateEventRequest{
		UserID:    req.UserID,
		Kind:      model.EventKindSwap,
		Amount:    amount,
		Reference: req.Reference,
		FromAsset: req.FromAsset,
		ToAsset:   req.ToAsset,
		Rate:      rate,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := h.applier.Approve(c.Request.Context(), event.EventNo)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// GetEvent returns one event.
// GET /api/v1/event/detail?event_no=xxx
func (h *Handler) GetEvent(c *gin.Context) {
	eventNo := c.Query("event_no")
	if eventNo == "" {
		response.ParamError(c, "event_no is required")
		return
	}

	event, err := h.ledgerService.GetEvent(c.Request.Context(), eventNo)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, event)
}

// ListEvents returns the user's event feed, newest first.
// GET /api/v1/event/list?user_id=xxx&page=1&page_size=10
func (h *Handler) ListEvents(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	events, total, err := h.ledgerService.ListEvents(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      events,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ListEntries returns the applied-mutation audit trail for a user.
// GET /api/v1/entry/list?user_id=xxx&page=1&page_size=10
func (h *Handler) ListEntries(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	entries, total, err := h.ledgerService.ListEntries(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// Admin endpoints
// ============================================================

type EventActionRequest struct {
	EventNo string `json:"event_no" binding:"required"`
}

// ApproveEvent transitions an event to SUCCESSFUL and applies it. Calling it
// twice is safe; the second call reports ALREADY_APPLIED.
// POST /api/v1/admin/event/approve
func (h *Handler) ApproveEvent(c *gin.Context) {
	var req EventActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.applier.Approve(c.Request.Context(), req.EventNo)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// RejectEvent fails a pending event with no balance effect.
// POST /api/v1/admin/event/reject
func (h *Handler) RejectEvent(c *gin.Context) {
	var req EventActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	if err := h.applier.Reject(c.Request.Context(), req.EventNo); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"event_no": req.EventNo, "status": model.EventStatusFailed})
}
