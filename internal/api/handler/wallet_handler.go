package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cuongbtq/cashback-jobs/internal/api/dto"
	"github.com/cuongbtq/cashback-jobs/internal/wallet"
	"github.com/gin-gonic/gin"
)

func userIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "user_id must be a positive integer",
		})
		return 0, false
	}
	return id, true
}

// writeWalletError maps ledger errors onto status codes
func (h *WalletHandler) writeWalletError(c *gin.Context, userID int64, err error) {
	switch {
	case errors.Is(err, wallet.ErrLockConflict):
		c.JSON(http.StatusConflict, gin.H{
			"error": "Another transaction is in progress. Please try again.",
		})
	case errors.Is(err, wallet.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "account not found",
		})
	case wallet.IsClientError(err):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
	default:
		h.logger.Error("Wallet operation failed",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Wallet operation failed",
		})
	}
}

// ConvertCashback handles POST /api/v1/wallet/:user_id/convert-cashback
func (h *WalletHandler) ConvertCashback(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	var req dto.ConvertCashbackRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}
	}

	result, err := h.wallet.ConvertPendingCashback(c.Request.Context(), userID, req.Amount)
	if err != nil {
		h.writeWalletError(c, userID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// Withdraw handles POST /api/v1/wallet/:user_id/withdraw
func (h *WalletHandler) Withdraw(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	var req dto.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	result, err := h.wallet.RequestWithdrawal(c.Request.Context(), wallet.WithdrawalRequest{
		UserID:            userID,
		Amount:            req.Amount,
		Method:            wallet.Method(req.Method),
		UPIID:             req.UPIID,
		BankAccountNumber: req.BankAccountNumber,
		BankIFSC:          req.BankIFSC,
		BankAccountName:   req.BankAccountName,
	})
	if err != nil {
		h.writeWalletError(c, userID, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    result,
	})
}
