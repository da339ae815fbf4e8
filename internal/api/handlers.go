package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payportal/internal/apperr"
	"payportal/internal/auth"
	"payportal/internal/ledger"
	"payportal/internal/records"
	"payportal/internal/statement"
	"payportal/models"
)

type registerRequest struct {
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	IDNumber string `json:"idNumber"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r registerRequest) registration() ledger.Registration {
	return ledger.Registration{
		Name:     r.Name,
		Surname:  r.Surname,
		IDNumber: r.IDNumber,
		Email:    r.Email,
		Password: r.Password,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type paymentRequest struct {
	RecipientEmail string          `json:"recipientEmail"`
	SwiftCode      string          `json:"swiftCode"`
	Amount         decimal.Decimal `json:"amount"`
}

type transactionRequest struct {
	RecipientAccountNumber string          `json:"recipientAccountNumber"`
	SwiftCode              string          `json:"swiftCode"`
	Amount                 decimal.Decimal `json:"amount"`
	Currency               string          `json:"currency"`
}

// sessionUser is the account summary returned with a token.
type sessionUser struct {
	ID   uuid.UUID   `json:"id"`
	Name string      `json:"name"`
	Role models.Role `json:"role"`
}

func (s *Server) session(c *gin.Context, status int, acc *models.Account) {
	token, err := s.Tokens.Issue(acc)
	if err != nil {
		s.respondError(c, apperr.Internal(err))
		return
	}
	c.JSON(status, gin.H{
		"token": token,
		"user":  sessionUser{ID: acc.ID, Name: acc.Name, Role: acc.Role},
	})
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	return true
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}

	acc, err := s.Ledger.Register(c.Request.Context(), req.registration())
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.session(c, http.StatusCreated, acc)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	key := ledger.NormalizeEmail(req.Email)

	allowed, err := s.Limiter.Allow(ctx, key)
	if err != nil {
		s.Logger.Warn("login throttle unavailable", zap.Error(err))
		allowed = true
	}
	if !allowed {
		s.respondError(c, apperr.New(apperr.KindTooManyRequests, "too many login attempts, try again later"))
		return
	}

	acc, err := s.Ledger.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.Limiter.Reset(ctx, key); err != nil {
		s.Logger.Warn("failed to reset login throttle", zap.Error(err))
	}
	s.session(c, http.StatusOK, acc)
}

func principal(c *gin.Context) auth.Principal {
	p, _ := auth.PrincipalFrom(c)
	return p
}

func (s *Server) handleCreatePayment(c *gin.Context) {
	var req paymentRequest
	if !bind(c, &req) {
		return
	}

	view, err := s.Records.CreatePayment(c.Request.Context(), principal(c).AccountID, records.PaymentRequest{
		RecipientEmail: req.RecipientEmail,
		SwiftCode:      req.SwiftCode,
		Amount:         req.Amount,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Payment created successfully", "payment": view})
}

func (s *Server) handleCreateTransaction(c *gin.Context) {
	var req transactionRequest
	if !bind(c, &req) {
		return
	}

	view, err := s.Records.CreateTransaction(c.Request.Context(), principal(c).AccountID, records.TransactionRequest{
		RecipientAccountNumber: req.RecipientAccountNumber,
		SwiftCode:              req.SwiftCode,
		Amount:                 req.Amount,
		Currency:               req.Currency,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Transaction created successfully", "transaction": view})
}

func (s *Server) handleHistory(kind models.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		views, err := s.Records.History(c.Request.Context(), kind, principal(c).AccountID)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, views)
	}
}

func (s *Server) handlePending(kind models.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		views, err := s.Records.Pending(c.Request.Context(), kind)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, views)
	}
}

type decideFunc func(ctx context.Context, kind models.Kind, id, actor uuid.UUID) (*models.Record, error)

func (s *Server) handleApprove(kind models.Kind) gin.HandlerFunc {
	message := "Payment approved and processed"
	if kind == models.KindTransaction {
		message = "Transaction approved"
	}
	return s.handleDecision(kind, s.Approvals.Approve, message)
}

func (s *Server) handleReject(kind models.Kind) gin.HandlerFunc {
	message := "Payment rejected"
	if kind == models.KindTransaction {
		message = "Transaction rejected"
	}
	return s.handleDecision(kind, s.Approvals.Reject, message)
}

func (s *Server) handleDecision(kind models.Kind, decide decideFunc, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			s.respondError(c, apperr.NotFound(string(kind)+" not found"))
			return
		}
		ctx := c.Request.Context()

		if _, err := decide(ctx, kind, id, principal(c).AccountID); err != nil {
			s.respondError(c, err)
			return
		}
		view, err := s.Records.Get(ctx, kind, id)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": message, string(kind): view})
	}
}

func (s *Server) handleAddAdmin(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}

	acc, err := s.Ledger.RegisterAdmin(c.Request.Context(), req.registration())
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.Logger.Info("admin added",
		zap.String("admin_id", acc.ID.String()),
		zap.String("added_by", principal(c).AccountID.String()))
	c.JSON(http.StatusCreated, gin.H{"message": "New admin added successfully", "admin": acc})
}

func (s *Server) handleAudit(c *gin.Context) {
	if s.Audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit trail not configured"})
		return
	}
	kind, err := models.ParseKind(c.Param("kind"))
	if err != nil {
		s.respondError(c, apperr.Validation(err.Error()))
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.respondError(c, apperr.Validation("invalid record id"))
		return
	}

	entries, err := s.Audit.ForRecord(c.Request.Context(), string(kind), id.String())
	if err != nil {
		s.respondError(c, apperr.Internal(err))
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) currentAccount(c *gin.Context) (*models.Account, bool) {
	acc, err := s.Ledger.FindByID(c.Request.Context(), principal(c).AccountID)
	if err != nil {
		s.respondError(c, err)
		return nil, false
	}
	if acc == nil {
		s.respondError(c, apperr.NotFound("user not found"))
		return nil, false
	}
	return acc, true
}

func (s *Server) handleBalance(c *gin.Context) {
	acc, ok := s.currentAccount(c)
	if !ok {
		return
	}
	views, err := s.Records.History(c.Request.Context(), models.KindTransaction, acc.ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"balance":       acc.Balance,
		"accountNumber": acc.AccountNumber,
		"transactions":  views,
	})
}

// profile is the public view of an account; the national ID, role and
// balance stay out of it.
type profile struct {
	Name          string `json:"name"`
	Surname       string `json:"surname"`
	Email         string `json:"email"`
	AccountNumber string `json:"accountNumber"`
}

func (s *Server) handleProfile(c *gin.Context) {
	acc, ok := s.currentAccount(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, profile{
		Name:          acc.Name,
		Surname:       acc.Surname,
		Email:         acc.Email,
		AccountNumber: acc.AccountNumber,
	})
}

func (s *Server) handleStatement(kind models.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		format, err := statement.ParseFormat(c.Query("format"))
		if err != nil {
			s.respondError(c, apperr.Validation(err.Error()))
			return
		}
		acc, ok := s.currentAccount(c)
		if !ok {
			return
		}
		views, err := s.Records.History(c.Request.Context(), kind, acc.ID)
		if err != nil {
			s.respondError(c, err)
			return
		}

		doc := statement.Statement{Owner: acc, Kind: kind, Records: views, GeneratedAt: time.Now().UTC()}
		var buf bytes.Buffer
		if err := statement.Render(&buf, format, doc); err != nil {
			s.respondError(c, apperr.Internal(err))
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename(format)))
		c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.Storage.Ping(ctx); err != nil {
		s.Logger.Warn("storage ping failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "storage_unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
