// Package records creates payment and transaction requests and renders
// them for their parties and reviewers.
package records

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payportal/internal/apperr"
	"payportal/internal/ledger"
	"payportal/internal/logging"
	"payportal/internal/store"
	"payportal/models"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// maxAmount keeps a single record well inside the NUMERIC(18, 2) columns
// that hold amounts and balances.
var maxAmount = decimal.New(1, 13)

// PaymentRequest names the recipient by email.
type PaymentRequest struct {
	RecipientEmail string
	SwiftCode      string
	Amount         decimal.Decimal
}

// TransactionRequest names the recipient by account number.
type TransactionRequest struct {
	RecipientAccountNumber string
	SwiftCode              string
	Amount                 decimal.Decimal
	Currency               string
}

// Service is the payment and transaction record store.
type Service struct {
	store  store.Store
	ledger *ledger.Ledger
	logger *logging.Logger
}

func New(s store.Store, l *ledger.Ledger, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{store: s, ledger: l, logger: logger.Named("records")}
}

// CreatePayment stores a pending payment from senderID.
func (s *Service) CreatePayment(ctx context.Context, senderID uuid.UUID, req PaymentRequest) (*models.RecordView, error) {
	if strings.TrimSpace(req.RecipientEmail) == "" {
		return nil, apperr.Validation("recipientEmail is required")
	}
	recipient, err := s.ledger.FindByEmail(ctx, req.RecipientEmail)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		return nil, apperr.NotFound("recipient not found")
	}

	rec := &models.Record{
		Kind:                   models.KindPayment,
		RecipientAccountNumber: recipient.AccountNumber,
		SwiftCode:              req.SwiftCode,
		Amount:                 req.Amount,
		Currency:               models.DefaultCurrency,
	}
	return s.create(ctx, senderID, recipient, rec)
}

// CreateTransaction stores a pending transaction from senderID. The
// recipient is resolved now and kept by id.
func (s *Service) CreateTransaction(ctx context.Context, senderID uuid.UUID, req TransactionRequest) (*models.RecordView, error) {
	number := strings.TrimSpace(req.RecipientAccountNumber)
	if number == "" {
		return nil, apperr.Validation("recipientAccountNumber is required")
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	recipient, err := s.ledger.FindByAccountNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		return nil, apperr.NotFound("recipient not found")
	}

	rec := &models.Record{
		Kind:                   models.KindTransaction,
		RecipientAccountNumber: number,
		SwiftCode:              req.SwiftCode,
		Amount:                 req.Amount,
		Currency:               currency,
	}
	return s.create(ctx, senderID, recipient, rec)
}

func normalizeCurrency(c string) (string, error) {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return models.DefaultCurrency, nil
	}
	if !currencyPattern.MatchString(c) {
		return "", apperr.Validation("currency must be a three-letter code")
	}
	return c, nil
}

func (s *Service) create(ctx context.Context, senderID uuid.UUID, recipient *models.Account, rec *models.Record) (*models.RecordView, error) {
	rec.SwiftCode = strings.TrimSpace(rec.SwiftCode)
	switch {
	case rec.SwiftCode == "":
		return nil, apperr.Validation("swiftCode is required")
	case !rec.Amount.IsPositive():
		return nil, apperr.Validation("amount must be positive")
	case !rec.Amount.Equal(rec.Amount.Round(2)):
		return nil, apperr.Validation("amount must have at most 2 decimal places")
	case rec.Amount.GreaterThan(maxAmount):
		return nil, apperr.Validation("amount must not exceed " + maxAmount.String())
	case recipient.ID == senderID:
		return nil, apperr.Validation("cannot send to your own account")
	}

	sender, err := s.ledger.FindByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if sender == nil {
		return nil, apperr.NotFound("sender not found")
	}

	rec.ID = uuid.New()
	rec.SenderID = sender.ID
	rec.RecipientID = recipient.ID
	rec.Status = models.StatusPending
	rec.Type = models.DirectionOutgoing

	if err := s.store.CreateRecord(ctx, rec); err != nil {
		return nil, apperr.Internal(err)
	}
	s.logger.Info("record created",
		zap.String("kind", string(rec.Kind)),
		zap.String("record_id", rec.ID.String()),
		zap.String("sender_id", sender.ID.String()),
		zap.String("amount", rec.Amount.String()))

	view := models.NewRecordView(*rec, sender.Summary(), recipient.Summary(), sender.ID)
	return &view, nil
}

// Get returns the record with its parties populated.
func (s *Service) Get(ctx context.Context, kind models.Kind, id uuid.UUID) (*models.RecordView, error) {
	rec, err := s.store.RecordByID(ctx, kind, id)
	if store.IsNotFound(err) {
		return nil, apperr.NotFound(string(kind) + " not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	views, err := s.populate(ctx, []models.Record{*rec}, uuid.Nil)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// Pending lists pending records oldest first, as shown to reviewers.
func (s *Service) Pending(ctx context.Context, kind models.Kind) ([]models.RecordView, error) {
	recs, err := s.store.PendingRecords(ctx, kind)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return s.populate(ctx, recs, uuid.Nil)
}

// History lists the viewer's records newest first, with direction relative
// to the viewer.
func (s *Service) History(ctx context.Context, kind models.Kind, viewerID uuid.UUID) ([]models.RecordView, error) {
	recs, err := s.store.RecordsForParty(ctx, kind, viewerID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return s.populate(ctx, recs, viewerID)
}

func (s *Service) populate(ctx context.Context, recs []models.Record, viewer uuid.UUID) ([]models.RecordView, error) {
	views := make([]models.RecordView, 0, len(recs))
	if len(recs) == 0 {
		return views, nil
	}

	seen := make(map[uuid.UUID]struct{}, len(recs)*2)
	ids := make([]uuid.UUID, 0, len(recs)*2)
	for _, r := range recs {
		for _, id := range []uuid.UUID{r.SenderID, r.RecipientID} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	accounts, err := s.store.AccountsByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	for _, r := range recs {
		views = append(views, models.NewRecordView(r, summary(accounts, r.SenderID), summary(accounts, r.RecipientID), viewer))
	}
	return views, nil
}

func summary(accounts map[uuid.UUID]*models.Account, id uuid.UUID) models.PartySummary {
	if a, ok := accounts[id]; ok {
		return a.Summary()
	}
	return models.PartySummary{ID: id}
}
