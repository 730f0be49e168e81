package customer

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"storefront-be/internal/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type Service interface {
	ResolveOrCreate(ctx context.Context, in ResolveInput) (*Customer, error)
	DeductCredit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func (s *service) ResolveOrCreate(ctx context.Context, in ResolveInput) (*Customer, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ResolveOrCreate"),
		zap.String("store_id", in.StoreID),
	)

	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}

	c := &Customer{
		StoreID: in.StoreID,
		Email:   email,
		Name:    strings.TrimSpace(in.Name),
		Phone:   strings.TrimSpace(in.Phone),
	}
	if err := s.repo.Upsert(ctx, c, in.Authenticated); err != nil {
		log.Error("failed to upsert customer", zap.Error(err))
		return nil, fmt.Errorf("upsert customer: %w", err)
	}

	if in.AcceptsMarketing != nil && *in.AcceptsMarketing != c.AcceptsMarketing {
		if err := s.repo.UpdateMarketing(ctx, c.ID, *in.AcceptsMarketing); err != nil {
			// opt-in is not worth failing a checkout over
			log.Warn("failed to update marketing consent", zap.Error(err))
		} else {
			c.AcceptsMarketing = *in.AcceptsMarketing
		}
	}

	if in.CreateAccount && in.Password != "" && !c.HasPassword {
		hash, err := HashPassword(in.Password)
		if err != nil {
			log.Warn("failed to hash password", zap.Error(err))
			return c, nil
		}
		set, err := s.repo.SetPasswordIfEmpty(ctx, c.ID, hash)
		if err != nil {
			log.Warn("failed to set password", zap.Error(err))
			return c, nil
		}
		c.HasPassword = c.HasPassword || set
	}

	log.Debug("customer resolved", zap.String("customer_id", c.ID.String()))
	return c, nil
}

func (s *service) DeductCredit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}
	ok, err := s.repo.DeductCredit(ctx, id, amount)
	if err != nil {
		return err
	}
	if !ok {
		logger.FromCtx(ctx).Warn("credit balance no longer covers used credit",
			zap.String("customer_id", id.String()),
			zap.String("amount", amount.String()),
		)
	}
	return nil
}
