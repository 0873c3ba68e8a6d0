// Package emailcapture issues newsletter discount codes, one per email.
package emailcapture

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"

	"github.com/angelmondragon/miravo-storefront/pkg/db"
	"github.com/angelmondragon/miravo-storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
	"github.com/angelmondragon/miravo-storefront/pkg/metrics"
	"gorm.io/gorm"
)

const (
	MessageReturning = "Welcome back! Your discount code is still valid."
	MessageNew       = "You've unlocked 15% off! Use this code at checkout."

	codeSuffixLen = 6
	codeAlphabet  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

type Result struct {
	Success      bool   `json:"success"`
	DiscountCode string `json:"discountCode"`
	Message      string `json:"message"`
}

// Repository stores captured emails.
type Repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

// FindByEmail returns nil when the email was never captured.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.EmailCapture, error) {
	var capture models.EmailCapture
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&capture).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &capture, nil
}

func (r *Repository) Create(ctx context.Context, capture *models.EmailCapture) error {
	return r.db.WithContext(ctx).Create(capture).Error
}

type Service struct {
	repo    *Repository
	prefix  string
	logg    *logger.Logger
	metrics *metrics.Storefront
	random  func(n int) int
}

func NewService(repo *Repository, prefix string, logg *logger.Logger, m *metrics.Storefront) *Service {
	if logg == nil {
		logg = logger.Nop()
	}
	if prefix == "" {
		prefix = "MIRAVO15"
	}
	return &Service{repo: repo, prefix: prefix, logg: logg, metrics: m, random: rand.IntN}
}

// Capture returns the email's discount code, issuing one on first capture.
func (s *Service) Capture(ctx context.Context, email, name string) (Result, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "Email is required")
	}

	existing, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		s.metrics.EmailCapture("error")
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to save email")
	}
	if existing != nil {
		s.metrics.EmailCapture("returning")
		return Result{Success: true, DiscountCode: existing.DiscountCode, Message: MessageReturning}, nil
	}

	capture := &models.EmailCapture{Email: email, DiscountCode: s.newCode()}
	if name = strings.TrimSpace(name); name != "" {
		capture.Name = &name
	}
	if err := s.repo.Create(ctx, capture); err != nil {
		// A concurrent capture of the same email won the insert.
		if db.IsUniqueViolation(err, "") {
			if winner, findErr := s.repo.FindByEmail(ctx, email); findErr == nil && winner != nil {
				s.metrics.EmailCapture("returning")
				return Result{Success: true, DiscountCode: winner.DiscountCode, Message: MessageReturning}, nil
			}
		}
		s.metrics.EmailCapture("error")
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to save email")
	}

	s.metrics.EmailCapture("new")
	s.logg.Info(s.logg.WithField(ctx, "discount_code", capture.DiscountCode), "email_capture.issued")
	return Result{Success: true, DiscountCode: capture.DiscountCode, Message: MessageNew}, nil
}

func (s *Service) newCode() string {
	var b strings.Builder
	b.Grow(len(s.prefix) + 1 + codeSuffixLen)
	b.WriteString(s.prefix)
	b.WriteByte('-')
	for i := 0; i < codeSuffixLen; i++ {
		b.WriteByte(codeAlphabet[s.random(len(codeAlphabet))])
	}
	return b.String()
}
