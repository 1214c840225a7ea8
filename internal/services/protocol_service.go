package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soaringjerry/Sigmo/internal/questionnaire"
)

type ProtocolStore interface {
	InsertProtocol(ctx context.Context, p *Protocol) error
	GetProtocol(ctx context.Context, id string) (*Protocol, error)
	GetProtocolByShareLink(ctx context.Context, shareLink string) (*Protocol, error)
	UpdateProtocol(ctx context.Context, p *Protocol) error
	DeleteProtocol(ctx context.Context, id string) error
	ListProtocols(ctx context.Context, createdBy string) ([]*Protocol, error)
	CountParticipants(ctx context.Context, protocolID string) (int, error)
}

type ProtocolService struct {
	store         ProtocolStore
	now           func() time.Time
	idGen         func(n int) string
	defaultPeriod int
}

// ProtocolInput is the admin payload for creating or updating a protocol.
// Nil fields are left unchanged on update.
type ProtocolInput struct {
	Title          *string `json:"title"`
	Description    *string `json:"description"`
	ShareLink      *string `json:"shareLink"`
	ProductName    *string `json:"productName"`
	TestPeriodDays *int    `json:"testPeriodDays"`
	MaterialState  *string `json:"materialState"`
}

func NewProtocolService(store ProtocolStore) *ProtocolService {
	return &ProtocolService{
		store:         store,
		now:           func() time.Time { return time.Now().UTC() },
		idGen:         shortID,
		defaultPeriod: DefaultTestPeriodDays,
	}
}

// SetDefaultPeriod changes the test length given to protocols created without one.
func (s *ProtocolService) SetDefaultPeriod(days int) {
	if days >= 1 && days <= MaxTestPeriodDays {
		s.defaultPeriod = days
	}
}

func (s *ProtocolService) Create(ctx context.Context, adminID string, in ProtocolInput) (*Protocol, error) {
	if adminID == "" {
		return nil, NewForbiddenError("unauthorized")
	}
	now := s.now()
	p := &Protocol{
		ID:             s.idGen(10),
		TestPeriodDays: s.defaultPeriod,
		MaterialState:  string(questionnaire.StateNewBag),
		CreatedBy:      adminID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := applyProtocolInput(p, in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Title) == "" {
		return nil, NewFieldError("title", "required")
	}
	if p.ShareLink == "" {
		p.ShareLink = s.idGen(12)
	}
	if err := s.store.InsertProtocol(ctx, p); err != nil {
		if errors.Is(err, questionnaire.ErrDuplicate) {
			return nil, NewConflictError("share link already in use")
		}
		return nil, err
	}
	return p, nil
}

func (s *ProtocolService) Get(ctx context.Context, adminID, id string) (*Protocol, error) {
	p, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.CreatedBy != adminID {
		return nil, NewForbiddenError("forbidden")
	}
	return p, nil
}

// GetByShareLink resolves the protocol a participant joined.
func (s *ProtocolService) GetByShareLink(ctx context.Context, shareLink string) (*Protocol, error) {
	shareLink = strings.TrimSpace(shareLink)
	if shareLink == "" {
		return nil, NewFieldError("shareLink", "required")
	}
	p, err := s.store.GetProtocolByShareLink(ctx, shareLink)
	if errors.Is(err, questionnaire.ErrNotFound) {
		return nil, NewNotFoundError("protocol not found")
	}
	return p, err
}

func (s *ProtocolService) List(ctx context.Context, adminID string) ([]*Protocol, error) {
	if adminID == "" {
		return nil, NewForbiddenError("unauthorized")
	}
	return s.store.ListProtocols(ctx, adminID)
}

func (s *ProtocolService) Update(ctx context.Context, adminID, id string, in ProtocolInput) (*Protocol, error) {
	p, err := s.Get(ctx, adminID, id)
	if err != nil {
		return nil, err
	}
	if in.TestPeriodDays != nil && *in.TestPeriodDays != p.TestPeriodDays {
		n, err := s.store.CountParticipants(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, NewConflictError("test period cannot change after participants joined")
		}
	}
	updated := *p
	if err := applyProtocolInput(&updated, in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(updated.Title) == "" {
		return nil, NewFieldError("title", "required")
	}
	updated.UpdatedAt = s.now()
	if err := s.store.UpdateProtocol(ctx, &updated); err != nil {
		if errors.Is(err, questionnaire.ErrDuplicate) {
			return nil, NewConflictError("share link already in use")
		}
		return nil, err
	}
	return &updated, nil
}

func (s *ProtocolService) Delete(ctx context.Context, adminID, id string) error {
	if _, err := s.Get(ctx, adminID, id); err != nil {
		return err
	}
	return s.store.DeleteProtocol(ctx, id)
}

func (s *ProtocolService) lookup(ctx context.Context, id string) (*Protocol, error) {
	if strings.TrimSpace(id) == "" {
		return nil, NewFieldError("id", "required")
	}
	p, err := s.store.GetProtocol(ctx, id)
	if errors.Is(err, questionnaire.ErrNotFound) {
		return nil, NewNotFoundError("protocol not found")
	}
	return p, err
}

func applyProtocolInput(p *Protocol, in ProtocolInput) error {
	if in.Title != nil {
		p.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		p.Description = strings.TrimSpace(*in.Description)
	}
	if in.ProductName != nil {
		p.ProductName = strings.TrimSpace(*in.ProductName)
	}
	if in.ShareLink != nil {
		link := strings.TrimSpace(*in.ShareLink)
		if link == "" || strings.ContainsAny(link, "/?# ") {
			return NewFieldError("shareLink", "must be a non-empty path segment")
		}
		p.ShareLink = link
	}
	if in.TestPeriodDays != nil {
		d := *in.TestPeriodDays
		if d < 1 || d > MaxTestPeriodDays {
			return NewFieldError("testPeriodDays", "must be between 1 and 60")
		}
		p.TestPeriodDays = d
	}
	if in.MaterialState != nil {
		next := questionnaire.MaterialState(*in.MaterialState)
		if !next.Valid() {
			return NewFieldError("materialState", "unknown state")
		}
		if next.Before(questionnaire.MaterialState(p.MaterialState)) {
			return NewFieldError("materialState", "cannot move backwards")
		}
		p.MaterialState = string(next)
	}
	return nil
}

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
