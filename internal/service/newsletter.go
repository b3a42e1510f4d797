package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kkkkikiki/loyalty/internal/email"
	"github.com/kkkkikiki/loyalty/internal/repository"
)

const newsletterMission = "newsletter"

// NewsletterService subscribes addresses to the marketing audience.
type NewsletterService struct {
	deps     *Deps
	missions *MissionService
}

// Subscribe adds address to the audience and emails a welcome code to new
// contacts. It reports alreadySubscribed when the contact existed. Loyalty members also
// complete the newsletter mission, best-effort.
func (s *NewsletterService) Subscribe(ctx context.Context, address string) (alreadySubscribed bool, err error) {
	defer track("newsletter_subscribe", &err)()

	address, err = requireEmail(address)
	if err != nil {
		return false, err
	}
	if s.deps.Audience == nil {
		return false, internalError("newsletter is not configured", nil)
	}

	added, err := s.deps.Audience.AddContact(ctx, address)
	if err != nil {
		return false, upstreamError("failed to subscribe", err)
	}
	if !added {
		return true, nil
	}

	data := email.WelcomeData{ShopURL: s.deps.Email.ShopURL}
	var commerceID string
	if c, err := s.deps.Store.GetCustomer(ctx, address); err == nil {
		data.FirstName, commerceID = c.FirstName, c.CommerceID
	}
	if dc := s.deps.welcomeCode(ctx, address, data.FirstName, commerceID); dc != nil {
		data.Code, data.Percent = dc.Code, s.deps.Loyalty.WelcomePercent
	}
	s.deps.notify(ctx, email.TemplateNewsletter, address, data)

	if _, err := s.deps.Store.GetAccount(ctx, address); err == nil {
		if _, err := s.missions.CompleteBySlug(ctx, address, newsletterMission); err != nil && KindOf(err) != KindConflict {
			s.deps.Logger.Warn("newsletter mission not credited", zap.String("email", address), zap.Error(err))
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		s.deps.Logger.Warn("failed to load account", zap.String("email", address), zap.Error(err))
	}
	return false, nil
}
