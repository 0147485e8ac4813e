package dispatch

import (
	"context"
	"log/slog"

	"github.com/m3rciful/vpnbot/bot/backend"
	"github.com/m3rciful/vpnbot/bot/menu"
	"github.com/m3rciful/vpnbot/bot/offer"
	"github.com/m3rciful/vpnbot/bot/session"
	"github.com/m3rciful/vpnbot/core/logger"
)

// initialize runs for the first event of a user without a session: it binds
// an existing account or registers a new one with a trial subscription.
// No session is created while the user has no Telegram username.
func (s *Service) initialize(ctx context.Context, from Sender, referral string) error {
	if s.IsAdmin(from.ID) {
		if err := s.transport.SendText(ctx, from.ID, textAdminGreeting, nil); err != nil {
			return err
		}
	}

	user, err := s.backend.FindUser(ctx, from.ID)
	if err != nil {
		return s.failFresh(ctx, from.ID, err)
	}
	if user != nil {
		sess, err := s.store.Create(from.ID, session.Init{Handle: user.Telegram})
		if err != nil {
			return err
		}
		logger.Info(ctx, logger.CompDispatch, "session.created",
			slog.String("status", "ok"), slog.Int64("user_id", from.ID), slog.String("mode", "returning"))
		return s.reply(ctx, sess, textWelcomeBack(user.Nickname))
	}

	if from.Username == "" {
		logger.Info(ctx, logger.CompDispatch, "registration.deferred",
			slog.String("status", "skip"), slog.Int64("user_id", from.ID))
		return s.transport.SendText(ctx, from.ID, textNoUsername, menu.HandleDone())
	}

	reg := backend.Registration{Telegram: from.Username, Nickname: from.FirstName, TelegramID: from.ID}
	if referral != "" {
		inviter, err := s.backend.FindUserByInviteCode(ctx, referral)
		if err != nil {
			return s.failFresh(ctx, from.ID, err)
		}
		if inviter != nil {
			reg.InvitedWithCode = referral
		}
	}
	if err := s.backend.RegisterUser(ctx, reg); err != nil {
		return s.failFresh(ctx, from.ID, err)
	}
	svc, err := s.backend.ServiceConfig(ctx)
	if err != nil {
		return s.failFresh(ctx, from.ID, err)
	}

	sess, err := s.store.Create(from.ID, session.Init{Handle: from.Username})
	if err != nil {
		return err
	}
	logger.Info(ctx, logger.CompDispatch, "session.created",
		slog.String("status", "ok"), slog.Int64("user_id", from.ID), slog.String("mode", "registered"),
		slog.Bool("referred", reg.InvitedWithCode != ""))

	out, err := s.workflow.ActivateTrial(ctx, sess)
	if err != nil {
		return s.settle(ctx, sess, err)
	}
	if out.Kind != offer.KindActivated {
		return s.settle(ctx, sess, s.present(ctx, sess, out))
	}
	return s.reply(ctx, sess, textWelcome(svc.WelcomeMessage, out.Connection))
}
