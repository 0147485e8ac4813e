package dispatch

import (
	"context"
	"log/slog"

	"github.com/m3rciful/vpnbot/bot/backend"
	"github.com/m3rciful/vpnbot/bot/offer"
	"github.com/m3rciful/vpnbot/bot/session"
	"github.com/m3rciful/vpnbot/core/logger"
)

// present renders a workflow outcome. Keyboards come from the session,
// which the workflow has already updated.
func (s *Service) present(ctx context.Context, sess *session.Session, out offer.Outcome) error {
	switch out.Skip {
	case offer.PromoUnsupported:
		if err := s.transport.SendText(ctx, sess.UserID, textNoPromo, nil); err != nil {
			return err
		}
	case offer.PromoPaidBefore:
		if err := s.transport.SendText(ctx, sess.UserID, textPaidBefore, nil); err != nil {
			return err
		}
	}

	switch out.Kind {
	case offer.KindCatalog:
		return s.reply(ctx, sess, textCatalog)
	case offer.KindPromoPrompt:
		return s.reply(ctx, sess, textPromoPrompt)
	case offer.KindPromoTooLong:
		return s.reply(ctx, sess, textPromoTooLong)
	case offer.KindPromoRejected:
		return s.reply(ctx, sess, textPromoRejected(out.Message))
	case offer.KindTrialUsed:
		return s.reply(ctx, sess, textTrialUsed)
	case offer.KindActivated:
		return s.activated(ctx, sess, out)
	case offer.KindPaymentRequired:
		caption := textPayment(out.Offer, s.cfg.PaymentInstructions)
		if len(s.cfg.PaymentImage) == 0 {
			return s.reply(ctx, sess, caption)
		}
		return s.transport.SendImage(ctx, sess.UserID, s.cfg.PaymentImage, caption, sess.Replies)
	case offer.KindConfirmed:
		return s.reply(ctx, sess, textConfirmed(out.Offer))
	case offer.KindCancelled:
		return s.reply(ctx, sess, textHome)
	case offer.KindPaymentPending:
		return s.reply(ctx, sess, textPaymentPending)
	}
	return nil
}

// activated shows the new connection. Missing status or service config only
// shortens the caption.
func (s *Service) activated(ctx context.Context, sess *session.Session, out offer.Outcome) error {
	var svc *backend.ServiceConfig
	if out.Status != nil {
		cfg, err := s.backend.ServiceConfig(ctx)
		if err != nil {
			logger.Warn(ctx, logger.CompDispatch, "service_config.degraded",
				slog.String("status", "skip"), slog.Int64("user_id", sess.UserID), logger.Err(err))
		} else {
			svc = cfg
		}
	}
	return s.sendConnection(ctx, sess, out.Connection, textStatus(out.Connection, out.Status, svc, s.cfg.BotUsername))
}
