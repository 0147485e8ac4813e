package dispatch

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"github.com/m3rciful/vpnbot/bot/backend"
	"github.com/m3rciful/vpnbot/bot/offer"
	"github.com/m3rciful/vpnbot/bot/session"
	"github.com/m3rciful/vpnbot/core/logger"
)

var contractViolations = []error{
	offer.ErrUnknownPlan,
	offer.ErrNoPendingAction,
	session.ErrInvalidTransition,
	ErrUnknownIntent,
	ErrUnknownDevice,
	ErrAdminOnly,
}

// IsContractViolation reports whether err is an event the current session
// cannot accept, as opposed to a failure.
func IsContractViolation(err error) bool {
	for _, target := range contractViolations {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// settle turns a handler error into a reply. Contract violations keep the
// session as is; every other error resets it before replying.
func (s *Service) settle(ctx context.Context, sess *session.Session, err error) error {
	if err == nil {
		return nil
	}
	if IsContractViolation(err) {
		logger.Info(ctx, logger.CompDispatch, "input.ignored",
			slog.String("status", "skip"), slog.Int64("user_id", sess.UserID),
			slog.String("stage", sess.Stage().String()), logger.Err(err))
		return s.reply(ctx, sess, textNotUnderstood)
	}

	s.store.Reset(sess)
	if de, ok := backend.AsDomainError(err); ok {
		logger.Info(ctx, logger.CompDispatch, "backend.refused",
			slog.String("status", "denied"), slog.Int64("user_id", sess.UserID), logger.Err(err))
		return s.reply(ctx, sess, esc(de.Message))
	}
	logger.Error(ctx, logger.CompDispatch, "handler.failed",
		slog.String("status", "fail"), slog.Int64("user_id", sess.UserID), logger.Err(err))
	return s.reply(ctx, sess, s.settings.Current().DefaultErrorMessage)
}

// failFresh reports an initialization failure to a user who has no session yet.
func (s *Service) failFresh(ctx context.Context, userID int64, err error) error {
	if de, ok := backend.AsDomainError(err); ok {
		logger.Info(ctx, logger.CompDispatch, "backend.refused",
			slog.String("status", "denied"), slog.Int64("user_id", userID), logger.Err(err))
		return s.transport.SendText(ctx, userID, esc(de.Message), nil)
	}
	logger.Error(ctx, logger.CompDispatch, "init.failed",
		slog.String("status", "fail"), slog.Int64("user_id", userID), logger.Err(err))
	return s.transport.SendText(ctx, userID, s.settings.Current().DefaultErrorMessage, nil)
}
