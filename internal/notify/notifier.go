// Package notify delivers the out-of-band messages produced by resolved interactions.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	apperrors "github.com/Proton-105/candy-heist/internal/errors"
	"github.com/Proton-105/candy-heist/internal/game"
	"github.com/Proton-105/candy-heist/internal/ledger"
	"github.com/Proton-105/candy-heist/pkg/metrics"
)

const (
	ResultSent    = "sent"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// Sender is the part of *tele.Bot the notifier needs.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

// Notifier sends a direct message for each Directive, replacing the previous one so a player
// only ever has the latest notice in their DMs.
type Notifier struct {
	sender  Sender
	ledger  *ledger.Ledger
	breaker *apperrors.CircuitBreaker
	markup  *tele.ReplyMarkup
	log     *slog.Logger
}

// New builds a Notifier. markup, when not nil, is attached to every notice; the bot passes the
// DM toggle so players can opt out from the notice itself.
func New(sender Sender, accounts *ledger.Ledger, breaker *apperrors.CircuitBreaker, markup *tele.ReplyMarkup, log *slog.Logger) *Notifier {
	if breaker == nil {
		breaker = apperrors.NewCircuitBreaker()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		sender:  sender,
		ledger:  accounts,
		breaker: breaker,
		markup:  markup,
		log:     log.With(slog.String("component", "notifier")),
	}
}

// Deliver sends d and returns the outcome label. A nil directive is skipped.
// Players who opted out since the interaction resolved are skipped too.
func (n *Notifier) Deliver(ctx context.Context, d *game.Directive) (string, error) {
	if d == nil {
		return ResultSkipped, nil
	}

	chatID, err := strconv.ParseInt(d.UserID, 10, 64)
	if err != nil {
		metrics.RecordNotification(ResultFailed)
		return ResultFailed, apperrors.NewValidationError(fmt.Sprintf("cannot message player %q", d.UserID)).WithCause(err)
	}

	rec, err := n.ledger.Get(ctx, d.UserID)
	if err != nil {
		metrics.RecordNotification(ResultFailed)
		return ResultFailed, err
	}
	if rec.NotifyOptOut {
		metrics.RecordNotification(ResultSkipped)
		return ResultSkipped, nil
	}

	if previous, ok := ParseRef(rec.LastNotificationRef); ok {
		if err := n.sender.Delete(previous); err != nil {
			n.log.DebugContext(ctx, "previous notification not deleted",
				slog.String("user_id", d.UserID), slog.Any("error", err))
		}
	}

	var opts []interface{}
	if n.markup != nil {
		opts = append(opts, n.markup)
	}

	var sent *tele.Message
	err = n.breaker.Call(func() error {
		msg, sendErr := n.sender.Send(tele.ChatID(chatID), d.Text, opts...)
		if recipientError(sendErr) {
			// the player's own settings, not a Telegram outage
			return nil
		}
		sent = msg
		return sendErr
	})
	if err != nil {
		metrics.RecordNotification(ResultFailed)
		return ResultFailed, apperrors.NewExternalAPIError("telegram", err)
	}
	if sent == nil {
		metrics.RecordNotification(ResultFailed)
		n.log.InfoContext(ctx, "player cannot receive notifications", slog.String("user_id", d.UserID))
		return ResultFailed, nil
	}

	metrics.RecordNotification(ResultSent)
	if err := n.ledger.RecordNotification(ctx, d.UserID, FormatRef(sent.Chat.ID, sent.ID)); err != nil {
		n.log.WarnContext(ctx, "failed to remember notification", slog.String("user_id", d.UserID), slog.Any("error", err))
	}
	return ResultSent, nil
}

func recipientError(err error) bool {
	return errors.Is(err, tele.ErrBlockedByUser) ||
		errors.Is(err, tele.ErrNotStartedByUser) ||
		errors.Is(err, tele.ErrUserIsDeactivated) ||
		errors.Is(err, tele.ErrChatNotFound)
}

// FormatRef encodes a sent message as "chatID:messageID".
func FormatRef(chatID int64, messageID int) string {
	return fmt.Sprintf("%d:%d", chatID, messageID)
}

// ParseRef decodes a reference written by FormatRef.
func ParseRef(ref string) (tele.StoredMessage, bool) {
	chat, msg, ok := strings.Cut(ref, ":")
	if !ok {
		return tele.StoredMessage{}, false
	}
	chatID, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return tele.StoredMessage{}, false
	}
	if _, err := strconv.Atoi(msg); err != nil {
		return tele.StoredMessage{}, false
	}
	return tele.StoredMessage{MessageID: msg, ChatID: chatID}, true
}
