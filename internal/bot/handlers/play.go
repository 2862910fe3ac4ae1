package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/candy-heist/internal/bot/keyboard"
	apperrors "github.com/Proton-105/candy-heist/internal/errors"
	"github.com/Proton-105/candy-heist/internal/game"
	"github.com/Proton-105/candy-heist/internal/state"
)

var (
	errNoReplyTarget = errors.New("handlers: command is not a reply")
	errBotTarget     = errors.New("handlers: target is a bot")
	errBadAmount     = errors.New("handlers: amount is not a number")
)

// target is the player an interaction is aimed at.
type target struct {
	ID   int64
	Name string
}

// replyTarget is the author of the message c replies to.
func replyTarget(c telebot.Context) (target, error) {
	msg := c.Message()
	if msg == nil || msg.ReplyTo == nil || msg.ReplyTo.Sender == nil {
		return target{}, errNoReplyTarget
	}
	sender := msg.ReplyTo.Sender
	if sender.IsBot {
		return target{}, errBotTarget
	}
	return target{ID: sender.ID, Name: displayName(sender)}, nil
}

func targetError(command string, err error) error {
	if errors.Is(err, errBotTarget) {
		return apperrors.NewValidationError("bots don't carry candy").WithCause(err)
	}
	return apperrors.NewValidationError(fmt.Sprintf("reply to someone's message with %s", command)).WithCause(err)
}

// commandArgs returns the words after the command.
func commandArgs(c telebot.Context) []string {
	fields := strings.Fields(c.Text())
	if len(fields) <= 1 {
		return nil
	}
	return fields[1:]
}

func parseAmount(s string) (int64, error) {
	amount, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, apperrors.NewValidationError("the amount must be a whole number").WithCause(errBadAmount)
	}
	return amount, nil
}

// Interaction handles /heist and /snowball sent as a reply to the target's message.
func (g *Game) Interaction(action game.Action) Handler {
	command := "/" + string(action)

	return func(c telebot.Context) error {
		if c.Sender() == nil {
			return nil
		}

		tgt, err := replyTarget(c)
		if err != nil {
			return targetError(command, err)
		}

		return g.play(c, game.Request{
			Action:     action,
			ActorID:    playerID(c.Sender().ID),
			ActorName:  displayName(c.Sender()),
			TargetID:   playerID(tgt.ID),
			TargetName: tgt.Name,
		})
	}
}

// Lock handles /lock and the panel's lock button.
func (g *Game) Lock() Handler {
	return func(c telebot.Context) error {
		if c.Sender() == nil {
			return nil
		}

		return g.play(c, game.Request{
			Action:    game.ActionLock,
			ActorID:   playerID(c.Sender().ID),
			ActorName: displayName(c.Sender()),
		})
	}
}

// Gift handles "/gift [amount]" as a reply. Without an amount it starts the gift flow.
func (g *Game) Gift() Handler {
	return func(c telebot.Context) error {
		if c.Sender() == nil {
			return nil
		}

		tgt, err := replyTarget(c)
		if err != nil {
			return targetError("/gift", err)
		}

		args := commandArgs(c)
		if len(args) == 0 {
			return g.startGift(c, tgt)
		}

		amount, err := parseAmount(args[0])
		if err != nil {
			return err
		}

		return g.play(c, game.Request{
			Action:     game.ActionGift,
			ActorID:    playerID(c.Sender().ID),
			ActorName:  displayName(c.Sender()),
			TargetID:   playerID(tgt.ID),
			TargetName: tgt.Name,
			Amount:     amount,
		})
	}
}

// PanelAction handles the panel's targeted buttons: "act:<action>:<targetID>".
func (g *Game) PanelAction() CallbackHandler {
	return func(c telebot.Context) error {
		cb := c.Callback()
		if cb == nil || c.Sender() == nil {
			return nil
		}

		_, data, err := keyboard.DecodeCallback(cb.Data)
		if err != nil {
			return respondCallback(c, "Unknown button", true)
		}
		name, rawTarget, _ := strings.Cut(data, ":")

		action, err := game.ParseAction(name)
		if err != nil || !action.Targeted() {
			return respondCallback(c, "Unknown button", true)
		}
		targetID, err := strconv.ParseInt(rawTarget, 10, 64)
		if err != nil {
			return respondCallback(c, "Unknown button", true)
		}

		tgt := target{ID: targetID, Name: g.nameOf(RequestContext(c), cb.Message, targetID)}
		if action == game.ActionGift {
			return g.startGift(c, tgt)
		}

		return g.play(c, game.Request{
			Action:     action,
			ActorID:    playerID(c.Sender().ID),
			ActorName:  displayName(c.Sender()),
			TargetID:   playerID(tgt.ID),
			TargetName: tgt.Name,
		})
	}
}

// nameOf finds a display name for id: the author of the message the panel replied to,
// then the profile cache.
func (g *Game) nameOf(ctx context.Context, panel *telebot.Message, id int64) string {
	if panel != nil && panel.ReplyTo != nil && panel.ReplyTo.Sender != nil && panel.ReplyTo.Sender.ID == id {
		return displayName(panel.ReplyTo.Sender)
	}
	if g.Profiles != nil {
		if profile, err := g.Profiles.Get(ctx, id); err == nil && profile != nil {
			return profile.DisplayName()
		}
	}
	return ""
}

func (g *Game) startGift(c telebot.Context, tgt target) error {
	ctx := RequestContext(c)
	actor := c.Sender().ID

	if tgt.ID == actor {
		return apperrors.NewValidationError("you can't target yourself").WithCause(game.ErrSelfTarget)
	}

	err := g.FSM.TransitionTo(ctx, actor, state.StateGiftAmount, map[string]string{
		state.KeyTargetID:   playerID(tgt.ID),
		state.KeyTargetName: tgt.Name,
	})
	if err != nil {
		if errors.Is(err, state.ErrStateLocked) || errors.Is(err, state.ErrInvalidTransition) {
			return apperrors.NewStateError("gift flow busy").WithCause(err)
		}
		return err
	}

	label := tgt.Name
	if label == "" {
		label = "them"
	}
	return reply(c, fmt.Sprintf("How many Candy Canes 🍬 for %s? Pick one or type a number.", label), g.Keyboard.AmountButtons())
}

// GiftAmountText is the gift_amount state step for typed amounts.
func (g *Game) GiftAmountText() Handler {
	return func(c telebot.Context) error {
		if c.Sender() == nil {
			return nil
		}
		amount, err := parseAmount(c.Text())
		if err != nil {
			return err
		}
		return g.finishGift(c, amount)
	}
}

// GiftAmountButton handles the quick amount buttons: "amt:<n>".
func (g *Game) GiftAmountButton() CallbackHandler {
	return func(c telebot.Context) error {
		cb := c.Callback()
		if cb == nil || c.Sender() == nil {
			return nil
		}
		_, data, err := keyboard.DecodeCallback(cb.Data)
		if err != nil {
			return respondCallback(c, "Unknown button", true)
		}
		amount, err := parseAmount(data)
		if err != nil {
			return err
		}
		return g.finishGift(c, amount)
	}
}

func (g *Game) finishGift(c telebot.Context, amount int64) error {
	ctx := RequestContext(c)
	actor := c.Sender().ID

	current, err := g.FSM.GetState(ctx, actor)
	if err != nil && !errors.Is(err, state.ErrStateNotFound) {
		return err
	}
	if current == nil || current.CurrentState != state.StateGiftAmount || current.Value(state.KeyTargetID) == "" {
		return reply(c, "Pick who to gift first: reply to their message with /gift.")
	}

	req := game.Request{
		Action:     game.ActionGift,
		ActorID:    playerID(actor),
		ActorName:  displayName(c.Sender()),
		TargetID:   current.Value(state.KeyTargetID),
		TargetName: current.Value(state.KeyTargetName),
		Amount:     amount,
	}

	if err := g.play(c, req); err != nil {
		var appErr *apperrors.AppError
		// a bad amount keeps the flow open so the player can type another one
		if errors.As(err, &appErr) && appErr.Code == apperrors.CodeValidation {
			return err
		}
		g.clearState(ctx, actor)
		return err
	}

	g.clearState(ctx, actor)
	return nil
}

func (g *Game) clearState(ctx context.Context, userID int64) {
	if err := g.FSM.TransitionTo(ctx, userID, state.StateIdle, nil); err != nil {
		g.log().Warn("failed to reset gift flow", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

// play checks the action budget, resolves the request, answers the actor and notifies the target.
func (g *Game) play(c telebot.Context, req game.Request) error {
	ctx := RequestContext(c)

	if err := g.Guard.Allow(ctx, c.Sender().ID, string(req.Action)); err != nil {
		return err
	}

	outcome, err := g.Resolver.Resolve(ctx, req)
	if err != nil {
		return err
	}

	if err := reply(c, outcome.Message); err != nil {
		return apperrors.NewExternalAPIError("telegram", err)
	}

	if outcome.Notify != nil && g.Notifier != nil {
		if _, err := g.Notifier.Deliver(ctx, outcome.Notify); err != nil {
			g.log().WarnContext(ctx, "notification not delivered",
				slog.String("user_id", outcome.Notify.UserID), slog.Any("error", err))
		}
	}

	return nil
}
