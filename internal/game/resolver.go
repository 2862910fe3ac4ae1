// Package game resolves player interactions against the candy ledger.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Proton-105/candy-heist/internal/banter"
	apperrors "github.com/Proton-105/candy-heist/internal/errors"
	"github.com/Proton-105/candy-heist/internal/ledger"
	"github.com/Proton-105/candy-heist/internal/store"
	"github.com/Proton-105/candy-heist/pkg/metrics"
	"github.com/Proton-105/candy-heist/pkg/random"
)

var (
	ErrNonPositiveAmount = errors.New("game: amount must be positive")
	ErrSelfTarget        = errors.New("game: actor and target are the same user")
	ErrMissingActor      = errors.New("game: actor is required")
	ErrMissingTarget     = errors.New("game: target is required")
	ErrUnknownAction     = errors.New("game: unknown action")
)

const snowballMissMessage = "Your snowball missed and hit a reindeer 🦌"

// Resolver turns a Request into an Outcome in a single store transaction.
type Resolver struct {
	store    *store.Store
	rotation *banter.Rotation
	rnd      random.Source
	now      func() time.Time
	rules    Rules
	log      *slog.Logger
	accounts *ledger.Ledger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithRules replaces the default rules. Zero fields keep their default.
func WithRules(rules Rules) Option {
	return func(r *Resolver) {
		r.rules = rules.withDefaults()
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Resolver) {
		if log != nil {
			r.log = log
		}
	}
}

// NewResolver builds a Resolver. rnd drives every probability roll; rotation supplies banter.
func NewResolver(s *store.Store, rotation *banter.Rotation, rnd random.Source, opts ...Option) *Resolver {
	r := &Resolver{
		store:    s,
		rotation: rotation,
		rnd:      rnd,
		now:      time.Now,
		rules:    DefaultRules(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(slog.String("component", "resolver"))
	r.accounts = ledger.New(s, r.now, r.rules.LockDuration)
	return r
}

// Ledger exposes single-record operations that share the resolver's clock and rules.
func (r *Resolver) Ledger() *ledger.Ledger {
	return r.accounts
}

// Rules returns the rules in effect.
func (r *Resolver) Rules() Rules {
	return r.rules
}

// Resolve validates req and applies it. Validation problems come back as validation AppErrors
// and leave the ledger untouched; rule rejections come back as an Outcome kind.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Outcome, error) {
	if err := validate(req); err != nil {
		metrics.RecordInteraction(string(req.Action), "invalid", 0)
		return Outcome{}, err
	}

	var out Outcome
	err := r.store.Transact(ctx, func(tx *store.Tx) error {
		var err error
		switch req.Action {
		case ActionGift:
			out, err = r.gift(tx, req)
		case ActionHeist:
			out, err = r.heist(tx, req)
		case ActionSnowball:
			out, err = r.snowball(tx, req)
		case ActionLock:
			out, err = r.lock(tx, req)
		}
		return err
	})
	if err != nil {
		metrics.RecordInteraction(string(req.Action), "error", 0)
		return Outcome{}, wrapStoreError(err)
	}

	out.Action = req.Action
	metrics.RecordInteraction(string(out.Action), string(out.Kind), out.Amount)
	r.log.DebugContext(ctx, "interaction resolved",
		slog.String("action", string(out.Action)),
		slog.String("kind", string(out.Kind)),
		slog.String("actor_id", req.ActorID),
		slog.String("target_id", req.TargetID),
		slog.Int64("amount", out.Amount),
	)

	return out, nil
}

func validate(req Request) error {
	if req.ActorID == "" {
		return apperrors.NewValidationError("no player given").WithCause(ErrMissingActor)
	}

	switch req.Action {
	case ActionGift, ActionHeist, ActionSnowball:
	case ActionLock:
		return nil
	default:
		return apperrors.NewValidationError(fmt.Sprintf("unknown action %q", req.Action)).WithCause(ErrUnknownAction)
	}

	if req.TargetID == "" {
		return apperrors.NewValidationError("pick someone first").WithCause(ErrMissingTarget)
	}
	if req.TargetID == req.ActorID {
		return apperrors.NewValidationError("you can't target yourself").WithCause(ErrSelfTarget)
	}
	if req.Action == ActionGift && req.Amount <= 0 {
		return apperrors.NewValidationError("amount must be positive").WithCause(ErrNonPositiveAmount)
	}
	return nil
}

// pair loads actor and target in a stable order so concurrent opposite-direction interactions
// acquire row locks the same way.
func pair(tx *store.Tx, actorID, targetID string) (*store.UserRecord, *store.UserRecord, error) {
	first, second := actorID, targetID
	if second < first {
		first, second = second, first
	}

	a, err := tx.User(first)
	if err != nil {
		return nil, nil, err
	}
	b, err := tx.User(second)
	if err != nil {
		return nil, nil, err
	}

	if first == actorID {
		return a, b, nil
	}
	return b, a, nil
}

func (r *Resolver) gift(tx *store.Tx, req Request) (Outcome, error) {
	actor, target, err := pair(tx, req.ActorID, req.TargetID)
	if err != nil {
		return Outcome{}, err
	}

	if actor.Balance < req.Amount {
		return Outcome{Kind: KindInsufficientFunds, Message: "Not enough Candy Canes 🍬"}, nil
	}

	ledger.Debit(actor, req.Amount)
	ledger.Credit(target, req.Amount)

	line, err := r.rotation.Draw(tx, banter.GiftSuccess)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Kind:    KindSuccess,
		Amount:  req.Amount,
		Line:    line,
		Message: fmt.Sprintf("%s\nYou gave %s %d 🍬", line, req.targetLabel(), req.Amount),
		Notify: directive(req.TargetID, *target,
			fmt.Sprintf("🎁 You got %d Candy Canes from %s in The Candy Heist!", req.Amount, req.actorLabel())),
	}, nil
}

func (r *Resolver) heist(tx *store.Tx, req Request) (Outcome, error) {
	actor, target, err := pair(tx, req.ActorID, req.TargetID)
	if err != nil {
		return Outcome{}, err
	}

	if target.Balance == 0 {
		return Outcome{Kind: KindNothingToSteal, Message: "They had 0 🍬, try someone richer 😏"}, nil
	}

	if ledger.IsLocked(*target, r.now()) {
		line, err := r.rotation.Draw(tx, banter.MugFail)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Kind:    KindLocked,
			Line:    line,
			Message: fmt.Sprintf("%s (they locked their stocking)", line),
		}, nil
	}

	if r.rnd.Float64() < r.rules.HeistSuccessChance {
		stolen := int64(math.Floor(float64(target.Balance) * r.rules.HeistStealFraction))
		if stolen < 1 {
			stolen = 1
		}
		stolen = ledger.Debit(target, stolen)
		ledger.Credit(actor, stolen)

		line, err := r.rotation.Draw(tx, banter.MugSuccess)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Kind:    KindSuccess,
			Amount:  stolen,
			Line:    line,
			Message: fmt.Sprintf("%s\nYou stole %d 🍬 from %s", line, stolen, req.targetLabel()),
			Notify: directive(req.TargetID, *target,
				fmt.Sprintf("💀 You were heisted by %s and lost %d 🍬 in The Candy Heist.", req.actorLabel(), stolen)),
		}, nil
	}

	lost := ledger.Debit(actor, r.rules.HeistFailPenalty)
	line, err := r.rotation.Draw(tx, banter.MugFail)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Kind:    KindFail,
		Amount:  lost,
		Line:    line,
		Message: fmt.Sprintf("%s\nYou lost %d 🍬", line, lost),
	}, nil
}

func (r *Resolver) snowball(tx *store.Tx, req Request) (Outcome, error) {
	actor, target, err := pair(tx, req.ActorID, req.TargetID)
	if err != nil {
		return Outcome{}, err
	}

	// The roll is always taken so a locked or empty target does not change the random sequence.
	roll := r.rnd.Float64() < r.rules.SnowballHitChance
	hit := roll && target.Balance > 0 && !ledger.IsLocked(*target, r.now())
	if !hit {
		return Outcome{Kind: KindMiss, Message: snowballMissMessage}, nil
	}

	span := int(r.rules.SnowballMax - r.rules.SnowballMin + 1)
	stolen := ledger.Debit(target, r.rules.SnowballMin+int64(r.rnd.IntN(span)))
	ledger.Credit(actor, stolen)

	line, err := r.rotation.Draw(tx, banter.Snowball)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Kind:    KindSuccess,
		Amount:  stolen,
		Line:    line,
		Message: fmt.Sprintf("%s\nYou knocked %d 🍬 off %s", line, stolen, req.targetLabel()),
		Notify: directive(req.TargetID, *target,
			fmt.Sprintf("❄️ You got snowballed by %s and dropped %d 🍬 in The Candy Heist!", req.actorLabel(), stolen)),
	}, nil
}

func (r *Resolver) lock(tx *store.Tx, req Request) (Outcome, error) {
	actor, err := tx.User(req.ActorID)
	if err != nil {
		return Outcome{}, err
	}

	ledger.Lock(actor, r.now(), r.rules.LockDuration)

	line, err := r.rotation.Draw(tx, banter.Lock)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Kind:    KindSuccess,
		Line:    line,
		Message: fmt.Sprintf("%s (%d mins)", line, int(r.rules.LockDuration.Minutes())),
	}, nil
}

// directive is nil when the recipient opted out of notifications.
func directive(userID string, rec store.UserRecord, text string) *Directive {
	if rec.NotifyOptOut {
		return nil
	}
	return &Directive{UserID: userID, Text: text}
}

func wrapStoreError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.NewDatabaseError(err)
}
