package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const textCodeInvalidTransition = "INVALID_ACCOUNT_STATE_TRANSITION"

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// AccountStatus is derived from the active flag and the pending token
type AccountStatus string

const (
	// AccountPending is inactive with a setup token outstanding
	AccountPending  AccountStatus = "pending"
	AccountActive   AccountStatus = "active"
	AccountInactive AccountStatus = "inactive"
)

// StatusOf derives the lifecycle status of p
func StatusOf(p Principal) AccountStatus {
	if p == nil {
		return ""
	}
	c := p.Credential()
	switch {
	case c.IsActive:
		return AccountActive
	case c.HasResetToken():
		return AccountPending
	default:
		return AccountInactive
	}
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor     ActorRef
	Principal Principal
	From      AccountStatus
	To        AccountStatus
	Reason    string
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

type transitionOptions struct {
	reason      string
	metadata    map[string]any
	persisted   bool
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(o *transitionOptions) {
		o.reason = reason
	}
}

// WithTransitionMetadata merges metadata into the emitted event.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(o *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if o.metadata == nil {
			o.metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			o.metadata[k] = v
		}
	}
}

// WithAlreadyPersisted marks a transition whose row change was written by
// the caller, as token consumption does with its conditional update.
func WithAlreadyPersisted() TransitionOption {
	return func(o *transitionOptions) {
		o.persisted = true
	}
}

// WithBeforeTransitionHook adds a hook executed before the status update.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(o *transitionOptions) {
		if h != nil {
			o.beforeHooks = append(o.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the status update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(o *transitionOptions) {
		if h != nil {
			o.afterHooks = append(o.afterHooks, h)
		}
	}
}

// AccountLifecycle validates and records account status changes.
type AccountLifecycle interface {
	Transition(ctx context.Context, tx bun.IDB, actor ActorRef, p Principal, target AccountStatus, opts ...TransitionOption) error
	CanTransition(from, to AccountStatus) bool
}

// LifecycleOption customizes lifecycle construction.
type LifecycleOption func(*accountLifecycle)

// WithLifecycleClock injects a custom clock (useful for tests).
func WithLifecycleClock(clock func() time.Time) LifecycleOption {
	return func(lc *accountLifecycle) {
		if clock != nil {
			lc.now = clock
		}
	}
}

// WithLifecycleActivitySink sets the sink used to publish status events.
func WithLifecycleActivitySink(sink ActivitySink) LifecycleOption {
	return func(lc *accountLifecycle) {
		lc.activitySink = normalizeActivitySink(sink)
	}
}

func WithLifecycleLogger(logger Logger) LifecycleOption {
	return func(lc *accountLifecycle) {
		if logger != nil {
			lc.logger = logger
		}
	}
}

type accountLifecycle struct {
	principals   Principals
	transitions  map[AccountStatus]map[AccountStatus]struct{}
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

// NewAccountLifecycle returns the default lifecycle backed by principals.
// Pending accounts become active through token consumption or an admin
// edit; active and inactive accounts toggle through admin edits.
func NewAccountLifecycle(principals Principals, opts ...LifecycleOption) AccountLifecycle {
	lc := &accountLifecycle{
		principals: principals,
		transitions: map[AccountStatus]map[AccountStatus]struct{}{
			AccountPending: {
				AccountActive: {},
			},
			AccountActive: {
				AccountInactive: {},
			},
			AccountInactive: {
				AccountActive: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(lc)
		}
	}

	return lc
}

func (lc *accountLifecycle) CanTransition(from, to AccountStatus) bool {
	if allowed, ok := lc.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// Transition moves p to target. A pending account asked to become inactive
// is already inactive, so the call is a no-op.
func (lc *accountLifecycle) Transition(ctx context.Context, tx bun.IDB, actor ActorRef, p Principal, target AccountStatus, opts ...TransitionOption) error {
	if p == nil {
		return ErrInvalidTransition.Clone().WithMetadata(map[string]any{
			"reason": "principal is nil",
		})
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	from := StatusOf(p)
	if from == target || (from == AccountPending && target == AccountInactive) {
		return nil
	}

	if !lc.CanTransition(from, target) {
		return ErrInvalidTransition.Clone().WithMetadata(map[string]any{
			"from": string(from),
			"to":   string(target),
		})
	}

	tc := TransitionContext{
		Actor:     actor,
		Principal: p,
		From:      from,
		To:        target,
		Reason:    options.reason,
	}

	if err := runTransitionHooks(ctx, options.beforeHooks, tc); err != nil {
		return err
	}

	if !options.persisted {
		Mutate(p).Active(target == AccountActive)
		if err := lc.principals.UpdateProfileTx(ctx, tx, p); err != nil {
			return err
		}
	}

	if err := runTransitionHooks(ctx, options.afterHooks, tc); err != nil {
		return err
	}

	meta := map[string]any{}
	if options.reason != "" {
		meta["reason"] = options.reason
	}
	for k, v := range options.metadata {
		meta[k] = v
	}

	recordActivity(ctx, lc.activitySink, lc.logger, lc.now, ActivityEvent{
		EventType:   ActivityEventAccountStatusChanged,
		Actor:       actor,
		PrincipalID: p.ID(),
		Kind:        p.Kind(),
		FromStatus:  from,
		ToStatus:    target,
		Metadata:    meta,
	})

	return nil
}

func runTransitionHooks(ctx context.Context, hooks []TransitionHook, tc TransitionContext) error {
	for _, hook := range hooks {
		if err := hook(ctx, tc); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "account transition hook failed")
		}
	}
	return nil
}
