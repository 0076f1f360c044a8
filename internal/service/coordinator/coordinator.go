// Package coordinator is the one owner of recovery and session navigation state.
//
// Deep links, auth events, password form submissions and cancellations are all messages
// of a single FIFO mailbox handled by one goroutine, so the two event sources (links and
// auth provider) never race against each other. Auth events emitted while a message is
// being handled are queued behind it.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nkiryanov/newsdesk/internal/deeplink"
	"github.com/nkiryanov/newsdesk/internal/kv"
	"github.com/nkiryanov/newsdesk/internal/logger"
	"github.com/nkiryanov/newsdesk/internal/models"
	"github.com/nkiryanov/newsdesk/internal/navigation"
	"github.com/nkiryanov/newsdesk/internal/recovery"
	"github.com/nkiryanov/newsdesk/internal/repository"
)

const (
	defaultPasswordUpdateTimeout = 15 * time.Second
	roleLookupTimeout            = 3 * time.Second
)

var ErrStopped = errors.New("coordinator is not running")

// Auth client the coordinator drives. Implemented by *auth.Client
type AuthClient interface {
	Subscribe(fn func(models.AuthEvent)) (unsubscribe func())
	Session() *models.Session
	Restore(ctx context.Context) error
	SetSession(ctx context.Context, pair models.TokenPair) (models.Session, error)
	SetRecoverySession(ctx context.Context, pair models.TokenPair) (models.Session, error)
	UpdatePassword(ctx context.Context, password string) error
	SignOut(ctx context.Context)
}

type Config struct {
	// Bound of the password update call. Timeout is recoverable failure
	PasswordUpdateTimeout time.Duration
}

type Deps struct {
	Auth       AuthClient
	Machine    *recovery.Machine
	Profiles   repository.ProfileRepo
	Classifier *deeplink.Classifier
	Navigator  navigation.Navigator
	Store      kv.Store
	Logger     logger.Logger
}

type Coordinator struct {
	cfg Config

	auth       AuthClient
	machine    *recovery.Machine
	profiles   repository.ProfileRepo
	classifier *deeplink.Classifier
	nav        navigation.Navigator
	store      kv.Store
	logger     logger.Logger

	mailbox *mailbox
	view    atomic.Pointer[View]
	stopped chan struct{}
	started atomic.Bool

	// Owned by the loop goroutine
	session       *models.Session
	role          models.Role
	recoveryEmail string
	notice        string

	// Sign outs issued by recovery teardown: their SIGNED_OUT must not navigate again
	expectedSignOuts int
}

func New(cfg Config, deps Deps) (*Coordinator, error) {
	if deps.Auth == nil || deps.Machine == nil || deps.Classifier == nil || deps.Navigator == nil || deps.Store == nil {
		return nil, errors.New("auth, machine, classifier, navigator and store are required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	if cfg.PasswordUpdateTimeout <= 0 {
		cfg.PasswordUpdateTimeout = defaultPasswordUpdateTimeout
	}

	c := &Coordinator{
		cfg:        cfg,
		auth:       deps.Auth,
		machine:    deps.Machine,
		profiles:   deps.Profiles,
		classifier: deps.Classifier,
		nav:        deps.Navigator,
		store:      deps.Store,
		logger:     deps.Logger.WithGroup("coordinator"),
		mailbox:    newMailbox(),
		stopped:    make(chan struct{}),
		role:       models.RoleGuest,
	}
	c.publish()

	return c, nil
}

// Start restores persisted session, tears down recovery left by previous process, queues
// coldStartURI (may be empty) and then runs the loop in background
// Messages queued after Start returns are handled after the startup ones
// Returned channel is closed when loop stopped after ctx is done
func (c *Coordinator) Start(ctx context.Context, coldStartURI string) <-chan struct{} {
	if !c.started.CompareAndSwap(false, true) {
		c.logger.Error("coordinator started twice")
		return c.stopped
	}

	unsubscribe := c.auth.Subscribe(func(e models.AuthEvent) {
		c.mailbox.push(authMsg{event: e})
	})

	c.startup(ctx, coldStartURI)

	go func() {
		defer close(c.stopped)
		defer c.mailbox.close()
		defer unsubscribe()

		c.loop(ctx)
		c.logger.Debug("coordinator stopped")
	}()

	return c.stopped
}

func (c *Coordinator) startup(ctx context.Context, coldStartURI string) {
	stale, err := c.machine.Load(ctx)
	if err != nil {
		c.logger.Error("cant load recovery snapshot, assuming stale", "error", err)
		stale = true
	}

	// Restored first, so the residual session of interrupted recovery is revoked by teardown
	if err := c.auth.Restore(ctx); err != nil {
		c.logger.Error("cant restore session", "error", err)
	}

	if stale {
		c.logger.Warn("recovery left by previous run, tearing it down", "state", c.machine.State())
		c.teardown(ctx, navigation.RouteLogin, "")
	}

	if coldStartURI != "" {
		c.mailbox.push(linkMsg{uri: coldStartURI})
	}

	c.publish()
}

func (c *Coordinator) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.mailbox.ready:
			for _, msg := range c.mailbox.drain() {
				c.handle(ctx, msg)
				c.publish()
			}
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, msg any) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("coordinator message handler panicked", "panic", r, "message", fmt.Sprintf("%T", msg))
		}
	}()

	switch m := msg.(type) {
	case linkMsg:
		c.handleLink(ctx, m.uri)
	case authMsg:
		c.handleAuthEvent(ctx, m.event)
	case submitMsg:
		m.reply <- c.handleSubmit(ctx, m.password, m.confirm)
	case cancelMsg:
		res, err := c.handleCancel(ctx, m.confirm)
		m.reply <- reply[CancelResult]{res, err}
	case backMsg:
		m.reply <- c.handleBack()
	case syncMsg:
		close(m.done)
	default:
		c.logger.Error("unknown coordinator message", "message", fmt.Sprintf("%T", msg))
	}
}

type linkMsg struct {
	uri string
}

type authMsg struct {
	event models.AuthEvent
}

type submitMsg struct {
	password string
	confirm  string
	reply    chan reply[SubmitResult]
}

type cancelMsg struct {
	confirm bool
	reply   chan reply[CancelResult]
}

type backMsg struct {
	reply chan BackResult
}

type syncMsg struct {
	done chan struct{}
}

type reply[T any] struct {
	value T
	err   error
}

// HandleLink queues URI delivered while app is running. Never blocks
func (c *Coordinator) HandleLink(uri string) error {
	if !c.mailbox.push(linkMsg{uri: uri}) {
		return ErrStopped
	}
	return nil
}

// SubmitPassword of the recovery form. Returns apperrors.ErrNotRecovering if there is no active recovery
func (c *Coordinator) SubmitPassword(ctx context.Context, password string, confirm string) (SubmitResult, error) {
	ch := make(chan reply[SubmitResult], 1)
	r, err := request(ctx, c, submitMsg{password: password, confirm: confirm, reply: ch}, ch)
	if err != nil {
		return SubmitResult{}, err
	}
	return r.value, r.err
}

// CancelRecovery without confirmation only returns the prompt to show
func (c *Coordinator) CancelRecovery(ctx context.Context, confirm bool) (CancelResult, error) {
	ch := make(chan reply[CancelResult], 1)
	r, err := request(ctx, c, cancelMsg{confirm: confirm, reply: ch}, ch)
	if err != nil {
		return CancelResult{}, err
	}
	return r.value, r.err
}

// Back navigation gesture. While recovering it has to go through cancel confirmation
func (c *Coordinator) Back(ctx context.Context) (BackResult, error) {
	ch := make(chan BackResult, 1)
	return request(ctx, c, backMsg{reply: ch}, ch)
}

// Sync waits until every message queued before the call is handled
func (c *Coordinator) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if !c.mailbox.push(syncMsg{done: done}) {
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func request[T any](ctx context.Context, c *Coordinator, msg any, ch <-chan T) (T, error) {
	var zero T

	if !c.mailbox.push(msg) {
		return zero, ErrStopped
	}

	select {
	case v := <-ch:
		return v, nil
	case <-c.stopped:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// teardown ends recovery: sign out, clear persisted state and go to exitRoute
// Used for success, cancel, expired link and stale state from previous run
func (c *Coordinator) teardown(ctx context.Context, exitRoute navigation.Route, notice string) {
	c.expectedSignOuts++
	c.auth.SignOut(ctx)

	var err error
	if c.machine.State() == recovery.StateTerminating {
		err = c.machine.Finish(ctx)
	} else {
		err = c.machine.Reset(ctx)
	}
	if err != nil {
		c.logger.Error("cant clear recovery state", "error", err)
	}

	c.session = nil
	c.role = models.RoleGuest
	c.recoveryEmail = ""
	c.notice = notice

	var params map[string]string
	if notice != "" {
		params = map[string]string{"message": notice}
	}
	c.nav.Replace(exitRoute, params)
}
