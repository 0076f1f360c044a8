package coordinator

import (
	"context"
	"errors"

	"github.com/nkiryanov/newsdesk/internal/apperrors"
	"github.com/nkiryanov/newsdesk/internal/deeplink"
	"github.com/nkiryanov/newsdesk/internal/gotrue"
	"github.com/nkiryanov/newsdesk/internal/navigation"
	"github.com/nkiryanov/newsdesk/internal/recovery"
	"github.com/nkiryanov/newsdesk/internal/service/news"
	"github.com/nkiryanov/newsdesk/internal/service/validate"
)

const (
	NoticeLinkExpired   = "Your reset link has expired. Please request a new one."
	NoticePasswordReset = "Your password has been reset. Please login with your new password."
	NoticeTimeout       = "request timed out, please try again"
	NoticeSignupFailed  = "Could not confirm your email. Please try to login."

	PromptCancelTitle   = "Cancel Password Reset?"
	PromptCancelMessage = "Your password will not be changed and you will be logged out."
)

type Outcome string

const (
	OutcomeInvalid Outcome = "invalid"
	OutcomeFailed  Outcome = "failed"
	OutcomeTimeout Outcome = "timeout"
	OutcomeExpired Outcome = "expired"
	OutcomeSuccess Outcome = "success"
)

type SubmitResult struct {
	Outcome Outcome          `json:"outcome"`
	Message string           `json:"message"`
	Route   navigation.Route `json:"route,omitempty"`
}

type Prompt struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

var cancelPrompt = Prompt{Title: PromptCancelTitle, Message: PromptCancelMessage}

type CancelResult struct {
	// Set if confirmation is required, nothing was changed
	Prompt *Prompt           `json:"prompt,omitempty"`
	Route  navigation.Route `json:"route,omitempty"`
}

type BackResult struct {
	// False means there is nothing to intercept, the shell handles back itself
	Handled bool    `json:"handled"`
	Prompt  *Prompt `json:"prompt,omitempty"`
}

func (c *Coordinator) handleLink(ctx context.Context, uri string) {
	link := c.classifier.Classify(uri)
	l := c.logger.With("kind", link.Kind, "scheme", link.Scheme, "path", link.Path)

	switch link.Kind {
	case deeplink.KindRecovery:
		c.beginRecovery(ctx, link)

	case deeplink.KindSignup:
		if c.machine.Recovering() {
			l.Warn("signup link ignored during recovery")
			return
		}
		if _, err := c.auth.SetSession(ctx, link.Tokens); err != nil {
			l.Warn("cant establish session from signup link", "error", err)
			c.nav.Replace(navigation.RouteLogin, map[string]string{"message": NoticeSignupFailed})
		}
		// SIGNED_IN is queued, observer navigates home

	case deeplink.KindContent:
		if err := c.store.Set(ctx, news.KeyHighlightedNews, link.NewsID.String()); err != nil {
			l.Error("cant persist highlighted news", "error", err)
			return
		}
		if c.machine.Recovering() {
			l.Info("content link stored, navigation suppressed during recovery")
			return
		}
		c.nav.Replace(navigation.RouteNews, map[string]string{"highlight": link.NewsID.String()})

	default:
		if link.Err != nil {
			l.Warn("malformed link treated as normal launch", "error", link.Err)
		} else {
			l.Debug("link has no action")
		}
	}
}

func (c *Coordinator) beginRecovery(ctx context.Context, link deeplink.Link) {
	if err := c.machine.Begin(ctx, link.Tokens); err != nil {
		if errors.Is(err, recovery.ErrTransitionRejected) {
			c.logger.Info("duplicate recovery link ignored", "state", c.machine.State())
			return
		}
		c.logger.Error("cant begin recovery", "error", err)
		c.teardown(ctx, navigation.RouteForgotPassword, NoticeLinkExpired)
		return
	}

	c.notice = ""
	c.nav.Replace(navigation.RouteResetPassword, nil)
	c.establish(ctx)
}

// establish temporary session from persisted credentials: PENDING -> ACTIVE
func (c *Coordinator) establish(ctx context.Context) {
	creds, err := c.machine.Credentials(ctx)
	if err != nil {
		c.logger.Error("cant read recovery credentials", "error", err)
		c.expire(ctx)
		return
	}

	session, err := c.auth.SetRecoverySession(ctx, creds)
	if err != nil {
		c.logger.Info("recovery link rejected", "error", err)
		c.expire(ctx)
		return
	}

	if err := c.machine.Activate(ctx); err != nil {
		c.logger.Error("cant activate recovery", "error", err)
		c.expire(ctx)
		return
	}

	c.session = &session
	c.recoveryEmail = session.User.Email
}

// expire ends recovery as with an invalid link
func (c *Coordinator) expire(ctx context.Context) {
	if err := c.machine.Terminate(ctx); err != nil {
		c.logger.Error("cant terminate recovery", "error", err)
	}
	c.teardown(ctx, navigation.RouteForgotPassword, NoticeLinkExpired)
}

func (c *Coordinator) handleSubmit(ctx context.Context, password string, confirm string) reply[SubmitResult] {
	if c.machine.State() != recovery.StateActive {
		return reply[SubmitResult]{err: apperrors.ErrNotRecovering}
	}

	password, err := validate.NewPassword(password, confirm)
	if err != nil {
		return reply[SubmitResult]{value: SubmitResult{Outcome: OutcomeInvalid, Message: err.Error()}}
	}

	updateCtx, cancel := context.WithTimeout(ctx, c.cfg.PasswordUpdateTimeout)
	err = c.auth.UpdatePassword(updateCtx, password)
	cancel()

	switch {
	case err == nil:
		if err := c.machine.Terminate(ctx); err != nil {
			c.logger.Error("cant terminate recovery", "error", err)
		}
		c.teardown(ctx, navigation.RouteLogin, NoticePasswordReset)
		c.logger.Info("password reset")
		return reply[SubmitResult]{value: SubmitResult{Outcome: OutcomeSuccess, Message: NoticePasswordReset, Route: navigation.RouteLogin}}

	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		c.logger.Warn("password update timed out")
		return reply[SubmitResult]{value: SubmitResult{Outcome: OutcomeTimeout, Message: NoticeTimeout}}

	case gotrue.IsSessionExpired(err) || errors.Is(err, apperrors.ErrNoSession):
		c.logger.Info("recovery session expired", "error", err)
		c.expire(ctx)
		return reply[SubmitResult]{value: SubmitResult{Outcome: OutcomeExpired, Message: NoticeLinkExpired, Route: navigation.RouteForgotPassword}}

	default:
		c.logger.Warn("password update failed", "error", err)
		return reply[SubmitResult]{value: SubmitResult{Outcome: OutcomeFailed, Message: userMessage(err)}}
	}
}

func (c *Coordinator) handleCancel(ctx context.Context, confirm bool) (CancelResult, error) {
	if !c.machine.Recovering() {
		return CancelResult{}, apperrors.ErrNotRecovering
	}
	if !confirm {
		p := cancelPrompt
		return CancelResult{Prompt: &p}, nil
	}

	if c.machine.State() != recovery.StateTerminating {
		if err := c.machine.Terminate(ctx); err != nil {
			c.logger.Error("cant terminate recovery", "error", err)
		}
	}
	c.teardown(ctx, navigation.RouteLogin, "")
	c.logger.Info("recovery cancelled")

	return CancelResult{Route: navigation.RouteLogin}, nil
}

func (c *Coordinator) handleBack() BackResult {
	if !c.machine.Recovering() {
		return BackResult{}
	}
	p := cancelPrompt
	return BackResult{Handled: true, Prompt: &p}
}

// userMessage is the provider message without our wrapping
func userMessage(err error) string {
	var apiErr *gotrue.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
