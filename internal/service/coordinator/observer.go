package coordinator

import (
	"context"
	"errors"

	"github.com/nkiryanov/newsdesk/internal/apperrors"
	"github.com/nkiryanov/newsdesk/internal/models"
	"github.com/nkiryanov/newsdesk/internal/navigation"
)

func (c *Coordinator) handleAuthEvent(ctx context.Context, e models.AuthEvent) {
	l := c.logger.With("event", e.Kind, "recovery_state", c.machine.State())

	switch e.Kind {
	case models.AuthInitialSession:
		c.adopt()
		if !c.machine.Recovering() {
			c.role = c.lookupRole(ctx)
		}

	case models.AuthSignedIn:
		c.adopt()
		if c.machine.Recovering() {
			l.Info("signed in during recovery, navigation suppressed")
			return
		}
		c.role = c.lookupRole(ctx)
		if c.session != nil {
			c.notice = ""
			c.nav.Replace(navigation.RouteHome, nil)
		}

	case models.AuthPasswordRecovery, models.AuthUserUpdated, models.AuthTokenRefreshed:
		c.adopt()

	case models.AuthSignedOut:
		if c.expectedSignOuts > 0 {
			c.expectedSignOuts--
			l.Debug("sign out issued by recovery teardown")
			return
		}

		c.session = nil
		c.role = models.RoleGuest
		c.recoveryEmail = ""
		if err := c.machine.Reset(ctx); err != nil {
			l.Error("cant clear recovery state", "error", err)
		}
		c.nav.Replace(navigation.RouteLogin, nil)

	default:
		l.Warn("unknown auth event")
	}
}

// adopt the client's current session. Event snapshot may be older than a sign out queued after it
func (c *Coordinator) adopt() {
	c.session = c.auth.Session()
}

// lookupRole never fails: missing profile or storage error means plain user
func (c *Coordinator) lookupRole(ctx context.Context) models.Role {
	if c.session == nil {
		return models.RoleGuest
	}
	if c.profiles == nil || c.session.User.Email == "" {
		return models.RoleUser
	}

	ctx, cancel := context.WithTimeout(ctx, roleLookupTimeout)
	defer cancel()

	profile, err := c.profiles.GetProfileByEmail(ctx, c.session.User.Email)
	switch {
	case errors.Is(err, apperrors.ErrProfileNotFound):
		return models.RoleUser
	case err != nil:
		c.logger.Warn("cant lookup role, defaulting to user", "error", err)
		return models.RoleUser
	case !profile.Role.Valid():
		c.logger.Warn("profile has unknown role, defaulting to user", "role", profile.Role)
		return models.RoleUser
	}

	return profile.Role
}
