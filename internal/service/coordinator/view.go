package coordinator

import (
	"github.com/nkiryanov/newsdesk/internal/models"
	"github.com/nkiryanov/newsdesk/internal/recovery"
)

// View is read-only snapshot of the coordinator state, published after every handled message
type View struct {
	RecoveryState recovery.State  `json:"recovery_state"`
	Recovering    bool            `json:"recovering"`
	Session       *models.Session `json:"-"`
	Email         string          `json:"email,omitempty"`
	SignedIn      bool            `json:"signed_in"`
	Role          models.Role     `json:"role"`
	RecoveryEmail string          `json:"recovery_email,omitempty"`
	Notice        string          `json:"notice,omitempty"`
}

// EffectiveRole to authorize requests with. Temporary recovery session grants nothing
func (v View) EffectiveRole() models.Role {
	if v.Recovering || !v.SignedIn {
		return models.RoleGuest
	}
	return v.Role
}

// View returns the last published snapshot
func (c *Coordinator) View() View {
	return *c.view.Load()
}

func (c *Coordinator) publish() {
	v := &View{
		RecoveryState: c.machine.State(),
		Recovering:    c.machine.Recovering(),
		Role:          c.role,
		RecoveryEmail: c.recoveryEmail,
		Notice:        c.notice,
	}
	if c.session != nil {
		s := *c.session
		v.Session = &s
		v.Email = s.User.Email
		v.SignedIn = true
	}
	c.view.Store(v)
}

// EffectiveRole of the last published snapshot
func (c *Coordinator) EffectiveRole() models.Role {
	return c.View().EffectiveRole()
}
