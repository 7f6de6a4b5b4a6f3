package browser

import (
	"fmt"
	"log/slog"

	"kanmonconnect/internal/domain"
	"kanmonconnect/internal/permission"
)

// Camera policies accepted by NewPolicyPrompter.
const (
	PolicyGrant = "grant"
	PolicyDeny  = "deny"
)

// PolicyPrompter answers every device request with a fixed decision. It
// stands in for the OS permission dialog a mobile host would show.
type PolicyPrompter struct {
	registry *permission.Registry
	grant    bool
	logger   *slog.Logger
}

var _ domain.PermissionPrompter = (*PolicyPrompter)(nil)

func NewPolicyPrompter(policy string, registry *permission.Registry, logger *slog.Logger) (*PolicyPrompter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &PolicyPrompter{registry: registry, logger: logger}
	switch policy {
	case PolicyGrant:
		p.grant = true
	case PolicyDeny, "":
	default:
		return nil, fmt.Errorf("unknown camera policy %q (want %s or %s)", policy, PolicyGrant, PolicyDeny)
	}
	return p, nil
}

func (p *PolicyPrompter) RequestPermission(tok permission.Token, req domain.PermissionRequest) {
	p.logger.Info("device permission decided by policy", "origin", req.Origin, "resources", req.Resources, "granted", p.grant)
	p.registry.Resolve(tok, p.grant)
}
