package auth

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-featuregate/gate/guard"
)

// Feature keys owned by this package, resolved through the embedding
// application's feature gate.
const (
	// FeatureTeamInvites gates issuing new team invites.
	FeatureTeamInvites = "teams.invites"
	// FeatureVerifiedEmailEnforced toggles platform-wide enforcement of the
	// verified-email guard. When no gate is wired, Config decides.
	FeatureVerifiedEmailEnforced = "auth.verified_email.enforced"
)

func normalizeFeatureGateError(err error) error {
	if err == nil {
		return nil
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return err
	}

	return errors.Wrap(err, errors.CategoryAuthz, "Feature gate check failed").
		WithCode(errors.CodeForbidden)
}

func requireFeatureGate(ctx context.Context, featureGate gate.FeatureGate, key string, disabledErr error) error {
	if featureGate == nil {
		return nil
	}
	return guard.Require(ctx, featureGate, key,
		guard.WithDisabledError(disabledErr),
		guard.WithErrorMapper(normalizeFeatureGateError),
	)
}
