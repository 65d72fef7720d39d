// Package authz decides whether a user may create a channel variant without
// going through the request workflow. Creation rights scale with
// organizational breadth: only admins or people with no manager may address
// everyone or a whole role; only admins or managers may address a team;
// ad-hoc groups always need a reviewer's sign-off.
package authz

import (
	"context"

	"github.com/meridian-apps/casecomms/src/api/hierarchy"
	"github.com/meridian-apps/casecomms/src/api/types"
)

type Gate struct {
	hier hierarchy.Service
}

func NewGate(hier hierarchy.Service) *Gate {
	return &Gate{hier: hier}
}

func (g *Gate) CanCreateDirectly(ctx context.Context, userID uint64, variant types.ChannelVariant) (bool, error) {
	switch variant {
	case types.VariantDirect:
		return true, nil
	case types.VariantGroup:
		// Group channels always go through the workflow; the approval path
		// passes an explicit flag to the directory instead of this gate.
		return false, nil
	case types.VariantBroadcast, types.VariantRole:
		admin, err := g.hier.IsAdmin(ctx, userID)
		if err != nil {
			return false, err
		}
		if admin {
			return true, nil
		}
		return g.hier.IsTopOfHierarchy(ctx, userID)
	case types.VariantTeam:
		admin, err := g.hier.IsAdmin(ctx, userID)
		if err != nil {
			return false, err
		}
		if admin {
			return true, nil
		}
		return g.hier.IsManager(ctx, userID)
	}
	return false, nil
}
