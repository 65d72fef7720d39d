// Package directory owns channel and membership records. It resolves, per
// channel variant, who may see a channel and who becomes a member at
// creation time.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/meridian-apps/casecomms/src/api/apperr"
	"github.com/meridian-apps/casecomms/src/api/authz"
	"github.com/meridian-apps/casecomms/src/api/roster"
	"github.com/meridian-apps/casecomms/src/api/types"
)

type Service struct {
	db     *gorm.DB
	roster roster.Directory
	gate   *authz.Gate
	log    *zap.SugaredLogger
}

func New(db *gorm.DB, ros roster.Directory, gate *authz.Gate, log *zap.SugaredLogger) *Service {
	return &Service{db: db, roster: ros, gate: gate, log: log.With("component", "directory")}
}

// WithTx returns a copy of the service bound to the caller's transaction, so
// a channel can be materialized atomically with the caller's own writes.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	cp := *s
	cp.db = tx
	return &cp
}

// CreateSpec describes the channel to create. Which fields matter depends on
// the variant; the per-variant resolver validates them.
type CreateSpec struct {
	Name         string
	Variant      types.ChannelVariant
	TargetRoleID *uint64
	TargetTeamID *uint64
	MemberIDs    []uint64 // group: explicit initial members
	PeerID       uint64   // direct: the other party
}

// CreateOpts carries the explicit approved-path flag. Only the request
// workflow's approve action sets it; the directory never infers it.
type CreateOpts struct {
	Approved bool
}

func (s *Service) Create(ctx context.Context, spec CreateSpec, creatorID uint64, opts CreateOpts) (*types.Channel, error) {
	res, ok := resolvers[spec.Variant]
	if !ok {
		return nil, fmt.Errorf("%w: unknown channel variant %q", apperr.ErrInvalidRequest, spec.Variant)
	}
	if err := res.validate(spec); err != nil {
		return nil, err
	}

	if spec.Variant == types.VariantDirect {
		return s.createDirect(ctx, spec, creatorID)
	}

	if !opts.Approved {
		allowed, err := s.gate.CanCreateDirectly(ctx, creatorID, spec.Variant)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%w: not allowed to create %s channels directly", apperr.ErrAccessDenied, spec.Variant)
		}
	}

	memberIDs, err := res.snapshot(ctx, s, spec, creatorID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(spec.Name)
	ch := types.Channel{
		Name:           &name,
		Variant:        spec.Variant,
		LifecycleState: types.ChannelActive,
		TargetRoleID:   spec.TargetRoleID,
		TargetTeamID:   spec.TargetTeamID,
		CreatedBy:      creatorID,
		CreatedAt:      time.Now(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ch).Error; err != nil {
			return err
		}
		return insertMembers(tx, ch.ID, memberIDs)
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("channel created", "channel", ch.ID, "variant", ch.Variant, "members", len(memberIDs), "by", creatorID)
	return &ch, nil
}

// createDirect is idempotent per unordered user pair: an existing active
// direct channel is returned as-is, and the unique pair key turns the
// concurrent-create race into a refetch instead of a duplicate.
func (s *Service) createDirect(ctx context.Context, spec CreateSpec, creatorID uint64) (*types.Channel, error) {
	if spec.PeerID == creatorID {
		return nil, fmt.Errorf("%w: cannot open a direct channel with yourself", apperr.ErrInvalidRequest)
	}
	peer, err := s.roster.UserByID(ctx, spec.PeerID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, fmt.Errorf("%w: no such user", apperr.ErrInvalidRequest)
		}
		return nil, err
	}
	if !peer.Active {
		return nil, fmt.Errorf("%w: user is not active", apperr.ErrInvalidRequest)
	}

	pairKey := types.DirectPairKey(creatorID, spec.PeerID)

	var existing types.Channel
	err = s.db.WithContext(ctx).
		First(&existing, "pair_key = ? AND lifecycle_state = ?", pairKey, types.ChannelActive).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	ch := types.Channel{
		Variant:        types.VariantDirect,
		LifecycleState: types.ChannelActive,
		PairKey:        &pairKey,
		CreatedBy:      creatorID,
		CreatedAt:      time.Now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ch).Error; err != nil {
			return err
		}
		return insertMembers(tx, ch.ID, []uint64{creatorID, spec.PeerID})
	})
	if err != nil {
		// Unique violation on pair_key: the other side of the race won.
		if refErr := s.db.WithContext(ctx).
			First(&existing, "pair_key = ? AND lifecycle_state = ?", pairKey, types.ChannelActive).Error; refErr == nil {
			return &existing, nil
		}
		return nil, err
	}

	s.log.Infow("direct channel created", "channel", ch.ID, "pair", pairKey)
	return &ch, nil
}

func insertMembers(tx *gorm.DB, channelID uint64, userIDs []uint64) error {
	now := time.Now()
	seen := make(map[uint64]bool, len(userIDs))
	for _, uid := range userIDs {
		if seen[uid] {
			continue
		}
		seen[uid] = true
		row := types.ChannelMember{ChannelID: channelID, UserID: uid, AddedAt: now}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

// variantOrder drives the listing sort: direct first, group last.
var variantOrder = map[types.ChannelVariant]int{
	types.VariantDirect:    0,
	types.VariantBroadcast: 1,
	types.VariantRole:      2,
	types.VariantTeam:      3,
	types.VariantGroup:     4,
}

func (s *Service) ListForUser(ctx context.Context, userID uint64) ([]types.Channel, error) {
	actx, err := s.loadAccessContext(ctx, userID)
	if err != nil {
		return nil, err
	}

	var channels []types.Channel
	if err := s.db.WithContext(ctx).
		Where("lifecycle_state = ?", types.ChannelActive).Find(&channels).Error; err != nil {
		return nil, err
	}

	visible := channels[:0]
	for i := range channels {
		if actx.canAccess(&channels[i]) {
			visible = append(visible, channels[i])
		}
	}
	sort.SliceStable(visible, func(i, j int) bool {
		oi, oj := variantOrder[visible[i].Variant], variantOrder[visible[j].Variant]
		if oi != oj {
			return oi < oj
		}
		return visible[i].CreatedAt.After(visible[j].CreatedAt)
	})
	return visible, nil
}

// Get applies the access predicate to a single channel. Denial is reported
// as ErrNotFound so callers cannot probe for channel existence.
func (s *Service) Get(ctx context.Context, channelID, userID uint64) (*types.Channel, error) {
	var ch types.Channel
	err := s.db.WithContext(ctx).
		First(&ch, "id = ? AND lifecycle_state = ?", channelID, types.ChannelActive).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	actx, err := s.loadAccessContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !actx.canAccess(&ch) {
		return nil, apperr.ErrNotFound
	}
	return &ch, nil
}

// CanAccess is the boolean guard used by the store and the gateway.
func (s *Service) CanAccess(ctx context.Context, channelID, userID uint64) (bool, error) {
	_, err := s.Get(ctx, channelID, userID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Members returns the snapshot membership rows of a channel.
func (s *Service) Members(ctx context.Context, channelID uint64) ([]types.ChannelMember, error) {
	var rows []types.ChannelMember
	err := s.db.WithContext(ctx).Where("channel_id = ?", channelID).Find(&rows).Error
	return rows, err
}

// accessContext gathers, once per request, everything the per-variant access
// rules need: the user's current role and team names and the set of channels
// with an explicit membership row.
type accessContext struct {
	userID   uint64
	roleName string
	teamName string
	memberOf map[uint64]bool
}

func (s *Service) loadAccessContext(ctx context.Context, userID uint64) (*accessContext, error) {
	actx := &accessContext{userID: userID, memberOf: make(map[uint64]bool)}

	u, err := s.roster.UserByID(ctx, userID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return actx, nil
		}
		return nil, err
	}
	if u.RoleID != nil {
		if r, err := s.roster.RoleByID(ctx, *u.RoleID); err == nil {
			actx.roleName = r.Name
		}
	}
	if u.TeamID != nil {
		if t, err := s.roster.TeamByID(ctx, *u.TeamID); err == nil {
			actx.teamName = t.Name
		}
	}

	var channelIDs []uint64
	if err := s.db.WithContext(ctx).Model(&types.ChannelMember{}).
		Where("user_id = ?", userID).Pluck("channel_id", &channelIDs).Error; err != nil {
		return nil, err
	}
	for _, id := range channelIDs {
		actx.memberOf[id] = true
	}
	return actx, nil
}

func (a *accessContext) canAccess(ch *types.Channel) bool {
	if res, ok := resolvers[ch.Variant]; ok && res.access(a, ch) {
		return true
	}
	// Legacy fallback: an explicit membership row grants access regardless
	// of variant. Keeps snapshot members attached when a role or team is
	// renamed out from under a name-matched channel.
	return a.memberOf[ch.ID]
}
