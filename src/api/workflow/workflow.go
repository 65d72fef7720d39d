// Package workflow runs the request/approve/reject state machine for users
// who cannot create a channel variant directly. An approval materializes the
// channel through the directory with the explicit approved-path flag.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/meridian-apps/casecomms/src/api/apperr"
	"github.com/meridian-apps/casecomms/src/api/authz"
	"github.com/meridian-apps/casecomms/src/api/directory"
	"github.com/meridian-apps/casecomms/src/api/hierarchy"
	"github.com/meridian-apps/casecomms/src/api/types"
)

type Service struct {
	db   *gorm.DB
	dir  *directory.Service
	gate *authz.Gate
	hier hierarchy.Service
	log  *zap.SugaredLogger
}

func New(db *gorm.DB, dir *directory.Service, gate *authz.Gate, hier hierarchy.Service, log *zap.SugaredLogger) *Service {
	return &Service{db: db, dir: dir, gate: gate, hier: hier, log: log.With("component", "workflow")}
}

type CreateRequest struct {
	ChannelName  string
	Variant      types.ChannelVariant
	TargetRoleID *uint64
	TargetTeamID *uint64
	MemberIDs    []uint64 // group only
}

func (s *Service) Create(ctx context.Context, req CreateRequest, requesterID uint64) (*types.ChannelRequest, error) {
	switch req.Variant {
	case types.VariantBroadcast, types.VariantRole, types.VariantTeam, types.VariantGroup:
	default:
		return nil, fmt.Errorf("%w: variant %q cannot be requested", apperr.ErrInvalidRequest, req.Variant)
	}
	if strings.TrimSpace(req.ChannelName) == "" {
		return nil, fmt.Errorf("%w: channel name is required", apperr.ErrInvalidRequest)
	}
	switch req.Variant {
	case types.VariantRole:
		if req.TargetRoleID == nil {
			return nil, fmt.Errorf("%w: role channel request needs a target role", apperr.ErrInvalidRequest)
		}
	case types.VariantTeam:
		if req.TargetTeamID == nil {
			return nil, fmt.Errorf("%w: team channel request needs a target team", apperr.ErrInvalidRequest)
		}
	case types.VariantGroup:
		if len(req.MemberIDs) == 0 {
			return nil, fmt.Errorf("%w: group channel request needs members", apperr.ErrInvalidRequest)
		}
	}

	// A requester who already qualifies for direct creation does not get to
	// park work in the review queue.
	allowed, err := s.gate.CanCreateDirectly(ctx, requesterID, req.Variant)
	if err != nil {
		return nil, err
	}
	if allowed {
		return nil, fmt.Errorf("%w: you can create this channel directly", apperr.ErrInvalidRequest)
	}

	row := types.ChannelRequest{
		RequestedBy:  requesterID,
		ChannelName:  strings.TrimSpace(req.ChannelName),
		Variant:      req.Variant,
		TargetRoleID: req.TargetRoleID,
		TargetTeamID: req.TargetTeamID,
		State:        types.RequestPending,
		CreatedAt:    time.Now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		seen := make(map[uint64]bool, len(req.MemberIDs))
		for _, uid := range req.MemberIDs {
			if seen[uid] {
				continue
			}
			seen[uid] = true
			if err := tx.Create(&types.ChannelRequestMember{RequestID: row.ID, UserID: uid}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("channel request created", "request", row.ID, "variant", row.Variant, "by", requesterID)
	return &row, nil
}

// Approve materializes the channel and stamps the request terminal inside one
// transaction, so a failed stamp cannot leave an orphan channel behind. The
// reviewer must hold the creation right the requester lacked.
func (s *Service) Approve(ctx context.Context, requestID, reviewerID uint64, notes string) (*types.ChannelRequest, error) {
	req, err := s.pendingForReview(ctx, requestID, reviewerID)
	if err != nil {
		return nil, err
	}

	memberIDs, err := s.requestedMembers(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	spec := directory.CreateSpec{
		Name:         req.ChannelName,
		Variant:      req.Variant,
		TargetRoleID: req.TargetRoleID,
		TargetTeamID: req.TargetTeamID,
	}
	if req.Variant == types.VariantGroup {
		// Initial membership is the requester plus everyone they asked for.
		spec.MemberIDs = memberIDs
	}
	var ch *types.Channel
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ch, err = s.dir.WithTx(tx).Create(ctx, spec, req.RequestedBy, directory.CreateOpts{Approved: true})
		if err != nil {
			return err
		}
		now := time.Now()
		req.State = types.RequestApproved
		req.ReviewedBy = &reviewerID
		req.ReviewedAt = &now
		req.ChannelID = &ch.ID
		if n := strings.TrimSpace(notes); n != "" {
			req.ReviewNotes = &n
		}
		return tx.Save(req).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("channel request approved", "request", req.ID, "channel", ch.ID, "reviewer", reviewerID)
	return req, nil
}

func (s *Service) Reject(ctx context.Context, requestID, reviewerID uint64, notes string) (*types.ChannelRequest, error) {
	// Notes are mandatory for rejections, checked before any state is read
	// or touched so a bad call cannot leave a half-stamped row.
	n := strings.TrimSpace(notes)
	if n == "" {
		return nil, fmt.Errorf("%w: review notes are required to reject", apperr.ErrInvalidRequest)
	}

	req, err := s.pendingForReview(ctx, requestID, reviewerID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	req.State = types.RequestRejected
	req.ReviewedBy = &reviewerID
	req.ReviewedAt = &now
	req.ReviewNotes = &n
	if err := s.db.WithContext(ctx).Save(req).Error; err != nil {
		return nil, err
	}

	s.log.Infow("channel request rejected", "request", req.ID, "reviewer", reviewerID)
	return req, nil
}

// pendingForReview loads the request, rejects terminal states, and checks
// that the reviewer could have created the channel directly themselves.
func (s *Service) pendingForReview(ctx context.Context, requestID, reviewerID uint64) (*types.ChannelRequest, error) {
	var req types.ChannelRequest
	if err := s.db.WithContext(ctx).First(&req, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if req.State != types.RequestPending {
		return nil, fmt.Errorf("%w: request already %s", apperr.ErrConflict, req.State)
	}
	allowed, err := s.gate.CanCreateDirectly(ctx, reviewerID, reviewVariant(req.Variant))
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, fmt.Errorf("%w: not allowed to review %s channel requests", apperr.ErrAccessDenied, req.Variant)
	}
	return &req, nil
}

// reviewVariant maps the requested variant to the right the reviewer must
// hold. Group channels have no direct-creation right of their own, so the
// reviewer attests with team-level authority instead.
func reviewVariant(v types.ChannelVariant) types.ChannelVariant {
	if v == types.VariantGroup {
		return types.VariantTeam
	}
	return v
}

type ListFilter struct {
	RequestedBy *uint64
	State       *string
}

// List returns requests matching the filter. Callers without elevated
// visibility (admin or top of hierarchy) only ever see their own requests.
func (s *Service) List(ctx context.Context, callerID uint64, f ListFilter) ([]types.ChannelRequest, error) {
	elevated, err := s.hier.IsAdmin(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if !elevated {
		elevated, err = s.hier.IsTopOfHierarchy(ctx, callerID)
		if err != nil {
			return nil, err
		}
	}
	if !elevated {
		// Managers review group/team requests, so they see the queue too.
		elevated, err = s.hier.IsManager(ctx, callerID)
		if err != nil {
			return nil, err
		}
	}

	q := s.db.WithContext(ctx).Model(&types.ChannelRequest{})
	if !elevated {
		q = q.Where("requested_by = ?", callerID)
	} else if f.RequestedBy != nil {
		q = q.Where("requested_by = ?", *f.RequestedBy)
	}
	if f.State != nil {
		q = q.Where("state = ?", *f.State)
	}

	var rows []types.ChannelRequest
	err = q.Order("created_at DESC").Find(&rows).Error
	return rows, err
}

// RequestedMembers exposes the group wish-list for a request.
func (s *Service) RequestedMembers(ctx context.Context, requestID uint64) ([]uint64, error) {
	return s.requestedMembers(ctx, requestID)
}

func (s *Service) requestedMembers(ctx context.Context, requestID uint64) ([]uint64, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).Model(&types.ChannelRequestMember{}).
		Where("request_id = ?", requestID).Pluck("user_id", &ids).Error
	return ids, err
}
