// Package store persists messages and attachment metadata. Every read and
// write is gated on the directory's access check; the store never talks to
// the delivery gateway.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/meridian-apps/casecomms/src/api/apperr"
	"github.com/meridian-apps/casecomms/src/api/directory"
	"github.com/meridian-apps/casecomms/src/api/files"
	"github.com/meridian-apps/casecomms/src/api/roster"
	"github.com/meridian-apps/casecomms/src/api/types"
)

type Service struct {
	db        *gorm.DB
	dir       *directory.Service
	ros       roster.Directory
	storage   files.Storage
	sanitizer *bluemonday.Policy
	log       *zap.SugaredLogger
}

func New(db *gorm.DB, dir *directory.Service, ros roster.Directory, storage files.Storage, log *zap.SugaredLogger) *Service {
	// Strict sanitizer with basic markdown formatting allowed.
	sanitizer := bluemonday.StrictPolicy()
	sanitizer.AllowElements("p", "br", "strong", "em", "code", "pre", "blockquote")
	sanitizer.AllowElements("ul", "ol", "li")
	sanitizer.AllowAttrs("href").OnElements("a")
	sanitizer.RequireParseableURLs(true)
	sanitizer.AddTargetBlankToFullyQualifiedLinks(true)
	sanitizer.RequireNoFollowOnLinks(true)

	return &Service{db: db, dir: dir, ros: ros, storage: storage, sanitizer: sanitizer, log: log.With("component", "store")}
}

// Send persists a text message. The caller relays the result to the gateway.
func (s *Service) Send(ctx context.Context, channelID, senderID uint64, content string) (*types.Message, error) {
	ok, err := s.dir.CanAccess(ctx, channelID, senderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: not a member of this channel", apperr.ErrAccessDenied)
	}

	content = strings.TrimSpace(s.sanitizer.Sanitize(content))
	if content == "" {
		return nil, fmt.Errorf("%w: message body is empty", apperr.ErrInvalidRequest)
	}

	msg := types.Message{
		ChannelID: channelID,
		SenderID:  senderID,
		Kind:      types.MessageText,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// Upload is one file of a multi-file send.
type Upload struct {
	FileName string
	MimeType string
	Reader   io.Reader
}

// SendFiles collapses N uploads into one message owning N attachments. The
// message kind is image when any stored file is an image, file otherwise.
func (s *Service) SendFiles(ctx context.Context, channelID, senderID uint64, caption string, uploads []Upload) (*types.Message, []types.Attachment, error) {
	ok, err := s.dir.CanAccess(ctx, channelID, senderID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: not a member of this channel", apperr.ErrAccessDenied)
	}
	if len(uploads) == 0 {
		return nil, nil, fmt.Errorf("%w: no files in upload", apperr.ErrInvalidRequest)
	}

	kind := types.MessageFile
	for _, up := range uploads {
		if strings.HasPrefix(up.MimeType, "image/") {
			kind = types.MessageImage
			break
		}
	}

	// Bytes land in storage before any row is written, so a failure at any
	// point can discard the stored files and leave nothing behind.
	var atts []types.Attachment
	for _, up := range uploads {
		path, size, err := s.storage.Store(ctx, up.FileName, up.Reader)
		if err != nil {
			s.discard(ctx, atts)
			return nil, nil, err
		}
		atts = append(atts, types.Attachment{
			FileName:    up.FileName,
			StoragePath: path,
			MimeType:    up.MimeType,
			SizeBytes:   size,
			UploadedBy:  senderID,
			UploadedAt:  time.Now(),
		})
	}

	msg := types.Message{
		ChannelID: channelID,
		SenderID:  senderID,
		Kind:      kind,
		Content:   strings.TrimSpace(s.sanitizer.Sanitize(caption)),
		CreatedAt: time.Now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		for i := range atts {
			atts[i].MessageID = msg.ID
			if err := tx.Create(&atts[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.discard(ctx, atts)
		return nil, nil, err
	}

	s.log.Infow("file message stored", "channel", channelID, "message", msg.ID, "files", len(atts))
	return &msg, atts, nil
}

// discard removes stored bytes after a failed upload.
func (s *Service) discard(ctx context.Context, atts []types.Attachment) {
	for _, a := range atts {
		if err := s.storage.Remove(ctx, a.StoragePath); err != nil {
			s.log.Warnw("upload cleanup failed", "path", a.StoragePath, "err", err)
		}
	}
}

// Sender identity attached to a listed message.
type Sender struct {
	ID        uint64 `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

type ResolvedAttachment struct {
	types.Attachment
	Uploader Sender `json:"uploader"`
}

type ResolvedMessage struct {
	types.Message
	Sender      Sender               `json:"sender"`
	Attachments []ResolvedAttachment `json:"attachments"`
}

// List returns a newest-first page of messages with sender identity and
// attachments resolved.
func (s *Service) List(ctx context.Context, channelID, requesterID uint64, limit, offset int) ([]ResolvedMessage, error) {
	ok, err := s.dir.CanAccess(ctx, channelID, requesterID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: not a member of this channel", apperr.ErrAccessDenied)
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var msgs []types.Message
	if err := s.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("created_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&msgs).Error; err != nil {
		return nil, err
	}

	out := make([]ResolvedMessage, 0, len(msgs))
	senders := make(map[uint64]Sender)
	for _, m := range msgs {
		rm := ResolvedMessage{Message: m, Sender: s.senderFor(ctx, senders, m.SenderID), Attachments: []ResolvedAttachment{}}

		var atts []types.Attachment
		if err := s.db.WithContext(ctx).Where("message_id = ?", m.ID).Find(&atts).Error; err != nil {
			return nil, err
		}
		for _, a := range atts {
			rm.Attachments = append(rm.Attachments, ResolvedAttachment{
				Attachment: a,
				Uploader:   s.senderFor(ctx, senders, a.UploadedBy),
			})
		}
		out = append(out, rm)
	}
	return out, nil
}

func (s *Service) senderFor(ctx context.Context, cache map[uint64]Sender, userID uint64) Sender {
	if snd, ok := cache[userID]; ok {
		return snd
	}
	snd := Sender{ID: userID}
	if u, err := s.ros.UserByID(ctx, userID); err == nil {
		snd.FirstName, snd.LastName, snd.Email = u.FirstName, u.LastName, u.Email
	}
	cache[userID] = snd
	return snd
}

// Resolve attaches sender and uploader identities to a freshly stored
// message so the write path can hand one payload to both the HTTP response
// and the gateway broadcast.
func (s *Service) Resolve(ctx context.Context, msg *types.Message, atts []types.Attachment) ResolvedMessage {
	cache := make(map[uint64]Sender)
	rm := ResolvedMessage{Message: *msg, Sender: s.senderFor(ctx, cache, msg.SenderID), Attachments: []ResolvedAttachment{}}
	for _, a := range atts {
		rm.Attachments = append(rm.Attachments, ResolvedAttachment{
			Attachment: a,
			Uploader:   s.senderFor(ctx, cache, a.UploadedBy),
		})
	}
	return rm
}

// GetAttachment walks attachment → message → channel and applies the same
// access check as a read. Denial and absence are both ErrNotFound so callers
// cannot probe for attachments they are not allowed to see.
func (s *Service) GetAttachment(ctx context.Context, attachmentID, requesterID uint64) (*types.Attachment, error) {
	var att types.Attachment
	if err := s.db.WithContext(ctx).First(&att, "id = ?", attachmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	var msg types.Message
	if err := s.db.WithContext(ctx).First(&msg, "id = ?", att.MessageID).Error; err != nil {
		return nil, apperr.ErrNotFound
	}
	ok, err := s.dir.CanAccess(ctx, msg.ChannelID, requesterID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &att, nil
}

// OpenAttachment resolves metadata and streams the backing bytes.
func (s *Service) OpenAttachment(ctx context.Context, attachmentID, requesterID uint64) (*types.Attachment, io.ReadCloser, error) {
	att, err := s.GetAttachment(ctx, attachmentID, requesterID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.storage.Open(ctx, att.StoragePath)
	if err != nil {
		return nil, nil, err
	}
	return att, rc, nil
}
