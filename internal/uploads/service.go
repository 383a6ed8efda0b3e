package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/forecourt/forecourt/internal/dealers"
	"github.com/forecourt/forecourt/internal/media"
	"github.com/forecourt/forecourt/internal/platform/httpx"
	"github.com/forecourt/forecourt/internal/shared"
	"github.com/forecourt/forecourt/internal/storage"
)

const (
	CategoryLicense   = storage.CategoryLicense
	CategoryDocument  = storage.CategoryDocument
	CategoryLogo      = "logo"
	CategorySignature = "signature"
)

var ErrUnknownCategory = errors.New("unknown upload category")

var documentCategories = map[string]bool{
	CategoryDocument:  true,
	CategoryLogo:      true,
	CategorySignature: true,
}

// DealerLookup resolves the uploader's dealer and records logo changes.
type DealerLookup interface {
	ForUser(ctx context.Context, userID int64) (*dealers.Dealer, error)
	SetLogo(ctx context.Context, id int64, key string) error
}

// Recorder counts upload outcomes.
type Recorder interface {
	ObserveUpload(category, outcome string, size int64)
}

type Service struct {
	repo    Repository
	dealers DealerLookup
	store   storage.Store
	policy  media.Policy
	metrics Recorder
	logger  *slog.Logger
}

func NewService(repo Repository, dealers DealerLookup, store storage.Store, maxBytes int64, metrics Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		dealers: dealers,
		store:   store,
		policy:  media.DocumentPolicy(maxBytes),
		metrics: metrics,
		logger:  logger,
	}
}

// MaxBytes is the accepted file size.
func (s *Service) MaxBytes() int64 {
	if s.policy.MaxBytes <= 0 {
		return media.DefaultMaxBytes
	}
	return s.policy.MaxBytes
}

// Upload validates f, stores it under the user's dealer and records it.
// A logo upload also becomes the dealer's invoice letterhead.
func (s *Service) Upload(ctx context.Context, p shared.Principal, category string, f File) (Document, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if category != CategoryLicense && !documentCategories[category] {
		s.observe(category, "rejected", 0)
		return Document{}, httpx.Invalid(shared.Safe("Unknown upload category", fmt.Errorf("%w: %q", ErrUnknownCategory, category)))
	}

	dealer, err := s.dealers.ForUser(ctx, p.UserID)
	if err != nil {
		s.observe(category, "error", 0)
		if errors.Is(err, shared.ErrNotFound) {
			return Document{}, shared.Safe("No dealer is linked to this account", err)
		}
		return Document{}, fmt.Errorf("load dealer: %w", err)
	}

	ct, err := s.policy.Check(f.ContentType, f.Data)
	if err != nil {
		s.observe(category, "rejected", 0)
		return Document{}, httpx.Invalid(shared.Safe(rejectionMessage(err), err))
	}

	size := int64(len(f.Data))
	key := storage.ObjectKey(dealer.ID, category, "upload"+media.Extension(ct))
	if err := s.store.Put(ctx, key, ct, bytes.NewReader(f.Data)); err != nil {
		s.observe(category, "error", 0)
		return Document{}, fmt.Errorf("store upload: %w", err)
	}

	doc, err := s.repo.Record(ctx, Document{
		DealerID:    dealer.ID,
		UserID:      p.UserID,
		Category:    category,
		ObjectKey:   key,
		FileName:    path.Base(strings.ReplaceAll(f.Name, `\`, "/")),
		ContentType: ct,
		SizeBytes:   size,
	})
	if err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Warn("remove orphaned upload failed", "key", key, "error", delErr)
		}
		s.observe(category, "error", 0)
		return Document{}, err
	}

	if category == CategoryLogo {
		if err := s.dealers.SetLogo(ctx, dealer.ID, key); err != nil {
			s.observe(category, "error", 0)
			return Document{}, fmt.Errorf("set dealer logo: %w", err)
		}
	}
	s.observe(category, "ok", size)
	return doc, nil
}

// URL is the public address of a stored document.
func (s *Service) URL(doc Document) string {
	return s.store.URL(doc.ObjectKey)
}

func (s *Service) observe(category, outcome string, size int64) {
	if s.metrics != nil {
		s.metrics.ObserveUpload(category, outcome, size)
	}
}

func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, media.ErrEmptyFile):
		return "The file is empty"
	case errors.Is(err, media.ErrFileTooLarge):
		return "File is too large. Maximum size is 10MB"
	case errors.Is(err, media.ErrUnsupportedType):
		return "Invalid file type. Only JPEG, PNG, WebP and PDF files are allowed"
	case errors.Is(err, media.ErrTypeMismatch):
		return "The file content does not match its type"
	}
	return "The file could not be accepted"
}
