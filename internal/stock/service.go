package stock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/forecourt/forecourt/internal/media"
	"github.com/forecourt/forecourt/internal/platform/httpx"
	"github.com/forecourt/forecourt/internal/platform/xlsx"
	"github.com/forecourt/forecourt/internal/storage"
)

// ErrNotPermutation is returned when a reorder request does not name every
// current image exactly once.
var ErrNotPermutation = errors.New("image order must list every image of the vehicle exactly once")

// ThumbnailQueue schedules thumbnail generation for a stored image.
type ThumbnailQueue interface {
	EnqueueThumbnail(ctx context.Context, imageID int64) error
}

type Service struct {
	repo     Repository
	store    storage.Store
	queue    ThumbnailQueue
	policy   media.Policy
	logger   *slog.Logger
	validate *validator.Validate
}

func NewService(repo Repository, store storage.Store, queue ThumbnailQueue, maxBytes int64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		store:    store,
		queue:    queue,
		policy:   media.ImagePolicy(maxBytes),
		logger:   logger,
		validate: validator.New(),
	}
}

func (s *Service) prepare(in VehicleInput) (VehicleInput, error) {
	in.Registration = NormaliseRegistration(in.Registration)
	in.VIN = strings.ToUpper(strings.TrimSpace(in.VIN))
	in.Make = strings.TrimSpace(in.Make)
	in.Model = strings.TrimSpace(in.Model)
	in.Derivative = strings.TrimSpace(in.Derivative)
	if in.Status == "" {
		in.Status = StatusInStock
	}
	if err := s.validate.Struct(in); err != nil {
		return in, httpx.Invalid(err)
	}
	if !in.Status.Valid() {
		return in, httpx.Invalid(fmt.Errorf("unknown status %q", in.Status))
	}
	if in.PurchasePrice.IsNegative() || in.RetailPrice.IsNegative() {
		return in, httpx.Invalid(errors.New("prices cannot be negative"))
	}
	return in, nil
}

func apply(v *Vehicle, in VehicleInput) {
	v.Registration = in.Registration
	v.VIN = in.VIN
	v.Make = in.Make
	v.Model = in.Model
	v.Derivative = in.Derivative
	v.Year = in.Year
	v.Mileage = in.Mileage
	v.Colour = in.Colour
	v.FuelType = in.FuelType
	v.Transmission = in.Transmission
	v.PurchasePrice = in.PurchasePrice.Round(2)
	v.RetailPrice = in.RetailPrice.Round(2)
	v.Status = in.Status
	v.Notes = in.Notes
}

// Create adds a vehicle to the dealer's stock.
func (s *Service) Create(ctx context.Context, dealerID int64, in VehicleInput) (*Vehicle, error) {
	in, err := s.prepare(in)
	if err != nil {
		return nil, err
	}
	if in.Status == StatusSold {
		return nil, httpx.Invalid(errors.New("vehicles are marked sold by issuing an invoice"))
	}
	v := Vehicle{DealerID: dealerID}
	apply(&v, in)
	v.ID, err = s.repo.Create(ctx, v)
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, httpx.Conflict(err)
		}
		return nil, fmt.Errorf("create vehicle: %w", err)
	}
	return &v, nil
}

// Update replaces the editable fields. A sold vehicle keeps its sold status.
func (s *Service) Update(ctx context.Context, dealerID, id int64, in VehicleInput) (*Vehicle, error) {
	existing, err := s.repo.Get(ctx, dealerID, id)
	if err != nil {
		return nil, fmt.Errorf("get vehicle: %w", err)
	}
	in, err = s.prepare(in)
	if err != nil {
		return existing, err
	}
	if existing.Status == StatusSold {
		in.Status = StatusSold
	} else if in.Status == StatusSold {
		return existing, httpx.Invalid(errors.New("vehicles are marked sold by issuing an invoice"))
	}
	apply(existing, in)
	if err := s.repo.Update(ctx, *existing); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return existing, httpx.Conflict(err)
		}
		return existing, fmt.Errorf("update vehicle: %w", err)
	}
	return s.Get(ctx, dealerID, id)
}

// Get loads a vehicle with its ordered images and their public URLs.
func (s *Service) Get(ctx context.Context, dealerID, id int64) (*Vehicle, error) {
	v, err := s.repo.Get(ctx, dealerID, id)
	if err != nil {
		return nil, err
	}
	images, err := s.repo.Images(ctx, v.ID)
	if err != nil {
		return nil, fmt.Errorf("load images: %w", err)
	}
	for i := range images {
		s.decorate(&images[i])
	}
	v.Images = images
	return v, nil
}

func (s *Service) decorate(img *Image) {
	img.URL = s.store.URL(img.ObjectKey)
	if img.ThumbnailKey != "" {
		img.ThumbnailURL = s.store.URL(img.ThumbnailKey)
	}
}

func (s *Service) List(ctx context.Context, req ListVehiclesRequest) ([]Vehicle, int, error) {
	req.Make = strings.TrimSpace(req.Make)
	req.Search = strings.TrimSpace(req.Search)
	if err := s.validate.Struct(req); err != nil {
		return nil, 0, httpx.Invalid(err)
	}
	return s.repo.List(ctx, req)
}

func (s *Service) CountByStatus(ctx context.Context, dealerID int64) (map[Status]int, error) {
	return s.repo.CountByStatus(ctx, dealerID)
}

// AddImage stores a photo at the end of the vehicle's gallery and schedules
// its thumbnail.
func (s *Service) AddImage(ctx context.Context, dealerID, vehicleID int64, upload NewImage) (*Image, error) {
	if _, err := s.repo.Get(ctx, dealerID, vehicleID); err != nil {
		return nil, err
	}
	contentType, err := s.policy.Check(upload.ContentType, upload.Data)
	if err != nil {
		if errors.Is(err, media.ErrFileTooLarge) {
			return nil, errors.Join(httpx.ErrTooLarge, err)
		}
		return nil, httpx.Invalid(err)
	}

	name := upload.FileName
	if !strings.Contains(name, ".") {
		name += media.Extension(contentType)
	}
	key := storage.ObjectKey(dealerID, storage.CategoryStock, name)
	if err := s.store.Put(ctx, key, contentType, bytes.NewReader(upload.Data)); err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	img, err := s.repo.AddImage(ctx, Image{VehicleID: vehicleID, ObjectKey: key, ContentType: contentType})
	if err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Warn("orphaned stock image", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("record image: %w", err)
	}

	if s.queue != nil {
		if err := s.queue.EnqueueThumbnail(ctx, img.ID); err != nil {
			s.logger.Warn("enqueue thumbnail failed", "imageID", img.ID, "error", err)
		}
	}
	s.decorate(&img)
	return &img, nil
}

// ReorderImages sets positions 1..n following orderedIDs.
func (s *Service) ReorderImages(ctx context.Context, dealerID, vehicleID int64, orderedIDs []int64) ([]Image, error) {
	if _, err := s.repo.Get(ctx, dealerID, vehicleID); err != nil {
		return nil, err
	}
	var result []Image
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.Images(ctx, vehicleID)
		if err != nil {
			return err
		}
		if !isPermutation(current, orderedIDs) {
			return httpx.Invalid(ErrNotPermutation)
		}
		if err := repo.SetImagePositions(ctx, vehicleID, orderedIDs); err != nil {
			return err
		}
		result, err = repo.Images(ctx, vehicleID)
		return err
	})
	if err != nil {
		return nil, err
	}
	for i := range result {
		s.decorate(&result[i])
	}
	return result, nil
}

func isPermutation(current []Image, ids []int64) bool {
	if len(current) != len(ids) {
		return false
	}
	want := make(map[int64]bool, len(current))
	for _, img := range current {
		want[img.ID] = true
	}
	for _, id := range ids {
		if !want[id] {
			return false
		}
		delete(want, id)
	}
	return len(want) == 0
}

// DeleteImage removes an image, closes the gap in positions and deletes the
// stored objects.
func (s *Service) DeleteImage(ctx context.Context, dealerID, vehicleID, imageID int64) error {
	if _, err := s.repo.Get(ctx, dealerID, vehicleID); err != nil {
		return err
	}
	var removed *Image
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		removed, err = repo.DeleteImage(ctx, vehicleID, imageID)
		if err != nil {
			return err
		}
		rest, err := repo.Images(ctx, vehicleID)
		if err != nil {
			return err
		}
		ids := make([]int64, len(rest))
		for i, img := range rest {
			ids[i] = img.ID
		}
		return repo.SetImagePositions(ctx, vehicleID, ids)
	})
	if err != nil {
		return err
	}

	for _, key := range []string{removed.ObjectKey, removed.ThumbnailKey} {
		if key == "" {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn("delete stock object failed", "key", key, "error", err)
		}
	}
	return nil
}

// GenerateThumbnail renders and stores the thumbnail for one image. It runs in
// the worker.
func (s *Service) GenerateThumbnail(ctx context.Context, imageID int64) (string, error) {
	img, err := s.repo.GetImage(ctx, imageID)
	if err != nil {
		return "", err
	}
	rc, err := s.store.Open(ctx, img.ObjectKey)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer rc.Close()

	thumb, err := media.Thumbnail(rc, media.DefaultThumbnailWidth)
	if err != nil {
		return "", err
	}
	key := media.ThumbnailKey(img.ObjectKey)
	if err := s.store.Put(ctx, key, "image/jpeg", bytes.NewReader(thumb)); err != nil {
		return "", fmt.Errorf("store thumbnail: %w", err)
	}
	if err := s.repo.SetThumbnail(ctx, imageID, key); err != nil {
		return "", fmt.Errorf("record thumbnail: %w", err)
	}
	return key, nil
}

var exportHeaders = []string{
	"Registration", "Make", "Model", "Derivative", "Year", "Mileage", "Colour", "Fuel",
	"Transmission", "VIN", "Status", "Purchase price", "Retail price", "Margin",
}

// ExportXLSX writes every vehicle matching the filter, ignoring pagination.
func (s *Service) ExportXLSX(ctx context.Context, w io.Writer, req ListVehiclesRequest) error {
	req.Limit = 10000
	req.Offset = 0
	vehicles, _, err := s.List(ctx, req)
	if err != nil {
		return err
	}
	rows := make([][]any, 0, len(vehicles))
	for _, v := range vehicles {
		rows = append(rows, []any{
			v.Registration, v.Make, v.Model, v.Derivative, v.Year, v.Mileage, v.Colour, v.FuelType,
			v.Transmission, v.VIN, v.Status.Label(), money(v.PurchasePrice), money(v.RetailPrice), money(v.Margin()),
		})
	}
	return xlsx.Write(w, "Stock", exportHeaders, rows)
}

func money(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
