package stock

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/forecourt/forecourt/internal/media"
	"github.com/forecourt/forecourt/internal/platform/httpx"
	"github.com/forecourt/forecourt/internal/storage"
)

type memoryRepo struct {
	mu       sync.Mutex
	vehicles map[int64]Vehicle
	images   map[int64]Image
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{vehicles: map[int64]Vehicle{}, images: map[int64]Image{}}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) Get(ctx context.Context, dealerID, id int64) (*Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok || v.DealerID != dealerID {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (m *memoryRepo) List(ctx context.Context, req ListVehiclesRequest) ([]Vehicle, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Vehicle
	for _, v := range m.vehicles {
		if v.DealerID != req.DealerID || (req.Status != "" && v.Status != req.Status) {
			continue
		}
		if req.Make != "" && !strings.EqualFold(v.Make, req.Make) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memoryRepo) Create(ctx context.Context, v Vehicle) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.vehicles {
		if existing.DealerID == v.DealerID && existing.Registration == v.Registration {
			return 0, ErrAlreadyExists
		}
	}
	m.nextID++
	v.ID = m.nextID
	m.vehicles[v.ID] = v
	return v.ID, nil
}

func (m *memoryRepo) Update(ctx context.Context, v Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vehicles[v.ID]; !ok {
		return ErrNotFound
	}
	v.Images = nil
	m.vehicles[v.ID] = v
	return nil
}

func (m *memoryRepo) CountByStatus(ctx context.Context, dealerID int64) (map[Status]int, error) {
	counts := map[Status]int{}
	for _, v := range m.vehicles {
		if v.DealerID == dealerID {
			counts[v.Status]++
		}
	}
	return counts, nil
}

func (m *memoryRepo) Images(ctx context.Context, vehicleID int64) ([]Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Image
	for _, img := range m.images {
		if img.VehicleID == vehicleID {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *memoryRepo) GetImage(ctx context.Context, imageID int64) (*Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[imageID]
	if !ok {
		return nil, ErrNotFound
	}
	return &img, nil
}

func (m *memoryRepo) AddImage(ctx context.Context, img Image) (Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	last := 0
	for _, existing := range m.images {
		if existing.VehicleID == img.VehicleID && existing.Position > last {
			last = existing.Position
		}
	}
	m.nextID++
	img.ID = m.nextID
	img.Position = last + 1
	m.images[img.ID] = img
	return img, nil
}

func (m *memoryRepo) SetImagePositions(ctx context.Context, vehicleID int64, orderedIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range orderedIDs {
		img := m.images[id]
		img.Position = i + 1
		m.images[id] = img
	}
	return nil
}

func (m *memoryRepo) DeleteImage(ctx context.Context, vehicleID, imageID int64) (*Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[imageID]
	if !ok || img.VehicleID != vehicleID {
		return nil, ErrNotFound
	}
	delete(m.images, imageID)
	return &img, nil
}

func (m *memoryRepo) SetThumbnail(ctx context.Context, imageID int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[imageID]
	if !ok {
		return ErrNotFound
	}
	img.ThumbnailKey = key
	m.images[imageID] = img
	return nil
}

type recordingQueue struct {
	ids []int64
	err error
}

func (q *recordingQueue) EnqueueThumbnail(ctx context.Context, imageID int64) error {
	q.ids = append(q.ids, imageID)
	return q.err
}

type fixture struct {
	svc   *Service
	repo  *memoryRepo
	store *storage.MemoryStore
	queue *recordingQueue
}

func newFixture() fixture {
	repo := newMemoryRepo()
	store := storage.NewMemoryStore("https://cdn.test")
	queue := &recordingQueue{}
	return fixture{svc: NewService(repo, store, queue, media.DefaultMaxBytes, nil), repo: repo, store: store, queue: queue}
}

func sampleInput() VehicleInput {
	return VehicleInput{
		Registration:  "ab12 cde",
		Make:          "Ford",
		Model:         "Focus",
		Derivative:    "1.0 EcoBoost Titanium",
		Year:          2019,
		Mileage:       42000,
		PurchasePrice: decimal.RequireFromString("7450"),
		RetailPrice:   decimal.RequireFromString("8995"),
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(1, 1, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCreateNormalisesRegistration(t *testing.T) {
	f := newFixture()
	v, err := f.svc.Create(context.Background(), 1, sampleInput())
	require.NoError(t, err)
	assert.Equal(t, "AB12CDE", v.Registration)
	assert.Equal(t, StatusInStock, v.Status)
	assert.Equal(t, "1545", v.Margin().String())
}

func TestCreateRejectsDuplicateRegistration(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), 1, sampleInput())
	require.NoError(t, err)

	in := sampleInput()
	in.Registration = "AB12CDE"
	_, err = f.svc.Create(context.Background(), 1, in)
	assert.ErrorIs(t, err, httpx.ErrDuplicate)

	_, err = f.svc.Create(context.Background(), 2, in)
	assert.NoError(t, err, "registrations are unique per dealer only")
}

func TestCreateValidation(t *testing.T) {
	f := newFixture()

	in := sampleInput()
	in.Status = StatusSold
	_, err := f.svc.Create(context.Background(), 1, in)
	assert.ErrorIs(t, err, httpx.ErrValidation)

	in = sampleInput()
	in.RetailPrice = decimal.NewFromInt(-1)
	_, err = f.svc.Create(context.Background(), 1, in)
	assert.ErrorIs(t, err, httpx.ErrValidation)

	in = sampleInput()
	in.Make = ""
	_, err = f.svc.Create(context.Background(), 1, in)
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestUpdateKeepsSoldStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	v, err := f.svc.Create(ctx, 1, sampleInput())
	require.NoError(t, err)

	sold := f.repo.vehicles[v.ID]
	now := time.Now()
	sold.Status, sold.SoldAt = StatusSold, &now
	f.repo.vehicles[v.ID] = sold

	in := sampleInput()
	in.Mileage = 43000
	in.Status = StatusInStock
	updated, err := f.svc.Update(ctx, 1, v.ID, in)
	require.NoError(t, err)
	assert.Equal(t, StatusSold, updated.Status)
	assert.Equal(t, 43000, updated.Mileage)
}

func TestAddImageStoresAndQueuesThumbnail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	v, err := f.svc.Create(ctx, 1, sampleInput())
	require.NoError(t, err)

	first, err := f.svc.AddImage(ctx, 1, v.ID, NewImage{FileName: "front.PNG", ContentType: "image/png", Data: pngBytes(t, 40, 20)})
	require.NoError(t, err)
	second, err := f.svc.AddImage(ctx, 1, v.ID, NewImage{FileName: "rear.png", ContentType: "image/png", Data: pngBytes(t, 40, 20)})
	require.NoError(t, err)

	assert.Equal(t, 1, first.Position)
	assert.Equal(t, 2, second.Position)
	assert.True(t, strings.HasPrefix(first.ObjectKey, "dealers/1/stock/"))
	assert.True(t, strings.HasSuffix(first.ObjectKey, ".png"))
	assert.Equal(t, "https://cdn.test/"+first.ObjectKey, first.URL)
	assert.Equal(t, "image/png", f.store.ContentType(first.ObjectKey))
	assert.Equal(t, []int64{first.ID, second.ID}, f.queue.ids)
}

func TestAddImageRejectsBadUploads(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	v, err := f.svc.Create(ctx, 1, sampleInput())
	require.NoError(t, err)

	_, err = f.svc.AddImage(ctx, 1, v.ID, NewImage{FileName: "x.png", ContentType: "image/png", Data: []byte("plain text")})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = f.svc.AddImage(ctx, 1, v.ID, NewImage{FileName: "x.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4\n")})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	small := NewService(f.repo, f.store, nil, 10, nil)
	_, err = small.AddImage(ctx, 1, v.ID, NewImage{FileName: "x.png", ContentType: "image/png", Data: pngBytes(t, 40, 20)})
	assert.ErrorIs(t, err, httpx.ErrTooLarge)

	_, err = f.svc.AddImage(ctx, 2, v.ID, NewImage{FileName: "x.png", ContentType: "image/png", Data: pngBytes(t, 4, 4)})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.store.Keys())
}

func TestAddImageStorageFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	v, err := f.svc.Create(ctx, 1, sampleInput())
	require.NoError(t, err)

	f.store.FailPut = errors.New("bucket unavailable")
	_, err = f.svc.AddImage(ctx, 1, v.ID, NewImage{FileName: "x.png", ContentType: "image/png", Data: pngBytes(t, 4, 4)})
	require.Error(t, err)
	assert.Equal(t, 500, httpx.StatusFor(err))
	assert.Empty(t, f.repo.images)
}

func addImages(t *testing.T, f fixture, vehicleID int64, n int) []int64 {
	t.Helper()
	ids := make([]int64, n)
	for i := range ids {
		img, err := f.svc.AddImage(context.Background(), 1, vehicleID, NewImage{FileName: "p.png", ContentType: "image/png", Data: pngBytes(t, 8, 8)})
		require.NoError(t, err)
		ids[i] = img.ID
	}
	return ids
}

func TestReorderImages(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	v, err := f.svc.Create(ctx, 1, sampleInput())
	require.NoError(t, err)
	ids := addImages(t, f, v.ID, 3)

	images, err := f.svc.ReorderImages(ctx, 1, v.ID, []int64{ids[2], ids[0], ids[1]})
	require.NoError(t, err)
	require.Len(t, images, 3)
	assert.Equal(t, ids[2], images[0].ID)
	assert.Equal(t, 1, images[0].Position)
	assert.Equal(t, ids[1], images[2].ID)

	cases := map[string][]int64{
		"missing":   {ids[0], ids[1]},
		"duplicate": {ids[0], ids[0], ids[1]},
		"foreign":   {ids[0], ids[1], 999},
		"extra":     {ids[0], ids[1], ids[2], 999},
	}
	for name, order := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.ReorderImages(ctx, 1, v.ID, order)
			assert.ErrorIs(t, err, ErrNotPermutation)
			assert.ErrorIs(t, err, httpx.ErrValidation)
		})
	}
}

func TestDeleteImageRepacksPositions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	v, err := f.svc.Create(ctx, 1, sampleInput())
	require.NoError(t, err)
	ids := addImages(t, f, v.ID, 3)
	removed := f.repo.images[ids[0]]

	require.NoError(t, f.svc.DeleteImage(ctx, 1, v.ID, ids[0]))

	got, err := f.svc.Get(ctx, 1, v.ID)
	require.NoError(t, err)
	require.Len(t, got.Images, 2)
	assert.Equal(t, ids[1], got.Images[0].ID)
	assert.Equal(t, 1, got.Images[0].Position)
	assert.Equal(t, 2, got.Images[1].Position)
	assert.NotContains(t, f.store.Keys(), removed.ObjectKey)

	assert.ErrorIs(t, f.svc.DeleteImage(ctx, 1, v.ID, ids[0]), ErrNotFound)
}

func TestGenerateThumbnail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	v, err := f.svc.Create(ctx, 1, sampleInput())
	require.NoError(t, err)
	img, err := f.svc.AddImage(ctx, 1, v.ID, NewImage{FileName: "wide.png", ContentType: "image/png", Data: pngBytes(t, 800, 400)})
	require.NoError(t, err)

	key, err := f.svc.GenerateThumbnail(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, media.ThumbnailKey(img.ObjectKey), key)
	assert.Equal(t, "image/jpeg", f.store.ContentType(key))

	got, err := f.svc.Get(ctx, 1, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/"+key, got.Images[0].ThumbnailURL)
}

func TestExportXLSX(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Create(ctx, 1, sampleInput())
	require.NoError(t, err)
	in := sampleInput()
	in.Registration = "XY19 ZZZ"
	in.Make = "Vauxhall"
	_, err = f.svc.Create(ctx, 1, in)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.svc.ExportXLSX(ctx, &buf, ListVehiclesRequest{DealerID: 1, Make: "ford"}))

	book, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	rows, err := book.GetRows("Stock")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Registration", rows[0][0])
	assert.Equal(t, "AB12CDE", rows[1][0])
	assert.Equal(t, "In stock", rows[1][10])
}
