package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
)

// memRepo is an in-memory PhotoRepository keyed by content hash.
type memRepo struct {
	mu      sync.Mutex
	nextID  int64
	byID    map[int64]*domain.Photo
	byHash  map[string]int64
	updates []domain.PhotoUpdate
	failOn  map[string]error
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[int64]*domain.Photo{}, byHash: map[string]int64{}, failOn: map[string]error{}}
}

func (r *memRepo) add(p domain.Photo) *domain.Photo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(p)
}

func (r *memRepo) addLocked(p domain.Photo) *domain.Photo {
	r.nextID++
	p.ID = r.nextID
	if p.ContentHash == "" {
		p.ContentHash = fmt.Sprintf("%040d", p.ID)
	}
	if p.Category == "" {
		p.Category = domain.CategoryUnclassified
	}
	cp := p
	r.byID[p.ID] = &cp
	r.byHash[p.ContentHash] = p.ID
	return &cp
}

func (r *memRepo) UpsertByHash(_ context.Context, photo *domain.Photo) (*domain.Photo, bool, error) {
	if err := r.failOn[photo.SourcePath]; err != nil {
		return nil, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byHash[photo.ContentHash]; ok {
		existing := *r.byID[id]
		return &existing, false, nil
	}
	return r.addLocked(*photo), true, nil
}

func (r *memRepo) GetByID(_ context.Context, id int64) (*domain.Photo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get photo", fmt.Errorf("photo id=%d", id))
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) GetByHash(_ context.Context, hash string) (*domain.Photo, error) {
	r.mu.Lock()
	id, ok := r.byHash[hash]
	r.mu.Unlock()
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get photo", errors.New(hash))
	}
	return r.GetByID(context.Background(), id)
}

func (r *memRepo) GetByIDs(_ context.Context, ids []int64) ([]domain.Photo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Photo{}
	for _, id := range ids {
		if p, ok := r.byID[id]; ok {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) UpdateFields(_ context.Context, id int64, u domain.PhotoUpdate) (*domain.Photo, error) {
	if u.Empty() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "update photo", errors.New("no fields to update"))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "update photo", fmt.Errorf("photo id=%d", id))
	}
	applyUpdate(p, u)
	r.updates = append(r.updates, u)
	cp := *p
	return &cp, nil
}

func applyUpdate(p *domain.Photo, u domain.PhotoUpdate) {
	if u.Category != nil {
		p.Category = *u.Category
	}
	if u.Tags != nil {
		p.Tags = append([]string{}, (*u.Tags)...)
	}
	if u.Caption != nil {
		c := *u.Caption
		p.Caption = &c
	}
	if u.IsSelected != nil {
		p.IsSelected = *u.IsSelected
	}
	if u.LibraryPath != nil {
		l := *u.LibraryPath
		p.LibraryPath = &l
	}
	if u.SourcePath != nil {
		p.SourcePath = *u.SourcePath
	}
	if u.CompanionPath != nil {
		if *u.CompanionPath == "" {
			p.CompanionPath = nil
		} else {
			c := *u.CompanionPath
			p.CompanionPath = &c
		}
	}
}

func (r *memRepo) all() []domain.Photo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Photo, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memRepo) List(_ context.Context, f domain.PhotoFilter) ([]domain.Photo, int, error) {
	f = f.Normalize()
	var matched []domain.Photo
	for _, p := range r.all() {
		if !f.Range.Contains(p.CapturedAt) {
			continue
		}
		if f.Category != nil && p.Category != *f.Category {
			continue
		}
		if f.IsSelected != nil && p.IsSelected != *f.IsSelected {
			continue
		}
		matched = append(matched, p)
	}
	start := min(f.Offset(), len(matched))
	end := min(start+f.PageSize, len(matched))
	return matched[start:end], len(matched), nil
}

func (r *memRepo) ListForStats(_ context.Context, window domain.DateRange) ([]domain.Photo, error) {
	out := []domain.Photo{}
	for _, p := range r.all() {
		if window.Contains(p.CapturedAt) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memRepo) ListUnorganized(context.Context) ([]domain.Photo, error) {
	out := []domain.Photo{}
	for _, p := range r.all() {
		if p.LibraryPath == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memRepo) BatchUpdate(ctx context.Context, ids []int64, u domain.PhotoUpdate) (int, error) {
	n := 0
	for _, id := range ids {
		if _, err := r.UpdateFields(ctx, id, u); err == nil {
			n++
		} else if !domain.IsKind(err, domain.ErrNotFound) {
			return n, err
		}
	}
	return n, nil
}

func (r *memRepo) BatchDelete(_ context.Context, ids []int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range ids {
		if p, ok := r.byID[id]; ok {
			delete(r.byHash, p.ContentHash)
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

// thumbStore is a ThumbnailStore over an in-memory map of hash to bytes.
type thumbStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	ensured map[string]int
	failFor map[string]bool
}

func newThumbStore() *thumbStore {
	return &thumbStore{data: map[string][]byte{}, ensured: map[string]int{}, failFor: map[string]bool{}}
}

func (s *thumbStore) Ensure(_ context.Context, src, hash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensured[hash]++
	if s.failFor[src] {
		return "", domain.WrapError(domain.ErrThumbnail, "render thumbnail", errors.New("decode failed"))
	}
	if _, ok := s.data[hash]; !ok {
		s.data[hash] = []byte("thumb:" + hash)
	}
	return "/thumbs/" + hash + ".jpg", nil
}

func (s *thumbStore) Open(hash string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[hash]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "open thumbnail", errors.New(hash))
	}
	return io.NopCloser(strings.NewReader(string(raw))), nil
}

type publisherFake struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (p *publisherFake) PublishPhotoIngested(_ context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, id)
	return nil
}
