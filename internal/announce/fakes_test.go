package announce

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/adboard/internal/asset"
	"github.com/hitoshi/adboard/internal/model"
	"github.com/hitoshi/adboard/internal/repository"
)

// memDB はリポジトリのインメモリ実装が共有する状態。
// ops には変更操作が実行順に記録される。
type memDB struct {
	mu        sync.Mutex
	users     map[int64]*model.User
	listings  map[int64]*model.Listing
	comments  map[int64]*model.Comment
	nextID    int64
	clock     time.Time
	ops       []string
	calls     []string
	saveErr   error
	deleteErr error
	// commentDeleteErrAt は指定回数目のコメント削除を失敗させる（1始まり、0で無効）。
	commentDeleteErrAt int
	commentDeletes     int
}

func newMemDB() *memDB {
	return &memDB{
		users:    map[int64]*model.User{},
		listings: map[int64]*model.Listing{},
		comments: map[int64]*model.Comment{},
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (db *memDB) addUser(u *model.User) *model.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[u.ID] = u
	return u
}

func (db *memDB) addListing(l *model.Listing) *model.Listing {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.nextID++
	l.ID = db.nextID
	db.listings[l.ID] = l
	return l
}

func (db *memDB) addComment(listingID, authorID int64, text string) *model.Comment {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.nextID++
	db.clock = db.clock.Add(time.Minute)
	c := &model.Comment{ID: db.nextID, ListingID: listingID, AuthorID: authorID, Text: text, CreatedAt: db.clock}
	db.comments[c.ID] = c
	return c
}

func (db *memDB) listing(id int64) *model.Listing {
	db.mu.Lock()
	defer db.mu.Unlock()
	l, ok := db.listings[id]
	if !ok {
		return nil
	}
	cp := *l
	return &cp
}

func (db *memDB) commentsOf(listingID int64) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, c := range db.comments {
		if c.ListingID == listingID {
			n++
		}
	}
	return n
}

func (db *memDB) repos() (repository.UserRepository, repository.ListingRepository, repository.CommentRepository) {
	return &memUserRepo{db}, &memListingRepo{db}, &memCommentRepo{db}
}

// --- UserRepository ---

type memUserRepo struct{ db *memDB }

func (r *memUserRepo) FindByID(_ context.Context, id int64) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.calls = append(r.db.calls, "users.FindByID")
	return r.db.users[id], nil
}

func (r *memUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.calls = append(r.db.calls, "users.FindByEmail")
	for _, u := range r.db.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

// --- ListingRepository ---

type memListingRepo struct{ db *memDB }

func (r *memListingRepo) FindByID(_ context.Context, id int64) (*model.Listing, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.calls = append(r.db.calls, "listings.FindByID")
	l, ok := r.db.listings[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (r *memListingRepo) FindAll(_ context.Context) ([]*model.Listing, error) {
	return r.filter(func(*model.Listing) bool { return true }), nil
}

func (r *memListingRepo) FindAllByAuthor(_ context.Context, authorID int64) ([]*model.Listing, error) {
	return r.filter(func(l *model.Listing) bool { return l.AuthorID == authorID }), nil
}

func (r *memListingRepo) filter(keep func(*model.Listing) bool) []*model.Listing {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.Listing
	for _, l := range r.db.listings {
		if keep(l) {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memListingRepo) Save(_ context.Context, listing *model.Listing) (*model.Listing, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.saveErr != nil {
		return nil, r.db.saveErr
	}
	saved := *listing
	if saved.ID == 0 {
		r.db.nextID++
		saved.ID = r.db.nextID
		r.db.ops = append(r.db.ops, "listing.insert")
	} else {
		existing, ok := r.db.listings[saved.ID]
		if !ok {
			return nil, fmt.Errorf("listing %d does not exist", saved.ID)
		}
		saved.AuthorID = existing.AuthorID
		r.db.ops = append(r.db.ops, fmt.Sprintf("listing.update:%d", saved.ID))
	}
	stored := saved
	r.db.listings[saved.ID] = &stored
	return &saved, nil
}

func (r *memListingRepo) Delete(_ context.Context, listing *model.Listing) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.deleteErr != nil {
		return r.db.deleteErr
	}
	if _, ok := r.db.listings[listing.ID]; !ok {
		return fmt.Errorf("listing %d does not exist", listing.ID)
	}
	for _, c := range r.db.comments {
		if c.ListingID == listing.ID {
			return errors.New("foreign key violation: comments reference listing")
		}
	}
	delete(r.db.listings, listing.ID)
	r.db.ops = append(r.db.ops, fmt.Sprintf("listing.delete:%d", listing.ID))
	return nil
}

func (r *memListingRepo) CountByAuthor(_ context.Context, authorID int64) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for _, l := range r.db.listings {
		if l.AuthorID == authorID {
			n++
		}
	}
	return n, nil
}

func (r *memListingRepo) ListImageNames(_ context.Context) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var names []string
	for _, l := range r.db.listings {
		if l.Image != nil {
			names = append(names, *l.Image)
		}
	}
	return names, nil
}

func (r *memListingRepo) IsImageReferenced(_ context.Context, name string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, l := range r.db.listings {
		if l.Image != nil && *l.Image == name {
			return true, nil
		}
	}
	return false, nil
}

// --- CommentRepository ---

type memCommentRepo struct{ db *memDB }

func (r *memCommentRepo) FindAllByListing(_ context.Context, listingID int64) ([]*model.Comment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.Comment
	for _, c := range r.db.comments {
		if c.ListingID == listingID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memCommentRepo) Delete(_ context.Context, comment *model.Comment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.commentDeletes++
	if r.db.commentDeleteErrAt > 0 && r.db.commentDeletes == r.db.commentDeleteErrAt {
		return errors.New("comment delete failed")
	}
	delete(r.db.comments, comment.ID)
	r.db.ops = append(r.db.ops, fmt.Sprintf("comment.delete:%d", comment.ID))
	return nil
}

var (
	_ repository.UserRepository    = (*memUserRepo)(nil)
	_ repository.ListingRepository = (*memListingRepo)(nil)
	_ repository.CommentRepository = (*memCommentRepo)(nil)
)

// --- asset.Backend ---

// memBackend はasset.Backendのインメモリ実装。
type memBackend struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemBackend() *memBackend {
	return &memBackend{objects: map[string][]byte{}}
}

func (b *memBackend) Put(_ context.Context, name string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	b.objects[name] = append([]byte(nil), data...)
	return nil
}

func (b *memBackend) Get(_ context.Context, name string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[name]
	if !ok {
		return nil, asset.ErrNotFound
	}
	return data, nil
}

func (b *memBackend) Delete(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, name)
	return nil
}

func (b *memBackend) Stat(_ context.Context, name string) (asset.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[name]
	if !ok {
		return asset.Object{}, asset.ErrNotFound
	}
	return asset.Object{Name: name, Size: int64(len(data))}, nil
}

func (b *memBackend) List(_ context.Context) ([]asset.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []asset.Object
	for name, data := range b.objects {
		out = append(out, asset.Object{Name: name, Size: int64(len(data))})
	}
	return out, nil
}

func (b *memBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

// --- metrics ---

type recordedMetrics struct {
	created  int
	deleted  int
	cascaded int
	denied   map[string]int
	bytes    int
}

func newRecordedMetrics() *recordedMetrics {
	return &recordedMetrics{denied: map[string]int{}}
}

func (m *recordedMetrics) RecordListingCreated() {
	m.created++
}

func (m *recordedMetrics) RecordListingDeleted(cascaded int) {
	m.deleted++
	m.cascaded += cascaded
}

func (m *recordedMetrics) RecordAuthorizationDenied(reason string) {
	m.denied[reason]++
}

func (m *recordedMetrics) RecordAssetBytesWritten(n int) {
	m.bytes += n
}

func (m *recordedMetrics) RecordHTTPStatus(int)               {}
func (m *recordedMetrics) RecordRequestLatency(time.Duration) {}
func (m *recordedMetrics) RecordAssetsSwept(int)              {}
