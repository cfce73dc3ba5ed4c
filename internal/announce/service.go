package announce

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/adboard/internal/asset"
	"github.com/hitoshi/adboard/internal/metrics"
	"github.com/hitoshi/adboard/internal/model"
	"github.com/hitoshi/adboard/internal/repository"
	"github.com/hitoshi/adboard/internal/security"
)

// AssetStore は広告画像の保存先のインターフェース。
type AssetStore interface {
	// Save は(連番, 作成者ID, メールハッシュ)から名前を決めて画像を保存し、その名前を返す。
	Save(ctx context.Context, authorID int64, seq int, emailDigest int32, data []byte) (string, error)
	// Replace は既存の名前で画像を上書きし、新しい参照名を返す。
	Replace(ctx context.Context, existing string, data []byte) (string, error)
	// Fetch は名前に対応する画像を返す。
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// Options は広告サービスの動作オプション。
type Options struct {
	// ApplyTitleOnUpdate がtrueの場合、Updateで指定されたタイトルを反映する。
	// falseの場合はタイトルを変更せず、説明と価格のみを更新する。
	ApplyTitleOnUpdate bool

	// Sanitizer はタイトルと説明の保存前に適用する。nilの場合はそのまま保存する。
	Sanitizer security.TextSanitizer

	// Metrics はnilの場合は記録しない。
	Metrics metrics.MetricsCollector
}

// Service は広告のライフサイクルを管理するビジネスロジックを提供する。
type Service struct {
	listingRepo repository.ListingRepository
	commentRepo repository.CommentRepository
	userRepo    repository.UserRepository
	resolver    CallerResolver
	assets      AssetStore
	guard       *Guard
	opts        Options
}

// NewService はServiceを生成する。
func NewService(
	listingRepo repository.ListingRepository,
	commentRepo repository.CommentRepository,
	userRepo repository.UserRepository,
	resolver CallerResolver,
	assets AssetStore,
	opts Options,
) *Service {
	return &Service{
		listingRepo: listingRepo,
		commentRepo: commentRepo,
		userRepo:    userRepo,
		resolver:    resolver,
		assets:      assets,
		guard:       NewGuard(resolver, listingRepo, opts.Metrics),
		opts:        opts,
	}
}

// ListAll は全広告を返す。0件の場合は空スライスを返す。
func (s *Service) ListAll(ctx context.Context) ([]*model.Listing, error) {
	listings, err := s.listingRepo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	if listings == nil {
		listings = []*model.Listing{}
	}
	return listings, nil
}

// ListMine は呼び出し元が作成した広告を返す。
func (s *Service) ListMine(ctx context.Context, caller model.Caller) ([]*model.Listing, error) {
	user, err := s.resolver.Resolve(ctx, caller)
	if err != nil {
		return nil, err
	}

	listings, err := s.listingRepo.FindAllByAuthor(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings by author: %w", err)
	}
	if listings == nil {
		listings = []*model.Listing{}
	}
	return listings, nil
}

// Get は広告の詳細を作成者情報付きで返す。
// 作成者が参照できない場合はAUTHOR_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, listingID int64) (*model.ListingDetail, error) {
	listing, err := s.listingRepo.FindByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to find listing: %w", err)
	}
	if listing == nil {
		return nil, model.NewListingNotFoundError(listingID)
	}

	author, err := s.findAuthor(ctx, listing)
	if err != nil {
		return nil, err
	}

	return &model.ListingDetail{
		ID:              listing.ID,
		Title:           listing.Title,
		Description:     listing.Description,
		Price:           listing.Price,
		Image:           listing.Image,
		AuthorID:        author.ID,
		AuthorFirstName: author.FirstName,
		AuthorLastName:  author.LastName,
		AuthorEmail:     author.Email,
		AuthorPhone:     author.Phone,
	}, nil
}

// Create は呼び出し元を作成者として広告を作成する。
// 画像の保存に失敗した場合は広告レコードを作成しない。
// 画像保存後にレコード作成が失敗した場合、画像は孤立するがクリーンアップワーカーが回収する。
func (s *Service) Create(ctx context.Context, caller model.Caller, props model.ListingProperties, image []byte) (*model.Listing, error) {
	user, err := s.resolver.Resolve(ctx, caller)
	if err != nil {
		return nil, err
	}

	props = s.sanitize(props)
	if props.Title == "" {
		return nil, model.NewInvalidListingError("タイトルは必須です")
	}
	if err := validatePrice(props.Price); err != nil {
		return nil, err
	}

	count, err := s.listingRepo.CountByAuthor(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count listings: %w", err)
	}

	name, err := s.assets.Save(ctx, user.ID, count+1, asset.EmailDigest(user.Email), image)
	if err != nil {
		return nil, err
	}
	s.recordBytes(len(image))

	created, err := s.listingRepo.Save(ctx, &model.Listing{
		Title:       props.Title,
		Description: props.Description,
		Price:       props.Price,
		Image:       &name,
		AuthorID:    user.ID,
	})
	if err != nil {
		slog.Warn("listing record was not saved; stored image is orphaned",
			slog.Int64("author_id", user.ID),
			slog.String("image", name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to save listing: %w", err)
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordListingCreated()
	}
	slog.Info("listing created",
		slog.Int64("listing_id", created.ID),
		slog.Int64("author_id", user.ID),
		slog.String("image", name),
	)
	return created, nil
}

// Update は広告の説明と価格を更新する。
// ApplyTitleOnUpdateがfalseの場合、タイトルは指定があっても変更しない。
func (s *Service) Update(ctx context.Context, caller model.Caller, listingID int64, props model.ListingProperties) (*model.Listing, error) {
	decision, err := s.guard.Authorize(ctx, caller, listingID)
	if err != nil {
		return nil, err
	}

	props = s.sanitize(props)
	if err := validatePrice(props.Price); err != nil {
		return nil, err
	}

	listing := *decision.Listing
	listing.Description = props.Description
	listing.Price = props.Price
	if s.opts.ApplyTitleOnUpdate {
		if props.Title == "" {
			return nil, model.NewInvalidListingError("タイトルは必須です")
		}
		listing.Title = props.Title
	}

	updated, err := s.listingRepo.Save(ctx, &listing)
	if err != nil {
		return nil, fmt.Errorf("failed to update listing: %w", err)
	}

	slog.Info("listing updated",
		slog.Int64("listing_id", listingID),
		slog.String("rule", decision.Rule),
	)
	return updated, nil
}

// UpdateImage は広告の画像を差し替え、新しい画像名を返す。
// 既存の画像名がある場合はその名前を再利用し、ない場合は作成者の情報から名前を生成する。
func (s *Service) UpdateImage(ctx context.Context, caller model.Caller, listingID int64, image []byte) (string, error) {
	decision, err := s.guard.Authorize(ctx, caller, listingID)
	if err != nil {
		return "", err
	}
	listing := *decision.Listing

	var name string
	if existing := listing.ImageName(); asset.ValidName(existing) {
		name, err = s.assets.Replace(ctx, existing, image)
	} else {
		if existing != "" {
			slog.Warn("listing image is not a valid asset name; generating a new one",
				slog.Int64("listing_id", listingID),
				slog.String("image", existing),
			)
		}
		name, err = s.saveForAuthor(ctx, &listing, image)
	}
	if err != nil {
		return "", err
	}
	s.recordBytes(len(image))

	listing.Image = &name
	if _, err := s.listingRepo.Save(ctx, &listing); err != nil {
		return "", fmt.Errorf("failed to update listing image: %w", err)
	}

	slog.Info("listing image updated",
		slog.Int64("listing_id", listingID),
		slog.String("image", name),
		slog.String("rule", decision.Rule),
	)
	return name, nil
}

// Delete は広告を削除する。
// 参照しているコメントを1件ずつ削除してから広告を削除する。
// コメント削除の途中で失敗した場合、広告は削除しない。
func (s *Service) Delete(ctx context.Context, caller model.Caller, listingID int64) error {
	decision, err := s.guard.Authorize(ctx, caller, listingID)
	if err != nil {
		return err
	}

	comments, err := s.commentRepo.FindAllByListing(ctx, listingID)
	if err != nil {
		return fmt.Errorf("failed to find comments: %w", err)
	}
	for _, c := range comments {
		if err := s.commentRepo.Delete(ctx, c); err != nil {
			return fmt.Errorf("failed to delete comment %d: %w", c.ID, err)
		}
	}

	if err := s.listingRepo.Delete(ctx, decision.Listing); err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordListingDeleted(len(comments))
	}
	slog.Info("listing deleted",
		slog.Int64("listing_id", listingID),
		slog.Int("comments_deleted", len(comments)),
		slog.String("rule", decision.Rule),
	)
	return nil
}

// Image は画像名に対応するバイト列を返す。
func (s *Service) Image(ctx context.Context, name string) ([]byte, error) {
	return s.assets.Fetch(ctx, name)
}

// findAuthor は広告の作成者を取得する。作成者参照が空、または存在しない場合はAUTHOR_NOT_FOUND。
func (s *Service) findAuthor(ctx context.Context, listing *model.Listing) (*model.User, error) {
	if listing.AuthorID == 0 {
		return nil, model.NewAuthorNotFoundError(listing.ID)
	}
	author, err := s.userRepo.FindByID(ctx, listing.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("failed to find author: %w", err)
	}
	if author == nil {
		return nil, model.NewAuthorNotFoundError(listing.ID)
	}
	return author, nil
}

// saveForAuthor は画像を持たない広告に対し、作成者の広告数を連番として新しい名前で保存する。
func (s *Service) saveForAuthor(ctx context.Context, listing *model.Listing, image []byte) (string, error) {
	author, err := s.findAuthor(ctx, listing)
	if err != nil {
		return "", err
	}
	owned, err := s.listingRepo.FindAllByAuthor(ctx, author.ID)
	if err != nil {
		return "", fmt.Errorf("failed to find author listings: %w", err)
	}

	// 連番は作成者の広告の中での位置。他の広告が使用中の名前は飛ばす。
	seq := 0
	taken := make(map[string]bool, len(owned))
	for _, l := range owned {
		if l.ID <= listing.ID {
			seq++
		}
		if l.ID != listing.ID && l.Image != nil {
			taken[*l.Image] = true
		}
	}
	seq = max(seq, 1)
	digest := asset.EmailDigest(author.Email)
	for taken[asset.Name(seq, author.ID, digest)] {
		seq++
	}
	return s.assets.Save(ctx, author.ID, seq, digest, image)
}

func (s *Service) sanitize(props model.ListingProperties) model.ListingProperties {
	if s.opts.Sanitizer == nil {
		return props
	}
	props.Title = s.opts.Sanitizer.Sanitize(props.Title)
	props.Description = s.opts.Sanitizer.Sanitize(props.Description)
	return props
}

func (s *Service) recordBytes(n int) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordAssetBytesWritten(n)
	}
}

func validatePrice(price int) error {
	if price < 0 {
		return model.NewInvalidListingError("価格は0以上で指定してください")
	}
	return nil
}
