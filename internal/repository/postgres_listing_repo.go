package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/adboard/internal/model"
)

// PostgresListingRepo はPostgreSQLを使用した広告リポジトリ。
type PostgresListingRepo struct {
	db *sql.DB
}

// NewPostgresListingRepo はPostgresListingRepoを生成する。
func NewPostgresListingRepo(db *sql.DB) *PostgresListingRepo {
	return &PostgresListingRepo{db: db}
}

const listingColumns = `id, title, description, price, image, author_id, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(s rowScanner) (*model.Listing, error) {
	l := &model.Listing{}
	var image sql.NullString
	if err := s.Scan(
		&l.ID, &l.Title, &l.Description, &l.Price, &image,
		&l.AuthorID, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if image.Valid {
		name := image.String
		l.Image = &name
	}
	return l, nil
}

// FindByID は指定IDの広告を取得する。見つからない場合はnilを返す。
func (r *PostgresListingRepo) FindByID(ctx context.Context, id int64) (*model.Listing, error) {
	l, err := scanListing(r.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM ads WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("広告の取得に失敗しました: %w", err)
	}
	return l, nil
}

// FindAll は全広告をID昇順で返す。
func (r *PostgresListingRepo) FindAll(ctx context.Context) ([]*model.Listing, error) {
	return r.query(ctx,
		`SELECT `+listingColumns+` FROM ads ORDER BY id ASC`,
	)
}

// FindAllByAuthor は指定ユーザーが作成した広告をID昇順で返す。
func (r *PostgresListingRepo) FindAllByAuthor(ctx context.Context, authorID int64) ([]*model.Listing, error) {
	return r.query(ctx,
		`SELECT `+listingColumns+` FROM ads WHERE author_id = $1 ORDER BY id ASC`,
		authorID,
	)
}

func (r *PostgresListingRepo) query(ctx context.Context, query string, args ...any) ([]*model.Listing, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("広告一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	listings := []*model.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("広告行の読み取りに失敗しました: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("広告一覧の走査に失敗しました: %w", err)
	}
	return listings, nil
}

// Save は広告を保存する。
// IDが0の場合はINSERTしてDBが採番したIDとタイムスタンプを反映する。
// それ以外はtitle、description、price、imageを上書きする。author_idは変更しない。
func (r *PostgresListingRepo) Save(ctx context.Context, listing *model.Listing) (*model.Listing, error) {
	saved := *listing

	if saved.ID == 0 {
		err := r.db.QueryRowContext(ctx,
			`INSERT INTO ads (title, description, price, image, author_id, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, now(), now())
			 RETURNING id, created_at, updated_at`,
			saved.Title, saved.Description, saved.Price, saved.Image, saved.AuthorID,
		).Scan(&saved.ID, &saved.CreatedAt, &saved.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("広告の作成に失敗しました: %w", err)
		}
		return &saved, nil
	}

	err := r.db.QueryRowContext(ctx,
		`UPDATE ads SET title = $2, description = $3, price = $4, image = $5, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		saved.ID, saved.Title, saved.Description, saved.Price, saved.Image,
	).Scan(&saved.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("広告が存在しません: %d", saved.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("広告の更新に失敗しました: %w", err)
	}
	return &saved, nil
}

// Delete は指定広告を削除する。
// コメントが残っている場合は外部キー制約により失敗する。
func (r *PostgresListingRepo) Delete(ctx context.Context, listing *model.Listing) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM ads WHERE id = $1`,
		listing.ID,
	)
	if err != nil {
		return fmt.Errorf("広告の削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("広告が存在しません: %d", listing.ID)
	}
	return nil
}

// CountByAuthor は指定ユーザーの広告数を返す。
func (r *PostgresListingRepo) CountByAuthor(ctx context.Context, authorID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ads WHERE author_id = $1`,
		authorID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("広告数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// ListImageNames は広告から参照されている画像アセット名の一覧を返す。
func (r *PostgresListingRepo) ListImageNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT image FROM ads WHERE image IS NOT NULL`,
	)
	if err != nil {
		return nil, fmt.Errorf("画像参照一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("画像参照行の読み取りに失敗しました: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("画像参照一覧の走査に失敗しました: %w", err)
	}
	return names, nil
}

// compile-time interface check
var _ ListingRepository = (*PostgresListingRepo)(nil)

// IsImageReferenced は指定の画像アセット名を参照している広告が存在するかを返す。
func (r *PostgresListingRepo) IsImageReferenced(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM ads WHERE image = $1)`,
		name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("画像参照の確認に失敗しました: %w", err)
	}
	return exists, nil
}
