package handler

import (
	"context"

	"github.com/hitoshi/adboard/internal/announce"
	"github.com/hitoshi/adboard/internal/model"
)

// AdsServiceAdapter は announce.Service を AdsServiceInterface に適合させるアダプタ。
// 画像名は imageURL で配信URLに変換してレスポンスに含める。
type AdsServiceAdapter struct {
	svc      *announce.Service
	imageURL func(name string) string
}

// NewAdsServiceAdapter はAdsServiceAdapterを生成する。
func NewAdsServiceAdapter(svc *announce.Service, imageURL func(name string) string) *AdsServiceAdapter {
	return &AdsServiceAdapter{svc: svc, imageURL: imageURL}
}

// ListAll は全広告をhandlerレスポンス型で返す。
func (a *AdsServiceAdapter) ListAll(ctx context.Context) (*adsListResponse, error) {
	listings, err := a.svc.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	resp := toAdsListResponse(listings, a.imageURL)
	return &resp, nil
}

// ListMine は呼び出し元の広告をhandlerレスポンス型で返す。
func (a *AdsServiceAdapter) ListMine(ctx context.Context, caller model.Caller) (*adsListResponse, error) {
	listings, err := a.svc.ListMine(ctx, caller)
	if err != nil {
		return nil, err
	}
	resp := toAdsListResponse(listings, a.imageURL)
	return &resp, nil
}

// Get は広告詳細をhandlerレスポンス型で返す。
func (a *AdsServiceAdapter) Get(ctx context.Context, listingID int64) (*adDetailResponse, error) {
	detail, err := a.svc.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	resp := toAdDetailResponse(detail, a.imageURL)
	return &resp, nil
}

// Create は広告を作成しhandlerレスポンス型で返す。
func (a *AdsServiceAdapter) Create(ctx context.Context, caller model.Caller, props model.ListingProperties, image []byte) (*adResponse, error) {
	listing, err := a.svc.Create(ctx, caller, props, image)
	if err != nil {
		return nil, err
	}
	resp := toAdResponse(listing, a.imageURL)
	return &resp, nil
}

// Update は広告を更新しhandlerレスポンス型で返す。
func (a *AdsServiceAdapter) Update(ctx context.Context, caller model.Caller, listingID int64, props model.ListingProperties) (*adResponse, error) {
	listing, err := a.svc.Update(ctx, caller, listingID, props)
	if err != nil {
		return nil, err
	}
	resp := toAdResponse(listing, a.imageURL)
	return &resp, nil
}

// UpdateImage は広告の画像を差し替え、その配信URLを返す。
func (a *AdsServiceAdapter) UpdateImage(ctx context.Context, caller model.Caller, listingID int64, image []byte) (string, error) {
	name, err := a.svc.UpdateImage(ctx, caller, listingID, image)
	if err != nil {
		return "", err
	}
	return a.imageURL(name), nil
}

// Delete は広告を削除する。
func (a *AdsServiceAdapter) Delete(ctx context.Context, caller model.Caller, listingID int64) error {
	return a.svc.Delete(ctx, caller, listingID)
}

// Image は画像のバイト列を返す。
func (a *AdsServiceAdapter) Image(ctx context.Context, name string) ([]byte, error) {
	return a.svc.Image(ctx, name)
}

func toAdResponse(l *model.Listing, imageURL func(string) string) adResponse {
	return adResponse{
		Author: l.AuthorID,
		Image:  imageURL(l.ImageName()),
		PK:     l.ID,
		Price:  l.Price,
		Title:  l.Title,
	}
}

func toAdsListResponse(listings []*model.Listing, imageURL func(string) string) adsListResponse {
	results := make([]adResponse, len(listings))
	for i, l := range listings {
		results[i] = toAdResponse(l, imageURL)
	}
	return adsListResponse{Count: len(results), Results: results}
}

func toAdDetailResponse(d *model.ListingDetail, imageURL func(string) string) adDetailResponse {
	image := ""
	if d.Image != nil {
		image = imageURL(*d.Image)
	}
	return adDetailResponse{
		PK:              d.ID,
		AuthorFirstName: d.AuthorFirstName,
		AuthorLastName:  d.AuthorLastName,
		Description:     d.Description,
		Email:           d.AuthorEmail,
		Image:           image,
		Phone:           d.AuthorPhone,
		Price:           d.Price,
		Title:           d.Title,
	}
}
