package handler

import (
	"testing"

	"github.com/hitoshi/adboard/internal/model"
)

func testImageURL(name string) string {
	if name == "" {
		return ""
	}
	return "/ads/image/" + name
}

func TestToAdsListResponse(t *testing.T) {
	name := "Ads_1_auth_1_lg_2133068396"
	listings := []*model.Listing{
		{ID: 10, Title: "bike", Price: 100, Image: &name, AuthorID: 1},
		{ID: 11, Title: "no image", Price: 0, AuthorID: 2},
	}

	got := toAdsListResponse(listings, testImageURL)

	if got.Count != 2 || len(got.Results) != 2 {
		t.Fatalf("count = %d, results = %d, want 2", got.Count, len(got.Results))
	}
	want := adResponse{Author: 1, Image: "/ads/image/" + name, PK: 10, Price: 100, Title: "bike"}
	if got.Results[0] != want {
		t.Errorf("results[0] = %+v, want %+v", got.Results[0], want)
	}
	if got.Results[1].Image != "" {
		t.Errorf("listing without image should render empty url, got %q", got.Results[1].Image)
	}
}

func TestToAdsListResponse_EmptyIsNotNil(t *testing.T) {
	got := toAdsListResponse([]*model.Listing{}, testImageURL)

	if got.Count != 0 {
		t.Errorf("count = %d, want 0", got.Count)
	}
	if got.Results == nil {
		t.Error("results should be an empty slice, not nil")
	}
}

func TestToAdDetailResponse(t *testing.T) {
	name := "Ads_2_auth_5_lg_1"
	detail := &model.ListingDetail{
		ID:              42,
		Title:           "lamp",
		Description:     "desk lamp",
		Price:           15,
		Image:           &name,
		AuthorID:        5,
		AuthorFirstName: "Alice",
		AuthorLastName:  "Smith",
		AuthorEmail:     "a@x.com",
		AuthorPhone:     "+7 900 000-00-00",
	}

	got := toAdDetailResponse(detail, testImageURL)

	want := adDetailResponse{
		PK:              42,
		AuthorFirstName: "Alice",
		AuthorLastName:  "Smith",
		Description:     "desk lamp",
		Email:           "a@x.com",
		Image:           "/ads/image/" + name,
		Phone:           "+7 900 000-00-00",
		Price:           15,
		Title:           "lamp",
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestToAdDetailResponse_PKIsListingID(t *testing.T) {
	got := toAdDetailResponse(&model.ListingDetail{ID: 9, AuthorID: 3}, testImageURL)

	if got.PK != 9 {
		t.Errorf("pk = %d, want listing id 9", got.PK)
	}
	if got.Image != "" {
		t.Errorf("image = %q, want empty", got.Image)
	}
}
