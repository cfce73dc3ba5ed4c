package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/adboard/internal/middleware"
	"github.com/hitoshi/adboard/internal/model"
)

// ErrCodeInvalidRequest はリクエストの形式不正を示すハンドラー層のエラーコード。
const ErrCodeInvalidRequest = "INVALID_REQUEST"

// ErrCodePayloadTooLarge はリクエストボディが上限を超えたことを示すエラーコード。
const ErrCodePayloadTooLarge = "PAYLOAD_TOO_LARGE"

const (
	// multipartMemory はマルチパート解析時にメモリに保持する上限。超過分は一時ファイルに書き出される。
	multipartMemory = 1 << 20
	// maxJSONBodyBytes はJSONボディの上限。
	maxJSONBodyBytes = 64 << 10
)

// AdsServiceInterface は広告ハンドラーが必要とするサービスインターフェース。
type AdsServiceInterface interface {
	// ListAll は全広告を返す。
	ListAll(ctx context.Context) (*adsListResponse, error)
	// ListMine は呼び出し元の広告を返す。
	ListMine(ctx context.Context, caller model.Caller) (*adsListResponse, error)
	// Get は広告詳細を返す。
	Get(ctx context.Context, listingID int64) (*adDetailResponse, error)
	// Create は広告を作成する。
	Create(ctx context.Context, caller model.Caller, props model.ListingProperties, image []byte) (*adResponse, error)
	// Update は広告の項目を更新する。
	Update(ctx context.Context, caller model.Caller, listingID int64, props model.ListingProperties) (*adResponse, error)
	// UpdateImage は広告の画像を差し替え、画像の配信URLを返す。
	UpdateImage(ctx context.Context, caller model.Caller, listingID int64, image []byte) (string, error)
	// Delete は広告とそのコメントを削除する。
	Delete(ctx context.Context, caller model.Caller, listingID int64) error
	// Image は画像のバイト列を返す。
	Image(ctx context.Context, name string) ([]byte, error)
}

// AdsHandlerConfig は広告ハンドラーの設定。
type AdsHandlerConfig struct {
	// MaxUploadBytes はマルチパートリクエスト全体の上限バイト数。
	MaxUploadBytes int64
}

// AdsHandler は広告管理のHTTPハンドラー。
type AdsHandler struct {
	service AdsServiceInterface
	config  AdsHandlerConfig
}

// NewAdsHandler はAdsHandlerを生成する。
func NewAdsHandler(service AdsServiceInterface, config AdsHandlerConfig) *AdsHandler {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = 6 << 20
	}
	return &AdsHandler{
		service: service,
		config:  config,
	}
}

// listingPropertiesRequest は広告の作成・更新リクエストの項目。
type listingPropertiesRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       int    `json:"price"`
}

func (req listingPropertiesRequest) toModel() model.ListingProperties {
	return model.ListingProperties{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
	}
}

// adResponse は広告一覧の1件分のAPIレスポンス。
type adResponse struct {
	Author int64  `json:"author"`
	Image  string `json:"image"`
	PK     int64  `json:"pk"`
	Price  int    `json:"price"`
	Title  string `json:"title"`
}

// adsListResponse は広告一覧のAPIレスポンス。
type adsListResponse struct {
	Count   int          `json:"count"`
	Results []adResponse `json:"results"`
}

// adDetailResponse は広告詳細のAPIレスポンス。
type adDetailResponse struct {
	PK              int64  `json:"pk"`
	AuthorFirstName string `json:"authorFirstName"`
	AuthorLastName  string `json:"authorLastName"`
	Description     string `json:"description"`
	Email           string `json:"email"`
	Image           string `json:"image"`
	Phone           string `json:"phone"`
	Price           int    `json:"price"`
	Title           string `json:"title"`
}

// ListAll は全広告の一覧を返す。
// GET /ads
func (h *AdsHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ListAll(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListMine は呼び出し元が作成した広告の一覧を返す。
// GET /ads/me
func (h *AdsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}

	result, err := h.service.ListMine(r.Context(), caller)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Get は広告詳細を返す。
// GET /ads/{id}
func (h *AdsHandler) Get(w http.ResponseWriter, r *http.Request) {
	listingID, ok := listingIDParam(w, r)
	if !ok {
		return
	}

	detail, err := h.service.Get(r.Context(), listingID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// Create は広告を作成する。
// POST /ads（multipart: properties=JSON, image=画像ファイル）
func (h *AdsHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}

	if !h.parseMultipart(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	rawProps, found, err := formPart(r, "properties")
	if err != nil || !found {
		writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidRequestError("propertiesパートが必要です。"))
		return
	}
	var req listingPropertiesRequest
	if err := json.Unmarshal(rawProps, &req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidRequestError("propertiesの解析に失敗しました。"))
		return
	}

	image, found, err := formPart(r, "image")
	if err != nil || !found {
		writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidRequestError("imageパートが必要です。"))
		return
	}

	created, err := h.service.Create(r.Context(), caller, req.toModel(), image)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Update は広告の項目を更新する。
// PATCH /ads/{id}
func (h *AdsHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}
	listingID, ok := listingIDParam(w, r)
	if !ok {
		return
	}

	var req listingPropertiesRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidRequestError("リクエストボディの解析に失敗しました。"))
		return
	}

	updated, err := h.service.Update(r.Context(), caller, listingID, req.toModel())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// UpdateImage は広告の画像を差し替え、新しい画像のURLを返す。
// PATCH /ads/{id}/image（multipart: image=画像ファイル）
func (h *AdsHandler) UpdateImage(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}
	listingID, ok := listingIDParam(w, r)
	if !ok {
		return
	}

	if !h.parseMultipart(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	image, found, err := formPart(r, "image")
	if err != nil || !found {
		writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidRequestError("imageパートが必要です。"))
		return
	}

	url, err := h.service.UpdateImage(r.Context(), caller, listingID, image)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, url)
}

// Delete は広告を削除する。
// DELETE /ads/{id}
func (h *AdsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrUnauthorized(w, r)
	if !ok {
		return
	}
	listingID, ok := listingIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), caller, listingID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Image は画像のバイト列を返す。Content-Typeは内容から判定する。
// GET /ads/image/{name}
func (h *AdsHandler) Image(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	data, err := h.service.Image(r.Context(), name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// 差し替え時は同じ名前で上書きされるため、キャッシュは都度検証させる
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// parseMultipart はボディサイズを制限してマルチパートフォームを解析する。
// 失敗した場合はエラーレスポンスを書き込みfalseを返す。
func (h *AdsHandler) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	if r.ContentLength > h.config.MaxUploadBytes {
		writePayloadTooLarge(w)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writePayloadTooLarge(w)
			return false
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidRequestError("マルチパートリクエストの解析に失敗しました。"))
		return false
	}
	return true
}

// formPart はマルチパートのフィールドをファイルパート優先で読み出す。
func formPart(r *http.Request, field string) ([]byte, bool, error) {
	if r.MultipartForm == nil {
		return nil, false, nil
	}
	if files := r.MultipartForm.File[field]; len(files) > 0 {
		f, err := files[0].Open()
		if err != nil {
			return nil, true, err
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		return data, true, err
	}
	if values := r.MultipartForm.Value[field]; len(values) > 0 {
		return []byte(values[0]), true, nil
	}
	return nil, false, nil
}

// callerOrUnauthorized はコンテキストから呼び出し元を取り出す。
// 存在しない場合は401を書き込みfalseを返す。
func callerOrUnauthorized(w http.ResponseWriter, r *http.Request) (model.Caller, bool) {
	caller, err := middleware.CallerFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return model.Caller{}, false
	}
	return caller, true
}

// listingIDParam はURLパラメータ{id}を広告IDとして解析する。
func listingIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, newInvalidRequestError("広告IDが不正です。"))
		return 0, false
	}
	return id, true
}

func writePayloadTooLarge(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, &model.APIError{
		Code:     ErrCodePayloadTooLarge,
		Message:  "リクエストサイズが上限を超えています。",
		Category: "validation",
		Action:   "画像サイズを小さくして再度お試しください。",
	})
}

func newInvalidRequestError(message string) *model.APIError {
	return &model.APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  message,
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		if statusCode >= http.StatusInternalServerError {
			slog.Error("service error",
				slog.String("code", apiErr.Code),
				slog.String("error", err.Error()),
			)
		}
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeCallerNotFound:
		return http.StatusUnauthorized
	case model.ErrCodeListingNotFound, model.ErrCodeAssetNotFound:
		return http.StatusNotFound
	case model.ErrCodeNotAuthor:
		return http.StatusForbidden
	case model.ErrCodeInvalidListing, ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrCodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case model.ErrCodeAssetIOFailure, model.ErrCodeAuthorNotFound:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
