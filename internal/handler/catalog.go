package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/angkor-mart/storefront/internal/cdn"
	"github.com/angkor-mart/storefront/internal/domain/category"
	"github.com/angkor-mart/storefront/internal/domain/product"
)

const maxPageSize = 100

type productResponse struct {
	ID             string    `json:"id"`
	NameEN         string    `json:"nameEn"`
	NameKM         string    `json:"nameKm"`
	DescriptionEN  string    `json:"descriptionEn"`
	DescriptionKM  string    `json:"descriptionKm"`
	Price          Money     `json:"price"`
	SalePrice      *Money    `json:"salePrice,omitempty"`
	EffectivePrice Money     `json:"effectivePrice"`
	OnSale         bool      `json:"onSale"`
	Image          string    `json:"image"`
	Images         []string  `json:"images"`
	CategoryID     string    `json:"categoryId"`
	InStock        bool      `json:"inStock"`
	Slug           string    `json:"slug"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func toProductResponse(p *product.Product) productResponse {
	out := productResponse{
		ID:             p.ID,
		NameEN:         p.NameEN,
		NameKM:         p.NameKM,
		DescriptionEN:  p.DescriptionEN,
		DescriptionKM:  p.DescriptionKM,
		Price:          money(p.Price),
		EffectivePrice: money(p.EffectivePrice()),
		OnSale:         p.OnSale,
		Image:          p.Image,
		Images:         p.Images,
		CategoryID:     p.CategoryID.String(),
		InStock:        p.InStock,
		Slug:           p.Slug,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
	if p.SalePrice != nil {
		sp := money(*p.SalePrice)
		out.SalePrice = &sp
	}
	if out.Images == nil {
		out.Images = []string{}
	}
	return out
}

type productRequest struct {
	NameEN        string           `json:"nameEn"`
	NameKM        string           `json:"nameKm"`
	DescriptionEN string           `json:"descriptionEn"`
	DescriptionKM string           `json:"descriptionKm"`
	Price         decimal.Decimal  `json:"price"`
	SalePrice     *decimal.Decimal `json:"salePrice"`
	OnSale        bool             `json:"onSale"`
	Image         string           `json:"image"`
	Images        []string         `json:"images"`
	CategoryID    string           `json:"categoryId"`
	InStock       *bool            `json:"inStock"`
}

func (req *productRequest) toDomain() (*product.Product, error) {
	catID, err := category.ParseID(req.CategoryID)
	if err != nil {
		return nil, &product.InvalidFieldError{Field: "categoryId", Reason: "must be a category id"}
	}
	inStock := true
	if req.InStock != nil {
		inStock = *req.InStock
	}
	images := req.Images
	if images == nil {
		images = []string{}
	}
	return &product.Product{
		NameEN:        req.NameEN,
		NameKM:        req.NameKM,
		DescriptionEN: req.DescriptionEN,
		DescriptionKM: req.DescriptionKM,
		Price:         req.Price,
		SalePrice:     req.SalePrice,
		OnSale:        req.OnSale,
		Image:         req.Image,
		Images:        images,
		CategoryID:    catID,
		InStock:       inStock,
	}, nil
}

// page reads limit and offset query parameters.
func page(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, badRequest("limit must be a non-negative integer")
		}
		limit = min(limit, maxPageSize)
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, badRequest("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

// ListProducts returns the catalog, optionally filtered by category slug or
// id, text query and sale flag.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, err := page(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	f := product.Filter{Query: q.Get("q"), Limit: limit, Offset: offset}
	if v := q.Get("onSale"); v != "" {
		if f.OnSale, err = strconv.ParseBool(v); err != nil {
			fail(w, r, badRequest("onSale must be a boolean"))
			return
		}
	}
	if v := q.Get("category"); v != "" {
		id, err := category.ParseID(v)
		if err != nil {
			c, err := h.Categories.Get(r.Context(), v)
			if errors.Is(err, category.ErrNotFound) {
				writeJSON(w, http.StatusOK, []productResponse{})
				return
			}
			if err != nil {
				fail(w, r, err)
				return
			}
			id = c.ID
		}
		f.CategoryID = &id
	}

	products, err := h.Products.List(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]productResponse, len(products))
	for i := range products {
		out[i] = toProductResponse(&products[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// GetProduct returns a single product by slug or ID.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.Get(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

// CreateProduct adds a product to the catalog.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := req.toDomain()
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Products.Create(r.Context(), p); err != nil {
		fail(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Product created", zap.String("product_id", p.ID), zap.String("slug", p.Slug))
	writeJSON(w, http.StatusCreated, toProductResponse(p))
}

// UpdateProduct replaces a product's editable fields.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := req.toDomain()
	if err != nil {
		fail(w, r, err)
		return
	}
	p.ID = mux.Vars(r)["id"]
	if err := h.Products.Update(r.Context(), p); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

// DeleteProduct removes a product.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.Products.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type categoryResponse struct {
	ID        string    `json:"id"`
	NameEN    string    `json:"nameEn"`
	NameKM    string    `json:"nameKm"`
	Icon      string    `json:"icon"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"createdAt"`
}

func toCategoryResponse(c *category.Category) categoryResponse {
	return categoryResponse{
		ID:        c.ID.String(),
		NameEN:    c.NameEN,
		NameKM:    c.NameKM,
		Icon:      c.Icon,
		Slug:      c.Slug,
		CreatedAt: c.CreatedAt,
	}
}

type categoryRequest struct {
	NameEN string `json:"nameEn"`
	NameKM string `json:"nameKm"`
	Icon   string `json:"icon"`
}

// ListCategories returns every category.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Categories.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]categoryResponse, len(cats))
	for i := range cats {
		out[i] = toCategoryResponse(&cats[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCategory returns a category by slug.
func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.Categories.Get(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryResponse(c))
}

// CreateCategory adds a category.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	c := &category.Category{NameEN: req.NameEN, NameKM: req.NameKM, Icon: req.Icon}
	if err := h.Categories.Create(r.Context(), c); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryResponse(c))
}

// UpdateCategory edits a category.
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := category.ParseID(mux.Vars(r)["id"])
	if err != nil {
		fail(w, r, category.ErrNotFound)
		return
	}
	var req categoryRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	c := &category.Category{ID: id, NameEN: req.NameEN, NameKM: req.NameKM, Icon: req.Icon}
	if err := h.Categories.Update(r.Context(), c); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryResponse(c))
}

// DeleteCategory removes a category no product references.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := category.ParseID(mux.Vars(r)["id"])
	if err != nil {
		fail(w, r, category.ErrNotFound)
		return
	}
	if err := h.Categories.Delete(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type uploadResponse struct {
	URL string `json:"url"`
}

// Upload forwards a multipart "image" file to the CDN.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.Uploader == nil {
		writeError(w, http.StatusServiceUnavailable, "image uploads are not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, cdn.MaxImageSize+1<<10)
	f, fh, err := r.FormFile("image")
	if err != nil {
		fail(w, r, badRequest("image file required: %s", err))
		return
	}
	defer func() { _ = f.Close() }()

	url, err := h.Uploader.Upload(r.Context(), fh.Filename, fh.Header.Get("Content-Type"), f)
	if err != nil {
		if errors.Is(err, cdn.ErrUnsupportedType) {
			fail(w, r, badRequest("file must be an image"))
			return
		}
		zctx.From(r.Context()).Error("Image upload failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "image upload failed")
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{URL: url})
}
