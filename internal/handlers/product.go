package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/crucial707/hci-inventory/internal/metrics"
	"github.com/crucial707/hci-inventory/internal/models"
	"github.com/crucial707/hci-inventory/internal/repo"
	"github.com/crucial707/hci-inventory/internal/storage"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// multipartMemory is how much of a multipart body is buffered in memory before spilling to temp files.
const multipartMemory = 8 << 20

type ProductHandler struct {
	Repo   *repo.ProductRepo
	Images storage.ImageStore
}

// productRequest is a decoded create/update body. Image is set when a file was uploaded.
type productRequest struct {
	Input    models.ProductInput
	Image    multipart.File
	Filename string
	OldImage string
}

func (p *productRequest) Close() {
	if p.Image != nil {
		p.Image.Close()
	}
}

type jsonProduct struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Price       *float64 `json:"price"`
	Stock       *int     `json:"stock"`
	OldImage    string   `json:"oldImage"`
}

// errBadForm marks a body that could not be decoded at all.
var errBadForm = errors.New("invalid form")

// decodeProduct reads a multipart, urlencoded or JSON product body. Field-level problems
// are returned in fields; err is reserved for bodies that cannot be read.
func decodeProduct(r *http.Request) (*productRequest, map[string]string, error) {
	fields := make(map[string]string)
	req := &productRequest{}

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var in jsonProduct
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return nil, nil, err
			}
			return nil, nil, errBadForm
		}
		req.Input = models.ProductInput{
			Name:        strings.TrimSpace(in.Name),
			Category:    strings.TrimSpace(in.Category),
			Description: in.Description,
			Price:       in.Price,
		}
		if in.Stock != nil {
			req.Input.Stock = *in.Stock
		}
		req.OldImage = strings.TrimSpace(in.OldImage)
		return req, fields, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if !errors.Is(err, http.ErrNotMultipart) {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return nil, nil, err
			}
			return nil, nil, errBadForm
		}
		if err := r.ParseForm(); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return nil, nil, err
			}
			return nil, nil, errBadForm
		}
	}

	req.Input.Name = strings.TrimSpace(r.PostFormValue("name"))
	req.Input.Category = strings.TrimSpace(r.PostFormValue("category"))
	req.Input.Description = r.PostFormValue("description")
	req.OldImage = strings.TrimSpace(r.PostFormValue("oldImage"))

	if v := strings.TrimSpace(r.PostFormValue("price")); v != "" {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsInf(price, 0) || math.IsNaN(price) {
			fields["price"] = "must be a number"
		} else {
			req.Input.Price = &price
		}
	}
	if v := strings.TrimSpace(r.PostFormValue("stock")); v != "" {
		stock, err := strconv.Atoi(v)
		if err != nil {
			fields["stock"] = "must be an integer"
		} else {
			req.Input.Stock = stock
		}
	}

	if r.MultipartForm != nil {
		f, fh, err := r.FormFile("image")
		switch {
		case err == nil:
			req.Image = f
			req.Filename = fh.Filename
		case errors.Is(err, http.ErrMissingFile):
		default:
			return nil, nil, errBadForm
		}
	}
	return req, fields, nil
}

// productFromRequest decodes and validates the body, writing the error response itself
// when it returns false.
func productFromRequest(w http.ResponseWriter, r *http.Request) (*productRequest, bool) {
	req, fields, err := decodeProduct(r)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			JSONError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		JSONError(w, "invalid request body", http.StatusBadRequest)
		return nil, false
	}

	// Merge shape errors with the store's validation so the client sees every problem at once.
	var verr *repo.ValidationError
	if err := repo.ValidateProduct(req.Input); errors.As(err, &verr) {
		for k, v := range verr.Fields {
			if _, seen := fields[k]; !seen {
				fields[k] = v
			}
		}
	}
	if len(fields) > 0 {
		req.Close()
		JSONValidationError(w, "required fields missing or invalid", fields, http.StatusBadRequest)
		return nil, false
	}
	return req, true
}

func productID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		JSONError(w, "invalid product id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// saveImage stores the uploaded file. It writes the error response itself when it returns false.
func (h *ProductHandler) saveImage(w http.ResponseWriter, r *http.Request, req *productRequest) (string, bool) {
	ref, err := h.Images.Save(r.Context(), req.Filename, req.Image)
	if errors.Is(err, storage.ErrUnsupportedImage) {
		JSONValidationError(w, "required fields missing or invalid",
			map[string]string{"image": "must be a jpg, jpeg, png, gif or webp file"}, http.StatusBadRequest)
		return "", false
	}
	if err != nil {
		internalError(w, r, "store product image", err)
		return "", false
	}
	metrics.IncImagesStored()
	return ref, true
}

// imageExists reports whether name is in the store. It writes the error response itself
// when it returns false.
func (h *ProductHandler) imageExists(w http.ResponseWriter, r *http.Request, name string) bool {
	rc, _, err := h.Images.Open(r.Context(), name)
	if errors.Is(err, storage.ErrImageNotFound) || errors.Is(err, storage.ErrInvalidName) {
		JSONValidationError(w, "required fields missing or invalid",
			map[string]string{"oldImage": "image not found"}, http.StatusBadRequest)
		return false
	}
	if err != nil {
		internalError(w, r, "update product: check old image", err)
		return false
	}
	rc.Close()
	return true
}

// discardImage removes an image saved for a write that did not go through.
func (h *ProductHandler) discardImage(ctx context.Context, ref string) {
	name, ok := storage.NameFromRef(ref)
	if !ok {
		return
	}
	if err := h.Images.Delete(context.WithoutCancel(ctx), name); err != nil {
		slog.Warn("discard product image",
			"request_id", chimw.GetReqID(ctx),
			"image", ref,
			"err", err)
	}
}

//
// ==========================
// List Products
// ==========================
//

func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	order := repo.OrderAsc
	switch r.URL.Query().Get("order") {
	case "", "asc":
	case "desc":
		order = repo.OrderDesc
	default:
		JSONError(w, "order must be asc or desc", http.StatusBadRequest)
		return
	}

	products, err := h.Repo.List(r.Context(), order)
	if err != nil {
		internalError(w, r, "list products", err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

//
// ==========================
// Get Product By ID
// ==========================
//

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	p, err := h.Repo.Get(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		JSONError(w, "product not found", http.StatusNotFound)
		return
	}
	if err != nil {
		internalError(w, r, "get product", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

//
// ==========================
// Create Product
// ==========================
//

func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	req, ok := productFromRequest(w, r)
	if !ok {
		return
	}
	defer req.Close()

	if req.Image != nil {
		ref, ok := h.saveImage(w, r, req)
		if !ok {
			return
		}
		req.Input.Image = &ref
	}

	p, err := h.Repo.Create(r.Context(), req.Input)
	if err != nil {
		if req.Input.Image != nil {
			h.discardImage(r.Context(), *req.Input.Image)
		}
		var verr *repo.ValidationError
		if errors.As(err, &verr) {
			JSONValidationError(w, "required fields missing or invalid", verr.Fields, http.StatusBadRequest)
			return
		}
		internalError(w, r, "create product", err)
		return
	}

	metrics.IncProductMutation("create")
	writeJSON(w, http.StatusCreated, p)
}

//
// ==========================
// Update Product
// ==========================
//

// UpdateProduct replaces every field of the product. The image reference is chosen by an
// explicit merge: a newly uploaded file, else the oldImage field (which must name a stored
// image), else the stored reference.
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	req, ok := productFromRequest(w, r)
	if !ok {
		return
	}
	defer req.Close()

	uploaded := false
	switch {
	case req.Image != nil:
		ref, ok := h.saveImage(w, r, req)
		if !ok {
			return
		}
		req.Input.Image = &ref
		uploaded = true
	case req.OldImage != "":
		name, ok := storage.NameFromRef(req.OldImage)
		if !ok {
			JSONValidationError(w, "required fields missing or invalid",
				map[string]string{"oldImage": "must be an /uploads/ image reference"}, http.StatusBadRequest)
			return
		}
		if !h.imageExists(w, r, name) {
			return
		}
		req.Input.Image = &req.OldImage
	default:
		current, err := h.Repo.Get(r.Context(), id)
		if errors.Is(err, repo.ErrNotFound) {
			JSONError(w, "product not found", http.StatusNotFound)
			return
		}
		if err != nil {
			internalError(w, r, "update product: load current", err)
			return
		}
		req.Input.Image = current.Image
	}

	p, err := h.Repo.Update(r.Context(), id, req.Input)
	if err != nil {
		if uploaded {
			h.discardImage(r.Context(), *req.Input.Image)
		}
		if errors.Is(err, repo.ErrNotFound) {
			JSONError(w, "product not found", http.StatusNotFound)
			return
		}
		var verr *repo.ValidationError
		if errors.As(err, &verr) {
			JSONValidationError(w, "required fields missing or invalid", verr.Fields, http.StatusBadRequest)
			return
		}
		internalError(w, r, "update product", err)
		return
	}

	metrics.IncProductMutation("update")
	writeJSON(w, http.StatusOK, p)
}

//
// ==========================
// Delete Product
// ==========================
//

// DeleteProduct erases the product and returns it as it was. Its image file is left for
// the upload sweeper.
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	p, err := h.Repo.Delete(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		JSONError(w, "product not found", http.StatusNotFound)
		return
	}
	if err != nil {
		internalError(w, r, "delete product", err)
		return
	}

	metrics.IncProductMutation("delete")
	writeJSON(w, http.StatusOK, p)
}
