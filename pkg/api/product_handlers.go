package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/storefront-labs/threadline/pkg/catalog"
	"github.com/storefront-labs/threadline/pkg/httputil"
	"github.com/storefront-labs/threadline/pkg/middleware"
)

const (
	maxImageFiles    = 5
	maxImageSize     = 2 << 20 // 2 MB per file
	maxMultipartSize = 12 << 20
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// createProduct handles POST /products (multipart: fields + image files).
func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartSize); err != nil {
		httputil.WriteBadRequest(w, "invalid multipart form: "+err.Error())
		return
	}

	in, err := parseCreateInput(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	files, err := parseImageFiles(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	product, err := s.cat.Create(r.Context(), in, files, middleware.Principal(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, product)
}

// listProducts handles GET /products?limit=&offset=.
func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", 10)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	products, err := s.cat.FindAll(r.Context(), limit, offset)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if products == nil {
		products = []*catalog.Product{}
	}
	httputil.WriteSuccess(w, products)
}

// getProduct handles GET /products/{term}: term is an id, a title or a slug.
func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	term, ok := httputil.ParsePathStringOrError(w, r, "term")
	if !ok {
		return
	}

	product, err := s.cat.FindOne(r.Context(), term)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, product)
}

// updateProduct handles PATCH /products/{id}. Multipart requests may carry a
// partial field patch, an images_to_delete storage-id list, and new image
// files; JSON requests carry the patch and the delete list only.
func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var (
		in             catalog.UpdateInput
		imagesToDelete []string
		files          []catalog.ImageFile
		err            error
	)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		in, imagesToDelete, err = parseUpdateJSON(r)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
	} else {
		if err := r.ParseMultipartForm(maxMultipartSize); err != nil {
			httputil.WriteBadRequest(w, "invalid multipart form: "+err.Error())
			return
		}
		in, imagesToDelete, err = parseUpdateForm(r)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		files, err = parseImageFiles(r)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
	}

	product, err := s.cat.Update(r.Context(), id, in, imagesToDelete, files)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, product)
}

// deleteProduct handles DELETE /products/{id}.
func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.cat.Remove(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// parseCreateInput reads the product fields from a parsed multipart form.
func parseCreateInput(r *http.Request) (catalog.CreateInput, error) {
	var in catalog.CreateInput

	in.Title = strings.TrimSpace(r.FormValue("title"))
	if in.Title == "" {
		return in, fmt.Errorf("title is required")
	}

	gender, err := catalog.ParseGender(r.FormValue("gender"))
	if err != nil {
		return in, err
	}
	in.Gender = gender

	if v := r.FormValue("price"); v != "" {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil || price < 0 {
			return in, fmt.Errorf("price must be a non-negative number")
		}
		in.Price = price
	}
	if v := r.FormValue("stock"); v != "" {
		stock, err := strconv.Atoi(v)
		if err != nil || stock < 0 {
			return in, fmt.Errorf("stock must be a non-negative integer")
		}
		in.Stock = stock
	}

	in.Description = r.FormValue("description")
	in.Slug = r.FormValue("slug")
	in.Sizes = formList(r.MultipartForm.Value["sizes"])
	in.Tags = formList(r.MultipartForm.Value["tags"])
	return in, nil
}

// parseUpdateForm reads a partial patch: only fields present in the form end
// up non-nil.
func parseUpdateForm(r *http.Request) (catalog.UpdateInput, []string, error) {
	var in catalog.UpdateInput
	values := r.MultipartForm.Value

	if v, ok := firstValue(values, "title"); ok {
		t := strings.TrimSpace(v)
		if t == "" {
			return in, nil, fmt.Errorf("title must not be empty")
		}
		in.Title = &t
	}
	if v, ok := firstValue(values, "price"); ok {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil || price < 0 {
			return in, nil, fmt.Errorf("price must be a non-negative number")
		}
		in.Price = &price
	}
	if v, ok := firstValue(values, "stock"); ok {
		stock, err := strconv.Atoi(v)
		if err != nil || stock < 0 {
			return in, nil, fmt.Errorf("stock must be a non-negative integer")
		}
		in.Stock = &stock
	}
	if v, ok := firstValue(values, "description"); ok {
		in.Description = &v
	}
	if v, ok := firstValue(values, "slug"); ok {
		in.Slug = &v
	}
	if v, ok := firstValue(values, "gender"); ok {
		gender, err := catalog.ParseGender(v)
		if err != nil {
			return in, nil, err
		}
		in.Gender = &gender
	}
	if vs, ok := values["sizes"]; ok {
		in.Sizes = formList(vs)
	}
	if vs, ok := values["tags"]; ok {
		in.Tags = formList(vs)
	}

	return in, formList(values["images_to_delete"]), nil
}

// parseUpdateJSON reads the same patch from a JSON body.
func parseUpdateJSON(r *http.Request) (catalog.UpdateInput, []string, error) {
	var req struct {
		Title          *string  `json:"title"`
		Price          *float64 `json:"price"`
		Description    *string  `json:"description"`
		Slug           *string  `json:"slug"`
		Stock          *int     `json:"stock"`
		Sizes          []string `json:"sizes"`
		Gender         *string  `json:"gender"`
		Tags           []string `json:"tags"`
		ImagesToDelete []string `json:"images_to_delete"`
	}
	if err := httputil.ParseJSON(r, &req); err != nil {
		return catalog.UpdateInput{}, nil, err
	}

	in := catalog.UpdateInput{
		Title:       req.Title,
		Price:       req.Price,
		Description: req.Description,
		Slug:        req.Slug,
		Stock:       req.Stock,
		Sizes:       req.Sizes,
		Tags:        req.Tags,
	}
	if req.Price != nil && *req.Price < 0 {
		return in, nil, fmt.Errorf("price must be a non-negative number")
	}
	if req.Stock != nil && *req.Stock < 0 {
		return in, nil, fmt.Errorf("stock must be a non-negative integer")
	}
	if req.Gender != nil {
		gender, err := catalog.ParseGender(*req.Gender)
		if err != nil {
			return in, nil, err
		}
		in.Gender = &gender
	}
	return in, req.ImagesToDelete, nil
}

// parseImageFiles validates and reads the uploaded image files.
func parseImageFiles(r *http.Request) ([]catalog.ImageFile, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	headers := r.MultipartForm.File["images"]
	if len(headers) == 0 {
		return nil, nil
	}
	if len(headers) > maxImageFiles {
		return nil, fmt.Errorf("at most %d images per request", maxImageFiles)
	}

	files := make([]catalog.ImageFile, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > maxImageSize {
			return nil, fmt.Errorf("image %s exceeds the %d byte limit", fh.Filename, maxImageSize)
		}
		contentType := fh.Header.Get("Content-Type")
		if !allowedImageTypes[contentType] {
			return nil, fmt.Errorf("image %s has unsupported type %q", fh.Filename, contentType)
		}

		data, err := readMultipartFile(fh)
		if err != nil {
			return nil, fmt.Errorf("failed to read image %s: %w", fh.Filename, err)
		}
		files = append(files, catalog.ImageFile{
			Name:        fh.Filename,
			ContentType: contentType,
			Data:        data,
		})
	}
	return files, nil
}

func readMultipartFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxImageSize+1))
}

// formList flattens repeated form values and splits comma-separated entries.
func formList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func firstValue(values map[string][]string, key string) (string, bool) {
	vs, ok := values[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}
