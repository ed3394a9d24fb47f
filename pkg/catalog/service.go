package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/storefront-labs/threadline/pkg/auth"
	"github.com/storefront-labs/threadline/pkg/storage"
)

// ErrUpload indicates a remote image upload failed. Upload failures abort the
// whole create/update; delete failures never do.
var ErrUpload = errors.New("image upload failed")

// ImageFile is an uploaded image payload, already validated at the HTTP
// boundary (type and size limits).
type ImageFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// CreateInput carries the product fields for a create call.
type CreateInput struct {
	Title       string
	Price       float64
	Description string
	Slug        string
	Stock       int
	Sizes       []string
	Gender      Gender
	Tags        []string
}

// UpdateInput carries a partial field patch for an update call. Nil pointers
// and nil slices leave the stored value unchanged.
type UpdateInput struct {
	Title       *string
	Price       *float64
	Description *string
	Slug        *string
	Stock       *int
	Sizes       []string
	Gender      *Gender
	Tags        []string
}

// Service orchestrates catalog reads and the image reconciliation workflow.
// Remote uploads and deletes for distinct blobs are dispatched concurrently;
// the single transactional database write per call is the only serialization
// point. Consistency between the database and the object store is best
// effort: a remote delete that succeeds before a failing commit is not rolled
// back, and an upload that lands before a failing commit leaves an orphaned
// blob for the janitor to reclaim.
type Service struct {
	store   Store
	objects storage.ObjectStore
	log     *logrus.Logger
}

// NewService creates a catalog service.
func NewService(store Store, objects storage.ObjectStore, log *logrus.Logger) *Service {
	return &Service{store: store, objects: objects, log: log}
}

// Create uploads all provided files, then persists the product and its image
// references as one transaction. Any single upload failure aborts the create
// before any database write.
func (s *Service) Create(ctx context.Context, in CreateInput, files []ImageFile, owner *auth.User) (*Product, error) {
	images, err := s.uploadAll(ctx, files)
	if err != nil {
		return nil, err
	}

	p := &Product{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Price:       in.Price,
		Description: in.Description,
		Slug:        SlugFor(in.Slug, in.Title),
		Stock:       in.Stock,
		Sizes:       in.Sizes,
		Gender:      in.Gender,
		Tags:        in.Tags,
		Images:      images,
	}
	if owner != nil {
		p.UserID = owner.ID
	}

	if err := s.store.CreateProduct(ctx, p); err != nil {
		if len(images) > 0 && !errors.Is(err, storage.ErrConflict) {
			// The blobs are already remote; the janitor reclaims them.
			s.log.WithError(err).WithField("count", len(images)).
				Warn("product insert failed after upload, remote blobs orphaned")
		}
		return nil, err
	}
	return p, nil
}

// FindAll returns a page of products with their images eagerly attached.
func (s *Service) FindAll(ctx context.Context, limit, offset int) ([]*Product, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListProducts(ctx, limit, offset)
}

// FindOne resolves a term to a single product: a valid UUID looks up by
// identifier, anything else by case-insensitive title or exact slug.
func (s *Service) FindOne(ctx context.Context, term string) (*Product, error) {
	if _, err := uuid.Parse(term); err == nil {
		return s.store.GetProductByID(ctx, term)
	}
	return s.store.GetProductByTerm(ctx, term)
}

// Update runs the reconciliation workflow for one update call: load the
// product, issue remote deletes for the marked references, upload new files,
// merge the field patch, and persist the final reference list in one
// transaction. Remote delete failures are logged and ignored; upload failures
// abort the call; deletes already issued before a failing database write are
// not rolled back.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput, imagesToDelete []string, files []ImageFile) (*Product, error) {
	p, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}

	retained, removed := partitionImages(p.Images, imagesToDelete)
	s.deleteRemote(ctx, removed)

	uploaded, err := s.uploadAll(ctx, files)
	if err != nil {
		// Deletes already dispatched stay applied; the divergence window is
		// bounded to this call.
		return nil, err
	}

	applyPatch(p, in)
	p.Images = append(retained, uploaded...)

	removedIDs := make([]string, len(removed))
	for i, img := range removed {
		removedIDs[i] = img.StorageID
	}

	if err := s.store.UpdateProduct(ctx, p, removedIDs); err != nil {
		if !errors.Is(err, storage.ErrConflict) {
			s.log.WithError(err).WithField("product_id", id).Error("product update failed")
		}
		return nil, err
	}
	return p, nil
}

// Remove deletes the product and cascades its image reference rows. Remote
// blobs are intentionally left behind; the blob janitor reclaims them out of
// band.
func (s *Service) Remove(ctx context.Context, id string) error {
	p, err := s.FindOne(ctx, id)
	if err != nil {
		return err
	}
	return s.store.DeleteProduct(ctx, p.ID)
}

// uploadAll fans the uploads out concurrently and fails fast on the first
// error, preserving input order in the result.
func (s *Service) uploadAll(ctx context.Context, files []ImageFile) ([]ProductImage, error) {
	if len(files) == 0 {
		return nil, nil
	}

	images := make([]ProductImage, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			res, err := s.objects.Upload(gctx, f.Data, f.ContentType)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrUpload, f.Name, err)
			}
			images[i] = ProductImage{URL: res.URL, StorageID: res.StorageID}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

// deleteRemote issues the remote deletes concurrently and waits for them.
// Failures are logged and ignored: the reference row is removed regardless
// and the janitor cleans up any blob the store failed to delete now.
func (s *Service) deleteRemote(ctx context.Context, images []ProductImage) {
	if len(images) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, img := range images {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.objects.Delete(ctx, img.StorageID); err != nil {
				s.log.WithError(err).WithField("storage_id", img.StorageID).
					Warn("remote image delete failed, blob left for janitor")
			}
		}()
	}
	wg.Wait()
}

// partitionImages splits the current reference list into retained references
// (relative order preserved) and references marked for deletion. Identifiers
// that match no current reference are ignored.
func partitionImages(current []ProductImage, toDelete []string) (retained, removed []ProductImage) {
	if len(toDelete) == 0 {
		return current, nil
	}

	marked := make(map[string]bool, len(toDelete))
	for _, id := range toDelete {
		marked[id] = true
	}
	for _, img := range current {
		if marked[img.StorageID] {
			removed = append(removed, img)
		} else {
			retained = append(retained, img)
		}
	}
	return retained, removed
}

func applyPatch(p *Product, in UpdateInput) {
	if in.Title != nil {
		p.Title = strings.TrimSpace(*in.Title)
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Slug != nil {
		p.Slug = *in.Slug
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	if in.Sizes != nil {
		p.Sizes = in.Sizes
	}
	if in.Gender != nil {
		p.Gender = *in.Gender
	}
	if in.Tags != nil {
		p.Tags = in.Tags
	}
	p.Slug = NormalizeSlug(p.Slug)
}
