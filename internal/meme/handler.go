package meme

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/memelibre/server/internal/metrics"
	"github.com/memelibre/server/internal/middleware"
	"github.com/memelibre/server/internal/orphan"
	"github.com/memelibre/server/internal/response"
	"github.com/memelibre/server/internal/storage"
)

// formOverhead is the allowance for multipart headers and boundaries on top
// of the payload limit.
const formOverhead = 64 << 10

// Feed reads and removes meme records.
type Feed interface {
	List(ctx context.Context, before *int64, limit int) ([]Meme, error)
	GetByID(ctx context.Context, id int64) (*Meme, error)
	Delete(ctx context.Context, id int64) (string, error)
}

// Handler holds HTTP handlers for meme endpoints.
type Handler struct {
	pub       *Publisher
	feed      Feed
	store     storage.Storage
	orphans   OrphanReporter
	pullLimit int
	log       *logrus.Logger
}

// NewHandler creates a new meme Handler.
func NewHandler(pub *Publisher, feed Feed, store storage.Storage, orphans OrphanReporter, pullLimit int, log *logrus.Logger) *Handler {
	return &Handler{pub: pub, feed: feed, store: store, orphans: orphans, pullLimit: pullLimit, log: log}
}

type publishData struct {
	Message string `json:"message" example:"Upload successful"`
	Meme    *Meme  `json:"meme"`
}

// Publish godoc
//
//	@Summary		Publish a meme
//	@Description	Upload one image in the multipart field "file". Still images are stored as WebP, GIFs are stored unchanged.
//	@Tags			memes
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Image to publish"
//	@Security		BearerAuth
//	@Success		201	{object}	response.Envelope{data=publishData}
//	@Failure		400	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		413	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Failure		503	{object}	response.Envelope
//	@Router			/memes [post]
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	var createdBy *string
	if id, ok := middleware.UserID(r.Context()); ok {
		createdBy = &id
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.pub.MaxBytes()+formOverhead)

	m, err := h.pub.PublishForm(r, createdBy)
	if err != nil {
		writePublishError(w, err)
		return
	}
	response.Created(w, publishData{Message: "Upload successful", Meme: m})
}

func writePublishError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPayloadTooLarge):
		response.PayloadTooLarge(w, "file size exceeds maximum limit")
	case errors.Is(err, ErrMissingFile):
		response.Reason(w, http.StatusBadRequest, "MissingFile", "multipart field \"file\" is required")
	case errors.Is(err, ErrInvalidMediaFormat):
		response.Reason(w, http.StatusBadRequest, "InvalidMediaFormat", "invalid image format")
	case errors.Is(err, ErrPublisherClosed):
		response.Error(w, http.StatusServiceUnavailable, "server is shutting down")
	default:
		response.InternalError(w)
	}
}

// List godoc
//
//	@Summary		List memes
//	@Description	Newest first. Pass the smallest id already seen as offset to fetch the next page.
//	@Tags			memes
//	@Produce		json
//	@Param			offset	query		int	false	"Return memes with id below this value"
//	@Success		200		{object}	response.Envelope{data=[]Meme}
//	@Failure		400		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/memes [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var before *int64
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			response.BadRequest(w, "offset must be a positive integer")
			return
		}
		before = &n
	}

	memes, err := h.feed.List(r.Context(), before, h.pullLimit)
	if err != nil {
		h.log.WithError(err).Error("list memes")
		response.InternalError(w)
		return
	}
	if memes == nil {
		memes = []Meme{}
	}
	response.OK(w, memes)
}

// Get godoc
//
//	@Summary		Get a meme
//	@Tags			memes
//	@Produce		json
//	@Param			id	path		int	true	"Meme id"
//	@Success		200	{object}	response.Envelope{data=Meme}
//	@Failure		400	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/memes/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	m, err := h.feed.GetByID(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(w, "meme not found")
		return
	}
	if err != nil {
		h.log.WithError(err).WithField("meme_id", id).Error("get meme")
		response.InternalError(w)
		return
	}
	response.OK(w, m)
}

// Delete godoc
//
//	@Summary		Delete a meme
//	@Description	Admin only. Removes the record, then its stored object. Objects that cannot be removed are queued for garbage collection.
//	@Tags			memes
//	@Param			id	path	int	true	"Meme id"
//	@Security		BearerAuth
//	@Success		204
//	@Failure		401	{object}	response.Envelope
//	@Failure		403	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/memes/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	imageURL, err := h.feed.Delete(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(w, "meme not found")
		return
	}
	if err != nil {
		h.log.WithError(err).WithField("meme_id", id).Error("delete meme")
		response.InternalError(w)
		return
	}

	// The record is gone, so the object can no longer be referenced. Its
	// removal is best effort.
	if key, ok := storage.KeyFromURL(h.store.PublicURL(""), imageURL); ok {
		ctx := context.WithoutCancel(r.Context())
		if err := h.store.Delete(ctx, key); err != nil {
			h.orphans.Report(ctx, orphan.Orphan{
				Key:    key,
				Reason: metrics.OrphanReasonDeleteFail,
				Stage:  "deleted",
				Err:    err,
			})
		}
	} else {
		h.log.WithFields(logrus.Fields{"meme_id": id, "image_url": imageURL}).
			Info("deleted meme references an external image; nothing to remove from storage")
	}

	response.NoContent(w)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		response.BadRequest(w, "id must be a positive integer")
		return 0, false
	}
	return id, true
}
