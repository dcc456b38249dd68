package meme

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/memelibre/server/internal/media"
	"github.com/memelibre/server/internal/metrics"
	"github.com/memelibre/server/internal/orphan"
	"github.com/memelibre/server/internal/storage"
)

// FormField is the multipart field carrying the upload.
const FormField = "file"

// Transcoder turns a sniffed payload into the bytes to store.
type Transcoder interface {
	Transcode(data []byte, f media.Format) (*media.Encoded, error)
}

// Recorder persists meme records.
type Recorder interface {
	Create(ctx context.Context, imageURL string, createdBy *string) (*Meme, error)
}

// OrphanReporter records objects stored without a referencing record.
type OrphanReporter interface {
	Report(ctx context.Context, o orphan.Orphan)
}

// Upload is one publish request.
type Upload struct {
	Payload   []byte
	CreatedBy *string
}

// Deps are the collaborators of a Publisher.
type Deps struct {
	Transcoder Transcoder
	Store      storage.Storage
	Records    Recorder
	Orphans    OrphanReporter
	Metrics    *metrics.Metrics
	Log        *logrus.Logger
	NewKey     func(ext string) string // defaults to storage.NewKey
}

// Publisher runs the publish pipeline: validate, classify, encode, upload,
// commit. It keeps no per-request state; the CPU semaphore is the only thing
// shared between requests.
type Publisher struct {
	deps     Deps
	maxBytes int64
	cpu      *semaphore.Weighted

	// life is cancelled by Close; requests still waiting for a CPU slot
	// give up, admitted ones finish.
	life  context.Context
	close context.CancelFunc
}

// NewPublisher returns a Publisher accepting payloads up to maxBytes and
// running at most concurrency transcodes at once.
func NewPublisher(deps Deps, maxBytes int64, concurrency int) *Publisher {
	if deps.NewKey == nil {
		deps.NewKey = storage.NewKey
	}
	if concurrency < 1 {
		concurrency = 1
	}
	life, cancel := context.WithCancel(context.Background())
	return &Publisher{
		deps:     deps,
		maxBytes: maxBytes,
		cpu:      semaphore.NewWeighted(int64(concurrency)),
		life:     life,
		close:    cancel,
	}
}

// Close stops admitting new work. Publishes already past the CPU semaphore
// run to completion.
func (p *Publisher) Close() { p.close() }

// MaxBytes returns the payload size limit.
func (p *Publisher) MaxBytes() int64 { return p.maxBytes }

// PublishForm reads the "file" field from a multipart request and publishes it.
func (p *Publisher) PublishForm(r *http.Request, createdBy *string) (*Meme, error) {
	payload, err := ReadPayload(r, p.maxBytes)
	if err != nil {
		return nil, p.fail(r.Context(), &PublishError{Kind: kindOf(err), Stage: StageReceived, Err: err})
	}
	return p.Publish(r.Context(), Upload{Payload: payload, CreatedBy: createdBy})
}

// Publish runs the pipeline on an extracted payload. Once started it is not
// cancelled by ctx: every call ends committed, rejected or with a reported
// failure.
func (p *Publisher) Publish(ctx context.Context, up Upload) (*Meme, error) {
	ctx = context.WithoutCancel(ctx)

	if int64(len(up.Payload)) > p.maxBytes {
		return nil, p.fail(ctx, &PublishError{
			Kind:  ErrPayloadTooLarge,
			Stage: StageReceived,
			Err:   fmt.Errorf("%d bytes exceeds limit of %d", len(up.Payload), p.maxBytes),
		})
	}

	// Only Close, never the request, can abort the wait for a slot.
	if err := p.acquire(); err != nil {
		return nil, p.fail(ctx, &PublishError{Kind: ErrPublisherClosed, Stage: StageReceived, Err: err})
	}
	enc, mediaType, stage, err := p.encode(up.Payload)
	p.cpu.Release(1)
	if err != nil {
		return nil, p.fail(ctx, &PublishError{Kind: ErrInvalidMediaFormat, Stage: stage, Err: err, MediaType: mediaType})
	}

	key := p.deps.NewKey(enc.Ext)
	if err := p.deps.Store.Upload(ctx, key, bytes.NewReader(enc.Data), int64(len(enc.Data)), enc.ContentType); err != nil {
		return nil, p.fail(ctx, &PublishError{Kind: ErrStorageUnavailable, Stage: StageEncoded, Key: key, Err: err})
	}
	p.deps.Metrics.Stored(len(enc.Data))

	m, err := p.deps.Records.Create(ctx, p.deps.Store.PublicURL(key), up.CreatedBy)
	if err != nil {
		perr := &PublishError{Kind: ErrMetadataCommitFailed, Stage: StageUploaded, Key: key, Err: err}
		// The orphan report is the single log entry for this failure.
		p.deps.Orphans.Report(ctx, orphan.Orphan{
			Key:    key,
			Reason: metrics.OrphanReasonCommit,
			Stage:  string(StageUploaded),
			Err:    err,
		})
		p.deps.Metrics.Publish(metrics.OutcomeOrphaned)
		return nil, perr
	}

	p.deps.Log.WithFields(logrus.Fields{
		"stage":        StageCommitted,
		"meme_id":      m.ID,
		"key":          key,
		"content_type": enc.ContentType,
		"bytes":        len(enc.Data),
	}).Info("meme published")
	p.deps.Metrics.Publish(metrics.OutcomeCommitted)
	return m, nil
}

// acquire takes a CPU slot unless the Publisher is closed.
func (p *Publisher) acquire() error {
	if err := p.life.Err(); err != nil {
		return err
	}
	return p.cpu.Acquire(p.life, 1)
}

// encode classifies and transcodes; the caller holds a CPU slot. It returns
// the sniffed MIME type and the stage reached when it fails.
func (p *Publisher) encode(payload []byte) (*media.Encoded, string, Stage, error) {
	start := time.Now()
	format, mediaType := media.Detect(payload)
	if format == media.Unrecognized {
		return nil, mediaType, StageValidated, media.ErrInvalidFormat
	}

	enc, err := p.deps.Transcoder.Transcode(payload, format)
	p.deps.Metrics.Transcode(format.String(), time.Since(start))
	if err != nil {
		return nil, mediaType, StageClassified, err
	}
	return enc, mediaType, StageEncoded, nil
}

func (p *Publisher) fail(ctx context.Context, perr *PublishError) error {
	fields := logrus.Fields{
		"stage":    perr.Stage,
		"terminal": perr.Terminal(),
		"kind":     perr.Kind.Error(),
	}
	if perr.Key != "" {
		fields["key"] = perr.Key
	}
	if perr.MediaType != "" {
		fields["media_type"] = perr.MediaType
	}
	entry := p.deps.Log.WithContext(ctx).WithFields(fields)
	if perr.Err != nil {
		entry = entry.WithError(perr.Err)
	}

	switch {
	case perr.Rejected():
		entry.Warn("publish rejected")
		p.deps.Metrics.Publish(metrics.OutcomeRejected)
	case errors.Is(perr.Kind, ErrPublisherClosed):
		entry.Warn("publish refused during shutdown")
		p.deps.Metrics.Publish(metrics.OutcomeUnavailable)
	default:
		entry.Error("publish failed")
		p.deps.Metrics.Publish(metrics.OutcomeStorageFailed)
	}
	return perr
}

// ReadPayload streams a multipart body and returns the first part named
// "file". Parts are read through a limit so at most maxBytes+1 bytes of the
// upload are ever buffered.
func ReadPayload(r *http.Request, maxBytes int64) ([]byte, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingFile, err)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingFile
		}
		if err != nil {
			return nil, bodyError(err)
		}
		if part.FormName() != FormField {
			continue
		}
		return readPart(part, maxBytes)
	}
}

func readPart(part *multipart.Part, maxBytes int64) ([]byte, error) {
	defer part.Close()
	data, err := io.ReadAll(io.LimitReader(part, maxBytes+1))
	if err != nil {
		return nil, bodyError(err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrPayloadTooLarge, maxBytes)
	}
	return data, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: %w", ErrPayloadTooLarge, err)
	}
	return fmt.Errorf("%w: read multipart body: %w", ErrMissingFile, err)
}

func kindOf(err error) error {
	for _, kind := range []error{ErrPayloadTooLarge, ErrMissingFile} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrMissingFile
}
