package meme

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/png"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/memelibre/server/internal/media"
	"github.com/memelibre/server/internal/metrics"
	"github.com/memelibre/server/internal/orphan"
)

const publicBase = "https://cdn.test/memes"

type object struct {
	data        []byte
	contentType string
}

// memStore is an in-memory storage.Storage.
type memStore struct {
	mu        sync.Mutex
	objects   map[string]object
	putErr    error
	deleteErr error
	puts      atomic.Int32
	deletes   atomic.Int32
}

func newMemStore() *memStore { return &memStore{objects: map[string]object{}} }

func (s *memStore) Upload(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	s.puts.Add(1)
	if s.putErr != nil {
		return s.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: %d != %d", len(data), size)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{data: data, contentType: contentType}
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.deletes.Add(1)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memStore) PublicURL(key string) string { return publicBase + "/" + key }

func (s *memStore) only(t *testing.T) (string, object) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.objects, 1)
	for k, o := range s.objects {
		return k, o
	}
	return "", object{}
}

// memRecords is an in-memory Recorder and Feed.
type memRecords struct {
	mu        sync.Mutex
	rows      []Meme
	nextID    int64
	createErr error
}

func (r *memRecords) Create(_ context.Context, imageURL string, createdBy *string) (*Meme, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	m := Meme{ID: r.nextID, ImageURL: imageURL, CreatedBy: createdBy, CreatedAt: time.Now()}
	r.rows = append(r.rows, m)
	return &m, nil
}

func (r *memRecords) List(_ context.Context, before *int64, limit int) ([]Meme, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Meme
	for _, m := range r.rows {
		if before == nil || m.ID < *before {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRecords) GetByID(_ context.Context, id int64) (*Meme, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.rows {
		if m.ID == id {
			m := m
			return &m, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRecords) Delete(_ context.Context, id int64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.rows {
		if m.ID == id {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return m.ImageURL, nil
		}
	}
	return "", ErrNotFound
}

func (r *memRecords) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// spyTranscoder counts calls to the real transcoder.
type spyTranscoder struct {
	inner *media.Transcoder
	calls atomic.Int32
}

func (s *spyTranscoder) Transcode(data []byte, f media.Format) (*media.Encoded, error) {
	s.calls.Add(1)
	return s.inner.Transcode(data, f)
}

type harness struct {
	pub     *Publisher
	store   *memStore
	records *memRecords
	tr      *spyTranscoder
	log     *logrus.Logger
	hook    *test.Hook
	metrics *metrics.Metrics
	orphans *orphan.Reporter
}

func newHarness(t *testing.T, maxBytes int64) *harness {
	t.Helper()
	log, hook := test.NewNullLogger()
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	h := &harness{
		store:   newMemStore(),
		records: &memRecords{},
		tr:      &spyTranscoder{inner: media.NewTranscoder(80)},
		log:     log,
		hook:    hook,
		metrics: m,
	}
	h.orphans = orphan.NewReporter(log, nil, m)
	h.pub = NewPublisher(Deps{
		Transcoder: h.tr,
		Store:      h.store,
		Records:    h.records,
		Orphans:    h.orphans,
		Metrics:    m,
		Log:        log,
	}, maxBytes, 2)
	return h
}

// entriesMentioning counts log entries whose message or fields contain s.
func (h *harness) entriesMentioning(s string) int {
	n := 0
	for _, e := range h.hook.AllEntries() {
		hit := strings.Contains(e.Message, s)
		for _, v := range e.Data {
			if strings.Contains(fmt.Sprint(v), s) {
				hit = true
			}
		}
		if hit {
			n++
		}
	}
	return n
}

func opaquePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 20), G: uint8(y * 20), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func threeFrameGIF(t *testing.T) []byte {
	t.Helper()
	anim := &gif.GIF{}
	for i := 0; i < 3; i++ {
		frame := image.NewPaletted(image.Rect(0, 0, 6, 6), palette.WebSafe)
		frame.SetColorIndex(i, i, uint8(i*40+5))
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 8)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, anim))
	return buf.Bytes()
}

var errDBDown = errors.New("dial tcp 10.0.0.5:5432: connect: connection refused")
