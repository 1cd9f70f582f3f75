package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"MuseFM/model"
)

// fakeObjectStore serves objects from memory.
type fakeObjectStore struct {
	objects map[string][]byte
	failAll bool
}

func (f *fakeObjectStore) ObjectLength(ctx context.Context, key string) (int64, error) {
	if f.failAll {
		return 0, ErrStoreUnavailable
	}
	data, ok := f.objects[key]
	if !ok {
		return 0, ErrNoSource
	}
	return int64(len(data)), nil
}

func (f *fakeObjectStore) OpenRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error) {
	if f.failAll {
		return nil, ErrStoreUnavailable
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, ErrNoSource
	}
	if end >= int64(len(data)) {
		end = int64(len(data)) - 1
	}
	return io.NopCloser(bytes.NewReader(data[start : end+1])), nil
}

func (f *fakeObjectStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if f.failAll {
		return nil, ErrStoreUnavailable
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, ErrNoSource
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestResolveDirectTrack(t *testing.T) {
	r := NewResolver(&fakeObjectStore{})
	track := &model.Track{ID: 1, DirectURL: "https://cdn.example.com/a.mp3"}

	loc, err := r.Resolve(context.Background(), track)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	direct, ok := loc.(DirectLocation)
	if !ok {
		t.Fatalf("expected DirectLocation, got %T", loc)
	}
	if direct.URL != track.DirectURL {
		t.Errorf("expected URL %q, got %q", track.DirectURL, direct.URL)
	}
}

func TestResolveChunkedTrack(t *testing.T) {
	store := &fakeObjectStore{objects: map[string][]byte{
		"audio/2.flac": make([]byte, 4096),
	}}
	r := NewResolver(store)
	track := &model.Track{ID: 2, ObjectKey: "audio/2.flac", MimeType: "audio/flac"}

	loc, err := r.Resolve(context.Background(), track)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chunked, ok := loc.(ChunkedLocation)
	if !ok {
		t.Fatalf("expected ChunkedLocation, got %T", loc)
	}
	if chunked.Size != 4096 {
		t.Errorf("expected size 4096, got %d", chunked.Size)
	}
	if chunked.MimeType != "audio/flac" {
		t.Errorf("expected mime audio/flac, got %s", chunked.MimeType)
	}
}

func TestResolveChunkedTrackDefaultsMimeType(t *testing.T) {
	store := &fakeObjectStore{objects: map[string][]byte{"audio/3.mp3": {1, 2, 3}}}
	r := NewResolver(store)
	track := &model.Track{ID: 3, ObjectKey: "audio/3.mp3"}

	loc, err := r.Resolve(context.Background(), track)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.(ChunkedLocation).MimeType != "audio/mpeg" {
		t.Errorf("expected default mime audio/mpeg, got %s", loc.(ChunkedLocation).MimeType)
	}
}

func TestResolveTrackWithoutSource(t *testing.T) {
	r := NewResolver(&fakeObjectStore{})
	track := &model.Track{ID: 4}

	_, err := r.Resolve(context.Background(), track)
	if !errors.Is(err, ErrNoSource) {
		t.Errorf("expected ErrNoSource, got %v", err)
	}
}

func TestResolveChunkedTrackMissingObject(t *testing.T) {
	r := NewResolver(&fakeObjectStore{objects: map[string][]byte{}})
	track := &model.Track{ID: 5, ObjectKey: "audio/gone.mp3"}

	_, err := r.Resolve(context.Background(), track)
	if !errors.Is(err, ErrNoSource) {
		t.Errorf("expected ErrNoSource, got %v", err)
	}
}

func TestResolveChunkedTrackStoreDown(t *testing.T) {
	r := NewResolver(&fakeObjectStore{failAll: true})
	track := &model.Track{ID: 6, ObjectKey: "audio/6.mp3"}

	_, err := r.Resolve(context.Background(), track)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestResolveChunkedTrackNilStore(t *testing.T) {
	r := NewResolver(nil)
	track := &model.Track{ID: 7, ObjectKey: "audio/7.mp3"}

	_, err := r.Resolve(context.Background(), track)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}
