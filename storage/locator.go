package storage

import (
	"context"

	"MuseFM/model"
)

// Location is the resolved byte source of a track: either an external URL the
// upstream store serves ranges for itself, or an object in the chunked store
// that the gateway proxies. The variant is closed so the gateway can match
// exhaustively; adding a backend kind means adding a type here.
type Location interface {
	isLocation()
}

// DirectLocation points at an external store that handles range requests natively.
type DirectLocation struct {
	URL string
}

// ChunkedLocation identifies an object the gateway must proxy byte ranges from.
type ChunkedLocation struct {
	ObjectKey string
	Size      int64
	MimeType  string
}

func (DirectLocation) isLocation()  {}
func (ChunkedLocation) isLocation() {}

// Resolver maps a track's persisted locator data to a Location.
type Resolver struct {
	store ObjectStore
}

// NewResolver creates a Resolver backed by the given object store.
func NewResolver(store ObjectStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve turns a track record into a Location. It never fabricates a URL:
// a track with no locator yields ErrNoSource, which callers treat as
// not-found rather than a resolver failure.
func (r *Resolver) Resolve(ctx context.Context, track *model.Track) (Location, error) {
	switch track.SourceKind() {
	case model.SourceDirect:
		return DirectLocation{URL: track.DirectURL}, nil

	case model.SourceChunked:
		if r.store == nil {
			return nil, ErrStoreUnavailable
		}
		size, err := r.store.ObjectLength(ctx, track.ObjectKey)
		if err != nil {
			return nil, err
		}
		mime := track.MimeType
		if mime == "" {
			mime = "audio/mpeg"
		}
		return ChunkedLocation{
			ObjectKey: track.ObjectKey,
			Size:      size,
			MimeType:  mime,
		}, nil

	default:
		return nil, ErrNoSource
	}
}
