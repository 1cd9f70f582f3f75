package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"MuseFM/logger"
	"MuseFM/model"
	"MuseFM/repository"
	"MuseFM/storage"
)

// byteRange is a parsed, inclusive byte span.
type byteRange struct {
	start int64
	end   int64
}

func (br byteRange) length() int64 { return br.end - br.start + 1 }

// parseRangeHeader parses a "bytes=start-end" header against the object size.
// The end defaults to size-1 when omitted. Suffix ranges ("bytes=-500") and
// multi-range requests fall back to the full object: ok is false with no
// error. An unsatisfiable span (start >= size, or start > end) returns an
// error; the caller answers 416.
func parseRangeHeader(header string, size int64) (br byteRange, ok bool, err error) {
	header = strings.TrimSpace(header)
	if header == "" || !strings.HasPrefix(header, "bytes=") {
		return byteRange{}, false, nil
	}

	spec := strings.TrimPrefix(header, "bytes=")
	if strings.Contains(spec, ",") {
		return byteRange{}, false, nil
	}

	dash := strings.Index(spec, "-")
	if dash < 0 {
		return byteRange{}, false, nil
	}

	startStr := strings.TrimSpace(spec[:dash])
	endStr := strings.TrimSpace(spec[dash+1:])
	if startStr == "" {
		// Suffix range: serve the full object instead.
		return byteRange{}, false, nil
	}

	start, parseErr := strconv.ParseInt(startStr, 10, 64)
	if parseErr != nil || start < 0 {
		return byteRange{}, false, nil
	}

	end := size - 1
	if endStr != "" {
		end, parseErr = strconv.ParseInt(endStr, 10, 64)
		if parseErr != nil || end < 0 {
			return byteRange{}, false, nil
		}
		if end > size-1 {
			end = size - 1
		}
	}

	if start >= size || start > end {
		return byteRange{}, false, fmt.Errorf("unsatisfiable range %d-%d for size %d", start, end, size)
	}
	return byteRange{start: start, end: end}, true, nil
}

// StreamTrackHandler serves the audio bytes for a track. Direct-backed tracks
// redirect to the upstream URL; chunked-backed tracks are proxied from the
// object store with range-request support.
func (h *APIHandler) StreamTrackHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := trackIDFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid track ID", http.StatusBadRequest)
		return
	}

	_, location, status := h.resolveLocation(r, trackID)
	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}

	switch loc := location.(type) {
	case storage.DirectLocation:
		http.Redirect(w, r, loc.URL, http.StatusFound)

	case storage.ChunkedLocation:
		h.serveChunked(w, r, trackID, loc)

	default:
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// resolveLocation resolves the track's byte source, mapping every resolution
// failure to an HTTP status. A zero status means success.
func (h *APIHandler) resolveLocation(r *http.Request, trackID int64) (*model.Track, storage.Location, int) {
	track, err := h.trackRepo.GetTrackByID(trackID)
	if err != nil {
		if errors.Is(err, repository.ErrTrackNotFound) {
			return nil, nil, http.StatusNotFound
		}
		logger.Error("track lookup failed",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
		return nil, nil, http.StatusInternalServerError
	}

	location, err := h.resolver.Resolve(r.Context(), track)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNoSource):
			return nil, nil, http.StatusNotFound
		case errors.Is(err, storage.ErrStoreUnavailable):
			logger.Error("audio store unavailable",
				logger.Int64("trackId", trackID),
				logger.ErrorField(err))
			return nil, nil, http.StatusServiceUnavailable
		default:
			logger.Error("failed to resolve audio source",
				logger.Int64("trackId", trackID),
				logger.ErrorField(err))
			return nil, nil, http.StatusInternalServerError
		}
	}
	return track, location, 0
}

func (h *APIHandler) serveChunked(w http.ResponseWriter, r *http.Request, trackID int64, loc storage.ChunkedLocation) {
	br, ranged, err := parseRangeHeader(r.Header.Get("Range"), loc.Size)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", loc.Size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", loc.MimeType)

	var reader io.ReadCloser
	if ranged {
		reader, err = h.store.OpenRange(r.Context(), loc.ObjectKey, br.start, br.end)
	} else {
		br = byteRange{start: 0, end: loc.Size - 1}
		reader, err = h.store.Open(r.Context(), loc.ObjectKey)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNoSource) {
			http.Error(w, "Track not found", http.StatusNotFound)
			return
		}
		logger.Error("failed to open audio object",
			logger.Int64("trackId", trackID),
			logger.String("objectKey", loc.ObjectKey),
			logger.ErrorField(err))
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Length", strconv.FormatInt(br.length(), 10))
	if ranged {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", br.start, br.end, loc.Size))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if _, err := io.CopyN(w, reader, br.length()); err != nil {
		// Client disconnects mid-stream are routine; nothing to send back.
		logger.Debug("stream copy ended early",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
	}
}

// DownloadTrackHandler serves the full object with an attachment disposition
// named after the track. Direct-backed tracks redirect like the stream path.
func (h *APIHandler) DownloadTrackHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := trackIDFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid track ID", http.StatusBadRequest)
		return
	}

	track, location, status := h.resolveLocation(r, trackID)
	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}

	switch loc := location.(type) {
	case storage.DirectLocation:
		http.Redirect(w, r, loc.URL, http.StatusFound)

	case storage.ChunkedLocation:
		reader, err := h.store.Open(r.Context(), loc.ObjectKey)
		if err != nil {
			if errors.Is(err, storage.ErrNoSource) {
				http.Error(w, "Track not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to open audio object for download",
				logger.Int64("trackId", trackID),
				logger.ErrorField(err))
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		defer reader.Close()

		filename := downloadFilename(track.Title, track.Artist, loc.MimeType)
		w.Header().Set("Content-Type", loc.MimeType)
		w.Header().Set("Content-Length", strconv.FormatInt(loc.Size, 10))
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.WriteHeader(http.StatusOK)

		if _, err := io.Copy(w, reader); err != nil {
			logger.Debug("download copy ended early",
				logger.Int64("trackId", trackID),
				logger.ErrorField(err))
		}

	default:
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// downloadFilename builds "Title - Artist.ext" with the extension derived
// from the MIME type.
func downloadFilename(title, artist, mimeType string) string {
	base := strings.TrimSpace(title)
	if base == "" {
		base = "track"
	}
	if artist = strings.TrimSpace(artist); artist != "" {
		base = base + " - " + artist
	}

	ext := extensionForMime(mimeType)
	return base + ext
}

func extensionForMime(mimeType string) string {
	switch mimeType {
	case "audio/mpeg":
		return ".mp3"
	case "audio/flac", "audio/x-flac":
		return ".flac"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	case "audio/aac":
		return ".aac"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
