package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/bamsammich/beamsync/internal/digest"
	"github.com/bamsammich/beamsync/internal/event"
	"github.com/bamsammich/beamsync/internal/manifest"
	"github.com/bamsammich/beamsync/internal/proto"
)

// sendFile streams one file: header, data frames, FileEnd. The header
// carries the snapshot record; if the bytes on disk no longer match it the
// file is still sent in full and the receiver rejects it. Problems with the
// local file are returned as *TransferError; anything else is a channel
// failure.
func (s *session) sendFile(ctx context.Context, rec manifest.FileRecord) error {
	full := filepath.Join(s.node.store.Root(), filepath.FromSlash(rec.Path))

	f, err := os.Open(full)
	if err != nil {
		return s.sendUnavailable(rec, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return s.sendUnavailable(rec, err)
	}
	if !info.Mode().IsRegular() {
		return s.sendUnavailable(rec, fmt.Errorf("%s is no longer a regular file", rec.Path))
	}

	size := info.Size()
	header := proto.HeaderFor(rec, uint64(size)) //nolint:gosec // G115: size from Stat is non-negative
	if err := s.conn.Send(proto.MsgFileHeader, &header); err != nil {
		return err
	}

	h := digest.New()
	src := newRateLimitedReader(ctx, io.TeeReader(io.LimitReader(f, size), h), s.node.limiter)
	buf := make([]byte, chunkSize(s.node.limiter))

	var sent int64
	var readErr error
	for sent < size {
		n, err := io.ReadFull(src, buf[:min(int64(len(buf)), size-sent)])
		if n > 0 {
			if sendErr := s.conn.SendRaw(proto.MsgFileData, buf[:n]); sendErr != nil {
				return sendErr
			}
			sent += int64(n)
			s.res.BytesSent += int64(n)
			s.node.stats.AddBytesSent(int64(n))
			// Throttled chunks go out one by one so the peer's read deadline
			// sees steady progress.
			if s.node.limiter != nil {
				if err := s.conn.Flush(); err != nil {
					return err
				}
			}
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			readErr = err
			break
		}
	}

	// A file that shrank or failed mid-read is padded to the announced size
	// so the channel stays in step; the receiver's digest check rejects it.
	if sent < size {
		clear(buf)
		for sent < size {
			n := min(int64(len(buf)), size-sent)
			if err := s.conn.SendRaw(proto.MsgFileData, buf[:n]); err != nil {
				return err
			}
			sent += n
		}
	}

	if err := s.conn.SendRaw(proto.MsgFileEnd, nil); err != nil {
		return err
	}
	if err := s.conn.Flush(); err != nil {
		return err
	}

	switch {
	case readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) && !errors.Is(readErr, io.EOF):
		return &TransferError{Path: rec.Path, Err: fmt.Errorf("read: %w", readErr)}
	case readErr != nil:
		return &TransferError{Path: rec.Path, Err: errors.New("file shrank while sending")}
	case digest.Encode(h.Sum(nil)) != rec.Digest:
		return &TransferError{Path: rec.Path, Err: errors.New("file changed since last scan")}
	}

	s.res.Sent++
	s.node.stats.AddFilesSent(1)
	s.emit(event.Event{Type: event.FileSent, Path: rec.Path, Size: size, Version: rec.Version})
	s.log.Debug("sent file", "path", rec.Path, "version", rec.Version, "size", size)
	return nil
}

// sendUnavailable announces a file that can no longer be read as zero bytes
// with an empty digest, which no content hashes to. The peer rejects it and
// both sides keep the same file count.
func (s *session) sendUnavailable(rec manifest.FileRecord, cause error) error {
	header := proto.FileHeader{Path: rec.Path, Version: rec.Version}
	if err := s.conn.Send(proto.MsgFileHeader, &header); err != nil {
		return err
	}
	if err := s.conn.SendRaw(proto.MsgFileEnd, nil); err != nil {
		return err
	}
	if err := s.conn.Flush(); err != nil {
		return err
	}
	return &TransferError{Path: rec.Path, Err: cause}
}

// receiveFile reads one file's data into a temp file next to its
// destination, verifies the digest, and commits it. Per-file problems are
// returned as *TransferError with the payload fully drained; channel and
// protocol failures are returned as-is.
func (s *session) receiveFile(ctx context.Context, h proto.FileHeader, pending mapset.Set[string]) error {
	rel, err := manifest.CleanPath(h.Path)
	if err != nil {
		return s.discard(h, err)
	}
	if !pending.Contains(rel) {
		return s.discard(h, ErrNotRequested)
	}
	pending.Remove(rel)
	h.Path = rel
	if !digest.Valid(h.Digest) {
		return s.discard(h, fmt.Errorf("%w: header carries no valid digest", ErrDigestMismatch))
	}

	dest := filepath.Join(s.node.store.Root(), filepath.FromSlash(rel))
	dir := filepath.Dir(dest)
	if err := makeParents(s.node.store.Root(), rel); err != nil {
		return s.discard(h, err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s%s", filepath.Base(dest), uuid.NewString()[:8], manifest.TempSuffix))
	RegisterTmp(tmpPath)
	defer func() {
		DeregisterTmp(tmpPath)
		_ = os.Remove(tmpPath) // no-op once renamed into place
	}()

	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return s.discard(h, err)
	}

	hasher := digest.New()
	var writeErr error
	if err := s.readData(h, func(p []byte) {
		hasher.Write(p) //nolint:errcheck // hash.Hash writes never fail
		if writeErr == nil {
			_, writeErr = tmp.Write(p)
		}
	}); err != nil {
		tmp.Close()
		return err
	}
	if writeErr == nil {
		writeErr = tmp.Sync()
	}
	if closeErr := tmp.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return &TransferError{Path: rel, Err: writeErr}
	}

	if got := digest.Encode(hasher.Sum(nil)); got != h.Digest {
		return &TransferError{Path: rel, Err: fmt.Errorf("%w: got %.12s, want %.12s", ErrDigestMismatch, got, h.Digest)}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		return &TransferError{Path: rel, Err: err}
	}
	rec := h.Record(info.ModTime().UnixNano())
	err = s.node.store.Commit(rec, func() error {
		// A directory may have been swapped for a symlink since the temp
		// file was created.
		if err := makeParents(s.node.store.Root(), rel); err != nil {
			return err
		}
		return os.Rename(tmpPath, dest)
	})
	if err != nil {
		if errors.Is(err, manifest.ErrSave) {
			return err
		}
		return &TransferError{Path: rel, Err: err}
	}

	s.res.Received++
	s.node.stats.AddFilesReceived(1)
	s.emit(event.Event{Type: event.FileReceived, Path: rel, Size: int64(h.Size), Version: h.Version}) //nolint:gosec // G115: bounded by bytes actually received
	s.log.Debug("received file", "path", rel, "version", h.Version, "size", h.Size)
	return nil
}

// readData consumes exactly h.Size bytes of FileData followed by FileEnd,
// handing each chunk to sink.
func (s *session) readData(h proto.FileHeader, sink func([]byte)) error {
	var got uint64
	for {
		f, err := s.conn.Recv()
		if err != nil {
			return err
		}
		switch f.MsgType {
		case proto.MsgFileData:
			got += uint64(len(f.Payload))
			if got > h.Size {
				return fmt.Errorf("%w: %s: more data than the announced %d bytes", proto.ErrMalformed, h.Path, h.Size)
			}
			s.res.BytesReceived += int64(len(f.Payload))
			s.node.stats.AddBytesReceived(int64(len(f.Payload)))
			sink(f.Payload)
		case proto.MsgFileEnd:
			if got != h.Size {
				return fmt.Errorf("%w: %s: received %d of %d bytes", proto.ErrMalformed, h.Path, got, h.Size)
			}
			return nil
		default:
			return fmt.Errorf("%w: %s inside file data", proto.ErrUnexpectedMessage, proto.MsgName(f.MsgType))
		}
	}
}

// discard drains a file the session will not keep.
func (s *session) discard(h proto.FileHeader, cause error) error {
	if err := s.readData(h, func([]byte) {}); err != nil {
		return err
	}
	return &TransferError{Path: h.Path, Err: cause}
}

// makeParents creates the directories above rel inside root one component at
// a time without following symlinks. An existing component that is a symlink
// or not a directory fails with manifest.ErrUnsafePath.
func makeParents(root, rel string) error {
	parts := strings.Split(rel, "/")
	dir := root
	for i, part := range parts[:len(parts)-1] {
		dir = filepath.Join(dir, part)
		info, err := os.Lstat(dir)
		if errors.Is(err, fs.ErrNotExist) {
			err = os.Mkdir(dir, 0o755)
			if err == nil {
				continue
			}
			if errors.Is(err, fs.ErrExist) {
				info, err = os.Lstat(dir)
			}
		}
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", manifest.ErrUnsafePath, path.Join(parts[:i+1]...))
		}
	}
	return nil
}
