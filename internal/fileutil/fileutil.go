package fileutil

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
)

// ChunkSize bounds how much is copied between cancellation checks.
const ChunkSize = 1 << 20

// CopyContext copies r to w in ChunkSize pieces, checking ctx before each
// read and reporting progress after each write. total may be -1 when
// unknown. It returns the number of bytes written.
func CopyContext(ctx context.Context, w io.Writer, r io.Reader, total int64, progress func(done, total int64)) (int64, error) {
	var done int64
	buf := make([]byte, ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return done, err
			}
			done += int64(n)
			if progress != nil {
				progress(done, total)
			}
		}
		if errors.Is(readErr, io.EOF) {
			return done, nil
		}
		if readErr != nil {
			return done, readErr
		}
	}
}

// CopyVerified copies src to dst, then re-reads dst and compares its size
// and SHA-256 with what was read from src. dst is removed on any failure,
// including cancellation.
func CopyVerified(ctx context.Context, src, dst string, progress func(done, total int64)) (err error) {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	srcHash := sha256.New()
	written, err := CopyContext(ctx, out, io.TeeReader(in, srcHash), info.Size(), progress)
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if written != info.Size() {
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), written)
	}

	dstSum, err := HashFile(dst)
	if err != nil {
		return fmt.Errorf("verify copy: %w", err)
	}
	if !bytes.Equal(srcHash.Sum(nil), dstSum) {
		return errors.New("copy hash mismatch: destination differs from source")
	}
	return nil
}

// HashFile returns the SHA-256 of the file at path.
func HashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
