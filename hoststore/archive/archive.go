/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package archive recompresses an already-written, lz4-compressed
// snapshot with github.com/ulikunitz/xz for cold storage. It is
// grounded on the "xz"/"xzcat" stream declarations in
// launix-de-memcp/scm/streams.go: the teacher pipes an io.Reader
// through xz.NewWriter via an io.Pipe so compression runs concurrently
// with whatever is consuming the output, rather than buffering the
// whole stream in memory first. Unlike the hot-path lz4 snapshot
// codec used on every compaction by hoststore/file, xz
// trades compression speed for ratio and is meant to run out of band,
// e.g. the playground's "archive" subcommand moving old snapshots to
// cold storage.
package archive

import (
	"bufio"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// CompressXZ wraps src so that reading from the result yields src's
// content recompressed as xz. Compression runs in a background
// goroutine, same as the teacher's "xz" stream combinator.
func CompressXZ(src io.Reader) io.Reader {
	reader, writer := io.Pipe()
	bw := bufio.NewWriterSize(writer, 16*1024)
	zw, err := xz.NewWriter(bw)
	if err != nil {
		writer.CloseWithError(fmt.Errorf("archive: creating xz writer: %w", err))
		return reader
	}
	go func() {
		_, copyErr := io.Copy(zw, src)
		closeErr := zw.Close()
		if copyErr == nil {
			copyErr = closeErr
		}
		if copyErr == nil {
			copyErr = bw.Flush()
		}
		writer.CloseWithError(copyErr)
	}()
	return reader
}

// DecompressXZ wraps an xz-compressed src, yielding its decompressed
// content, mirroring the teacher's "xzcat" stream combinator.
func DecompressXZ(src io.Reader) (io.Reader, error) {
	r, err := xz.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("archive: creating xz reader: %w", err)
	}
	return r, nil
}
