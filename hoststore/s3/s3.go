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

// Package s3 is an S3-backed durable.LogStorage, grounded on
// launix-de-memcp's S3Storage/S3Logfile (persistence-s3.go). S3 has no
// append operation, so exactly as the teacher's S3Logfile buffers
// writes and read-modify-writes the object back out on flush, this
// backend keeps one "<key>.log" object per activation key and
// rewrites it in full on every AppendEntry; unlike the teacher it does
// not roll the log into multiple segments, since a durable.StateMachine
// log is expected to stay small between snapshots (AppendSnapshot
// replaces it with a single "<key>.snap" object, just as the teacher's
// compaction replaces a shard's log segments with a fresh schema dump).
package s3

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/launix-de/durablestatemachines/durable"
)

// Config names the bucket and, optionally, static credentials and a
// custom endpoint for S3-compatible object stores (e.g. MinIO).
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string
	Bucket          string
	Prefix          string
	ForcePathStyle  bool
}

// Store is a durable.LogStorage backed by one object-store bucket.
type Store struct {
	cfg Config

	mu     sync.Mutex
	client *s3.Client
}

// New returns a Store for cfg. The underlying S3 client is created
// lazily, on first use, exactly as the teacher's ensureOpen does.
func New(cfg Config) *Store {
	return &Store{cfg: cfg}
}

func (s *Store) ensureClient(ctx context.Context) (*s3.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	var opts []func(*config.LoadOptions) error
	if s.cfg.Region != "" {
		opts = append(opts, config.WithRegion(s.cfg.Region))
	}
	if s.cfg.AccessKeyID != "" && s.cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.AccessKeyID, s.cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: loading AWS config: %v", durable.ErrStorageFailure, err)
	}

	var s3Opts []func(*s3.Options)
	if s.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(s.cfg.Endpoint) })
	}
	if s.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	s.client = s3.NewFromConfig(awsCfg, s3Opts...)
	return s.client, nil
}

func (s *Store) objectKey(key, suffix string) string {
	if s.cfg.Prefix == "" {
		return key + suffix
	}
	return s.cfg.Prefix + "/" + key + suffix
}

func (s *Store) getObject(ctx context.Context, objKey string) ([]byte, bool, error) {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return nil, false, err
	}
	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		return nil, false, nil // treated as absent; S3 SDK has no portable NotFound check across providers
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("%w: reading %q: %v", durable.ErrStorageFailure, objKey, err)
	}
	return data, true, nil
}

func (s *Store) putObject(ctx context.Context, objKey string, data []byte) error {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return err
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(objKey),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("%w: writing %q: %v", durable.ErrStorageFailure, objKey, err)
	}
	return nil
}

func (s *Store) deleteObject(ctx context.Context, objKey string) error {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return err
	}
	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		return fmt.Errorf("%w: deleting %q: %v", durable.ErrStorageFailure, objKey, err)
	}
	return nil
}

func encodeFrames(entries [][]byte) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(e)))
		buf.Write(lenBuf[:])
		buf.Write(e)
	}
	return buf.Bytes()
}

func decodeFrames(data []byte) ([][]byte, error) {
	var out [][]byte
	i := 0
	for i < len(data) {
		if i+4 > len(data) {
			return nil, fmt.Errorf("truncated frame header at offset %d", i)
		}
		n := int(binary.BigEndian.Uint32(data[i : i+4]))
		i += 4
		if i+n > len(data) {
			return nil, fmt.Errorf("truncated frame body at offset %d", i)
		}
		out = append(out, data[i:i+n])
		i += n
	}
	return out, nil
}

// Replay implements durable.LogStorage.
func (s *Store) Replay(key string) ([][]byte, error) {
	ctx := context.Background()
	var out [][]byte

	if data, ok, err := s.getObject(ctx, s.objectKey(key, ".snap")); err != nil {
		return nil, err
	} else if ok {
		out = append(out, data)
	}

	data, ok, err := s.getObject(ctx, s.objectKey(key, ".log"))
	if err != nil {
		return nil, err
	}
	if !ok {
		return out, nil
	}
	entries, err := decodeFrames(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding log for %q: %v", durable.ErrStorageFailure, key, err)
	}
	return append(out, entries...), nil
}

// AppendEntry implements durable.LogStorage. S3 has no append, so the
// whole log object is read, the new entry framed on, and the result
// written back, matching the teacher's S3Logfile read-modify-write.
func (s *Store) AppendEntry(key string, entry []byte) error {
	ctx := context.Background()
	objKey := s.objectKey(key, ".log")
	existing, _, err := s.getObject(ctx, objKey)
	if err != nil {
		return err
	}
	return s.putObject(ctx, objKey, append(existing, encodeFrames([][]byte{entry})...))
}

// AppendSnapshot implements durable.LogStorage: it writes a fresh
// snapshot object and deletes the log object, since the snapshot now
// subsumes every entry replayed from it.
func (s *Store) AppendSnapshot(key string, entry []byte) error {
	ctx := context.Background()
	if err := s.putObject(ctx, s.objectKey(key, ".snap"), entry); err != nil {
		return err
	}
	return s.deleteObject(ctx, s.objectKey(key, ".log"))
}
