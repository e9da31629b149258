// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sink writes exported graph documents to a destination: a local
// directory or a Google Cloud Storage bucket.
package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

var (
	// ErrInvalidURI is returned for destinations that cannot be parsed.
	ErrInvalidURI = errors.New("invalid sink uri")

	// ErrInvalidName is returned for object names that would escape the
	// destination.
	ErrInvalidName = errors.New("invalid object name")
)

// Sink stores named documents.
type Sink interface {
	// Write stores data under name and returns where it landed.
	Write(ctx context.Context, name, contentType string, data []byte) (string, error)
	Close() error
}

// Options configures Open.
type Options struct {
	// CredentialsFile is a service account key for GCS. Empty uses
	// application default credentials.
	CredentialsFile string

	// ClientOptions are appended to the GCS client options.
	ClientOptions []option.ClientOption
}

// Open returns the sink for uri: "gs://bucket[/prefix]" for GCS, and a
// plain path or "file://path" for a local directory.
func Open(ctx context.Context, uri string, opts Options) (Sink, error) {
	switch {
	case strings.HasPrefix(uri, "gs://"):
		bucket, prefix, err := ParseGCSURI(uri)
		if err != nil {
			return nil, err
		}
		clientOpts := append([]option.ClientOption(nil), opts.ClientOptions...)
		if opts.CredentialsFile != "" {
			if _, err := os.Stat(opts.CredentialsFile); err != nil {
				return nil, fmt.Errorf("service account key %s: %w", opts.CredentialsFile, err)
			}
			clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
		}
		client, err := storage.NewClient(ctx, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("create GCS client: %w", err)
		}
		return NewGCSSink(client, bucket, prefix), nil

	case strings.HasPrefix(uri, "file://"):
		return NewFileSink(strings.TrimPrefix(uri, "file://"))

	case strings.Contains(uri, "://"):
		return nil, fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidURI, uri)

	default:
		return NewFileSink(uri)
	}
}

// ParseGCSURI splits "gs://bucket/a/b" into ("bucket", "a/b").
func ParseGCSURI(uri string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not a gs:// uri", ErrInvalidURI, uri)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%w: %q has no bucket", ErrInvalidURI, uri)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

func checkName(name string) error {
	if name == "" || strings.Contains(name, "..") || strings.HasPrefix(name, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// FileSink writes documents into a local directory.
type FileSink struct {
	dir string
}

// NewFileSink creates dir if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty directory", ErrInvalidURI)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create sink directory %s: %w", dir, err)
	}
	return &FileSink{dir: dir}, nil
}

// Write implements Sink. contentType is ignored.
func (s *FileSink) Write(_ context.Context, name, _ string, data []byte) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	p := filepath.Join(s.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return "", err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", p, err)
	}
	return p, nil
}

// Close implements Sink.
func (s *FileSink) Close() error { return nil }

// GCSSink uploads documents as objects under bucket/prefix.
type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSSink wraps client. The sink owns the client and closes it.
func NewGCSSink(client *storage.Client, bucket, prefix string) *GCSSink {
	return &GCSSink{client: client, bucket: bucket, prefix: prefix}
}

// ObjectName returns the object path for name.
func (s *GCSSink) ObjectName(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Write implements Sink.
func (s *GCSSink) Write(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	object := s.ObjectName(name)

	w := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "no-cache"
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload gs://%s/%s: %w", s.bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize gs://%s/%s: %w", s.bucket, object, err)
	}
	return "gs://" + s.bucket + "/" + object, nil
}

// Close closes the storage client.
func (s *GCSSink) Close() error {
	return s.client.Close()
}
