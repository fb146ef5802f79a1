// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// pdf.go provides a Valkey-backed cache of compiled PDFs keyed by the
// SHA-256 of the final document source. Identical input always compiles
// to the same document, so entries never need explicit invalidation; they
// simply expire.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// pdfKeyPrefix is the Valkey key prefix for cached PDFs.
	pdfKeyPrefix = "pdf:"

	// DefaultPDFTTL is how long a compiled PDF stays cached.
	DefaultPDFTTL = 10 * time.Minute
)

// PDFCache stores compiled PDFs in Valkey.
type PDFCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPDFCache creates a PDF cache backed by the given Valkey client.
func NewPDFCache(client *redis.Client, ttl time.Duration) *PDFCache {
	if ttl <= 0 {
		ttl = DefaultPDFTTL
	}
	return &PDFCache{client: client, ttl: ttl}
}

// Key returns the cache key for a final document source.
func Key(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached PDF for key. Errors are logged and reported as a miss.
func (c *PDFCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, pdfKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		slog.Warn("pdf cache get error", "key", key, "error", err)
		return nil, false
	}
	slog.Debug("pdf cache hit", "key", key)
	return val, true
}

// Set stores a compiled PDF under key with the configured TTL.
func (c *PDFCache) Set(ctx context.Context, key string, pdf []byte) {
	if err := c.client.Set(ctx, pdfKeyPrefix+key, pdf, c.ttl).Err(); err != nil {
		slog.Warn("pdf cache set error", "key", key, "error", err)
	}
}
