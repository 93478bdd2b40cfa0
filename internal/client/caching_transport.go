package client

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
)

const publicPartition = "public"

// NewCachingTransport wraps base with an RFC 7234 response cache. Responses are
// kept on disk under cacheDir, or in memory when cacheDir is empty.
//
// The cache is partitioned by the Authorization header, so a response is only
// served back to the credential that fetched it. Cache hits carry the
// X-From-Cache header.
func NewCachingTransport(base http.RoundTripper, cacheDir string) http.RoundTripper {
	return &cachingTransport{
		base:       base,
		dir:        cacheDir,
		partitions: make(map[string]*httpcache.Transport),
	}
}

type cachingTransport struct {
	base http.RoundTripper
	dir  string

	mu         sync.Mutex
	partitions map[string]*httpcache.Transport
}

func (t *cachingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.partition(req.Header.Get("Authorization")).RoundTrip(req)
}

func (t *cachingTransport) partition(credential string) *httpcache.Transport {
	key := partitionKey(credential)

	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.partitions[key]; ok {
		return p
	}

	var cache httpcache.Cache = httpcache.NewMemoryCache()
	if t.dir != "" {
		cache = diskcache.New(filepath.Join(t.dir, key))
	}

	p := httpcache.NewTransport(cache)
	p.Transport = t.base
	t.partitions[key] = p
	return p
}

// partitionKey names the cache partition of a credential without keeping the
// credential itself, which also ends up in the disk cache path.
func partitionKey(credential string) string {
	if credential == "" {
		return publicPartition
	}
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:16])
}
