package graphql

import (
	"encoding/json"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/blake3"
)

type cacheKey [32]byte

// responseCache holds the "data" member of successful query responses.
type responseCache struct {
	entries *lru.Cache[cacheKey, json.RawMessage]
}

func newResponseCache(size int) (*responseCache, error) {
	entries, err := lru.New[cacheKey, json.RawMessage](size)
	if err != nil {
		return nil, err
	}
	return &responseCache{entries: entries}, nil
}

// key digests everything that can change a response. Variables are
// marshalled from a map, so encoding/json orders their keys.
func (c *responseCache) key(req Request, token string) (cacheKey, error) {
	vars, err := json.Marshal(req.Variables)
	if err != nil {
		return cacheKey{}, err
	}

	h := blake3.New()
	_, _ = h.Write([]byte(req.Query))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(vars)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(token))

	var k cacheKey
	copy(k[:], h.Sum(nil))
	return k, nil
}

func (c *responseCache) get(k cacheKey) (json.RawMessage, bool) {
	return c.entries.Get(k)
}

func (c *responseCache) add(k cacheKey, data json.RawMessage) {
	c.entries.Add(k, data)
}

func (c *responseCache) purge() {
	c.entries.Purge()
}

func (c *responseCache) len() int {
	return c.entries.Len()
}
