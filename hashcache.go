package websocket

import (
	"sync"

	"github.com/minio/highwayhash"
)

// extensionNegotiationKey is a fixed, never-secret key used only to key the
// highwayhash used for memoizing repeated extension offers; highwayhash
// requires a 32-byte key even when used as a plain non-adversarial hash.
var extensionNegotiationKey = make([]byte, 32)

// negotiationCache memoizes the parsed offers negotiateExtensions works
// from, keyed by a highwayhash of the raw Sec-WebSocket-Extensions
// response lines. A client
// that reconnects repeatedly against the same server with the same
// Config.Extensions set re-parses and re-negotiates an identical offer
// every time; hashing the raw header value lets Connect skip that parse
// when nothing has changed. Only the *parse* is cached — each reconnect
// still gets its own ClientExtension instances via the builder's Negotiate,
// since those carry per-connection deflate window state.
type negotiationCache struct {
	mu    sync.Mutex
	seen  map[uint64][]ExtensionOffer
}

func newNegotiationCache() *negotiationCache {
	return &negotiationCache{seen: make(map[uint64][]ExtensionOffer)}
}

func (c *negotiationCache) parsedOffers(headerValues []string) ([]ExtensionOffer, error) {
	key := hashHeaderValues(headerValues)

	c.mu.Lock()
	if offers, ok := c.seen[key]; ok {
		c.mu.Unlock()
		return offers, nil
	}
	c.mu.Unlock()

	offers, err := parseExtensionHeader(headerValues)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.seen[key] = offers
	c.mu.Unlock()
	return offers, nil
}

func hashHeaderValues(values []string) uint64 {
	h, _ := highwayhash.New64(extensionNegotiationKey)
	for _, v := range values {
		h.Write([]byte(v))
		h.Write([]byte{0})
	}
	return h.Sum64()
}
