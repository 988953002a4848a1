package flagdeck

const version = "0.4.0"

// configFileName identifies the config document revision on the CDN.
// It is also part of the shared cache key contract, so changing it
// invalidates caches written by every SDK implementation.
const configFileName = "config_v6.json"

// cacheKeyPrefix is kept as "python_" for compatibility with caches
// written by the reference SDK implementation. The cache key must stay
// bit-for-bit identical across implementations sharing a cache.
const cacheKeyPrefix = "python_"
