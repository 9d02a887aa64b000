package auth

import "context"

// CachingResolver resolves a batch's credential through Store, falling
// back to the last cached value (if any) when Store can't reach the
// OAuth table or the INI file, and refreshing the cache on every
// successful resolution.
type CachingResolver struct {
	store *Store
	cache *Cache
}

// NewCachingResolver composes store and cache into one resolver. cache may
// be nil, in which case this behaves exactly like calling store.Resolve.
func NewCachingResolver(store *Store, cache *Cache) *CachingResolver {
	return &CachingResolver{store: store, cache: cache}
}

// Resolve returns store's credential for batchID, or the cached one if
// store fails and a cached entry still exists.
func (r *CachingResolver) Resolve(ctx context.Context, batchID int64) (*BotCredential, error) {
	cred, err := r.store.Resolve(ctx, batchID)
	if err == nil {
		if r.cache != nil {
			_ = r.cache.Put(batchID, cred)
		}
		return cred, nil
	}
	if r.cache != nil {
		if cached, ok := r.cache.Get(batchID); ok {
			return cached, nil
		}
	}
	return nil, err
}
