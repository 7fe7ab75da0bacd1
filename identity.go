package main

import (
	"context"
	"encoding/json"
	"time"

	"zap-server/internal/cache"
	"zap-server/internal/lnurl"
	"zap-server/internal/util"
)

// payInfoTTL bounds how long a resolved pay endpoint is reused. LNURL
// services rotate callbacks and limits rarely, but min/max changes must be
// picked up within minutes.
const payInfoTTL = 5 * time.Minute

// ProfileIdentityResolver implements zaps.IdentityResolver by looking up the
// recipient's kind 0 profile on the relays and resolving its lud16/lud06
// address through LNURL-pay. Successful resolutions are cached briefly so
// repeated zaps to the same recipient skip the profile and endpoint fetches.
type ProfileIdentityResolver struct {
	fetcher *RelayFetcher
	cache   cache.Backend
}

// cachedIdentity is the cache document for one resolved recipient.
type cachedIdentity struct {
	Info    *lnurl.PayInfo `json:"info"`
	Address string         `json:"address"`
}

// NewProfileIdentityResolver creates a resolver on top of the relay fetcher.
func NewProfileIdentityResolver(fetcher *RelayFetcher, c cache.Backend) *ProfileIdentityResolver {
	return &ProfileIdentityResolver{fetcher: fetcher, cache: c}
}

// Resolve fetches the profile and resolves the tip address. A recipient
// without a profile or without a lightning address yields
// lnurl.ErrNoLightningAddress; a configured address that cannot be fetched
// yields the underlying error. Failures are never cached.
func (r *ProfileIdentityResolver) Resolve(ctx context.Context, pubkey string) (*lnurl.PayInfo, string, error) {
	cacheKey := "payinfo:" + pubkey
	if data, found, err := r.cache.Get(ctx, cacheKey); err == nil && found {
		var cached cachedIdentity
		if err := json.Unmarshal(data, &cached); err == nil && cached.Info != nil {
			LoggerFromContext(ctx).Debug("pay info cache hit", "pubkey", util.ShortID(pubkey))
			return cached.Info, cached.Address, nil
		}
	}

	profile := r.fetcher.FetchProfile(ctx, pubkey)
	if !profile.HasLightningAddress() {
		return nil, "", lnurl.ErrNoLightningAddress
	}

	info, address, err := lnurl.ResolveAddress(ctx, profile.Lud16, profile.Lud06)
	if err != nil {
		return nil, address, err
	}

	if data, err := json.Marshal(cachedIdentity{Info: info, Address: address}); err == nil {
		r.cache.Set(ctx, cacheKey, data, payInfoTTL)
	}
	return info, address, nil
}
