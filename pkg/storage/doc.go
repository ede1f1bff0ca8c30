// Package storage builds the shared Redis client used by the session store
// and the rate-limit counters.
//
// # Overview
//
// Redis is the only external store this service talks to, and it is optional:
// with no address configured the session and quota packages fall back to
// their in-memory backends. When an address is configured, NewRedisClient
// verifies connectivity at startup so a misconfigured deployment fails
// immediately instead of on the first request.
//
// # Usage Example
//
//	client, err := storage.NewRedisClient(cfg.Redis)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	storage.InstrumentMetrics(client, metrics)
//
//	sessions := session.NewRedisStore(client, cfg.Redis.KeyPrefix)
//	counter := quota.NewRedisCounter(client, cfg.Redis.KeyPrefix)
//
// # Related Packages
//
//   - pkg/session: Redis-backed session store
//   - pkg/quota: Redis-backed rate counters
//   - pkg/observability: Health checks ping the same client; InstrumentMetrics
//     feeds its Redis command counters
package storage
