package core

import (
	"github.com/alicebob/miniredis/v2"
)

// newTestRedisClient spins up an in-process miniredis instance and wraps it
// in a RedisClient on the given logical DB, for tests that need a real
// go-redis client without a live Redis deployment.
func newTestRedisClient(db int, namespace string) (*RedisClient, *miniredis.Miniredis, error) {
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}

	client, err := NewRedisClient(RedisClientOptions{
		RedisURL:  "redis://" + mr.Addr(),
		DB:        db,
		Namespace: namespace,
	})
	if err != nil {
		mr.Close()
		return nil, nil, err
	}

	return client, mr, nil
}
