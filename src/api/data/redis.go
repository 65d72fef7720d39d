package data

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const ticketPrefix = "wsticket:"

func MustRedis(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	return redis.NewClient(opt)
}

// Websocket handshake tickets. Browsers cannot set an Authorization header on
// the upgrade request, so the REST side mints a short-lived ticket bound to
// the authenticated user and the gateway redeems it exactly once.

func SetTicket(ctx context.Context, rdb *redis.Client, ticket string, userID uint64) error {
	return rdb.Set(ctx, ticketPrefix+ticket, userID, 30*time.Second).Err()
}

func RedeemTicket(ctx context.Context, rdb *redis.Client, ticket string) (uint64, error) {
	return rdb.GetDel(ctx, ticketPrefix+ticket).Uint64()
}
