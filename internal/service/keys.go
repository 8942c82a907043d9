package service

import (
	"fmt"
	"strconv"
)

// Cache key layout. Every projection of a user is keyed by one of its
// credentials, so invalidating a user means deleting all keys built from
// the pre-mutation record; the dashboard projection is keyed by api key
// alone and is additionally invalidated by transaction mutations.

func userAPICacheKey(apiKey string) string { return "user:api:" + apiKey }

func userTGCacheKey(telegramID int64) string {
	return "user:tg:" + strconv.FormatInt(telegramID, 10)
}

func userDeviceCacheKey(deviceKey string) string { return "user:device:" + deviceKey }

func dashboardCacheKey(apiKey string) string { return "dashboard:" + apiKey }

func txHintCacheKey(apiKey, trxID string, amountPaisa int64) string {
	return fmt.Sprintf("tx:%s:%s:%d", apiKey, trxID, amountPaisa)
}

func nonceCacheKey(telegramID int64, nonce string) string {
	return fmt.Sprintf("nonce:%d:%s", telegramID, nonce)
}
