package model

import "time"

// User represents an application user record as stored in the
// `users` table. A user is the anchor for all credentials: the
// telegram id identifies them externally, the api key authenticates
// verify/dashboard calls, and the device key doubles as both the
// login credential and the HMAC signing secret for the signed
// request protocol. Both keys are opaque random values and are
// never reused after rotation.
//
// Fields:
//  ID              – primary key identifier of the user.
//  TelegramID      – unique external identity.
//  Name            – optional display name.
//  Email           – optional email address.
//  APIKey          – unique merchant credential ("API_" + 40 hex chars).
//  DeviceKey       – unique device credential / HMAC secret ("DEV_" + 32 hex chars).
//  IsActive        – whether the account is active.
//  SubscriptionEnd – when the subscription lapses (nil = no limit).
//  CreatedAt       – timestamp of creation.
//  UpdatedAt       – timestamp of last update.
//
// The json tags define the shape cached in Redis under the
// user:api:/user:tg:/user:device: projections, so a cached user and
// a freshly loaded one decode identically.
type User struct {
	ID              uint64     `json:"-"`
	TelegramID      int64      `json:"telegram_id"`
	Name            *string    `json:"name"`
	Email           *string    `json:"email"`
	APIKey          string     `json:"api_key"`
	DeviceKey       string     `json:"device_key"`
	IsActive        bool       `json:"is_active"`
	SubscriptionEnd *time.Time `json:"subscription_end"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
