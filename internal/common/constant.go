// Package common contains shared constants and sentinel errors used across
// Converse components.
package common

// AuthorizationHeaderName is the HTTP header carrying the bearer access token
// on authenticated requests.
const AuthorizationHeaderName = "Authorization"

// BearerSchemePrefix is the expected prefix of the Authorization header value.
const BearerSchemePrefix = "Bearer "

// NewSessionID is the sentinel session identifier a client sends to start a
// fresh conversation. A real session id is minted only once the first turn
// completes.
const NewSessionID = "new"
