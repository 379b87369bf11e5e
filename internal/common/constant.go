package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// service access token on inbound fulfillment calls.
const AccessTokenHeaderName = "access_token"

// DownloadTokenBytes is the amount of random bytes behind every download token.
const DownloadTokenBytes = 32
