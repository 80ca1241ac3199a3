package common

// AuthorizationHeaderName carries the caller's bearer JWT.
const AuthorizationHeaderName = "Authorization"

// StreamSessionCookieName is the cookie holding a stream-session token for
// range playback.
const StreamSessionCookieName = "video-access-token"

// DeviceIDHeaderName identifies the caller's device when a stream session is
// issued.
const DeviceIDHeaderName = "X-Device-ID"
