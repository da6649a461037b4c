// Package device provides device fingerprinting for the auth engine.
//
// A fingerprint is a deterministic SHA-256 digest over the canonical JSON
// serialization of the traits parsed from a client's user agent plus the
// optional screen-resolution, timezone, and language hints the web client
// sends as headers. Native mobile clients can instead supply a stable
// installation ID via the X-Device-ID header, which is hashed directly.
//
// # Basic Usage
//
//	import "github.com/spendlyzer/auth/pkg/device"
//
//	data := device.ExtractFromRequest(r, clientIP)
//	hash := device.Fingerprint(data)
//	name := device.DisplayName(device.ParseUserAgent(data.UserAgent))
//
// The digest feeds the trusted-device checks in pkg/trusteddevice; a digest
// change between visits is treated as a different device.
package device
