// Package loginflow orchestrates the multi-step login: credential
// verification, trusted-device recognition, second-factor challenge and
// verification, and session issuance.
//
// A login follows one of three paths:
//
//  1. Second factor disabled: Signin issues the session immediately.
//  2. Trusted device: Signin verifies the presented trust token against
//     the device's fingerprint and geolocation and, when it holds, issues
//     the session without a challenge.
//  3. Challenge: Signin delivers a code (sms/email) or expects an
//     authenticator code, and returns a short-lived pending token. The
//     client resumes with VerifyTwoFA, which checks the code, optionally
//     trusts the device for future logins, and issues the session.
package loginflow
