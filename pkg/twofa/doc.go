// Package twofa implements second-factor authentication: authenticator
// app (TOTP), sms and email delivered codes, and single-use backup codes.
package twofa
