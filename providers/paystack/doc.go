// Package paystack integrates with the Paystack API: transaction
// initialization, transaction verification, and the webhook signature
// scheme (HMAC-SHA512 over the raw body, hex-encoded in the
// X-Paystack-Signature header).
package paystack
