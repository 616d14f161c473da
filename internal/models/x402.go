package models

import "time"

// X402MaxPaymentUSD is a hard sanity cap on a single machine-to-machine
// payment (1M USD in 6-decimal units).
const X402MaxPaymentUSD = 1_000_000_000_000

// X402PaymentRequest is the parsed payment demand from an HTTP 402 response.
// The agent settles it on the ledger and retries the call with the receipt.
type X402PaymentRequest struct {
	Recipient string    `json:"recipient"`
	AmountUSD uint64    `json:"amountUsd"`
	Asset     string    `json:"asset"`
	PaymentID string    `json:"paymentId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Valid reports whether the request can still be honored at the given time.
func (r *X402PaymentRequest) Valid(now time.Time) bool {
	if r.AmountUSD == 0 || r.AmountUSD >= X402MaxPaymentUSD {
		return false
	}
	return now.Before(r.ExpiresAt)
}

// X402Payment is a settled payment receipt.
type X402Payment struct {
	ID        int64     `json:"id"`
	Owner     string    `json:"owner"`
	Recipient string    `json:"recipient"`
	AmountUSD uint64    `json:"amountUsd"`
	PaymentID string    `json:"paymentId"`
	Borrowed  bool      `json:"borrowed"`
	PaidAt    time.Time `json:"paidAt"`
}
