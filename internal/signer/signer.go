// Package signer implements the ReceiptSigner of spec §4.7: every
// executed order gets a deterministic, canonical encoding and a
// detached ECDSA signature over its keccak256 hash, produced with
// github.com/ethereum/go-ethereum/crypto the same way
// 0xtitan6-polymarket-mm/internal/exchange's Auth signs trading
// payloads with the node's own private key.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/predictex/core/internal/domain"
)

// Receipt is the canonical record of an order submission, covering both
// the resting/filled order and every trade it produced.
type Receipt struct {
	OrderID        string
	MarketID       string
	UserAddress    string
	Outcome        domain.Outcome
	Side           domain.Side
	Price          decimal.Decimal
	Quantity       int64
	FilledQuantity int64
	Status         domain.OrderStatus
	TradeIDs       []string
	Trades         []domain.Trade
	Timestamp      time.Time
}

// Signed pairs a Receipt with the signer's address and signature.
type Signed struct {
	Receipt
	SignerAddress string
	Signature     string // 0x-prefixed hex, 65 bytes (r || s || v)
}

// Signer holds the exchange's signing key and produces Signed receipts.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// New builds a Signer from a hex-encoded private key (the
// SIGNING_PRIVATE_KEY configuration value of spec §6), with or without
// a leading "0x".
func New(privateKeyHex string) (*Signer, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("signer: parse private key: %w", err)
	}
	return &Signer{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the signer's Ethereum address, surfaced to clients so
// they can verify a receipt against it.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign canonicalizes r and returns a Signed receipt. Signature failures
// are SigningFailure errors (spec §4.8/§7): the underlying order is
// already committed, so callers must return the order state alongside
// the error rather than rolling anything back.
func (s *Signer) Sign(r Receipt) (Signed, error) {
	hash := crypto.Keccak256(canonicalize(r))

	sig, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return Signed{}, domain.SigningFailure(fmt.Errorf("signer: sign receipt: %w", err))
	}
	if sig[64] < 27 {
		sig[64] += 27
	}

	return Signed{
		Receipt:       r,
		SignerAddress: s.address.Hex(),
		Signature:     "0x" + common.Bytes2Hex(sig),
	}, nil
}

// canonicalize renders r as a fixed-order byte string: each field is
// emitted in a constant position with integers as decimal strings,
// prices at 8 fractional digits, and timestamps as RFC3339 in UTC, so
// two receipts describing the same fact always hash identically.
func canonicalize(r Receipt) []byte {
	var b strings.Builder
	b.WriteString("order_id=")
	b.WriteString(r.OrderID)
	b.WriteString("|market_id=")
	b.WriteString(r.MarketID)
	b.WriteString("|user_address=")
	b.WriteString(strings.ToLower(r.UserAddress))
	b.WriteString("|outcome=")
	b.WriteString(string(r.Outcome))
	b.WriteString("|side=")
	b.WriteString(string(r.Side))
	b.WriteString("|price=")
	b.WriteString(r.Price.StringFixed(8))
	b.WriteString("|quantity=")
	b.WriteString(strconv.FormatInt(r.Quantity, 10))
	b.WriteString("|filled_quantity=")
	b.WriteString(strconv.FormatInt(r.FilledQuantity, 10))
	b.WriteString("|status=")
	b.WriteString(string(r.Status))
	b.WriteString("|trade_ids=")
	b.WriteString(strings.Join(r.TradeIDs, ","))
	b.WriteString("|timestamp=")
	b.WriteString(r.Timestamp.UTC().Format(time.RFC3339Nano))
	return []byte(b.String())
}
