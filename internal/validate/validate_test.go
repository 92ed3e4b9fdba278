package validate_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/predictex/core/internal/domain"
	"github.com/predictex/core/internal/validate"
)

var validAddr = "0x1234567890123456789012345678901234567890"

func activeMarket(end time.Time) validate.MarketLookup {
	return func(id string) (domain.Market, bool) {
		if id != "m1" {
			return domain.Market{}, false
		}
		return domain.Market{ID: "m1", Status: domain.MarketActive, EndTime: end}, true
	}
}

func baseReq() validate.Request {
	return validate.Request{
		UserAddress: validAddr,
		MarketID:    "m1",
		Side:        domain.Buy,
		Outcome:     domain.OutcomeYes,
		Price:       decimal.RequireFromString("0.5"),
		Quantity:    10,
	}
}

func TestValidate_OK(t *testing.T) {
	now := time.Now()
	err := validate.Validate(baseReq(), now, activeMarket(now.Add(time.Hour)))
	assert.Nil(t, err)
}

func TestValidate_BadAddress(t *testing.T) {
	req := baseReq()
	req.UserAddress = "not-an-address"
	now := time.Now()
	err := validate.Validate(req, now, activeMarket(now.Add(time.Hour)))
	if assert.NotNil(t, err) {
		assert.Equal(t, domain.KindValidation, err.Kind)
		assert.Equal(t, "userAddress", err.Field)
	}
}

func TestValidate_MarketNotFound(t *testing.T) {
	now := time.Now()
	lookup := func(string) (domain.Market, bool) { return domain.Market{}, false }
	err := validate.Validate(baseReq(), now, lookup)
	if assert.NotNil(t, err) {
		assert.Equal(t, domain.KindMarketNotTradable, err.Kind)
		assert.Equal(t, domain.ReasonNotFound, err.Reason)
	}
}

func TestValidate_MarketResolved(t *testing.T) {
	now := time.Now()
	lookup := func(string) (domain.Market, bool) {
		return domain.Market{ID: "m1", Status: domain.MarketResolved, EndTime: now.Add(time.Hour)}, true
	}
	err := validate.Validate(baseReq(), now, lookup)
	if assert.NotNil(t, err) {
		assert.Equal(t, domain.ReasonResolved, err.Reason)
	}
}

func TestValidate_MarketEnded(t *testing.T) {
	now := time.Now()
	err := validate.Validate(baseReq(), now, activeMarket(now.Add(-time.Millisecond)))
	if assert.NotNil(t, err) {
		assert.Equal(t, domain.ReasonEnded, err.Reason)
	}
}

func TestValidate_PriceBoundaries(t *testing.T) {
	now := time.Now()
	lookup := activeMarket(now.Add(time.Hour))

	for _, p := range []string{"0", "1", "-0.1", "1.1"} {
		req := baseReq()
		req.Price = decimal.RequireFromString(p)
		err := validate.Validate(req, now, lookup)
		if assert.NotNil(t, err, "price %s should fail", p) {
			assert.Equal(t, "price", err.Field)
		}
	}
}

func TestValidate_QuantityBoundaries(t *testing.T) {
	now := time.Now()
	lookup := activeMarket(now.Add(time.Hour))

	for _, q := range []int64{0, -1} {
		req := baseReq()
		req.Quantity = q
		err := validate.Validate(req, now, lookup)
		if assert.NotNil(t, err, "quantity %d should fail", q) {
			assert.Equal(t, "quantity", err.Field)
		}
	}
}
