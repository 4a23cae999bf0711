package dto

import (
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var maxPrice = decimal.New(1, 10)

// NewValidator returns a validator with the marketplace's custom rules
// registered: `price` for decimal amounts and the struct level checks of
// handover and trade offer payloads.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("json")
		for i := 0; i < len(name); i++ {
			if name[i] == ',' {
				name = name[:i]
				break
			}
		}
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("price", validatePrice)
	v.RegisterStructValidation(validateHandoverParent, CreateHandoverRequest{})
	v.RegisterStructValidation(validateTradeItems, CreateTradeOfferRequest{})
	return v
}

// validatePrice accepts positive amounts below 10^10 with at most two
// decimals. Decimals reach it as strings through the custom type func.
func validatePrice(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	if !d.IsPositive() || d.GreaterThanOrEqual(maxPrice) {
		return false
	}
	return d.Equal(d.Truncate(2))
}

func validateHandoverParent(sl validator.StructLevel) {
	req := sl.Current().Interface().(CreateHandoverRequest)
	if req.HasListing() == req.HasTradeOffer() {
		sl.ReportError(req.ListingID, "listingId", "ListingID", "xor_tradeOfferId", "")
	}
}

func validateTradeItems(sl validator.StructLevel) {
	req := sl.Current().Interface().(CreateTradeOfferRequest)
	if len(req.OfferedItems) == 0 && len(req.RequestedItems) == 0 {
		sl.ReportError(req.OfferedItems, "offeredItems", "OfferedItems", "required_without_all", "")
	}
}
