package billing_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinytb/web3.storage/domain/billing"
)

func newValidator() *billing.Validator {
	return billing.NewValidator(billing.NewPriceCatalog(billing.DefaultStoragePrices()...))
}

func price(p string) *billing.StorageChange {
	return &billing.StorageChange{Desired: &billing.StorageSubscription{Price: p}}
}

func TestValidator_Accepts(t *testing.T) {
	v := newValidator()

	tests := []struct {
		name string
		u    billing.SettingsUpdate
	}{
		{"empty update", billing.SettingsUpdate{}},
		{"method only", billing.SettingsUpdate{PaymentMethod: &billing.PaymentMethod{ID: "pm_1"}}},
		{"cancel", billing.SettingsUpdate{Storage: &billing.StorageChange{}}},
		{"lite", billing.SettingsUpdate{PaymentMethod: &billing.PaymentMethod{ID: "pm_1"}, Storage: price("lite")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, v.Validate(tt.u))
		})
	}
}

func TestValidator_Rejects(t *testing.T) {
	v := newValidator()

	tests := []struct {
		name      string
		u         billing.SettingsUpdate
		wantField string
		wantIn    string
	}{
		{
			name:      "disallowed price",
			u:         billing.SettingsUpdate{Storage: price("disallowed")},
			wantField: "subscription.storage.price",
			wantIn:    "not an allowed price",
		},
		{
			name:      "empty price",
			u:         billing.SettingsUpdate{Storage: price("")},
			wantField: "subscription.storage.price",
			wantIn:    "required",
		},
		{
			name:      "empty method id",
			u:         billing.SettingsUpdate{PaymentMethod: &billing.PaymentMethod{}},
			wantField: "paymentMethod.id",
			wantIn:    "required",
		},
		{
			name:      "method id too long",
			u:         billing.SettingsUpdate{PaymentMethod: &billing.PaymentMethod{ID: strings.Repeat("x", 256)}},
			wantField: "paymentMethod.id",
			wantIn:    "at most 255",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.u)
			require.Error(t, err)

			var ve *billing.ValidationError
			require.True(t, errors.As(err, &ve))
			require.Len(t, ve.Fields, 1)
			assert.Equal(t, tt.wantField, ve.Fields[0].Field)
			assert.Contains(t, ve.Fields[0].Reason, tt.wantIn)
		})
	}
}

func TestValidator_AlternateCatalog(t *testing.T) {
	v := billing.NewValidator(billing.NewPriceCatalog(billing.Price{Name: "enterprise"}))

	assert.NoError(t, v.Validate(billing.SettingsUpdate{Storage: price("enterprise")}))
	assert.Error(t, v.Validate(billing.SettingsUpdate{Storage: price("lite")}))
	assert.Equal(t, []string{"enterprise"}, v.Catalog().Names())
}

func TestValidator_ReportsAllFields(t *testing.T) {
	err := newValidator().Validate(billing.SettingsUpdate{
		PaymentMethod: &billing.PaymentMethod{},
		Storage:       price("gold"),
	})

	var ve *billing.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Fields, 2)
	assert.Contains(t, err.Error(), "paymentMethod.id")
	assert.Contains(t, err.Error(), "subscription.storage.price")
}

func TestValidationError_Message(t *testing.T) {
	assert.Equal(t, "invalid payment settings", (&billing.ValidationError{}).Error())
	assert.Equal(t, "invalid payment settings: paymentMethod: bad",
		billing.NewValidationError("paymentMethod", "bad").Error())
}
