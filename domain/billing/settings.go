// Package billing provides payment settings value types and pure functions.
package billing

import (
	"encoding/json"
	"time"
)

// CardObjectType identifies the card schema in serialized payment methods.
const CardObjectType = "https://stripe.com/docs/api/cards/object"

// User is an authenticated caller. It is established by the auth layer and
// passed explicitly to every settings operation.
type User struct {
	ID     string
	Issuer string
}

// Customer is the billing-side record corresponding one-to-one with a user.
type Customer struct {
	ID        string
	UserID    string
	CreatedAt time.Time
}

// PaymentSettings is the composed view of a user's billing state.
type PaymentSettings struct {
	PaymentMethod *PaymentMethod `json:"paymentMethod"`
	Subscription  Subscription   `json:"subscription"`
}

// Subscription groups subscription tiers by product.
type Subscription struct {
	Storage *StorageSubscription `json:"storage"`
}

// StorageSubscription selects a storage price from the catalog.
// A nil *StorageSubscription means no paid storage subscription.
type StorageSubscription struct {
	Price string `json:"price" validate:"required,storage_price"`
}

// PaymentMethod is a tokenized reference to a stored payment instrument.
// Card is populated on reads when the processor reports card detail.
type PaymentMethod struct {
	ID   string `json:"id" validate:"required,max=255"`
	Card *Card  `json:"card,omitempty" validate:"-"`
}

// Card is processor-reported card detail. It is passed through untouched.
type Card struct {
	Brand    string
	Last4    string
	ExpMonth int64
	ExpYear  int64
}

type cardJSON struct {
	Type     string `json:"@type"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"exp_month"`
	ExpYear  int64  `json:"exp_year"`
}

// MarshalJSON implements json.Marshaler.
func (c Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(cardJSON{
		Type:     CardObjectType,
		Brand:    c.Brand,
		Last4:    c.Last4,
		ExpMonth: c.ExpMonth,
		ExpYear:  c.ExpYear,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Card) UnmarshalJSON(data []byte) error {
	var raw cardJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Card{
		Brand:    raw.Brand,
		Last4:    raw.Last4,
		ExpMonth: raw.ExpMonth,
		ExpYear:  raw.ExpYear,
	}
	return nil
}

// EmptySettings returns the settings of a user with no billing history.
func EmptySettings() PaymentSettings {
	return PaymentSettings{}
}

// SettingsUpdate is a desired change to a user's payment settings.
// Nil fields are left untouched.
type SettingsUpdate struct {
	PaymentMethod *PaymentMethod `validate:"omitempty"`
	Storage       *StorageChange `validate:"omitempty"`
}

// StorageChange replaces the storage subscription.
// A nil Desired cancels it.
type StorageChange struct {
	Desired *StorageSubscription `validate:"omitempty"`
}

// Cancels reports whether the change removes the storage subscription.
func (c StorageChange) Cancels() bool {
	return c.Desired == nil
}

// PriceOrNil returns the desired price, or nil when the change cancels.
func (c StorageChange) PriceOrNil() *string {
	if c.Desired == nil {
		return nil
	}
	p := c.Desired.Price
	return &p
}

// UpdateFromSettings builds an update that applies a full settings document.
// The storage subscription is always treated as supplied.
func UpdateFromSettings(s PaymentSettings) SettingsUpdate {
	u := SettingsUpdate{Storage: &StorageChange{}}
	if s.PaymentMethod != nil {
		u.PaymentMethod = &PaymentMethod{ID: s.PaymentMethod.ID}
	}
	if s.Subscription.Storage != nil {
		u.Storage.Desired = &StorageSubscription{Price: s.Subscription.Storage.Price}
	}
	return u
}
