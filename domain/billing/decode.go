package billing

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

type updateDocument struct {
	PaymentMethod json.RawMessage  `json:"paymentMethod"`
	Subscription  *subscriptionDoc `json:"subscription"`
}

type subscriptionDoc struct {
	Storage json.RawMessage `json:"storage"`
}

var jsonNull = []byte("null")

// DecodeSettingsUpdate parses a PaymentSettings document into an update.
//
// An absent or null paymentMethod leaves the payment method untouched.
// An absent subscription.storage leaves the subscription untouched; an
// explicit null cancels it. Unknown fields and trailing data are rejected.
// All failures are *ValidationError.
func DecodeSettingsUpdate(r io.Reader) (SettingsUpdate, error) {
	var doc updateDocument
	if err := decodeStrict(r, &doc); err != nil {
		return SettingsUpdate{}, NewValidationError("", "malformed payment settings: "+err.Error())
	}

	var u SettingsUpdate

	if present(doc.PaymentMethod) {
		var pm PaymentMethod
		if err := decodeStrict(bytes.NewReader(doc.PaymentMethod), &pm); err != nil {
			return SettingsUpdate{}, NewValidationError("paymentMethod", "malformed payment method: "+err.Error())
		}
		u.PaymentMethod = &PaymentMethod{ID: pm.ID}
	}

	if doc.Subscription != nil && len(doc.Subscription.Storage) > 0 {
		u.Storage = &StorageChange{}
		if present(doc.Subscription.Storage) {
			var s StorageSubscription
			if err := decodeStrict(bytes.NewReader(doc.Subscription.Storage), &s); err != nil {
				return SettingsUpdate{}, NewValidationError("subscription.storage", "malformed storage subscription: "+err.Error())
			}
			u.Storage.Desired = &s
		}
	}

	return u, nil
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), jsonNull)
}

func decodeStrict(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after document")
	}
	return nil
}
