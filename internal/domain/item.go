package domain

import (
	"strconv"
	"strings"
)

// Item is the canonical inventory record owned by the persistence layer.
// The detail service never creates or destroys an Item, only reads it and
// requests updates through the ItemStore port.
type Item struct {
	ID                  int64   `bson:"_id" json:"id"`
	Name                string  `bson:"name" json:"name"`
	Price               float64 `bson:"price" json:"price"`
	Quantity            int64   `bson:"quantity" json:"quantity"`
	ProviderName        string  `bson:"providerName" json:"providerName"`
	ProviderPhoneNumber string  `bson:"providerPhoneNumber" json:"providerPhoneNumber"`
	ProviderEmail       string  `bson:"providerEmail" json:"providerEmail"`
}

// InStock reports whether the item has remaining stock.
func (i Item) InStock() bool {
	return i.Quantity > 0
}

// ItemDetails is the display-oriented projection of an Item. All fields are
// string-formatted for presentation; NewItemDetails and ToItem round-trip
// losslessly on every field.
type ItemDetails struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Price               string `json:"price"`
	Quantity            string `json:"quantity"`
	ProviderName        string `json:"providerName"`
	ProviderPhoneNumber string `json:"providerPhoneNumber"`
	ProviderEmail       string `json:"providerEmail"`
}

// DefaultItemDetails returns the all-default projection observed before the
// first store emission arrives.
func DefaultItemDetails() ItemDetails {
	return ItemDetails{ID: "0", Price: "0", Quantity: "0"}
}

// NewItemDetails projects an Item into its display representation.
func NewItemDetails(item Item) ItemDetails {
	return ItemDetails{
		ID:                  strconv.FormatInt(item.ID, 10),
		Name:                item.Name,
		Price:               strconv.FormatFloat(item.Price, 'f', -1, 64),
		Quantity:            strconv.FormatInt(item.Quantity, 10),
		ProviderName:        item.ProviderName,
		ProviderPhoneNumber: item.ProviderPhoneNumber,
		ProviderEmail:       item.ProviderEmail,
	}
}

// ToItem converts the projection back into an Item for write-back.
func (d ItemDetails) ToItem() (Item, error) {
	id, err := strconv.ParseInt(d.ID, 10, 64)
	if err != nil {
		return Item{}, ErrMalformedDetails
	}
	price, err := strconv.ParseFloat(d.Price, 64)
	if err != nil {
		return Item{}, ErrMalformedDetails
	}
	quantity, err := strconv.ParseInt(d.Quantity, 10, 64)
	if err != nil {
		return Item{}, ErrMalformedDetails
	}

	return Item{
		ID:                  id,
		Name:                d.Name,
		Price:               price,
		Quantity:            quantity,
		ProviderName:        d.ProviderName,
		ProviderPhoneNumber: d.ProviderPhoneNumber,
		ProviderEmail:       d.ProviderEmail,
	}, nil
}

// HasProviderInfo reports whether at least one provider field is non-blank.
func (d ItemDetails) HasProviderInfo() bool {
	return !isBlank(d.ProviderName) || !isBlank(d.ProviderPhoneNumber) || !isBlank(d.ProviderEmail)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ViewState is the display-ready snapshot of an item. OutOfStock is always
// derived from the projected quantity; there is no other derivation path.
type ViewState struct {
	OutOfStock  bool        `json:"outOfStock"`
	ItemDetails ItemDetails `json:"itemDetails"`
}

// DefaultViewState is the value observed before any store emission: out of
// stock with all-default details.
func DefaultViewState() ViewState {
	return ViewState{OutOfStock: true, ItemDetails: DefaultItemDetails()}
}

// NewViewState builds a ViewState from a current Item.
func NewViewState(item Item) ViewState {
	return ViewState{
		OutOfStock:  !item.InStock(),
		ItemDetails: NewItemDetails(item),
	}
}
