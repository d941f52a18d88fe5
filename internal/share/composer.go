// Package share builds the plain-text item summary handed to an external
// sharing mechanism.
package share

import (
	"strings"

	"github.com/inventory-platform/item-detail-service/internal/domain"
)

// ContentType is the content marker handed to the sharing mechanism along
// with the composed text.
const ContentType = "text/plain"

// Compose renders a multi-line summary of the given state. The header block
// always carries name, price, and quantity; the provider section appears only
// when at least one provider field is non-blank, with one line per non-blank
// field. Composition never fails.
func Compose(state domain.ViewState) string {
	details := state.ItemDetails

	var b strings.Builder
	b.WriteString("Name: " + details.Name + "\n")
	b.WriteString("Price: " + details.Price + "$\n")
	b.WriteString("Quantity: " + details.Quantity)

	if !details.HasProviderInfo() {
		return b.String()
	}

	b.WriteString("\n\nProvider Info")
	appendLine(&b, "Name", details.ProviderName)
	appendLine(&b, "Phone Number", details.ProviderPhoneNumber)
	appendLine(&b, "Email", details.ProviderEmail)
	return b.String()
}

func appendLine(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	b.WriteString("\n" + label + ": " + value)
}
