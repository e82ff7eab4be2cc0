package domain

// CartLine is one variant entry in the cart. VariantID is unique within a cart.
type CartLine struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"` // smallest currency unit
	ImageRef  string `json:"imageRef"`
	Quantity  int    `json:"quantity"`
}

// Subtotal returns quantity * unit price
func (l CartLine) Subtotal() int64 {
	return int64(l.Quantity) * l.UnitPrice
}

// CartState is the ordered list of lines; insertion order is display order.
// Totals are always derived, never stored.
type CartState []CartLine

// LineCount returns the number of distinct variants in the cart
func (c CartState) LineCount() int {
	return len(c)
}

// TotalQuantity returns the sum of all line quantities
func (c CartState) TotalQuantity() int {
	total := 0
	for _, l := range c {
		total += l.Quantity
	}
	return total
}

// TotalValue returns the sum of quantity * unit price over all lines
func (c CartState) TotalValue() int64 {
	var total int64
	for _, l := range c {
		total += l.Subtotal()
	}
	return total
}

// Has reports whether a line exists for the variant
func (c CartState) Has(variantID string) bool {
	return c.Index(variantID) >= 0
}

// Find returns the line for the variant
func (c CartState) Find(variantID string) (CartLine, bool) {
	i := c.Index(variantID)
	if i < 0 {
		return CartLine{}, false
	}
	return c[i], true
}

// Clone returns a copy that does not share the backing array
func (c CartState) Clone() CartState {
	out := make(CartState, len(c))
	copy(out, c)
	return out
}

// Index returns the position of the line for the variant, or -1.
func (c CartState) Index(variantID string) int {
	for i := range c {
		if c[i].VariantID == variantID {
			return i
		}
	}
	return -1
}
