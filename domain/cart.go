package domain

// CartItem is a product together with the requested quantity.
type CartItem struct {
	Product  Product
	Quantity int
}

// Cart maps products to quantities. It never touches product stock.
type Cart struct {
	items map[int64]*CartItem
	order []int64
}

// NewCart returns an empty cart.
func NewCart() *Cart {
	return &Cart{items: make(map[int64]*CartItem)}
}

// Add accumulates quantity for a product.
func (c *Cart) Add(product Product, quantity int) error {
	if quantity <= 0 {
		return Invalidf("quantity must be positive")
	}
	if item, ok := c.items[product.ID]; ok {
		item.Quantity += quantity
		return nil
	}
	c.put(product, quantity)
	return nil
}

// SetQuantity replaces the quantity for a product.
func (c *Cart) SetQuantity(product Product, quantity int) error {
	if quantity <= 0 {
		return Invalidf("quantity must be positive")
	}
	if item, ok := c.items[product.ID]; ok {
		item.Quantity = quantity
		return nil
	}
	c.put(product, quantity)
	return nil
}

// Remove drops the product from the cart.
func (c *Cart) Remove(productID int64) {
	if _, ok := c.items[productID]; !ok {
		return
	}
	delete(c.items, productID)
	for i, id := range c.order {
		if id == productID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.items = make(map[int64]*CartItem)
	c.order = nil
}

// IsEmpty reports whether the cart holds no entries.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.items) == 0
}

// Len returns the number of distinct products.
func (c *Cart) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// Items returns a copy of the entries in insertion order.
func (c *Cart) Items() []CartItem {
	if c == nil {
		return nil
	}
	out := make([]CartItem, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.items[id])
	}
	return out
}

func (c *Cart) put(product Product, quantity int) {
	if c.items == nil {
		c.items = make(map[int64]*CartItem)
	}
	c.items[product.ID] = &CartItem{Product: product, Quantity: quantity}
	c.order = append(c.order, product.ID)
}
