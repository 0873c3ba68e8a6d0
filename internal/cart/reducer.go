package cart

// The reducers below never mutate their input; each returns a new snapshot.

// AddItem merges quantities for an existing variant or appends a new line.
func AddItem(c Cart, item LineItem) Cart {
	next := c.clone()
	for i := range next.Items {
		if next.Items[i].VariantID == item.VariantID {
			next.Items[i].Quantity += item.Quantity
			return next
		}
	}
	next.Items = append(next.Items, cloneItems([]LineItem{item})[0])
	return next
}

// UpdateQuantity replaces a line quantity. Non-positive quantities remove the line.
func UpdateQuantity(c Cart, variantID string, quantity int) Cart {
	if quantity <= 0 {
		return RemoveItem(c, variantID)
	}
	next := c.clone()
	for i := range next.Items {
		if next.Items[i].VariantID == variantID {
			next.Items[i].Quantity = quantity
			break
		}
	}
	return next
}

func RemoveItem(c Cart, variantID string) Cart {
	next := c.clone()
	items := next.Items[:0]
	for _, item := range next.Items {
		if item.VariantID != variantID {
			items = append(items, item)
		}
	}
	next.Items = items
	return next
}

// Clear empties the cart and drops the remote checkout, keeping the session.
func Clear(c Cart) Cart {
	return Cart{
		Items:     []LineItem{},
		Loading:   c.Loading,
		SessionID: c.SessionID,
	}
}

// Reset clears the cart and binds it to a new session identifier.
func Reset(c Cart, sessionID string) Cart {
	next := Clear(c)
	next.SessionID = sessionID
	return next
}
