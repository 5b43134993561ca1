package store

import (
	"encoding/json"
	"fmt"

	"orderdesk/models"
)

func encodeOrderJSON(order *models.Order) (items, address []byte, err error) {
	items, err = json.Marshal(order.Items)
	if err != nil {
		return nil, nil, fmt.Errorf("encode items: %w", err)
	}
	addr := order.Address
	if addr == nil {
		addr = models.JSONB{}
	}
	address, err = json.Marshal(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("encode address: %w", err)
	}
	return items, address, nil
}

func decodeOrderJSON(order *models.Order, items, address []byte) error {
	order.Items = []models.OrderItem{}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &order.Items); err != nil {
			return fmt.Errorf("decode items for order %s: %w", order.ID, err)
		}
	}
	order.Address = models.JSONB{}
	if len(address) > 0 {
		if err := json.Unmarshal(address, &order.Address); err != nil {
			return fmt.Errorf("decode address for order %s: %w", order.ID, err)
		}
	}
	return nil
}
