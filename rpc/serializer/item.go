package serializer

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dInv/lib/store"
)

const (
	// RecordSeparator terminates a single encoded item
	RecordSeparator byte = 0x1e
	// GroupSeparator terminates the last item of a reply, signaling end of response to a streaming reader
	GroupSeparator byte = 0x1d
)

// itemFields is the number of newline separated fields of an encoded item
const itemFields = 10

// IItemSerializer converts items to and from their wire representation
type IItemSerializer interface {
	// Serialize encodes a single item terminated by RecordSeparator
	Serialize(item store.Item) []byte
	// Deserialize decodes a single item. The input may end with RecordSeparator, GroupSeparator or neither.
	// On malformed input the returned item holds every field decoded before the first bad field,
	// later fields are zero, and the error describes the first bad field.
	Deserialize(b []byte) (store.Item, error)
	// SerializeBatch encodes all items back to back, terminating the last one with GroupSeparator.
	// An empty batch is a single GroupSeparator.
	SerializeBatch(items []store.Item) []byte
	// DeserializeBatch splits a batch produced by SerializeBatch and decodes every record
	DeserializeBatch(b []byte) ([]store.Item, error)
}

type textSerializerImpl struct{}

// NewTextSerializer returns the newline/RS/GS text codec used on the wire
func NewTextSerializer() IItemSerializer {
	return textSerializerImpl{}
}

func (textSerializerImpl) Serialize(item store.Item) []byte {
	return appendItem(nil, item)
}

func appendItem(b []byte, item store.Item) []byte {
	b = strconv.AppendInt(b, item.ID, 10)
	b = append(b, '\n')
	b = append(b, item.Name...)
	b = append(b, '\n')
	for _, v := range []int{item.Armor, item.Health, item.Mana, item.SellPrice, item.Damage} {
		b = strconv.AppendInt(b, int64(v), 10)
		b = append(b, '\n')
	}
	// fixed point with six decimals, same as printf %f
	b = strconv.AppendFloat(b, item.CritChance, 'f', 6, 64)
	b = append(b, '\n')
	b = strconv.AppendInt(b, int64(item.Range), 10)
	b = append(b, '\n')
	b = append(b, item.Description...)
	return append(b, RecordSeparator)
}

func (textSerializerImpl) SerializeBatch(items []store.Item) []byte {
	if len(items) == 0 {
		return []byte{GroupSeparator}
	}
	var b []byte
	for _, item := range items {
		b = appendItem(b, item)
	}
	b[len(b)-1] = GroupSeparator
	return b
}

func (textSerializerImpl) Deserialize(b []byte) (store.Item, error) {
	var item store.Item

	// the description runs until the first separator and may itself contain newlines
	if i := bytes.IndexAny(b, string([]byte{RecordSeparator, GroupSeparator})); i >= 0 {
		b = b[:i]
	}

	parts := strings.SplitN(string(b), "\n", itemFields)
	if len(parts) < itemFields {
		// decode what is there, the missing fields stay zero
		parts = append(parts, make([]string, itemFields-len(parts))...)
	}

	var err error
	if item.ID, err = strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64); err != nil {
		return store.Item{}, fieldError("id", parts[0], err)
	}
	item.Name = parts[1]

	ints := []*int{&item.Armor, &item.Health, &item.Mana, &item.SellPrice, &item.Damage}
	names := []string{"armor", "health", "mana", "sellPrice", "damage"}
	for i, dst := range ints {
		v, err := strconv.Atoi(strings.TrimSpace(parts[2+i]))
		if err != nil {
			return item, fieldError(names[i], parts[2+i], err)
		}
		*dst = v
	}

	if item.CritChance, err = strconv.ParseFloat(strings.TrimSpace(parts[7]), 64); err != nil {
		item.CritChance = 0
		return item, fieldError("critChance", parts[7], err)
	}
	if item.Range, err = strconv.Atoi(strings.TrimSpace(parts[8])); err != nil {
		item.Range = 0
		return item, fieldError("range", parts[8], err)
	}
	item.Description = parts[9]
	return item, nil
}

func (s textSerializerImpl) DeserializeBatch(b []byte) ([]store.Item, error) {
	var items []store.Item
	for len(b) > 0 {
		end := bytes.IndexAny(b, string([]byte{RecordSeparator, GroupSeparator}))
		if end < 0 {
			return items, fmt.Errorf("unterminated record after %d items", len(items))
		}
		last := b[end] == GroupSeparator
		if end > 0 || !last {
			item, err := s.Deserialize(b[:end])
			if err != nil {
				return items, fmt.Errorf("record %d: %w", len(items), err)
			}
			items = append(items, item)
		}
		b = b[end+1:]
		if last {
			break
		}
	}
	return items, nil
}

func fieldError(field, value string, err error) error {
	return fmt.Errorf("invalid %s %q: %w", field, value, err)
}
