// Package serializer converts inventory items to and from the text format used
// on the wire by the inventory server and its clients.
//
// An item is encoded as ten newline separated fields in a fixed order
// (id, name, armor, health, mana, sell price, damage, crit chance, range,
// description) and terminated by the ASCII record separator (0x1e). The last
// record of a reply is terminated by the group separator (0x1d) instead, which
// tells a streaming reader that the reply is complete. An empty batch is a
// single group separator.
//
// Key Components:
//
//   - IItemSerializer: Interface for single item and batch conversion.
//
//   - textSerializerImpl: The only implementation. Decoding is tolerant about the
//     trailing separator, so a record cut from a batch can be decoded directly.
//
// Thread Safety:
//
//	The serializer is stateless and safe for concurrent use.
//
// Usage:
//
//	s := serializer.NewTextSerializer()
//	payload := s.SerializeBatch(items)
//	// ... send payload ...
//	items, err := s.DeserializeBatch(payload)
package serializer
