package serializer

import (
	"bytes"
	"testing"

	"github.com/ValentinKolb/dInv/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testItems() []store.Item {
	return []store.Item{
		{
			ID: 1, Name: "Sword", Armor: 0, Health: 0, Mana: 0, SellPrice: 40,
			Damage: 12, CritChance: 0.25, Range: 2, Description: "A sharp blade",
		},
		{
			ID: 2, Name: "Staff of the Deep", Armor: 1, Health: 5, Mana: 120, SellPrice: 900,
			Damage: 7, CritChance: 0.05, Range: 10, Description: "Multi\nline\ndescription",
		},
		{ID: 3},
		{ID: 9000000000, Name: "negative", Armor: -3, CritChance: 1, Description: "x"},
	}
}

func TestSerializeFormat(t *testing.T) {
	s := NewTextSerializer()
	got := s.Serialize(testItems()[0])
	want := "1\nSword\n0\n0\n0\n40\n12\n0.250000\n2\nA sharp blade\x1e"
	assert.Equal(t, want, string(got))
}

func TestRoundTrip(t *testing.T) {
	s := NewTextSerializer()
	for _, item := range testItems() {
		t.Run(item.Name, func(t *testing.T) {
			encoded := s.Serialize(item)
			decoded, err := s.Deserialize(encoded)
			require.NoError(t, err)
			assert.Equal(t, item, decoded)
			assert.Equal(t, encoded, s.Serialize(decoded))
		})
	}
}

func TestDeserializeTerminators(t *testing.T) {
	s := NewTextSerializer()
	item := testItems()[1]
	body := s.Serialize(item)
	body = body[:len(body)-1]

	for name, in := range map[string][]byte{
		"record separator": append(append([]byte{}, body...), RecordSeparator),
		"group separator":  append(append([]byte{}, body...), GroupSeparator),
		"no terminator":    body,
		"trailing garbage": append(append([]byte{}, body...), RecordSeparator, 'x', 'y'),
	} {
		t.Run(name, func(t *testing.T) {
			got, err := s.Deserialize(in)
			require.NoError(t, err)
			assert.Equal(t, item, got)
		})
	}
}

func TestDeserializeMalformed(t *testing.T) {
	s := NewTextSerializer()

	tests := []struct {
		name  string
		input string
		want  store.Item
	}{
		{"empty", "", store.Item{}},
		{"bad id", "abc\nSword\n1\n", store.Item{}},
		{"truncated after name", "5\nSword", store.Item{ID: 5, Name: "Sword"}},
		{"bad mana", "5\nSword\n1\n2\nlots\n4\n5\n0.1\n6\ndesc", store.Item{ID: 5, Name: "Sword", Armor: 1, Health: 2}},
		{"bad crit", "5\nSword\n1\n2\n3\n4\n5\nhigh\n6\ndesc", store.Item{ID: 5, Name: "Sword", Armor: 1, Health: 2, Mana: 3, SellPrice: 4, Damage: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Deserialize([]byte(tt.input))
			assert.Error(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBatchFraming(t *testing.T) {
	s := NewTextSerializer()
	items := testItems()[:2]

	batch := s.SerializeBatch(items)
	assert.Equal(t, 1, bytes.Count(batch, []byte{RecordSeparator}))
	assert.Equal(t, 1, bytes.Count(batch, []byte{GroupSeparator}))
	assert.Equal(t, GroupSeparator, batch[len(batch)-1])

	decoded, err := s.DeserializeBatch(batch)
	require.NoError(t, err)
	assert.Equal(t, items, decoded)
}

func TestEmptyBatch(t *testing.T) {
	s := NewTextSerializer()
	batch := s.SerializeBatch(nil)
	assert.Equal(t, []byte{GroupSeparator}, batch)

	decoded, err := s.DeserializeBatch(batch)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestDeserializeBatchUnterminated(t *testing.T) {
	s := NewTextSerializer()
	_, err := s.DeserializeBatch([]byte("1\nSword\n0\n0\n0\n0\n0\n0.000000\n0\n"))
	assert.Error(t, err)
}

func BenchmarkSerializeBatch(b *testing.B) {
	s := NewTextSerializer()
	items := make([]store.Item, 100)
	for i := range items {
		items[i] = testItems()[1]
		items[i].ID = int64(i + 1)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.SerializeBatch(items)
	}
}
