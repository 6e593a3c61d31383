package item

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ValentinKolb/dInv/lib/store"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagCommand(t *testing.T, withName bool, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Int("armor", 0, "")
	cmd.Flags().Int("health", 0, "")
	cmd.Flags().Int("mana", 0, "")
	cmd.Flags().Int("price", 0, "")
	cmd.Flags().Int("damage", 0, "")
	cmd.Flags().Float64("crit", 0, "")
	cmd.Flags().Int("range", 0, "")
	cmd.Flags().String("desc", "", "")
	if withName {
		cmd.Flags().String("name", "", "")
	}
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestItemFromFlagsKeepsUnsetFields(t *testing.T) {
	current := store.Item{ID: 7, Name: "Sword", Armor: 1, Damage: 12, CritChance: 0.25, Description: "old"}

	item, err := itemFromFlags(newFlagCommand(t, true, "--damage", "20", "--desc", "new", "--name", "Big Sword"), current)
	require.NoError(t, err)
	assert.Equal(t, store.Item{ID: 7, Name: "Big Sword", Armor: 1, Damage: 20, CritChance: 0.25, Description: "new"}, item)
}

func TestItemFromFlagsRejectsSeparators(t *testing.T) {
	_, err := itemFromFlags(newFlagCommand(t, false, "--desc", "two\nlines"), store.Item{Name: "Shield"})
	assert.Error(t, err)

	_, err = itemFromFlags(newFlagCommand(t, false), store.Item{Name: "bad\x1ename"})
	assert.Error(t, err)
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = parseID("all")
	assert.Error(t, err)
}

func TestPrintItems(t *testing.T) {
	var out bytes.Buffer
	printItems(&out, []store.Item{{ID: 1, Name: "Sword", SellPrice: 150, CritChance: 0.25}})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "Sword")
	assert.Contains(t, lines[1], "0.25")

	out.Reset()
	printItems(&out, nil)
	assert.Contains(t, out.String(), "(no items)")
}
