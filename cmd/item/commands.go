package item

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/ValentinKolb/dInv/lib/store"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [id|all]",
		Short: "Prints a single item or the whole inventory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.EqualFold(args[0], "all") {
				items, err := inventory.GetAll()
				if err != nil {
					return err
				}
				printItems(os.Stdout, items)
				return nil
			}

			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			item, err := inventory.Get(id)
			if err != nil {
				return err
			}
			printItems(os.Stdout, []store.Item{item})
			return nil
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [name]",
		Short: "Adds a new item and prints its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := itemFromFlags(cmd, store.Item{Name: args[0]})
			if err != nil {
				return err
			}
			id, err := inventory.Put(item)
			if err != nil {
				return err
			}
			fmt.Printf("added item %d\n", id)
			return nil
		},
	}
	modCmd = &cobra.Command{
		Use:   "mod [id]",
		Short: "Modifies an item, fields without a flag keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			current, err := inventory.Get(id)
			if err != nil {
				return err
			}
			item, err := itemFromFlags(cmd, current)
			if err != nil {
				return err
			}
			if err := inventory.Mod(item); err != nil {
				return err
			}
			fmt.Printf("modified item %d\n", id)
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [id]",
		Short: "Deletes an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := inventory.Del(id); err != nil {
				return err
			}
			fmt.Printf("deleted item %d\n", id)
			return nil
		},
	}
	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Replicates the inventory to the backup peer of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := inventory.Sync(); err != nil {
				return err
			}
			fmt.Println("replicated successfully")
			return nil
		},
	}
	termCmd = &cobra.Command{
		Use:   "term",
		Short: "Shuts the server down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := inventory.Term(); err != nil {
				return err
			}
			fmt.Println("server is shutting down")
			return nil
		},
	}
	rawCmd = &cobra.Command{
		Use:   "raw [request]",
		Short: "Sends a raw request (e.g. \"GET ALL\") and prints the raw reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := inventory.Do([]byte(strings.Join(args, " ")))
			if err != nil {
				return err
			}
			fmt.Printf("%q\n", reply.String())
			return nil
		},
	}
)

func init() {
	for _, cmd := range []*cobra.Command{putCmd, modCmd} {
		cmd.Flags().Int("armor", 0, "Armor points")
		cmd.Flags().Int("health", 0, "Health points")
		cmd.Flags().Int("mana", 0, "Mana points")
		cmd.Flags().Int("price", 0, "Sell price")
		cmd.Flags().Int("damage", 0, "Damage")
		cmd.Flags().Float64("crit", 0, "Critical hit chance (0-1)")
		cmd.Flags().Int("range", 0, "Range")
		cmd.Flags().String("desc", "", "Description")
	}
	modCmd.Flags().String("name", "", "Name")
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id must be a number: %w", err)
	}
	return id, nil
}

// itemFromFlags overwrites the fields of item whose flag was set
func itemFromFlags(cmd *cobra.Command, item store.Item) (store.Item, error) {
	flags := cmd.Flags()
	ints := map[string]*int{
		"armor":  &item.Armor,
		"health": &item.Health,
		"mana":   &item.Mana,
		"price":  &item.SellPrice,
		"damage": &item.Damage,
		"range":  &item.Range,
	}
	for name, field := range ints {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetInt(name)
		if err != nil {
			return item, err
		}
		*field = v
	}

	if flags.Changed("crit") {
		v, err := flags.GetFloat64("crit")
		if err != nil {
			return item, err
		}
		item.CritChance = v
	}
	if flags.Changed("desc") {
		item.Description, _ = flags.GetString("desc")
	}
	if flags.Lookup("name") != nil && flags.Changed("name") {
		item.Name, _ = flags.GetString("name")
	}

	// newlines and separators would break the wire format
	if strings.ContainsAny(item.Name, "\n\x1d\x1e") || strings.ContainsAny(item.Description, "\n\x1d\x1e") {
		return item, fmt.Errorf("name and description must not contain newlines")
	}
	return item, nil
}

// printItems prints items as an aligned table
func printItems(out io.Writer, items []store.Item) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tARMOR\tHEALTH\tMANA\tPRICE\tDAMAGE\tCRIT\tRANGE\tDESCRIPTION")
	for _, item := range items {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%d\t%d\t%.2f\t%d\t%s\n",
			item.ID, item.Name, item.Armor, item.Health, item.Mana, item.SellPrice,
			item.Damage, item.CritChance, item.Range, item.Description)
	}
	_ = w.Flush()
	if len(items) == 0 {
		fmt.Fprintln(out, "(no items)")
	}
}
