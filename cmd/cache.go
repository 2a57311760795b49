package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tablecache/tablecache/internal/cache"
)

var (
	setCmd = &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store a value, VALUE is parsed as JSON and kept as a string otherwise",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdapter(func(a *cache.Adapter) error {
				if !a.Set(args[0], parseValue(args[1]), 0, 0) {
					return fmt.Errorf("set %s: %w", args[0], a.LastError())
				}
				return nil
			})
		},
	}

	replaceCmd = &cobra.Command{
		Use:   "replace KEY VALUE",
		Short: "Overwrite the value of an existing key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdapter(func(a *cache.Adapter) error {
				if !a.Replace(args[0], parseValue(args[1]), 0, 0) {
					return fmt.Errorf("replace %s: %w", args[0], a.LastError())
				}
				return nil
			})
		},
	}

	getCmd = &cobra.Command{
		Use:   "get KEY",
		Short: "Print the value stored under KEY as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdapter(func(a *cache.Adapter) error {
				value, ok := a.Get(args[0])
				if !ok {
					return fmt.Errorf("get %s: not found", args[0])
				}
				out, err := json.Marshal(value)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			})
		},
	}

	deleteCmd = &cobra.Command{
		Use:   "delete KEY",
		Short: "Remove KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdapter(func(a *cache.Adapter) error {
				if !a.Delete(args[0]) {
					return fmt.Errorf("delete %s: %w", args[0], a.LastError())
				}
				return nil
			})
		},
	}
)

func withAdapter(fn func(a *cache.Adapter) error) error {
	adapter, cleanup, err := newAdapter()
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(adapter)
}

func parseValue(raw string) any {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	return value
}
