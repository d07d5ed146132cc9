package main

import (
	"encoding/json"
	"fmt"

	"assetmig-go/internal/index"
	"assetmig-go/internal/storage"

	"github.com/spf13/cobra"
)

func ImportCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "import <tree.json>",
		Short: "Seed a tree database from a JSON tree dump",
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, args []string) error {
			return withApp(command, func(a *app) error {
				tree, err := storage.ReadTree(args[0])
				if err != nil {
					return err
				}
				m, err := a.openWritableTree(dbFlag(command, a.cfg.OriginalDB))
				if err != nil {
					return err
				}
				stats, err := m.Import(tree)
				if err != nil {
					return err
				}
				fmt.Fprintf(command.OutOrStdout(), "imported %d classes, %d structs, %d enums, %d tags, %d assets\n",
					stats.Classes, stats.Structs, stats.Enums, stats.Tags, stats.Assets)
				return nil
			})
		},
	}
	command.Flags().String("db", "", "Tree database to seed (default: original_db)")
	return command
}

func ExportCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "export",
		Short: "Dump a tree database as JSON",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, args []string) error {
			outPath, _ := command.Flags().GetString("out")
			return withApp(command, func(a *app) error {
				m, err := a.openTree(dbFlag(command, a.cfg.RewriteDB), true)
				if err != nil {
					return err
				}
				tree, err := m.Export()
				if err != nil {
					return err
				}
				if outPath != "" {
					return storage.WriteTree(outPath, tree)
				}
				enc := json.NewEncoder(command.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(tree)
			})
		},
	}
	command.Flags().String("db", "", "Tree database to dump (default: rewrite_db)")
	command.Flags().String("out", "", "Write the dump to a file instead of stdout")
	return command
}

func FindCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "find <query>",
		Short: "Search a tree for assets by reference, class, tag or text",
		Long: "find indexes every asset under --root and runs one lookup:\n" +
			"  --by refs   assets whose properties reference the given asset\n" +
			"  --by class  assets of the given class\n" +
			"  --by tag    assets holding the given gameplay tag\n" +
			"  --by text   a query string such as name:sword or \"rusty blade\"",
		Args: cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, args []string) error {
			by, _ := command.Flags().GetString("by")
			root, _ := command.Flags().GetString("root")
			limit, _ := command.Flags().GetInt("limit")
			return withApp(command, func(a *app) error {
				m, err := a.openTree(dbFlag(command, a.cfg.OriginalDB), true)
				if err != nil {
					return err
				}
				idx, err := index.NewManager(a.logger.Named("index"))
				if err != nil {
					return err
				}
				defer idx.Close()

				if _, err := idx.Build(command.Context(), m, root); err != nil {
					return err
				}
				results, err := idx.Find(by, args[0], limit)
				if err != nil {
					return err
				}
				out := command.OutOrStdout()
				for _, r := range results {
					fmt.Fprintf(out, "%s\t%s\n", r.Path, r.Class)
				}
				if len(results) == 0 {
					fmt.Fprintln(out, "no matches")
				}
				return nil
			})
		},
	}
	command.Flags().String("db", "", "Tree database to search (default: original_db)")
	command.Flags().String("by", "text", "Lookup kind (refs | class | tag | text)")
	command.Flags().String("root", "/Game", "Folder to index")
	command.Flags().Int("limit", index.DefaultLimit, "Maximum number of results")
	return command
}
