package commands

import (
	"fmt"
	"os"

	"pys-backend/internal/taxonomy"

	"github.com/ddddddO/gtree"
	"github.com/spf13/cobra"
)

var treeDepth int

func init() {
	treeCmd.Flags().IntVar(&treeDepth, "depth", 4, "How many levels to print, 1 prints only the types.")
	rootCmd.AddCommand(treeCmd)
}

func label(key, name string) string {
	return fmt.Sprintf("%s %s", key, name)
}

// buildTree renders the taxonomy as a gtree node, levels deeper than depth
// are left out.
func buildTree(tree taxonomy.Tree, depth int) *gtree.Node {
	root := gtree.NewRoot("PyS")
	for _, typ := range tree {
		typeNode := root.Add(label(typ.Key, typ.Name))
		if depth < 2 {
			continue
		}
		for _, seg := range typ.Segments {
			segNode := typeNode.Add(label(seg.Key, seg.Name))
			if depth < 3 {
				continue
			}
			for _, fam := range seg.Families {
				famNode := segNode.Add(label(fam.Key, fam.Name))
				if depth < 4 {
					continue
				}
				for _, class := range fam.Classes {
					famNode.Add(label(class.Key, class.Name))
				}
			}
		}
	}
	return root
}

var treeCmd = &cobra.Command{
	Use:   "tree [--depth <1-4>]",
	Short: "Prints the stored taxonomy as a tree.",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer application.Close()

		tree, err := application.Service.Latest(cmd.Context())
		if err != nil {
			return err
		}
		return gtree.OutputFromRoot(os.Stdout, buildTree(tree, treeDepth))
	},
}
