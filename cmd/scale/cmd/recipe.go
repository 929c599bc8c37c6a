package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ngageoint/scale/internal/catalog"
	"github.com/ngageoint/scale/internal/recipe/definition"
	"github.com/ngageoint/scale/internal/recipe/diff"
)

func validateRecipeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-recipe <definition>",
		Short: "Validates a recipe definition against the job and recipe types of a catalog",
		Args:  cobra.ExactArgs(1),
		RunE:  validateRecipe,
	}
	cmd.Flags().String("catalog", "", "Path to the catalog file the definition's job and recipe types are read from")
	_ = cmd.MarkFlagRequired("catalog")
	return cmd
}

func validateRecipe(cmd *cobra.Command, args []string) error {
	catalogPath, err := cmd.Flags().GetString("catalog")
	if err != nil {
		return errors.WithStack(err)
	}
	c, err := catalog.LoadFile(catalogPath)
	if err != nil {
		return err
	}
	def, err := readDefinition(args[0])
	if err != nil {
		return err
	}
	warnings, err := def.Validate(c)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		log.Warn(w.String())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (%d node(s), %d warning(s))\n", args[0], def.Len(), len(warnings))
	return nil
}

func diffRecipeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff-recipe <previous definition> <new definition>",
		Short: "Prints what a reprocess would do to a recipe moving between two definitions",
		Args:  cobra.ExactArgs(2),
		RunE:  diffRecipe,
	}
	cmd.Flags().StringSlice("force", []string{}, "Names of nodes to reprocess whether or not they changed")
	cmd.Flags().Bool("force-all", false, "Reprocess every node")
	return cmd
}

func diffRecipe(cmd *cobra.Command, args []string) error {
	forceNodes, err := cmd.Flags().GetStringSlice("force")
	if err != nil {
		return errors.WithStack(err)
	}
	forceAll, err := cmd.Flags().GetBool("force-all")
	if err != nil {
		return errors.WithStack(err)
	}
	prev, err := readDefinition(args[0])
	if err != nil {
		return err
	}
	current, err := readDefinition(args[1])
	if err != nil {
		return err
	}
	d, err := diff.NewRecipeDiff(prev, current)
	if err != nil {
		return err
	}
	if forceAll {
		d.SetForceReprocess(diff.AllForcedNodes())
	} else if len(forceNodes) > 0 {
		forced := diff.NewForcedNodes()
		for _, name := range forceNodes {
			forced.AddNode(name)
		}
		d.SetForceReprocess(forced)
	}
	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// readDefinition parses a definition file, as JSON if it has a .json extension and as YAML otherwise.
func readDefinition(path string) (*definition.RecipeDefinition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var def *definition.RecipeDefinition
	if strings.EqualFold(filepath.Ext(path), ".json") {
		def, err = definition.ParseJSON(b)
	} else {
		def, err = definition.ParseYAML(b)
	}
	return def, errors.WithMessagef(err, "reading definition %s", path)
}
