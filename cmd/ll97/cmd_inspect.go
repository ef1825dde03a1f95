package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"ll97dash/ml"
)

var (
	inspectType   string
	inspectSchema string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <model-file>",
	Short: "Load a model file and print what it expects",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectType, "type", ml.TypeRandomForest, "Model type: decision_tree, random_forest or onnx")
	inspectCmd.Flags().StringVar(&inspectSchema, "schema", "", "Schema file for onnx models")
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	m, err := ml.LoadModel(ml.ModelSpec{
		Name:       strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Type:       inspectType,
		Path:       path,
		SchemaPath: inspectSchema,
		Library:    cfg.Models.OnnxLibrary,
	})
	if err != nil {
		return err
	}
	defer closeModel(m)

	info := m.Info()
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Name:      %s\n", info.Name)
	fmt.Fprintf(w, "Type:      %s\n", info.Type)
	fmt.Fprintf(w, "SHA256:    %s\n", info.SHA256)
	fmt.Fprintf(w, "Columns:   %s\n", strings.Join(info.Columns, ", "))
	if info.Threshold != nil {
		fmt.Fprintf(w, "Threshold: %.2f\n", *info.Threshold)
	} else {
		fmt.Fprintln(w, "Threshold: model-defined")
	}
	if schema, ok := ml.SchemaOf(m); ok {
		fmt.Fprintf(w, "Features:  %d\n", schema.Width())
		for i, name := range schema.FeatureNames() {
			fmt.Fprintf(w, "  f%-3d %s\n", i, name)
		}
	}
	return nil
}
