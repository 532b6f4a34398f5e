package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/CTAG07/mimic/pkg/markov"
)

// formatFor picks the export format from an explicit flag or a file extension.
func formatFor(flag, path string) (markov.Format, error) {
	if flag == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			return markov.FormatYAML, nil
		default:
			return markov.FormatJSON, nil
		}
	}
	switch markov.Format(strings.ToLower(flag)) {
	case markov.FormatJSON:
		return markov.FormatJSON, nil
	case markov.FormatYAML, "yml":
		return markov.FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported format %q: use json or yaml", flag)
	}
}

func newExportCmd(a *app) *cobra.Command {
	var format, out string

	cmd := &cobra.Command{
		Use:   "export NAME",
		Short: "Write a stored model as JSON or YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := formatFor(format, out)
			if err != nil {
				return err
			}

			store, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			model, err := store.LoadModel(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if out == "" {
				return model.Export(args[0]).Encode(cmd.OutOrStdout(), f)
			}

			var buf bytes.Buffer
			if err = model.Export(args[0]).Encode(&buf, f); err != nil {
				return err
			}
			if err = atomic.WriteFile(out, &buf); err != nil {
				return fmt.Errorf("failed to write export file: %w", err)
			}
			a.logger.Info("Model exported", "model_name", args[0], "path", out, "format", string(f))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "output format: json or yaml (default from --out extension, else json)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var format, name string

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Load an exported model into the store",
		Long: `Import reads a model exported as JSON or YAML ("-" reads stdin), validates
it and stores it under its exported name, or under --name when given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := formatFor(format, args[0])
			if err != nil {
				return err
			}

			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open export file: %w", err)
				}
				defer func(file *os.File) {
					_ = file.Close()
				}(file)
				r = file
			}

			exported, err := markov.DecodeExported(r, f)
			if err != nil {
				return err
			}
			if name != "" {
				exported.Name = name
			}
			if exported.Name == "" {
				return fmt.Errorf("the export has no model name: use --name")
			}

			model, err := markov.Import(exported)
			if err != nil {
				return err
			}

			store, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			info, err := store.SaveModel(cmd.Context(), exported.Name, model)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported model %q (id %d)\n", info.Name, info.Id)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "input format: json or yaml (default from the file extension, else json)")
	cmd.Flags().StringVar(&name, "name", "", "store the model under this name")
	return cmd
}
