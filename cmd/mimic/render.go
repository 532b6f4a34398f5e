package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/CTAG07/mimic/pkg/templating"
)

func newRenderCmd(a *app) *cobra.Command {
	var (
		file   string
		dir    string
		params map[string]string
	)

	cmd := &cobra.Command{
		Use:   "render [TEMPLATE]",
		Short: "Render a template filled from stored models",
		Long: `Render executes a Go text template whose functions draw from stored models,
for example {{sentence "news"}} or {{paragraphs "news" 2 3 5}}.

With a TEMPLATE name, the template is loaded from the template directory.
With --file, the given file ("-" for stdin) is rendered instead. With neither,
the names of the available templates are listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("dir") {
				a.config.Templates.TemplateDir = dir
			}

			store, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			tm, err := templating.NewTemplateManager(a.logger, newModelCache(store),
				a.config.Templates.limits(), a.config.Templates.TemplateDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			values := url.Values{}
			for k, v := range params {
				values.Set(k, v)
			}
			input := newTemplateInput(values)

			switch {
			case file == "-":
				content, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				err = tm.ExecuteTemplateString(out, string(content), input)
				if err != nil {
					return err
				}
			case file != "":
				err = tm.ExecuteFile(out, os.DirFS(filepath.Dir(file)), filepath.Base(file), input)
				if err != nil {
					return err
				}
			case len(args) == 1:
				if err = tm.Execute(out, args[0], input); err != nil {
					return err
				}
			default:
				for _, name := range tm.GetTemplateNames() {
					fmt.Fprintln(out, name)
				}
				return nil
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", `template file to render ("-" for stdin)`)
	cmd.Flags().StringVar(&dir, "dir", "", "template directory (overrides template_config.template_dir)")
	cmd.Flags().StringToStringVar(&params, "set", nil, "template parameter as key=value, available as .Params.key")
	return cmd
}
