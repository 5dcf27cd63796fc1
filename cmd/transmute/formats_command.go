package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"transmute/internal/api"
	"transmute/internal/catalog"
	"transmute/internal/daemonrun"
)

func newFormatsCommand(ctx *commandContext) *cobra.Command {
	var domainFlag string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "formats",
		Short: "List supported formats and direct conversions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cat := daemonrun.NewResolver(cfg).Catalog()
			domains := cat.Domains()
			if domainFlag != "" {
				domain, err := catalog.ParseDomain(domainFlag)
				if err != nil {
					return err
				}
				domains = []catalog.Domain{domain}
			}

			if jsonOutput {
				resp := api.FormatsResponse{}
				for _, d := range domains {
					resp.Domains = append(resp.Domains, api.DomainFormats{Domain: d, Formats: cat.Formats(d), Edges: cat.Edges(d)})
				}
				return writeJSON(cmd, resp)
			}

			out := cmd.OutOrStdout()
			for i, d := range domains {
				if i > 0 {
					fmt.Fprintln(out)
				}
				formats := cat.Formats(d)
				names := make([]string, len(formats))
				for j, f := range formats {
					names[j] = formatLabel(f)
				}
				rows := make([][]string, 0)
				for _, e := range cat.Edges(d) {
					rows = append(rows, []string{formatLabel(e.From), formatLabel(e.To), tierLabel(e.Quality), string(e.Method), preservesLabel(e)})
				}
				fmt.Fprintln(out, renderTable(titleCase(string(d)), []string{"From", "To", "Quality", "Method", "Preserves"}, rows, nil))
				fmt.Fprintf(out, "Formats: %s\n", strings.Join(names, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&domainFlag, "domain", "d", "", "Only list one domain (generic, ebook, video)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
