package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"transmute/internal/api"
	"transmute/internal/catalog"
	"transmute/internal/daemonrun"
	"transmute/internal/route"
	"transmute/internal/services"
)

// resolveQuery parses a format pair and picks the domain, inferring it when
// domainFlag is empty.
func resolveQuery(resolver *route.Resolver, domainFlag, fromArg, toArg string) (catalog.Domain, catalog.Format, catalog.Format, error) {
	from, to := catalog.ParseFormat(fromArg), catalog.ParseFormat(toArg)
	var domain catalog.Domain
	if domainFlag != "" {
		parsed, err := catalog.ParseDomain(domainFlag)
		if err != nil {
			return "", "", "", err
		}
		domain = parsed
	} else {
		inferred, ok := resolver.InferDomain(from, to)
		if !ok {
			msg := fmt.Sprintf("no domain knows both %s and %s; see `transmute formats`", formatLabel(from), formatLabel(to))
			return "", "", "", services.Wrap(services.ErrValidation, "route", "", msg, nil)
		}
		domain = inferred
	}
	if err := resolver.Validate(domain, from, to); err != nil {
		return "", "", "", err
	}
	return domain, from, to, nil
}

func hopRows(r route.Route) [][]string {
	rows := make([][]string, 0, len(r.Hops))
	for i, hop := range r.Hops {
		rows = append(rows, []string{strconv.Itoa(i + 1), formatLabel(hop.From), formatLabel(hop.To), string(hop.Method), tierLabel(hop.Quality)})
	}
	return rows
}

func newRouteCommand(ctx *commandContext) *cobra.Command {
	var domainFlag string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "route <from> <to>",
		Short: "Show the route a conversion would take",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			resolver := daemonrun.NewResolver(cfg)
			domain, from, to, err := resolveQuery(resolver, domainFlag, args[0], args[1])
			if err != nil {
				return err
			}

			found, ok := resolver.FindRoute(domain, from, to)
			if jsonOutput {
				resp := api.RouteResponse{Found: ok}
				if ok {
					resp.Route = &found
				} else {
					resp.Reachable = resolver.Reachable(domain, from)
				}
				return writeJSON(cmd, resp)
			}

			out := cmd.OutOrStdout()
			if !ok {
				reachable := resolver.Reachable(domain, from)
				names := make([]string, len(reachable))
				for i, f := range reachable {
					names[i] = formatLabel(f)
				}
				fmt.Fprintf(out, "No %s route from %s to %s within %d hop(s)\n", domain, formatLabel(from), formatLabel(to), resolver.MaxHops())
				if len(names) > 0 {
					fmt.Fprintf(out, "Reachable from %s: %s\n", formatLabel(from), strings.Join(names, ", "))
				}
				return services.Wrap(services.ErrUnsupported, "route", "", fmt.Sprintf("%s -> %s", from, to), nil)
			}

			fmt.Fprintf(out, "%s  (%s, %s strategy)\n", routeLabel(found), titleCase(string(domain)), titleCase(string(resolver.Strategy())))
			if found.IsTrivial() {
				fmt.Fprintln(out, "Source already has the target format; the file is copied.")
				return nil
			}
			fmt.Fprintln(out, renderTable("", []string{"Hop", "From", "To", "Method", "Quality"}, hopRows(found), []columnAlignment{alignRight}))
			fmt.Fprintf(out, "Overall quality: %s (weight %.2f)\n", tierLabel(found.Quality), found.Weight)
			fmt.Fprintf(out, "Metadata: %s\n", metadataLabel(found))
			return nil
		},
	}

	cmd.Flags().StringVarP(&domainFlag, "domain", "d", "", "Conversion domain (inferred when omitted)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newRoutesCommand(ctx *commandContext) *cobra.Command {
	var domainFlag string
	var maxIntermediate int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "routes <from> <to>",
		Short: "List every route between two formats",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			resolver := daemonrun.NewResolver(cfg)
			domain, from, to, err := resolveQuery(resolver, domainFlag, args[0], args[1])
			if err != nil {
				return err
			}
			limit := cfg.Routing.MaxIntermediate
			if cmd.Flags().Changed("max-intermediate") {
				if maxIntermediate < 0 {
					return fmt.Errorf("--max-intermediate must not be negative")
				}
				limit = maxIntermediate
			}

			routes := resolver.AllRoutesBetween(domain, from, to, limit)
			if jsonOutput {
				if routes == nil {
					routes = []route.Route{}
				}
				return writeJSON(cmd, api.RoutesResponse{Routes: routes})
			}

			out := cmd.OutOrStdout()
			if len(routes) == 0 {
				fmt.Fprintf(out, "No routes from %s to %s through at most %d intermediate format(s)\n", formatLabel(from), formatLabel(to), limit)
				return nil
			}
			rows := make([][]string, 0, len(routes))
			for i, r := range routes {
				rows = append(rows, []string{strconv.Itoa(i + 1), routeLabel(r), strconv.Itoa(r.HopCount()), tierLabel(r.Quality), fmt.Sprintf("%.2f", r.Weight), methodsLabel(r)})
			}
			fmt.Fprintln(out, renderTable(titleCase(string(domain)), []string{"#", "Route", "Hops", "Quality", "Weight", "Methods"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignRight}))
			return nil
		},
	}

	cmd.Flags().StringVarP(&domainFlag, "domain", "d", "", "Conversion domain (inferred when omitted)")
	cmd.Flags().IntVar(&maxIntermediate, "max-intermediate", 0, "Intermediate formats allowed (default routing.max_intermediate)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func metadataLabel(r route.Route) string {
	if r.PreservesMetadata() {
		return "preserved"
	}
	return "lost on at least one hop"
}
