package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pagination"
	"github.com/opensource-finance/kestrel/internal/risk"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/session"
)

var riskStyles = map[domain.RiskTier]lipgloss.Style{
	domain.RiskHigh:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	domain.RiskMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	domain.RiskLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
}

type queryOptions struct {
	rules        []string
	search       string
	start        string
	end          string
	priority     string
	min          string
	max          string
	currencies   []string
	onlyMatching bool
	page         int
	pageSize     int
	all          bool
	asJSON       bool
}

func queryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Load the dataset once and print one page of results, or all of them",
		Example: `  kestrel query --rules RULE_001,RULE_004 --only-matching
  kestrel query --search "acme panama" --start 2024-01-01 --end 2024-01-31
  kestrel query --priority high --currency USD,EUR --page 2 --page-size 50
  kestrel query --min 1000 --page 3 --all`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ds, err := a.session.Load(cmd.Context())
			if err != nil {
				return err
			}
			if !ds.Loaded {
				return fmt.Errorf("transaction feed not loaded: %s", ds.TransactionsError)
			}

			selected, unknown := rules.Select(opts.rules, ds.Rules)
			criteria := domain.FilterCriteria{
				SelectedRules:     selected,
				Search:            opts.search,
				SelectedDateRange: domain.DateRange{Start: opts.start, End: opts.end},
				Priority:          domain.RiskTier(opts.priority),
				PriceRange:        domain.PriceRange{Min: opts.min, Max: opts.max},
				SelectedCurrency:  opts.currencies,
			}

			items, err := a.session.Filter(cmd.Context(), ds, criteria, opts.onlyMatching)
			if err != nil {
				return err
			}

			size := opts.pageSize
			if size == 0 {
				size = a.session.DefaultPageSize()
			}
			p, err := pagination.New(size)
			if err != nil {
				return err
			}
			// Page records the result size so SetPage can clamp.
			p.Page(items)
			p.SetPage(opts.page)

			for _, id := range unknown {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: rule %s is not in the catalog\n", id)
			}

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			for {
				view := &session.View{
					Page:      p.Page(items),
					DatasetID: ds.ID,
					State:     a.session.State(),
				}
				if opts.asJSON {
					err = enc.Encode(view)
				} else {
					err = printView(out, view, ds)
				}
				if err != nil {
					return err
				}
				if !opts.all || p.CurrentPage() >= p.TotalPages() {
					return nil
				}
				p.Next()
			}
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&opts.rules, "rules", nil, "rule ids to select (comma separated)")
	f.StringVar(&opts.search, "search", "", "free-text search terms (all must match)")
	f.StringVar(&opts.start, "start", "", "first date to include (YYYY-MM-DD)")
	f.StringVar(&opts.end, "end", "", "last date to include (YYYY-MM-DD)")
	f.StringVar(&opts.priority, "priority", "", "risk tier to keep (low, medium, high)")
	f.StringVar(&opts.min, "min", "", "minimum amount")
	f.StringVar(&opts.max, "max", "", "maximum amount")
	f.StringSliceVar(&opts.currencies, "currency", nil, "currencies to keep (comma separated)")
	f.BoolVar(&opts.onlyMatching, "only-matching", false, "with --rules, hide transactions that trigger none of them")
	f.IntVar(&opts.page, "page", 1, "page number")
	f.IntVar(&opts.pageSize, "page-size", 0, "page size (20, 30, 50, 75 or 100)")
	f.BoolVar(&opts.all, "all", false, "print every page from --page to the last")
	f.BoolVar(&opts.asJSON, "json", false, "print the page as JSON")

	return cmd
}

func printView(w io.Writer, view *session.View, ds *domain.Dataset) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	// RISK is styled, and tabwriter counts escape codes as width, so it
	// stays in the last column.
	fmt.Fprintln(tw, "ID\tDATE\tSENDER\tRECEIVER\tAMOUNT\tCURRENCY\tTYPE\tTRIGGERED\tREASONS\tRISK")
	for _, item := range view.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			item.ID,
			item.Timestamp,
			item.Sender,
			item.Receiver,
			strconv.FormatFloat(item.Amount, 'f', 2, 64),
			item.Currency,
			item.Type,
			item.TriggeredRulesCount,
			len(item.EvaluatedRules),
			strings.Join(risk.Reasons(item.EvaluatedRules), ", "),
			renderRisk(item.Risk),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	footer := fmt.Sprintf("page %d of %d, %d transactions", view.CurrentPage, view.TotalPages, view.Total)
	if ds.FallbackRules {
		footer += " (fallback rule catalog)"
	}
	_, err := fmt.Fprintln(w, lipgloss.NewStyle().Faint(true).Render(footer))
	return err
}

func renderRisk(tier domain.RiskTier) string {
	style, ok := riskStyles[tier]
	if !ok {
		return string(tier)
	}
	return style.Render(string(tier))
}
