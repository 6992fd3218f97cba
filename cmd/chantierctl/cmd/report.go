package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"chantier/internal/core"
	"chantier/internal/services"
)

func (a *app) sitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List sites with their totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session()
			if err != nil {
				return err
			}
			overviews, err := a.svc.Overviews(cmd.Context(), sess)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tRATE\tHOURS\tEARNINGS\tEXPENSES\tNET")
			for _, o := range overviews {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					o.Site.ID, o.Site.Name, o.Site.Status,
					core.FormatMoney(o.Site.CurrentRate),
					o.Totals.HoursDisplay(),
					core.FormatMoney(o.Totals.TotalEarnings),
					core.FormatMoney(o.Totals.TotalExpenses),
					core.FormatMoney(o.Totals.NetTotal))
			}
			return tw.Flush()
		},
	}
}

func (a *app) totalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "totals <site-id>",
		Short: "Show a site's entries, expenses and totals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session()
			if err != nil {
				return err
			}
			id, err := parseSiteID(args[0])
			if err != nil {
				return err
			}
			d, err := a.svc.Detail(cmd.Context(), sess, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (#%d)\n\n", d.Site.Name, d.Site.ID)
			printRecords(out, d.Entries, d.Expenses)
			printTotals(out, d.Totals)
			return nil
		},
	}
}

func (a *app) daysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "days <site-id>",
		Short: "List the days with activity, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session()
			if err != nil {
				return err
			}
			id, err := parseSiteID(args[0])
			if err != nil {
				return err
			}
			days, err := a.svc.Days(cmd.Context(), sess, id)
			if err != nil {
				return err
			}
			for _, d := range days {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}
}

func (a *app) dayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "day <site-id> <YYYY-MM-DD>",
		Short: "Show one day of a site",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session()
			if err != nil {
				return err
			}
			id, err := parseSiteID(args[0])
			if err != nil {
				return err
			}
			date, err := core.ParseDate(args[1])
			if err != nil {
				return err
			}
			d, err := a.svc.DaySummary(cmd.Context(), sess, id, date)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (#%d) %s\n\n", d.Site.Name, d.Site.ID, d.Date)
			printRecords(out, d.Entries, d.Expenses)
			printTotals(out, d.Totals)
			return nil
		},
	}
}

func (a *app) exportCmd() *cobra.Command {
	var date string
	c := &cobra.Command{
		Use:   "export <site-id>",
		Short: "Write the spreadsheet export of a site to stdout as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session()
			if err != nil {
				return err
			}
			id, err := parseSiteID(args[0])
			if err != nil {
				return err
			}
			var day *core.Date
			if date != "" {
				d, err := core.ParseDate(date)
				if err != nil {
					return err
				}
				day = &d
			}
			rows, err := a.svc.Export(cmd.Context(), sess, id, day)
			if err != nil {
				return err
			}
			return csv.NewWriter(cmd.OutOrStdout()).WriteAll(rows)
		},
	}
	c.Flags().StringVar(&date, "date", "", "Restrict the export to one day (YYYY-MM-DD)")
	return c
}

func printRecords(out io.Writer, entries []services.EntryView, expenses []services.ExpenseView) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if len(entries) > 0 {
		fmt.Fprintln(tw, "ID\tDATE\tARRIVAL\tDEPARTURE\tDURATION\tRATE\tEARNINGS")
		for _, v := range entries {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				v.Entry.ID, v.Entry.Date, v.Entry.ArrivedAt, v.Entry.DepartedAt,
				v.Breakdown.DurationDisplay(),
				core.FormatMoney(v.Entry.HourlyRate),
				core.FormatMoney(v.Breakdown.Earnings))
		}
		fmt.Fprintln(tw)
	}
	if len(expenses) > 0 {
		fmt.Fprintln(tw, "ID\tDATE\tDESCRIPTION\tBASE\tMARGIN\tTOTAL")
		for _, v := range expenses {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
				v.Expense.ID, v.Expense.Date, v.Expense.Description,
				core.FormatMoney(v.Breakdown.Base),
				core.FormatPercent(v.Breakdown.MarginPercent),
				core.FormatMoney(v.Breakdown.Total))
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
}

func printTotals(out io.Writer, t core.Totals) {
	fmt.Fprintf(out, "Hours:    %s\n", t.HoursDisplay())
	fmt.Fprintf(out, "Earnings: %s\n", core.FormatMoney(t.TotalEarnings))
	fmt.Fprintf(out, "Expenses: %s\n", core.FormatMoney(t.TotalExpenses))
	fmt.Fprintf(out, "Net:      %s\n", core.FormatMoney(t.NetTotal))
}
