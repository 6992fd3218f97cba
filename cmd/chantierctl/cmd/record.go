package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"chantier/internal/core"
)

func (a *app) addSiteCmd() *cobra.Command {
	var name, address, description, status, startDate, rate string
	c := &cobra.Command{
		Use:   "add-site",
		Short: "Create a site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session()
			if err != nil {
				return err
			}
			site := core.Site{
				Name:        name,
				Address:     address,
				Description: description,
				Status:      core.SiteStatus(status),
				CurrentRate: core.ParseAmount(rate),
			}
			if startDate != "" {
				if site.StartDate, err = core.ParseDate(startDate); err != nil {
					return err
				}
			}
			created, err := a.svc.CreateSite(cmd.Context(), sess, site)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created site #%d %s\n", created.ID, created.Name)
			return nil
		},
	}
	c.Flags().StringVar(&name, "name", "", "Site name")
	c.Flags().StringVar(&address, "address", "", "Site address")
	c.Flags().StringVar(&description, "description", "", "Free-text description")
	c.Flags().StringVar(&status, "status", "", "active, paused or finished")
	c.Flags().StringVar(&startDate, "start-date", "", "Start date (YYYY-MM-DD)")
	c.Flags().StringVar(&rate, "rate", "0", "Hourly rate for new entries")
	c.MarkFlagRequired("name")
	return c
}

func (a *app) logTimeCmd() *cobra.Command {
	var date, from, to string
	c := &cobra.Command{
		Use:   "log-time <site-id>",
		Short: "Record a shift at the site's current rate",
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
			day, err := core.ParseDate(date)
			if err != nil {
				return err
			}
			e, err := a.svc.LogTime(cmd.Context(), sess, id, day, core.ParseTimeOfDay(from), core.ParseTimeOfDay(to))
			if err != nil {
				return err
			}
			b := core.ComputeEntryBreakdown(e)
			fmt.Fprintf(cmd.OutOrStdout(), "Logged entry #%d: %s %s-%s, %s at %s = %s\n",
				e.ID, e.Date, e.ArrivedAt, e.DepartedAt, b.DurationDisplay(),
				core.FormatMoney(e.HourlyRate), core.FormatMoney(b.Earnings))
			return nil
		},
	}
	c.Flags().StringVar(&date, "date", "", "Day worked (YYYY-MM-DD)")
	c.Flags().StringVar(&from, "from", "", "Arrival time (HH:MM)")
	c.Flags().StringVar(&to, "to", "", "Departure time (HH:MM), earlier than --from for night shifts")
	c.MarkFlagRequired("date")
	return c
}

func (a *app) addExpenseCmd() *cobra.Command {
	var date, description, base, margin, amount string
	c := &cobra.Command{
		Use:   "add-expense <site-id>",
		Short: "Record an expense, with an optional margin on top of its base amount",
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
			day, err := core.ParseDate(date)
			if err != nil {
				return err
			}
			x, err := a.svc.AddExpense(cmd.Context(), sess, id, core.Expense{
				Date:        day,
				Description: description,
				BaseAmount:  core.ParseOptionalAmount(base),
				Margin:      core.ParseOptionalAmount(margin),
				Amount:      core.ParseOptionalAmount(amount),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added expense #%d %s: %s\n",
				x.ID, x.Description, core.FormatMoney(core.ExpenseTotal(x)))
			return nil
		},
	}
	c.Flags().StringVar(&date, "date", "", "Expense date (YYYY-MM-DD)")
	c.Flags().StringVar(&description, "description", "", "What was bought")
	c.Flags().StringVar(&base, "base", "", "Base amount before margin")
	c.Flags().StringVar(&margin, "margin", "", "Margin percent applied to the base amount")
	c.Flags().StringVar(&amount, "amount", "", "Flat amount, used when no base amount is given")
	c.MarkFlagRequired("date")
	c.MarkFlagRequired("description")
	return c
}

func (a *app) setRateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-rate <site-id> <rate>",
		Short: "Change the hourly rate used for new entries",
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
			rate := core.ParseAmount(args[1])
			if err := a.svc.SetRate(cmd.Context(), sess, id, rate); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Site #%d rate set to %s\n", id, core.FormatMoney(rate))
			return nil
		},
	}
}

func (a *app) attachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach <site-id> <expense-id> <file>",
		Short: "Store a receipt for an expense",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session()
			if err != nil {
				return err
			}
			siteID, err := parseSiteID(args[0])
			if err != nil {
				return err
			}
			expenseID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid expense id %q", args[1])
			}
			f, err := os.Open(args[2])
			if err != nil {
				return err
			}
			defer f.Close()

			p, err := a.svc.AttachFile(cmd.Context(), sess, siteID, expenseID, filepath.Base(args[2]), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s\n", p)
			return nil
		},
	}
}
