package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"spndr/internal/core"
	"spndr/internal/services"
)

// ErrUsage is returned for unknown commands and bad arguments. The flag
// set has already printed its usage when it is returned.
var ErrUsage = errors.New("usage error")

// Coordinator is what the client commands need from the sync layer.
type Coordinator interface {
	List(ctx context.Context) ([]core.Transaction, services.Outcome, error)
	Create(ctx context.Context, draft core.Transaction) (core.Transaction, services.Outcome, error)
	Update(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, services.Outcome, error)
	Delete(ctx context.Context, id string) (services.Outcome, error)
	ClearAll(ctx context.Context) (services.Outcome, error)
	Summary(ctx context.Context) (core.TransactionSummary, services.Outcome, error)
	Categories(ctx context.Context) ([]core.CategorySummary, services.Outcome, error)
}

// App runs client subcommands against a Coordinator.
type App struct {
	Sync     Coordinator
	Out      io.Writer
	Err      io.Writer
	Currency string
	// Today is used as the default date for add.
	Today func() time.Time
}

const usage = `usage: spndr <command> [flags]

commands:
  list        [-type income|expense] [-limit N] [-json]
  add         -title T -amount A -category C [-type expense] [-date YYYY-MM-DD] [-description D]
  update <id> [-title T] [-amount A] [-category C] [-type T] [-date YYYY-MM-DD] [-description D]
  delete <id>
  clear
  summary     [-json]
  categories  [-top N] [-json]
  monthly     [-months N] [-json]
`

// Run executes one subcommand.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.Err, usage)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "list":
		err = a.list(ctx, rest)
	case "add":
		err = a.add(ctx, rest)
	case "update":
		err = a.update(ctx, rest)
	case "delete":
		err = a.delete(ctx, rest)
	case "clear":
		err = a.clear(ctx, rest)
	case "summary":
		err = a.summary(ctx, rest)
	case "categories":
		err = a.categories(ctx, rest)
	case "monthly":
		err = a.monthly(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprint(a.Out, usage)
	default:
		fmt.Fprintf(a.Err, "unknown command %q\n\n%s", cmd, usage)
		err = ErrUsage
	}
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

func (a *App) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.Err)
	return fs
}

func (a *App) parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return ErrUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(a.Err, "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return ErrUsage
	}
	return nil
}

// notice tells the user when the local store answered.
func (a *App) notice(out services.Outcome) {
	if out.FellBack() {
		fmt.Fprintf(a.Err, "warning: API unreachable, using local data (%v)\n", out.RemoteErr)
	}
}

func (a *App) list(ctx context.Context, args []string) error {
	fs := a.flagSet("list")
	typ := fs.String("type", "", "only income or expense")
	limit := fs.Int("limit", 0, "show at most N transactions, newest first")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	t, err := core.ParseTransactionType(*typ)
	if err != nil {
		return err
	}
	if *limit < 0 {
		return fmt.Errorf("invalid limit %d", *limit)
	}

	txs, out, err := a.Sync.List(ctx)
	a.notice(out)
	if err != nil {
		return err
	}
	txs = core.FilterByType(txs, t)
	txs = core.Latest(txs, *limit)

	if *asJSON {
		return a.printJSON(txs)
	}
	if len(txs) == 0 {
		fmt.Fprintln(a.Out, "No transactions.")
		return nil
	}
	tw := tabwriter.NewWriter(a.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTYPE\tCATEGORY\tTITLE\tAMOUNT")
	for _, tx := range txs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.ID, tx.Date, tx.Type, tx.Category, tx.Title, a.signed(tx))
	}
	return tw.Flush()
}

func (a *App) add(ctx context.Context, args []string) error {
	fs := a.flagSet("add")
	title := fs.String("title", "", "title (required)")
	amount := fs.String("amount", "", "positive amount (required)")
	category := fs.String("category", "", "category (required)")
	typ := fs.String("type", string(core.Expense), "income or expense")
	date := fs.String("date", "", "date as YYYY-MM-DD, defaults to today")
	description := fs.String("description", "", "optional note")
	if err := a.parse(fs, args); err != nil {
		return err
	}

	draft := core.Transaction{
		Title:       strings.TrimSpace(*title),
		Category:    strings.TrimSpace(*category),
		Description: strings.TrimSpace(*description),
	}
	var err error
	if draft.Amount, err = core.ParseAmount(*amount); err != nil {
		return err
	}
	if draft.Type, err = core.ParseTransactionType(*typ); err != nil {
		return err
	}
	if draft.Date, err = a.parseDate(*date); err != nil {
		return err
	}

	tx, out, err := a.Sync.Create(ctx, draft)
	a.notice(out)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Added %s: %s %s (%s)\n", tx.ID, tx.Title, a.signed(tx), tx.Category)
	return nil
}

func (a *App) update(ctx context.Context, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		fmt.Fprint(a.Err, "usage: spndr update <id> [flags]\n")
		return ErrUsage
	}
	id := args[0]

	fs := a.flagSet("update")
	title := fs.String("title", "", "new title")
	amount := fs.String("amount", "", "new amount")
	category := fs.String("category", "", "new category")
	typ := fs.String("type", "", "new type")
	date := fs.String("date", "", "new date as YYYY-MM-DD")
	description := fs.String("description", "", "new note")
	if err := a.parse(fs, args[1:]); err != nil {
		return err
	}

	var patch core.TransactionPatch
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "title":
			v := strings.TrimSpace(*title)
			patch.Title = &v
		case "category":
			v := strings.TrimSpace(*category)
			patch.Category = &v
		case "description":
			v := strings.TrimSpace(*description)
			patch.Description = &v
		case "amount":
			var d decimal.Decimal
			if d, err = core.ParseAmount(*amount); err == nil {
				patch.Amount = &d
			}
		case "type":
			var t core.TransactionType
			if t, err = core.ParseTransactionType(*typ); err == nil {
				if t == "" {
					err = core.ErrInvalidType
					return
				}
				patch.Type = &t
			}
		case "date":
			var d core.Date
			if d, err = core.ParseDate(*date); err == nil {
				patch.Date = &d
			}
		}
	})
	if err != nil {
		return err
	}
	if patch.IsEmpty() {
		return errors.New("nothing to update")
	}

	tx, out, err := a.Sync.Update(ctx, id, patch)
	a.notice(out)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Updated %s: %s %s (%s)\n", tx.ID, tx.Title, a.signed(tx), tx.Category)
	return nil
}

func (a *App) delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		fmt.Fprint(a.Err, "usage: spndr delete <id>\n")
		return ErrUsage
	}
	out, err := a.Sync.Delete(ctx, args[0])
	a.notice(out)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Deleted %s\n", args[0])
	return nil
}

func (a *App) clear(ctx context.Context, args []string) error {
	if err := a.parse(a.flagSet("clear"), args); err != nil {
		return err
	}
	out, err := a.Sync.ClearAll(ctx)
	a.notice(out)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.Out, "All transactions cleared")
	return nil
}

func (a *App) summary(ctx context.Context, args []string) error {
	fs := a.flagSet("summary")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := a.parse(fs, args); err != nil {
		return err
	}

	sum, out, err := a.Sync.Summary(ctx)
	a.notice(out)
	if err != nil {
		return err
	}
	if *asJSON {
		return a.printJSON(sum)
	}
	tw := tabwriter.NewWriter(a.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Income:\t%s\n", core.FormatCurrency(sum.TotalIncome, a.Currency))
	fmt.Fprintf(tw, "Expenses:\t%s\n", core.FormatCurrency(sum.TotalExpenses, a.Currency))
	fmt.Fprintf(tw, "Balance:\t%s\n", core.FormatCurrency(sum.Balance, a.Currency))
	fmt.Fprintf(tw, "Transactions:\t%d\n", sum.TransactionCount)
	return tw.Flush()
}

func (a *App) categories(ctx context.Context, args []string) error {
	fs := a.flagSet("categories")
	top := fs.Int("top", 0, "show only the N largest categories")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	if *top < 0 {
		return fmt.Errorf("invalid top %d", *top)
	}

	cats, out, err := a.Sync.Categories(ctx)
	a.notice(out)
	if err != nil {
		return err
	}
	cats = core.TopCategories(cats, *top)

	if *asJSON {
		return a.printJSON(cats)
	}
	if len(cats) == 0 {
		fmt.Fprintln(a.Out, "No transactions.")
		return nil
	}
	tw := tabwriter.NewWriter(a.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tAMOUNT\tSHARE")
	for _, c := range cats {
		fmt.Fprintf(tw, "%s\t%s\t%.1f%%\n", c.Category, core.FormatCurrency(c.Amount, a.Currency), c.Percentage)
	}
	return tw.Flush()
}

func (a *App) monthly(ctx context.Context, args []string) error {
	fs := a.flagSet("monthly")
	months := fs.Int("months", 6, "number of most recent months")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	if *months < 0 {
		return fmt.Errorf("invalid months %d", *months)
	}

	txs, out, err := a.Sync.List(ctx)
	a.notice(out)
	if err != nil {
		return err
	}
	totals := core.Monthly(txs, *months)

	if *asJSON {
		return a.printJSON(totals)
	}
	if len(totals) == 0 {
		fmt.Fprintln(a.Out, "No transactions.")
		return nil
	}
	tw := tabwriter.NewWriter(a.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MONTH\tINCOME\tEXPENSES\tNET")
	for _, m := range totals {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Month,
			core.FormatCurrency(m.Income, a.Currency),
			core.FormatCurrency(m.Expenses, a.Currency),
			core.FormatCurrency(m.Income.Sub(m.Expenses), a.Currency))
	}
	return tw.Flush()
}

// signed renders expenses with a leading minus.
func (a *App) signed(tx core.Transaction) string {
	amount := tx.Amount
	if tx.Type == core.Expense {
		amount = amount.Neg()
	}
	return core.FormatCurrency(amount, a.Currency)
}

func (a *App) parseDate(s string) (core.Date, error) {
	if strings.TrimSpace(s) == "" {
		now := time.Now
		if a.Today != nil {
			now = a.Today
		}
		t := now()
		return core.NewDate(t.Year(), int(t.Month()), t.Day()), nil
	}
	return core.ParseDate(s)
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
