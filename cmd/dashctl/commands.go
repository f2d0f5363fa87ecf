package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/docopt/docopt-go"
	"golang.org/x/term"

	"github.com/kleanup/dashboard/internal/core/auth"
	"github.com/kleanup/dashboard/internal/core/catalog"
	"github.com/kleanup/dashboard/internal/core/listing"
	"github.com/kleanup/dashboard/internal/core/notify"
	"github.com/kleanup/dashboard/internal/core/record"
	"github.com/kleanup/dashboard/internal/core/resource"
	"github.com/kleanup/dashboard/internal/core/table"
)

const defaultAPI = "http://localhost:9090"

// printer writes table notifications to stderr as they happen.
type printer struct{}

func (printer) Notify(level notify.Level, res, message string) notify.Notification {
	Err.Printf("[%s] %s: %s\n", level, res, message)
	return notify.Notification{Level: level, Resource: res, Message: message}
}

func loadCatalog(opts docopt.Opts) (*catalog.Catalog, error) {
	path, _ := opts.String("--catalog")
	return catalog.Load(path)
}

func backend(opts docopt.Opts, withToken bool) (*resource.API, error) {
	baseURL, _ := opts.String("--api")
	if baseURL == "" {
		baseURL = os.Getenv("DASHBOARD_API")
	}
	if baseURL == "" {
		baseURL = defaultAPI
	}
	api := resource.NewAPI(baseURL)
	if !withToken {
		return api, nil
	}

	token, _ := opts.String("--token")
	if token == "" {
		token = os.Getenv("DASHBOARD_TOKEN")
	}
	if token == "" {
		return nil, errors.New("no token: pass --token or set DASHBOARD_TOKEN")
	}
	return api.WithToken(token), nil
}

// openTable loads the named resource into a table controller.
func openTable(ctx context.Context, opts docopt.Opts) (*table.Controller, error) {
	cat, err := loadCatalog(opts)
	if err != nil {
		return nil, err
	}
	name, _ := opts.String("<resource>")
	res, err := cat.Get(name)
	if err != nil {
		return nil, err
	}
	api, err := backend(opts, true)
	if err != nil {
		return nil, err
	}

	tbl := table.New(res, resource.NewClient(api, res), table.Options{Notifier: printer{}})
	if err := tbl.Refresh(ctx); err != nil {
		tbl.Close()
		return nil, err
	}
	return tbl, nil
}

func listResources(opts docopt.Opts) error {
	cat, err := loadCatalog(opts)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTITLE\tENDPOINT\tACTIONS")
	for _, res := range cat.Resources {
		var actions []string
		for _, a := range res.Actions {
			actions = append(actions, a.Name)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", res.Name, res.Title, res.Endpoint, strings.Join(actions, ","))
	}
	return w.Flush()
}

func login(ctx context.Context, opts docopt.Opts) error {
	email, _ := opts.String("--email")
	api, err := backend(opts, false)
	if err != nil {
		return err
	}

	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	tokens, err := api.Login(ctx, email, string(password))
	if err != nil {
		return errors.New(resource.Message(err))
	}
	user, err := api.CurrentUser(ctx, tokens.AccessToken)
	if err != nil {
		return errors.New(resource.Message(err))
	}
	if !user.IsAdmin {
		return auth.ErrNotAdmin
	}

	Out.Println(tokens.AccessToken)
	return nil
}

func list(ctx context.Context, opts docopt.Opts) error {
	filters, err := parseFilters(filterArgs(opts))
	if err != nil {
		return err
	}

	tbl, err := openTable(ctx, opts)
	if err != nil {
		return err
	}
	defer tbl.Close()

	search, _ := opts.String("--search")
	if err := tbl.SetQuery(filters, search, nil); err != nil {
		return err
	}

	if field, _ := opts.String("--sort"); field != "" {
		desc, _ := opts.Bool("--desc")
		want := catalog.Asc
		if desc {
			want = catalog.Desc
		}
		state, err := tbl.ToggleSort(field)
		if err != nil {
			return err
		}
		if state.Direction != want {
			if _, err := tbl.ToggleSort(field); err != nil {
				return err
			}
		}
	}

	if size, err := opts.Int("--page-size"); err == nil {
		if size <= 0 {
			return errors.New("--page-size must be positive")
		}
		tbl.SetPageSize(size)
	}
	page, err := opts.Int("--page")
	if err != nil || page < 1 {
		return errors.New("--page must be a positive integer")
	}
	for i := 1; i < page; i++ {
		tbl.NextPage()
	}

	snap := tbl.View()
	printPage(tbl.Resource(), snap.Page)
	return nil
}

func printPage(res *catalog.Resource, page listing.Page[record.Record]) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	headers := make([]string, 0, len(res.Fields))
	for _, f := range res.Fields {
		headers = append(headers, strings.ToUpper(f.Name))
	}
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range page.Items {
		cells := make([]string, 0, len(res.Fields))
		for _, f := range res.Fields {
			cells = append(cells, cell(row[f.Name]))
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()

	Err.Printf("Showing %d to %d of %d entries (page %d of %d)\n",
		page.From, page.To, page.TotalItems, page.Number, page.TotalPages)
}

// show prints one record as field/value lines, read fresh from the backend.
func show(ctx context.Context, opts docopt.Opts) error {
	tbl, err := openTable(ctx, opts)
	if err != nil {
		return err
	}
	defer tbl.Close()

	id, _ := opts.String("<id>")
	rec, err := tbl.Fetch(ctx, id)
	if err != nil {
		return err
	}

	res := tbl.Resource()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", strings.ToUpper(res.Schema().ID()), id)
	for _, f := range res.Fields {
		fmt.Fprintf(w, "%s\t%s\n", strings.ToUpper(f.Name), cell(rec[f.Name]))
	}
	return w.Flush()
}

func remove(ctx context.Context, opts docopt.Opts) error {
	tbl, err := openTable(ctx, opts)
	if err != nil {
		return err
	}
	defer tbl.Close()

	id, _ := opts.String("<id>")
	if err := tbl.RequestDelete(id); err != nil {
		return err
	}
	return tbl.ConfirmDelete(ctx, id)
}

func runAction(ctx context.Context, opts docopt.Opts) error {
	tbl, err := openTable(ctx, opts)
	if err != nil {
		return err
	}
	defer tbl.Close()

	id, _ := opts.String("<id>")
	name, _ := opts.String("<action>")
	rec, err := tbl.RunAction(ctx, id, name)
	if err != nil {
		return err
	}
	if rec != nil {
		printPage(tbl.Resource(), listing.Page[record.Record]{
			Items: []record.Record{rec}, Number: 1, Size: 1, TotalPages: 1, TotalItems: 1, From: 1, To: 1,
		})
	}
	return nil
}

func filterArgs(opts docopt.Opts) []string {
	args, _ := opts["--filter"].([]string)
	return args
}

// parseFilters turns field=value pairs into an equality filter map.
func parseFilters(args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(args))
	for _, kv := range args {
		field, value, ok := strings.Cut(kv, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid filter %q, want field=value", kv)
		}
		out[field] = value
	}
	return out, nil
}

func cell(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case string:
		if r := []rune(val); len(r) > 40 {
			return string(r[:37]) + "..."
		}
		return val
	default:
		return record.ValueText(val)
	}
}
