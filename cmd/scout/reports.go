package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kadirpekel/scout/pkg/config"
	"github.com/kadirpekel/scout/pkg/report"
)

// ReportsCmd inspects the report store. Only SQL backends persist reports
// between runs.
type ReportsCmd struct {
	List ReportsListCmd `cmd:"" default:"1" help:"List reports, newest first."`
	Show ReportsShowCmd `cmd:"" help:"Print one report as JSON."`

	Storage   string `help:"Storage backend: sqlite, postgres, mysql." placeholder:"BACKEND"`
	StorageDB string `name:"storage-db" help:"Storage database path or DSN." placeholder:"DSN"`
}

type ReportsListCmd struct {
	Host  string `help:"Only reports for this host."`
	Limit int    `help:"Maximum number of reports." default:"20"`
}

type ReportsShowCmd struct {
	ID string `arg:"" help:"Report ID."`
}

func (c *ReportsListCmd) Run(cli *CLI) error {
	ctx := context.Background()
	store, closeFn, err := cli.Reports.open(ctx, cli)
	if err != nil {
		return err
	}
	defer closeFn()

	reports, err := store.List(ctx, report.ListOptions{Host: c.Host, Limit: c.Limit})
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Println("No reports")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tHOST\tELEMENTS\tCREATED\tSTATUS")
	for _, r := range reports {
		status, elements := "ok", "-"
		if r.Observation != nil {
			elements = fmt.Sprint(len(r.Observation.Elements))
		} else {
			status = "unparsed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Host, elements, r.CreatedAt.Local().Format(time.DateTime), status)
	}
	return w.Flush()
}

func (c *ReportsShowCmd) Run(cli *CLI) error {
	ctx := context.Background()
	store, closeFn, err := cli.Reports.open(ctx, cli)
	if err != nil {
		return err
	}
	defer closeFn()

	r, err := store.Get(ctx, c.ID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func (c *ReportsCmd) open(ctx context.Context, cli *CLI) (report.Store, func(), error) {
	cfg, loader, err := loadConfig(ctx, cli.Config, nil)
	if err != nil {
		return nil, nil, err
	}
	if loader != nil {
		_ = loader.Close()
	}
	if c.Storage != "" {
		cfg.Storage.Backend = c.Storage
		cfg.SetDefaults()
	}
	if c.StorageDB != "" {
		cfg.Storage.Database = c.StorageDB
	}
	if !cfg.Storage.IsSQL() {
		return nil, nil, fmt.Errorf("reports are only kept across runs with a SQL storage backend (got %q)", cfg.Storage.Backend)
	}

	pool := config.NewDBPool()
	store, err := report.NewStoreFromConfig(ctx, cfg.Storage, pool)
	if err != nil {
		_ = pool.Close()
		return nil, nil, err
	}
	return store, func() { _ = pool.Close() }, nil
}
