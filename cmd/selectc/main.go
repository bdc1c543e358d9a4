package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	sqle "gopkg.in/src-d/go-selectc.v0"
	"gopkg.in/src-d/go-selectc.v0/memory"
	"gopkg.in/src-d/go-selectc.v0/sql"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	config    string
	fixtures  string
	query     string
	explain   bool
	stats     bool
	logLevel  string
	logFormat string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var o options
	fs := flag.NewFlagSet("selectc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.config, "config", "", "YAML file with the compiler configuration")
	fs.StringVar(&o.fixtures, "fixtures", "", "YAML file with the tables and views to load")
	fs.StringVar(&o.query, "q", "", "query to run; queries are read from stdin, one per line ending with ';', when empty")
	fs.BoolVar(&o.explain, "explain", false, "print the compiled program instead of running it")
	fs.BoolVar(&o.stats, "stats", false, "print the execution statistics of each query")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	fs.StringVar(&o.logFormat, "log-format", "text", "log format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: selectc [options]\n\n")
		fmt.Fprintf(stderr, "Compiles SELECT statements to bytecode and runs them over in-memory tables.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  selectc -fixtures tables.yml -q \"SELECT * FROM t ORDER BY a\"\n")
		fmt.Fprintf(stderr, "  selectc -fixtures tables.yml -explain -q \"SELECT DISTINCT a FROM t\"\n")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return &o, nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	logger, err := sqle.NewLogger(stderr, o.logLevel, sqle.LogFormat(o.logFormat))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return 2
	}

	e, err := newEngine(o)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return 1
	}
	if e.Config.Debug {
		logger.Level = logrus.DebugLevel
	}

	queries := []string{o.query}
	if o.query == "" {
		if queries, err = readQueries(stdin); err != nil {
			fmt.Fprintf(stderr, "Error: %s\n", err)
			return 1
		}
	}

	status := 0
	for _, q := range queries {
		ctx := e.NewContext(context.Background(),
			sql.WithQuery(q),
			sql.WithLogger(logrus.NewEntry(logger)),
		)
		if err := runQuery(ctx, e, o, q, stdout); err != nil {
			fmt.Fprintf(stderr, "Error: %s\n", err)
			status = 1
		}
	}
	return status
}

func newEngine(o *options) (*sqle.Engine, error) {
	cfg := sql.DefaultConfig()
	if o.config != "" {
		f, err := os.Open(o.config)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		if cfg, err = sql.LoadConfig(f); err != nil {
			return nil, err
		}
	}

	e := sqle.New(memory.NewCatalog(), cfg)
	if o.fixtures == "" {
		return e, nil
	}

	f, err := os.Open(o.fixtures)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fixtures, err := memory.ReadFixtures(f)
	if err != nil {
		return nil, err
	}
	if err := e.Catalog.Load(fixtures, e.Parse); err != nil {
		return nil, err
	}
	return e, nil
}

// readQueries splits the input in statements ending with ';'. Lines
// starting with "--" are skipped.
func readQueries(r io.Reader) ([]string, error) {
	var (
		queries []string
		current []string
	)
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		current = append(current, line)
		if strings.HasSuffix(line, ";") {
			queries = append(queries, strings.Join(current, " "))
			current = nil
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if len(current) > 0 {
		queries = append(queries, strings.Join(current, " "))
	}
	return queries, nil
}

func runQuery(ctx *sql.Context, e *sqle.Engine, o *options, q string, w io.Writer) error {
	if o.explain {
		prog, err := e.Explain(ctx, q)
		if err != nil {
			return err
		}
		fmt.Fprint(w, prog.String())
		return nil
	}

	res, err := e.Exec(ctx, q)
	if err != nil {
		return err
	}
	if len(res.Columns) == 0 {
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(res.Columns)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for _, row := range res.Rows {
		table.Append(formatRow(row))
	}
	table.Render()

	if o.stats {
		fmt.Fprintf(w, "%d rows, %d steps, %d table scans, %d ephemeral inserts, %d max ephemeral rows\n",
			len(res.Rows), res.Stats.Steps, res.Stats.TableScans, res.Stats.Inserts, res.Stats.MaxEphemeralRows)
	}
	return nil
}

func formatRow(row sql.Row) []string {
	out := make([]string, len(row))
	for i, v := range row {
		if v == nil {
			out[i] = "NULL"
			continue
		}
		s, _ := sql.ToText(v)
		out[i] = s
	}
	return out
}
