// Command forecourtctl is the operator CLI. It prices invoice JSON files,
// enqueues background jobs, flushes the taxonomy cache and hashes passwords
// for seeding users.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/forecourt/forecourt/internal/auth"
	"github.com/forecourt/forecourt/internal/invoices"
	"github.com/forecourt/forecourt/internal/pricing"
	"github.com/forecourt/forecourt/internal/taxonomy"
	"github.com/forecourt/forecourt/jobs"
)

func main() {
	if err := newApp(os.Stdin, os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "forecourtctl:", err)
		var coded cli.ExitCoder
		if errors.As(err, &coded) {
			os.Exit(coded.ExitCode())
		}
		os.Exit(1)
	}
}

func newApp(stdin io.Reader, stdout io.Writer) *cli.App {
	return &cli.App{
		Name:      "forecourtctl",
		Usage:     "operate a forecourt installation",
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stdout,
		// main reports errors and picks the exit code.
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			calcCommand(),
			jobsCommand(),
			taxonomyCommand(),
			hashPasswordCommand(),
		},
	}
}

func calcCommand() *cli.Command {
	return &cli.Command{
		Name:      "calc",
		Usage:     "print the price breakdown of an invoice JSON document",
		ArgsUsage: "<file.json>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "vat", Usage: "default VAT rate as a fraction", Value: pricing.DefaultVATRate.String(), EnvVars: []string{"PRICING_VAT_RATE"}},
			&cli.BoolFlag{Name: "json", Usage: "print the full breakdown as JSON"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("calc needs exactly one file", 2)
			}
			vat, err := decimal.NewFromString(c.String("vat"))
			if err != nil {
				return fmt.Errorf("parse --vat: %w", err)
			}
			raw, err := readInput(c.App.Reader, c.Args().First())
			if err != nil {
				return err
			}
			var data invoices.ComprehensiveInvoiceData
			if err := json.Unmarshal(raw, &data); err != nil {
				return fmt.Errorf("decode invoice: %w", err)
			}
			data.RoundMoney()
			b, err := invoices.Breakdown(data, vat)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				enc := json.NewEncoder(c.App.Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(b)
			}
			return printLines(c.App.Writer, invoices.SummaryLines(b))
		},
	}
}

// readInput reads path, or stdin when path is "-".
func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return raw, nil
}

func printLines(w io.Writer, lines []invoices.Line) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, l := range lines {
		label := l.Label
		if l.Total {
			label = strings.ToUpper(label)
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\t\n", label, pricing.FormatGBP(l.Amount)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func jobsCommand() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "work with the background queue",
		Subcommands: []*cli.Command{
			{
				Name:      "trigger",
				Usage:     "enqueue a task by type",
				ArgsUsage: "<task-type>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "redis", Value: "127.0.0.1:6379", EnvVars: []string{"REDIS_ADDR"}},
					&cli.StringFlag{Name: "payload", Usage: "task payload as JSON"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("trigger needs a task type, one of: "+strings.Join(jobs.TaskTypes(), ", "), 2)
					}
					client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: c.String("redis")})
					if err != nil {
						return err
					}
					defer client.Close()
					info, err := client.Trigger(c.Context, c.Args().First(), []byte(c.String("payload")))
					if errors.Is(err, jobs.ErrUnknownTask) {
						return cli.Exit(err.Error()+"; known: "+strings.Join(jobs.TaskTypes(), ", "), 2)
					}
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(c.App.Writer, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
					return err
				},
			},
		},
	}
}

func taxonomyCommand() *cli.Command {
	return &cli.Command{
		Name:  "taxonomy",
		Usage: "manage the cached vehicle taxonomy",
		Subcommands: []*cli.Command{
			{
				Name:  "flush",
				Usage: "invalidate every cached taxonomy response",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "redis", Value: "127.0.0.1:6379", EnvVars: []string{"REDIS_ADDR"}},
				},
				Action: func(c *cli.Context) error {
					rdb := redis.NewClient(&redis.Options{Addr: c.String("redis")})
					defer rdb.Close()
					cache := taxonomy.NewCache(rdb, 0)
					if err := cache.Bump(c.Context); err != nil {
						return fmt.Errorf("flush taxonomy cache: %w", err)
					}
					ver, err := cache.Version(c.Context)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(c.App.Writer, "taxonomy cache now at version %d\n", ver)
					return err
				},
			},
		},
	}
}

func hashPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:      "hash-password",
		Usage:     "print a bcrypt hash for users.password_hash",
		ArgsUsage: "[password]",
		Action: func(c *cli.Context) error {
			password := c.Args().First()
			if password == "" {
				line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if len(password) < 8 {
				return cli.Exit("password must be at least 8 characters", 2)
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, hash)
			return err
		},
	}
}
