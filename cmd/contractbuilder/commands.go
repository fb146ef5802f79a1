package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"contractbuilder/internal/auth"
	"contractbuilder/internal/contracts"
	"contractbuilder/internal/database"
	"contractbuilder/internal/models"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			return db.Close()
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Insert the bundled contract templates (existing ids are skipped)",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			return database.Seed(db)
		},
	}
}

func compileCommand() *cli.Command {
	return &cli.Command{
		Name:      "compile",
		Usage:     "Compile a stored template to a PDF file",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "template", Aliases: []string{"t"}, Usage: "template `ID`", Required: true},
			&cli.StringSliceFlag{Name: "var", Usage: "variable value as `NAME=VALUE` (repeatable)"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output `FILE` (default: <title>.pdf)"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			svc, valkeyClient, err := buildService(cfg, db)
			if err != nil {
				return err
			}
			if valkeyClient != nil {
				defer valkeyClient.Close()
			}

			t, err := svc.Get(c.Context, c.String("template"))
			if err != nil {
				return err
			}
			values, err := parseVars(t.Variables, c.StringSlice("var"))
			if err != nil {
				return err
			}

			// The command line is trusted, so drafts compile too.
			doc, err := svc.Compile(c.Context, contracts.CompileRequest{
				TemplateID: t.ID,
				Values:     values,
				Author:     true,
			})
			if err != nil {
				return err
			}

			out := c.String("out")
			if out == "" {
				out = localFileName(doc.FileName)
			}
			if err := os.WriteFile(out, doc.PDF, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			slog.Info("pdf written", "file", out, "bytes", len(doc.PDF))
			if doc.DownloadURL != "" {
				fmt.Fprintln(c.App.Writer, doc.DownloadURL)
			}
			return nil
		},
	}
}

// parseVars converts NAME=VALUE pairs into raw JSON values. Declared
// number and boolean variables take the value as a JSON literal; every
// other variable receives it as a string.
func parseVars(defs models.Variables, pairs []string) (map[string]json.RawMessage, error) {
	values := make(map[string]json.RawMessage, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q: expected NAME=VALUE", pair)
		}
		values[name] = rawValue(defs.Find(name), value)
	}
	return values, nil
}

func rawValue(def *models.VariableDefinition, value string) json.RawMessage {
	literal := def == nil
	if def != nil {
		literal = def.Type == models.VariableTypeNumber || def.Type == models.VariableTypeBoolean
	}
	if literal && json.Valid([]byte(value)) {
		return json.RawMessage(value)
	}
	quoted, _ := json.Marshal(value)
	return quoted
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue a bearer token signed with the configured auth secret (development)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "subject", Aliases: []string{"s"}, Usage: "token `SUBJECT` (author id)", Required: true},
			&cli.StringFlag{Name: "email", Usage: "optional email claim"},
			&cli.DurationFlag{Name: "ttl", Usage: "token lifetime", Value: time.Hour},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if !cfg.IsDev() && cfg.App.Env != "testing" {
				return errors.New("token issuing is only available outside production")
			}
			token, err := auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer).
				Issue(c.String("subject"), c.String("email"), c.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, token)
			return nil
		},
	}
}

func versionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "versions",
		Usage: "List the version history of a template",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "template", Aliases: []string{"t"}, Usage: "template `ID`", Required: true},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			svc, valkeyClient, err := buildService(cfg, db)
			if err != nil {
				return err
			}
			if valkeyClient != nil {
				defer valkeyClient.Close()
			}

			versions, err := svc.Versions(c.Context, c.String("template"))
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tCREATED\tAUTHOR\tCHANGELOG")
			for _, v := range versions {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", v.Version, v.CreatedAt.Format(time.DateTime),
					deref(v.CreatedBy), deref(v.Changelog))
			}
			return tw.Flush()
		},
	}
}

// localFileName turns a document file name into a name inside the working
// directory.
func localFileName(name string) string {
	name = strings.NewReplacer("/", "-", `\`, "-").Replace(name)
	name = filepath.Base(name)
	if name == "." || name == ".." || name == "" {
		return "document.pdf"
	}
	return name
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
