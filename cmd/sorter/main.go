// Command sorter runs the email voting service and its maintenance
// tooling: the webhook server, offline parsing and ranking, message log
// replay, and archive export/import.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"

	"github.com/sortersocial/sorter/core/dsl"
	"github.com/sortersocial/sorter/internal/api"
	"github.com/sortersocial/sorter/internal/archive"
	"github.com/sortersocial/sorter/internal/logging"
	"github.com/sortersocial/sorter/internal/mailbox"
	"github.com/sortersocial/sorter/internal/mailer"
	"github.com/sortersocial/sorter/internal/render"
	"github.com/sortersocial/sorter/internal/store"
)

// CLI defines the command-line interface for sorter.
var CLI struct {
	LogLevel  string `name:"log-level" enum:"debug,info,warn,error" default:"info" help:"Log level"`
	LogFormat string `name:"log-format" enum:"json,text" default:"json" help:"Log output format"`

	Serve   ServeCmd   `cmd:"" help:"Run the webhook and rankings server"`
	Parse   ParseCmd   `cmd:"" help:"Parse an email body and print the document"`
	Rank    RankCmd    `cmd:"" help:"Compute rankings from the message log"`
	Replay  ReplayCmd  `cmd:"" help:"Replay the message log and print the state"`
	Export  ExportCmd  `cmd:"" help:"Export the message log to a tar.xz archive"`
	Import  ImportCmd  `cmd:"" help:"Import messages from an exported archive"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

func initLogging() {
	level := map[string]logging.Level{
		"debug": logging.LevelDebug,
		"info":  logging.LevelInfo,
		"warn":  logging.LevelWarn,
		"error": logging.LevelError,
	}[CLI.LogLevel]
	format := logging.FormatJSON
	if CLI.LogFormat == "text" {
		format = logging.FormatText
	}
	logging.InitLogger(level, format)
}

// openPipeline opens the message log and rebuilds state from it.
func openPipeline(ctx context.Context, dbPath string, m *mailer.Mailer) (*api.Pipeline, *store.Store, error) {
	if m == nil {
		m = mailer.New(mailer.Config{})
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, err
	}
	p := api.NewPipeline(st, m)
	n, err := p.Load(ctx)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	logging.Info("message log replayed", "messages", n, "db", dbPath)
	return p, st, nil
}

// ServeCmd runs the HTTP server.
type ServeCmd struct {
	Port         int      `help:"HTTP server port" default:"8080"`
	DB           string   `help:"Path to the message log database" default:"./sorter.db" type:"path"`
	From         string   `help:"Sender address for outbound replies" env:"SORTER_FROM"`
	ServerToken  string   `help:"Postmark server API token" env:"POSTMARK_SERVER_TOKEN"`
	WebhookToken string   `help:"Shared secret for the inbound webhook" env:"SORTER_WEBHOOK_TOKEN"`
	RateLimit    int      `help:"Webhook requests per minute per client (0 = disabled)" default:"0"`
	Origins      []string `help:"CORS allowed origins (empty = allow all)"`
}

func (c *ServeCmd) Run() error {
	m := mailer.New(mailer.Config{ServerToken: c.ServerToken, From: c.From})
	if !m.Enabled() {
		logging.Warn("no Postmark server token configured, replies will be dropped")
	}

	p, st, err := openPipeline(context.Background(), c.DB, m)
	if err != nil {
		return err
	}
	defer st.Close()

	srv := api.NewServer(api.Config{
		Port:              c.Port,
		WebhookToken:      c.WebhookToken,
		RateLimitRequests: c.RateLimit,
		AllowedOrigins:    c.Origins,
	}, p)
	return srv.Start()
}

// ParseCmd parses a single email body from a file or stdin.
type ParseCmd struct {
	Path  string `arg:"" optional:"" help:"File to parse (default: stdin)" type:"existingfile"`
	Strip bool   `help:"Strip quoted reply history before parsing" default:"true" negatable:""`
	JSON  bool   `help:"Print the parsed document as JSON"`
}

func (c *ParseCmd) Run() error {
	var raw []byte
	var err error
	if c.Path != "" {
		raw, err = os.ReadFile(c.Path)
	} else {
		raw, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return err
	}

	body := string(raw)
	if c.Strip {
		body = mailbox.StripReply(body)
	}

	doc, err := dsl.Parse(body)
	if err != nil {
		fmt.Print(render.ErrorReply(err))
		return fmt.Errorf("parse failed")
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
	for _, cmd := range doc.Commands {
		fmt.Printf("%3d %s%s", cmd.Line, string(cmd.Kind.Marker()), cmd.Name)
		if cmd.Body != nil {
			if cmd.Body.IsRawBlock {
				fmt.Printf("  {{%d bytes}}", len(cmd.Body.RawText))
			} else {
				fmt.Printf("  {%d bytes}", len(cmd.Body.RawText))
			}
		}
		fmt.Println()
	}
	return nil
}

// RankCmd prints rankings for one section and attribute.
type RankCmd struct {
	DB        string `help:"Path to the message log database" default:"./sorter.db" type:"path"`
	Section   string `arg:"" help:"Section to rank"`
	Attribute string `arg:"" help:"Attribute to rank by"`
}

func (c *RankCmd) Run() error {
	p, st, err := openPipeline(context.Background(), c.DB, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	rankings, err := p.Rankings(c.Section, c.Attribute)
	if err != nil {
		return err
	}
	fmt.Print(render.RankingTable(c.Section, c.Attribute, rankings))
	return nil
}

// ReplayCmd rebuilds the state from the log and prints an overview.
type ReplayCmd struct {
	DB string `help:"Path to the message log database" default:"./sorter.db" type:"path"`
}

func (c *ReplayCmd) Run() error {
	p, st, err := openPipeline(context.Background(), c.DB, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	fmt.Print(p.Overview())
	return nil
}

// ExportCmd writes the message log to a tar.xz archive.
type ExportCmd struct {
	DB  string `help:"Path to the message log database" default:"./sorter.db" type:"path"`
	Out string `arg:"" help:"Archive path to write" type:"path"`
}

func (c *ExportCmd) Run() error {
	st, err := store.Open(c.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := archive.Export(context.Background(), st, c.Out)
	if err != nil {
		return err
	}
	fmt.Printf("exported %d messages to %s\n", n, c.Out)
	return nil
}

// ImportCmd merges an exported archive into the message log.
type ImportCmd struct {
	DB string `help:"Path to the message log database" default:"./sorter.db" type:"path"`
	In string `arg:"" help:"Archive path to read" type:"existingfile"`
}

func (c *ImportCmd) Run() error {
	st, err := store.Open(c.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := archive.Import(context.Background(), st, c.In)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d messages, skipped %d duplicates\n", stats.Imported, stats.Skipped)
	return nil
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("sorter version %s\n", api.Version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("sorter"),
		kong.Description("Email-driven pairwise voting and ranking"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	initLogging()
	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
