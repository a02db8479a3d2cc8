package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"rfqcrm/internal/config"
	"rfqcrm/internal/connectors"
	"rfqcrm/internal/dibbs"
	"rfqcrm/internal/listener"
	"rfqcrm/internal/logging"
	"rfqcrm/internal/pipeline"
	"rfqcrm/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	if cmd == "settings:show" {
		settings, err := cfg.Qualification()
		must(err)
		out, err := yaml.Marshal(settings)
		must(err)
		fmt.Print(string(out))
		return
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	switch cmd {
	case "ingest:dir":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		dir := fs.String("dir", cfg.UploadDir, "directory with *.pdf / *.txt documents")
		archive := fs.Bool("archive", false, "move documents to processed/reviewed dirs afterwards")
		out := fs.String("out", "", "optional report xlsx path")
		_ = fs.Parse(os.Args[2:])

		docs, err := pipeline.LoadDirectory(*dir)
		must(err)
		report := ingest(ctx, cfg, db, logger, "dir:"+*dir, docs, *out)
		if *archive {
			moved, err := pipeline.ArchiveDocuments(report, cfg.ProcessedDir, cfg.ReviewedDir)
			must(err)
			fmt.Printf("archived %d document(s)\n", len(moved))
		}
	case "ingest:file":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		path := fs.String("path", "", "pdf or txt document")
		out := fs.String("out", "", "optional report xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*path) == "" {
			must(fmt.Errorf("--path is required"))
		}
		ingest(ctx, cfg, db, logger, "file:"+*path, []pipeline.Document{loadFile(*path)}, *out)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		label := fs.String("label", cfg.MailListenerLabel, "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])

		conn, err := listener.Connect(ctx, cfg, *provider)
		must(err)
		result, err := connectors.NewFetchService(db, cfg.RawMailDir, conn, logger).FetchAndStore(ctx, *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d known=%d\n", *provider, result.Fetched, result.Stored, result.Known)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "", "only this provider (gmail|imap)")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])

		results, err := pipeline.NewProcessingService(db, newIngestor(cfg, db, logger), logger).ProcessPending(ctx, *batch, *provider)
		must(err)
		for _, res := range results {
			fmt.Printf("email %d: %s\n", res.EmailID, res.Status)
			if res.Report != nil {
				fmt.Print(res.Report.Summary())
			}
		}
		fmt.Printf("processed pending emails=%d\n", len(results))
	case "mail:listen":
		svc, err := listener.NewService(db, cfg, logger)
		must(err)
		must(svc.Run(ctx))
	case "dibbs:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		request := fs.String("request", "", "request number, e.g. SPE7M125T1234")
		andIngest := fs.Bool("ingest", false, "ingest the downloaded document")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*request) == "" {
			must(fmt.Errorf("--request is required"))
		}
		path, err := dibbs.NewClient(cfg, logger).FetchSolicitation(ctx, *request)
		must(err)
		fmt.Printf("downloaded %s\n", path)
		if *andIngest {
			ingest(ctx, cfg, db, logger, "dibbs:"+*request, []pipeline.Document{pipeline.DocumentFromPDF(path)}, "")
		}
	case "dibbs:list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		pageURL := fs.String("url", cfg.DibbsBaseURL, "index page listing solicitation PDFs")
		_ = fs.Parse(os.Args[2:])
		links, err := dibbs.NewClient(cfg, logger).ListSolicitations(ctx, *pageURL)
		must(err)
		for _, l := range links {
			fmt.Printf("%s\t%s\n", l.RequestNumber, l.URL)
		}
	case "accounts:reclassify-qpl":
		n, err := db.ReclassifyQPLVendors(ctx)
		must(err)
		fmt.Printf("reclassified %d vendor account(s) as QPL\n", n)
	case "accounts:list":
		accounts, err := db.ListAccounts(ctx)
		must(err)
		for _, a := range accounts {
			indent := ""
			if a.IsDivision() {
				indent = "  "
			}
			fmt.Printf("%s%d\t%s\t%s\n", indent, a.ID, a.Type, a.Name)
		}
	case "stats":
		counts, err := db.EntityCounts(ctx)
		must(err)
		for _, table := range []string{"accounts", "contacts", "products", "product_manufacturers", "opportunities"} {
			fmt.Printf("%-22s %d\n", table, counts[table])
		}
	default:
		usage()
		os.Exit(1)
	}
}

func newIngestor(cfg config.Config, db *storage.DB, logger *slog.Logger) *pipeline.Ingestor {
	settings, err := cfg.Qualification()
	must(err)
	in := pipeline.NewIngestor(db, settings, logger)
	in.SetStage(cfg.OpportunityStage)
	return in
}

// ingest runs docs, stores the run and prints its summary.
func ingest(ctx context.Context, cfg config.Config, db *storage.DB, logger *slog.Logger, source string, docs []pipeline.Document, out string) *pipeline.ProcessingReport {
	report := newIngestor(cfg, db, logger).Run(ctx, source, docs)
	must(db.InsertRun(ctx, report.RunID, report.Source, report.StartedAt, report.FinishedAt, report.Counts()))
	fmt.Print(report.Summary())

	if out == "" && report.Processed > 0 {
		out = filepath.Join(cfg.OutputDir, fmt.Sprintf("run_%s_%s.xlsx", time.Now().Format("20060102_150405"), report.RunID))
	}
	if out != "" {
		must(pipeline.ExportReportToXLSX(report, out))
		fmt.Printf("report written to %s\n", out)
	}
	return report
}

func loadFile(path string) pipeline.Document {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return pipeline.DocumentFromPDF(path)
	}
	content, err := os.ReadFile(path)
	return pipeline.Document{ID: filepath.Base(path), Text: string(content), Path: path, Err: err}
}

func usage() {
	fmt.Println("usage: rfqcrm <command>")
	fmt.Println("commands:")
	fmt.Println("  ingest:dir [--dir=./data/upload] [--archive] [--out=report.xlsx]")
	fmt.Println("  ingest:file --path=SPE7M125T1234.PDF [--out=report.xlsx]")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process [--provider=gmail|imap] [--batch=20]")
	fmt.Println("  mail:listen")
	fmt.Println("  dibbs:fetch --request=SPE7M125T1234 [--ingest]")
	fmt.Println("  dibbs:list [--url=...]")
	fmt.Println("  accounts:reclassify-qpl")
	fmt.Println("  accounts:list")
	fmt.Println("  settings:show")
	fmt.Println("  stats")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
