package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GoCodeAlone/kiejob/chat"
	"github.com/GoCodeAlone/kiejob/history"
	"github.com/GoCodeAlone/kiejob/job"
	"github.com/GoCodeAlone/kiejob/media"
	"github.com/GoCodeAlone/kiejob/upload"
)

// --- run ---

func (a *app) cmdRun(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: kiejob run <manifest.yaml>")
	}
	m, err := loadManifest(args[0])
	if err != nil {
		return err
	}
	res, err := a.runner.Run(ctx, m.jobRequest(a.cfg, a.catalog, a.download))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "task:     %s\n", res.TaskID)
	fmt.Fprintf(a.out, "run:      %s\n", res.RunID)
	fmt.Fprintf(a.out, "attempts: %d\n", res.Attempts)
	for _, u := range res.Locators {
		fmt.Fprintf(a.out, "url:      %s\n", u)
	}
	for _, art := range res.Artifacts {
		if art.Path != "" {
			fmt.Fprintf(a.out, "saved:    %s (%d bytes)\n", art.Path, art.Size)
		}
	}
	return nil
}

// --- status / wait ---

func (a *app) cmdStatus(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: kiejob status <taskId>")
	}
	token, err := a.creds.Credential(ctx)
	if err != nil {
		return err
	}
	rec, err := a.poller.Fetch(ctx, token, args[0])
	if err != nil {
		return err
	}
	a.printRecord(rec)
	return nil
}

func (a *app) cmdWait(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("wait", flag.ContinueOnError)
	interval := fs.Duration("interval", a.cfg.Poll.Interval, "poll interval")
	timeout := fs.Duration("timeout", a.cfg.Poll.Timeout, "give up after this long")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: kiejob wait [--interval d] [--timeout d] <taskId>")
	}
	token, err := a.creds.Credential(ctx)
	if err != nil {
		return err
	}
	rec, err := a.poller.PollUntilTerminal(ctx, token, fs.Arg(0), job.PollOptions{
		Interval: *interval,
		Timeout:  *timeout,
		Start:    time.Now(),
	})
	if err != nil {
		return err
	}
	a.printRecord(rec)
	return nil
}

func (a *app) printRecord(rec *job.Record) {
	fmt.Fprintf(a.out, "task:  %s\n", rec.TaskID)
	if rec.Model != "" {
		fmt.Fprintf(a.out, "model: %s\n", rec.Model)
	}
	fmt.Fprintf(a.out, "state: %s\n", rec.State)
	switch rec.State {
	case job.StateFail:
		fmt.Fprintf(a.out, "fail:  %s %s\n", rec.FailCode, rec.FailureMessage())
	case job.StateSuccess:
		urls, err := job.ExtractResultLocators(rec)
		if err != nil {
			fmt.Fprintf(a.out, "error: %v\n", err)
			return
		}
		for _, u := range urls {
			fmt.Fprintf(a.out, "url:   %s\n", u)
		}
	}
}

// --- credits ---

func (a *app) cmdCredits(ctx context.Context, _ []string) error {
	token, err := a.creds.Credential(ctx)
	if err != nil {
		return err
	}
	n, err := a.credits.Fetch(ctx, token)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "remaining credits: %d\n", n)
	return nil
}

// --- models ---

func (a *app) cmdModels(_ []string) error {
	fmt.Fprintf(a.out, "%-40s %-6s %-8s %-8s\n", "MODEL", "KIND", "FLOOR", "DEFAULT")
	fmt.Fprintln(a.out, strings.Repeat("-", 65))
	for _, name := range a.catalog.Names() {
		m, _ := a.catalog.Lookup(name)
		fmt.Fprintf(a.out, "%-40s %-6s %-8s %-8s\n", name, m.Kind, durStr(m.TimeoutFloor), durStr(m.DefaultTimeout))
	}
	return nil
}

func durStr(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.String()
}

// --- chat ---

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

func (a *app) cmdChat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	var images, mediaURLs stringList
	model := fs.String("model", chat.Models[0], "chat model")
	role := fs.String("role", "", "message role")
	effort := fs.String("effort", "", "reasoning effort (low|high)")
	thoughts := fs.Bool("thoughts", false, "include reasoning")
	search := fs.Bool("search", false, "enable google search tool")
	stream := fs.Bool("stream", false, "stream the response")
	fs.Var(&images, "image", "image URL (repeatable)")
	fs.Var(&mediaURLs, "media", "video or audio URL (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req := chat.Request{
		Model:           *model,
		Prompt:          strings.Join(fs.Args(), " "),
		Role:            *role,
		ImageURLs:       images,
		MediaURLs:       mediaURLs,
		IncludeThoughts: *thoughts,
		ReasoningEffort: *effort,
		GoogleSearch:    *search,
	}
	token, err := a.creds.Credential(ctx)
	if err != nil {
		return err
	}

	if !*stream {
		resp, err := a.chat.Complete(ctx, token, req)
		if err != nil {
			return err
		}
		if resp.Reasoning != "" {
			fmt.Fprintf(a.out, "[reasoning]\n%s\n\n", resp.Reasoning)
		}
		fmt.Fprintln(a.out, resp.Content)
		return nil
	}

	events, err := a.chat.Stream(ctx, token, req)
	if err != nil {
		return err
	}
	for ev := range events {
		switch ev.Type {
		case "text":
			fmt.Fprint(a.out, ev.Text)
		case "error":
			return fmt.Errorf("chat stream: %s", ev.Error)
		}
	}
	fmt.Fprintln(a.out)
	return nil
}

// --- suno ---

func (a *app) cmdSuno(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("suno", flag.ContinueOnError)
	var req job.SunoRequest
	fs.StringVar(&req.Model, "model", "V5", "model version")
	fs.StringVar(&req.Prompt, "prompt", "", "description, or lyrics in custom mode")
	fs.BoolVar(&req.CustomMode, "custom", false, "custom mode (style and title required)")
	fs.BoolVar(&req.Instrumental, "instrumental", false, "no vocals")
	fs.StringVar(&req.Style, "style", "", "music style")
	fs.StringVar(&req.Title, "title", "", "track title")
	fs.StringVar(&req.NegativeTags, "negative-tags", "", "styles to avoid")
	fs.StringVar(&req.VocalGender, "vocal-gender", "", "m or f")
	fs.StringVar(&req.CallbackURL, "callback", "", "callback URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	token, err := a.creds.Credential(ctx)
	if err != nil {
		return err
	}
	sub, err := a.submitter.SubmitSuno(ctx, token, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "task: %s\n", sub.TaskID)
	return nil
}

// --- upload ---

func (a *app) cmdUpload(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: kiejob upload <file>...")
	}
	files := make([]upload.File, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, upload.File{
			Name:        filepath.Base(path),
			ContentType: contentType(path, data),
			Data:        data,
		})
	}
	token, err := a.creds.Credential(ctx)
	if err != nil {
		return err
	}
	urls, err := a.uploader.UploadAll(ctx, token, files)
	if err != nil {
		return err
	}
	for i, u := range urls {
		fmt.Fprintf(a.out, "%s\t%s\n", args[i], u)
	}
	return nil
}

func contentType(path string, data []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}

// --- grid ---

func (a *app) cmdGrid(args []string) error {
	fs := flag.NewFlagSet("grid", flag.ContinueOnError)
	grid := fs.String("grid", "2x2", "grid size (2x2 or 3x3)")
	crop := fs.Int("crop", 0, "pixels trimmed from every edge")
	gutter := fs.Int("gutter", 0, "pixels between tiles")
	columnMajor := fs.Bool("column-major", false, "number tiles down columns first")
	outDir := fs.String("out", a.cfg.Output.Dir, "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: kiejob grid [flags] <image>")
	}
	rows, cols, err := media.ParseGrid(*grid)
	if err != nil {
		return err
	}
	src := fs.Arg(0)
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	art, err := media.ImageDecoder{}.Decode(data)
	if err != nil {
		return err
	}
	tiles, err := media.SliceGrid(art.Image, media.GridOptions{
		Rows:        rows,
		Cols:        cols,
		OuterCrop:   *crop,
		Gutter:      *gutter,
		ColumnMajor: *columnMajor,
	})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	var enc media.Encoder = media.PNGEncoder{}
	for i, tile := range tiles {
		out, _, err := enc.Encode(tile)
		if err != nil {
			return err
		}
		path := filepath.Join(*outDir, media.TileName(base, i))
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return err
		}
		fmt.Fprintln(a.out, path)
	}
	return nil
}

// --- history ---

func (a *app) cmdHistory(args []string) error {
	store, err := a.requireStore()
	if err != nil {
		return err
	}
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	switch sub {
	case "list":
		return a.historyList(store, args)
	case "show":
		if len(args) != 1 {
			return errors.New("usage: kiejob history show <id|taskId>")
		}
		e, err := store.Get(args[0])
		if errors.Is(err, history.ErrNotFound) {
			e, err = store.GetByTask(args[0])
		}
		if err != nil {
			return err
		}
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(e)
	case "delete":
		if len(args) != 1 {
			return errors.New("usage: kiejob history delete <id>")
		}
		if err := store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "deleted %s\n", args[0])
		return nil
	default:
		return fmt.Errorf("unknown history subcommand: %s", sub)
	}
}

func (a *app) historyList(store history.Store, args []string) error {
	fs := flag.NewFlagSet("history list", flag.ContinueOnError)
	status := fs.String("status", "", "submitted, succeeded or failed")
	model := fs.String("model", "", "filter by model")
	run := fs.String("run", "", "filter by run id")
	limit := fs.Int("limit", 20, "max entries")
	if err := fs.Parse(args); err != nil {
		return err
	}
	filter := history.Filter{Model: *model, RunID: *run, Limit: *limit}
	if *status != "" {
		s := history.Status(*status)
		filter.Status = &s
	}
	entries, err := store.List(filter)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "no entries")
		return nil
	}
	fmt.Fprintf(a.out, "%-36s %-3s %-24s %-10s %-20s\n", "ID", "#", "TASK", "STATUS", "MODEL")
	fmt.Fprintln(a.out, strings.Repeat("-", 97))
	for _, e := range entries {
		fmt.Fprintf(a.out, "%-36s %-3d %-24s %-10s %-20s\n",
			e.ID, e.Attempt, truncate(e.TaskID, 23), e.Status, truncate(e.Model, 20))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
