// Command fetchdemo serves and exercises the blog fixture over the fetch
// engine: "serve" exposes it over HTTP, "run" resolves one query from the
// command line and prints the value it produced alongside the rounds it
// took.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gitter-badger/fetch-2/internal/blogdemo"
	"github.com/gitter-badger/fetch-2/internal/eventbus"
	"github.com/gitter-badger/fetch-2/internal/executor"
	"github.com/gitter-badger/fetch-2/internal/fetch"
	"github.com/gitter-badger/fetch-2/internal/httpapi"
	round "github.com/gitter-badger/fetch-2/internal/round"
	"github.com/gitter-badger/fetch-2/internal/telemetry"
)

const rootUsage = `fetchdemo — a deferred data-fetching engine, demoed over a small blog dataset

USAGE:
  fetchdemo <command> [flags]

COMMANDS:
  serve    Run the HTTP front door over the blog fixture
  run      Resolve one query from the command line and print its rounds
  help     Show help for any command
`

const serveUsage = `serve FLAGS:
  -addr <addr>            HTTP listen address (default: :8080)
  -pretty                 Pretty-print JSON responses
  -timeout <duration>     Per-request timeout, e.g. 10s (default: 10s)
  -otel.endpoint <addr>   OTLP collector endpoint
  -otel.service <name>    OpenTelemetry service name (default: fetchdemo)
`

const runUsage = `run FLAGS:
  -query <name>   One of: article, article-with-author, feed (default: feed)
  -id <int>       Article id for article / article-with-author (default: 1)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("fetchdemo", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer))
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd, cmdArgs := remaining[0], remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "run":
		return cmdRun(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Print(serveUsage)
	case "run":
		fmt.Print(runUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

func fixture() (*blogdemo.ArticleSource, *blogdemo.AuthorSource, *blogdemo.ViewCountSource) {
	articles := blogdemo.NewArticleSource([]blogdemo.Article{
		{ID: 1, Title: "Batching 101", AuthorID: 100},
		{ID: 2, Title: "Caching Explained", AuthorID: 100},
		{ID: 3, Title: "Concurrent Fan-out", AuthorID: 200},
	})
	authors := blogdemo.NewAuthorSource([]blogdemo.Author{
		{ID: 100, Name: "Ada"},
		{ID: 200, Name: "Grace"},
	})
	views := blogdemo.NewViewCountSource(map[int]int{1: 10, 2: 20, 3: 30})
	return articles, authors, views
}

func cmdServe(args []string) error {
	addr := ":8080"
	pretty := false
	timeout := 10 * time.Second
	otelEndpoint := ""
	otelService := "fetchdemo"

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&addr, "addr", addr, "HTTP listen address")
	fs.BoolVar(&pretty, "pretty", pretty, "Pretty-print JSON responses")
	fs.DurationVar(&timeout, "timeout", timeout, "Per-request timeout")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}

	eventbus.Use(eventbus.New())
	shutdown, err := telemetry.Setup(otelEndpoint, otelService)
	if err != nil {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	articles, authors, views := fixture()

	var opts []httpapi.Option
	if pretty {
		opts = append(opts, httpapi.WithPretty())
	}
	if timeout > 0 {
		opts = append(opts, httpapi.WithTimeout(timeout))
	}
	h := httpapi.New(opts...)
	registerQueries(h, articles, authors, views)

	mux := http.NewServeMux()
	mux.Handle("/run", h)

	log.Printf("fetchdemo listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

func registerQueries(h *httpapi.Handler, articles *blogdemo.ArticleSource, authors *blogdemo.AuthorSource, views *blogdemo.ViewCountSource) {
	h.Register("article", func(ctx context.Context, variables json.RawMessage) (any, round.Env, error) {
		var vars struct{ ID int }
		_ = json.Unmarshal(variables, &vars)
		env, v, err := executor.RunWithEnv(ctx, fetch.FetchOne(vars.ID, articles))
		return v, env, err
	})
	h.Register("article-with-author", func(ctx context.Context, variables json.RawMessage) (any, round.Env, error) {
		var vars struct{ ID int }
		_ = json.Unmarshal(variables, &vars)
		env, v, err := executor.RunWithEnv(ctx, blogdemo.FetchArticleWithAuthor(vars.ID, articles, authors))
		return v, env, err
	})
	h.Register("feed", func(ctx context.Context, variables json.RawMessage) (any, round.Env, error) {
		var vars struct{ IDs []int }
		_ = json.Unmarshal(variables, &vars)
		if len(vars.IDs) == 0 {
			vars.IDs = []int{1, 2, 3}
		}
		env, v, err := executor.RunWithEnv(ctx, blogdemo.FetchFeed(vars.IDs, articles, authors, views))
		return v, env, err
	})
}

func cmdRun(args []string) error {
	query := "feed"
	id := 1

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&query, "query", query, "article | article-with-author | feed")
	fs.IntVar(&id, "id", id, "article id")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, runUsage)
		return err
	}

	articles, authors, views := fixture()

	var env round.Env
	var err error

	switch query {
	case "article":
		var v blogdemo.Article
		env, v, err = executor.RunWithEnv(context.Background(), fetch.FetchOne(id, articles))
		if err == nil {
			fmt.Printf("%+v\n", v)
		}
	case "article-with-author":
		var v blogdemo.ArticleWithAuthor
		env, v, err = executor.RunWithEnv(context.Background(), blogdemo.FetchArticleWithAuthor(id, articles, authors))
		if err == nil {
			fmt.Printf("%q by %s\n", v.Article.Title, v.Author.Name)
		}
	case "feed":
		var v []blogdemo.FeedEntry
		env, v, err = executor.RunWithEnv(context.Background(), blogdemo.FetchFeed([]int{1, 2, 3}, articles, authors, views))
		if err == nil {
			for _, e := range v {
				fmt.Println(e.String())
			}
		}
	default:
		return fmt.Errorf("unknown query %q", query)
	}
	if err != nil {
		return err
	}

	fmt.Println("rounds:", env.Log.Len())
	for i, r := range env.Log.Rounds() {
		fmt.Println(strconv.Itoa(i)+":", roundKindName(r.Description.Kind), "cached="+strconv.FormatBool(r.ServedFromCache))
	}
	return nil
}

func roundKindName(k round.DescriptionKind) string {
	switch k {
	case round.OneRound:
		return "one"
	case round.ManyRound:
		return "many"
	case round.ConcurrentRound:
		return "concurrent"
	default:
		return "unknown"
	}
}
