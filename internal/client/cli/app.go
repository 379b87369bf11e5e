// Package cli implements dlkeeperctl, a one-shot operator tool for the
// download service: issue tokens for an order, publish an artifact map,
// mint a service JWT or fetch a download link.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/dlkeeper/internal/client/client"
	"github.com/dmitrijs2005/dlkeeper/internal/client/config"
	"github.com/dmitrijs2005/dlkeeper/internal/netx"
	"github.com/dmitrijs2005/dlkeeper/internal/server/auth"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

var ErrUsage = errors.New("usage")

const usage = `usage: dlkeeperctl [-a addr] [-s secret] [-n name] [-t timeout] [-c config.json] <command>

commands:
  token                   print a service JWT for the fulfillment endpoint
  issue <order.json>      issue download tokens for a paid order
  publish <map.json>      publish a new product -> artifact map version
  fetch <url> [dir]       download an artifact link into dir (default ".")`

type fulfillmentAPI interface {
	IssueTokens(ctx context.Context, order client.Order) (*structpb.Struct, error)
	PublishArtifactMap(ctx context.Context, note string, entries []client.ArtifactEntry) (int64, error)
}

type App struct {
	config     *config.Config
	api        fulfillmentAPI
	httpClient *http.Client
	out        io.Writer
}

// NewApp connects the fulfillment client described by c.
func NewApp(c *config.Config) (*App, error) {
	apiClient, err := client.NewFulfillmentClientService(c.ServerEndpointAddr, c.ServiceName, c.SecretKey, c.TokenValidity)
	if err != nil {
		return nil, err
	}
	return &App{config: c, api: apiClient, httpClient: &http.Client{}, out: os.Stdout}, nil
}

// Run executes the subcommand found in args (usually os.Args[1:]).
func (a *App) Run(ctx context.Context, args []string) error {
	args = positional(args)
	if len(args) == 0 {
		return fmt.Errorf("%w\n%s", ErrUsage, usage)
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "help":
		fmt.Fprintln(a.out, usage)
		return nil
	case "token":
		return a.token()
	case "issue":
		if len(rest) != 1 {
			return fmt.Errorf("%w: issue <order.json>", ErrUsage)
		}
		return a.issue(ctx, rest[0])
	case "publish":
		if len(rest) != 1 {
			return fmt.Errorf("%w: publish <map.json>", ErrUsage)
		}
		return a.publish(ctx, rest[0])
	case "fetch":
		if len(rest) < 1 || len(rest) > 2 {
			return fmt.Errorf("%w: fetch <url> [dir]", ErrUsage)
		}
		dir := "."
		if len(rest) == 2 {
			dir = rest[1]
		}
		return a.fetch(ctx, rest[0], dir)
	default:
		return fmt.Errorf("%w: unknown command %q\n%s", ErrUsage, cmd, usage)
	}
}

func (a *App) token() error {
	tok, err := auth.GenerateToken(a.config.ServiceName, []byte(a.config.SecretKey), a.config.TokenValidity)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, tok)
	return nil
}

func (a *App) issue(ctx context.Context, file string) error {
	var order client.Order
	if err := readJSON(file, &order); err != nil {
		return err
	}

	resp, err := a.api.IssueTokens(ctx, order)
	if err != nil {
		return err
	}

	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, string(b))
	return nil
}

func (a *App) publish(ctx context.Context, file string) error {
	var doc struct {
		Note    string                 `json:"note"`
		Entries []client.ArtifactEntry `json:"entries"`
	}
	if err := readJSON(file, &doc); err != nil {
		return err
	}

	version, err := a.api.PublishArtifactMap(ctx, doc.Note, doc.Entries)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "published artifact map version %d (%d entries)\n", version, len(doc.Entries))
	return nil
}

func (a *App) fetch(ctx context.Context, url, dir string) error {
	d, err := netx.Fetch(ctx, a.httpClient, url)
	if err != nil {
		return err
	}
	defer d.Body.Close()

	dest := filepath.Join(dir, d.FileName)
	f, err := os.Create(dest)
	if err != nil {
		return err
	}

	n, err := io.Copy(f, d.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dest)
		return fmt.Errorf("save %s: %w", dest, err)
	}

	fmt.Fprintf(a.out, "saved %s (%d bytes, %s)\n", dest, n, d.ContentType)
	return nil
}

func readJSON(file string, v any) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}
	return nil
}

// valued lists the global flags that take a value; they are consumed by
// the config package and skipped here.
var valued = map[string]bool{"-a": true, "-s": true, "-n": true, "-t": true, "-c": true, "-config": true, "--config": true}

func positional(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "-") {
			name, _, hasValue := strings.Cut(arg, "=")
			if valued[name] && !hasValue && i+1 < len(args) {
				i++
			}
			continue
		}
		out = append(out, arg)
	}
	return out
}
