package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/loykin/recollsup"
	"github.com/loykin/recollsup/internal/config"
	"github.com/loykin/recollsup/internal/logger"
	"github.com/loykin/recollsup/internal/query"
	itls "github.com/loykin/recollsup/internal/tls"
	"github.com/loykin/recollsup/pkg/client"
	"github.com/spf13/cobra"
)

func createQueryCommand(g *GlobalFlags) *cobra.Command {
	f := &QueryFlags{}
	cmd := &cobra.Command{
		Use:   "query <words...>",
		Short: "Search the index with recollq",
		Long: `Run recollq with the configured environment and print the results.

Examples:
  recollsup query golang channels
  recollsup query --filter=files invoice 2024
  recollsup query --raw 'mime:application/pdf author:smith'
  recollsup query --dir ~/vault/projects roadmap`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), cmd.OutOrStdout(), g, f, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&f.Filter, "filter", "markdown", "markdown, files or all")
	cmd.Flags().BoolVar(&f.Raw, "raw", false, "pass the query to recollq unchanged")
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print JSON")
	cmd.Flags().StringVar(&f.Root, "root", "", "print paths relative to this directory")
	cmd.Flags().StringVar(&f.Dir, "dir", "", "only search documents below this directory")
	return cmd
}

func runQuery(ctx context.Context, out io.Writer, g *GlobalFlags, f *QueryFlags, input string) error {
	c, err := config.Load(g.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	snap, err := c.Resolve(config.HostKey(configKeys(c)))
	if err != nil {
		return err
	}
	q, err := query.ScopeDir(f.Dir, input)
	if err != nil {
		return err
	}
	if strings.TrimSpace(q) == "" {
		return errors.New("empty query")
	}
	if !f.Raw {
		filter, err := query.ParseFilter(f.Filter)
		if err != nil {
			return err
		}
		q, _ = query.BuildQuery(q, filter)
	}
	recs, err := query.NewRunner(snap, nil).Query(ctx, q)
	if err != nil {
		return err
	}
	if f.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}
	_, err = fmt.Fprintln(out, renderRecords(recs, f.Root, logger.IsTerminal(out)))
	return err
}

func createStatusCommand(g *GlobalFlags) *cobra.Command {
	f := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the daemon status from a running supervisor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := apiClient(g)
			if err != nil {
				return err
			}
			st, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if f.JSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			_, _ = fmt.Fprintln(out, renderStatus(st))
			if f.History > 0 {
				events, err := c.History(cmd.Context(), f.History)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(out, renderHistory(events))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print JSON")
	cmd.Flags().IntVar(&f.History, "history", 0, "also show the last N lifecycle events")
	return cmd
}

func createStartCommand(g *GlobalFlags) *cobra.Command {
	f := &StartFlags{}
	cmd := &cobra.Command{
		Use:   "start [-- extra recollindex args]",
		Short: "Start or restart the daemon",
		Long: `Ask a running supervisor to (re)start recollindex. A manual start resets
the retry budget after a permanent failure.

Examples:
  recollsup start
  recollsup start -- -k`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(g)
			if err != nil {
				return err
			}
			extra := append(append([]string(nil), f.Extra...), args...)
			if err := c.Start(cmd.Context(), client.StartRequest{Extra: extra, Async: f.Async}); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "started")
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&f.Extra, "extra", nil, "extra recollindex arguments")
	cmd.Flags().BoolVar(&f.Async, "async", false, "return once the request is queued")
	return cmd
}

func createStopCommand(g *GlobalFlags) *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := apiClient(g)
			if err != nil {
				return err
			}
			if err := c.Stop(cmd.Context(), async); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "return once the request is queued")
	return cmd
}

func createReindexCommand(g *GlobalFlags) *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Restart the daemon with a full index reset (-z)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := apiClient(g)
			if err != nil {
				return err
			}
			if err := c.Reindex(cmd.Context(), async); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "reindex started")
			return nil
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "return once the request is queued")
	return cmd
}

func createHostKeyCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "hostkey",
		Short: "Print the key that selects this host's [local.<key>] table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := config.Load(g.ConfigPath)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			key := c.HostKey
			if key == "" {
				key = config.HostKey(configKeys(c))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
			return err
		},
	}
}

func createCheckCommand(g *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify executables and directories from the configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := config.Load(g.ConfigPath)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			snap, err := c.Resolve(config.HostKey(configKeys(c)))
			if err != nil {
				return err
			}
			results := checkSnapshot(snap)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderChecks(results))
			for _, r := range results {
				if r.Err != nil {
					return errors.New("configuration check failed")
				}
			}
			return nil
		},
	}
}

type checkResult struct {
	Name  string
	Value string
	Err   error
}

func checkSnapshot(snap config.Snapshot) []checkResult {
	var out []checkResult
	for _, exe := range []struct{ name, path string }{{"recollindex", snap.RecollIndex}, {"recollq", snap.RecollQ}} {
		p, err := exec.LookPath(exe.path)
		if err == nil {
			out = append(out, checkResult{Name: exe.name, Value: p})
		} else {
			out = append(out, checkResult{Name: exe.name, Value: exe.path, Err: err})
		}
	}
	for _, d := range []struct{ name, path string }{
		{"conf_dir", snap.ConfDir},
		{"data_dir", snap.DataDir},
		{"virtual_env", snap.VirtualEnv},
	} {
		if d.path == "" {
			continue
		}
		r := checkResult{Name: d.name, Value: d.path}
		if fi, err := os.Stat(d.path); err != nil {
			r.Err = err
		} else if !fi.IsDir() {
			r.Err = fmt.Errorf("%s is not a directory", d.path)
		}
		out = append(out, r)
	}
	return out
}

func apiClient(g *GlobalFlags) (*client.Client, error) {
	cc := client.Config{BaseURL: strings.TrimRight(g.APIUrl, "/"), Timeout: g.APITimeout}
	if cc.BaseURL == "" || strings.HasPrefix(cc.BaseURL, "https://") {
		c, err := recollsup.LoadConfig(g.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
		if cc.BaseURL == "" {
			cc.BaseURL = c.Server.Scheme() + "://" + c.Server.Listen + c.Server.BasePath
		}
		if t := c.Server.TLS; t.Enabled {
			ca := t.CertFile
			if ca == "" && t.Dir != "" {
				ca = filepath.Join(t.Dir, itls.CACertFile)
			}
			cc.TLS = &client.TLSClientConfig{CACert: ca}
		}
	}
	return client.New(cc), nil
}

func configKeys(c *config.Config) []string {
	keys := make([]string, 0, len(c.Local))
	for k := range c.Local {
		keys = append(keys, k)
	}
	return keys
}
