package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/adityalohuni/formaudit/internal/admin"
	"github.com/adityalohuni/formaudit/internal/adminclient"
	"github.com/adityalohuni/formaudit/internal/artifact"
	"github.com/adityalohuni/formaudit/internal/auditsvc"
	"github.com/adityalohuni/formaudit/internal/browser"
	"github.com/adityalohuni/formaudit/internal/browser/cdpbrowser"
	"github.com/adityalohuni/formaudit/internal/browser/rodbrowser"
	"github.com/adityalohuni/formaudit/internal/browser/static"
	"github.com/adityalohuni/formaudit/internal/config"
	"github.com/adityalohuni/formaudit/internal/gather"
	"github.com/adityalohuni/formaudit/internal/report"
)

type pageFlags struct {
	driver      string
	file        string
	debuggerURL string
	headless    bool
	timeout     time.Duration
	sessionID   string
}

func (p *pageFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.driver, "driver", "", "extension, rod or chromedp (default gather.driver)")
	cmd.Flags().StringVar(&p.file, "file", "", "audit a saved HTML file instead of a live page")
	cmd.Flags().StringVar(&p.debuggerURL, "debugger-url", "", "attach to a running Chrome instead of launching one")
	cmd.Flags().BoolVar(&p.headless, "headless", true, "launch Chrome headless")
	cmd.Flags().DurationVar(&p.timeout, "timeout", 0, "overall timeout (default gather.timeout)")
	cmd.Flags().StringVar(&p.sessionID, "session", "", "extension session id (extension driver only)")
}

// liveChannel is a locally driven browser tab.
type liveChannel interface {
	browser.Channel
	browser.Controller
	Close() error
}

func newAuditCmd(g *globalFlags) *cobra.Command {
	var (
		page    pageFlags
		format  string
		ids     []string
		minPass float64
	)

	cmd := &cobra.Command{
		Use:   "audit [url]",
		Short: "Gather a page and audit its payment form",
		Long:  "Load a page, collect its form fields and meta elements, and print one verdict per audit. With --min-pass the command fails when any applicable audit scores below the threshold.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmtOut, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			settings, logger, err := g.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			target := ""
			if len(args) > 0 {
				target = args[0]
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), page.resolveTimeout(settings))
			defer cancel()

			rep, err := runAudit(ctx, settings, logger, page, target, ids)
			if err != nil {
				return err
			}
			if err := report.Write(cmd.OutOrStdout(), rep, fmtOut); err != nil {
				return err
			}

			if cmd.Flags().Changed("min-pass") {
				if below := rep.BelowThreshold(minPass); len(below) > 0 {
					names := make([]string, 0, len(below))
					for _, r := range below {
						names = append(names, r.ID)
					}
					return fmt.Errorf("%d audit(s) below %.2f: %s", len(below), minPass, strings.Join(names, ", "))
				}
			}
			return nil
		},
	}

	page.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "o", "text", "text, json or yaml")
	cmd.Flags().StringSliceVar(&ids, "audits", nil, "comma separated audit ids (default all)")
	cmd.Flags().Float64Var(&minPass, "min-pass", 1, "fail when an applicable audit scores below this")
	return cmd
}

func newGatherCmd(g *globalFlags) *cobra.Command {
	var (
		page   pageFlags
		format string
	)
	cmd := &cobra.Command{
		Use:   "gather [url]",
		Short: "Print the artifacts collected from a page",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, logger, err := g.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			target := ""
			if len(args) > 0 {
				target = args[0]
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), page.resolveTimeout(settings))
			defer cancel()

			svc := auditsvc.New(auditsvc.Options{Logger: logger})
			var snap artifact.Snapshot
			err = withLocalChannel(ctx, settings, logger, page, target, func(ch browser.Channel, url string) error {
				var gerr error
				snap, gerr = svc.Gather(ctx, ch, url)
				return gerr
			})
			if err != nil {
				return err
			}

			switch strings.ToLower(format) {
			case "yaml", "yml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(snap); err != nil {
					return err
				}
				return enc.Close()
			case "json", "":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			default:
				return fmt.Errorf("unknown artifact format %q", format)
			}
		},
	}
	page.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "o", "json", "json or yaml")
	return cmd
}

func (p pageFlags) resolveTimeout(settings config.Settings) time.Duration {
	if p.timeout > 0 {
		return p.timeout
	}
	if settings.Gather.Timeout > 0 {
		return settings.Gather.Timeout
	}
	return 30 * time.Second
}

func (p pageFlags) resolveDriver(settings config.Settings) string {
	if p.driver != "" {
		return strings.ToLower(p.driver)
	}
	return settings.Gather.Driver
}

func runAudit(ctx context.Context, settings config.Settings, logger *zap.Logger, page pageFlags, target string, ids []string) (report.Report, error) {
	if page.file == "" && page.resolveDriver(settings) == "extension" {
		client := adminclient.New(settings.AdminBaseURL, settings.AdminToken, nil)
		return client.RunAudit(ctx, admin.AuditRequest{
			SessionID: page.sessionID,
			URL:       target,
			Audits:    ids,
		})
	}

	svc := auditsvc.New(auditsvc.Options{Logger: logger})
	var rep report.Report
	err := withLocalChannel(ctx, settings, logger, page, target, func(ch browser.Channel, url string) error {
		var rerr error
		rep, rerr = svc.Run(ctx, ch, url, ids...)
		return rerr
	})
	return rep, err
}

// withLocalChannel opens the page in-process and hands its channel to fn.
func withLocalChannel(ctx context.Context, settings config.Settings, logger *zap.Logger, page pageFlags, target string, fn func(ch browser.Channel, url string) error) error {
	if page.file != "" {
		doc, err := static.ParseFile(page.file)
		if err != nil {
			return err
		}
		url := target
		if url == "" {
			url = doc.URL
		}
		return fn(static.NewChannel(doc, gather.Natives()), url)
	}
	if target == "" {
		return errors.New("a url or --file is required")
	}

	debuggerURL := page.debuggerURL
	if debuggerURL == "" {
		debuggerURL = settings.Gather.DebuggerURL
	}
	var (
		ch  liveChannel
		err error
	)
	switch driver := page.resolveDriver(settings); driver {
	case "rod":
		ch, err = rodbrowser.Open(ctx, rodbrowser.Options{DebuggerURL: debuggerURL, Headless: page.headless, Logger: logger})
	case "chromedp":
		ch, err = cdpbrowser.Open(ctx, cdpbrowser.Options{DebuggerURL: debuggerURL, Headless: page.headless, Logger: logger})
	case "extension":
		return errors.New("the extension driver runs through formauditd; use audit instead of gather, or pick rod or chromedp")
	default:
		return fmt.Errorf("unknown driver %q", driver)
	}
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ch.Close(); cerr != nil {
			logger.Debug("close browser", zap.Error(cerr))
		}
	}()

	res, err := ch.Navigate(ctx, target)
	if err != nil {
		return err
	}
	url := res.URL
	if url == "" {
		url = target
	}
	return fn(ch, url)
}
