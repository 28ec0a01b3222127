package main

import (
	"fmt"
	"io"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/txn2/factcheck-bot/pkg/continuity"
	"github.com/txn2/factcheck-bot/pkg/platform"
	"github.com/txn2/factcheck-bot/pkg/telemetry"
)

// terminalHost plays the web view for check-session: alerts go to w.
type terminalHost struct {
	w        io.Writer
	inClient bool
	closed   bool
}

func (h *terminalHost) Alert(message string) { fmt.Fprintf(h.w, "alert: %s\n", message) }

func (h *terminalHost) CloseWindow() { h.closed = true }

func (h *terminalHost) IsInClient() bool { return h.inClient }

func newCheckSessionCmd(a *app) *cobra.Command {
	var (
		link     string
		endpoint string
		desktop  bool
	)

	cmd := &cobra.Command{
		Use:   "check-session",
		Short: "Run the LIFF session continuity check against a link",
		Long: `check-session opens a LIFF link the way the web view does: it reads the
hand-off token, rejects it if expired, then asks the GraphQL endpoint whether
the token still belongs to the user's live search session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := url.Parse(link)
			if err != nil {
				return fmt.Errorf("parsing --url: %w", err)
			}

			var cfg *platform.Config
			if endpoint == "" || a.configPath != "" {
				if cfg, err = a.loadConfig(); err != nil {
					return err
				}
				if endpoint == "" {
					endpoint = cfg.LIFF.GraphQLEndpoint
				}
			}
			if endpoint == "" {
				return fmt.Errorf("no graphql endpoint: use --endpoint or set liff.graphql_endpoint")
			}

			host := &terminalHost{w: cmd.ErrOrStderr(), inClient: !desktop}
			debug := cfg != nil && cfg.LIFF.Debug
			if !continuity.AssertInClient(host, debug) {
				return fmt.Errorf("page closed outside the LINE client")
			}

			params := u.Query()
			if continuity.IsDuringRedirect(params) {
				fmt.Fprintln(cmd.OutOrStdout(), "login redirect in progress, nothing to check")
				return nil
			}

			guardCfg := continuity.Config{
				Querier:  continuity.NewGraphQLClient(endpoint, nil),
				Host:     host,
				Reporter: telemetry.NewLogReporter(nil),
			}
			if cfg != nil {
				guardCfg.QueryTimeout = cfg.LIFF.QueryTimeout
			}
			guard, err := continuity.New(guardCfg)
			if err != nil {
				return err
			}

			res := guard.Check(cmd.Context(), params)
			if !res.OK() {
				return fmt.Errorf("session check failed: %s", res.Outcome)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "confirmed session %s\n", res.SessionID)
			return nil
		},
	}

	cmd.Flags().StringVar(&link, "url", "", "LIFF link to check (required)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "GraphQL endpoint (default liff.graphql_endpoint)")
	cmd.Flags().BoolVar(&desktop, "desktop", false, "behave as a page opened outside the LINE client")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}
