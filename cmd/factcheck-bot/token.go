package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/txn2/factcheck-bot/pkg/continuity"
	"github.com/txn2/factcheck-bot/pkg/liff"
	"github.com/txn2/factcheck-bot/pkg/session"
	"github.com/txn2/factcheck-bot/pkg/token"
)

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue and inspect hand-off tokens",
	}
	cmd.AddCommand(newTokenIssueCmd(a), newTokenInspectCmd(a))
	return cmd
}

func (a *app) codec() (*token.Codec, *liff.URLBuilder, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	codec, err := token.NewCodec(token.Config{SigningKey: []byte(cfg.Token.Secret)})
	if err != nil {
		return nil, nil, err
	}
	links, err := liff.NewURLBuilder(cfg.LIFF.URL, codec)
	if err != nil {
		return nil, nil, err
	}
	return codec, links, nil
}

func newTokenIssueCmd(a *app) *cobra.Command {
	var userID, sessionID, page string

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a token and print the LIFF link that carries it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch liff.Page(page) {
			case liff.PageSource, liff.PageReason, liff.PageFeedback:
			default:
				return fmt.Errorf("unknown page %q", page)
			}
			_, links, err := a.codec()
			if err != nil {
				return err
			}
			if sessionID == "" {
				sessionID = session.NewSessionID()
			}
			link, err := links.URL(liff.Page(page), userID, sessionID)
			if err != nil {
				return err
			}
			u, err := url.Parse(link)
			if err != nil {
				return fmt.Errorf("parsing liff url: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "session: %s\n", sessionID)
			fmt.Fprintf(out, "token:   %s\n", u.Query().Get(continuity.TokenParam))
			fmt.Fprintf(out, "url:     %s\n", link)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "LINE user id (required)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (default: a new one)")
	cmd.Flags().StringVar(&page, "page", string(liff.PageSource), "LIFF page: source, reason or feedback")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

type inspectOutput struct {
	SessionID string    `json:"sessionId"`
	Subject   string    `json:"sub"`
	ExpiresAt time.Time `json:"exp"`
	Expired   bool      `json:"expired"`
}

func newTokenInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect TOKEN",
		Short: "Verify a token and print its payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, _, err := a.codec()
			if err != nil {
				return err
			}
			p, err := codec.Decode(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(inspectOutput{
				SessionID: p.SessionID,
				Subject:   p.Subject,
				ExpiresAt: p.ExpiresAt,
				Expired:   p.Expired(codec.Now()),
			})
		},
	}
}
