// Package liff builds the web-view links that hand a chat session over to the
// LIFF app.
package liff

import (
	"fmt"
	"strings"

	"github.com/yosida95/uritemplate/v3"
)

// Page selects which LIFF screen a link opens.
type Page string

const (
	// PageSource asks the user where they received the message.
	PageSource Page = "source"

	// PageReason asks the user why they think the message is suspicious.
	PageReason Page = "reason"

	// PageFeedback collects feedback on a reply.
	PageFeedback Page = "feedback"
)

// linkTemplate points at /liff/index.html explicitly; LIFF SDK v2 drops query
// parameters when it redirects from the bare app root.
const linkTemplate = "{+base}/liff/index.html{?p,token}"

// Issuer signs hand-off tokens.
type Issuer interface {
	Issue(sessionID, userID string) (string, error)
}

// URLBuilder creates LIFF links carrying a freshly issued token.
type URLBuilder struct {
	base   string
	issuer Issuer
	tmpl   *uritemplate.Template
}

// NewURLBuilder creates a URLBuilder for the LIFF app hosted at baseURL.
func NewURLBuilder(baseURL string, issuer Issuer) (*URLBuilder, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("liff base url is required")
	}
	if issuer == nil {
		return nil, fmt.Errorf("liff token issuer is required")
	}
	tmpl, err := uritemplate.New(linkTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid template %q: %w", linkTemplate, err)
	}
	return &URLBuilder{
		base:   strings.TrimSuffix(baseURL, "/"),
		issuer: issuer,
		tmpl:   tmpl,
	}, nil
}

// URL returns the link that opens page for userID within sessionID.
func (b *URLBuilder) URL(page Page, userID, sessionID string) (string, error) {
	tok, err := b.issuer.Issue(sessionID, userID)
	if err != nil {
		return "", fmt.Errorf("issuing liff token: %w", err)
	}

	vals := uritemplate.Values{}
	vals.Set("base", uritemplate.String(b.base))
	vals.Set("p", uritemplate.String(string(page)))
	vals.Set("token", uritemplate.String(tok))

	u, err := b.tmpl.Expand(vals)
	if err != nil {
		return "", fmt.Errorf("expanding liff url: %w", err)
	}
	return u, nil
}
