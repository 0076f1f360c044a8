// Package deeplink parses URIs the app is opened with and decides what they ask for
package deeplink

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/newsdesk/internal/models"
)

type Kind string

const (
	KindNone     Kind = "none"
	KindRecovery Kind = "recovery"
	KindSignup   Kind = "signup"
	KindContent  Kind = "content"
)

const (
	ParamAccessToken  = "access_token"
	ParamRefreshToken = "refresh_token"
	ParamType         = "type"

	TypeRecovery = "recovery"
	TypeSignup   = "signup"

	// First path segment of article links: <scheme>://news/<id>
	ContentNews = "news"
)

var ErrEmpty = errors.New("empty uri")

// Link is classified URI
type Link struct {
	Kind   Kind
	URI    string
	Scheme string
	Path   string
	Params map[string]string

	// Set for recovery and signup links
	Tokens models.TokenPair

	// Set for content links
	NewsID uuid.UUID

	// Why the link degraded to KindNone, nil for well formed links
	Err error
}

// Normalize moves fragment parameters to the query: "a://b#x=1" becomes "a://b?x=1"
// Fragment is appended to existing query with '&'
func Normalize(uri string) string {
	base, fragment, found := strings.Cut(uri, "#")
	if !found {
		return uri
	}
	if fragment == "" {
		return base
	}

	if strings.Contains(base, "?") {
		if strings.HasSuffix(base, "?") || strings.HasSuffix(base, "&") {
			return base + fragment
		}
		return base + "&" + fragment
	}
	return base + "?" + fragment
}

// Parse normalized URI into scheme, path and flat params (first value wins)
// For custom schemes host is the first path segment, for http(s) links the host is dropped
func Parse(uri string) (scheme string, path string, params map[string]string, err error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return "", "", nil, ErrEmpty
	}

	u, err := url.Parse(Normalize(uri))
	if err != nil {
		return "", "", nil, fmt.Errorf("malformed uri: %w", err)
	}

	values, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return "", "", nil, fmt.Errorf("malformed query: %w", err)
	}

	params = make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	scheme = strings.ToLower(u.Scheme)
	switch scheme {
	case "http", "https":
		path = u.Path
	default:
		path = u.Host + u.Path
	}

	return scheme, strings.Trim(path, "/"), params, nil
}

type Classifier struct {
	// App custom scheme, without "://"
	scheme string
}

func NewClassifier(scheme string) *Classifier {
	return &Classifier{scheme: strings.ToLower(strings.TrimSuffix(scheme, "://"))}
}

// Classify never fails: malformed URIs are KindNone with Err set
func (c *Classifier) Classify(uri string) Link {
	link := Link{Kind: KindNone, URI: uri}

	scheme, path, params, err := Parse(uri)
	if err != nil {
		link.Err = err
		return link
	}

	link.Scheme, link.Path, link.Params = scheme, path, params

	pair := models.TokenPair{AccessToken: params[ParamAccessToken], RefreshToken: params[ParamRefreshToken]}
	hasTokens := pair.AccessToken != "" && pair.RefreshToken != ""

	switch {
	case hasTokens && params[ParamType] == TypeRecovery:
		link.Kind = KindRecovery
		link.Tokens = pair
	case hasTokens && params[ParamType] == TypeSignup:
		link.Kind = KindSignup
		link.Tokens = pair
	case scheme == c.scheme && c.scheme != "":
		c.classifyContent(&link)
	}

	return link
}

func (c *Classifier) classifyContent(link *Link) {
	segments := strings.Split(link.Path, "/")
	if len(segments) != 2 || segments[0] != ContentNews {
		return
	}

	id, err := uuid.Parse(segments[1])
	if err != nil {
		link.Err = fmt.Errorf("malformed news id %q: %w", segments[1], err)
		return
	}

	link.Kind = KindContent
	link.NewsID = id
}
