package trend

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"trendkeys/internal/settings"
)

// ErrUpstream covers every way the internal feed call can fail: not
// configured, unreachable, timed out or a non-2xx answer.
var ErrUpstream = errors.New("upstream error")

// SettingsReader is what the proxy needs from the settings provider.
type SettingsReader interface {
	String(ctx context.Context, key string) string
}

// Response is the upstream answer relayed to the caller.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Proxy forwards allowed calls to the internal trend API. One attempt per
// call, bounded by timeout.
type Proxy struct {
	client   *fasthttp.Client
	settings SettingsReader
	timeout  time.Duration
	log      *zap.Logger
}

func NewProxy(client *fasthttp.Client, s SettingsReader, timeout time.Duration, log *zap.Logger) *Proxy {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Proxy{client: client, settings: s, timeout: timeout, log: log}
}

// Route fetches the feed from the internal API. The internal address is
// read from settings on every call.
func (p *Proxy) Route(ctx context.Context, feed Feed) (*Response, error) {
	target, err := InternalURL(
		p.settings.String(ctx, settings.InternalAPIDomain),
		p.settings.String(ctx, settings.InternalAPIEndpoint),
		feed.TypeID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	timeout := p.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, context.DeadlineExceeded)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(target)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	if err := p.client.DoTimeout(req, resp, timeout); err != nil {
		p.log.Warn("upstream call failed", zap.Int("type_id", feed.TypeID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		p.log.Warn("upstream returned non-2xx", zap.Int("type_id", feed.TypeID), zap.Int("status", status))
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, status)
	}

	return &Response{
		StatusCode:  status,
		ContentType: string(resp.Header.ContentType()),
		Body:        append([]byte(nil), resp.Body()...),
	}, nil
}

// InternalURL builds <domain><endpoint>?typeId=<id>. A domain without a
// scheme is addressed over https.
func InternalURL(domain, endpoint string, typeID int) (string, error) {
	u, err := joinURL(domain, endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("typeId", strconv.Itoa(typeID))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// UserFacingURL builds the documented address a customer calls:
// <userDomain><userEndpoint>?typeId=<id>&key=<key>.
func UserFacingURL(domain, endpoint string, typeID int, key string) (string, error) {
	u, err := joinURL(domain, endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("typeId", strconv.Itoa(typeID))
	q.Set("key", key)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func joinURL(domain, endpoint string) (*url.URL, error) {
	domain = strings.TrimRight(strings.TrimSpace(domain), "/")
	if domain == "" {
		return nil, errors.New("api domain not configured")
	}
	if !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint != "" && !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	u, err := url.Parse(domain + endpoint)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid api domain %q", domain)
	}
	return u, nil
}
