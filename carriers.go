package x402kit

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/402kit/402kit-go/types"
)

// Carrier type identifiers, echoed in the payment response.
const (
	CarrierCookie = "cookie"
	CarrierBearer = "bearer"
)

// DefaultEntitlementTTL is how long a granted entitlement lives unless the
// carrier is configured otherwise.
const DefaultEntitlementTTL = time.Hour

const defaultCookieName = "402_access"

// CookieCarrier delivers entitlement tokens via Set-Cookie and reads them
// back from the Cookie request header. Secure and HttpOnly are on unless
// explicitly disabled.
type CookieCarrier struct {
	store    EntitlementStore
	name     string
	ttl      time.Duration
	domain   string
	path     string
	sameSite http.SameSite
	secure   bool
	httpOnly bool
}

// CookieOption configures a CookieCarrier.
type CookieOption func(*CookieCarrier)

// WithCookieName overrides the cookie name.
func WithCookieName(name string) CookieOption {
	return func(c *CookieCarrier) { c.name = name }
}

// WithCookieTTL overrides the entitlement TTL.
func WithCookieTTL(ttl time.Duration) CookieOption {
	return func(c *CookieCarrier) { c.ttl = ttl }
}

// WithCookieDomain sets the cookie Domain attribute.
func WithCookieDomain(domain string) CookieOption {
	return func(c *CookieCarrier) { c.domain = domain }
}

// WithCookiePath overrides the cookie Path attribute.
func WithCookiePath(path string) CookieOption {
	return func(c *CookieCarrier) { c.path = path }
}

// WithCookieSameSite overrides the SameSite attribute.
func WithCookieSameSite(mode http.SameSite) CookieOption {
	return func(c *CookieCarrier) { c.sameSite = mode }
}

// WithoutCookieSecure disables the Secure attribute, for plain-HTTP
// development setups only.
func WithoutCookieSecure() CookieOption {
	return func(c *CookieCarrier) { c.secure = false }
}

// WithoutCookieHTTPOnly disables the HttpOnly attribute.
func WithoutCookieHTTPOnly() CookieOption {
	return func(c *CookieCarrier) { c.httpOnly = false }
}

// NewCookieCarrier creates a cookie carrier over the given store. A nil
// store gets a fresh in-memory one.
func NewCookieCarrier(store EntitlementStore, opts ...CookieOption) *CookieCarrier {
	if store == nil {
		store = NewMemoryEntitlementStore()
	}
	c := &CookieCarrier{
		store:    store,
		name:     defaultCookieName,
		ttl:      DefaultEntitlementTTL,
		path:     "/",
		sameSite: http.SameSiteLaxMode,
		secure:   true,
		httpOnly: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Type returns the carrier type identifier.
func (c *CookieCarrier) Type() string { return CarrierCookie }

// TTL returns the configured entitlement TTL.
func (c *CookieCarrier) TTL() time.Duration { return c.ttl }

// Check looks up the named cookie in the request headers and consults the
// store.
func (c *CookieCarrier) Check(header http.Header, resource string) bool {
	token := c.token(header)
	if token == "" {
		return false
	}
	return c.store.Has(token, resource)
}

// Grant mints a token, records it, and returns the Set-Cookie header that
// delivers it.
func (c *CookieCarrier) Grant(resource string) (http.Header, error) {
	token := uuid.NewString()
	c.store.Grant(token, resource, c.ttl)

	cookie := &http.Cookie{
		Name:     c.name,
		Value:    token,
		MaxAge:   int(c.ttl / time.Second),
		Domain:   c.domain,
		Path:     c.path,
		SameSite: c.sameSite,
		Secure:   c.secure,
		HttpOnly: c.httpOnly,
	}
	h := http.Header{}
	h.Set("Set-Cookie", cookie.String())
	return h, nil
}

// Revoke deletes the token named by the request's cookie and returns a
// clearing Set-Cookie header.
func (c *CookieCarrier) Revoke(header http.Header) (http.Header, error) {
	token := c.token(header)
	if token == "" {
		return http.Header{}, nil
	}
	c.store.Revoke(token)

	cleared := &http.Cookie{
		Name:     c.name,
		Value:    "",
		MaxAge:   -1,
		Path:     c.path,
		Secure:   c.secure,
		HttpOnly: c.httpOnly,
	}
	h := http.Header{}
	h.Set("Set-Cookie", cleared.String())
	return h, nil
}

func (c *CookieCarrier) token(header http.Header) string {
	for _, line := range header.Values("Cookie") {
		cookies, err := http.ParseCookie(line)
		if err != nil {
			continue
		}
		for _, cookie := range cookies {
			if cookie.Name == c.name {
				return cookie.Value
			}
		}
	}
	return ""
}

// BearerCarrier delivers entitlement tokens in the X-PAYMENT-TOKEN response
// header and reads them back from Authorization: Bearer.
type BearerCarrier struct {
	store EntitlementStore
	ttl   time.Duration
}

// BearerOption configures a BearerCarrier.
type BearerOption func(*BearerCarrier)

// WithBearerTTL overrides the entitlement TTL.
func WithBearerTTL(ttl time.Duration) BearerOption {
	return func(c *BearerCarrier) { c.ttl = ttl }
}

// NewBearerCarrier creates a bearer carrier over the given store. A nil
// store gets a fresh in-memory one.
func NewBearerCarrier(store EntitlementStore, opts ...BearerOption) *BearerCarrier {
	if store == nil {
		store = NewMemoryEntitlementStore()
	}
	c := &BearerCarrier{store: store, ttl: DefaultEntitlementTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Type returns the carrier type identifier.
func (c *BearerCarrier) Type() string { return CarrierBearer }

// TTL returns the configured entitlement TTL.
func (c *BearerCarrier) TTL() time.Duration { return c.ttl }

// GrantToken mints and records a raw token for callers that transmit it out
// of band.
func (c *BearerCarrier) GrantToken(resource string) string {
	token := uuid.NewString()
	c.store.Grant(token, resource, c.ttl)
	return token
}

// Check parses Authorization: Bearer and consults the store.
func (c *BearerCarrier) Check(header http.Header, resource string) bool {
	token := bearerToken(header)
	if token == "" {
		return false
	}
	return c.store.Has(token, resource)
}

// Grant mints a token and returns the X-PAYMENT-TOKEN header that delivers
// it.
func (c *BearerCarrier) Grant(resource string) (http.Header, error) {
	h := http.Header{}
	h.Set(types.HeaderPaymentToken, c.GrantToken(resource))
	return h, nil
}

// Revoke deletes the token named by the request's Authorization header.
func (c *BearerCarrier) Revoke(header http.Header) (http.Header, error) {
	if token := bearerToken(header); token != "" {
		c.store.Revoke(token)
	}
	return http.Header{}, nil
}

func bearerToken(header http.Header) string {
	auth := header.Get("Authorization")
	if auth == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

var (
	_ EntitlementCarrier = (*CookieCarrier)(nil)
	_ EntitlementCarrier = (*BearerCarrier)(nil)
)
