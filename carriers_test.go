package x402kit

import (
	"net/http"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestCookieCarrierGrant(t *testing.T) {
	carrier := NewCookieCarrier(nil)

	granted, err := carrier.Grant("urn:res:a")
	require.NoError(t, err)

	setCookie := granted.Get("Set-Cookie")
	require.NotEmpty(t, setCookie)
	assert.Contains(t, setCookie, "402_access=")
	assert.Contains(t, setCookie, "Path=/")
	assert.Contains(t, setCookie, "Max-Age=3600")
	assert.Contains(t, setCookie, "SameSite=Lax")
	assert.Contains(t, setCookie, "Secure")
	assert.Contains(t, setCookie, "HttpOnly")

	// Token is an unguessable UUID v4, never derived from input.
	value := strings.TrimPrefix(strings.Split(setCookie, ";")[0], "402_access=")
	assert.Regexp(t, uuidPattern, value)
}

func TestCookieCarrierCheckAndRevoke(t *testing.T) {
	carrier := NewCookieCarrier(nil, WithCookieName("access"), WithCookieTTL(30*time.Minute))

	granted, err := carrier.Grant("urn:res:a")
	require.NoError(t, err)
	setCookie := granted.Get("Set-Cookie")
	token := strings.TrimPrefix(strings.Split(setCookie, ";")[0], "access=")

	reqHeader := http.Header{}
	reqHeader.Set("Cookie", "theme=dark; access="+token)

	assert.True(t, carrier.Check(reqHeader, "urn:res:a"))
	assert.False(t, carrier.Check(reqHeader, "urn:res:other"))
	assert.False(t, carrier.Check(http.Header{}, "urn:res:a"))

	cleared, err := carrier.Revoke(reqHeader)
	require.NoError(t, err)
	assert.Contains(t, cleared.Get("Set-Cookie"), "access=")
	assert.Contains(t, cleared.Get("Set-Cookie"), "Max-Age=0")
	assert.False(t, carrier.Check(reqHeader, "urn:res:a"))
}

func TestCookieCarrierInsecureOptions(t *testing.T) {
	carrier := NewCookieCarrier(nil, WithoutCookieSecure(), WithoutCookieHTTPOnly())

	granted, err := carrier.Grant("urn:res:a")
	require.NoError(t, err)
	setCookie := granted.Get("Set-Cookie")
	assert.NotContains(t, setCookie, "Secure")
	assert.NotContains(t, setCookie, "HttpOnly")
}

func TestBearerCarrier(t *testing.T) {
	carrier := NewBearerCarrier(nil, WithBearerTTL(time.Minute))

	granted, err := carrier.Grant("urn:res:a")
	require.NoError(t, err)
	token := granted.Get("X-PAYMENT-TOKEN")
	assert.Regexp(t, uuidPattern, token)

	reqHeader := http.Header{}
	reqHeader.Set("Authorization", "Bearer "+token)
	assert.True(t, carrier.Check(reqHeader, "urn:res:a"))
	assert.False(t, carrier.Check(reqHeader, "urn:res:other"))

	// Scheme is case-insensitive; other schemes are ignored.
	lower := http.Header{}
	lower.Set("Authorization", "bearer "+token)
	assert.True(t, carrier.Check(lower, "urn:res:a"))

	basic := http.Header{}
	basic.Set("Authorization", "Basic "+token)
	assert.False(t, carrier.Check(basic, "urn:res:a"))

	_, err = carrier.Revoke(reqHeader)
	require.NoError(t, err)
	assert.False(t, carrier.Check(reqHeader, "urn:res:a"))
}

func TestBearerCarrierGrantToken(t *testing.T) {
	carrier := NewBearerCarrier(nil)

	token := carrier.GrantToken("urn:res:a")
	assert.Regexp(t, uuidPattern, token)

	reqHeader := http.Header{}
	reqHeader.Set("Authorization", "Bearer "+token)
	assert.True(t, carrier.Check(reqHeader, "urn:res:a"))
}
