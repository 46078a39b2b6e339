package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_OriginFormWithHostHeader(t *testing.T) {
	r := New()
	defer r.Close()

	raw := "GET /index.html HTTP/1.1\r\nHost: example.com:8080\r\nUser-Agent: test\r\n\r\n"
	require.NoError(t, r.Parse([]byte(raw)))

	assert.Equal(t, "GET", r.Method)
	assert.Equal(t, "/index.html", r.Path)
	assert.Equal(t, "HTTP/1.1", r.Version)
	assert.Equal(t, "example.com", r.Host)
	assert.Equal(t, "8080", r.Port)

	ua, ok := r.HeaderGet("user-agent")
	require.True(t, ok)
	assert.Equal(t, "test", ua)
}

func TestParse_AbsoluteFormTarget(t *testing.T) {
	r := New()
	defer r.Close()

	raw := "GET http://example.com/foo?x=1 HTTP/1.1\r\n\r\n"
	require.NoError(t, r.Parse([]byte(raw)))

	assert.Equal(t, "example.com", r.Host)
	assert.Equal(t, "80", r.Port)
	assert.Equal(t, "/foo?x=1", r.Path)
}

func TestParse_DefaultsPortTo80WhenOmitted(t *testing.T) {
	r := New()
	defer r.Close()

	raw := "GET / HTTP/1.0\r\nHost: example.com\r\n\r\n"
	require.NoError(t, r.Parse([]byte(raw)))
	assert.Equal(t, "80", r.Port)
}

func TestParse_EmptyRequestLineFails(t *testing.T) {
	r := New()
	defer r.Close()

	err := r.Parse([]byte("\r\n\r\n"))
	assert.Error(t, err)
}

func TestParse_MalformedRequestLineFails(t *testing.T) {
	r := New()
	defer r.Close()

	err := r.Parse([]byte("GET /only-two-fields\r\n\r\n"))
	assert.Error(t, err)
}

func TestParse_MalformedHeaderFails(t *testing.T) {
	r := New()
	defer r.Close()

	err := r.Parse([]byte("GET / HTTP/1.1\r\nnotaheader\r\n\r\n"))
	assert.Error(t, err)
}

func TestHeaderSet_ReplacesExisting(t *testing.T) {
	r := New()
	defer r.Close()

	require.NoError(t, r.Parse([]byte("GET / HTTP/1.1\r\nConnection: keep-alive\r\n\r\n")))
	r.HeaderSet("Connection", "close")

	v, ok := r.HeaderGet("connection")
	require.True(t, ok)
	assert.Equal(t, "close", v)
}

func TestIsSupportedVersion(t *testing.T) {
	r := New()
	r.Version = "HTTP/1.1"
	assert.True(t, r.IsSupportedVersion())

	r.Version = "HTTP/0.9"
	assert.False(t, r.IsSupportedVersion())
}

func TestUnparse_RoundTripsRequestLineAndHeaders(t *testing.T) {
	r := New()
	defer r.Close()

	raw := "GET /path HTTP/1.1\r\nHost: example.com\r\nAccept: */*\r\n\r\n"
	require.NoError(t, r.Parse([]byte(raw)))

	out := New()
	defer out.Close()
	require.NoError(t, out.Parse(r.Unparse()))

	assert.Equal(t, r.Method, out.Method)
	assert.Equal(t, r.Path, out.Path)
	assert.Equal(t, r.Version, out.Version)
	v, ok := out.HeaderGet("Accept")
	require.True(t, ok)
	assert.Equal(t, "*/*", v)
}
