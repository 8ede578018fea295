package plugins

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/starford/ansuz/internal/apperr"
)

func grant(doc string) Permissions {
	return ParsePermissions(doc)
}

func TestParsePermissionsZeroDenies(t *testing.T) {
	p := ParsePermissions("")
	assert.False(t, p.Core.Call)
	assert.False(t, p.FS.Read)
	assert.False(t, p.Net.Request)

	p = ParsePermissions("not json")
	assert.False(t, p.Core.Call)
}

func TestCheckCallRequiresEnabledAndCoreCall(t *testing.T) {
	line := `{"jsonrpc":"2.0","id":1,"method":"status"}`

	err := CheckCall(grant(`{"core":{"call":true}}`), false, line)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	err = CheckCall(grant(`{}`), true, line)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	err = CheckCall(grant(`{"core":{"call":true}}`), true, line)
	assert.NoError(t, err)
}

func TestCheckCallRejectsMalformedLines(t *testing.T) {
	perms := grant(`{"core":{"call":true}}`)

	err := CheckCall(perms, true, "not json at all")
	assert.ErrorIs(t, err, apperr.ErrProtocolError)

	err = CheckCall(perms, true, `{"jsonrpc":"2.0","id":1}`)
	assert.ErrorIs(t, err, apperr.ErrProtocolError, "a call line must carry a method")
}

func TestCheckCallMethodFamilies(t *testing.T) {
	perms := grant(`{
		"core":{"call":true},
		"fs":{"read":true,"write":false,"roots":["/tmp"]},
		"db":{"query":true,"write":false},
		"ai":{"invoke":true}
	}`)

	cases := []struct {
		method  string
		allowed bool
	}{
		{"fs.read", true},
		{"fs.list", true},
		{"fs.write", false},
		{"db.query", true},
		{"db.list", true},
		{"db.write", false},
		{"net.request", false},
		{"ai.invoke", true},
		{"scanner.register", false},
		{"custom.anything", true}, // unmapped families pass through
	}
	for _, tc := range cases {
		line := `{"jsonrpc":"2.0","id":1,"method":"` + tc.method + `"}`
		err := CheckCall(perms, true, line)
		if tc.allowed {
			assert.NoError(t, err, tc.method)
		} else {
			assert.ErrorIs(t, err, apperr.ErrForbidden, tc.method)
		}
	}
}

func TestCheckCallNetDomains(t *testing.T) {
	perms := grant(`{"core":{"call":true},"net":{"request":true,"domains":["api.example.com",".trusted.dev"]}}`)

	ok := `{"id":1,"method":"net.request","params":{"url":"https://api.example.com/v1"}}`
	assert.NoError(t, CheckCall(perms, true, ok))

	sub := `{"id":1,"method":"net.request","params":{"url":"https://deep.sub.trusted.dev:8443/path"}}`
	assert.NoError(t, CheckCall(perms, true, sub))

	bad := `{"id":1,"method":"net.request","params":{"url":"https://evil.com/api.example.com"}}`
	assert.ErrorIs(t, CheckCall(perms, true, bad), apperr.ErrForbidden)

	// An exact entry does not act as a suffix wildcard.
	spoof := `{"id":1,"method":"net.request","params":{"url":"https://notapi.example.com.evil.io/"}}`
	assert.ErrorIs(t, CheckCall(perms, true, spoof), apperr.ErrForbidden)
}

func TestCheckCallFSRoots(t *testing.T) {
	root := t.TempDir()
	perms := grant(`{"core":{"call":true},"fs":{"read":true,"roots":["` + root + `"]}}`)

	inside := `{"id":1,"method":"fs.read","params":{"path":"` + root + `/notes/a.md"}}`
	assert.NoError(t, CheckCall(perms, true, inside))

	outside := `{"id":1,"method":"fs.read","params":{"path":"/etc/passwd"}}`
	assert.ErrorIs(t, CheckCall(perms, true, outside), apperr.ErrForbidden)

	traversal := `{"id":1,"method":"fs.read","params":{"path":"` + root + `/../../etc/passwd"}}`
	assert.ErrorIs(t, CheckCall(perms, true, traversal), apperr.ErrForbidden)
}

func TestHostOf(t *testing.T) {
	cases := map[string]string{
		"https://api.example.com/v1/x":  "api.example.com",
		"http://host:8080/path":         "host",
		"api.example.com/no-scheme":     "api.example.com",
		"https://just-host.io":          "just-host.io",
		"//protocol-relative.net/thing": "protocol-relative.net",
	}
	for url, want := range cases {
		assert.Equal(t, want, hostOf(url), url)
	}
}
