package plugins

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
)

// Permissions is the grant document stored per plugin. Absent fields deny.
type Permissions struct {
	Core struct {
		Call bool `json:"call"`
	} `json:"core"`
	FS struct {
		Read  bool     `json:"read"`
		Write bool     `json:"write"`
		Roots []string `json:"roots"`
	} `json:"fs"`
	Net struct {
		Request bool     `json:"request"`
		Domains []string `json:"domains"`
	} `json:"net"`
	DB struct {
		Query bool `json:"query"`
		Write bool `json:"write"`
	} `json:"db"`
	AI struct {
		Invoke bool `json:"invoke"`
	} `json:"ai"`
	Scanner struct {
		Register bool `json:"register"`
	} `json:"scanner"`
}

// ParsePermissions decodes a stored grant document. An empty or invalid
// document yields the zero grant, which denies everything.
func ParsePermissions(doc string) Permissions {
	var p Permissions
	if doc != "" {
		_ = json.Unmarshal([]byte(doc), &p)
	}
	return p
}

// CheckCall gates one raw JSON-RPC line against a plugin's grants before it
// may be forwarded to the process. The plugin must be enabled with core.call
// granted, the line must carry a method, the method's permission family must
// be granted, and net/fs calls must target allowlisted domains and roots.
func CheckCall(perms Permissions, enabled bool, line string) error {
	if !enabled || !perms.Core.Call {
		return fmt.Errorf("plugins: core.call not granted: %w", apperr.ErrForbidden)
	}

	var parsed struct {
		Method string `json:"method"`
		Params struct {
			URL  string `json:"url"`
			Path string `json:"path"`
		} `json:"params"`
	}
	if err := json.Unmarshal([]byte(line), &parsed); err != nil {
		return fmt.Errorf("plugins: malformed call line: %w", apperr.ErrProtocolError)
	}
	method := parsed.Method
	if method == "" {
		return fmt.Errorf("plugins: call line has no method: %w", apperr.ErrProtocolError)
	}

	if !methodGranted(perms, method) {
		return fmt.Errorf("plugins: method %s not granted: %w", method, apperr.ErrForbidden)
	}

	if strings.HasPrefix(method, "net.request") && parsed.Params.URL != "" {
		if !domainAllowed(perms.Net.Domains, hostOf(parsed.Params.URL)) {
			return fmt.Errorf("plugins: domain not allowlisted: %w", apperr.ErrForbidden)
		}
	}
	if strings.HasPrefix(method, "fs.") && parsed.Params.Path != "" {
		if !pathAllowed(perms.FS.Roots, parsed.Params.Path) {
			return fmt.Errorf("plugins: path outside fs roots: %w", apperr.ErrForbidden)
		}
	}
	return nil
}

// methodGranted maps a method prefix to its permission family. Methods
// without a mapped family pass this layer and are judged by the plugin.
func methodGranted(perms Permissions, method string) bool {
	switch {
	case strings.HasPrefix(method, "fs.write"):
		return perms.FS.Write
	case strings.HasPrefix(method, "fs."):
		return perms.FS.Read
	case strings.HasPrefix(method, "net.request"):
		return perms.Net.Request
	case strings.HasPrefix(method, "db.write"):
		return perms.DB.Write
	case strings.HasPrefix(method, "db."):
		return perms.DB.Query
	case strings.HasPrefix(method, "ai.invoke"):
		return perms.AI.Invoke
	case strings.HasPrefix(method, "scanner.register"):
		return perms.Scanner.Register
	default:
		return true
	}
}

// hostOf extracts the host part of a URL without parsing the full form;
// plugin-supplied URLs may be arbitrarily malformed.
func hostOf(url string) string {
	rest := url
	if i := strings.Index(url, "//"); i >= 0 {
		rest = url[i+2:]
	}
	if i := strings.IndexAny(rest, "/"); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.Index(rest, ":"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// domainAllowed matches exact domains and ".suffix" wildcard entries.
func domainAllowed(domains []string, host string) bool {
	for _, d := range domains {
		if strings.EqualFold(host, d) {
			return true
		}
		if strings.HasPrefix(d, ".") && strings.HasSuffix(strings.ToLower(host), strings.ToLower(d)) {
			return true
		}
	}
	return false
}

// pathAllowed reports whether target sits under one of the granted roots.
func pathAllowed(roots []string, target string) bool {
	tc, err := filepath.EvalSymlinks(target)
	if err != nil {
		tc = filepath.Clean(target)
	}
	for _, root := range roots {
		rc, err := filepath.EvalSymlinks(root)
		if err != nil {
			rc = filepath.Clean(root)
		}
		if tc == rc || strings.HasPrefix(tc, rc+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
