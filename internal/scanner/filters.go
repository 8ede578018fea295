package scanner

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/ansuz/internal/models"
)

// eligible reports whether a repo-relative file path should be imported.
// Only Markdown files are considered; hidden path segments are skipped;
// include globs (when set) narrow the selection and exclude globs always
// win over include.
func eligible(rel string, settings models.RepoSettings) bool {
	rel = filepath.ToSlash(rel)
	for _, seg := range strings.Split(rel, "/") {
		if hiddenName(seg) {
			return false
		}
	}
	if !strings.EqualFold(path.Ext(rel), ".md") {
		return false
	}
	for _, pat := range settings.Exclude {
		if matchGlob(pat, rel) {
			return false
		}
	}
	if len(settings.Include) == 0 {
		return true
	}
	for _, pat := range settings.Include {
		if matchGlob(pat, rel) {
			return true
		}
	}
	return false
}

// matchGlob matches a pattern against the full relative path and, for
// plain patterns without a separator, against the base name too.
func matchGlob(pattern, rel string) bool {
	if ok, err := path.Match(pattern, rel); err == nil && ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		if ok, err := path.Match(pattern, path.Base(rel)); err == nil && ok {
			return true
		}
	}
	// dir/** style prefix patterns.
	if prefix, found := strings.CutSuffix(pattern, "/**"); found {
		return rel == prefix || strings.HasPrefix(rel, prefix+"/")
	}
	return false
}

// SlugFromPath derives a document slug from a repo-relative file path: the
// extension is dropped, path separators become "__", and spaces become "-".
func SlugFromPath(rel string) string {
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, path.Ext(rel))
	rel = strings.ReplaceAll(rel, "/", "__")
	return strings.ReplaceAll(rel, " ", "-")
}
