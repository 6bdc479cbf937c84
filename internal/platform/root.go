package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoWiki is returned by FindWiki when no wiki encloses the directory.
var ErrNoWiki = errors.New("not inside a folio wiki")

// FindWiki returns the wiki that encloses dir: the nearest ancestor holding
// a pages directory next to either .git or the system directory. The walk
// ends at the first git work tree, so a wiki is never looked up past the
// repository it was started in.
func FindWiki(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for cur := abs; ; {
		repo := exists(filepath.Join(cur, ".git"))
		if isDir(filepath.Join(cur, "pages")) && (repo || isDir(filepath.Join(cur, systemDir))) {
			return cur, nil
		}
		if repo {
			return "", fmt.Errorf("%w: %s is a git repository without pages", ErrNoWiki, cur)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("%w: searched from %s", ErrNoWiki, abs)
		}
		cur = parent
	}
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
