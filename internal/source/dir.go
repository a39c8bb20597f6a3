package source

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Dir reads documents from a local mirror laid out as Root/org/repo/branch/path.
// Used for offline runs and tests.
type Dir struct {
	Root string
}

func (d *Dir) Name() string { return "dir" }

func (d *Dir) Fetch(ctx context.Context, loc Location) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Loc: loc, Kind: KindCanceled, Err: err}
	}
	if strings.TrimSpace(d.Root) == "" {
		return nil, &FetchError{Loc: loc, Kind: KindNetwork, Err: errors.New("dir source root is empty")}
	}
	p, err := d.resolve(loc)
	if err != nil {
		return nil, &FetchError{Loc: loc, Kind: KindNotFound, Err: err}
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &FetchError{Loc: loc, Kind: KindNotFound, Err: err}
		}
		return nil, &FetchError{Loc: loc, Kind: KindNetwork, Err: err}
	}
	return b, nil
}

func (d *Dir) resolve(loc Location) (string, error) {
	root := filepath.Clean(d.Root)
	p := filepath.Join(root, loc.Org, loc.Repo.Repo, loc.Branch, filepath.FromSlash(loc.Path))
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New("path escapes source root")
	}
	return p, nil
}
