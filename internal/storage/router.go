package storage

import (
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/Aman-CERP/shardex/internal/errors"
)

// Naming schemes for virtual shard file names.
const (
	SchemeDollar     = "dollar"
	SchemeUnderscore = "underscore"
)

// SeparatorFor returns the separator used by a naming scheme.
// An empty scheme selects SchemeDollar.
func SeparatorFor(scheme string) (string, error) {
	switch scheme {
	case "", SchemeDollar:
		return "$", nil
	case SchemeUnderscore:
		return "_", nil
	default:
		return "", errors.ConfigError("unknown naming scheme: "+scheme, nil).
			WithSuggestion("Use 'dollar' or 'underscore'")
	}
}

// Mount attaches a shard directory to a Router under its criteria key.
type Mount struct {
	Criteria string
	Dir      Directory
}

// Router is a Directory presenting one virtual namespace over a shared
// directory and one directory per shard. A shard file is addressed as
// <criteria><sep><local>; a name without the separator belongs to the shared
// directory.
type Router struct {
	shared Directory
	sep    string
	mounts []Mount
	index  map[string]int

	closeOnce sync.Once
	closeErr  error
}

// NewRouter builds a router. Mount order is the order used by List and Close.
func NewRouter(shared Directory, sep string, mounts []Mount) (*Router, error) {
	if shared == nil {
		return nil, errors.ValidationError("router needs a shared directory", nil)
	}
	if sep == "" || strings.Contains(sep, "/") {
		return nil, errors.ValidationError("invalid separator: "+sep, nil)
	}

	index := make(map[string]int, len(mounts))
	for i, m := range mounts {
		if err := ValidateCriteria(m.Criteria, sep); err != nil {
			return nil, err
		}
		if m.Dir == nil {
			return nil, errors.ValidationError("shard has no directory", nil).WithDetail("criteria", m.Criteria)
		}
		if _, dup := index[m.Criteria]; dup {
			return nil, errors.ValidationError("duplicate criteria: "+m.Criteria, nil).WithDetail("criteria", m.Criteria)
		}
		index[m.Criteria] = i
	}

	return &Router{
		shared: shared,
		sep:    sep,
		mounts: append([]Mount(nil), mounts...),
		index:  index,
	}, nil
}

// ValidateCriteria checks that a criteria key can be used in virtual names.
func ValidateCriteria(criteria, sep string) error {
	if criteria == "" {
		return errors.ValidationError("empty criteria key", nil)
	}
	if strings.Contains(criteria, sep) || strings.Contains(criteria, "/") {
		return errors.ValidationError("criteria key contains a reserved character: "+criteria, nil).
			WithDetail("criteria", criteria).
			WithDetail("separator", sep)
	}
	return nil
}

// Separator returns the separator between criteria and local name.
func (r *Router) Separator() string {
	return r.sep
}

// Resolve splits a virtual name into its owning criteria and the local name
// inside that shard's directory. The criteria is empty for shared files.
func (r *Router) Resolve(name string) (criteria, local string, err error) {
	i := strings.Index(name, r.sep)
	if i < 0 {
		for _, m := range r.mounts {
			if name == m.Criteria || strings.HasPrefix(name, m.Criteria+"/") {
				return "", "", errors.NamespaceError(name, "shared name shadows a shard")
			}
		}
		return "", name, nil
	}

	criteria, local = name[:i], name[i+len(r.sep):]
	if _, ok := r.index[criteria]; !ok {
		return "", "", errors.NamespaceError(name, "no shard owns prefix "+criteria)
	}
	if local == "" {
		return "", "", errors.NamespaceError(name, "empty local name")
	}
	return criteria, local, nil
}

// Expose is the inverse of Resolve.
func (r *Router) Expose(criteria, local string) string {
	if criteria == "" {
		return local
	}
	return criteria + r.sep + local
}

func (r *Router) owner(name string) (Directory, string, string, error) {
	criteria, local, err := r.Resolve(name)
	if err != nil {
		return nil, "", "", err
	}
	if criteria == "" {
		return r.shared, criteria, local, nil
	}
	return r.mounts[r.index[criteria]].Dir, criteria, local, nil
}

// List unions every shard listing, re-prefixed with its criteria, with the
// shared listing. Shared entries under a shard's folder are skipped. A shared
// name that Resolve would reject fails the listing, so every listed name
// resolves.
func (r *Router) List() ([]string, error) {
	seen := make(map[string]string)
	var names []string

	add := func(name, owner string) error {
		if prev, dup := seen[name]; dup {
			return errors.NamespaceError(name, "listed by both "+label(prev)+" and "+label(owner))
		}
		seen[name] = owner
		names = append(names, name)
		return nil
	}

	for _, m := range r.mounts {
		local, err := m.Dir.List()
		if err != nil {
			return nil, errors.ShardError(m.Criteria, "list", err)
		}
		for _, n := range local {
			if err := add(r.Expose(m.Criteria, n), m.Criteria); err != nil {
				return nil, err
			}
		}
	}

	shared, err := r.shared.List()
	if err != nil {
		return nil, errors.IOError("list shared directory", err)
	}
	for _, n := range shared {
		if r.underShard(n) {
			continue
		}
		criteria, _, err := r.Resolve(n)
		if err != nil {
			return nil, err
		}
		if criteria != "" {
			return nil, errors.NamespaceError(n, "shared file collides with shard "+criteria)
		}
		if err := add(n, ""); err != nil {
			return nil, err
		}
	}

	sort.Strings(names)
	return names, nil
}

func (r *Router) underShard(name string) bool {
	for _, m := range r.mounts {
		if name == m.Criteria || strings.HasPrefix(name, m.Criteria+"/") {
			return true
		}
	}
	return false
}

func label(owner string) string {
	if owner == "" {
		return "shared directory"
	}
	return "shard " + owner
}

// Length resolves name and delegates.
func (r *Router) Length(name string) (int64, error) {
	dir, _, local, err := r.owner(name)
	if err != nil {
		return 0, err
	}
	return dir.Length(local)
}

// Delete resolves name and delegates. Deleting a shared file never touches
// shard directories.
func (r *Router) Delete(name string) error {
	dir, _, local, err := r.owner(name)
	if err != nil {
		return err
	}
	return dir.Delete(local)
}

// Open resolves name and delegates.
func (r *Router) Open(name string) (io.ReadCloser, error) {
	dir, _, local, err := r.owner(name)
	if err != nil {
		return nil, err
	}
	return dir.Open(local)
}

// Create resolves name and delegates.
func (r *Router) Create(name string) (Output, error) {
	dir, _, local, err := r.owner(name)
	if err != nil {
		return nil, err
	}
	return dir.Create(local)
}

// Rename moves a file within one owner. Moving across shards is rejected.
func (r *Router) Rename(from, to string) error {
	dir, fromOwner, fromLocal, err := r.owner(from)
	if err != nil {
		return err
	}
	_, toOwner, toLocal, err := r.owner(to)
	if err != nil {
		return err
	}
	if fromOwner != toOwner {
		return errors.NamespaceError(to, "rename crosses from "+label(fromOwner)+" to "+label(toOwner))
	}
	return dir.Rename(fromLocal, toLocal)
}

// ObtainLock resolves name and delegates.
func (r *Router) ObtainLock(name string) (Lock, error) {
	dir, _, local, err := r.owner(name)
	if err != nil {
		return nil, err
	}
	return dir.ObtainLock(local)
}

// Close closes every shard directory in mount order, then the shared one.
// All are attempted; the first failure is returned.
func (r *Router) Close() error {
	r.closeOnce.Do(func() {
		for _, m := range r.mounts {
			if err := m.Dir.Close(); err != nil && r.closeErr == nil {
				r.closeErr = errors.ShardError(m.Criteria, "close directory", err)
			}
		}
		if err := r.shared.Close(); err != nil && r.closeErr == nil {
			r.closeErr = errors.IOError("close shared directory", err)
		}
	})
	return r.closeErr
}
