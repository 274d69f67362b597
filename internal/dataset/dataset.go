// Dataset scanning: categories, labels and site groups derived from directory listings
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"label-balancer/internal/config"
)

// SiteDelimiter separates the site identifier from the rest of a file name.
const SiteDelimiter = "_"

var (
	// ErrMissingLabel is returned when a label directory does not exist.
	ErrMissingLabel = errors.New("missing label directory")
	// ErrMalformedName is returned when a file name carries no site token.
	ErrMalformedName = errors.New("file name has no site identifier")
)

// SiteGroup is the subset of a label's images sharing a site id.
type SiteGroup struct {
	Site  string
	Paths []string
}

// Count returns the number of images in the site group.
func (s SiteGroup) Count() int {
	return len(s.Paths)
}

// LabelGroup holds every image of one label.
type LabelGroup struct {
	Label string
	Dir   string
	Files []string // base names, sorted
}

// Count returns the number of images in the label.
func (l *LabelGroup) Count() int {
	return len(l.Files)
}

// Paths returns the full path of every file in listing order.
func (l *LabelGroup) Paths() []string {
	paths := make([]string, len(l.Files))
	for i, name := range l.Files {
		paths[i] = filepath.Join(l.Dir, name)
	}
	return paths
}

// SiteGroups groups the label's images by site, smallest group first.
func (l *LabelGroup) SiteGroups() ([]SiteGroup, error) {
	groups, err := GroupBySite(l.Paths())
	if err != nil {
		return nil, fmt.Errorf("label %s: %w", l.Label, err)
	}
	return groups, nil
}

// Category is a named set of label groups.
type Category struct {
	ID     string
	Labels []*LabelGroup
}

// Count is the sum of the category's label counts.
func (c *Category) Count() int {
	total := 0
	for _, l := range c.Labels {
		total += l.Count()
	}
	return total
}

// Counts returns the per-label counts in category order.
func (c *Category) Counts() []int {
	counts := make([]int, len(c.Labels))
	for i, l := range c.Labels {
		counts[i] = l.Count()
	}
	return counts
}

// Label looks up one of the category's label groups.
func (c *Category) Label(name string) (*LabelGroup, bool) {
	for _, l := range c.Labels {
		if l.Label == name {
			return l, true
		}
	}
	return nil, false
}

// Dataset is the scanned input tree.
type Dataset struct {
	Root       string
	Categories []*Category
}

// Category returns the category with the given id.
func (d *Dataset) Category(id string) (*Category, bool) {
	for _, c := range d.Categories {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// LabelGroups returns every label group in category order.
func (d *Dataset) LabelGroups() []*LabelGroup {
	var groups []*LabelGroup
	for _, c := range d.Categories {
		groups = append(groups, c.Labels...)
	}
	return groups
}

// Scan lists every label directory under root. It fails before returning any
// partial result when a label directory is missing or a file name has no
// site token, since the allocation depends on complete counts.
func Scan(root string, categories []config.Category) (*Dataset, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("input directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input path %s is not a directory", root)
	}

	ds := &Dataset{Root: root}
	for _, cat := range categories {
		c := &Category{ID: cat.ID}
		for _, label := range cat.Labels {
			group, err := scanLabel(root, label)
			if err != nil {
				return nil, err
			}
			c.Labels = append(c.Labels, group)
		}
		ds.Categories = append(ds.Categories, c)
	}
	return ds, nil
}

func scanLabel(root, label string) (*LabelGroup, error) {
	dir := filepath.Join(root, label)
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) || (err == nil && !info.IsDir()) {
		return nil, fmt.Errorf("%w: %s", ErrMissingLabel, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}

	files, err := ListImages(dir)
	if err != nil {
		return nil, err
	}
	for _, name := range files {
		if _, err := SiteID(name); err != nil {
			return nil, fmt.Errorf("label %s: %w", label, err)
		}
	}
	return &LabelGroup{Label: label, Dir: dir, Files: files}, nil
}

// ListImages returns the sorted base names of the regular files in dir,
// skipping subdirectories and dot-files.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

// SiteID returns the leading token of a file name split on the site delimiter.
func SiteID(name string) (string, error) {
	base := filepath.Base(name)
	site, _, found := strings.Cut(base, SiteDelimiter)
	if !found || site == "" {
		return "", fmt.Errorf("%w: %q", ErrMalformedName, base)
	}
	return site, nil
}

// GroupBySite partitions paths by site id and orders the groups ascending by
// image count. Ties keep first-seen order; paths inside a group keep input order.
func GroupBySite(paths []string) ([]SiteGroup, error) {
	index := make(map[string]int)
	var groups []SiteGroup
	for _, p := range paths {
		site, err := SiteID(p)
		if err != nil {
			return nil, err
		}
		i, ok := index[site]
		if !ok {
			i = len(groups)
			index[site] = i
			groups = append(groups, SiteGroup{Site: site})
		}
		groups[i].Paths = append(groups[i].Paths, p)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Count() < groups[j].Count()
	})
	return groups, nil
}
