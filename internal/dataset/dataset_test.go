package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"label-balancer/internal/config"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
}

func makeTree(t *testing.T, counts map[string]int) string {
	t.Helper()
	root := t.TempDir()
	for label, n := range counts {
		dir := filepath.Join(root, label)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for i := 0; i < n; i++ {
			writeFiles(t, dir, fmt.Sprintf("%d_img%03d.JPG", i%3, i))
		}
	}
	return root
}

func TestSiteID(t *testing.T) {
	site, err := SiteID("23_20190611_0930.JPG")
	require.NoError(t, err)
	assert.Equal(t, "23", site)

	site, err = SiteID("/data/1/7_a_b_c.jpg")
	require.NoError(t, err)
	assert.Equal(t, "7", site)

	_, err = SiteID("nosite.JPG")
	assert.ErrorIs(t, err, ErrMalformedName)

	_, err = SiteID("_leading.JPG")
	assert.ErrorIs(t, err, ErrMalformedName)
}

func TestGroupBySite_OrdersAscendingByCount(t *testing.T) {
	paths := []string{
		"a/23_1.JPG", "a/23_2.JPG", "a/23_3.JPG",
		"a/5_1.JPG",
		"a/9_1.JPG", "a/9_2.JPG",
		"a/7_1.JPG",
	}

	groups, err := GroupBySite(paths)
	require.NoError(t, err)
	require.Len(t, groups, 4)

	assert.Equal(t, "5", groups[0].Site, "ties keep first-seen order")
	assert.Equal(t, "7", groups[1].Site)
	assert.Equal(t, "9", groups[2].Site)
	assert.Equal(t, "23", groups[3].Site)
	assert.Equal(t, []string{"a/23_1.JPG", "a/23_2.JPG", "a/23_3.JPG"}, groups[3].Paths)

	total := 0
	for _, g := range groups {
		total += g.Count()
	}
	assert.Equal(t, len(paths), total, "site groups partition the label")
}

func TestScan_CountsCategories(t *testing.T) {
	root := makeTree(t, map[string]int{"1": 40, "2": 30, "3": 30, "4": 20, "5": 25, "6": 25})

	ds, err := Scan(root, config.DefaultCategories())
	require.NoError(t, err)

	c1, ok := ds.Category("1")
	require.True(t, ok)
	c2, ok := ds.Category("2")
	require.True(t, ok)

	assert.Equal(t, 100, c1.Count())
	assert.Equal(t, 70, c2.Count())
	assert.Equal(t, []int{20, 25, 25}, c2.Counts())
	assert.Len(t, ds.LabelGroups(), 6)

	l4, ok := c2.Label("4")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "4"), l4.Dir)
	groups, err := l4.SiteGroups()
	require.NoError(t, err)
	assert.Len(t, groups, 3)
}

func TestLabelGroup_SiteGroupsReportsMalformedName(t *testing.T) {
	group := &LabelGroup{Label: "4", Dir: "data/4", Files: []string{"3_a.JPG", "nosite.JPG"}}
	_, err := group.SiteGroups()
	assert.ErrorIs(t, err, ErrMalformedName)
	assert.Contains(t, err.Error(), "label 4")
}

func TestScan_IgnoresDirectoriesAndDotFiles(t *testing.T) {
	root := makeTree(t, map[string]int{"1": 2, "2": 0, "3": 0, "4": 1, "5": 0, "6": 0})
	writeFiles(t, filepath.Join(root, "1"), ".DS_Store")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "1", "nested"), 0o755))

	ds, err := Scan(root, config.DefaultCategories())
	require.NoError(t, err)

	c1, _ := ds.Category("1")
	assert.Equal(t, 2, c1.Count())
}

func TestScan_MissingLabelFailsFast(t *testing.T) {
	root := makeTree(t, map[string]int{"1": 1, "2": 1, "3": 1, "4": 1, "5": 1})

	_, err := Scan(root, config.DefaultCategories())
	assert.ErrorIs(t, err, ErrMissingLabel)
}

func TestScan_MalformedNameFailsFast(t *testing.T) {
	root := makeTree(t, map[string]int{"1": 1, "2": 1, "3": 1, "4": 1, "5": 1, "6": 1})
	writeFiles(t, filepath.Join(root, "5"), "IMG0001.JPG")

	_, err := Scan(root, config.DefaultCategories())
	assert.ErrorIs(t, err, ErrMalformedName)
}

func TestScan_RootMustExist(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "absent"), config.DefaultCategories())
	assert.Error(t, err)
}
