// Site augmentation: variant progression, work tickets and file naming
package augment

import (
	"fmt"
	"path/filepath"
	"time"

	"label-balancer/internal/config"
	"label-balancer/internal/dataset"
	"label-balancer/internal/transform"
)

// DateLayout renders dates as MMDDYY.
const DateLayout = "010206"

// Variants returns the per-image sequence: each (angle, zoom) pair is used
// plain and then flipped, and both step after every second variant.
func Variants(cfg config.Config) []transform.Variant {
	n := cfg.VariantsPerImage()
	variants := make([]transform.Variant, 0, n)
	angle, zoom := cfg.Theta, cfg.Fact
	for i := 0; i < n; i++ {
		variants = append(variants, transform.Variant{
			Index: i,
			Angle: angle,
			Zoom:  zoom,
			Flip:  i%2 == 1,
		})
		if i%2 == 1 {
			angle += cfg.ThetaStep
			zoom += cfg.FactStep
		}
	}
	return variants
}

// Ticket is one image to generate.
type Ticket struct {
	Seq     int // 0-based position in the plan
	Site    string
	SiteSeq int // index of the source image within its site group
	Source  string
	Variant transform.Variant
}

// Budget is the most images the groups can yield.
func Budget(groups []dataset.SiteGroup, variantsPerImage int) int {
	total := 0
	for _, g := range groups {
		total += g.Count()
	}
	return total * variantsPerImage
}

// Plan lists, in order, the images to produce: sites in the given order,
// images in listing order, then variants. It stops after exactly
// min(target, budget) tickets, which may end mid-image or mid-site.
func Plan(groups []dataset.SiteGroup, target int, variants []transform.Variant) []Ticket {
	if target <= 0 || len(variants) == 0 {
		return nil
	}
	size := Budget(groups, len(variants))
	if target < size {
		size = target
	}

	tickets := make([]Ticket, 0, size)
	for _, group := range groups {
		for siteSeq, path := range group.Paths {
			for _, v := range variants {
				if len(tickets) == size {
					return tickets
				}
				tickets = append(tickets, Ticket{
					Seq:     len(tickets),
					Site:    group.Site,
					SiteSeq: siteSeq,
					Source:  path,
					Variant: v,
				})
			}
		}
	}
	return tickets
}

// FileName builds the output name of a generated image:
// {site}_D{MMDDYY}_{MMDDYY}_{siteSeq}_{variant}_ROT_AUG_{tag}.JPG
func FileName(site string, date time.Time, siteSeq, variant int, tag string) string {
	d := date.Format(DateLayout)
	return fmt.Sprintf("%s_D%s_%s_%d_%d_ROT_AUG_%s.JPG", site, d, d, siteSeq, variant, tag)
}

// Destination is the full output path of a ticket.
func (t Ticket) Destination(dir string, date time.Time, tag string) string {
	return filepath.Join(dir, FileName(t.Site, date, t.SiteSeq, t.Variant.Index, tag))
}
