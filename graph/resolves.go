package graph

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendergraph/internal/logging"
)

// insertResolves gives multisampled color attachments a single-sample
// resolve target when later readers need one sample. Readers compatible
// with the multisampled spec keep reading it; readers compatible only with
// the resolved spec are moved to the new resolve image.
func (p *planner) insertResolves() error {
	b := p.b
	for _, id := range p.order {
		n := b.nodes[id]
		for slot, a := range n.colorAttachments {
			if a == nil || a.writeImage == noImageUsage {
				continue
			}
			spec := p.imageSpecs[a.writeImage]
			if spec.Samples <= 1 {
				continue
			}
			if slot < len(n.resolveAttachments) && n.resolveAttachments[slot] != noImageUsage {
				continue
			}
			resolved := spec
			resolved.Samples = 1

			written := b.imageUsages[a.writeImage]
			var keep, move []ImageUsageID
			for _, r := range b.version(written.version).readUsages {
				rs, ok := p.imageSpecs[r]
				switch {
				case !ok, rs.CanMerge(spec):
					keep = append(keep, r)
				case rs.CanMerge(resolved):
					move = append(move, r)
				default:
					keep = append(keep, r)
					logging.Logger().Warn("rendergraph: reader matches neither the multisampled image nor its resolve",
						"node", p.nodeName(b.imageUsages[r].node), "image", p.imageName(r),
						"samples", rs.Samples, "format", rs.Format)
				}
			}
			if len(move) == 0 {
				continue
			}

			resolve := b.createResolveAttachment(n, slot, ImageConstraint{}, written.view)
			rs := resolved
			rs.Usage = gputypes.TextureUsageRenderAttachment
			for _, r := range move {
				rs.Usage |= p.imageSpecs[r].Usage
			}
			p.imageSpecs[resolve] = rs

			// createResolveAttachment grew b.images; take version pointers afresh.
			b.version(written.version).readUsages = keep
			target := b.imageUsages[resolve].version
			tv := b.version(target)
			tv.readUsages = append(tv.readUsages, move...)
			for _, r := range move {
				b.imageUsages[r].version = target
			}
			logging.Logger().Debug("rendergraph: inserted resolve attachment",
				"node", p.nodeName(id), "slot", slot, "readers", len(move))
		}
	}
	return nil
}
