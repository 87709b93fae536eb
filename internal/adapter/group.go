package adapter

import (
	"github.com/sells-group/property-scorer/internal/model"
)

// GroupBundles merges bundles that share an address key. The first bundle
// of each group supplies the property; events, contacts and links of the
// rest are re-pointed to it. Bundles without an address key are never
// merged. Output order follows the first appearance of each group.
func GroupBundles(bundles []model.Bundle) []model.Bundle {
	var out []model.Bundle
	index := make(map[string]int, len(bundles))

	for _, b := range bundles {
		key := b.Property.AddressKey
		i, ok := index[key]
		if key == "" || !ok {
			if key != "" {
				index[key] = len(out)
			}
			out = append(out, cloneBundle(b))
			continue
		}
		mergeInto(&out[i], b)
	}
	return out
}

func cloneBundle(b model.Bundle) model.Bundle {
	b.Events = append([]model.DistressEvent(nil), b.Events...)
	b.Contacts = append([]model.Contact(nil), b.Contacts...)
	b.Links = append([]model.PropertyContact(nil), b.Links...)
	b.Warnings = append([]string(nil), b.Warnings...)
	return b
}

func mergeInto(dst *model.Bundle, src model.Bundle) {
	pid := dst.Property.ID

	haveEvent := make(map[string]bool, len(dst.Events))
	for _, e := range dst.Events {
		haveEvent[e.ID] = true
	}
	for _, e := range src.Events {
		if haveEvent[e.ID] {
			continue
		}
		haveEvent[e.ID] = true
		e.PropertyID = pid
		dst.Events = append(dst.Events, e)
	}

	haveContact := make(map[string]bool, len(dst.Contacts))
	for _, c := range dst.Contacts {
		haveContact[c.ID] = true
	}
	for _, c := range src.Contacts {
		if haveContact[c.ID] {
			continue
		}
		haveContact[c.ID] = true
		dst.Contacts = append(dst.Contacts, c)
	}

	for _, l := range src.Links {
		l.PropertyID = pid
		dst.Links = model.UpsertLink(dst.Links, l)
	}

	dst.Warnings = append(dst.Warnings, src.Warnings...)
	if dst.Property.DistanceNashMi == nil && src.Property.DistanceNashMi != nil {
		dst.Property.DistanceNashMi = src.Property.DistanceNashMi
		dst.Property.Within30MinNash = src.Property.Within30MinNash
	}
}
