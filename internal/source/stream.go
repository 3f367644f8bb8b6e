package source

import (
	"context"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
)

const (
	formatIndex    = "index:1.0"
	formatProducts = "products:1.0"

	// DatatypeImages is the only index datatype the glance mirror consumes.
	DatatypeImages = "image-downloads"
)

// Stream describes one mirror to list.
type Stream struct {
	Name     string
	URL      string
	Path     string
	MaxItems int // newest versions kept per product; 0 keeps all
	Filters  []string
}

// Item is one file a sync would transfer.
type Item struct {
	ContentID string
	Product   string
	Version   string
	Name      string
	Path      string
	Size      int64
	SHA256    string
}

// Key identifies the item across the dry pass and the progress stream.
func (i Item) Key() string {
	return i.Product + "/" + i.Version + "/" + i.Name
}

// Listing is the result of a dry pass.
type Listing struct {
	Items []Item
}

// TotalBytes sums the sizes of all items.
func (l *Listing) TotalBytes() int64 {
	var total int64
	for _, it := range l.Items {
		total += it.Size
	}
	return total
}

// StreamReader walks simplestreams index and products documents.
type StreamReader struct {
	Registry *Registry
	Policy   Policy
}

// Read fetches s.Path (an index or a products document) and lists the items
// that pass the filters, keeping the newest MaxItems versions of each product.
func (r *StreamReader) Read(ctx context.Context, s Stream) (*Listing, error) {
	filters, err := ParseFilters(s.Filters)
	if err != nil {
		return nil, &SourceError{Source: s.Name, Operation: "parse filters", Err: err}
	}

	reader, err := r.Registry.ForURL(s.URL)
	if err != nil {
		return nil, &SourceError{Source: s.Name, Operation: "read", Err: err}
	}

	doc, err := r.document(ctx, reader, s, s.Path)
	if err != nil {
		return nil, err
	}

	listing := &Listing{}
	switch format := doc.Get("format").String(); format {
	case formatProducts:
		listing.Items = selectItems(doc, filters, s.MaxItems)
	case formatIndex:
		var walkErr error
		doc.Get("index").ForEach(func(contentID, entry gjson.Result) bool {
			if dt := entry.Get("datatype").String(); dt != "" && dt != DatatypeImages {
				return true
			}
			if f := entry.Get("format").String(); f != "" && f != formatProducts {
				return true
			}
			products, err := r.document(ctx, reader, s, entry.Get("path").String())
			if err != nil {
				walkErr = err
				return false
			}
			items := selectItems(products, filters, s.MaxItems)
			for i := range items {
				if items[i].ContentID == "" {
					items[i].ContentID = contentID.String()
				}
			}
			listing.Items = append(listing.Items, items...)
			return true
		})
		if walkErr != nil {
			return nil, walkErr
		}
	default:
		return nil, &SourceError{Source: s.Name, Operation: "parse", Err: fmt.Errorf("%s: unsupported format %q", s.Path, format)}
	}

	return listing, nil
}

func (r *StreamReader) document(ctx context.Context, reader Reader, s Stream, relPath string) (gjson.Result, error) {
	if relPath == "" {
		return gjson.Result{}, &SourceError{Source: s.Name, Operation: "read", Err: fmt.Errorf("index entry has no path")}
	}

	raw, err := reader.ReadFile(ctx, s.URL, relPath)
	if err != nil {
		return gjson.Result{}, err
	}

	policy := r.Policy
	if policy == nil {
		policy = PassThrough
	}
	content, err := policy(raw, relPath)
	if err != nil {
		return gjson.Result{}, &SourceError{Source: s.Name, Operation: "verify", Err: fmt.Errorf("%s: %w", relPath, err)}
	}

	if !gjson.ValidBytes(content) {
		return gjson.Result{}, &SourceError{Source: s.Name, Operation: "parse", Err: fmt.Errorf("%s is not valid JSON", relPath)}
	}
	return gjson.ParseBytes(content), nil
}

// selectItems flattens products -> versions -> items the way simplestreams
// does: item fields override version fields, which override product fields.
func selectItems(doc gjson.Result, filters []ItemFilter, maxItems int) []Item {
	contentID := doc.Get("content_id").String()
	top := scalars(doc)

	var out []Item
	doc.Get("products").ForEach(func(productName, product gjson.Result) bool {
		productFields := merge(top, scalars(product))
		productFields["product_name"] = productName.String()

		type version struct {
			name  string
			items []Item
		}
		var versions []version

		product.Get("versions").ForEach(func(versionName, ver gjson.Result) bool {
			versionFields := merge(productFields, scalars(ver))
			versionFields["version_name"] = versionName.String()

			v := version{name: versionName.String()}
			ver.Get("items").ForEach(func(itemName, item gjson.Result) bool {
				fields := merge(versionFields, scalars(item))
				fields["item_name"] = itemName.String()
				if !matchAll(filters, fields) {
					return true
				}
				v.items = append(v.items, Item{
					ContentID: contentID,
					Product:   productName.String(),
					Version:   versionName.String(),
					Name:      itemName.String(),
					Path:      item.Get("path").String(),
					Size:      item.Get("size").Int(),
					SHA256:    item.Get("sha256").String(),
				})
				return true
			})
			if len(v.items) > 0 {
				sort.Slice(v.items, func(i, j int) bool { return v.items[i].Name < v.items[j].Name })
				versions = append(versions, v)
			}
			return true
		})

		// Version names are sortable timestamps; newest first.
		sort.Slice(versions, func(i, j int) bool { return versions[i].name > versions[j].name })
		if maxItems > 0 && len(versions) > maxItems {
			versions = versions[:maxItems]
		}
		for _, v := range versions {
			out = append(out, v.items...)
		}
		return true
	})
	return out
}

func scalars(obj gjson.Result) map[string]string {
	fields := make(map[string]string)
	obj.ForEach(func(key, value gjson.Result) bool {
		switch value.Type {
		case gjson.String, gjson.Number, gjson.True, gjson.False:
			fields[key.String()] = value.String()
		}
		return true
	})
	return fields
}

func merge(base, over map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
