package retrieve

import (
	"context"

	"memoryengine/internal/persistence/databases"
)

// AttachDocMetadata fills each item's DocID and Doc (title/url) from whatever
// metadata the workspace-grep backend already returned, falling back to a
// FullTextSearch.GetByID lookup when the chunk itself carried neither.
func AttachDocMetadata(ctx context.Context, search databases.FullTextSearch, items []RetrievedItem) []RetrievedItem {
	for i := range items {
		items[i].DocID = deriveDocID(items[i].ID, items[i].Metadata)
		applyDocMeta(&items[i], items[i].Metadata)

		if search == nil || items[i].Doc.Title != "" || items[i].Doc.URL != "" {
			continue
		}
		docID := items[i].DocID
		if docID == "" {
			continue
		}
		if doc, ok, _ := search.GetByID(ctx, docID); ok {
			applyDocMeta(&items[i], doc.Metadata)
		}
	}
	return items
}

func applyDocMeta(item *RetrievedItem, meta map[string]string) {
	if meta == nil {
		return
	}
	if t, ok := meta["title"]; ok {
		item.Doc.Title = t
	}
	if u, ok := meta["url"]; ok {
		item.Doc.URL = u
	}
}

