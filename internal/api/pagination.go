package api

import (
	"bytes"
	"encoding/json"

	"moviesnow/pkg/apierror"
)

// Page selects a slice of a collection. Cursor wins over Offset when both
// are set; a zero Page requests the server default.
type Page struct {
	Cursor string
	Offset int
	Limit  int
}

// PageInfo reports what the server knows about the rest of the
// collection. Total is -1 when the server did not send a count.
type PageInfo struct {
	NextCursor string
	Total      int
	HasMore    bool
}

// pageEnvelope collects every spelling of pagination metadata seen in the
// wild: flat fields, a nested page_info object, or a meta object.
type pageEnvelope struct {
	NextCursor *string `json:"next_cursor"`
	Cursor     *string `json:"cursor"`
	Next       *string `json:"next"`
	Total      *int    `json:"total"`
	TotalCount *int    `json:"total_count"`
	Count      *int    `json:"count"`
	HasMore    *bool   `json:"has_more"`
	More       *bool   `json:"more"`

	PageInfo   *pageEnvelope `json:"page_info"`
	Pagination *pageEnvelope `json:"pagination"`
	Meta       *pageEnvelope `json:"meta"`
}

// DecodeCollection extracts the raw items of a list response. The API and
// its gateways disagree about envelopes, so it accepts, in priority
// order: a bare JSON array; an object carrying the items under one of the
// caller's keys (then the generic "items", "results", "data"); and a
// data object nesting one of those a level deeper. Pagination metadata is
// harvested from whichever level carries it.
func DecodeCollection(data []byte, keys ...string) ([]json.RawMessage, PageInfo, error) {
	info := PageInfo{Total: -1}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, info, nil
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, info, apierror.Wrap(err, apierror.CodeInternal, "failed to decode collection")
		}
		info.Total = len(items)
		return items, info, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, info, apierror.Wrap(err, apierror.CodeInternal, "failed to decode collection envelope")
	}

	var page pageEnvelope
	_ = json.Unmarshal(trimmed, &page)
	page.apply(&info)

	candidates := append(append([]string{}, keys...), "items", "results", "data")
	for _, key := range candidates {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			return nil, info, nil
		}
		switch raw[0] {
		case '[':
			var items []json.RawMessage
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, info, apierror.Wrap(err, apierror.CodeInternal, "failed to decode collection items")
			}
			if info.Total < 0 && !info.HasMore && info.NextCursor == "" {
				info.Total = len(items)
			}
			return items, info, nil
		case '{':
			// One level of nesting: {"data": {"sessions": [...], "total": n}}.
			if key == "data" {
				items, nested, err := DecodeCollection(raw, keys...)
				if err != nil {
					return nil, info, err
				}
				nested.merge(&info)
				return items, info, nil
			}
		}
	}

	return nil, info, apierror.New(apierror.CodeInternal, "response carries no recognizable collection")
}

// apply copies whichever fields the envelope set onto info, descending
// into nested metadata objects.
func (p *pageEnvelope) apply(info *PageInfo) {
	if p == nil {
		return
	}
	switch {
	case p.NextCursor != nil:
		info.NextCursor = *p.NextCursor
	case p.Cursor != nil:
		info.NextCursor = *p.Cursor
	case p.Next != nil:
		info.NextCursor = *p.Next
	}
	switch {
	case p.Total != nil:
		info.Total = *p.Total
	case p.TotalCount != nil:
		info.Total = *p.TotalCount
	case p.Count != nil:
		info.Total = *p.Count
	}
	switch {
	case p.HasMore != nil:
		info.HasMore = *p.HasMore
	case p.More != nil:
		info.HasMore = *p.More
	}
	p.PageInfo.apply(info)
	p.Pagination.apply(info)
	p.Meta.apply(info)
	if info.NextCursor != "" {
		info.HasMore = true
	}
}

// merge folds nested metadata into the outer info without clobbering
// values the outer envelope already provided.
func (p PageInfo) merge(into *PageInfo) {
	if into.NextCursor == "" {
		into.NextCursor = p.NextCursor
	}
	if into.Total < 0 {
		into.Total = p.Total
	}
	if !into.HasMore {
		into.HasMore = p.HasMore
	}
}
