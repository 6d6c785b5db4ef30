package bundles

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	"moviesnow/internal/api"
	"moviesnow/pkg/apierror"
)

// bundleRecord tolerates the field spellings the admin endpoints have
// used for bundles. Aliases resolve in declaration order.
type bundleRecord struct {
	ID       string `json:"id"`
	BundleID string `json:"bundle_id"`

	Title string `json:"title"`
	Name  string `json:"name"`

	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Quality string `json:"quality"`
	Format  string `json:"format"`

	SizeBytes *int64 `json:"size_bytes"`
	Size      *int64 `json:"size"`

	Premium   *bool `json:"premium"`
	IsPremium *bool `json:"is_premium"`

	Status string `json:"status"`
	State  string `json:"state"`

	CreatedAt api.Timestamp `json:"created_at"`
	Created   api.Timestamp `json:"created"`
	UpdatedAt api.Timestamp `json:"updated_at"`
	Updated   api.Timestamp `json:"updated"`
}

// decodeBundles normalizes a bundle listing. Accepted envelopes, in
// priority order: bare array; {"bundles":[...]}; {"items":[...]};
// {"data":{...}} nesting either. Records without an identifier are
// dropped; unknown enum values are kept verbatim so an admin sees what
// the server actually said.
func decodeBundles(data []byte) ([]Bundle, api.PageInfo, error) {
	items, info, err := api.DecodeCollection(data, "bundles")
	if err != nil {
		return nil, info, apierror.Wrap(err, apierror.CodeInternal, "unrecognized bundles response")
	}

	out := make([]Bundle, 0, len(items))
	for _, item := range items {
		var rec bundleRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			continue
		}
		b := rec.normalize()
		if b.ID == "" {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if info.Total < len(out) {
		info.Total = len(out)
	}
	return out, info, nil
}

// decodeBundle normalizes a single-bundle response, tolerating a
// {"bundle":{...}} or {"data":{...}} wrapper around the object.
func decodeBundle(data []byte) (*Bundle, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, apierror.New(apierror.CodeInternal, "empty bundle response")
	}

	var wrapper struct {
		Bundle json.RawMessage `json:"bundle"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &wrapper); err == nil {
		if len(bytes.TrimSpace(wrapper.Bundle)) > 0 {
			return decodeBundle(wrapper.Bundle)
		}
		if len(bytes.TrimSpace(wrapper.Data)) > 0 {
			return decodeBundle(wrapper.Data)
		}
	}

	var rec bundleRecord
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return nil, apierror.Wrap(err, apierror.CodeInternal, "unrecognized bundle response")
	}
	b := rec.normalize()
	if b.ID == "" {
		return nil, apierror.New(apierror.CodeInternal, "bundle response carries no identifier")
	}
	return &b, nil
}

func (r *bundleRecord) normalize() Bundle {
	b := Bundle{
		ID:        firstNonEmpty(r.ID, r.BundleID),
		Title:     firstNonEmpty(r.Title, r.Name),
		Type:      BundleType(firstNonEmpty(r.Type, r.Kind)),
		Quality:   Quality(r.Quality),
		Format:    Format(r.Format),
		Status:    Status(firstNonEmpty(r.Status, r.State)),
		CreatedAt: firstTimestamp(r.CreatedAt, r.Created),
		UpdatedAt: firstTimestamp(r.UpdatedAt, r.Updated),
	}
	if r.SizeBytes != nil {
		b.SizeBytes = *r.SizeBytes
	} else if r.Size != nil {
		b.SizeBytes = *r.Size
	}
	if r.Premium != nil {
		b.Premium = *r.Premium
	} else if r.IsPremium != nil {
		b.Premium = *r.IsPremium
	}
	if b.Status == "" {
		b.Status = StatusPending
	}
	return b
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstTimestamp(values ...api.Timestamp) time.Time {
	for _, v := range values {
		if !v.IsZero() {
			return v.Time
		}
	}
	return time.Time{}
}
