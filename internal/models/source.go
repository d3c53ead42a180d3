package models

import (
	"time"
)

// SourceType distinguishes the two kinds of marketing artifacts that can
// be attributed revenue.
type SourceType string

const (
	SourceTypeCampaign SourceType = "campaign"
	SourceTypeFlow     SourceType = "flow"
)

// Source is a campaign or flow fetched once per report run and held in a
// lookup table keyed by ID.
type Source struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Type SourceType `json:"type"`

	// SendTime is the creation time for campaigns and the last-update
	// time for flows, matching what the report rows expose.
	SendTime time.Time `json:"send_time"`
}

// SourceIndex is a lookup table of sources keyed by ID.
type SourceIndex map[string]Source

// NewSourceIndex builds an index over the given source lists.
func NewSourceIndex(lists ...[]Source) SourceIndex {
	idx := make(SourceIndex)
	for _, list := range lists {
		for _, s := range list {
			if s.ID == "" {
				continue
			}
			idx[s.ID] = s
		}
	}
	return idx
}
