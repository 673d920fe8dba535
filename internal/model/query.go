//
// Copyright (c) 2012-2018 Red Hat, Inc.
// This program and the accompanying materials are made
// available under the terms of the Eclipse Public License 2.0
// which is available at https://www.eclipse.org/legal/epl-2.0/
//
// SPDX-License-Identifier: EPL-2.0
//
// Contributors:
//   Red Hat, Inc. - initial API and implementation
//

package model

// FilterType is the integer-coded clause kind in a marketplace query,
// mirroring the upstream protocol's own numbering (and the original's
// utils.FilterType IntFlag enum) so unknown/out-of-range values decode
// without failing the request instead of being rejected by a closed enum.
type FilterType int

const (
	FilterTypeTag               FilterType = 1
	FilterTypeExtensionID       FilterType = 4
	FilterTypeCategory          FilterType = 5
	FilterTypeExtensionName     FilterType = 7
	FilterTypeTarget            FilterType = 8
	FilterTypeFeatured          FilterType = 9
	FilterTypeSearchText        FilterType = 10
	FilterTypeExcludeWithFlags  FilterType = 12
	FilterTypeUndefined         FilterType = 14
)

// QueryFlags is the bitset gating which sub-objects a response populates.
type QueryFlags int

const (
	FlagIncludeVersions             QueryFlags = 0x1
	FlagIncludeFiles                QueryFlags = 0x2
	FlagIncludeCategoryAndTags      QueryFlags = 0x4
	FlagIncludeSharedAccounts       QueryFlags = 0x8
	FlagIncludeVersionProperties    QueryFlags = 0x10
	FlagExcludeNonValidated         QueryFlags = 0x20
	FlagIncludeInstallationTargets  QueryFlags = 0x40
	FlagIncludeAssetURI             QueryFlags = 0x80
	FlagIncludeStatistics           QueryFlags = 0x100
	FlagIncludeLatestVersionOnly    QueryFlags = 0x200
	FlagUnpublished                 QueryFlags = 0x1000
)

// Has reports whether flags has every bit in mask set.
func (f QueryFlags) Has(mask QueryFlags) bool { return f&mask == mask }

// SortBy selects the ordering dimension of a search.
type SortBy int

const (
	SortByNone           SortBy = 0
	SortByLastUpdated    SortBy = 1
	SortByTitle          SortBy = 2
	SortByPublisherName  SortBy = 3
	SortByInstallCount   SortBy = 4
	SortByPublishedDate  SortBy = 5
	SortByAverageRating  SortBy = 6
	SortByWeightedRating SortBy = 12
)

// SortOrder selects ascending vs. descending.
type SortOrder int

const (
	SortOrderDefault    SortOrder = 0
	SortOrderAscending  SortOrder = 1
	SortOrderDescending SortOrder = 2
)

// Criterion is a single clause of a query: a filter type and its value.
type Criterion struct {
	FilterType FilterType `json:"filterType"`
	Value      string     `json:"value"`
}

// Filter is one filter group (a list of criteria whose matches are unioned, plus its own
// sort/paging overrides), matching the upstream request shape where a
// request carries a list of filters.
type Filter struct {
	Criteria   []Criterion `json:"criteria"`
	PageNumber int         `json:"pageNumber"`
	PageSize   int         `json:"pageSize"`
	SortBy     SortBy      `json:"sortBy"`
	SortOrder  SortOrder   `json:"sortOrder"`
}

// Query is the decoded /extensionquery request body.
type Query struct {
	Filters []Filter   `json:"filters"`
	Flags   QueryFlags `json:"flags"`
}

// CriterionValue returns the value of the first criterion of the given
// type across all of q's filters, and whether one was found.
func (q Query) CriterionValue(ft FilterType) (string, bool) {
	for _, f := range q.Filters {
		for _, c := range f.Criteria {
			if c.FilterType == ft {
				return c.Value, true
			}
		}
	}
	return "", false
}

// CriterionValues returns every criterion value of the given type across
// all of q's filters, preserving order.
func (q Query) CriterionValues(ft FilterType) []string {
	var out []string
	for _, f := range q.Filters {
		for _, c := range f.Criteria {
			if c.FilterType == ft {
				out = append(out, c.Value)
			}
		}
	}
	return out
}

// PrimaryFilter returns the first filter, or a zero-value Filter with
// default paging if the query carries none — the upstream protocol always
// sends exactly one filter group in practice, but nothing enforces it.
func (q Query) PrimaryFilter() Filter {
	if len(q.Filters) == 0 {
		return Filter{PageNumber: 1, PageSize: 50}
	}
	f := q.Filters[0]
	if f.PageNumber <= 0 {
		f.PageNumber = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 50
	}
	return f
}

// ResultMetadataItem is one statistic entry in a result page's metadata.
type ResultMetadataItem struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// ResultMetadata carries the resultCount block of a query response.
type ResultMetadata struct {
	Name  string                `json:"metadataType"`
	Items []ResultMetadataItem  `json:"metadataItems"`
}

// ResultPage is one page of extensionquery results.
type ResultPage struct {
	Extensions []ExtensionRecord `json:"extensions"`
	PagingToken string          `json:"pagingToken,omitempty"`
	ResultMetadata []ResultMetadata `json:"resultMetadata"`
}
