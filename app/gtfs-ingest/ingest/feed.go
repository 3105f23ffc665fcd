// Package ingest polls TransLink gtfs-realtime feeds, joins them against the
// static reference data and emits enriched observation rows
package ingest

import (
	"fmt"
)

// feedKind identifies one of the three TransLink realtime endpoints
type feedKind int

const (
	positionsFeed feedKind = iota
	tripUpdatesFeed
	alertsFeed
)

var allFeedKinds = []feedKind{positionsFeed, tripUpdatesFeed, alertsFeed}

// String - Stringer interface for feedKind, values match the artifact directory names
func (k feedKind) String() string {
	switch k {
	case positionsFeed:
		return "position_updates"
	case tripUpdatesFeed:
		return "trip_updates"
	case alertsFeed:
		return "service_alerts"
	}
	return "unknown"
}

// apiPath is the TransLink v3 path segment serving this feed
func (k feedKind) apiPath() string {
	switch k {
	case positionsFeed:
		return "gtfsposition"
	case tripUpdatesFeed:
		return "gtfsrealtime"
	case alertsFeed:
		return "gtfsalerts"
	}
	return ""
}

// endpointURL builds the full feed url. The api key travels as a query parameter,
// use httpclient.ObfuscateURL before logging the result
func (k feedKind) endpointURL(baseURL string, apiKey string) string {
	return fmt.Sprintf("%s/%s?apikey=%s", baseURL, k.apiPath(), apiKey)
}
