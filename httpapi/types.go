// Package httpapi maps external HTTP calls to service requests and enforces per-endpoint policy.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package httpapi

import (
	"sort"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/pixelvault/pixelvault/cmn"
	"github.com/pixelvault/pixelvault/db"
	"github.com/pixelvault/pixelvault/tasks"
)

// json is the wire codec for every API body: jsoniter configured for
// drop-in encoding/json compatibility.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ID is an opaque 64-bit handle on the wire. Handles travel as decimal
// strings so they survive JSON number precision in any client.
type ID uint64

func (id ID) String() string { return strconv.FormatUint(uint64(id), 10) }

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(id), 10))
}

func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return cmn.NewMalformed("handle must be a string")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return cmn.NewMalformed("handle %q is not a 64-bit id", s)
	}
	*id = ID(v)
	return nil
}

// Filter is the wire shape of a db.SearchFilter. An absent or empty
// filter matches everything, which is what makes the list endpoints
// work with no body beyond the scoping ids.
type Filter struct {
	Type  string   `json:"type,omitempty"`
	Terms []string `json:"terms,omitempty"`
	Query string   `json:"query,omitempty"`
}

func (f Filter) toSearchFilter() (db.SearchFilter, error) {
	switch f.Type {
	case "":
		return db.FilterNone{}, nil
	case "substring_any":
		return db.FilterSubstringAny{Terms: f.Terms}, nil
	case "substring_all":
		return db.FilterSubstringAll{Terms: f.Terms}, nil
	case "fulltext":
		return db.FilterFulltext{Query: f.Query}, nil
	case "keyword":
		return db.FilterKeyword{Terms: f.Terms}, nil
	default:
		return nil, cmn.NewMalformed("unknown filter type %q", f.Type)
	}
}

// Wire views of the persistent entities.

type Media struct {
	ID             ID       `json:"id"`
	Library        ID       `json:"library"`
	Path           string   `json:"path"`
	Size           int64    `json:"size"`
	ContentHash    string   `json:"content_hash"`
	PerceptualHash string   `json:"perceptual_hash"`
	Mtime          int64    `json:"mtime"`
	Hidden         bool     `json:"hidden"`
	Date           string   `json:"date"`
	Note           string   `json:"note"`
	Tags           []string `json:"tags"`
	Kind           string   `json:"kind"`
}

func toMedia(m db.Media) Media {
	return Media{
		ID:             ID(m.ID),
		Library:        ID(m.Library),
		Path:           m.Path,
		Size:           m.Size,
		ContentHash:    strconv.FormatUint(m.ContentHash, 16),
		PerceptualHash: strconv.FormatUint(m.PerceptualHash, 16),
		Mtime:          m.Mtime,
		Hidden:         m.Hidden,
		Date:           m.Date,
		Note:           m.Note,
		Tags:           tagSlice(m.Tags),
		Kind:           string(m.Kind),
	}
}

func toMediaList(ms []db.Media) []Media {
	out := make([]Media, len(ms))
	for i, m := range ms {
		out[i] = toMedia(m)
	}
	return out
}

type Collection struct {
	ID        ID       `json:"id"`
	OwnerUser string   `json:"owner_user"`
	Group     string   `json:"group"`
	Name      string   `json:"name"`
	Note      string   `json:"note"`
	Tags      []string `json:"tags"`
	Cover     *ID      `json:"cover,omitempty"`
}

func toCollection(c db.Collection) Collection {
	out := Collection{
		ID:        ID(c.ID),
		OwnerUser: c.OwnerUser,
		Group:     string(c.Group),
		Name:      c.Name,
		Note:      c.Note,
		Tags:      tagSlice(c.Tags),
	}
	if c.Cover != nil {
		cov := ID(*c.Cover)
		out.Cover = &cov
	}
	return out
}

func toCollectionList(cs []db.Collection) []Collection {
	out := make([]Collection, len(cs))
	for i, c := range cs {
		out[i] = toCollection(c)
	}
	return out
}

type Library struct {
	ID         ID     `json:"id"`
	Path       string `json:"path"`
	OwnerUser  string `json:"owner_user"`
	OwnerGroup string `json:"owner_group"`
	Mtime      int64  `json:"mtime"`
	MediaCount int64  `json:"media_count"`
}

func toLibrary(l db.Library) Library {
	return Library{
		ID:         ID(l.ID),
		Path:       l.Path,
		OwnerUser:  l.OwnerUser,
		OwnerGroup: string(l.OwnerGroup),
		Mtime:      l.Mtime,
		MediaCount: l.MediaCount,
	}
}

type Comment struct {
	ID     ID     `json:"id"`
	Media  ID     `json:"media"`
	Author string `json:"author"`
	Mtime  int64  `json:"mtime"`
	Text   string `json:"text"`
}

func toComment(c db.Comment) Comment {
	return Comment{ID: ID(c.ID), Media: ID(c.Media), Author: c.Author, Mtime: c.Mtime, Text: c.Text}
}

// Request and response bodies, one pair per operation.

type GetMediaReq struct {
	Media ID `json:"media"`
}

type GetMediaResp struct {
	Media       Media     `json:"media"`
	Collections []ID      `json:"collections"`
	Comments    []Comment `json:"comments"`
}

type UpdateMediaReq struct {
	Media  ID       `json:"media"`
	Hidden *bool    `json:"hidden,omitempty"`
	Date   *string  `json:"date,omitempty"`
	Note   *string  `json:"note,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

type SearchMediaReq struct {
	Filter Filter `json:"filter"`
}

type SearchMediaResp struct {
	Media []Media `json:"media"`
}

type SearchMediaInLibraryReq struct {
	Library       ID     `json:"library"`
	Filter        Filter `json:"filter"`
	IncludeHidden bool   `json:"include_hidden"`
}

type SearchMediaInCollectionReq struct {
	Collection ID     `json:"collection"`
	Filter     Filter `json:"filter"`
}

type SimilarMediaReq struct {
	Media    ID  `json:"media"`
	Distance int `json:"distance"`
}

type AddCollectionReq struct {
	Group string   `json:"group"`
	Name  string   `json:"name"`
	Note  string   `json:"note"`
	Tags  []string `json:"tags"`
}

type AddCollectionResp struct {
	Collection ID `json:"collection"`
}

type GetCollectionReq struct {
	Collection ID `json:"collection"`
}

type GetCollectionResp struct {
	Collection Collection `json:"collection"`
}

type UpdateCollectionReq struct {
	Collection ID       `json:"collection"`
	Note       *string  `json:"note,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Cover      *ID      `json:"cover,omitempty"`
}

type DeleteCollectionReq struct {
	Collection ID `json:"collection"`
}

type SearchCollectionsReq struct {
	Filter Filter `json:"filter"`
}

type SearchCollectionsResp struct {
	Collections []Collection `json:"collections"`
}

type CollectionMembershipReq struct {
	Media      ID `json:"media"`
	Collection ID `json:"collection"`
}

type SearchLibrariesReq struct {
	Filter Filter `json:"filter"`
}

type SearchLibrariesResp struct {
	Libraries []Library `json:"libraries"`
}

type GetLibraryReq struct {
	Library ID `json:"library"`
}

type GetLibraryResp struct {
	Library Library `json:"library"`
}

type AddCommentReq struct {
	Media ID     `json:"media"`
	Text  string `json:"text"`
}

type AddCommentResp struct {
	Comment ID `json:"comment"`
}

type GetCommentReq struct {
	Comment ID `json:"comment"`
}

type GetCommentResp struct {
	Comment Comment `json:"comment"`
}

type UpdateCommentReq struct {
	Comment ID     `json:"comment"`
	Text    string `json:"text"`
}

type DeleteCommentReq struct {
	Comment ID `json:"comment"`
}

// Task control. System=true addresses the reserved system domain and
// the library id is ignored.

type TaskDomainReq struct {
	Library ID   `json:"library,omitempty"`
	System  bool `json:"system,omitempty"`
}

type StartTaskReq struct {
	TaskDomainReq
	Kind string `json:"kind"`
}

type StopTaskResp struct {
	Stopped bool `json:"stopped"`
}

type TaskEntry struct {
	Kind      string `json:"kind"`
	User      string `json:"user"`
	Status    string `json:"status"`
	Warnings  int    `json:"warnings"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time,omitempty"`
}

type ShowTasksResp struct {
	Tasks []TaskEntry `json:"tasks"`
}

func toTaskEntry(e tasks.Entry) TaskEntry {
	out := TaskEntry{
		Kind:      e.Kind.String(),
		User:      e.User,
		Status:    e.Status.String(),
		Warnings:  e.Warnings,
		StartTime: e.StartTime.Unix(),
	}
	if !e.EndTime.IsZero() {
		out.EndTime = e.EndTime.Unix()
	}
	return out
}

// BatchSearchAndSort runs the three scoped searches in one round trip,
// returns media sorted by date, and fills in collection cover details
// afterwards.

type BatchSearchAndSortReq struct {
	MediaFilter      Filter `json:"media_filter"`
	CollectionFilter Filter `json:"collection_filter"`
	LibraryFilter    Filter `json:"library_filter"`
}

type BatchSearchAndSortResp struct {
	Media       []Media          `json:"media"`
	Collections []Collection     `json:"collections"`
	Libraries   []Library        `json:"libraries"`
	Covers      map[string]Media `json:"covers"` // collection id -> cover detail
}

func tagSlice(tags map[string]struct{}) []string {
	out := make([]string, 0, len(tags))
	for t := range tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func tagSet(tags []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		out[t] = struct{}{}
	}
	return out
}
