// Package db provides the persistence contract and its MySQL implementation.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package db

import "github.com/pixelvault/pixelvault/cmn"

// MediaKind is the closed set of media types scan can classify a file
// into.
type MediaKind string

const (
	KindImage      MediaKind = "image"
	KindVideo      MediaKind = "video"
	KindVideoSlice MediaKind = "video_slice"
	KindAudio      MediaKind = "audio"
)

// Group is an authorization principal.
type Group string

// Library is a rooted filesystem subtree owned by a group.
type Library struct {
	ID         cmn.LibraryUuid
	Path       string // absolute, unique
	OwnerUser  string
	OwnerGroup Group
	Mtime      int64
	MediaCount int64
}

// Media is one file within some library.
type Media struct {
	ID             cmn.MediaUuid
	Library        cmn.LibraryUuid
	Path           string // unique within library
	Size           int64
	ContentHash    uint64
	PerceptualHash uint64
	Mtime          int64
	Hidden         bool
	Date           string
	Note           string
	Tags           map[string]struct{}
	Kind           MediaKind
}

// MediaUpdate carries the Some/None-shaped patch a caller applies via
// UpdateMedia: a nil field means "leave unchanged."
type MediaUpdate struct {
	Hidden *bool
	Date   *string
	Note   *string
	Tags   map[string]struct{} // nil means unchanged, non-nil (incl. empty) replaces
}

// Collection is a user-curated named bag of media.
type Collection struct {
	ID        cmn.CollectionUuid
	OwnerUser string
	Group     Group
	Name      string // unique per user
	Note      string
	Tags      map[string]struct{}
	Cover     *cmn.MediaUuid
}

type CollectionUpdate struct {
	Note  *string
	Tags  map[string]struct{}
	Cover *cmn.MediaUuid
}

// Comment is text attached to one media.
type Comment struct {
	ID     cmn.CommentUuid
	Media  cmn.MediaUuid
	Author string
	Mtime  int64
	Text   string
}

// SearchFilter is a tagged union of the four ways the store can be
// queried. Concrete variants implement the unexported marker method so
// the set is sealed to this package's callers.
type SearchFilter interface {
	isSearchFilter()
}

type FilterNone struct{}

func (FilterNone) isSearchFilter() {}

type FilterSubstringAny struct{ Terms []string }

func (FilterSubstringAny) isSearchFilter() {}

type FilterSubstringAll struct{ Terms []string }

func (FilterSubstringAll) isSearchFilter() {}

type FilterFulltext struct{ Query string }

func (FilterFulltext) isSearchFilter() {}

type FilterKeyword struct{ Terms []string }

func (FilterKeyword) isSearchFilter() {}
