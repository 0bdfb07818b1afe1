// Package db provides the persistence contract and its MySQL implementation.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package db

import (
	"context"

	"github.com/pixelvault/pixelvault/cmn"
)

// Backend is the single abstract persistence contract every service
// consumes. Deliberately one interface with one concrete
// implementation; a pluggable database abstraction beyond that is not
// a goal.
type Backend interface {
	// Media

	AddMedia(ctx context.Context, m *Media) (cmn.MediaUuid, error)
	GetMedia(ctx context.Context, id cmn.MediaUuid) (*Media, []cmn.CollectionUuid, []Comment, error)
	GetMediaByPath(ctx context.Context, lib cmn.LibraryUuid, path string) (*Media, error)
	GetMediaByContentHash(ctx context.Context, lib cmn.LibraryUuid, hash uint64) (*Media, error)
	UpdateMedia(ctx context.Context, id cmn.MediaUuid, u MediaUpdate) error
	ReplaceMediaPath(ctx context.Context, id cmn.MediaUuid, path string, hash uint64, mtime int64) error
	DeleteMedia(ctx context.Context, id cmn.MediaUuid) error

	// media_access_groups(media) -> the library's group, plus, when the
	// media is not hidden, the groups of every collection containing it.
	MediaAccessGroups(ctx context.Context, id cmn.MediaUuid) (map[Group]struct{}, error)

	SearchMedia(ctx context.Context, groups map[Group]struct{}, filter SearchFilter) ([]Media, error)
	SearchMediaInLibrary(ctx context.Context, groups map[Group]struct{}, lib cmn.LibraryUuid, filter SearchFilter, includeHidden bool) ([]Media, error)
	SearchMediaInCollection(ctx context.Context, groups map[Group]struct{}, col cmn.CollectionUuid, filter SearchFilter) ([]Media, error)
	SimilarMedia(ctx context.Context, groups map[Group]struct{}, id cmn.MediaUuid, hammingThreshold int) ([]Media, error)

	// Collections

	AddCollection(ctx context.Context, c *Collection) (cmn.CollectionUuid, error)
	GetCollection(ctx context.Context, id cmn.CollectionUuid) (*Collection, error)
	UpdateCollection(ctx context.Context, id cmn.CollectionUuid, u CollectionUpdate) error
	DeleteCollection(ctx context.Context, id cmn.CollectionUuid) error
	SearchCollections(ctx context.Context, groups map[Group]struct{}, filter SearchFilter) ([]Collection, error)

	AddMediaToCollection(ctx context.Context, media cmn.MediaUuid, col cmn.CollectionUuid) error
	RmMediaFromCollection(ctx context.Context, media cmn.MediaUuid, col cmn.CollectionUuid) error
	// MediaInCollection returns every media id currently in col, with no
	// access-control scoping - used internally for cache invalidation on
	// collection deletion, never exposed across the HTTP boundary.
	MediaInCollection(ctx context.Context, col cmn.CollectionUuid) ([]cmn.MediaUuid, error)

	// Comments

	AddComment(ctx context.Context, c *Comment) (cmn.CommentUuid, error)
	GetComment(ctx context.Context, id cmn.CommentUuid) (*Comment, error)
	UpdateComment(ctx context.Context, id cmn.CommentUuid, text string) error
	DeleteComment(ctx context.Context, id cmn.CommentUuid) error

	// Libraries

	AddLibrary(ctx context.Context, l *Library) (cmn.LibraryUuid, error)
	GetLibrary(ctx context.Context, id cmn.LibraryUuid) (*Library, error)
	SearchLibraries(ctx context.Context, groups map[Group]struct{}, filter SearchFilter) ([]Library, error)
	UpdateLibraryCount(ctx context.Context, id cmn.LibraryUuid, count int64, mtime int64) error

	// MediaOwnerGroup returns the group that would own an add/remove-from-
	// collection decision requiring "owns_media": the owning library's
	// group. Kept exact, never cached.
	MediaOwnerGroup(ctx context.Context, id cmn.MediaUuid) (Group, error)
	CollectionOwnerGroup(ctx context.Context, id cmn.CollectionUuid) (Group, error)

	Close() error
}
