// Package db provides the persistence contract and its MySQL implementation.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package db

import (
	"context"

	"github.com/pixelvault/pixelvault/cmn"
)

// AccessCacheInvalidator is the narrow interface the database service
// uses to clear the media-access cache after every successful
// collection-membership mutation and on collection deletion. Defined
// here (not imported from package auth) to avoid a dependency cycle;
// auth already depends on db for MediaAccessGroups.
type AccessCacheInvalidator interface {
	ClearAccessCache(ids []cmn.MediaUuid)
}

// Service pairs a Backend with the access-cache invalidator, making
// the invalidation call-after-mutation a single, auditable code path
// rather than something every caller must remember to do itself.
type Service struct {
	backend    Backend
	invalidate AccessCacheInvalidator
}

func NewService(backend Backend, invalidate AccessCacheInvalidator) *Service {
	return &Service{backend: backend, invalidate: invalidate}
}

func (s *Service) Backend() Backend { return s.backend }

func (s *Service) AddMediaToCollection(ctx context.Context, media cmn.MediaUuid, col cmn.CollectionUuid) error {
	if err := s.backend.AddMediaToCollection(ctx, media, col); err != nil {
		return err
	}
	s.invalidateMedia(media)
	return nil
}

func (s *Service) RmMediaFromCollection(ctx context.Context, media cmn.MediaUuid, col cmn.CollectionUuid) error {
	if err := s.backend.RmMediaFromCollection(ctx, media, col); err != nil {
		return err
	}
	s.invalidateMedia(media)
	return nil
}

// DeleteCollection invalidates the access cache for every media item
// that was a member of the collection, since their access_groups union
// may shrink once the collection's group can no longer grant access.
func (s *Service) DeleteCollection(ctx context.Context, id cmn.CollectionUuid) error {
	members, err := s.backend.MediaInCollection(ctx, id)
	if err != nil {
		return err
	}
	if err := s.backend.DeleteCollection(ctx, id); err != nil {
		return err
	}
	s.invalidateAll(members)
	return nil
}

func (s *Service) invalidateMedia(id cmn.MediaUuid) {
	s.invalidateAll([]cmn.MediaUuid{id})
}

func (s *Service) invalidateAll(ids []cmn.MediaUuid) {
	if s.invalidate == nil || len(ids) == 0 {
		return
	}
	s.invalidate.ClearAccessCache(ids)
}
