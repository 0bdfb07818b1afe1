// Package httpapi maps external HTTP calls to service requests and enforces per-endpoint policy.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package httpapi

import (
	"context"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/julienschmidt/httprouter"
	"golang.org/x/sync/errgroup"

	"github.com/pixelvault/pixelvault/cmn"
	"github.com/pixelvault/pixelvault/db"
	"github.com/pixelvault/pixelvault/scan"
	"github.com/pixelvault/pixelvault/tasks"

	reg "github.com/pixelvault/pixelvault/registry"
)

// opFunc is one API operation: policy check, then the service call(s)
// it needs, then the wire response.
type opFunc func(ctx context.Context, s *Server, user string, body []byte) (interface{}, error)

// operations is the dispatch table: one route per operation, each with
// the policy enforced before touching the database.
var operations = map[string]opFunc{
	"GetMedia":                opGetMedia,
	"UpdateMedia":             opUpdateMedia,
	"SearchMedia":             opSearchMedia,
	"SearchMediaInLibrary":    opSearchMediaInLibrary,
	"SearchMediaInCollection": opSearchMediaInCollection,
	"SimilarMedia":            opSimilarMedia,
	"AddCollection":           opAddCollection,
	"GetCollection":           opGetCollection,
	"UpdateCollection":        opUpdateCollection,
	"DeleteCollection":        opDeleteCollection,
	"SearchCollections":       opSearchCollections,
	"AddMediaToCollection":    opAddMediaToCollection,
	"RmMediaFromCollection":   opRmMediaFromCollection,
	"AddComment":              opAddComment,
	"GetComment":              opGetComment,
	"UpdateComment":           opUpdateComment,
	"DeleteComment":           opDeleteComment,
	"GetLibrary":              opGetLibrary,
	"SearchLibraries":         opSearchLibraries,
	"StartTask":               opStartTask,
	"StopTask":                opStopTask,
	"ShowTasks":               opShowTasks,
	"BatchSearchAndSort":      opBatchSearchAndSort,
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	opName := ps.ByName("operation")
	op, ok := operations[opName]
	if !ok {
		s.writeError(w, opName, cmn.NewMalformed("unknown operation %q", opName))
		return
	}

	user, err := s.requestUser(r)
	if err != nil {
		s.writeError(w, opName, err)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, opName, cmn.WrapBackend(err, "read request body"))
		return
	}

	resp, err := op(r.Context(), s, user, body)
	if err != nil {
		s.writeError(w, opName, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.WithField("op", opName).Errorf("encode response: %v", err)
	}
}

func decode(body []byte, into interface{}) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, into); err != nil {
		return cmn.NewMalformed("decode request: %v", err)
	}
	return nil
}

// Media

func opGetMedia(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req GetMediaReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if err := s.canAccessMedia(ctx, user, cmn.MediaUuid(req.Media)); err != nil {
		return nil, err
	}
	m, cols, comments, err := s.dbsvc.Backend().GetMedia(ctx, cmn.MediaUuid(req.Media))
	if err != nil {
		return nil, err
	}
	resp := GetMediaResp{Media: toMedia(*m)}
	for _, c := range cols {
		resp.Collections = append(resp.Collections, ID(c))
	}
	for _, c := range comments {
		resp.Comments = append(resp.Comments, toComment(c))
	}
	return resp, nil
}

func opUpdateMedia(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req UpdateMediaReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if err := s.ownsMedia(ctx, user, cmn.MediaUuid(req.Media)); err != nil {
		return nil, err
	}
	u := db.MediaUpdate{Hidden: req.Hidden, Date: req.Date, Note: req.Note}
	if req.Tags != nil {
		u.Tags = tagSet(req.Tags)
	}
	return struct{}{}, s.dbsvc.Backend().UpdateMedia(ctx, cmn.MediaUuid(req.Media), u)
}

func opSearchMedia(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req SearchMediaReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	filter, err := req.Filter.toSearchFilter()
	if err != nil {
		return nil, err
	}
	groups, err := s.userGroups(ctx, user)
	if err != nil {
		return nil, err
	}
	ms, err := s.dbsvc.Backend().SearchMedia(ctx, groups, filter)
	if err != nil {
		return nil, err
	}
	return SearchMediaResp{Media: toMediaList(ms)}, nil
}

func opSearchMediaInLibrary(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req SearchMediaInLibraryReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	filter, err := req.Filter.toSearchFilter()
	if err != nil {
		return nil, err
	}
	groups, err := s.userGroups(ctx, user)
	if err != nil {
		return nil, err
	}
	ms, err := s.dbsvc.Backend().SearchMediaInLibrary(ctx, groups, cmn.LibraryUuid(req.Library), filter, req.IncludeHidden)
	if err != nil {
		return nil, err
	}
	return SearchMediaResp{Media: toMediaList(ms)}, nil
}

func opSearchMediaInCollection(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req SearchMediaInCollectionReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	filter, err := req.Filter.toSearchFilter()
	if err != nil {
		return nil, err
	}
	groups, err := s.userGroups(ctx, user)
	if err != nil {
		return nil, err
	}
	ms, err := s.dbsvc.Backend().SearchMediaInCollection(ctx, groups, cmn.CollectionUuid(req.Collection), filter)
	if err != nil {
		return nil, err
	}
	return SearchMediaResp{Media: toMediaList(ms)}, nil
}

func opSimilarMedia(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req SimilarMediaReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	groups, err := s.userGroups(ctx, user)
	if err != nil {
		return nil, err
	}
	ms, err := s.dbsvc.Backend().SimilarMedia(ctx, groups, cmn.MediaUuid(req.Media), req.Distance)
	if err != nil {
		return nil, err
	}
	return SearchMediaResp{Media: toMediaList(ms)}, nil
}

// Collections

func opAddCollection(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req AddCollectionReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if s.cfg.GroupRegex != nil && !s.cfg.GroupRegex.MatchString(req.Group) {
		return nil, cmn.NewMalformed("group name %q is not valid", req.Group)
	}
	ok, err := s.cache.InGroup(ctx, user, db.Group(req.Group))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, cmn.NewUnauthorized("user %q is not in group %q", user, req.Group)
	}
	id, err := s.dbsvc.Backend().AddCollection(ctx, &db.Collection{
		OwnerUser: user,
		Group:     db.Group(req.Group),
		Name:      req.Name,
		Note:      req.Note,
		Tags:      tagSet(req.Tags),
	})
	if err != nil {
		return nil, err
	}
	return AddCollectionResp{Collection: ID(id)}, nil
}

func opGetCollection(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req GetCollectionReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if err := s.canAccessCollection(ctx, user, cmn.CollectionUuid(req.Collection)); err != nil {
		return nil, err
	}
	col, err := s.dbsvc.Backend().GetCollection(ctx, cmn.CollectionUuid(req.Collection))
	if err != nil {
		return nil, err
	}
	return GetCollectionResp{Collection: toCollection(*col)}, nil
}

func opUpdateCollection(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req UpdateCollectionReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if err := s.ownsCollection(ctx, user, cmn.CollectionUuid(req.Collection)); err != nil {
		return nil, err
	}
	u := db.CollectionUpdate{Note: req.Note}
	if req.Tags != nil {
		u.Tags = tagSet(req.Tags)
	}
	if req.Cover != nil {
		cov := cmn.MediaUuid(*req.Cover)
		u.Cover = &cov
	}
	return struct{}{}, s.dbsvc.Backend().UpdateCollection(ctx, cmn.CollectionUuid(req.Collection), u)
}

func opDeleteCollection(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req DeleteCollectionReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if err := s.ownsCollection(ctx, user, cmn.CollectionUuid(req.Collection)); err != nil {
		return nil, err
	}
	// Routed through db.Service so the access cache is invalidated for
	// every member.
	return struct{}{}, s.dbsvc.DeleteCollection(ctx, cmn.CollectionUuid(req.Collection))
}

func opSearchCollections(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req SearchCollectionsReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	filter, err := req.Filter.toSearchFilter()
	if err != nil {
		return nil, err
	}
	groups, err := s.userGroups(ctx, user)
	if err != nil {
		return nil, err
	}
	cols, err := s.dbsvc.Backend().SearchCollections(ctx, groups, filter)
	if err != nil {
		return nil, err
	}
	return SearchCollectionsResp{Collections: toCollectionList(cols)}, nil
}

func opAddMediaToCollection(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req CollectionMembershipReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if err := s.ownsMedia(ctx, user, cmn.MediaUuid(req.Media)); err != nil {
		return nil, err
	}
	if err := s.canAccessCollection(ctx, user, cmn.CollectionUuid(req.Collection)); err != nil {
		return nil, err
	}
	return struct{}{}, s.dbsvc.AddMediaToCollection(ctx, cmn.MediaUuid(req.Media), cmn.CollectionUuid(req.Collection))
}

func opRmMediaFromCollection(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req CollectionMembershipReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	// Owner of the collection may always curate it; otherwise the caller
	// must own the media and be able to access the collection.
	if err := s.ownsCollection(ctx, user, cmn.CollectionUuid(req.Collection)); err != nil {
		if !cmn.Is(err, cmn.KindUnauthorized) {
			return nil, err
		}
		if err := s.ownsMedia(ctx, user, cmn.MediaUuid(req.Media)); err != nil {
			return nil, err
		}
		if err := s.canAccessCollection(ctx, user, cmn.CollectionUuid(req.Collection)); err != nil {
			return nil, err
		}
	}
	return struct{}{}, s.dbsvc.RmMediaFromCollection(ctx, cmn.MediaUuid(req.Media), cmn.CollectionUuid(req.Collection))
}

// Comments

func opAddComment(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req AddCommentReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if err := s.canAccessMedia(ctx, user, cmn.MediaUuid(req.Media)); err != nil {
		return nil, err
	}
	id, err := s.dbsvc.Backend().AddComment(ctx, &db.Comment{
		Media:  cmn.MediaUuid(req.Media),
		Author: user,
		Mtime:  time.Now().Unix(),
		Text:   req.Text,
	})
	if err != nil {
		return nil, err
	}
	return AddCommentResp{Comment: ID(id)}, nil
}

func opGetComment(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req GetCommentReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	com, err := s.dbsvc.Backend().GetComment(ctx, cmn.CommentUuid(req.Comment))
	if err != nil {
		return nil, err
	}
	if err := s.canAccessMedia(ctx, user, com.Media); err != nil {
		return nil, err
	}
	return GetCommentResp{Comment: toComment(*com)}, nil
}

func (s *Server) ownsComment(ctx context.Context, user string, id cmn.CommentUuid) (*db.Comment, error) {
	com, err := s.dbsvc.Backend().GetComment(ctx, id)
	if err != nil {
		return nil, err
	}
	if com.Author != user {
		return nil, cmn.NewUnauthorized("user %q is not the author of comment %d", user, id)
	}
	return com, nil
}

func opUpdateComment(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req UpdateCommentReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if _, err := s.ownsComment(ctx, user, cmn.CommentUuid(req.Comment)); err != nil {
		return nil, err
	}
	return struct{}{}, s.dbsvc.Backend().UpdateComment(ctx, cmn.CommentUuid(req.Comment), req.Text)
}

func opDeleteComment(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req DeleteCommentReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if _, err := s.ownsComment(ctx, user, cmn.CommentUuid(req.Comment)); err != nil {
		return nil, err
	}
	return struct{}{}, s.dbsvc.Backend().DeleteComment(ctx, cmn.CommentUuid(req.Comment))
}

// Libraries

func opGetLibrary(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req GetLibraryReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if err := s.ownsLibrary(ctx, user, cmn.LibraryUuid(req.Library)); err != nil {
		return nil, err
	}
	lib, err := s.dbsvc.Backend().GetLibrary(ctx, cmn.LibraryUuid(req.Library))
	if err != nil {
		return nil, err
	}
	return GetLibraryResp{Library: toLibrary(*lib)}, nil
}

func opSearchLibraries(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req SearchLibrariesReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	filter, err := req.Filter.toSearchFilter()
	if err != nil {
		return nil, err
	}
	groups, err := s.userGroups(ctx, user)
	if err != nil {
		return nil, err
	}
	libs, err := s.dbsvc.Backend().SearchLibraries(ctx, groups, filter)
	if err != nil {
		return nil, err
	}
	resp := SearchLibrariesResp{Libraries: make([]Library, len(libs))}
	for i, l := range libs {
		resp.Libraries[i] = toLibrary(l)
	}
	return resp, nil
}

// Task control plane: dispatch talks to the supervisor exclusively
// through its registry inbox.

func (r TaskDomainReq) domain() tasks.Domain {
	if r.System {
		return tasks.SystemDomain
	}
	return tasks.LibraryDomain(cmn.LibraryUuid(r.Library))
}

func parseTaskKind(kind string) (tasks.Kind, error) {
	switch kind {
	case "scan_library":
		return tasks.ScanLibrary, nil
	case "clean_library":
		return tasks.CleanLibrary, nil
	case "run_scripts":
		return tasks.RunScripts, nil
	case "cache_scrub":
		return tasks.CacheScrub, nil
	default:
		return 0, cmn.NewMalformed("unknown task kind %q", kind)
	}
}

// taskFunc builds the body a supervisor slot will run for kind.
func (s *Server) taskFunc(kind tasks.Kind, library cmn.LibraryUuid) tasks.Func {
	backend := s.dbsvc.Backend()
	scanCfg := scan.Config{
		Threads:     s.cfg.Scan.Threads,
		FileTimeout: s.cfg.Scan.Timeout(),
		ScratchRoot: s.cfg.Scan.ScratchRoot,
		Layout:      scan.Layout{LinkDir: s.cfg.MediaLinkDir, ThumbnailDir: s.cfg.ThumbnailDir},
	}
	switch kind {
	case tasks.ScanLibrary:
		return func(ctx context.Context) tasks.Outcome {
			out := scan.Run(ctx, library, scanCfg, backend, s.proc, s.thumb)
			return tasks.Outcome{Warnings: out.Warnings, Err: out.Err}
		}
	case tasks.CleanLibrary:
		return func(ctx context.Context) tasks.Outcome {
			out := scan.Clean(ctx, library, backend)
			return tasks.Outcome{Warnings: out.Warnings, Err: out.Err}
		}
	case tasks.RunScripts:
		// Per-library operator scripts are an interface-only concern
		// here, like the media processor.
		return func(ctx context.Context) tasks.Outcome { return tasks.Outcome{} }
	default: // tasks.CacheScrub
		return func(ctx context.Context) tasks.Outcome {
			s.cache.ClearUserCache(nil)
			s.cache.ClearAccessCache(nil)
			return tasks.Outcome{}
		}
	}
}

func opStartTask(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req StartTaskReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	kind, err := parseTaskKind(req.Kind)
	if err != nil {
		return nil, err
	}
	domain := req.domain()
	if !domain.IsSystem() {
		if err := s.ownsLibrary(ctx, user, cmn.LibraryUuid(req.Library)); err != nil {
			return nil, err
		}
	}
	_, err = reg.Send(ctx, s.tasksIn, tasks.Request(tasks.StartRequest{
		Domain: domain,
		Kind:   kind,
		User:   user,
		Fn:     s.taskFunc(kind, cmn.LibraryUuid(req.Library)),
	}))
	return struct{}{}, err
}

func opStopTask(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req TaskDomainReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	domain := req.domain()
	if !domain.IsSystem() {
		if err := s.ownsLibrary(ctx, user, cmn.LibraryUuid(req.Library)); err != nil {
			return nil, err
		}
	}
	resp, err := reg.Send(ctx, s.tasksIn, tasks.Request(tasks.StopRequest{Domain: domain}))
	if err != nil {
		return nil, err
	}
	return StopTaskResp{Stopped: resp.Stopped}, nil
}

func opShowTasks(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req TaskDomainReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	domain := req.domain()
	// ShowTasks(System) is always allowed; a library domain requires
	// library ownership.
	if !domain.IsSystem() {
		if err := s.ownsLibrary(ctx, user, cmn.LibraryUuid(req.Library)); err != nil {
			return nil, err
		}
	}
	resp, err := reg.Send(ctx, s.tasksIn, tasks.Request(tasks.ShowRequest{Domain: domain}))
	if err != nil {
		return nil, err
	}
	out := ShowTasksResp{Tasks: make([]TaskEntry, len(resp.Entries))}
	for i, e := range resp.Entries {
		out.Tasks[i] = toTaskEntry(e)
	}
	return out, nil
}

// BatchSearchAndSort: the three scoped searches run concurrently; no
// pre-check beyond group scoping, matching the union of the three
// search policies. Media details for collection covers are filled in
// afterwards.
func opBatchSearchAndSort(ctx context.Context, s *Server, user string, body []byte) (interface{}, error) {
	var req BatchSearchAndSortReq
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	mf, err := req.MediaFilter.toSearchFilter()
	if err != nil {
		return nil, err
	}
	cf, err := req.CollectionFilter.toSearchFilter()
	if err != nil {
		return nil, err
	}
	lf, err := req.LibraryFilter.toSearchFilter()
	if err != nil {
		return nil, err
	}
	groups, err := s.userGroups(ctx, user)
	if err != nil {
		return nil, err
	}

	backend := s.dbsvc.Backend()
	var (
		ms   []db.Media
		cols []db.Collection
		libs []db.Library
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ms, err = backend.SearchMedia(gctx, groups, mf)
		return err
	})
	g.Go(func() error {
		var err error
		cols, err = backend.SearchCollections(gctx, groups, cf)
		return err
	})
	g.Go(func() error {
		var err error
		libs, err = backend.SearchLibraries(gctx, groups, lf)
		return err
	})
	if err := g.Wait(); err != nil {
		// Never partial: all three scoped lists or an error.
		return nil, err
	}

	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Date != ms[j].Date {
			return ms[i].Date < ms[j].Date
		}
		return ms[i].Path < ms[j].Path
	})

	resp := BatchSearchAndSortResp{
		Media:       toMediaList(ms),
		Collections: toCollectionList(cols),
		Libraries:   make([]Library, len(libs)),
		Covers:      make(map[string]Media),
	}
	for i, l := range libs {
		resp.Libraries[i] = toLibrary(l)
	}

	byID := make(map[cmn.MediaUuid]db.Media, len(ms))
	for _, m := range ms {
		byID[m.ID] = m
	}
	for _, col := range cols {
		if col.Cover == nil {
			continue
		}
		if m, ok := byID[*col.Cover]; ok {
			resp.Covers[ID(col.ID).String()] = toMedia(m)
			continue
		}
		m, _, _, err := backend.GetMedia(ctx, *col.Cover)
		if err != nil {
			if cmn.Is(err, cmn.KindNotFound) {
				continue
			}
			return nil, err
		}
		resp.Covers[ID(col.ID).String()] = toMedia(*m)
	}
	return resp, nil
}
