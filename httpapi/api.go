// Package httpapi maps external HTTP calls to service requests,
// enforcing the per-endpoint policy table before any database work
// happens. It owns no state of its own beyond the route table.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package httpapi

import (
	"context"
	"net/http"
	"path"
	"path/filepath"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/pixelvault/pixelvault/auth"
	"github.com/pixelvault/pixelvault/authn"
	"github.com/pixelvault/pixelvault/cmn"
	"github.com/pixelvault/pixelvault/config"
	"github.com/pixelvault/pixelvault/db"
	"github.com/pixelvault/pixelvault/media"
	"github.com/pixelvault/pixelvault/registry"
	"github.com/pixelvault/pixelvault/tasks"
)

// Server wires the dispatch layer to the service plane: the auth cache
// for policy, the database service for content, and the task
// supervisor's inbox for the scan/clean/scrub control plane.
type Server struct {
	cfg     *config.Config
	cache   *auth.Cache
	dbsvc   *db.Service
	tasksIn registry.Inbox[tasks.Request, tasks.Response]
	backend auth.Backend
	proxy   *authn.ProxyHeader // non-nil only for authn.kind = proxy_header
	proc    media.Processor
	thumb   media.Thumbnailer
	router  *httprouter.Router
	log     *logrus.Entry
}

func NewServer(cfg *config.Config, cache *auth.Cache, dbsvc *db.Service,
	tasksIn registry.Inbox[tasks.Request, tasks.Response],
	backend auth.Backend, proxy *authn.ProxyHeader,
	proc media.Processor, thumb media.Thumbnailer) *Server {
	s := &Server{
		cfg:     cfg,
		cache:   cache,
		dbsvc:   dbsvc,
		tasksIn: tasksIn,
		backend: backend,
		proxy:   proxy,
		proc:    proc,
		thumb:   thumb,
		router:  httprouter.New(),
		log:     cmn.Component("httpapi"),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	root := s.cfg.HTTP.URLRoot
	s.router.POST(path.Join("/", root, "/api/:operation"), s.handleAPI)
	s.router.GET(path.Join("/", root, "/media/:kind/:media"), s.handleMedia)
}

// requestUser establishes the caller's identity: the trusted proxy
// header (after the peer-CN check) for the proxy_header backend, HTTP
// basic auth against the credentials file otherwise. The user_regex
// syntactic check runs before any backend lookup.
func (s *Server) requestUser(r *http.Request) (string, error) {
	var user string
	if s.proxy != nil {
		if err := s.proxy.CheckPeerCN(r); err != nil {
			return "", err
		}
		u, err := s.proxy.UserFromRequest(r)
		if err != nil {
			return "", err
		}
		user = u
	} else {
		u, pass, ok := r.BasicAuth()
		if !ok {
			return "", cmn.NewUnauthorized("missing credentials")
		}
		if s.cfg.UserRegex != nil && !s.cfg.UserRegex.MatchString(u) {
			return "", cmn.NewMalformed("user name %q is not valid", u)
		}
		authed, err := s.backend.Authenticate(r.Context(), u, pass)
		if err != nil {
			return "", err
		}
		if !authed {
			return "", cmn.NewUnauthorized("bad credentials")
		}
		user = u
	}
	if s.cfg.UserRegex != nil && !s.cfg.UserRegex.MatchString(user) {
		return "", cmn.NewMalformed("user name %q is not valid", user)
	}
	return user, nil
}

// handleMedia serves thumbnail and full reads from the install layout.
// The byte serving itself is out of core scope; the access check at
// request time is not, and runs before any file is opened.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	user, err := s.requestUser(r)
	if err != nil {
		s.writeError(w, "media", err)
		return
	}

	mediaID, err := strconv.ParseUint(ps.ByName("media"), 10, 64)
	if err != nil {
		s.writeError(w, "media", cmn.NewMalformed("media id %q", ps.ByName("media")))
		return
	}

	ok, err := s.cache.CanAccessMedia(r.Context(), user, cmn.MediaUuid(mediaID))
	if err != nil {
		s.writeError(w, "media", err)
		return
	}
	if !ok {
		s.writeError(w, "media", cmn.NewUnauthorized("no access to media %d", mediaID))
		return
	}

	var dir string
	switch ps.ByName("kind") {
	case "thumb":
		dir = s.cfg.ThumbnailDir
	case "full", "video":
		dir = s.cfg.MediaLinkDir
	default:
		s.writeError(w, "media", cmn.NewMalformed("unknown media kind %q", ps.ByName("kind")))
		return
	}
	// net/http handles range requests for the video case.
	http.ServeFile(w, r, filepath.Join(dir, mediaName(cmn.MediaUuid(mediaID))))
}

func mediaName(id cmn.MediaUuid) string {
	const hexDigits = "0123456789abcdef"
	h := uint64(id)
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[h&0xf]
		h >>= 4
	}
	return string(buf)
}

// Policy helpers shared by the operation handlers.

func (s *Server) ownsLibrary(ctx context.Context, user string, id cmn.LibraryUuid) error {
	lib, err := s.dbsvc.Backend().GetLibrary(ctx, id)
	if err != nil {
		return err
	}
	ok, err := s.cache.InGroup(ctx, user, lib.OwnerGroup)
	if err != nil {
		return err
	}
	if !ok {
		return cmn.NewUnauthorized("user %q does not own library %d", user, id)
	}
	return nil
}

func (s *Server) ownsMedia(ctx context.Context, user string, id cmn.MediaUuid) error {
	ok, err := s.cache.OwnsMedia(ctx, user, id)
	if err != nil {
		return err
	}
	if !ok {
		return cmn.NewUnauthorized("user %q does not own media %d", user, id)
	}
	return nil
}

func (s *Server) canAccessMedia(ctx context.Context, user string, id cmn.MediaUuid) error {
	ok, err := s.cache.CanAccessMedia(ctx, user, id)
	if err != nil {
		return err
	}
	if !ok {
		return cmn.NewUnauthorized("user %q has no access to media %d", user, id)
	}
	return nil
}

// ownsCollection: the caller created the collection. canAccessCollection:
// the caller is in the collection's group.

func (s *Server) ownsCollection(ctx context.Context, user string, id cmn.CollectionUuid) error {
	col, err := s.dbsvc.Backend().GetCollection(ctx, id)
	if err != nil {
		return err
	}
	if col.OwnerUser != user {
		return cmn.NewUnauthorized("user %q does not own collection %d", user, id)
	}
	return nil
}

func (s *Server) canAccessCollection(ctx context.Context, user string, id cmn.CollectionUuid) error {
	col, err := s.dbsvc.Backend().GetCollection(ctx, id)
	if err != nil {
		return err
	}
	ok, err := s.cache.InGroup(ctx, user, col.Group)
	if err != nil {
		return err
	}
	if !ok {
		return cmn.NewUnauthorized("user %q has no access to collection %d", user, id)
	}
	return nil
}

// userGroups resolves the caller's cached group set for search scoping.
func (s *Server) userGroups(ctx context.Context, user string) (map[db.Group]struct{}, error) {
	return s.cache.GroupsForUser(ctx, user)
}
