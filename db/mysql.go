// Package db provides the persistence contract and its MySQL implementation.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"math/bits"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/pixelvault/pixelvault/cmn"
)

// MySQL is the one concrete Backend implementation, over
// github.com/go-sql-driver/mysql with github.com/jmoiron/sqlx for row
// scanning.
type MySQL struct {
	db *sqlx.DB
}

var _ Backend = (*MySQL)(nil)

func OpenMySQL(ctx context.Context, dsn string) (*MySQL, error) {
	dbx, err := sqlx.ConnectContext(ctx, "mysql", dsn)
	if err != nil {
		return nil, wrapQueryErr(err, "connect to database")
	}
	return &MySQL{db: dbx}, nil
}

func (m *MySQL) Close() error { return m.db.Close() }

// mediaRow mirrors the `media` table; `sqlx` struct tags drive the
// scan.
type mediaRow struct {
	ID      uint64 `db:"id"`
	Library uint64 `db:"library_id"`
	Path    string `db:"path"`
	Size    int64  `db:"size"`
	Chash   uint64 `db:"chash"`
	Phash   uint64 `db:"phash"`
	Mtime   int64  `db:"mtime"`
	Hidden  bool   `db:"hidden"`
	Date    string `db:"date"`
	Note    string `db:"note"`
	Tags    string `db:"tags"`
	Kind    string `db:"kind"`
}

func (r mediaRow) toMedia() Media {
	return Media{
		ID:             cmn.MediaUuid(r.ID),
		Library:        cmn.LibraryUuid(r.Library),
		Path:           r.Path,
		Size:           r.Size,
		ContentHash:    r.Chash,
		PerceptualHash: r.Phash,
		Mtime:          r.Mtime,
		Hidden:         r.Hidden,
		Date:           r.Date,
		Note:           r.Note,
		Tags:           cmn.UnfoldTags(r.Tags),
		Kind:           MediaKind(r.Kind),
	}
}

func (m *MySQL) AddMedia(ctx context.Context, med *Media) (cmn.MediaUuid, error) {
	tags, err := cmn.FoldTags(med.Tags)
	if err != nil {
		return 0, err
	}
	id := cmn.NewMediaUuid()
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO media (id, library_id, path, size, chash, phash, mtime, hidden, date, note, tags, kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uint64(id), uint64(med.Library), med.Path, med.Size, med.ContentHash, med.PerceptualHash,
		med.Mtime, med.Hidden, med.Date, med.Note, tags, string(med.Kind),
	)
	if isDuplicateKeyErr(err) {
		return 0, cmn.NewConflict("media path %q already exists in library", med.Path)
	}
	if err != nil {
		return 0, wrapQueryErr(err, "insert media")
	}
	return id, nil
}

func (m *MySQL) GetMedia(ctx context.Context, id cmn.MediaUuid) (*Media, []cmn.CollectionUuid, []Comment, error) {
	var row mediaRow
	err := m.db.GetContext(ctx, &row, `SELECT id, library_id, path, size, chash, phash, mtime, hidden, date, note, tags, kind FROM media WHERE id = ?`, uint64(id))
	if err == sql.ErrNoRows {
		return nil, nil, nil, cmn.NewNotFound("media %d", id)
	}
	if err != nil {
		return nil, nil, nil, wrapQueryErr(err, "get media")
	}

	var colIDs []uint64
	if err := m.db.SelectContext(ctx, &colIDs, `SELECT collection_id FROM collection_contents WHERE media_id = ?`, uint64(id)); err != nil {
		return nil, nil, nil, wrapQueryErr(err, "get media collections")
	}
	cols := make([]cmn.CollectionUuid, len(colIDs))
	for i, c := range colIDs {
		cols[i] = cmn.CollectionUuid(c)
	}

	var comRows []commentRow
	if err := m.db.SelectContext(ctx, &comRows, `SELECT id, media_id, author, mtime, text FROM comments WHERE media_id = ? ORDER BY mtime`, uint64(id)); err != nil {
		return nil, nil, nil, wrapQueryErr(err, "get media comments")
	}
	comments := make([]Comment, len(comRows))
	for i, c := range comRows {
		comments[i] = c.toComment()
	}

	media := row.toMedia()
	return &media, cols, comments, nil
}

func (m *MySQL) GetMediaByPath(ctx context.Context, lib cmn.LibraryUuid, path string) (*Media, error) {
	var row mediaRow
	err := m.db.GetContext(ctx, &row, `SELECT id, library_id, path, size, chash, phash, mtime, hidden, date, note, tags, kind FROM media WHERE library_id = ? AND path = ?`, uint64(lib), path)
	if err == sql.ErrNoRows {
		return nil, cmn.NewNotFound("media at path %q", path)
	}
	if err != nil {
		return nil, wrapQueryErr(err, "get media by path")
	}
	med := row.toMedia()
	return &med, nil
}

func (m *MySQL) GetMediaByContentHash(ctx context.Context, lib cmn.LibraryUuid, hash uint64) (*Media, error) {
	var row mediaRow
	err := m.db.GetContext(ctx, &row, `SELECT id, library_id, path, size, chash, phash, mtime, hidden, date, note, tags, kind FROM media WHERE library_id = ? AND chash = ?`, uint64(lib), hash)
	if err == sql.ErrNoRows {
		return nil, cmn.NewNotFound("media with content hash %x", hash)
	}
	if err != nil {
		return nil, wrapQueryErr(err, "get media by content hash")
	}
	med := row.toMedia()
	return &med, nil
}

func (m *MySQL) UpdateMedia(ctx context.Context, id cmn.MediaUuid, u MediaUpdate) error {
	sets := []string{}
	args := []interface{}{}
	if u.Hidden != nil {
		sets = append(sets, "hidden = ?")
		args = append(args, *u.Hidden)
	}
	if u.Date != nil {
		sets = append(sets, "date = ?")
		args = append(args, *u.Date)
	}
	if u.Note != nil {
		sets = append(sets, "note = ?")
		args = append(args, *u.Note)
	}
	if u.Tags != nil {
		folded, err := cmn.FoldTags(u.Tags)
		if err != nil {
			return err
		}
		sets = append(sets, "tags = ?")
		args = append(args, folded)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, uint64(id))
	q := fmt.Sprintf("UPDATE media SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := m.db.ExecContext(ctx, q, args...)
	if err != nil {
		return wrapQueryErr(err, "update media")
	}
	return requireAffected(res, "media", uint64(id))
}

func (m *MySQL) ReplaceMediaPath(ctx context.Context, id cmn.MediaUuid, path string, hash uint64, mtime int64) error {
	_, err := m.db.ExecContext(ctx, `UPDATE media SET path = ?, chash = ?, mtime = ? WHERE id = ?`, path, hash, mtime, uint64(id))
	if err != nil {
		return wrapQueryErr(err, "replace media path")
	}
	return nil
}

func (m *MySQL) DeleteMedia(ctx context.Context, id cmn.MediaUuid) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, uint64(id))
	if err != nil {
		return wrapQueryErr(err, "delete media")
	}
	return nil
}

func (m *MySQL) MediaAccessGroups(ctx context.Context, id cmn.MediaUuid) (map[Group]struct{}, error) {
	groups := make(map[Group]struct{})

	var libGroup string
	err := m.db.GetContext(ctx, &libGroup, `
		SELECT l.owner_group FROM media m JOIN libraries l ON l.id = m.library_id WHERE m.id = ?`, uint64(id))
	if err != nil && err != sql.ErrNoRows {
		return nil, wrapQueryErr(err, "media access groups: library")
	}
	if libGroup != "" {
		groups[Group(libGroup)] = struct{}{}
	}

	var med Media
	mr, err := func() (mediaRow, error) {
		var row mediaRow
		e := m.db.GetContext(ctx, &row, `SELECT hidden FROM media WHERE id = ?`, uint64(id))
		return row, e
	}()
	if err != nil && err != sql.ErrNoRows {
		return nil, wrapQueryErr(err, "media access groups: hidden flag")
	}
	med.Hidden = mr.Hidden
	if med.Hidden {
		return groups, nil
	}

	var colGroups []string
	err = m.db.SelectContext(ctx, &colGroups, `
		SELECT c.group_name FROM collection_contents cc
		JOIN collections c ON c.id = cc.collection_id
		WHERE cc.media_id = ?`, uint64(id))
	if err != nil {
		return nil, wrapQueryErr(err, "media access groups: collections")
	}
	for _, g := range colGroups {
		groups[Group(g)] = struct{}{}
	}
	return groups, nil
}

func (m *MySQL) MediaOwnerGroup(ctx context.Context, id cmn.MediaUuid) (Group, error) {
	var g string
	err := m.db.GetContext(ctx, &g, `
		SELECT l.owner_group FROM media m JOIN libraries l ON l.id = m.library_id WHERE m.id = ?`, uint64(id))
	if err == sql.ErrNoRows {
		return "", cmn.NewNotFound("media %d", id)
	}
	if err != nil {
		return "", wrapQueryErr(err, "media owner group")
	}
	return Group(g), nil
}

func (m *MySQL) CollectionOwnerGroup(ctx context.Context, id cmn.CollectionUuid) (Group, error) {
	var g string
	err := m.db.GetContext(ctx, &g, `SELECT group_name FROM collections WHERE id = ?`, uint64(id))
	if err == sql.ErrNoRows {
		return "", cmn.NewNotFound("collection %d", id)
	}
	if err != nil {
		return "", wrapQueryErr(err, "collection owner group")
	}
	return Group(g), nil
}

// buildFilterClause translates a SearchFilter into a SQL predicate and
// its bind args. The caller supplies the column(s) to search against.
// An empty filter (FilterNone, or any variant with zero terms) matches
// everything; the list endpoints rely on this.
func buildFilterClause(filter SearchFilter, searchCols []string) (string, []interface{}) {
	concatCols := strings.Join(searchCols, ", ' ', ")
	concat := fmt.Sprintf("CONCAT_WS(' ', %s)", concatCols)

	switch f := filter.(type) {
	case nil, FilterNone:
		return "1=1", nil
	case FilterSubstringAny:
		if len(f.Terms) == 0 {
			return "1=1", nil
		}
		clauses := make([]string, len(f.Terms))
		args := make([]interface{}, len(f.Terms))
		for i, t := range f.Terms {
			clauses[i] = fmt.Sprintf("LOWER(%s) LIKE LOWER(?)", concat)
			args[i] = "%" + t + "%"
		}
		return "(" + strings.Join(clauses, " OR ") + ")", args
	case FilterSubstringAll:
		if len(f.Terms) == 0 {
			return "1=1", nil
		}
		clauses := make([]string, len(f.Terms))
		args := make([]interface{}, len(f.Terms))
		for i, t := range f.Terms {
			clauses[i] = fmt.Sprintf("LOWER(%s) REGEXP LOWER(?)", concat)
			args[i] = `[[:<:]]` + t + `[[:>:]]`
		}
		return "(" + strings.Join(clauses, " AND ") + ")", args
	case FilterFulltext:
		if strings.TrimSpace(f.Query) == "" {
			return "1=1", nil
		}
		return fmt.Sprintf("MATCH(%s) AGAINST (? IN BOOLEAN MODE)", strings.Join(searchCols, ", ")), []interface{}{f.Query}
	case FilterKeyword:
		if len(f.Terms) == 0 {
			return "1=1", nil
		}
		return fmt.Sprintf("MATCH(%s) AGAINST (? IN NATURAL LANGUAGE MODE)", strings.Join(searchCols, ", ")), []interface{}{strings.Join(f.Terms, " ")}
	default:
		return "1=1", nil
	}
}

// groupsPredicate returns a "row's group is one of the caller's groups"
// clause, as a parameterized IN(...) rather than string concatenation.
func groupsPredicate(column string, groups map[Group]struct{}) (string, []interface{}) {
	if len(groups) == 0 {
		return "1=0", nil
	}
	placeholders := make([]string, 0, len(groups))
	args := make([]interface{}, 0, len(groups))
	for g := range groups {
		placeholders = append(placeholders, "?")
		args = append(args, string(g))
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ",")), args
}

// mediaVisibility returns the unscoped-search access predicate for a
// media row m: visible if the owning library's group is one of the
// caller's groups, or if the media sits in a collection whose group is.
// The hidden=FALSE restriction is applied by the caller over the union
// of both branches.
func mediaVisibility(groups map[Group]struct{}) (string, []interface{}) {
	libPred, libArgs := groupsPredicate("l.owner_group", groups)
	colPred, colArgs := groupsPredicate("c.group_name", groups)
	clause := fmt.Sprintf(`(%s OR m.id IN (
		SELECT cc.media_id FROM collection_contents cc
		JOIN collections c ON c.id = cc.collection_id
		WHERE %s))`, libPred, colPred)
	return clause, append(libArgs, colArgs...)
}

// SearchMedia scopes by the full access model: media reachable through
// the caller's library groups unions with media reachable through a
// collection in one of the caller's groups, then restricts to
// non-hidden rows.
func (m *MySQL) SearchMedia(ctx context.Context, groups map[Group]struct{}, filter SearchFilter) ([]Media, error) {
	vp, vargs := mediaVisibility(groups)
	fc, fargs := buildFilterClause(filter, []string{"m.path", "m.note", "m.tags", "m.date"})

	q := fmt.Sprintf(`
		SELECT m.id, m.library_id, m.path, m.size, m.chash, m.phash, m.mtime, m.hidden, m.date, m.note, m.tags, m.kind
		FROM media m JOIN libraries l ON l.id = m.library_id
		WHERE m.hidden = FALSE AND %s AND %s`, vp, fc)
	args := append(vargs, fargs...)

	var rows []mediaRow
	if err := m.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, wrapQueryErr(err, "search media")
	}
	out := make([]Media, len(rows))
	for i, r := range rows {
		out[i] = r.toMedia()
	}
	return out, nil
}

// SearchMediaInLibrary scopes by the library group alone: listing a
// library's contents is a library-owner view, not reachable through
// collection membership.
func (m *MySQL) SearchMediaInLibrary(ctx context.Context, groups map[Group]struct{}, lib cmn.LibraryUuid, filter SearchFilter, includeHidden bool) ([]Media, error) {
	gp, gargs := groupsPredicate("l.owner_group", groups)
	fc, fargs := buildFilterClause(filter, []string{"m.path", "m.note", "m.tags", "m.date"})

	q := fmt.Sprintf(`
		SELECT m.id, m.library_id, m.path, m.size, m.chash, m.phash, m.mtime, m.hidden, m.date, m.note, m.tags, m.kind
		FROM media m JOIN libraries l ON l.id = m.library_id
		WHERE m.library_id = ? AND %s AND %s`, gp, fc)
	args := append([]interface{}{uint64(lib)}, gargs...)
	args = append(args, fargs...)

	if !includeHidden {
		q += " AND m.hidden = FALSE"
	}

	var rows []mediaRow
	if err := m.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, wrapQueryErr(err, "search media in library")
	}
	out := make([]Media, len(rows))
	for i, r := range rows {
		out[i] = r.toMedia()
	}
	return out, nil
}

func (m *MySQL) SearchMediaInCollection(ctx context.Context, groups map[Group]struct{}, col cmn.CollectionUuid, filter SearchFilter) ([]Media, error) {
	gp, gargs := groupsPredicate("c.group_name", groups)
	fc, fargs := buildFilterClause(filter, []string{"m.path", "m.note", "m.tags", "m.date"})

	q := fmt.Sprintf(`
		SELECT m.id, m.library_id, m.path, m.size, m.chash, m.phash, m.mtime, m.hidden, m.date, m.note, m.tags, m.kind
		FROM media m
		JOIN collection_contents cc ON cc.media_id = m.id
		JOIN collections c ON c.id = cc.collection_id
		WHERE cc.collection_id = ? AND %s AND %s`, gp, fc)
	args := append([]interface{}{uint64(col)}, gargs...)
	args = append(args, fargs...)

	var rows []mediaRow
	if err := m.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, wrapQueryErr(err, "search media in collection")
	}
	out := make([]Media, len(rows))
	for i, r := range rows {
		out[i] = r.toMedia()
	}
	return out, nil
}

func (m *MySQL) SimilarMedia(ctx context.Context, groups map[Group]struct{}, id cmn.MediaUuid, hammingThreshold int) ([]Media, error) {
	var origin mediaRow
	if err := m.db.GetContext(ctx, &origin, `SELECT phash FROM media WHERE id = ?`, uint64(id)); err != nil {
		if err == sql.ErrNoRows {
			return nil, cmn.NewNotFound("media %d", id)
		}
		return nil, wrapQueryErr(err, "similar media: origin")
	}

	// Same union-of-library-or-collection visibility as SearchMedia:
	// similarity must never surface media the caller could not find.
	vp, vargs := mediaVisibility(groups)
	q := fmt.Sprintf(`
		SELECT m.id, m.library_id, m.path, m.size, m.chash, m.phash, m.mtime, m.hidden, m.date, m.note, m.tags, m.kind
		FROM media m JOIN libraries l ON l.id = m.library_id
		WHERE m.hidden = FALSE AND %s AND m.id != ?`, vp)
	args := append(vargs, uint64(id))

	var rows []mediaRow
	if err := m.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, wrapQueryErr(err, "similar media")
	}

	out := make([]Media, 0, len(rows))
	for _, r := range rows {
		if bits.OnesCount64(r.Phash^origin.Phash) <= hammingThreshold {
			out = append(out, r.toMedia())
		}
	}
	return out, nil
}

// Collections

type collectionRow struct {
	ID    uint64  `db:"id"`
	Owner string  `db:"owner_user"`
	Group string  `db:"group_name"`
	Name  string  `db:"name"`
	Note  string  `db:"note"`
	Tags  string  `db:"tags"`
	Cover *uint64 `db:"cover_media"`
}

func (r collectionRow) toCollection() Collection {
	c := Collection{
		ID:        cmn.CollectionUuid(r.ID),
		OwnerUser: r.Owner,
		Group:     Group(r.Group),
		Name:      r.Name,
		Note:      r.Note,
		Tags:      cmn.UnfoldTags(r.Tags),
	}
	if r.Cover != nil {
		cov := cmn.MediaUuid(*r.Cover)
		c.Cover = &cov
	}
	return c
}

func (m *MySQL) AddCollection(ctx context.Context, c *Collection) (cmn.CollectionUuid, error) {
	tags, err := cmn.FoldTags(c.Tags)
	if err != nil {
		return 0, err
	}
	id := cmn.NewCollectionUuid()
	var cover *uint64
	if c.Cover != nil {
		v := uint64(*c.Cover)
		cover = &v
	}
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO collections (id, owner_user, group_name, name, note, tags, cover_media)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uint64(id), c.OwnerUser, string(c.Group), c.Name, c.Note, tags, cover,
	)
	if isDuplicateKeyErr(err) {
		return 0, cmn.NewConflict("collection name %q already exists for user", c.Name)
	}
	if err != nil {
		return 0, wrapQueryErr(err, "insert collection")
	}
	return id, nil
}

func (m *MySQL) GetCollection(ctx context.Context, id cmn.CollectionUuid) (*Collection, error) {
	var row collectionRow
	err := m.db.GetContext(ctx, &row, `SELECT id, owner_user, group_name, name, note, tags, cover_media FROM collections WHERE id = ?`, uint64(id))
	if err == sql.ErrNoRows {
		return nil, cmn.NewNotFound("collection %d", id)
	}
	if err != nil {
		return nil, wrapQueryErr(err, "get collection")
	}
	c := row.toCollection()
	return &c, nil
}

func (m *MySQL) UpdateCollection(ctx context.Context, id cmn.CollectionUuid, u CollectionUpdate) error {
	sets := []string{}
	args := []interface{}{}
	if u.Note != nil {
		sets = append(sets, "note = ?")
		args = append(args, *u.Note)
	}
	if u.Tags != nil {
		folded, err := cmn.FoldTags(u.Tags)
		if err != nil {
			return err
		}
		sets = append(sets, "tags = ?")
		args = append(args, folded)
	}
	if u.Cover != nil {
		sets = append(sets, "cover_media = ?")
		args = append(args, uint64(*u.Cover))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, uint64(id))
	q := fmt.Sprintf("UPDATE collections SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := m.db.ExecContext(ctx, q, args...)
	if err != nil {
		return wrapQueryErr(err, "update collection")
	}
	return requireAffected(res, "collection", uint64(id))
}

func (m *MySQL) DeleteCollection(ctx context.Context, id cmn.CollectionUuid) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, uint64(id))
	if err != nil {
		return wrapQueryErr(err, "delete collection")
	}
	return nil
}

func (m *MySQL) SearchCollections(ctx context.Context, groups map[Group]struct{}, filter SearchFilter) ([]Collection, error) {
	gp, gargs := groupsPredicate("group_name", groups)
	fc, fargs := buildFilterClause(filter, []string{"name", "note", "tags"})
	q := fmt.Sprintf(`SELECT id, owner_user, group_name, name, note, tags, cover_media FROM collections WHERE %s AND %s`, gp, fc)
	args := append(gargs, fargs...)

	var rows []collectionRow
	if err := m.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, wrapQueryErr(err, "search collections")
	}
	out := make([]Collection, len(rows))
	for i, r := range rows {
		out[i] = r.toCollection()
	}
	return out, nil
}

func (m *MySQL) AddMediaToCollection(ctx context.Context, media cmn.MediaUuid, col cmn.CollectionUuid) error {
	_, err := m.db.ExecContext(ctx, `INSERT IGNORE INTO collection_contents (media_id, collection_id) VALUES (?, ?)`, uint64(media), uint64(col))
	if err != nil {
		return wrapQueryErr(err, "add media to collection")
	}
	return nil
}

func (m *MySQL) RmMediaFromCollection(ctx context.Context, media cmn.MediaUuid, col cmn.CollectionUuid) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM collection_contents WHERE media_id = ? AND collection_id = ?`, uint64(media), uint64(col))
	if err != nil {
		return wrapQueryErr(err, "remove media from collection")
	}
	return nil
}

func (m *MySQL) MediaInCollection(ctx context.Context, col cmn.CollectionUuid) ([]cmn.MediaUuid, error) {
	var ids []uint64
	if err := m.db.SelectContext(ctx, &ids, `SELECT media_id FROM collection_contents WHERE collection_id = ?`, uint64(col)); err != nil {
		return nil, wrapQueryErr(err, "media in collection")
	}
	out := make([]cmn.MediaUuid, len(ids))
	for i, id := range ids {
		out[i] = cmn.MediaUuid(id)
	}
	return out, nil
}

// Comments

type commentRow struct {
	ID     uint64 `db:"id"`
	Media  uint64 `db:"media_id"`
	Author string `db:"author"`
	Mtime  int64  `db:"mtime"`
	Text   string `db:"text"`
}

func (r commentRow) toComment() Comment {
	return Comment{
		ID:     cmn.CommentUuid(r.ID),
		Media:  cmn.MediaUuid(r.Media),
		Author: r.Author,
		Mtime:  r.Mtime,
		Text:   r.Text,
	}
}

func (m *MySQL) AddComment(ctx context.Context, c *Comment) (cmn.CommentUuid, error) {
	id := cmn.NewCommentUuid()
	_, err := m.db.ExecContext(ctx, `INSERT INTO comments (id, media_id, author, mtime, text) VALUES (?, ?, ?, ?, ?)`,
		uint64(id), uint64(c.Media), c.Author, c.Mtime, c.Text)
	if err != nil {
		return 0, wrapQueryErr(err, "insert comment")
	}
	return id, nil
}

func (m *MySQL) GetComment(ctx context.Context, id cmn.CommentUuid) (*Comment, error) {
	var row commentRow
	err := m.db.GetContext(ctx, &row, `SELECT id, media_id, author, mtime, text FROM comments WHERE id = ?`, uint64(id))
	if err == sql.ErrNoRows {
		return nil, cmn.NewNotFound("comment %d", id)
	}
	if err != nil {
		return nil, wrapQueryErr(err, "get comment")
	}
	c := row.toComment()
	return &c, nil
}

func (m *MySQL) UpdateComment(ctx context.Context, id cmn.CommentUuid, text string) error {
	res, err := m.db.ExecContext(ctx, `UPDATE comments SET text = ? WHERE id = ?`, text, uint64(id))
	if err != nil {
		return wrapQueryErr(err, "update comment")
	}
	return requireAffected(res, "comment", uint64(id))
}

func (m *MySQL) DeleteComment(ctx context.Context, id cmn.CommentUuid) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, uint64(id))
	if err != nil {
		return wrapQueryErr(err, "delete comment")
	}
	return nil
}

// Libraries

type libraryRow struct {
	ID         uint64 `db:"id"`
	Path       string `db:"path"`
	OwnerUser  string `db:"owner_user"`
	OwnerGroup string `db:"owner_group"`
	Mtime      int64  `db:"mtime"`
	MediaCount int64  `db:"media_count"`
}

func (r libraryRow) toLibrary() Library {
	return Library{
		ID:         cmn.LibraryUuid(r.ID),
		Path:       r.Path,
		OwnerUser:  r.OwnerUser,
		OwnerGroup: Group(r.OwnerGroup),
		Mtime:      r.Mtime,
		MediaCount: r.MediaCount,
	}
}

func (m *MySQL) AddLibrary(ctx context.Context, l *Library) (cmn.LibraryUuid, error) {
	id := cmn.NewLibraryUuid()
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO libraries (id, path, owner_user, owner_group, mtime, media_count)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uint64(id), l.Path, l.OwnerUser, string(l.OwnerGroup), l.Mtime, l.MediaCount,
	)
	if isDuplicateKeyErr(err) {
		return 0, cmn.NewConflict("library path %q already exists", l.Path)
	}
	if err != nil {
		return 0, wrapQueryErr(err, "insert library")
	}
	return id, nil
}

func (m *MySQL) GetLibrary(ctx context.Context, id cmn.LibraryUuid) (*Library, error) {
	var row libraryRow
	err := m.db.GetContext(ctx, &row, `SELECT id, path, owner_user, owner_group, mtime, media_count FROM libraries WHERE id = ?`, uint64(id))
	if err == sql.ErrNoRows {
		return nil, cmn.NewNotFound("library %d", id)
	}
	if err != nil {
		return nil, wrapQueryErr(err, "get library")
	}
	l := row.toLibrary()
	return &l, nil
}

func (m *MySQL) SearchLibraries(ctx context.Context, groups map[Group]struct{}, filter SearchFilter) ([]Library, error) {
	gp, gargs := groupsPredicate("owner_group", groups)
	fc, fargs := buildFilterClause(filter, []string{"path"})
	q := fmt.Sprintf(`SELECT id, path, owner_user, owner_group, mtime, media_count FROM libraries WHERE %s AND %s`, gp, fc)
	args := append(gargs, fargs...)

	var rows []libraryRow
	if err := m.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, wrapQueryErr(err, "search libraries")
	}
	out := make([]Library, len(rows))
	for i, r := range rows {
		out[i] = r.toLibrary()
	}
	return out, nil
}

func (m *MySQL) UpdateLibraryCount(ctx context.Context, id cmn.LibraryUuid, count int64, mtime int64) error {
	res, err := m.db.ExecContext(ctx, `UPDATE libraries SET media_count = ?, mtime = ? WHERE id = ?`, count, mtime, uint64(id))
	if err != nil {
		return wrapQueryErr(err, "update library count")
	}
	return requireAffected(res, "library", uint64(id))
}

func requireAffected(res sql.Result, what string, id uint64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapQueryErr(err, "rows affected")
	}
	if n == 0 {
		return cmn.NewNotFound("%s %d", what, id)
	}
	return nil
}

func isDuplicateKeyErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Duplicate entry")
}

// wrapQueryErr classifies a failed database call: connectivity-level
// failures (dead connection, unreachable server) become Channel-kind
// errors, which the scan engine treats as fatal to the whole run;
// everything else is a Backend-kind error, which degrades to a
// per-file warning there.
func wrapQueryErr(err error, format string, args ...interface{}) *cmn.Error {
	if isConnErr(err) {
		return cmn.WrapChannel(err, format, args...)
	}
	return cmn.WrapBackend(err, format, args...)
}

func isConnErr(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
