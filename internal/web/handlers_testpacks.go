package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/completions/internal/core"
)

// queryInt parses a non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		return def
	}
	return i
}

// testPackFilter reads search, estado, subsystem_id, import_id, limit and
// offset from the query string.
func testPackFilter(r *http.Request) core.TestPackFilter {
	q := r.URL.Query()
	return core.TestPackFilter{
		Search:      strings.TrimSpace(q.Get("search")),
		Estado:      core.Estado(q.Get("estado")),
		SubsystemID: q.Get("subsystem_id"),
		ImportID:    q.Get("import_id"),
		Limit:       queryInt(r, "limit", 0),
		Offset:      queryInt(r, "offset", 0),
	}
}

func (s *Server) handleListTestPacks(w http.ResponseWriter, r *http.Request) {
	packs, err := s.service.ListTestPacks(r.Context(), session(r), testPackFilter(r))
	respond(w, r, http.StatusOK, packs, err)
}

func (s *Server) handleGetTestPack(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.GetTestPack(r.Context(), session(r), idParam(r))
	respond(w, r, http.StatusOK, p, err)
}

func (s *Server) handleCreateTestPack(w http.ResponseWriter, r *http.Request) {
	var in core.TestPackInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	p, err := s.service.CreateTestPack(r.Context(), session(r), in)
	respond(w, r, http.StatusCreated, p, err)
}

func (s *Server) handleUpdateTestPack(w http.ResponseWriter, r *http.Request) {
	var in core.TestPackInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	p, err := s.service.UpdateTestPack(r.Context(), session(r), idParam(r), in)
	respond(w, r, http.StatusOK, p, err)
}

func (s *Server) handleDeleteTestPack(w http.ResponseWriter, r *http.Request) {
	respondDeleted(w, r, s.service.DeleteTestPack(r.Context(), session(r), idParam(r)))
}

func (s *Server) handleListPackTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.service.ListTags(r.Context(), session(r), core.TagFilter{TestPackIDs: []string{idParam(r)}})
	respond(w, r, http.StatusOK, tags, err)
}

// Tags

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := core.TagFilter{
		Estado: core.Estado(q.Get("estado")),
		Search: strings.TrimSpace(q.Get("search")),
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
	}
	if ids := q.Get("test_pack_id"); ids != "" {
		f.TestPackIDs = strings.Split(ids, ",")
	}
	tags, err := s.service.ListTags(r.Context(), session(r), f)
	respond(w, r, http.StatusOK, tags, err)
}

func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var in core.TagInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	tag, err := s.service.CreateTag(r.Context(), session(r), in)
	respond(w, r, http.StatusCreated, tag, err)
}

func (s *Server) handleUpdateTag(w http.ResponseWriter, r *http.Request) {
	var in core.TagInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	tag, err := s.service.UpdateTag(r.Context(), session(r), idParam(r), in)
	respond(w, r, http.StatusOK, tag, err)
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	respondDeleted(w, r, s.service.DeleteTag(r.Context(), session(r), idParam(r)))
}

type releaseRequest struct {
	FechaLiberacion *core.Date `json:"fecha_liberacion"`
}

// handleReleaseTag moves a tag to liberado. Without a date the service
// answers ErrReleaseDateRequired.
func (s *Server) handleReleaseTag(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	tag, err := s.service.ReleaseTag(r.Context(), session(r), idParam(r), req.FechaLiberacion)
	respond(w, r, http.StatusOK, tag, err)
}
