package api

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/matzehuels/stackresolve/pkg/cache"
	"github.com/matzehuels/stackresolve/pkg/catalog"
	"github.com/matzehuels/stackresolve/pkg/errors"
	"github.com/matzehuels/stackresolve/pkg/lockfile"
	"github.com/matzehuels/stackresolve/pkg/manifest"
	"github.com/matzehuels/stackresolve/pkg/render"
	"github.com/matzehuels/stackresolve/pkg/resolve"
	"github.com/matzehuels/stackresolve/pkg/source/local"
)

// ResolveRequest is the body of POST /v1/resolve.
type ResolveRequest struct {
	Projects map[string]*manifest.Manifest `json:"projects"` // project id -> package.json
	Lockfile string                        `json:"lockfile,omitempty"`
	Catalogs catalog.Catalogs              `json:"catalogs,omitempty"`

	AutoInstallPeers              bool `json:"autoInstallPeers,omitempty"`
	ResolvePeersFromWorkspaceRoot bool `json:"resolvePeersFromWorkspaceRoot,omitempty"`
	StrictPeerDependencies        bool `json:"strictPeerDependencies,omitempty"`
	DisableDedupePeerDependents   bool `json:"disableDedupePeerDependents,omitempty"`
}

// ResolveResponse is the result of a resolution run.
type ResolveResponse struct {
	RunID           string              `json:"runId"`
	Lockfile        string              `json:"lockfile,omitempty"`
	Issues          map[string][]string `json:"issues,omitempty"` // project id -> summary lines
	SkippedOptional []string            `json:"skippedOptional,omitempty"`
	Stats           resolve.Stats       `json:"stats"`
	Cached          bool                `json:"cached"`
	Error           string              `json:"error,omitempty"`
}

// ErrorResponse is returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ResolveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode request"))
		return
	}
	if err := validateRequest(req); err != nil {
		writeError(w, err)
		return
	}

	key, err := s.resolveKey(req)
	if err != nil {
		writeError(w, err)
		return
	}
	if resp, ok := s.cachedResponse(ctx, key); ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	var locked *lockfile.Lockfile
	if req.Lockfile != "" {
		if locked, err = lockfile.Parse([]byte(req.Lockfile)); err != nil {
			writeError(w, err)
			return
		}
	}

	dirs := make(map[string]*manifest.Manifest, len(req.Projects))
	projects := make([]*resolve.Project, 0, len(req.Projects))
	for id, m := range req.Projects {
		dir := filepath.Join(workspaceRoot, filepath.FromSlash(id))
		dirs[dir] = m
		projects = append(projects, &resolve.Project{ID: id, Dir: dir, Manifest: m})
	}

	res, err := resolve.ResolveDependencyTree(ctx, projects, resolve.Options{
		Source:                        local.New(dirs).WithRegistry(s.src),
		Lockfile:                      locked,
		LockfileDir:                   workspaceRoot,
		Catalogs:                      req.Catalogs,
		AutoInstallPeers:              req.AutoInstallPeers,
		ResolvePeersFromWorkspaceRoot: req.ResolvePeersFromWorkspaceRoot,
		StrictPeerDependencies:        req.StrictPeerDependencies,
		DisableDedupePeerDependents:   req.DisableDedupePeerDependents,
		SkipFetch:                     true,
		Logger:                        s.logger,
	})
	if res == nil {
		writeError(w, err)
		return
	}

	resp := ResolveResponse{RunID: res.RunID, Stats: res.Stats}
	for id, issues := range res.PeerDependencyIssuesByProjects {
		if resp.Issues == nil {
			resp.Issues = make(map[string][]string)
		}
		resp.Issues[id] = issues.Summary()
	}
	for _, skipped := range res.SkippedOptional {
		resp.SkippedOptional = append(resp.SkippedOptional, skipped.Alias+"@"+skipped.Spec+": "+skipped.Reason)
	}
	if err != nil {
		resp.Error = errors.UserMessage(err)
		writeJSON(w, statusFor(err), resp)
		return
	}

	data, err := lockfile.Marshal(res.Lockfile())
	if err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInternal, err, "encode lockfile"))
		return
	}
	resp.Lockfile = string(data)

	s.store(ctx, runKey(res.RunID), []byte(render.ResultDOT(res, render.Options{})))
	if body, err := json.Marshal(resp); err == nil {
		s.store(ctx, key, body)
	}
	writeJSON(w, http.StatusOK, resp)
}

func validateRequest(req ResolveRequest) error {
	if len(req.Projects) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "request has no projects")
	}
	for id, m := range req.Projects {
		if err := errors.ValidatePath(id); err != nil {
			return err
		}
		if !filepath.IsLocal(filepath.FromSlash(id)) {
			return errors.New(errors.ErrCodeInvalidPath, "project %q is outside the workspace", id)
		}
		if m == nil {
			return errors.New(errors.ErrCodeInvalidManifest, "project %q has no manifest", id)
		}
	}
	return nil
}

func (s *Server) resolveKey(req ResolveRequest) (string, error) {
	opts := cache.ResolveKeyOpts{
		Registry:  s.registry,
		Manifests: make(map[string]string, len(req.Projects)),
		AutoPeers: req.AutoInstallPeers,
		RootPeers: req.ResolvePeersFromWorkspaceRoot,
		NoDedupe:  req.DisableDedupePeerDependents,
		Strict:    req.StrictPeerDependencies,
	}
	for id, m := range req.Projects {
		data, err := json.Marshal(m)
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeInvalidManifest, err, "encode project %q", id)
		}
		opts.Manifests[id] = cache.Hash(data)
	}
	if len(req.Catalogs) > 0 {
		data, err := json.Marshal(req.Catalogs)
		if err != nil {
			return "", errors.Wrap(errors.ErrCodeInvalidInput, err, "encode catalogs")
		}
		opts.Catalogs = cache.Hash(data)
	}
	if req.Lockfile != "" {
		opts.Lockfile = cache.Hash([]byte(req.Lockfile))
	}
	return s.keyer.ResolveKey(opts), nil
}

func (s *Server) cachedResponse(ctx context.Context, key string) (ResolveResponse, bool) {
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed", "key", key, "err", err)
		return ResolveResponse{}, false
	}
	if !ok {
		return ResolveResponse{}, false
	}
	var resp ResolveResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return ResolveResponse{}, false
	}
	resp.Cached = true
	return resp, true
}

func (s *Server) store(ctx context.Context, key string, data []byte) {
	if err := s.cache.Set(ctx, key, data, cache.TTLResolve); err != nil {
		s.logger.Warn("cache write failed", "key", key, "err", err)
	}
}

func runKey(runID string) string { return "run:" + runID }

func (s *Server) loadDOT(w http.ResponseWriter, r *http.Request) (string, bool) {
	runID := chi.URLParam(r, "runID")
	if _, err := uuid.Parse(runID); err != nil {
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid run id %q", runID))
		return "", false
	}
	data, ok, err := s.cache.Get(r.Context(), runKey(runID))
	if err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInternal, err, "read run %s", runID))
		return "", false
	}
	if !ok {
		writeError(w, errors.New(errors.ErrCodeNotFound, "run %s not found", runID))
		return "", false
	}
	return string(data), true
}

func (s *Server) graphDOT(w http.ResponseWriter, r *http.Request) {
	dot, ok := s.loadDOT(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(dot))
}

func (s *Server) graphSVG(w http.ResponseWriter, r *http.Request) {
	dot, ok := s.loadDOT(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	svg, err := render.RenderSVG(ctx, dot)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(svg)
}

// statusFor maps an error code to an HTTP status.
func statusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidPackage, errors.ErrCodeInvalidManifest,
		errors.ErrCodeInvalidPath, errors.ErrCodeInvalidLockfile, errors.ErrCodeMissingPackageName,
		errors.ErrCodeCatalogMisconfigured, errors.ErrCodePatchNotApplied:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodePackageNotFound, errors.ErrCodeVersionNotFound, errors.ErrCodeFileNotFound,
		errors.ErrCodeResolution, errors.ErrCodeUnsupported:
		return http.StatusUnprocessableEntity
	case errors.ErrCodePeerDependencyIssues:
		return http.StatusConflict
	case errors.ErrCodeNetwork, errors.ErrCodeTimeout, errors.ErrCodeRateLimited, errors.ErrCodeIntegrity:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), ErrorResponse{Error: errors.UserMessage(err), Code: string(errors.GetCode(err))})
}
