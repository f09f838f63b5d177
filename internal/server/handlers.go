package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/wayrou/Capsule/internal/archive"
	"github.com/wayrou/Capsule/internal/capsule"
)

// maxBodySize bounds request bodies; they only carry paths.
const maxBodySize = 1 << 20

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// ArchiveRequest names an archive and, for some endpoints, a destination
// or an entry inside it.
type ArchiveRequest struct {
	Path    string `json:"path"`
	Dir     string `json:"dir,omitempty"`
	Dest    string `json:"dest,omitempty"`
	Entry   string `json:"entry,omitempty"`
	TempDir string `json:"tempDir,omitempty"`
}

// ListManyRequest names several archives to list.
type ListManyRequest struct {
	Paths []string `json:"paths"`
}

// ModifyRequest adds files to or removes entries from an archive.
type ModifyRequest struct {
	Path  string   `json:"path"`
	Files []string `json:"files,omitempty"`
	Names []string `json:"names,omitempty"`
}

// FileRequest names a file and, for copies, a destination.
type FileRequest struct {
	Path string `json:"path"`
	Dest string `json:"dest,omitempty"`
}

// ExportRequest uploads an archive to a bucket.
type ExportRequest struct {
	Path      string `json:"path"`
	Bucket    string `json:"bucket,omitempty"`
	Key       string `json:"key,omitempty"`
	Overwrite bool   `json:"overwrite,omitempty"`
}

// EntriesResponse lists archive entries.
type EntriesResponse struct {
	Entries []archive.Entry `json:"entries"`
	Count   int             `json:"count"`
}

// SizeResponse reports a file size.
type SizeResponse struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	SizeHuman string `json:"size_human"`
}

// PathResponse reports a file written by the server.
type PathResponse struct {
	Path string `json:"path"`
}

// RemoveResponse reports how many of the requested entries were dropped.
type RemoveResponse struct {
	Path      string `json:"path"`
	Requested int    `json:"requested"`
	Removed   int    `json:"removed"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var req ArchiveRequest
	if !s.decode(w, r, &req) || !requireField(w, "path", req.Path) {
		return
	}
	entries, err := s.svc.OpenArchive(req.Path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entriesResponse(entries))
}

func (s *Server) handleListMany(w http.ResponseWriter, r *http.Request) {
	var req ListManyRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Paths) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "paths is required"})
		return
	}
	results, err := s.svc.OpenArchives(r.Context(), req.Paths)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make(map[string]EntriesResponse, len(results))
	for path, entries := range results {
		out[path] = entriesResponse(entries)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	var req ArchiveRequest
	if !s.decode(w, r, &req) || !requireField(w, "path", req.Path) {
		return
	}
	entries, err := s.svc.BrowseArchive(req.Path, req.Dir)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entriesResponse(entries))
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req ArchiveRequest
	if !s.decode(w, r, &req) || !requireField(w, "path", req.Path) || !requireField(w, "dest", req.Dest) {
		return
	}
	if err := s.svc.ExtractArchive(req.Path, req.Dest); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PathResponse{Path: req.Dest})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req capsule.CreateZipArgs
	if !s.decode(w, r, &req) || !requireField(w, "outputPath", req.OutputPath) {
		return
	}
	if err := s.svc.CreateZipArchive(req); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, PathResponse{Path: req.OutputPath})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req ModifyRequest
	if !s.decode(w, r, &req) || !requireField(w, "path", req.Path) {
		return
	}
	if err := s.svc.AddFilesToZip(req.Path, req.Files); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PathResponse{Path: req.Path})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	var req ModifyRequest
	if !s.decode(w, r, &req) || !requireField(w, "path", req.Path) {
		return
	}
	n, err := s.svc.RemoveFilesFromZip(req.Path, req.Names)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RemoveResponse{Path: req.Path, Requested: len(req.Names), Removed: n})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req ArchiveRequest
	if !s.decode(w, r, &req) || !requireField(w, "path", req.Path) || !requireField(w, "entry", req.Entry) {
		return
	}
	res, err := s.svc.PreviewArchiveEntry(req.Path, req.Entry)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExtractEntry(w http.ResponseWriter, r *http.Request) {
	var req ArchiveRequest
	if !s.decode(w, r, &req) || !requireField(w, "path", req.Path) || !requireField(w, "entry", req.Entry) {
		return
	}
	out, err := s.svc.ExtractEntryToTemp(req.Path, req.Entry, req.TempDir)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PathResponse{Path: out})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if !s.decode(w, r, &req) || !requireField(w, "path", req.Path) {
		return
	}
	res, err := s.svc.ExportArchive(r.Context(), req.Path, req.Bucket, req.Key, req.Overwrite)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	var req FileRequest
	if !s.decode(w, r, &req) || !requireField(w, "path", req.Path) || !requireField(w, "dest", req.Dest) {
		return
	}
	if err := s.svc.CopyFile(req.Path, req.Dest); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PathResponse{Path: req.Dest})
}

func (s *Server) handleSize(w http.ResponseWriter, r *http.Request) {
	var req FileRequest
	if !s.decode(w, r, &req) || !requireField(w, "path", req.Path) {
		return
	}
	size, err := s.svc.GetFileSize(req.Path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SizeResponse{Path: req.Path, Size: size, SizeHuman: formatSize(size)})
}

func entriesResponse(entries []archive.Entry) EntriesResponse {
	if entries == nil {
		entries = []archive.Entry{}
	}
	return EntriesResponse{Entries: entries, Count: len(entries)}
}

// decode reads a JSON body into v, writing a 400 response on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		msg := "invalid request body"
		if errors.Is(err, io.EOF) {
			msg = "request body is empty"
		}
		s.logger.Debug("bad request body", "request_id", GetRequestID(r.Context()), "error", err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg})
		return false
	}
	return true
}

func requireField(w http.ResponseWriter, name, value string) bool {
	if value == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("%s is required", name)})
		return false
	}
	return true
}

// statusFor maps an operation error to an HTTP status and error kind.
func statusFor(err error) (int, string) {
	if errors.Is(err, capsule.ErrNoExportTarget) {
		return http.StatusBadRequest, "config"
	}
	if errors.Is(err, capsule.ErrExportExists) {
		return http.StatusConflict, "exists"
	}
	kind := archive.KindOf(err)
	switch kind {
	case archive.KindFormat, archive.KindTraversal:
		return http.StatusUnprocessableEntity, string(kind)
	case archive.KindNotFound:
		return http.StatusNotFound, string(kind)
	case archive.KindUnsupported:
		return http.StatusNotImplemented, string(kind)
	default:
		return http.StatusInternalServerError, string(kind)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "request_id", GetRequestID(r.Context()), "kind", kind, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
