package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/commonshub/hubdoor/internal/hubdoor/access"
	"github.com/commonshub/hubdoor/internal/hubdoor/capability"
	"github.com/commonshub/hubdoor/internal/hubdoor/service"
)

type Dependencies struct {
	Logger *zap.Logger
	Addr   string
	Door   *service.DoorService
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
}

type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	door       *service.DoorService
}

func NewServer(d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		logger: d.Logger.Named("http"),
		mux:    mux,
		door:   d.Door,
	}

	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /open", s.handleOpen)
	mux.HandleFunc("POST /open", s.handleShortcut)
	mux.HandleFunc("GET /check", s.handleCheck)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /log", s.handleLog)
	mux.HandleFunc("GET /token", s.handleToken)
	mux.HandleFunc("GET /audit", s.handleAudit)
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}

	handler := loggingMiddleware(s.logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.door.Home())
}

// handleOpen picks the flow from the query: a signed link when sig is
// present, today's token when token is present, a wallet login otherwise.
func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	switch {
	case q.Get("sig") != "":
		p := capability.ParamsFromQuery(q)
		resp, err := s.door.OpenWithCapability(r.Context(), p)
		if err != nil {
			denied := deniedFromError(err)
			if errors.Is(err, capability.ErrNotStarted) || errors.Is(err, capability.ErrExpired) {
				if win, ok := s.door.CapabilityWindow(p); ok {
					denied.ValidFrom, denied.ValidUntil = &win.Start, &win.End
				}
			}
			writeJSON(w, statusFor(err), denied)
			return
		}
		writeJSON(w, http.StatusOK, resp)

	case q.Get("token") != "":
		resp, err := s.door.OpenWithDayToken(r.Context(), q.Get("token"))
		if err != nil {
			writeDenied(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)

	default:
		resp, err := s.door.OpenWithWallet(r.Context(), q)
		if err != nil {
			writeDenied(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type shortcutRequest struct {
	Token  string `json:"token"`
	UserID string `json:"userid"`
}

// handleShortcut accepts a form or JSON body and answers in plain text.
func (s *Server) handleShortcut(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req shortcutRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeText(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeText(w, http.StatusBadRequest, "invalid form body")
			return
		}
		req.Token, req.UserID = r.PostForm.Get("token"), r.PostForm.Get("userid")
	}

	resp, err := s.door.OpenWithShortcut(r.Context(), strings.TrimSpace(req.UserID), strings.TrimSpace(req.Token))
	if err != nil {
		writeText(w, statusFor(err), access.ReasonOf(err))
		return
	}
	writeText(w, http.StatusOK, resp.Message)
}

// handleCheck is polled by the door controller. 200 means open, 403
// closed; controllers asking for protobuf get a BoolValue body.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	open := s.door.Check(r.Context(), clientIP(r), r.UserAgent())

	status := http.StatusForbidden
	if open {
		status = http.StatusOK
	}
	if wantsProtobuf(r) {
		writeProto(w, status, checkToProto(open))
		return
	}
	if open {
		writeText(w, status, "open")
		return
	}
	writeText(w, status, "closed")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.door.Status(r.Context())
	if err != nil {
		s.logger.Error("status", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.door.Session().Log())
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	tok, err := s.door.DayToken(r.URL.Query().Get("secret"))
	if err != nil {
		writeText(w, http.StatusForbidden, "Invalid secret")
		return
	}
	writeText(w, http.StatusOK, tok)
}

// handleAudit serves the durable audit log, newest first. Same secret as
// /token.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	recs, err := s.door.Audit(r.Context(), q.Get("secret"), limit)
	if err != nil {
		if access.KindOf(err) == access.KindUnauthorized {
			writeText(w, http.StatusForbidden, "Invalid secret")
			return
		}
		s.logger.Error("audit", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, auditToWire(recs))
}

// clientIP is the first X-Forwarded-For hop, else the peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
