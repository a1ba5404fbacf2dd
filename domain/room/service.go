package room

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/structpb"

	"go-battleship/domain/session"
)

const (
	CodeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	maxCodeAttempts     = 16
	defaultResultsLimit = 20
	maxResultsLimit     = 100
)

// Service implements RoomService. Requests are validated against the
// buf.validate rules in RoomFile before they reach it.
type Service interface {
	CreateRoom(ctx context.Context, req *connect.Request[dynamicpb.Message]) (*connect.Response[structpb.Struct], error)
	GetRoom(ctx context.Context, req *connect.Request[dynamicpb.Message]) (*connect.Response[structpb.Struct], error)
	ListRooms(ctx context.Context, req *connect.Request[dynamicpb.Message]) (*connect.Response[structpb.Struct], error)
	ListResults(ctx context.Context, req *connect.Request[dynamicpb.Message]) (*connect.Response[structpb.Struct], error)
	Ping(ctx context.Context, req *connect.Request[dynamicpb.Message]) (*connect.Response[structpb.Struct], error)
}

// ResultLister reads finished matches, newest first.
type ResultLister interface {
	ListResults(ctx context.Context, limit int) ([]session.Result, error)
}

// DirectoryService answers room queries from the live session directory.
type DirectoryService struct {
	dir     *session.Directory
	results ResultLister
	newCode func() string
	now     func() time.Time
	logger  *slog.Logger
}

type Option func(*DirectoryService)

// WithResults enables ListResults.
func WithResults(r ResultLister) Option {
	return func(s *DirectoryService) {
		s.results = r
	}
}

func WithCodeGenerator(gen func() string) Option {
	return func(s *DirectoryService) {
		if gen != nil {
			s.newCode = gen
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *DirectoryService) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *DirectoryService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewDirectoryService(dir *session.Directory, opts ...Option) *DirectoryService {
	s := &DirectoryService{
		dir:     dir,
		newCode: NewCode,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewCode returns a random six character code drawn from A-Z and 0-9.
func NewCode() string {
	id := uuid.New()
	code := make([]byte, CodeLength)
	for i := range code {
		code[i] = codeAlphabet[int(id[i])%len(codeAlphabet)]
	}
	return string(code)
}

func (s *DirectoryService) CreateRoom(ctx context.Context, req *connect.Request[dynamicpb.Message]) (*connect.Response[structpb.Struct], error) {
	for range maxCodeAttempts {
		code := s.newCode()
		if !s.dir.Reserve(code) {
			continue
		}
		s.logger.InfoContext(ctx, "room created", slog.String("code", code))
		msg, err := newStruct(map[string]any{"code": code})
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		return connect.NewResponse(msg), nil
	}
	return nil, connect.NewError(connect.CodeResourceExhausted, errors.New("no free room code"))
}

func (s *DirectoryService) GetRoom(ctx context.Context, req *connect.Request[dynamicpb.Message]) (*connect.Response[structpb.Struct], error) {
	code := stringArg(req.Msg, "code")
	snap, ok := s.dir.Snapshot(code)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, errors.New("room not found"))
	}
	msg, err := newStruct(roomValue(snap))
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func (s *DirectoryService) ListRooms(ctx context.Context, req *connect.Request[dynamicpb.Message]) (*connect.Response[structpb.Struct], error) {
	snaps := s.dir.Snapshots()
	rooms := make([]any, 0, len(snaps))
	for _, snap := range snaps {
		rooms = append(rooms, roomValue(snap))
	}
	msg, err := newStruct(map[string]any{"rooms": rooms})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func (s *DirectoryService) ListResults(ctx context.Context, req *connect.Request[dynamicpb.Message]) (*connect.Response[structpb.Struct], error) {
	if s.results == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, errors.New("result history is disabled"))
	}
	limit := defaultResultsLimit
	if n, ok := intArg(req.Msg, "limit"); ok {
		limit = int(n)
	}

	results, err := s.results.ListResults(ctx, limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "list results", slog.Any("error", err))
		return nil, connect.NewError(connect.CodeInternal, errors.New("list results failed"))
	}
	values := make([]any, 0, len(results))
	for _, r := range results {
		values = append(values, resultValue(r))
	}
	msg, err := newStruct(map[string]any{"results": values})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func (s *DirectoryService) Ping(ctx context.Context, req *connect.Request[dynamicpb.Message]) (*connect.Response[structpb.Struct], error) {
	now := s.now().UnixMilli()
	fields := map[string]any{"server_time_unix_millis": now}
	if client, ok := intArg(req.Msg, "client_time_unix_millis"); ok {
		fields["latency_ms"] = now - client
	}
	msg, err := newStruct(fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}
