package server

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/structpb"

	"go-battleship/domain/room"
)

const RoomServiceName = room.ServiceName

const (
	RoomServiceCreateRoomProcedure  = "/" + RoomServiceName + "/CreateRoom"
	RoomServiceGetRoomProcedure     = "/" + RoomServiceName + "/GetRoom"
	RoomServiceListRoomsProcedure   = "/" + RoomServiceName + "/ListRooms"
	RoomServiceListResultsProcedure = "/" + RoomServiceName + "/ListResults"
	RoomServicePingProcedure        = "/" + RoomServiceName + "/Ping"
)

type Server struct {
	RoomService room.Service
}

func New(svc room.Service) *Server {
	return &Server{
		RoomService: svc,
	}
}

func (s *Server) CreateRoom(ctx context.Context, req *connect.Request[dynamicpb.Message]) (*connect.Response[structpb.Struct], error) {
	return s.RoomService.CreateRoom(ctx, req)
}

func (s *Server) GetRoom(ctx context.Context, req *connect.Request[dynamicpb.Message]) (*connect.Response[structpb.Struct], error) {
	return s.RoomService.GetRoom(ctx, req)
}

func (s *Server) ListRooms(ctx context.Context, req *connect.Request[dynamicpb.Message]) (*connect.Response[structpb.Struct], error) {
	return s.RoomService.ListRooms(ctx, req)
}

func (s *Server) ListResults(ctx context.Context, req *connect.Request[dynamicpb.Message]) (*connect.Response[structpb.Struct], error) {
	return s.RoomService.ListResults(ctx, req)
}

func (s *Server) Ping(ctx context.Context, req *connect.Request[dynamicpb.Message]) (*connect.Response[structpb.Struct], error) {
	return s.RoomService.Ping(ctx, req)
}

// NewRoomServiceHandler mounts the room procedures under one path prefix.
// Each handler decodes into the method's request schema, so interceptors
// such as connectrpc.com/validate see the buf.validate rules.
func NewRoomServiceHandler(svc room.Service, opts ...connect.HandlerOption) (string, http.Handler) {
	createRoom := roomHandler(RoomServiceCreateRoomProcedure, "CreateRoom", svc.CreateRoom, opts)
	getRoom := roomHandler(RoomServiceGetRoomProcedure, "GetRoom", svc.GetRoom, opts)
	listRooms := roomHandler(RoomServiceListRoomsProcedure, "ListRooms", svc.ListRooms, opts)
	listResults := roomHandler(RoomServiceListResultsProcedure, "ListResults", svc.ListResults, opts)
	ping := roomHandler(RoomServicePingProcedure, "Ping", svc.Ping, opts)

	return "/" + RoomServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case RoomServiceCreateRoomProcedure:
			createRoom.ServeHTTP(w, r)
		case RoomServiceGetRoomProcedure:
			getRoom.ServeHTTP(w, r)
		case RoomServiceListRoomsProcedure:
			listRooms.ServeHTTP(w, r)
		case RoomServiceListResultsProcedure:
			listResults.ServeHTTP(w, r)
		case RoomServicePingProcedure:
			ping.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

type roomUnary func(context.Context, *connect.Request[dynamicpb.Message]) (*connect.Response[structpb.Struct], error)

func roomHandler(procedure, method string, fn roomUnary, opts []connect.HandlerOption) *connect.Handler {
	opts = append([]connect.HandlerOption{
		connect.WithSchema(room.Method(method)),
		connect.WithRequestInitializer(initRequest),
	}, opts...)
	return connect.NewUnaryHandler[dynamicpb.Message, structpb.Struct](procedure, fn, opts...)
}

// initRequest shapes an incoming dynamic message after the method input.
func initRequest(spec connect.Spec, msg any) error {
	dyn, ok := msg.(*dynamicpb.Message)
	if !ok {
		return nil
	}
	desc, ok := spec.Schema.(protoreflect.MethodDescriptor)
	if !ok {
		return fmt.Errorf("no schema for %s", spec.Procedure)
	}
	*dyn = *dynamicpb.NewMessage(desc.Input())
	return nil
}
